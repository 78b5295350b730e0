package snowflake

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/ozanardine/phanteon-rewards/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// Node wraps snowflake.Node to abstract dependency
type Node struct {
	*snowflake.Node
}

// NewNode creates a generator for the node configured by SNOWFLAKE_NODE_ID.
// Every running replica needs its own node id.
func NewNode(cfg *config.Config) (*Node, error) {
	return NewNodeWithID(cfg.SnowflakeNodeID)
}

func NewNodeWithID(id int64) (*Node, error) {
	node, err := snowflake.NewNode(id)
	if err != nil {
		return nil, err
	}
	return &Node{node}, nil
}

// GenerateID returns a new snowflake ID as int64
func (n *Node) GenerateID() int64 {
	return n.Generate().Int64()
}

// ParseID parses a string ID into an int64
func ParseID(id string) (int64, error) {
	nid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, err
	}
	return nid, nil
}
