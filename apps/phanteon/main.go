package main

import "github.com/ozanardine/phanteon-rewards/internal/cli"

func main() {
	cli.Execute()
}
