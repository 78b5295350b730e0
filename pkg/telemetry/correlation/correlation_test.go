package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationID_GeneratesOnce(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.Len(t, id, 26)

	_, again := EnsureCorrelationID(ctx)
	assert.Equal(t, id, again)
}

func TestFromIncoming(t *testing.T) {
	_, id := FromIncoming(context.Background(), " upstream-1 ")
	assert.Equal(t, "upstream-1", id)

	for _, bad := range []string{"", "has space", "tab\tid", strings.Repeat("x", 129), "ünï"} {
		_, id := FromIncoming(context.Background(), bad)
		assert.Len(t, id, 26, bad)
	}
}

func TestContextWithTraceParent(t *testing.T) {
	ctx := ContextWithTraceParent(context.Background(), "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	sc := trace.SpanContextFromContext(ctx)
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	ctx = ContextWithTraceParent(context.Background(), "garbage")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}

func TestContextWithRemoteSpan_InvalidHex(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "zz", "00f067aa0ba902b7")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
