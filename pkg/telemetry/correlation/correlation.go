package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// maxIncomingID bounds ids accepted from callers; longer values are replaced.
const maxIncomingID = 128

type correlationKey struct{}

// ExtractCorrelationID returns the id carried by ctx, or "".
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating a ULID when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// FromIncoming adopts a caller-supplied id (X-Request-ID) when it is short printable ASCII,
// and otherwise generates one.
func FromIncoming(ctx context.Context, incoming string) (context.Context, string) {
	incoming = strings.TrimSpace(incoming)
	if validIncoming(incoming) {
		ctx = ContextWithCorrelationID(ctx, incoming)
	}
	return EnsureCorrelationID(ctx)
}

func validIncoming(id string) bool {
	if id == "" || len(id) > maxIncomingID {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// ContextWithTraceParent seeds a remote span from a W3C traceparent header
// ("version-traceid-spanid-flags"). Malformed headers leave ctx unchanged.
func ContextWithTraceParent(ctx context.Context, header string) context.Context {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 {
		return ctx
	}
	return ContextWithRemoteSpan(ctx, parts[1], parts[2])
}

func ContextWithRemoteSpan(ctx context.Context, traceIDHex, spanIDHex string) context.Context {
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return ctx
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	return trace.ContextWithSpanContext(ctx, parent)
}
