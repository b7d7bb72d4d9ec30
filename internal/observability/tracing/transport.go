package tracing

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Transport wraps an http.RoundTripper with client spans for outbound calls
// to the inference and partner services.
type Transport struct {
	base   http.RoundTripper
	peer   string
	tracer trace.Tracer
}

func NewTransport(base http.RoundTripper, peer string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:   base,
		peer:   strings.TrimSpace(peer),
		tracer: otel.Tracer("wasteloop/http-client"),
	}
}

// NewClient returns an http.Client using a traced transport.
func NewClient(peer string, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: NewTransport(base, peer)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), t.peer+" "+req.Method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req = req.Clone(ctx)
	InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	span.SetAttributes(
		attribute.String("peer.service", t.peer),
		attribute.String("http.method", req.Method),
		attribute.String("http.host", req.URL.Host),
	)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, "transport error")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "upstream error")
	}
	return resp, nil
}
