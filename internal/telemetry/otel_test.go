package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{ServiceName: "semitae-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address; nothing is recorded so nothing is exported.
	shutdown, err := Setup(context.Background(), Options{
		ServiceName: "semitae-test",
		Endpoint:    "http://192.0.2.1:4318",
		SampleRatio: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSamplerSelection(t *testing.T) {
	cases := map[float64]string{
		1:    sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(),
		2:    sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(),
		0:    sdktrace.ParentBased(sdktrace.NeverSample()).Description(),
		0.25: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description(),
	}
	for ratio, want := range cases {
		if got := sampler(ratio).Description(); got != want {
			t.Fatalf("ratio %v: expected %s, got %s", ratio, want, got)
		}
	}
}
