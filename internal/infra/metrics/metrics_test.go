//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExchangeCounters(t *testing.T) {
	before := testutil.ToFloat64(chatExchangesTotal.WithLabelValues("sse", "completed"))
	ObserveExchange(" SSE ", "Completed", 0.3)
	after := testutil.ToFloat64(chatExchangesTotal.WithLabelValues("sse", "completed"))
	if after-before != 1 {
		t.Fatalf("expected labels to be normalised and counted once, delta=%v", after-before)
	}
}

func TestActiveStreamsGauge(t *testing.T) {
	base := testutil.ToFloat64(chatActiveStreams)
	StreamStarted()
	StreamStarted()
	StreamFinished()
	if got := testutil.ToFloat64(chatActiveStreams) - base; got != 1 {
		t.Fatalf("expected one active stream, got %v", got)
	}
	StreamFinished()
}

func TestCollectorsEnqueued(t *testing.T) {
	if len(collectors) < 10 {
		t.Fatalf("expected every metrics file to register its collectors, got %d", len(collectors))
	}
}
