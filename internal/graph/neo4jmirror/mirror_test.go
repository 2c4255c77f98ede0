package neo4jmirror

import (
	"context"
	"testing"

	"github.com/arcwelder/bpmengine/internal/engine/signal"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
)

func TestOnEventNoopWithoutClient(t *testing.T) {
	log, _ := logger.New("test")
	m := New(nil, log)

	// Must not panic or attempt any network call when no Neo4j client is
	// configured for this deployment.
	m.onEvent(context.Background(), signal.Event{Kind: signal.ActivityCreated, ActivityID: 1})
}

func TestSubscribeRegistersOnBus(t *testing.T) {
	log, _ := logger.New("test")
	m := New(nil, log)
	bus := signal.New()
	m.Subscribe(bus)

	// A nil client keeps onEvent a no-op, so publishing must not block or
	// error even though a real subscriber is now registered.
	if err := bus.Publish(context.Background(), signal.Event{Kind: signal.ActivityCreated, ActivityID: 1}); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
}
