// Package neo4jmirror mirrors the activity tree into Neo4j as a
// read-side accelerator (spec.md section 4.10): Postgres
// (domain/workflow.ActivityRelationship) remains the sole source of
// truth for every engine invariant. It is grounded on the teacher's
// internal/data/graph/neo4j_user_learning.go upsert shape and
// internal/platform/neo4jdb.Client connection wrapper, reworked from
// mirroring user/concept rows to mirroring the activity parent/child
// edge as it is announced over engine/signal.
package neo4jmirror

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/arcwelder/bpmengine/internal/engine/signal"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
	"github.com/arcwelder/bpmengine/internal/platform/neo4jdb"
)

// Mirror subscribes to a signal.Bus and writes every activity lifecycle
// event into Neo4j as a best-effort side write. A write failure is
// logged and swallowed: a missing or stale mirror can never cause an
// engine invariant violation (spec.md section 4.10).
type Mirror struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

// New returns a Mirror bound to client. client may be nil (e.g. Neo4j
// not configured for this deployment), in which case Subscribe still
// registers but every event is a no-op.
func New(client *neo4jdb.Client, log *logger.Logger) *Mirror {
	return &Mirror{client: client, log: log.With("component", "neo4jmirror")}
}

// EnsureSchema creates the uniqueness constraint the mirror relies on.
// It is best-effort and idempotent (IF NOT EXISTS), matching the
// teacher's schema-init pattern in neo4j_user_learning.go; a failure
// here is logged, not fatal, since the mirror is never load-bearing.
func (m *Mirror) EnsureSchema(ctx context.Context) {
	if m.client == nil || m.client.Driver == nil {
		return
	}
	session := m.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.Database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, `CREATE CONSTRAINT activity_id_unique IF NOT EXISTS FOR (a:Activity) REQUIRE a.id IS UNIQUE`, nil)
	if err != nil {
		m.log.Warn("neo4j schema init failed (continuing)", "error", err)
		return
	}
	_, _ = res.Consume(ctx)
}

// Subscribe registers the Mirror's handler on bus. Whether bus is a
// plain local bus or one fanned out over Redis (engine/signal.NewRedisBus)
// is transparent here: a Mirror only ever needs to Subscribe once to see
// every process's events (spec.md section 4.7).
func (m *Mirror) Subscribe(bus signal.Bus) {
	bus.Subscribe(m.onEvent)
}

func (m *Mirror) onEvent(ctx context.Context, evt signal.Event) {
	if m.client == nil || m.client.Driver == nil {
		return
	}
	if err := m.apply(ctx, evt); err != nil {
		m.log.Warn("neo4j mirror write failed", "activity_id", evt.ActivityID, "kind", evt.Kind, "error", err)
	}
}

// apply upserts the (:Activity) node for evt.ActivityID and, when a
// parent is known, the CHILD_OF edge to it. Edge distance is always 1
// here: the mirror only ever sees direct parent/child pairs from
// SpawnChild, and Cypher's variable-length patterns (`-[:CHILD_OF*]->`)
// recover the full ancestor/descendant closure without needing the
// transitive-closure rows Postgres keeps for CAS-guarded queries.
func (m *Mirror) apply(ctx context.Context, evt signal.Event) error {
	session := m.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (a:Activity {id: $id})
SET a.identifier_code = $identifier_code,
    a.state = $state
`, map[string]any{
			"id":              evt.ActivityID,
			"identifier_code": evt.IdentifierCode,
			"state":           string(evt.State),
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if evt.Kind != signal.ActivityCreated || evt.ParentID == nil {
			return nil, nil
		}
		res, err = tx.Run(ctx, `
MERGE (p:Activity {id: $parent_id})
MERGE (c:Activity {id: $child_id})
MERGE (c)-[r:CHILD_OF]->(p)
SET r.distance = 1
`, map[string]any{
			"parent_id": *evt.ParentID,
			"child_id":  evt.ActivityID,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}
