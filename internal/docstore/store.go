// Package docstore implements the replicated, transactional document
// store: a single mutable DocSnapshot, mutated only inside Transact,
// observed through origin-tagged change notifications. The replication
// transport itself (the CRDT wire format) is treated as an opaque external
// collaborator; docstore exposes just enough surface (ApplyUpdate/OnUpdate)
// for that collaborator to plug in.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/paramforge/engine/internal/types"
)

// docstoreTracer and docstoreMetrics use the global OTel providers, which
// are no-ops until a caller installs a real SDK provider.
var docstoreTracer = otel.Tracer("github.com/paramforge/engine/internal/docstore")

var docstoreMetrics struct {
	commits   metric.Int64Counter
	rollbacks metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/paramforge/engine/internal/docstore")
	docstoreMetrics.commits, _ = m.Int64Counter("paramforge.docstore.commits",
		metric.WithDescription("document transactions committed"),
		metric.WithUnit("{transaction}"),
	)
	docstoreMetrics.rollbacks, _ = m.Int64Counter("paramforge.docstore.rollbacks",
		metric.WithDescription("document transactions that returned an error and left the store unchanged"),
		metric.WithUnit("{transaction}"),
	)
}

// Well-known transaction origin tags.
const (
	OriginUser            = "user"
	OriginSolverWriteback = "solver-writeback"
	OriginRemote          = "remote"
	OriginRemoteInFlight  = "remote-in-flight"
)

// ChangeSet describes which features were touched by a transaction, coarse
// enough for the rebuild scheduler to decide whether it needs to reset its
// debounce timer, but not a full diff — the rebuild engine always rebuilds
// against the latest snapshot, not against the delta.
type ChangeSet struct {
	ChangedFeatures []types.ID
}

// Handler observes a committed transaction. It must not block; observers
// that need to do expensive work should hand off to their own goroutine.
type Handler func(snapshot *types.DocSnapshot, changes ChangeSet, origin string)

// Store is the in-memory, single-writer document store. All mutation flows
// through Transact; Snapshot always returns an independent clone so no
// caller can observe or corrupt the store's live state.
type Store struct {
	mu     sync.Mutex
	snap   *types.DocSnapshot
	subs   map[int]Handler
	nextID int
	logger *slog.Logger
	codec  Codec
	check  func(*types.DocSnapshot) error
}

// WithInvariantCheck installs a structural check run against the working
// snapshot before every commit, whatever its origin; a failing check rolls
// the transaction back. Nothing in this module installs a check outside
// docstore's own tests, so a store built with New commits without
// re-verification. Must be set before the store is shared across goroutines.
func (s *Store) WithInvariantCheck(check func(*types.DocSnapshot) error) *Store {
	s.check = check
	return s
}

// New constructs a Store seeded with initial. initial is cloned on entry so
// the caller's copy remains independent afterward.
func New(initial *types.DocSnapshot, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		snap:   initial.Clone(),
		subs:   make(map[int]Handler),
		logger: logger,
	}
}

// Snapshot returns an independent clone of the current document state.
func (s *Store) Snapshot() *types.DocSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Subscribe registers a handler invoked after every committed transaction.
// The returned func removes the subscription.
func (s *Store) Subscribe(h Handler) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Transact applies fn to a working copy of the current snapshot and, if fn
// succeeds, commits the result atomically and notifies subscribers with the
// given origin tag. If fn returns an error the store is left unchanged — no
// observer sees an intermediate state. fn runs under the store's lock.
func (s *Store) Transact(origin string, fn func(tx *Txn) error) error {
	ctx, span := docstoreTracer.Start(context.Background(), "docstore.transact",
		trace.WithAttributes(attribute.String("paramforge.origin", origin)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.snap.Clone()
	tx := &Txn{snap: working}

	if err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("transaction panicked: %v", r)
			}
		}()
		return fn(tx)
	}(); err != nil {
		docstoreMetrics.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("paramforge.origin", origin)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if s.check != nil {
		if err := s.check(working); err != nil {
			docstoreMetrics.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("paramforge.origin", origin)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("post-transaction invariant check: %w", err)
		}
	}

	// A remote commit keeps the sender's modifiedAt, so peers that applied
	// the same updates hold equal snapshots.
	if origin != OriginRemote && origin != OriginRemoteInFlight {
		working.Meta.ModifiedAt = time.Now().UTC()
	}
	s.snap = working
	changes := ChangeSet{ChangedFeatures: tx.touched}

	for _, h := range s.subs {
		h(s.snap.Clone(), changes, origin)
	}
	docstoreMetrics.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("paramforge.origin", origin)))
	span.SetAttributes(attribute.Int("paramforge.changed_features", len(changes.ChangedFeatures)))
	s.logger.Debug("document transaction committed", "origin", origin, "changed", len(changes.ChangedFeatures))
	return nil
}
