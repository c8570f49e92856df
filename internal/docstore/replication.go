package docstore

import (
	"encoding/json"
	"fmt"

	"github.com/paramforge/engine/internal/types"
)

// Update is an opaque replication payload. The exact CRDT encoding is a
// black-box library concern external to this engine; Update is just the
// byte-string boundary the engine exchanges with that collaborator.
type Update []byte

// Codec converts between committed snapshots and the opaque wire format.
// Implementors may wrap a real CRDT library (Yjs-equivalent) or, as here, a
// simple full-snapshot codec adequate for single-writer tests and for any
// deployment where the real CRDT transport lives entirely outside this
// module and only hands the engine pre-decoded updates.
type Codec interface {
	// Encode produces an update a peer at `before` can apply to converge to `after`.
	Encode(before, after *types.DocSnapshot) (Update, error)
	// Decode applies an update on top of base and returns the resulting snapshot.
	Decode(update Update, base *types.DocSnapshot) (*types.DocSnapshot, error)
}

// SnapshotCodec is the simplest valid Codec: every update is a full snapshot
// encoded as JSON. It satisfies the convergence contract trivially (last
// writer wins) and is what this module uses by default and in tests;
// production deployments are expected to supply a real CRDT-backed Codec.
type SnapshotCodec struct{}

func (SnapshotCodec) Encode(_, after *types.DocSnapshot) (Update, error) {
	b, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return Update(b), nil
}

func (SnapshotCodec) Decode(update Update, _ *types.DocSnapshot) (*types.DocSnapshot, error) {
	var snap types.DocSnapshot
	if err := json.Unmarshal(update, &snap); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return &snap, nil
}

// WithCodec installs the Codec used by ApplyUpdate and emitted by update
// subscribers. Must be called before any replication traffic; not safe to
// change concurrently with ApplyUpdate/Transact.
func (s *Store) WithCodec(c Codec) *Store {
	s.codec = c
	return s
}

// ApplyUpdate decodes an incoming replicated update and commits it as a
// single all-or-nothing transaction tagged OriginRemote: a malformed remote
// update must never corrupt local state.
func (s *Store) ApplyUpdate(update Update) error {
	return s.applyUpdate(update, OriginRemote)
}

// ApplyInitialSync decodes the bulk catch-up update a newly (re)connecting
// peer sends to establish its starting state and commits it tagged
// OriginRemoteInFlight rather than OriginRemote: an initial sync is the
// peer still catching up, not a steady-state edit, so it must not reset the
// rebuild debounce the way an incremental remote update does.
func (s *Store) ApplyInitialSync(update Update) error {
	return s.applyUpdate(update, OriginRemoteInFlight)
}

func (s *Store) applyUpdate(update Update, origin string) error {
	s.mu.Lock()
	codec := s.codec
	base := s.snap.Clone()
	s.mu.Unlock()

	if codec == nil {
		codec = SnapshotCodec{}
	}

	decoded, err := codec.Decode(update, base)
	if err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	return s.Transact(origin, func(tx *Txn) error {
		*tx.snap = *decoded.Clone()
		return nil
	})
}

// OnUpdate registers a handler invoked with the encoded update after every
// local commit whose origin is not a remote one. A remote-in-flight commit
// is still remote in origin — letting it loop back out would echo a peer's
// own initial sync back at it. The returned func removes the
// subscription.
func (s *Store) OnUpdate(handler func(Update)) (unsubscribe func()) {
	var before *types.DocSnapshot
	return s.Subscribe(func(after *types.DocSnapshot, _ ChangeSet, origin string) {
		if origin == OriginRemote || origin == OriginRemoteInFlight {
			before = after
			return
		}
		codec := s.codec
		if codec == nil {
			codec = SnapshotCodec{}
		}
		prev := before
		if prev == nil {
			prev = after
		}
		update, err := codec.Encode(prev, after)
		before = after
		if err != nil {
			s.logger.Error("encode replication update failed", "error", err)
			return
		}
		handler(update)
	})
}
