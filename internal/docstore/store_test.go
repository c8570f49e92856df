package docstore

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/paramforge/engine/internal/idgen"
	"github.com/paramforge/engine/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *idgen.Service) {
	t.Helper()
	ids := idgen.NewService()
	doc := NewDocument("test", types.UnitsMM, ids)
	return New(doc, testLogger()), ids
}

func TestTransactCommitsAtomically(t *testing.T) {
	s, ids := newTestStore(t)
	extrudeID := ids.New()

	err := s.Transact(OriginUser, func(tx *Txn) error {
		return tx.AddFeature(types.Feature{ID: extrudeID, Type: types.FeatureOrigin, Name: "dummy"})
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	snap := s.Snapshot()
	if _, ok := snap.FeaturesByID[extrudeID]; !ok {
		t.Fatal("expected feature to be committed")
	}
}

func TestTransactRollsBackOnError(t *testing.T) {
	s, ids := newTestStore(t)
	before := s.Snapshot()

	err := s.Transact(OriginUser, func(tx *Txn) error {
		_ = tx.AddFeature(types.Feature{ID: ids.New(), Type: types.FeatureOrigin})
		return assertErr
	})
	if err == nil {
		t.Fatal("expected the transaction error to propagate")
	}

	after := s.Snapshot()
	if len(before.FeaturesByID) != len(after.FeaturesByID) {
		t.Fatal("store mutated despite failed transaction")
	}
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestInvariantCheckRollsBackViolatingTransaction(t *testing.T) {
	s, ids := newTestStore(t)
	s.WithInvariantCheck(func(snap *types.DocSnapshot) error {
		if len(snap.FeatureOrder) > 4 {
			return assertErr
		}
		return nil
	})
	before := s.Snapshot()

	err := s.Transact(OriginUser, func(tx *Txn) error {
		return tx.AddFeature(types.Feature{ID: ids.New(), Type: types.FeatureOrigin})
	})
	if err == nil {
		t.Fatal("expected the failing check to roll the transaction back")
	}

	after := s.Snapshot()
	if len(before.FeaturesByID) != len(after.FeaturesByID) {
		t.Fatal("violating transaction was committed anyway")
	}
}

func TestSubscribersSeeOriginTag(t *testing.T) {
	s, ids := newTestStore(t)
	var gotOrigin string
	unsub := s.Subscribe(func(_ *types.DocSnapshot, _ ChangeSet, origin string) {
		gotOrigin = origin
	})
	defer unsub()

	_ = s.Transact("custom-origin", func(tx *Txn) error {
		return tx.AddFeature(types.Feature{ID: ids.New(), Type: types.FeatureOrigin})
	})

	if gotOrigin != "custom-origin" {
		t.Fatalf("observed origin %q, want %q", gotOrigin, "custom-origin")
	}
}

func TestDeleteOriginAndDatumPlanesRejected(t *testing.T) {
	s, _ := newTestStore(t)
	snap := s.Snapshot()

	for i := 0; i < 4; i++ {
		id := snap.FeatureOrder[i]
		var deleted bool
		err := s.Transact(OriginUser, func(tx *Txn) error {
			deleted = tx.DeleteFeature(id)
			return nil
		})
		if err != nil {
			t.Fatalf("Transact: %v", err)
		}
		if deleted {
			t.Fatalf("deletion of protected feature %s should be rejected", id)
		}
	}

	after := s.Snapshot()
	if len(after.FeaturesByID) != 4 {
		t.Fatalf("document should be unchanged, has %d features", len(after.FeaturesByID))
	}
}

// TestVisibilityToggleTwiceIsIdempotent covers the "toggling a feature's
// visibility twice returns the document to an equal state" — compared with
// go-cmp across the whole feature record, not just the one field, so a stray
// mutation of any other field of that feature would also fail this test.
func TestVisibilityToggleTwiceIsIdempotent(t *testing.T) {
	s, ids := newTestStore(t)
	id := ids.New()
	_ = s.Transact(OriginUser, func(tx *Txn) error {
		return tx.AddFeature(types.Feature{ID: id, Type: types.FeatureOrigin})
	})

	before := s.Snapshot()

	_ = s.Transact(OriginUser, func(tx *Txn) error { return tx.SetVisible(id, false) })
	_ = s.Transact(OriginUser, func(tx *Txn) error { return tx.SetVisible(id, true) })

	after := s.Snapshot()
	if diff := cmp.Diff(before.FeaturesByID[id], after.FeaturesByID[id]); diff != "" {
		t.Fatalf("visibility toggle twice did not return to original state (-before +after):\n%s", diff)
	}
}

func TestAddFeatureSplicesAtRebuildGate(t *testing.T) {
	s, ids := newTestStore(t)
	a, b, c := ids.New(), ids.New(), ids.New()

	_ = s.Transact(OriginUser, func(tx *Txn) error { return tx.AddFeature(types.Feature{ID: a, Type: types.FeatureOrigin}) })
	_ = s.Transact(OriginUser, func(tx *Txn) error { return tx.AddFeature(types.Feature{ID: b, Type: types.FeatureOrigin}) })
	_ = s.Transact(OriginUser, func(tx *Txn) error { return tx.SetRebuildGate(&a) })
	_ = s.Transact(OriginUser, func(tx *Txn) error { return tx.AddFeature(types.Feature{ID: c, Type: types.FeatureOrigin}) })

	snap := s.Snapshot()
	idxA := snap.IndexOf(a)
	idxC := snap.IndexOf(c)
	idxB := snap.IndexOf(b)
	if idxC != idxA+1 {
		t.Fatalf("new feature should be spliced right after the gate: idxA=%d idxC=%d", idxA, idxC)
	}
	if idxB <= idxC {
		t.Fatalf("feature added before the gate was set should remain after the spliced feature: idxB=%d idxC=%d", idxB, idxC)
	}
}

func TestApplyUpdateRoundTrip(t *testing.T) {
	s1, ids := newTestStore(t)
	s2 := New(s1.Snapshot(), testLogger())

	var captured Update
	unsub := s1.OnUpdate(func(u Update) { captured = u })
	defer unsub()

	newID := ids.New()
	_ = s1.Transact(OriginUser, func(tx *Txn) error {
		return tx.AddFeature(types.Feature{ID: newID, Type: types.FeatureOrigin, Name: "new"})
	})

	if captured == nil {
		t.Fatal("expected an update to be emitted")
	}
	if err := s2.ApplyUpdate(captured); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	if diff := cmp.Diff(s1.Snapshot(), s2.Snapshot()); diff != "" {
		t.Fatalf("peer did not converge to sender's snapshot (-sender +peer):\n%s", diff)
	}
}

func TestApplyUpdateMalformedLeavesStoreIntact(t *testing.T) {
	s, _ := newTestStore(t)
	before := s.Snapshot()

	if err := s.ApplyUpdate(Update([]byte("not json"))); err == nil {
		t.Fatal("expected an error for malformed update")
	}

	after := s.Snapshot()
	if len(before.FeaturesByID) != len(after.FeaturesByID) {
		t.Fatal("malformed update corrupted local state")
	}
}

func TestApplyInitialSyncCommitsAsRemoteInFlight(t *testing.T) {
	s1, ids := newTestStore(t)
	s2 := New(s1.Snapshot(), testLogger())

	newID := ids.New()
	_ = s1.Transact(OriginUser, func(tx *Txn) error {
		return tx.AddFeature(types.Feature{ID: newID, Type: types.FeatureOrigin, Name: "new"})
	})
	update, err := SnapshotCodec{}.Encode(nil, s1.Snapshot())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var gotOrigin string
	unsub := s2.Subscribe(func(_ *types.DocSnapshot, _ ChangeSet, origin string) { gotOrigin = origin })
	defer unsub()

	if err := s2.ApplyInitialSync(update); err != nil {
		t.Fatalf("ApplyInitialSync: %v", err)
	}
	if gotOrigin != OriginRemoteInFlight {
		t.Fatalf("observed origin %q, want %q", gotOrigin, OriginRemoteInFlight)
	}

	if diff := cmp.Diff(s1.Snapshot(), s2.Snapshot()); diff != "" {
		t.Fatalf("peer did not converge to sender's snapshot after initial sync (-sender +peer):\n%s", diff)
	}
}

func TestOnUpdateDoesNotEchoRemoteInFlightCommits(t *testing.T) {
	s, _ := newTestStore(t)

	var calls int
	unsub := s.OnUpdate(func(Update) { calls++ })
	defer unsub()

	update, err := SnapshotCodec{}.Encode(nil, s.Snapshot())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := s.ApplyInitialSync(update); err != nil {
		t.Fatalf("ApplyInitialSync: %v", err)
	}

	if calls != 0 {
		t.Fatalf("a remote-in-flight commit must not be re-broadcast as a local update, got %d calls", calls)
	}
}
