package worker

import (
	"context"
	"encoding/json"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/paramforge/engine/internal/docstore"
	"github.com/paramforge/engine/internal/idgen"
	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/kernel/fake"
	"github.com/paramforge/engine/internal/types"
)

// buildDocWithOneExtrude seeds a document with a closed rectangular sketch on
// the XY plane and a single blind extrude, the minimum a rebuild needs to
// produce a body and mesh.
func buildDocWithOneExtrude(t *testing.T) *types.DocSnapshot {
	t.Helper()
	ids := idgen.NewService()
	snap := docstore.NewDocument("test", types.UnitsMM, ids)
	xyID := snap.FeatureOrder[1]

	p1, p2, p3, p4 := ids.New(), ids.New(), ids.New(), ids.New()
	l1, l2, l3, l4 := ids.New(), ids.New(), ids.New(), ids.New()
	data := types.NewSketchData()
	data.PointsByID[p1] = types.SketchPoint{ID: p1, X: 0, Y: 0, Fixed: true}
	data.PointsByID[p2] = types.SketchPoint{ID: p2, X: 10, Y: 0, Fixed: true}
	data.PointsByID[p3] = types.SketchPoint{ID: p3, X: 10, Y: 10, Fixed: true}
	data.PointsByID[p4] = types.SketchPoint{ID: p4, X: 0, Y: 10, Fixed: true}
	data.EntitiesByID[l1] = types.SketchEntity{ID: l1, Kind: types.EntityLine, Start: p1, End: p2}
	data.EntitiesByID[l2] = types.SketchEntity{ID: l2, Kind: types.EntityLine, Start: p2, End: p3}
	data.EntitiesByID[l3] = types.SketchEntity{ID: l3, Kind: types.EntityLine, Start: p3, End: p4}
	data.EntitiesByID[l4] = types.SketchEntity{ID: l4, Kind: types.EntityLine, Start: p4, End: p1}

	sketchID := ids.New()
	snap.FeaturesByID[sketchID] = types.Feature{
		ID:   sketchID,
		Type: types.FeatureSketch,
		Sketch: &types.SketchDef{
			Plane: types.SketchPlaneRef{Kind: types.SketchPlaneFeatureID, PlaneFeatureID: xyID},
			Data:  data,
		},
	}
	snap.FeatureOrder = append(snap.FeatureOrder, sketchID)

	dist := 5.0
	extrudeID := ids.New()
	snap.FeaturesByID[extrudeID] = types.Feature{
		ID:   extrudeID,
		Type: types.FeatureExtrude,
		Extrude: &types.ExtrudeDef{
			SketchID: sketchID,
			Op:       types.OpAdd,
			Extent:   types.ExtentBlind,
			Distance: &dist,
		},
	}
	snap.FeatureOrder = append(snap.FeatureOrder, extrudeID)
	return snap
}

func recvUntil(t *testing.T, conn *Conn, msgType string, deadline time.Duration) Message {
	t.Helper()
	done := make(chan struct{})
	var got Message
	var err error
	go func() {
		defer close(done)
		for {
			var m Message
			m, err = conn.Recv()
			if err != nil {
				return
			}
			if m.Type == msgType {
				got = m
				return
			}
		}
	}()

	select {
	case <-done:
		if err != nil {
			t.Fatalf("recv failed waiting for %q: %v", msgType, err)
		}
		return got
	case <-time.After(deadline):
		t.Fatalf("timed out waiting for message type %q", msgType)
		return Message{}
	}
}

func TestServeSendsReadyThenRebuildComplete(t *testing.T) {
	snap := buildDocWithOneExtrude(t)
	store := docstore.New(snap, nil)

	srv, err := NewServer(context.Background(), store, func() kernel.GeometryKernel { return fake.NewKernel() }, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()
	serverConn := NewConn(serverIn, serverOut)
	clientConn := NewConn(clientIn, clientOut)

	go func() { _ = srv.Serve(serverConn) }()

	ready := recvUntil(t, clientConn, TypeReady, time.Second)
	if ready.Type != TypeReady {
		t.Fatalf("first message type = %q, want %q", ready.Type, TypeReady)
	}

	complete := recvUntil(t, clientConn, TypeRebuildComplete, time.Second)
	var payload RebuildCompletePayload
	if err := decodeInto(complete, &payload); err != nil {
		t.Fatalf("decode rebuild-complete: %v", err)
	}
	if len(payload.Bodies) != 1 {
		t.Fatalf("expected the seeded extrude to produce one body, got %d", len(payload.Bodies))
	}
	if len(payload.Errors) != 0 {
		t.Fatalf("unexpected rebuild errors: %v", payload.Errors)
	}
}

func TestServeExportJSONRoundTripsDocument(t *testing.T) {
	snap := buildDocWithOneExtrude(t)
	store := docstore.New(snap, nil)

	srv, err := NewServer(context.Background(), store, func() kernel.GeometryKernel { return fake.NewKernel() }, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()
	serverConn := NewConn(serverIn, serverOut)
	clientConn := NewConn(clientIn, clientOut)

	go func() { _ = srv.Serve(serverConn) }()
	recvUntil(t, clientConn, TypeReady, time.Second)

	if err := clientConn.SendTyped(TypeExportJSON, struct{}{}); err != nil {
		t.Fatalf("send export-json: %v", err)
	}

	exported := recvUntil(t, clientConn, TypeJSONExported, time.Second)
	var payload JSONExportedPayload
	if err := decodeInto(exported, &payload); err != nil {
		t.Fatalf("decode json-exported: %v", err)
	}
	if !strings.Contains(payload.Content, `"featuresById"`) {
		t.Fatal("exported JSON does not look like a document snapshot")
	}
	var decoded types.DocSnapshot
	if err := json.Unmarshal([]byte(payload.Content), &decoded); err != nil {
		t.Fatalf("exported JSON does not decode as a document snapshot: %v", err)
	}
	if !reflect.DeepEqual(decoded.FeatureOrder, snap.FeatureOrder) {
		t.Fatalf("exported featureOrder = %v, want %v", decoded.FeatureOrder, snap.FeatureOrder)
	}
}

func TestNewServerFailsWhenKernelInitAlwaysErrors(t *testing.T) {
	store := docstore.New(buildDocWithOneExtrude(t), nil)
	_, err := NewServer(context.Background(), store, func() kernel.GeometryKernel { return alwaysFailingKernel{} }, nil)
	if err == nil {
		t.Fatal("expected NewServer to fail when kernel init always errors")
	}
}

// alwaysFailingKernel satisfies kernel.GeometryKernel with a permanently
// failing Init, used to exercise InitWithRetry's bounded-retries-then-fail
// path without waiting on a real kernel's startup sequence.
type alwaysFailingKernel struct {
	kernel.GeometryKernel
}

func (alwaysFailingKernel) Init(_ context.Context) error {
	return errAlwaysFails
}

var errAlwaysFails = &initError{"kernel unavailable"}

type initError struct{ msg string }

func (e *initError) Error() string { return e.msg }
