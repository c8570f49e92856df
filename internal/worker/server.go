package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/paramforge/engine/internal/docstore"
	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/rebuild"
	"github.com/paramforge/engine/internal/sketch"
	"github.com/paramforge/engine/internal/types"
)

// Server is the rebuild-worker side of the protocol: it owns the document
// store, the persistent rebuild engine/scheduler, and a factory for
// throwaway preview kernels, and translates between docstore/rebuild events
// and the wire Message stream.
type Server struct {
	store         *docstore.Store
	engine        *rebuild.Engine
	scheduler     *rebuild.Scheduler
	kernelFactory func() kernel.GeometryKernel
	logger        *slog.Logger

	mu         sync.Mutex
	lastResult *rebuild.RebuildResult
}

// NewServer constructs a Server. kernelFactory must return a fresh
// GeometryKernel instance each call; the engine owns one persistent instance
// for real rebuilds, and a fresh one is minted per preview request so
// preview sessions never share state with the body map. The engine's own
// kernel instance is initialized with bounded retry before NewServer
// returns; a failure here is fatal and leaves no half-initialized server
// behind.
func NewServer(ctx context.Context, store *docstore.Store, kernelFactory func() kernel.GeometryKernel, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	k := kernelFactory()
	if err := kernel.InitWithRetry(ctx, k); err != nil {
		return nil, fmt.Errorf("kernel init: %w", err)
	}
	engine := rebuild.New(k, logger)
	s := &Server{store: store, engine: engine, kernelFactory: kernelFactory, logger: logger}
	return s, nil
}

// Serve runs the message loop until conn.Recv returns an error (including
// io.EOF on a closed channel). It sends "ready" once the scheduler is armed,
// then dispatches every inbound message until the connection closes.
func (s *Server) Serve(conn *Conn) error {
	s.scheduler = rebuild.NewScheduler(s.engine, s.store, rebuild.DefaultDebounce,
		func() { _ = conn.SendTyped(TypeRebuildStart, struct{}{}) },
		func(res *rebuild.RebuildResult) { s.publish(conn, res) },
		s.logger)
	s.scheduler.Start()
	defer s.scheduler.Stop()

	if err := conn.SendTyped(TypeReady, struct{}{}); err != nil {
		return err
	}

	for {
		msg, err := conn.Recv()
		if err != nil {
			return err
		}
		if err := s.dispatch(conn, msg); err != nil {
			s.logger.Error("worker message handling failed", "type", msg.Type, "error", err)
			_ = conn.SendTyped(TypeError, ErrorPayload{Message: err.Error()})
		}
	}
}

func (s *Server) dispatch(conn *Conn, msg Message) error {
	switch msg.Type {
	case TypeInitSync:
		var p InitSyncPayload
		return decodeInto(msg, &p)

	case TypeYjsInit:
		var p YjsInitPayload
		if err := decodeInto(msg, &p); err != nil {
			return err
		}
		// The init payload is a peer's bulk catch-up state, not a
		// steady-state edit, so it is applied as remote-in-flight and does
		// not reset the rebuild debounce.
		return s.store.ApplyInitialSync(docstore.Update(p.Bytes))

	case TypeYjsUpdate:
		var p YjsUpdatePayload
		if err := decodeInto(msg, &p); err != nil {
			return err
		}
		return s.store.ApplyUpdate(docstore.Update(p.Bytes))

	case TypePreviewExtrude:
		var p PreviewExtrudePayload
		if err := decodeInto(msg, &p); err != nil {
			return err
		}
		return s.previewExtrude(conn, p)

	case TypePreviewRevolve:
		var p PreviewRevolvePayload
		if err := decodeInto(msg, &p); err != nil {
			return err
		}
		return s.previewRevolve(conn, p)

	case TypeClearPreview:
		return nil // stateless: previews never mutated anything to undo

	case TypeExportSTL:
		var p ExportSTLPayload
		if err := decodeInto(msg, &p); err != nil {
			return err
		}
		return s.exportSTL(conn, p)

	case TypeExportSTEP:
		var p ExportSTEPPayload
		if err := decodeInto(msg, &p); err != nil {
			return err
		}
		return s.exportSTEP(conn, p)

	case TypeExportJSON:
		return s.exportJSON(conn)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func decodeInto(msg Message, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return nil
}

// publish sends the rebuild-complete summary followed by one mesh message
// per surviving body, so consumers receive a rebuild's output as one
// logical event.
func (s *Server) publish(conn *Conn, res *rebuild.RebuildResult) {
	s.mu.Lock()
	s.lastResult = res
	s.mu.Unlock()

	_ = conn.SendTyped(TypeRebuildComplete, RebuildCompletePayload{
		Bodies:         res.Bodies,
		FeatureStatus:  res.FeatureStatus,
		Errors:         res.Errors,
		ReferenceIndex: res.ReferenceIndex,
	})

	for id, entry := range res.Bodies {
		mesh := res.Meshes[id]
		_ = conn.SendTyped(TypeMesh, MeshMessage{BodyID: id, Mesh: toWireMesh(mesh), Color: entry.Color})
	}

	for sketchID, sr := range res.SketchSolveResults {
		var plane kernel.Frame
		if sr.Profile != nil {
			plane = sr.Profile.Plane
		}
		_ = conn.SendTyped(TypeSketchSolved, SketchSolvedPayload{
			SketchID:       sketchID,
			Points:         sr.NewPoints,
			Status:         sr.Status,
			PlaneTransform: plane,
			DOF:            sr.DOF,
		})
	}
}

// previewExtrude solves the named sketch against a throwaway kernel (never
// the engine's own persistent one) and extrudes the result, reporting the
// preview mesh without touching the persistent body map.
func (s *Server) previewExtrude(conn *Conn, p PreviewExtrudePayload) error {
	_, f, plane, err := s.previewContext(p.SketchID)
	if err != nil {
		return s.previewError(conn, err)
	}

	k := s.kernelFactory()
	if err := kernel.InitWithRetry(context.Background(), k); err != nil {
		return s.previewError(conn, fmt.Errorf("preview kernel init: %w", err))
	}
	sr, err := sketch.Solve(k, plane, f.Sketch.Data)
	if err != nil || sr.Profile == nil {
		return s.previewError(conn, fmt.Errorf("preview extrude: sketch %s has no closed profile", p.SketchID))
	}

	dist := p.Distance
	if p.Direction == types.DirReverse {
		dist = -dist
	}
	bodyID, err := k.Extrude(sr.Profile, kernel.ExtrudeOpts{Distance: dist})
	if err != nil {
		return s.previewError(conn, err)
	}
	mesh, err := k.Tessellate(bodyID)
	if err != nil {
		return s.previewError(conn, err)
	}
	return conn.SendTyped(TypeMesh, MeshMessage{BodyID: p.SketchID, Mesh: toWireMesh(mesh)})
}

func (s *Server) previewRevolve(conn *Conn, p PreviewRevolvePayload) error {
	_, f, plane, err := s.previewContext(p.SketchID)
	if err != nil {
		return s.previewError(conn, err)
	}

	axisLine, ok := f.Sketch.Data.EntitiesByID[p.AxisID]
	if !ok {
		return s.previewError(conn, fmt.Errorf("preview revolve: axis %s not found in sketch %s", p.AxisID, p.SketchID))
	}

	k := s.kernelFactory()
	if err := kernel.InitWithRetry(context.Background(), k); err != nil {
		return s.previewError(conn, fmt.Errorf("preview kernel init: %w", err))
	}
	sr, err := sketch.Solve(k, plane, f.Sketch.Data)
	if err != nil || sr.Profile == nil {
		return s.previewError(conn, fmt.Errorf("preview revolve: sketch %s has no closed profile", p.SketchID))
	}

	start := f.Sketch.Data.PointsByID[axisLine.Start]
	end := f.Sketch.Data.PointsByID[axisLine.End]
	axisOrigin := planeToWorld(plane, start.X, start.Y)
	axisDir := normalize3(sub3(planeToWorld(plane, end.X, end.Y), axisOrigin))

	bodyID, err := k.Revolve(sr.Profile, kernel.RevolveOpts{
		AxisOrigin:    axisOrigin,
		AxisDirection: axisDir,
		AngleRad:      p.AngleDeg * math.Pi / 180,
	})
	if err != nil {
		return s.previewError(conn, err)
	}
	mesh, err := k.Tessellate(bodyID)
	if err != nil {
		return s.previewError(conn, err)
	}
	return conn.SendTyped(TypeMesh, MeshMessage{BodyID: p.SketchID, Mesh: toWireMesh(mesh)})
}

func (s *Server) previewContext(sketchID types.ID) (*types.DocSnapshot, types.Feature, kernel.Frame, error) {
	snap := s.store.Snapshot()
	f, ok := snap.FeaturesByID[sketchID]
	if !ok || f.Type != types.FeatureSketch || f.Sketch == nil {
		return nil, types.Feature{}, kernel.Frame{}, fmt.Errorf("sketch %s not found", sketchID)
	}

	s.mu.Lock()
	last := s.lastResult
	s.mu.Unlock()
	if last == nil {
		return nil, types.Feature{}, kernel.Frame{}, fmt.Errorf("preview requires at least one completed rebuild")
	}
	plane, err := rebuild.ResolveSketchPlane(f, last.Frames, last.Bodies, s.engine.Kernel())
	if err != nil {
		return nil, types.Feature{}, kernel.Frame{}, err
	}
	return snap, f, plane, nil
}

func (s *Server) previewError(conn *Conn, err error) error {
	return conn.SendTyped(TypePreviewError, ErrorPayload{Message: err.Error()})
}

func (s *Server) exportSTL(conn *Conn, p ExportSTLPayload) error {
	buf, err := s.exportAllBodies(func(k kernel.GeometryKernel, id kernel.BodyID) ([]byte, error) {
		return k.ExportSTL(id, p.Binary)
	})
	if err != nil {
		return conn.SendTyped(TypeError, ErrorPayload{Message: err.Error()})
	}
	if p.Binary {
		return conn.SendTyped(TypeSTLExported, STLExportedPayload{Buffer: buf})
	}
	return conn.SendTyped(TypeSTLExported, STLExportedPayload{Content: string(buf)})
}

func (s *Server) exportSTEP(conn *Conn, _ ExportSTEPPayload) error {
	buf, err := s.exportAllBodies(func(k kernel.GeometryKernel, id kernel.BodyID) ([]byte, error) {
		return k.ExportSTEP(id)
	})
	if err != nil {
		return conn.SendTyped(TypeError, ErrorPayload{Message: err.Error()})
	}
	return conn.SendTyped(TypeSTEPExported, STEPExportedPayload{Buffer: buf})
}

// exportAllBodies concatenates the export of every body in the last rebuild
// result. The fake kernel's exporters are self-contained per-body documents;
// concatenation is adequate for a single-kernel-session export where every
// body id still resolves against the engine's live kernel.
func (s *Server) exportAllBodies(export func(kernel.GeometryKernel, kernel.BodyID) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	last := s.lastResult
	s.mu.Unlock()
	if last == nil {
		return nil, fmt.Errorf("export requires at least one completed rebuild")
	}

	var out []byte
	for _, entry := range last.Bodies {
		b, err := export(s.engine.Kernel(), entry.BodyID)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func planeToWorld(f kernel.Frame, x, y float64) [3]float64 {
	return [3]float64{
		f.Origin[0] + x*f.XDir[0] + y*f.YDir[0],
		f.Origin[1] + x*f.XDir[1] + y*f.YDir[1],
		f.Origin[2] + x*f.XDir[2] + y*f.YDir[2],
	}
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func normalize3(v [3]float64) [3]float64 {
	l := v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	if l == 0 {
		return v
	}
	l = math.Sqrt(l)
	return [3]float64{v[0] / l, v[1] / l, v[2] / l}
}

func (s *Server) exportJSON(conn *Conn) error {
	snap := s.store.Snapshot()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return conn.SendTyped(TypeError, ErrorPayload{Message: err.Error()})
	}
	return conn.SendTyped(TypeJSONExported, JSONExportedPayload{Content: string(b)})
}
