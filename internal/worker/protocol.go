// Package worker implements the rebuild worker's message protocol: the
// JSON envelope exchanged between a UI thread and the engine's
// rebuild-worker isolate over a dedicated bi-directional byte channel. The
// envelope is a string discriminator plus a raw JSON payload, decoded
// per-type by the handler.
package worker

import (
	"encoding/json"

	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/refindex"
	"github.com/paramforge/engine/internal/rebuild"
	"github.com/paramforge/engine/internal/types"
)

// Inbound message types (UI → worker).
const (
	TypeInitSync       = "init-sync"
	TypeYjsInit        = "yjs-init"
	TypeYjsUpdate      = "yjs-update"
	TypePreviewExtrude = "preview-extrude"
	TypePreviewRevolve = "preview-revolve"
	TypeClearPreview   = "clear-preview"
	TypeExportSTL      = "export-stl"
	TypeExportSTEP     = "export-step"
	TypeExportJSON     = "export-json"
)

// Outbound message types (worker → UI).
const (
	TypeReady           = "ready"
	TypeRebuildStart    = "rebuild-start"
	TypeRebuildComplete = "rebuild-complete"
	TypeMesh            = "mesh"
	TypeSketchSolved    = "sketch-solved"
	TypePreviewError    = "preview-error"
	TypeError           = "error"
	TypeSTLExported     = "stl-exported"
	TypeSTEPExported    = "step-exported"
	TypeJSONExported    = "json-exported"
)

// Message is the wire envelope: Type selects how Payload is decoded.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(msgType string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// InitSyncPayload opens the replication channel at a UI-chosen logical
// port (meaningful only to the transport; opaque here).
type InitSyncPayload struct {
	Port int `json:"port"`
}

// YjsInitPayload/YjsUpdatePayload carry opaque CRDT-style bytes, handed
// straight through to docstore's Codec (internal/docstore/replication.go).
type YjsInitPayload struct {
	Bytes []byte `json:"bytes"`
}

type YjsUpdatePayload struct {
	Bytes []byte `json:"bytes"`
}

// PreviewExtrudePayload/PreviewRevolvePayload request an ad-hoc preview
// build against a throwaway kernel session that never mutates the
// persistent body map.
type PreviewExtrudePayload struct {
	SketchID  types.ID               `json:"sketchId"`
	Distance  float64                `json:"distance"`
	Direction types.ExtrudeDirection `json:"direction"`
	Op        types.ExtrudeOp        `json:"op"`
}

type PreviewRevolvePayload struct {
	SketchID types.ID        `json:"sketchId"`
	AxisID   types.ID        `json:"axis"`
	AngleDeg float64         `json:"angle"`
	Op       types.ExtrudeOp `json:"op"`
}

// ExportSTLPayload requests a binary or ASCII STL of every body in the last
// rebuild. Name is decoded but not used: the export is never scoped to one
// body.
type ExportSTLPayload struct {
	Binary bool   `json:"binary,omitempty"`
	Name   string `json:"name,omitempty"`
}

type ExportSTEPPayload struct {
	Name string `json:"name,omitempty"`
}

// WireMesh is the JSON-serializable projection of kernel.Mesh sent to the
// UI over Mesh{bodyId,mesh,color?}. kernel.Mesh itself carries no JSON tags
// since it is an internal kernel-boundary type, not a wire type.
type WireMesh struct {
	Positions []float64 `json:"positions"`
	Normals   []float64 `json:"normals"`
	Indices   []int     `json:"indices"`
	FaceMap   []int     `json:"faceMap"`
	Edges     [][2]int  `json:"edges"`
	EdgeMap   []int     `json:"edgeMap"`
}

func toWireMesh(m *kernel.Mesh) WireMesh {
	if m == nil {
		return WireMesh{}
	}
	return WireMesh{
		Positions: m.Positions,
		Normals:   m.Normals,
		Indices:   m.Indices,
		FaceMap:   m.FaceMap,
		Edges:     m.Edges,
		EdgeMap:   m.EdgeMap,
	}
}

// MeshMessage is the payload of an outbound "mesh" message.
type MeshMessage struct {
	BodyID types.ID `json:"bodyId"`
	Mesh   WireMesh `json:"mesh"`
	Color  string   `json:"color,omitempty"`
}

// RebuildCompletePayload is the payload of an outbound "rebuild-complete"
// message: every piece of a rebuild's output published together, so an
// observer always sees a consistent snapshot.
type RebuildCompletePayload struct {
	Bodies         map[types.ID]rebuild.BodyEntry   `json:"bodies"`
	FeatureStatus  map[types.ID]types.FeatureStatus `json:"featureStatus"`
	Errors         []*types.BuildError              `json:"errors,omitempty"`
	ReferenceIndex *refindex.Index                  `json:"referenceIndex,omitempty"`
}

// SketchSolvedPayload is the payload of an outbound "sketch-solved" message.
type SketchSolvedPayload struct {
	SketchID       types.ID                       `json:"sketchId"`
	Points         map[types.ID]types.SketchPoint `json:"points"`
	Status         kernel.SolveStatus             `json:"status"`
	PlaneTransform kernel.Frame                   `json:"planeTransform"`
	DOF            kernel.DOF                     `json:"dof,omitempty"`
}

// ErrorPayload is the payload of outbound "error"/"preview-error" messages.
type ErrorPayload struct {
	Message string `json:"message"`
}

// STLExportedPayload/STEPExportedPayload/JSONExportedPayload carry an
// export's result: a byte buffer for binary formats, a string for text
// ones.
type STLExportedPayload struct {
	Buffer  []byte `json:"buffer,omitempty"`
	Content string `json:"content,omitempty"`
}

type STEPExportedPayload struct {
	Buffer []byte `json:"buffer"`
}

type JSONExportedPayload struct {
	Content string `json:"content"`
}
