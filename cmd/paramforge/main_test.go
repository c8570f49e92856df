package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paramforge/engine/internal/docstore"
	"github.com/paramforge/engine/internal/idgen"
	"github.com/paramforge/engine/internal/types"
)

// writeTestDocument seeds a fresh document with one closed sketch and one
// blind extrude, marshals it to JSON, and writes it to a temp file, giving
// every subcommand something non-trivial to rebuild.
func writeTestDocument(t *testing.T) string {
	t.Helper()
	ids := idgen.NewService()
	snap := docstore.NewDocument("bracket", types.UnitsMM, ids)
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
		Name: "Sketch1",
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
		Name: "Extrude1",
		Extrude: &types.ExtrudeDef{
			SketchID: sketchID,
			Op:       types.OpAdd,
			Extent:   types.ExtentBlind,
			Distance: &dist,
		},
	}
	snap.FeatureOrder = append(snap.FeatureOrder, extrudeID)

	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}

	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// runCLI executes rootCmd with args, resetting the global flag state the
// persistent flags write into so one test's flags can't leak into the next
// (rootCmd and its flag vars are package-level, and every test case
// re-executes the same rootCmd).
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	configPath = ""
	forceColor = false

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestLoadCommandSummarizesDocument(t *testing.T) {
	path := writeTestDocument(t)
	out, err := runCLI(t, "load", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(out, "bracket") || !strings.Contains(out, "features:") {
		t.Fatalf("load output missing summary fields:\n%s", out)
	}
}

func TestLoadCommandJSONOutputIsValidDocument(t *testing.T) {
	path := writeTestDocument(t)
	out, err := runCLI(t, "load", "--json", path)
	if err != nil {
		t.Fatalf("load --json: %v", err)
	}

	var snap types.DocSnapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("load --json produced invalid JSON: %v", err)
	}
	if snap.Meta.Name != "bracket" {
		t.Fatalf("document name = %q, want %q", snap.Meta.Name, "bracket")
	}
}

func TestLoadCommandRejectsMissingFile(t *testing.T) {
	if _, err := runCLI(t, "load", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected load of a missing file to fail")
	}
}

func TestRebuildCommandReportsOneComputedBody(t *testing.T) {
	path := writeTestDocument(t)
	out, err := runCLI(t, "rebuild", path)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !strings.Contains(out, "bodies") {
		t.Fatalf("rebuild output missing body summary:\n%s", out)
	}
	if !strings.Contains(out, " 1 bodies, 0 errors") {
		t.Fatalf("rebuild output does not report exactly one body and no errors:\n%s", out)
	}
	if !strings.Contains(out, string(types.StatusComputed)) {
		t.Fatalf("rebuild output lists no computed feature:\n%s", out)
	}
}

func TestTreeCommandListsAllFeatures(t *testing.T) {
	path := writeTestDocument(t)
	out, err := runCLI(t, "tree", path)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if !strings.Contains(out, "Sketch1") || !strings.Contains(out, "Extrude1") {
		t.Fatalf("tree output missing features:\n%s", out)
	}
}

func TestExportJSONCommandWritesValidatedDocument(t *testing.T) {
	path := writeTestDocument(t)
	outPath := filepath.Join(t.TempDir(), "out.json")
	if _, err := runCLI(t, "export-json", path, outPath); err != nil {
		t.Fatalf("export-json: %v", err)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var snap types.DocSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("exported file is not a valid document: %v", err)
	}
	if snap.Meta.Name != "bracket" {
		t.Fatalf("document name = %q, want %q", snap.Meta.Name, "bracket")
	}
}

func TestConfigInitThenShowRoundTrips(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "paramforge.toml")
	if _, err := runCLI(t, "config", "init", cfgPath); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config file was not written: %v", err)
	}

	out, err := runCLI(t, "config", "show", "--config", cfgPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "mm") {
		t.Fatalf("config show output missing units:\n%s", out)
	}
}
