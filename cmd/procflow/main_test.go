package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/config"
	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/errors"
	"github.com/logflow/procflow/pkg/eventlog"
)

const sampleLog = `[
  {"caseId": "C1", "activity": "A", "timestamp": "2025-01-01T09:00:00Z", "department": "Fin"},
  {"caseId": "C1", "activity": "B", "timestamp": "2025-01-01T09:10:00Z", "department": "Fin"},
  {"caseId": "C1", "activity": "C", "timestamp": "2025-01-01T09:20:00Z", "department": "Fin"},
  {"caseId": "C2", "activity": "A", "timestamp": "2025-01-01T10:00:00Z", "department": "Legal"},
  {"caseId": "C2", "activity": "D", "timestamp": "2025-01-01T10:10:00Z", "department": "Legal"},
  {"caseId": "C2", "activity": "C", "timestamp": "2025-01-01T10:20:00Z", "department": "Legal"}
]`

func writeLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(sampleLog), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the CLI with an isolated home directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseLayer(t *testing.T) {
	tests := []struct {
		spec string
		want decouple.Layer
	}{
		{"A=department", decouple.Layer{Target: decouple.AtNode("A"), Selector: attr.Field("department"), Mode: decouple.Downstream}},
		{"A__B=resource,local", decouple.Layer{Target: decouple.AtEdge("A__B"), Selector: attr.Field("resource"), Mode: decouple.NodeLocal}},
		{"B=meta.region,label=Region", decouple.Layer{Target: decouple.AtNode("B"), Selector: attr.Path("meta.region"), Label: "Region", Mode: decouple.Downstream}},
	}
	for _, tt := range tests {
		got, err := parseLayer(tt.spec)
		if err != nil {
			t.Errorf("parseLayer(%q) error = %v", tt.spec, err)
			continue
		}
		if !got.SameAs(tt.want) || got.Label != tt.want.Label || got.Mode != tt.want.Mode {
			t.Errorf("parseLayer(%q) = %+v, want %+v", tt.spec, got, tt.want)
		}
	}

	for _, bad := range []string{"A", "=department", "A=", "A=department,sideways"} {
		if _, err := parseLayer(bad); !errors.HasCode(err, errors.CodeInvalidLayer) {
			t.Errorf("parseLayer(%q) error = %v, want %s", bad, err, errors.CodeInvalidLayer)
		}
	}
}

func TestParseLayers_Labels(t *testing.T) {
	single, err := parseLayers([]string{"A=department"})
	if err != nil {
		t.Fatal(err)
	}
	if single[0].Label != "" {
		t.Errorf("single layer label = %q, want bare", single[0].Label)
	}

	nested, err := parseLayers([]string{"A=department", "B=resource,label=Who"})
	if err != nil {
		t.Fatal(err)
	}
	if nested[0].Label != "Department" || nested[1].Label != "Who" {
		t.Errorf("labels = %q, %q", nested[0].Label, nested[1].Label)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"nonsense", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoaderOptions(t *testing.T) {
	o := &rootOptions{manager: config.NewManager(), format: "ndjson", delimiter: "tab"}
	opts, err := o.loaderOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Format != eventlog.FormatJSONL || opts.Delimiter != '\t' {
		t.Errorf("loaderOptions() = %+v", opts)
	}

	o.format = "avro"
	if _, err := o.loaderOptions(); !errors.HasCode(err, errors.CodeUnsupportedFormat) {
		t.Errorf("loaderOptions(avro) error = %v", err)
	}
}

func TestSummaryCmd(t *testing.T) {
	out, err := execute(t, "summary", "--edges", writeLog(t))
	if err != nil {
		t.Fatalf("summary error = %v", err)
	}
	for _, want := range []string{"LOG SUMMARY", "Cases", "10m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output lacks %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "summary"); err == nil {
		t.Error("summary without input should fail")
	}
	if _, err := execute(t, "summary", "--node", "Z", writeLog(t)); err == nil {
		t.Error("summary --node Z should fail")
	}
}

func TestWhereFilter(t *testing.T) {
	out, err := execute(t, "summary", "--where", "department=Legal", writeLog(t))
	if err != nil {
		t.Fatalf("summary --where error = %v", err)
	}
	if !regexp.MustCompile(`Cases:\s+1\n`).MatchString(out) {
		t.Errorf("filtered summary:\n%s", out)
	}

	out, err = execute(t, "summary", "--where", "activity=A", "--where", "activity=D", writeLog(t))
	if err != nil {
		t.Fatalf("summary with repeated --where error = %v", err)
	}
	if !regexp.MustCompile(`Cases:\s+1\n`).MatchString(out) {
		t.Errorf("repeated column should AND both values:\n%s", out)
	}

	if _, err := execute(t, "summary", "--where", "department", writeLog(t));!errors.HasCode(err, errors.CodeInvalidFormat) {
		t.Errorf("bad --where error = %v", err)
	}
}

func TestDecoupleCmd(t *testing.T) {
	path := writeLog(t)

	out, err := execute(t, "decouple", "--layer", "A=department", path)
	if err != nil {
		t.Fatalf("decouple error = %v", err)
	}
	if !strings.Contains(out, "Fin, Legal") {
		t.Errorf("decouple output lacks group keys:\n%s", out)
	}

	out, err = execute(t, "decouple", "--layer", "A=department", "--reset-below", "START", path)
	if err != nil {
		t.Fatalf("decouple --reset-below error = %v", err)
	}
	if !strings.Contains(out, "no decoupled edges") {
		t.Errorf("reset output:\n%s", out)
	}

	out, err = execute(t, "decouple", "--values", "A=department", path)
	if err != nil {
		t.Fatalf("decouple --values error = %v", err)
	}
	if !strings.Contains(out, "Fin") || !strings.Contains(out, "Legal") {
		t.Errorf("values output:\n%s", out)
	}
}

func TestVisibleCmd(t *testing.T) {
	out, err := execute(t, "visible", "--expand", "A", writeLog(t))
	if err != nil {
		t.Fatalf("visible error = %v", err)
	}
	for _, want := range []string{"START__A", "A__B", "A__D", "B__C"} {
		if !strings.Contains(out, want) {
			t.Errorf("visible output lacks %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "visible", "--expand", "Z", writeLog(t)); !errors.HasCode(err, errors.CodeUnknownNode) {
		t.Errorf("visible --expand Z error = %v", err)
	}
}

func TestExportCmd_JSON(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "graph.json")
	if _, err := execute(t, "export", "--step", "3", "--layer", "A=department", "--omit-traversals", "-o", dst, writeLog(t)); err != nil {
		t.Fatalf("export error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	var snap struct {
		Decoupled struct {
			GroupEdges []json.RawMessage `json:"groupEdges"`
		} `json:"decoupled"`
		Visible struct {
			Edges []string `json:"visibleEdges"`
		} `json:"visible"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("snapshot is not JSON: %v", err)
	}
	if len(snap.Decoupled.GroupEdges) != 4 || len(snap.Visible.Edges) != 5 {
		t.Errorf("snapshot = %d group edges, %d visible edges", len(snap.Decoupled.GroupEdges), len(snap.Visible.Edges))
	}
}

func TestExportCmd_DOT(t *testing.T) {
	out, err := execute(t, "export", "--format", "dot", "--all", writeLog(t))
	if err != nil {
		t.Fatalf("export dot error = %v", err)
	}
	if !strings.HasPrefix(out, "digraph G {") || !strings.Contains(out, `"A" -> "D"`) {
		t.Errorf("dot output:\n%s", out)
	}

	if _, err := execute(t, "export", "--format", "gif", writeLog(t)); err == nil {
		t.Error("unknown export format should fail")
	}
}

func TestConfigCmd(t *testing.T) {
	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "top_variants: 6") {
		t.Errorf("config show:\n%s", out)
	}

	if _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config", "show"); !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("missing --config error = %v", err)
	}
}
