package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xela07ax/perfdash/internal/render"
)

func TestOutputFormat(t *testing.T) {
	cases := []struct {
		flag, output string
		want         render.Format
	}{
		{"", "chart.png", render.FormatPNG},
		{"", "out/CHART.SVG", render.FormatSVG},
		{"svg", "chart.png", render.FormatSVG},
		{"", "-", render.FormatPNG},
	}
	for _, tc := range cases {
		got, err := outputFormat(tc.flag, tc.output)
		if err != nil || got != tc.want {
			t.Errorf("outputFormat(%q, %q) = %v, %v; want %v", tc.flag, tc.output, got, err, tc.want)
		}
	}
	if _, err := outputFormat("jpeg", "chart.jpg"); err == nil {
		t.Error("expected error for jpeg")
	}
}

func TestRunRenderDemo(t *testing.T) {
	t.Chdir(t.TempDir())

	out := filepath.Join(t.TempDir(), "home.svg")
	err := runRender(context.Background(), "", renderOptions{label: "home", output: out, demo: true}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("runRender: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Error("output is not an SVG document")
	}
}

func TestRunRenderRejectsInvertedRange(t *testing.T) {
	t.Chdir(t.TempDir())

	err := runRender(context.Background(), "", renderOptions{from: "02-10-2018", to: "01-01-2018", demo: true, output: "-"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an error for from after to")
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := buildRootCmd()
	for _, name := range []string{"serve", "render"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}
