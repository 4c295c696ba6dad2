package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"externaltypes/internal/core/errors"
	"externaltypes/internal/core/ports"
	"externaltypes/internal/engine/cargo"
	"externaltypes/internal/ui/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `[package]
name = "test-crate"
version = "0.1.0"
`

func fixturePath(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "engine", "rustdoc", "testdata", "test_crate.json"))
	require.NoError(t, err)
	return path
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(stdout, stderr io.Writer, opts ...ServiceOption) *Service {
	base := []ServiceOption{
		WithLogger(quietLogger()),
		WithOutput(stdout, stderr),
		WithPrinterOptions(report.WithColor(false)),
	}
	return NewService(append(base, opts...)...)
}

func TestRunWithDocJSON(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)

	var stdout, stderr bytes.Buffer
	outcome, err := newTestService(&stdout, &stderr).Run(context.Background(), Options{
		ManifestPath: manifest,
		DocJSON:      fixturePath(t),
	})
	require.NoError(t, err)

	assert.Equal(t, 7, outcome.Errors)
	assert.Equal(t, 0, outcome.Warnings)
	assert.Equal(t, report.FormatErrors, outcome.Format)
	assert.True(t, outcome.Failed())
	assert.Contains(t, stdout.String(), "error: Unapproved external type `external_lib::SomeStruct` referenced in public API")
	assert.Contains(t, stdout.String(), "7 errors, 0 warnings emitted")
	assert.Contains(t, stderr.String(), "Examining all public types...")
	assert.NotContains(t, stderr.String(), "Running rustdoc")
}

func TestRunUsesManifestMetadata(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest+`
[package.metadata.cargo_check_external_types]
allowed_external_types = ["external_lib::*"]
`)

	var stdout bytes.Buffer
	outcome, err := newTestService(&stdout, io.Discard).Run(context.Background(), Options{
		ManifestPath: manifest,
		DocJSON:      fixturePath(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Errors)
	assert.False(t, outcome.Failed())
	assert.Empty(t, stdout.String())
}

func TestRunExplicitConfigWinsOverManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest+`
[package.metadata.cargo_check_external_types]
allowed_external_types = ["external_lib::*"]
`)
	cfg := writeFile(t, filepath.Join(dir, "external-types.yaml"), "allowed_external_types:\n  - external_lib::SomeStruct\n  - other_lib::*\n")

	var stdout bytes.Buffer
	outcome, err := newTestService(&stdout, io.Discard).Run(context.Background(), Options{
		ManifestPath: manifest,
		ConfigPath:   cfg,
		DocJSON:      fixturePath(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, outcome.Errors)
	assert.Equal(t, 1, outcome.Warnings)
	assert.Contains(t, stdout.String(), "Approved external type `other_lib::*` wasn't referenced in public API")
}

func TestRunMarkdownTableDoesNotFail(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)

	var stdout bytes.Buffer
	outcome, err := newTestService(&stdout, io.Discard).Run(context.Background(), Options{
		ManifestPath: manifest,
		DocJSON:      fixturePath(t),
		Format:       report.FormatMarkdownTable,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, outcome.Errors)
	assert.False(t, outcome.Failed())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2+7)
	assert.Equal(t, "| Crate | Type | Used In |", lines[0])
	for _, line := range lines[2:] {
		assert.True(t, strings.HasPrefix(line, "| external_lib | external_lib::"), line)
	}
}

func TestRunSARIF(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)

	var stdout bytes.Buffer
	outcome, err := newTestService(&stdout, io.Discard).Run(context.Background(), Options{
		ManifestPath: manifest,
		DocJSON:      fixturePath(t),
		Format:       report.FormatSARIF,
	})
	require.NoError(t, err)
	assert.False(t, outcome.Failed())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc["version"])
}

func TestRunWritesMetricsFile(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)
	metricsFile := filepath.Join(dir, "metrics", "audit.prom")

	_, err := newTestService(io.Discard, io.Discard).Run(context.Background(), Options{
		ManifestPath: manifest,
		DocJSON:      fixturePath(t),
		MetricsFile:  metricsFile,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "check_external_types_phase_seconds")
	assert.Contains(t, string(data), `check_external_types_findings_total{kind="unapproved_external_type_ref"} 7`)
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	svc := newTestService(io.Discard, io.Discard)

	_, err := svc.Run(context.Background(), Options{Format: report.Format("xml")})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
	assert.ErrorContains(t, err, "invalid output format: xml")

	_, err = svc.Run(context.Background(), Options{
		Features: cargo.FeatureOptions{AllFeatures: true, NoDefaultFeatures: true},
	})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestRunReportsBadDocJSON(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)
	doc := writeFile(t, filepath.Join(dir, "broken.json"), "{")

	_, err := newTestService(io.Discard, io.Discard).Run(context.Background(), Options{
		ManifestPath: manifest,
		DocJSON:      doc,
	})
	require.Error(t, err)
}

type fakeBuilder struct {
	out  ports.DocOutput
	err  error
	reqs []ports.DocRequest
}

func (f *fakeBuilder) Build(_ context.Context, req ports.DocRequest) (ports.DocOutput, error) {
	f.reqs = append(f.reqs, req)
	return f.out, f.err
}

func TestRunBuildsDocs(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)
	builder := &fakeBuilder{out: ports.DocOutput{JSONPath: fixturePath(t), WorkspaceRoot: dir, CrateDir: dir}}

	var stderr bytes.Buffer
	features := cargo.FeatureOptions{NoDefaultFeatures: true, Features: []string{"serde"}}
	outcome, err := newTestService(io.Discard, &stderr, WithDocBuilder(builder)).Run(context.Background(), Options{
		ManifestPath: manifest,
		Features:     features,
		Target:       "wasm32-unknown-unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, outcome.Errors)

	require.Len(t, builder.reqs, 1)
	assert.Equal(t, ports.DocRequest{ManifestPath: manifest, Features: features, Target: "wasm32-unknown-unknown"}, builder.reqs[0])
	assert.Contains(t, stderr.String(), "Running rustdoc to produce json doc output...\nExamining all public types...\n")
}

func TestRunPropagatesBuildFailure(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)
	builder := &fakeBuilder{err: errors.New(errors.CodeToolchain, "rustdoc exploded")}

	_, err := newTestService(io.Discard, io.Discard, WithDocBuilder(builder)).Run(context.Background(), Options{ManifestPath: manifest})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeToolchain))
	assert.Contains(t, err.Error(), "operation:rustdoc")
}

func TestCargoDocBuilder(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)
	target := filepath.Join(dir, "target")
	root := "path+file://" + dir + "#test-crate@0.1.0"

	metadata, err := json.Marshal(map[string]any{
		"packages": []map[string]any{{
			"name":          "test-crate",
			"version":       "0.1.0",
			"id":            root,
			"manifest_path": manifest,
			"targets":       []map[string]any{{"name": "test-crate", "kind": []string{"lib"}, "src_path": filepath.Join(dir, "src", "lib.rs")}},
		}},
		"workspace_members": []string{root},
		"resolve":           map[string]any{"root": root, "nodes": []map[string]any{{"id": root, "features": []string{}}}},
		"target_directory":  target,
		"workspace_root":    dir,
		"version":           1,
	})
	require.NoError(t, err)

	var calls [][]string
	runner := func(_ context.Context, cwd, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{cwd, name}, args...))
		if args[0] == "metadata" {
			return metadata, nil
		}
		writeFile(t, filepath.Join(target, "doc", "test_crate.json"), "{}")
		return nil, nil
	}

	out, err := CargoDocBuilder{Runner: runner}.Build(context.Background(), ports.DocRequest{ManifestPath: manifest})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target, "doc", "test_crate.json"), out.JSONPath)
	assert.Equal(t, dir, out.WorkspaceRoot)
	assert.Equal(t, dir, out.CrateDir)

	require.Len(t, calls, 2)
	assert.Equal(t, []string{"", "cargo", "metadata", "--format-version", "1", "--manifest-path", manifest}, calls[0])
	assert.Equal(t, dir, calls[1][0])
	assert.Equal(t, "+nightly", calls[1][2])
}

func TestWatchPaths(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "doc json with manifest and config",
			opts: Options{DocJSON: "/c/doc.json", ManifestPath: "/c/Cargo.toml", ConfigPath: "/c/types.toml"},
			want: []string{"/c/doc.json", "/c/Cargo.toml", "/c/types.toml"},
		},
		{
			name: "crate directory",
			opts: Options{ManifestPath: "/c/Cargo.toml"},
			want: []string{"/c"},
		},
		{
			name: "nothing",
			opts: Options{},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, watchPaths(tt.opts))
		})
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchRerunsOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, filepath.Join(dir, "Cargo.toml"), testManifest)
	cfg := writeFile(t, filepath.Join(dir, "external-types.toml"), "allowed_external_types = []\n")
	fixture, err := os.ReadFile(fixturePath(t))
	require.NoError(t, err)
	doc := writeFile(t, filepath.Join(dir, "test_crate.json"), string(fixture))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout := &syncBuffer{}
	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := newTestService(stdout, io.Discard).Run(ctx, Options{
			ManifestPath:  manifest,
			ConfigPath:    cfg,
			DocJSON:       doc,
			Watch:         true,
			WatchDebounce: 20 * time.Millisecond,
		})
		done <- result{outcome, err}
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "7 errors, 0 warnings emitted")
	}, 5*time.Second, 20*time.Millisecond)
	// Give the watcher time to register before editing.
	time.Sleep(200 * time.Millisecond)

	writeFile(t, cfg, "allowed_external_types = [\"external_lib::SomeStruct\"]\n")
	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "5 errors, 0 warnings emitted")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, 5, res.outcome.Errors)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchNeedsSomethingToWatch(t *testing.T) {
	builder := &fakeBuilder{err: errors.New(errors.CodeToolchain, "no cargo")}
	_, err := newTestService(io.Discard, io.Discard, WithDocBuilder(builder)).watch(context.Background(), Options{Format: report.FormatErrors})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestWorkspaceRootFor(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	root, err := workspaceRootFor("")
	require.NoError(t, err)
	assert.Equal(t, wd, root)

	root, err = workspaceRootFor(filepath.Join("crate", "Cargo.toml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "crate"), root)

	root, err = workspaceRootFor("/abs/crate/Cargo.toml")
	require.NoError(t, err)
	assert.Equal(t, "/abs/crate", root)
}
