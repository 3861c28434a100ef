package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"s3batch/pkg/state"
)

func baseConfig(t *testing.T, sources []string) *EngineConfig {
	t.Helper()
	return &EngineConfig{
		Direction:   state.DirectionUpload,
		Sources:     sources,
		Destination: "s3://bucket/pre",
		StateDir:    t.TempDir(),
		NoProgress:  true,
		Out:         &bytes.Buffer{},
	}
}

func TestRunUploadsAllAndClearsState(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "f1.bin", "1")
	f2 := writeFile(t, dir, "f2.bin", "22")
	cfg := baseConfig(t, []string{f1, f2})
	out := &bytes.Buffer{}
	cfg.Out = out

	ft := &listTransport{}
	if err := RunWith(context.Background(), cfg, ft, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(ft.copies) != 2 {
		t.Fatalf("expected 2 transfers, got %v", ft.copies)
	}
	if !strings.Contains(out.String(), "完成 2，失败 0，跳过 0") {
		t.Fatalf("summary missing: %q", out.String())
	}

	// 整批成功后状态文件应被清理
	plan, err := BuildPlan(context.Background(), cfg, ft)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	store := state.NewStore(cfg.StateDir)
	persisted, err := store.Load(plan.Batch.ID)
	if err != nil || persisted != nil {
		t.Fatalf("state should be cleared after full success: %v %v", persisted, err)
	}
}

func TestRunResumeSkipsCompleted(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "f1.bin", "1")
	f2 := writeFile(t, dir, "f2.bin", "22")
	f3 := writeFile(t, dir, "f3.bin", "333")
	cfg := baseConfig(t, []string{f1, f2, f3})
	out := &bytes.Buffer{}
	cfg.Out = out

	// 预先持久化一个 f2 已完成的批次，模拟上次运行中断
	ft := &listTransport{}
	plan, err := BuildPlan(context.Background(), cfg, ft)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	plan.Batch.FindByTarget("s3://bucket/pre/f2.bin").Status = state.StatusCompleted
	store := state.NewStore(cfg.StateDir)
	if err := store.Save(plan.Batch); err != nil {
		t.Fatalf("seed state failed: %v", err)
	}

	if err := RunWith(context.Background(), cfg, ft, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, target := range ft.copies {
		if target == "s3://bucket/pre/f2.bin" {
			t.Fatalf("completed item must not be re-transferred: %v", ft.copies)
		}
	}
	if len(ft.copies) != 2 {
		t.Fatalf("expected transfers for f1 and f3 only: %v", ft.copies)
	}
	if !strings.Contains(out.String(), "完成 3，失败 0，跳过 0") {
		t.Fatalf("carried item should count as completed: %q", out.String())
	}
}

func TestRunResumeAfterAddingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f1.bin", "1")
	cfg := baseConfig(t, nil)
	cfg.SourceDir = dir
	cfg.KeepState = true

	ft := &listTransport{}
	if err := RunWith(context.Background(), cfg, ft, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if len(ft.copies) != 1 {
		t.Fatalf("expected 1 transfer in first run: %v", ft.copies)
	}

	// 目录里新增文件后重跑：批次 ID 不变，已完成条目按 target 对账后不再重传
	writeFile(t, dir, "f2.bin", "22")
	if err := RunWith(context.Background(), cfg, ft, nil); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(ft.copies) != 2 {
		t.Fatalf("only the new file should transfer: %v", ft.copies)
	}
	if ft.copies[1] != "s3://bucket/pre/f2.bin" {
		t.Fatalf("unexpected second transfer: %v", ft.copies)
	}
}

func TestRunNoResumeIgnoresState(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "f1.bin", "1")
	cfg := baseConfig(t, []string{f1})
	cfg.NoResume = true

	ft := &listTransport{}
	plan, err := BuildPlan(context.Background(), cfg, ft)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	plan.Batch.Items[0].Status = state.StatusCompleted
	store := state.NewStore(cfg.StateDir)
	if err := store.Save(plan.Batch); err != nil {
		t.Fatalf("seed state failed: %v", err)
	}

	if err := RunWith(context.Background(), cfg, ft, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(ft.copies) != 1 {
		t.Fatalf("no-resume must re-transfer everything: %v", ft.copies)
	}
}

func TestRunCorruptStateFallsBackToFreshBatch(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "f1.bin", "1")
	cfg := baseConfig(t, []string{f1})

	ft := &listTransport{}
	plan, err := BuildPlan(context.Background(), cfg, ft)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	statePath := filepath.Join(cfg.StateDir, plan.Batch.ID+".json")
	if err := os.WriteFile(statePath, []byte("{corrupted"), 0o600); err != nil {
		t.Fatalf("seed corrupt state: %v", err)
	}

	if err := RunWith(context.Background(), cfg, ft, nil); err != nil {
		t.Fatalf("corrupt state must not be fatal: %v", err)
	}
	if len(ft.copies) != 1 {
		t.Fatalf("fresh batch should transfer everything: %v", ft.copies)
	}
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "f1.bin", "1")
	cfg := baseConfig(t, []string{f1})
	cfg.DryRun = true

	ft := &listTransport{}
	if err := RunWith(context.Background(), cfg, ft, nil); err != nil {
		t.Fatalf("dry-run failed: %v", err)
	}
	if len(ft.copies) != 0 {
		t.Fatalf("dry-run must not invoke the transport: %v", ft.copies)
	}
}

func TestRunReportsFailuresWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "f1.bin", "1")
	f2 := writeFile(t, dir, "f2.bin", "22")
	cfg := baseConfig(t, []string{f1, f2})
	cfg.MaxRetries = 1
	out := &bytes.Buffer{}
	cfg.Out = out

	ft := &listTransport{copyErrs: map[string][]error{
		"s3://bucket/pre/f1.bin": {errors.New("broken pipe"), errors.New("broken pipe")},
	}}
	err := RunWith(context.Background(), cfg, ft, nil)
	if err == nil {
		t.Fatalf("batch with failures must end with a non-nil error")
	}
	if !strings.Contains(out.String(), "完成 1，失败 1，跳过 0") {
		t.Fatalf("summary missing failure counts: %q", out.String())
	}
	if !strings.Contains(out.String(), "broken pipe") {
		t.Fatalf("failure reason missing from summary: %q", out.String())
	}
}

func TestEngineConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  EngineConfig
		ok   bool
	}{
		{"missing direction", EngineConfig{Destination: "s3://b/p"}, false},
		{"missing destination", EngineConfig{Direction: state.DirectionUpload, Sources: []string{"/f"}}, false},
		{"upload both sources and dir", EngineConfig{Direction: state.DirectionUpload, Sources: []string{"/f"}, SourceDir: "/d", Destination: "s3://b/p"}, false},
		{"upload neither", EngineConfig{Direction: state.DirectionUpload, Destination: "s3://b/p"}, false},
		{"upload non-s3 destination", EngineConfig{Direction: state.DirectionUpload, Sources: []string{"/f"}, Destination: "/local"}, false},
		{"negative retries", EngineConfig{Direction: state.DirectionUpload, Sources: []string{"/f"}, Destination: "s3://b/p", MaxRetries: -1}, false},
		{"valid upload", EngineConfig{Direction: state.DirectionUpload, Sources: []string{"/f"}, Destination: "s3://b/p"}, true},
		{"valid download listing", EngineConfig{Direction: state.DirectionDownload, RemotePrefix: "s3://b/p", Destination: "/dl"}, true},
		{"download neither", EngineConfig{Direction: state.DirectionDownload, Destination: "/dl"}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
