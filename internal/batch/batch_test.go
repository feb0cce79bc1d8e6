package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"script-patcher/internal/dump"
	"script-patcher/internal/inject"
	"script-patcher/internal/pattern"
	"script-patcher/internal/transcode"
)

func mustSpec(t *testing.T, primary, secondary string) *pattern.Spec {
	t.Helper()
	spec, err := pattern.Compile(primary, secondary)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return spec
}

func writeScript(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractInjectRoundTrip(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()
	outDir := t.TempDir()

	writeScript(t, scriptDir, "a.txt", "「こんにちは」x「さよなら」")
	writeScript(t, scriptDir, filepath.Join("sub", "b.txt"), "pre「やあ」post")

	spec := mustSpec(t, `「([^」]*)」`, "")
	ctx := context.Background()

	report, err := Extract(ctx, ExtractOptions{
		ScriptDir: scriptDir,
		DumpDir:   dumpDir,
		Spec:      spec,
		Encoding:  transcode.UTF8,
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if report.Processed != 2 || report.Matches != 3 || report.Failed() {
		t.Fatalf("extract report = %+v", report)
	}

	// Translate a.txt's units; leave b.txt's dump untranslated.
	aDump := filepath.Join(dumpDir, "a.json")
	units, err := dump.ReadFile(aDump)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	units[0].TranslatedText = "你好"
	units[1].TranslatedText = "再见"
	if err := dump.WriteFile(aDump, units); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	injReport, err := Inject(ctx, InjectOptions{
		ScriptDir:      scriptDir,
		DumpDir:        dumpDir,
		OutDir:         outDir,
		Spec:           spec,
		ScriptEncoding: transcode.UTF8,
		OutputEncoding: transcode.UTF8,
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if injReport.Processed != 2 || injReport.Failed() {
		t.Fatalf("inject report = %+v", injReport)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "「你好」x「再见」" {
		t.Errorf("a.txt = %q", got)
	}

	// Untranslated dump keeps the original text byte for byte.
	got, err = os.ReadFile(filepath.Join(outDir, "sub", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "pre「やあ」post" {
		t.Errorf("b.txt = %q", got)
	}
}

func TestExtractFailureIsolation(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()

	writeScript(t, scriptDir, "good.txt", "「一」")
	if err := os.WriteFile(filepath.Join(scriptDir, "bad.txt"), []byte{0xFF, 0xFE, 0xFF}, 0644); err != nil {
		t.Fatal(err)
	}

	report, err := Extract(context.Background(), ExtractOptions{
		ScriptDir: scriptDir,
		DumpDir:   dumpDir,
		Spec:      mustSpec(t, `「([^」]*)」`, ""),
		Encoding:  transcode.UTF8,
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("Processed = %d, want 1", report.Processed)
	}
	if len(report.Failures) != 1 || report.Failures[0].Path != "bad.txt" {
		t.Fatalf("Failures = %+v", report.Failures)
	}
	var invalid *transcode.InvalidByteSequenceError
	if !errors.As(report.Failures[0].Err, &invalid) {
		t.Errorf("failure err = %v", report.Failures[0].Err)
	}
	// The failing file must not leave a dump behind.
	if _, err := os.Stat(filepath.Join(dumpDir, "bad.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("failed file produced a dump")
	}
}

func TestInjectMissingDumpCopiesThrough(t *testing.T) {
	scriptDir := t.TempDir()
	outDir := t.TempDir()
	writeScript(t, scriptDir, "orphan.txt", "「一」")

	report, err := Inject(context.Background(), InjectOptions{
		ScriptDir:      scriptDir,
		DumpDir:        t.TempDir(),
		OutDir:         outDir,
		Spec:           mustSpec(t, `「([^」]*)」`, ""),
		ScriptEncoding: transcode.UTF8,
		OutputEncoding: transcode.UTF8,
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if report.Skipped != 1 || report.Processed != 0 {
		t.Fatalf("report = %+v", report)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "orphan.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "「一」" {
		t.Errorf("orphan.txt = %q", got)
	}
}

func TestInjectCountMismatch(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()
	outDir := t.TempDir()

	// The script gained a line after extraction; alignment is no longer
	// trustworthy and the file must fail rather than guess.
	writeScript(t, scriptDir, "a.txt", "「一」「二」")
	if err := dump.WriteFile(filepath.Join(dumpDir, "a.json"), []dump.Unit{
		{Position: 0, SourceText: "一", TranslatedText: "1"},
	}); err != nil {
		t.Fatal(err)
	}

	report, err := Inject(context.Background(), InjectOptions{
		ScriptDir:      scriptDir,
		DumpDir:        dumpDir,
		OutDir:         outDir,
		Spec:           mustSpec(t, `「([^」]*)」`, ""),
		ScriptEncoding: transcode.UTF8,
		OutputEncoding: transcode.UTF8,
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("Failures = %+v", report.Failures)
	}
	var mismatch *inject.CountMismatchError
	if !errors.As(report.Failures[0].Err, &mismatch) {
		t.Errorf("failure err = %v", report.Failures[0].Err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "a.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Error("failed file produced output")
	}
}

func TestInjectUnencodableKeyedByUnit(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()

	writeScript(t, scriptDir, "a.txt", "「一」「二」")
	if err := dump.WriteFile(filepath.Join(dumpDir, "a.json"), []dump.Unit{
		{Position: 0, SourceText: "一", TranslatedText: "ok"},
		{Position: 1, SourceText: "二", TranslatedText: "你好"}, // 你 is not cp932-encodable
	}); err != nil {
		t.Fatal(err)
	}

	report, err := Inject(context.Background(), InjectOptions{
		ScriptDir:      scriptDir,
		DumpDir:        dumpDir,
		OutDir:         t.TempDir(),
		Spec:           mustSpec(t, `「([^」]*)」`, ""),
		ScriptEncoding: transcode.UTF8,
		OutputEncoding: transcode.ShiftJIS,
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("Failures = %+v", report.Failures)
	}
	if report.Failures[0].Position != 1 {
		t.Errorf("failure position = %d, want 1", report.Failures[0].Position)
	}
	var unenc *transcode.UnencodableCharError
	if !errors.As(report.Failures[0].Err, &unenc) {
		t.Errorf("failure err = %v", report.Failures[0].Err)
	}
}

func TestInjectPairedDumps(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()
	translatedDir := t.TempDir()
	outDir := t.TempDir()

	writeScript(t, scriptDir, "a.txt", "「こんにちは」")
	if err := dump.WriteFile(filepath.Join(dumpDir, "a.json"), []dump.Unit{
		{Position: 0, SourceText: "こんにちは"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := dump.WriteFile(filepath.Join(translatedDir, "a.json"), []dump.Unit{
		{Position: 0, SourceText: "你好"},
	}); err != nil {
		t.Fatal(err)
	}

	report, err := Inject(context.Background(), InjectOptions{
		ScriptDir:      scriptDir,
		DumpDir:        dumpDir,
		TranslatedDir:  translatedDir,
		OutDir:         outDir,
		Spec:           mustSpec(t, `「([^」]*)」`, ""),
		ScriptEncoding: transcode.UTF8,
		OutputEncoding: transcode.UTF8,
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if report.Processed != 1 || report.Failed() {
		t.Fatalf("report = %+v", report)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "「你好」" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestExtractCancelled(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()
	writeScript(t, scriptDir, "a.txt", "「一」")
	writeScript(t, scriptDir, "b.txt", "「二」")
	writeScript(t, scriptDir, "c.txt", "「三」")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Extract(ctx, ExtractOptions{
		ScriptDir: scriptDir,
		DumpDir:   dumpDir,
		Spec:      mustSpec(t, `「([^」]*)」`, ""),
		Encoding:  transcode.UTF8,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract err = %v, want context.Canceled", err)
	}
	// An interrupted run must never be reported as a successful one.
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
}

func TestInjectCancelled(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()
	writeScript(t, scriptDir, "a.txt", "「一」")
	if err := dump.WriteFile(filepath.Join(dumpDir, "a.json"), []dump.Unit{
		{Position: 0, SourceText: "一", TranslatedText: "1"},
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Inject(ctx, InjectOptions{
		ScriptDir:      scriptDir,
		DumpDir:        dumpDir,
		OutDir:         t.TempDir(),
		Spec:           mustSpec(t, `「([^」]*)」`, ""),
		ScriptEncoding: transcode.UTF8,
		OutputEncoding: transcode.UTF8,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Inject err = %v, want context.Canceled", err)
	}
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
}

func TestExtractDumpNameCollision(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()
	// Both resolve to a.json once the extension is dropped.
	writeScript(t, scriptDir, "a.txt", "「一」")
	writeScript(t, scriptDir, "a.bin", "「二」")

	_, err := Extract(context.Background(), ExtractOptions{
		ScriptDir: scriptDir,
		DumpDir:   dumpDir,
		Spec:      mustSpec(t, `「([^」]*)」`, ""),
		Encoding:  transcode.UTF8,
	})
	if err == nil {
		t.Fatal("Extract accepted scripts sharing one dump name")
	}
	if _, statErr := os.Stat(filepath.Join(dumpDir, "a.json")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("colliding scripts produced a dump")
	}

	// Narrowing the extension filter resolves the collision.
	report, err := Extract(context.Background(), ExtractOptions{
		ScriptDir: scriptDir,
		DumpDir:   dumpDir,
		Spec:      mustSpec(t, `「([^」]*)」`, ""),
		Encoding:  transcode.UTF8,
		Exts:      []string{"txt"},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("Processed = %d, want 1", report.Processed)
	}
}

func TestExtractExtFilter(t *testing.T) {
	scriptDir := t.TempDir()
	dumpDir := t.TempDir()
	writeScript(t, scriptDir, "a.ks", "「一」")
	writeScript(t, scriptDir, "readme.md", "「二」")

	report, err := Extract(context.Background(), ExtractOptions{
		ScriptDir: scriptDir,
		DumpDir:   dumpDir,
		Spec:      mustSpec(t, `「([^」]*)」`, ""),
		Encoding:  transcode.UTF8,
		Exts:      []string{"ks"},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if report.Processed != 1 || report.Matches != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, err := os.Stat(filepath.Join(dumpDir, "readme.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("filtered file was extracted")
	}
}
