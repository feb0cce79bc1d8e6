// Package batch drives the extraction and injection engines over whole
// script directories. Files are independent units of work: one failing file
// is reported and excluded from the output, and processing continues with
// the rest.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"script-patcher/internal/dump"
	"script-patcher/internal/extract"
	"script-patcher/internal/filewalker"
	"script-patcher/internal/inject"
	"script-patcher/internal/pattern"
	"script-patcher/internal/subst"
	"script-patcher/internal/textutil"
	"script-patcher/internal/transcode"
	"script-patcher/internal/worker"

	"github.com/rs/zerolog/log"
)

// Failure is one itemized per-file failure. Position is the unit ordinal the
// failure is attributable to, or -1 when it applies to the whole file.
type Failure struct {
	Path     string
	Position int
	Err      error
}

// Report summarizes a batch run.
type Report struct {
	Processed int
	Skipped   int
	Matches   int
	Failures  []Failure
}

// Failed reports whether any file failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// ExtractOptions configures a directory extraction run.
type ExtractOptions struct {
	ScriptDir string
	DumpDir   string
	Spec      *pattern.Spec
	Encoding  transcode.Encoding
	// Exts restricts which script files are scanned; empty accepts all.
	Exts    []string
	Workers int
}

// InjectOptions configures a directory injection run. DumpDir holds the
// dumps carrying translated text; when TranslatedDir is also set, DumpDir
// holds the source-language dumps and TranslatedDir the translated ones, and
// the two are paired positionally per file.
type InjectOptions struct {
	ScriptDir      string
	DumpDir        string
	TranslatedDir  string
	OutDir         string
	Spec           *pattern.Spec
	ScriptEncoding transcode.Encoding
	OutputEncoding transcode.Encoding
	Table          *subst.Table
	Allow          string
	Exts           []string
	Workers        int
}

type fileOutcome struct {
	matches int
	skipped bool
	failure *Failure
}

// dumpName maps a script file's relative path to its dump file.
func dumpName(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + ".json"
}

// checkDumpNames rejects script sets where two files would share one dump
// file. The mapping drops the extension, so a.txt and a.bin both resolve to
// a.json and concurrent workers would silently overwrite each other.
func checkDumpNames(entries []filewalker.FileEntry) error {
	seen := make(map[string]string, len(entries))
	for _, e := range entries {
		name := dumpName(e.Rel)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("scripts %s and %s both map to dump %s; rename one or narrow the extension filter", prev, e.Rel, name)
		}
		seen[name] = e.Rel
	}
	return nil
}

// Extract scans every script file under ScriptDir and writes one dump per
// file under DumpDir, mirroring the directory layout.
func Extract(ctx context.Context, opts ExtractOptions) (*Report, error) {
	entries, err := filewalker.NewWalker(opts.Exts).Walk(opts.ScriptDir)
	if err != nil {
		return nil, err
	}
	if err := checkDumpNames(entries); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.DumpDir, 0755); err != nil {
		return nil, fmt.Errorf("create dump directory: %w", err)
	}

	pool := worker.NewPool(opts.Workers, func(ctx context.Context, entry filewalker.FileEntry) (fileOutcome, error) {
		return extractOne(entry, opts)
	})

	tasks := pool.Execute(ctx, entries)
	// A cancelled run leaves tasks the pool never reached; their zero-value
	// outcomes must not be mistaken for processed files.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction interrupted: %w", err)
	}
	return collect(tasks), nil
}

func extractOne(entry filewalker.FileEntry, opts ExtractOptions) (fileOutcome, error) {
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return fail(entry.Rel, -1, fmt.Errorf("read script: %w", err))
	}

	content, enc, err := transcode.Decode(data, opts.Encoding)
	if err != nil {
		return fail(entry.Rel, -1, err)
	}

	units, err := extract.Run(content, opts.Spec)
	if err != nil {
		return fail(entry.Rel, -1, err)
	}

	outPath := filepath.Join(opts.DumpDir, dumpName(entry.Rel))
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fail(entry.Rel, -1, fmt.Errorf("create dump directory: %w", err))
	}
	if err := dump.WriteFile(outPath, units); err != nil {
		return fail(entry.Rel, -1, err)
	}

	log.Info().Str("file", entry.Rel).Str("encoding", enc.String()).Int("units", len(units)).Msg("Extracted")
	return fileOutcome{matches: len(units)}, nil
}

// Inject rebuilds every script file under ScriptDir whose dump exists,
// writing the destination-encoded result under OutDir. Script files without
// a dump are copied through unchanged.
func Inject(ctx context.Context, opts InjectOptions) (*Report, error) {
	entries, err := filewalker.NewWalker(opts.Exts).Walk(opts.ScriptDir)
	if err != nil {
		return nil, err
	}
	if err := checkDumpNames(entries); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	pool := worker.NewPool(opts.Workers, func(ctx context.Context, entry filewalker.FileEntry) (fileOutcome, error) {
		return injectOne(entry, opts)
	})

	tasks := pool.Execute(ctx, entries)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("injection interrupted: %w", err)
	}
	return collect(tasks), nil
}

func injectOne(entry filewalker.FileEntry, opts InjectOptions) (fileOutcome, error) {
	outPath := filepath.Join(opts.OutDir, entry.Rel)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fail(entry.Rel, -1, fmt.Errorf("create output directory: %w", err))
	}

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return fail(entry.Rel, -1, fmt.Errorf("read script: %w", err))
	}

	units, ok, err := loadUnits(entry.Rel, opts)
	if err != nil {
		return fail(entry.Rel, -1, err)
	}
	if !ok {
		// No dump for this script: pass the original bytes through.
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fail(entry.Rel, -1, fmt.Errorf("copy script: %w", err))
		}
		return fileOutcome{skipped: true}, nil
	}

	content, _, err := transcode.Decode(data, opts.ScriptEncoding)
	if err != nil {
		return fail(entry.Rel, -1, err)
	}

	// Validate each translated unit encodes in the destination before
	// touching the file, so an unencodable character is reported with its
	// unit position instead of a bare offset into the rebuilt text.
	for _, u := range units {
		for _, text := range []string{u.TranslatedText, u.TranslatedSpeaker} {
			if text == "" {
				continue
			}
			if _, err := transcode.Encode(opts.Table.Apply(text, opts.Allow), opts.OutputEncoding); err != nil {
				return fail(entry.Rel, u.Position, err)
			}
		}
	}

	rebuilt, err := inject.Run(content, opts.Spec, units, opts.Table, opts.Allow)
	if err != nil {
		return fail(entry.Rel, -1, err)
	}

	out, err := transcode.Encode(rebuilt, opts.OutputEncoding)
	if err != nil {
		return fail(entry.Rel, -1, err)
	}

	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return fail(entry.Rel, -1, fmt.Errorf("write output: %w", err))
	}

	log.Info().Str("file", entry.Rel).Int("units", len(units)).Msg("Injected")
	return fileOutcome{matches: len(units)}, nil
}

// loadUnits resolves the translated units for one script file. ok is false
// when no dump exists for it.
func loadUnits(rel string, opts InjectOptions) ([]dump.Unit, bool, error) {
	name := dumpName(rel)
	srcPath := filepath.Join(opts.DumpDir, name)
	if _, err := os.Stat(srcPath); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}

	units, err := dump.ReadFile(srcPath)
	if err != nil {
		return nil, false, err
	}

	if opts.TranslatedDir == "" {
		return units, true, nil
	}

	trPath := filepath.Join(opts.TranslatedDir, name)
	if _, err := os.Stat(trPath); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	translated, err := dump.ReadFile(trPath)
	if err != nil {
		return nil, false, err
	}

	paired, err := dump.Pair(units, translated)
	if err != nil {
		return nil, false, err
	}
	return paired, true, nil
}

func fail(rel string, position int, err error) (fileOutcome, error) {
	return fileOutcome{failure: &Failure{Path: rel, Position: position, Err: err}}, err
}

func collect(tasks []worker.Task[filewalker.FileEntry, fileOutcome]) *Report {
	report := &Report{}
	for _, t := range tasks {
		out := t.Result
		switch {
		case out.failure != nil:
			report.Failures = append(report.Failures, *out.failure)
			log.Error().Err(out.failure.Err).Str("file", out.failure.Path).Msg("File failed")
		case out.skipped:
			report.Skipped++
		default:
			report.Processed++
			report.Matches += out.matches
		}
	}
	return report
}

// Describe renders a failure list for operator output, keyed by file and,
// where known, unit position.
func Describe(failures []Failure) string {
	var b strings.Builder
	for _, f := range failures {
		if f.Position >= 0 {
			fmt.Fprintf(&b, "%s (unit %d): %s\n", f.Path, f.Position, textutil.Truncate(f.Err.Error(), 200))
		} else {
			fmt.Fprintf(&b, "%s: %s\n", f.Path, textutil.Truncate(f.Err.Error(), 200))
		}
	}
	return b.String()
}
