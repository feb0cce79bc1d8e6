// Package exttool wraps external extraction/injection executables behind a
// narrow run contract. The core engine never launches processes; this package
// is the collaborator the CLI delegates to when a script format needs a
// dedicated tool instead of the in-process pattern engine.
package exttool

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"script-patcher/internal/dump"
	"script-patcher/internal/filewalker"
	"script-patcher/internal/sjisext"

	"github.com/rs/zerolog/log"
)

// Runner executes one external command. Success is signaled by exit status
// zero; stdout and stderr are returned as collected lines.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (exit int, stdout, stderr []string, err error)
}

// ExecRunner runs commands through os/exec, streaming stdout lines to an
// optional callback as they arrive.
type ExecRunner struct {
	// Dir is the working directory for launched tools.
	Dir string
	// OnLine, when set, receives each stdout line as it is produced.
	OnLine func(line string)
}

func (r *ExecRunner) Run(ctx context.Context, name string, args []string) (int, []string, []string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, nil, nil, fmt.Errorf("exttool: stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, nil, nil, fmt.Errorf("exttool: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, nil, nil, fmt.Errorf("exttool: start %s: %w", name, err)
	}

	var (
		wg             sync.WaitGroup
		stdout, stderr []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(outPipe)
		for scanner.Scan() {
			line := scanner.Text()
			stdout = append(stdout, line)
			if r.OnLine != nil {
				r.OnLine(line)
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(errPipe)
		for scanner.Scan() {
			stderr = append(stderr, scanner.Text())
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), stdout, stderr, nil
		}
		return -1, stdout, stderr, fmt.Errorf("exttool: wait %s: %w", name, err)
	}
	return 0, stdout, stderr, nil
}

// Engine identifiers accepted by the supported tools. "auto" lets the tool
// detect the script format itself.
var validEngines = map[string]bool{
	"auto":                 true,
	"artemistxt":           true,
	"ethornell":            true,
	"kirikiriks":           true,
	"reallive":             true,
	"tmrhiroadvsystemtext": true,
	"whale":                true,
}

// ValidateEngine rejects unknown engine identifiers before anything runs.
func ValidateEngine(engine string) error {
	if engine == "" {
		return nil
	}
	if !validEngines[engine] {
		return fmt.Errorf("exttool: unknown engine %q", engine)
	}
	return nil
}

// Tool is a VNTextPatch-style extraction/injection executable.
type Tool struct {
	// Path is the tool executable.
	Path string
	// GBKPath, when set, is the executable variant used for GBK output.
	// Historically that variant still passes the cp932 argument to some
	// script formats while being labeled GBK; that quirk belongs to the tool
	// and is deliberately not papered over here.
	GBKPath string
	Runner  Runner
}

// ExitError reports a tool run that finished with a non-zero status.
type ExitError struct {
	Command string
	Exit    int
	Stderr  []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exttool: %s exited with status %d", e.Command, e.Exit)
}

// Extract runs the tool's extract command: input script directory, output
// dump directory, optional engine identifier.
func (t *Tool) Extract(ctx context.Context, scriptDir, dumpDir, engine string) error {
	if err := ValidateEngine(engine); err != nil {
		return err
	}
	args := []string{"extractlocal", scriptDir, dumpDir}
	if engine != "" && engine != "auto" {
		args = append(args, "--format="+engine)
	}
	return t.run(ctx, t.Path, args)
}

// Inject runs the tool's insert command against the original scripts and the
// translated dumps. useGBK selects the GBK executable variant when present.
func (t *Tool) Inject(ctx context.Context, scriptDir, dumpDir, outDir, engine string, useGBK bool) error {
	if err := ValidateEngine(engine); err != nil {
		return err
	}
	path := t.Path
	if useGBK && t.GBKPath != "" {
		path = t.GBKPath
	}
	args := []string{"insertlocal", scriptDir, dumpDir, outDir}
	if engine != "" && engine != "auto" {
		args = append(args, "--format="+engine)
	}
	if err := t.run(ctx, path, args); err != nil {
		return err
	}

	// Some tools append glyphs missing from the base charset to an
	// sjis_ext.bin next to the output; surface them for font patching.
	if ext, err := sjisext.ReadFile(filepath.Join(outDir, "sjis_ext.bin")); err == nil && ext != "" {
		log.Info().Str("chars", ext).Msg("Tool emitted extended SJIS characters")
	}
	return nil
}

func (t *Tool) run(ctx context.Context, path string, args []string) error {
	log.Info().Str("tool", path).Strs("args", args).Msg("Running external tool")
	exit, _, stderr, err := t.Runner.Run(ctx, path, args)
	if err != nil {
		return err
	}
	if exit != 0 {
		return &ExitError{Command: filepath.Base(path), Exit: exit, Stderr: stderr}
	}
	return nil
}

// Verify checks that every dump a tool produced can be round-tripped: each
// file parses and satisfies the position ordering invariant. Failures are
// itemized per file rather than aborting on the first.
func Verify(dumpDir string) error {
	entries, err := filewalker.NewWalker([]string{".json"}).Walk(dumpDir)
	if err != nil {
		return err
	}

	var bad int
	for _, entry := range entries {
		if _, err := dump.ReadFile(entry.Path); err != nil {
			log.Error().Err(err).Str("file", entry.Rel).Msg("Dump failed verification")
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("exttool: %d of %d dumps failed verification", bad, len(entries))
	}
	return nil
}
