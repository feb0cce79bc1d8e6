package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"script-patcher/internal/batch"
	"script-patcher/internal/config"
	"script-patcher/internal/extract"
	"script-patcher/internal/exttool"
	"script-patcher/internal/pattern"
	"script-patcher/internal/subst"
	"script-patcher/internal/textutil"
	"script-patcher/internal/transcode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the CLI application.
func Execute() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:   "script-patcher",
		Short: "Round-trip text extraction and reinjection for legacy game scripts",
		Long: `Extracts translatable text from game-script files into editable JSON dumps
and reinjects translated text back, preserving every byte outside the matched
spans. Supports legacy encodings (Shift-JIS, GBK, EUC-JP) and a character
substitution table for glyphs the target charset lacks.`,
	}

	cfg := config.Load()
	rootCmd.AddCommand(extractCmd(cfg))
	rootCmd.AddCommand(injectCmd(cfg))
	rootCmd.AddCommand(checkCmd(cfg))
	rootCmd.AddCommand(toolCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupContext creates a cancellable context with signal handling.
func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Warn().Msg("Received shutdown signal, cancelling...")
		cancel()
	}()

	return ctx, cancel
}

func extractCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <script-dir> <dump-dir>",
		Short: "Extract translatable text from script files into JSON dumps",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pat, _ := cmd.Flags().GetString("pattern")
			namePat, _ := cmd.Flags().GetString("name-pattern")
			encName, _ := cmd.Flags().GetString("encoding")
			exts, _ := cmd.Flags().GetStringSlice("ext")
			workers, _ := cmd.Flags().GetInt("workers")
			return runExtract(args[0], args[1], pat, namePat, encName, exts, workers)
		},
	}

	cmd.Flags().String("pattern", cfg.MessagePattern, "message pattern with exactly one capturing group")
	cmd.Flags().String("name-pattern", cfg.NamePattern, "optional speaker pattern with exactly one capturing group")
	cmd.Flags().String("encoding", cfg.ScriptEncoding, "script encoding (auto, utf-8, sjis, gbk, euc-jp)")
	cmd.Flags().StringSlice("ext", splitExts(cfg.ScriptExts), "script file extensions to scan (empty scans all)")
	cmd.Flags().Int("workers", cfg.WorkerCount, "concurrent file workers")

	return cmd
}

func runExtract(scriptDir, dumpDir, pat, namePat, encName string, exts []string, workers int) error {
	ctx, cancel := setupContext()
	defer cancel()

	spec, err := pattern.Compile(pat, namePat)
	if err != nil {
		return err
	}
	enc, err := transcode.Parse(encName)
	if err != nil {
		return err
	}

	report, err := batch.Extract(ctx, batch.ExtractOptions{
		ScriptDir: scriptDir,
		DumpDir:   dumpDir,
		Spec:      spec,
		Encoding:  enc,
		Exts:      exts,
		Workers:   workers,
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("files", report.Processed).
		Int("units", report.Matches).
		Int("failed", len(report.Failures)).
		Msg("Extraction complete")

	if report.Failed() {
		return fmt.Errorf("extraction failed for %d files:\n%s", len(report.Failures), batch.Describe(report.Failures))
	}
	return nil
}

func injectCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inject <script-dir> <dump-dir> <out-dir>",
		Short: "Reinject translated dumps back into script files",
		Long: `Re-scans each original script with the extraction pattern, replaces every
captured span with its translated counterpart, and writes the result in the
output encoding. Dumps may carry translations inline, or --translated-dir may
point at a second dump tree paired positionally with the first.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInject(args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().String("pattern", cfg.MessagePattern, "message pattern with exactly one capturing group")
	cmd.Flags().String("name-pattern", cfg.NamePattern, "optional speaker pattern with exactly one capturing group")
	cmd.Flags().String("encoding", cfg.ScriptEncoding, "original script encoding")
	cmd.Flags().String("out-encoding", cfg.OutputEncoding, "output script encoding")
	cmd.Flags().String("translated-dir", "", "directory of translated dumps paired with <dump-dir>")
	cmd.Flags().Bool("subst", false, "apply the character substitution table")
	cmd.Flags().String("subst-table", cfg.SubstTablePath, "substitution table file")
	cmd.Flags().String("subst-chars", cfg.SubstChars, "restrict substitution to these characters (empty substitutes all)")
	cmd.Flags().StringSlice("ext", splitExts(cfg.ScriptExts), "script file extensions to scan (empty scans all)")
	cmd.Flags().Int("workers", cfg.WorkerCount, "concurrent file workers")

	return cmd
}

func runInject(scriptDir, dumpDir, outDir string, cmd *cobra.Command) error {
	ctx, cancel := setupContext()
	defer cancel()

	pat, _ := cmd.Flags().GetString("pattern")
	namePat, _ := cmd.Flags().GetString("name-pattern")
	encName, _ := cmd.Flags().GetString("encoding")
	outEncName, _ := cmd.Flags().GetString("out-encoding")
	translatedDir, _ := cmd.Flags().GetString("translated-dir")
	useSubst, _ := cmd.Flags().GetBool("subst")
	tablePath, _ := cmd.Flags().GetString("subst-table")
	allow, _ := cmd.Flags().GetString("subst-chars")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	workers, _ := cmd.Flags().GetInt("workers")

	spec, err := pattern.Compile(pat, namePat)
	if err != nil {
		return err
	}
	enc, err := transcode.Parse(encName)
	if err != nil {
		return err
	}
	outEnc, err := transcode.Parse(outEncName)
	if err != nil {
		return err
	}
	if outEnc == transcode.Auto {
		return fmt.Errorf("output encoding must be explicit, not auto")
	}

	var table *subst.Table
	if useSubst {
		table, err = subst.LoadFile(tablePath)
		if err != nil {
			return err
		}
		log.Info().Int("entries", table.Len()).Str("table", tablePath).Msg("Loaded substitution table")
	}

	report, err := batch.Inject(ctx, batch.InjectOptions{
		ScriptDir:      scriptDir,
		DumpDir:        dumpDir,
		TranslatedDir:  translatedDir,
		OutDir:         outDir,
		Spec:           spec,
		ScriptEncoding: enc,
		OutputEncoding: outEnc,
		Table:          table,
		Allow:          allow,
		Exts:           exts,
		Workers:        workers,
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("files", report.Processed).
		Int("skipped", report.Skipped).
		Int("units", report.Matches).
		Int("failed", len(report.Failures)).
		Msg("Injection complete")

	if report.Failed() {
		return fmt.Errorf("injection failed for %d files:\n%s", len(report.Failures), batch.Describe(report.Failures))
	}
	return nil
}

func checkCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate patterns, encodings, and the substitution table without touching files",
		RunE: func(cmd *cobra.Command, args []string) error {
			pat, _ := cmd.Flags().GetString("pattern")
			namePat, _ := cmd.Flags().GetString("name-pattern")
			encName, _ := cmd.Flags().GetString("encoding")
			tablePath, _ := cmd.Flags().GetString("subst-table")
			sample, _ := cmd.Flags().GetString("sample")
			return runCheck(pat, namePat, encName, tablePath, sample)
		},
	}

	cmd.Flags().String("pattern", cfg.MessagePattern, "message pattern to validate")
	cmd.Flags().String("name-pattern", cfg.NamePattern, "speaker pattern to validate")
	cmd.Flags().String("encoding", cfg.ScriptEncoding, "encoding name to validate")
	cmd.Flags().String("subst-table", "", "substitution table file to validate")
	cmd.Flags().String("sample", "", "sample text to run the patterns against")

	return cmd
}

func runCheck(pat, namePat, encName, tablePath, sample string) error {
	spec, err := pattern.Compile(pat, namePat)
	if err != nil {
		return err
	}
	log.Info().Msg("Patterns valid")

	if _, err := transcode.Parse(encName); err != nil {
		return err
	}
	log.Info().Str("encoding", encName).Msg("Encoding valid")

	if tablePath != "" {
		table, err := subst.LoadFile(tablePath)
		if err != nil {
			return err
		}
		log.Info().Int("entries", table.Len()).Msg("Substitution table valid")
	}

	if sample == "" {
		return nil
	}

	units, err := extract.Run(sample, spec)
	if err != nil {
		return err
	}
	log.Info().Int("matches", len(units)).Msg("Sample scan")
	for _, u := range units[:min(len(units), 3)] {
		log.Info().
			Int("position", u.Position).
			Str("speaker", u.Speaker).
			Str("text", textutil.Truncate(u.SourceText, 60)).
			Msg("Sample unit")
	}
	if len(units) > 0 && !textutil.ContainsCJK(units[0].SourceText) {
		log.Warn().Msg("First captured text contains no CJK characters; check the capture group")
	}
	return nil
}

func toolCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Delegate extraction or injection to an external script tool",
	}

	var toolPath, engine string
	cmd.PersistentFlags().StringVar(&toolPath, "tool-path", cfg.ToolPath, "external tool executable")
	cmd.PersistentFlags().StringVar(&engine, "engine", cfg.ToolEngine, "script engine identifier (or auto)")

	extractSub := &cobra.Command{
		Use:   "extract <script-dir> <dump-dir>",
		Short: "Run the external tool's extraction and verify its dumps",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupContext()
			defer cancel()

			tool := newTool(toolPath, "")
			if err := tool.Extract(ctx, args[0], args[1], engine); err != nil {
				return err
			}
			return exttool.Verify(args[1])
		},
	}

	var gbkPath string
	injectSub := &cobra.Command{
		Use:   "inject <script-dir> <dump-dir> <out-dir>",
		Short: "Run the external tool's injection",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupContext()
			defer cancel()

			tool := newTool(toolPath, gbkPath)
			return tool.Inject(ctx, args[0], args[1], args[2], engine, gbkPath != "")
		},
	}
	injectSub.Flags().StringVar(&gbkPath, "gbk-tool-path", "", "GBK variant of the tool executable")

	cmd.AddCommand(extractSub)
	cmd.AddCommand(injectSub)
	return cmd
}

func newTool(path, gbkPath string) *exttool.Tool {
	return &exttool.Tool{
		Path:    path,
		GBKPath: gbkPath,
		Runner: &exttool.ExecRunner{
			OnLine: func(line string) { log.Info().Str("tool", "stdout").Msg(line) },
		},
	}
}

func splitExts(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
