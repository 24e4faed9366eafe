/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"scriptdialogue/internal/backend"
	"scriptdialogue/internal/config"
	"scriptdialogue/internal/crash"
	"scriptdialogue/internal/dataset"
	"scriptdialogue/internal/export"
	applog "scriptdialogue/internal/log"
	"scriptdialogue/internal/screenplay"
	"scriptdialogue/internal/storage"
	"scriptdialogue/internal/version"
)

const (
	cleanedCSVName = "cleaned_dialogues.csv"
	rawCSVName     = "dialogues.csv"
	reportName     = "report.pdf"
)

// errUsage marks argument errors; they exit with code 2.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `scriptdialogue: extract character dialogue from screenplays
Version: %s

Usage:
  scriptdialogue version|-v|--version                    Show version
  scriptdialogue extract [-config path]                  Parse, clean and store all configured films
  scriptdialogue search [-config path] [-remote] <query> [film] [character]
                                                         Full-text search over the latest run ("" for filters only);
                                                         -remote searches all runs published to Postgres
  scriptdialogue stats [-config path] [run-id]           Per-film and per-character statistics
  scriptdialogue runs [-config path]                     List stored runs
  scriptdialogue bundle [-config path] <zip>             Zip the output directory
  scriptdialogue set-dsn <dsn>                           Store the Postgres DSN in the OS keychain ("" removes it)
  scriptdialogue validate <config>                       Validate a config file
  scriptdialogue init-config [path]                      Write a default config file
`, version.String())
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	defer crash.Recover("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) == 0 {
		usage(stdout)
		return 2
	}
	var err error
	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	case "extract":
		err = cmdExtract(ctx, args[1:], stdout)
	case "search":
		err = cmdSearch(ctx, args[1:], stdout)
	case "stats":
		err = cmdStats(ctx, args[1:], stdout)
	case "runs":
		err = cmdRuns(ctx, args[1:], stdout)
	case "bundle":
		err = cmdBundle(args[1:], stdout)
	case "set-dsn":
		err = cmdSetDSN(args[1:], stdout)
	case "validate":
		err = cmdValidate(args[1:], stdout)
	case "init-config":
		err = cmdInitConfig(args[1:], stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stdout, "unknown command %q\n\n", args[0])
		usage(stdout)
		return 2
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprintln(stdout, "Error:", err)
		usage(stdout)
		return 2
	default:
		l.Error(args[0]+" failed", slog.Any("err", err))
		_, _ = fmt.Fprintln(stdout, "Error:", err)
		return 1
	}
}

// loadConfig parses the shared -config flag plus any flags registered by bind and
// loads the configuration. Logging is re-initialised from the effective config.
func loadConfig(name string, args []string, bind ...func(*flag.FlagSet)) (config.AppConfig, string, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "config file (default: per-user config)")
	for _, b := range bind {
		b(fs)
	}
	if err := fs.Parse(args); err != nil {
		return config.AppConfig{}, "", nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg, dsn, err := config.Load(*path)
	if err != nil {
		return cfg, "", nil, err
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	if abs, err := filepath.Abs(cfg.Output.Dir); err == nil {
		cfg.Output.Dir = abs
	}
	return cfg, dsn, fs.Args(), nil
}

func filmSources(cfg config.AppConfig) []dataset.FilmSource {
	out := make([]dataset.FilmSource, 0, len(cfg.Films))
	for _, f := range cfg.Films {
		out = append(out, dataset.FilmSource{Name: f.Name, Path: f.Path, Targets: f.Targets()})
	}
	return out
}

func cmdExtract(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, dsn, rest, err := loadConfig("extract", args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("%w: extract takes no positional arguments", errUsage)
	}
	outDir := cfg.Output.Dir
	defer crash.Recover(outDir)
	l := applog.WithOperation(applog.WithComponent("cli"), "extract").With(slog.String("out", outDir))

	if repaired, err := storage.CheckAndRepairStore(ctx, outDir); err != nil {
		return err
	} else if repaired {
		l.Warn("store was damaged and has been recreated")
	}

	run, err := dataset.Build(ctx, filmSources(cfg), dataset.Options{
		Thresholds: cfg.Parser,
		KeepEmpty:  cfg.Output.KeepEmpty,
		Workers:    cfg.Output.Workers,
	})
	if err != nil {
		return err
	}
	l = applog.WithRun(l, run.ID)

	raw := make([]screenplay.DialogueRecord, 0, len(run.Records))
	for _, r := range run.Records {
		raw = append(raw, r.DialogueRecord)
	}
	if err := export.WriteRawCSV(filepath.Join(outDir, rawCSVName), raw); err != nil {
		return fmt.Errorf("write raw csv: %w", err)
	}
	if err := export.WriteCSV(filepath.Join(outDir, cleanedCSVName), run.Records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := storage.SaveRun(ctx, outDir, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if n, err := storage.PruneOldRuns(ctx, outDir, cfg.Output.KeepRuns); err != nil {
		l.Warn("prune old runs failed", slog.Any("err", err))
	} else if n > 0 {
		l.Info("pruned old runs", slog.Int64("removed", n))
	}
	if cfg.Output.PDF {
		if err := export.WritePDFReport(filepath.Join(outDir, reportName), run, export.PDFOptions{IncludeDialogue: true, MaxDialogue: 500}); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if cfg.Backend.Enabled {
		if err := publish(ctx, dsn, cfg, run); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "FILM\tLINES\tRECORDS\tDROPPED\n")
	for _, f := range run.Films {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", f.Film, f.Lines, f.Records, f.Dropped)
	}
	_ = tw.Flush()
	for _, d := range run.Diagnostics {
		_, _ = fmt.Fprintf(stdout, "%s: %s: %s\n", strings.ToUpper(string(d.Severity)), d.Film, d.Message)
	}
	if run.Failed() {
		_, _ = fmt.Fprintln(stdout, "Some scripts could not be read; their films are absent from this run.")
	}
	_, _ = fmt.Fprintf(stdout, "Run %s: %d records written to %s\n", run.ID, len(run.Records), outDir)
	return nil
}

// withBackend opens the Postgres backend bounded by the configured timeout and hands
// it to fn.
func withBackend(ctx context.Context, dsn string, cfg config.AppConfig, fn func(context.Context, *sql.DB) error) error {
	bctx, cancel := context.WithTimeout(ctx, cfg.Backend.Timeout())
	defer cancel()
	db, err := backend.Open(bctx, dsn)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := fn(bctx, db); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	return nil
}

func publish(ctx context.Context, dsn string, cfg config.AppConfig, run *dataset.Run) error {
	return withBackend(ctx, dsn, cfg, func(ctx context.Context, db *sql.DB) error {
		return backend.PublishRun(ctx, db, run)
	})
}

func cmdSearch(ctx context.Context, args []string, stdout io.Writer) error {
	var remote bool
	cfg, dsn, rest, err := loadConfig("search", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&remote, "remote", false, "search the Postgres backend")
	})
	if err != nil {
		return err
	}
	if len(rest) < 1 || len(rest) > 3 {
		return fmt.Errorf("%w: search requires <query> [film] [character]", errUsage)
	}
	q := storage.SearchQuery{Text: rest[0]}
	if len(rest) > 1 {
		q.Film = rest[1]
	}
	if len(rest) > 2 {
		q.Character = rest[2]
	}
	var res []storage.SearchResult
	if remote {
		if dsn == "" {
			dsn = config.LookupDSN()
		}
		err = withBackend(ctx, dsn, cfg, func(ctx context.Context, db *sql.DB) error {
			var serr error
			res, serr = backend.SearchPG(ctx, db, q)
			return serr
		})
	} else {
		if q.RunID, err = storage.LatestRunID(ctx, cfg.Output.Dir); err != nil {
			return fmt.Errorf("no stored run, run extract first: %w", err)
		}
		res, err = storage.Search(ctx, cfg.Output.Dir, q)
	}
	if err != nil {
		return err
	}
	for _, r := range res {
		text := r.Snippet
		if text == "" {
			text = r.Cleaned
		}
		_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", r.Film, r.Character, text)
	}
	_, _ = fmt.Fprintf(stdout, "%d match(es)\n", len(res))
	return nil
}

func cmdStats(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, _, rest, err := loadConfig("stats", args)
	if err != nil {
		return err
	}
	var runID string
	switch len(rest) {
	case 0:
		if runID, err = storage.LatestRunID(ctx, cfg.Output.Dir); err != nil {
			return fmt.Errorf("no stored run, run extract first: %w", err)
		}
	case 1:
		runID = rest[0]
	default:
		return fmt.Errorf("%w: stats takes at most one run id", errUsage)
	}
	run, err := storage.LoadRun(ctx, cfg.Output.Dir, runID)
	if err != nil {
		return err
	}
	counts, err := storage.CharacterCounts(ctx, cfg.Output.Dir, runID)
	if err != nil {
		return err
	}
	words := map[[2]string]dataset.GroupStats{}
	for _, s := range dataset.CharacterStats(run.Records) {
		words[[2]string{s.Film, s.Character}] = s
	}

	_, _ = fmt.Fprintf(stdout, "Run %s (%s)\n\n", run.ID, run.StartedAt.Format("2006-01-02 15:04:05"))
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "FILM\tDIALOGUES\tMEAN WORDS\tMEDIAN\tSTD\n")
	for _, s := range dataset.FilmStats(run.Records) {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.1f\t%.2f\n", s.Film, s.Count, s.Mean, s.Median, s.Std)
	}
	_, _ = fmt.Fprintf(tw, "\nFILM\tCHARACTER\tDIALOGUES\tMEAN WORDS\tSTD\n")
	for _, c := range counts {
		w := words[[2]string{c.Film, c.Character}]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\n", c.Film, c.Character, c.Count, w.Mean, w.Std)
	}
	return tw.Flush()
}

func cmdRuns(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, _, _, err := loadConfig("runs", args)
	if err != nil {
		return err
	}
	runs, err := storage.ListRuns(ctx, cfg.Output.Dir, 50)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "RUN\tSTARTED\tRECORDS\tAPP\n")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Records, r.App)
	}
	return tw.Flush()
}

func cmdBundle(args []string, stdout io.Writer) error {
	cfg, _, rest, err := loadConfig("bundle", args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("%w: bundle requires <zip>", errUsage)
	}
	n, err := export.WriteBundle(cfg.Output.Dir, rest[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Bundled %d file(s) into %s\n", n, rest[0])
	return nil
}

func cmdSetDSN(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: set-dsn requires <dsn>", errUsage)
	}
	if err := config.SaveDSN(args[0]); err != nil {
		return fmt.Errorf("store dsn: %w", err)
	}
	if strings.TrimSpace(args[0]) == "" {
		_, _ = fmt.Fprintln(stdout, "Postgres DSN removed from keychain.")
	} else {
		_, _ = fmt.Fprintln(stdout, "Postgres DSN stored in keychain.")
	}
	return nil
}

func cmdValidate(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: validate requires <config>", errUsage)
	}
	cfg, _, err := config.Load(args[0])
	if err != nil {
		return err
	}
	missing := 0
	for _, f := range cfg.Films {
		if _, err := os.Stat(f.Path); err != nil {
			_, _ = fmt.Fprintf(stdout, "warning: film %q: script %s not found\n", f.Name, f.Path)
			missing++
		}
	}
	for _, key := range config.OverriddenKeys() {
		env, _ := config.EnvOverrideFor(key)
		_, _ = fmt.Fprintf(stdout, "note: %s is overridden by %s\n", key, env)
	}
	_, _ = fmt.Fprintf(stdout, "%s: ok (%d film(s), %d missing script(s))\n", args[0], len(cfg.Films), missing)
	return nil
}

func cmdInitConfig(args []string, stdout io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: init-config takes at most one path", errUsage)
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else if p, err := config.ConfigPath(); err == nil {
		path = p
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.Defaults()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Wrote default config to %s\n", path)
	return nil
}
