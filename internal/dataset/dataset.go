/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package dataset runs the screenplay pipeline over a set of films and assembles the
// cleaned dialogue table together with per-film diagnostics and summary statistics.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	applog "scriptdialogue/internal/log"
	"scriptdialogue/internal/screenplay"
)

// FilmSource names one script file and the characters to extract from it.
type FilmSource struct {
	Name    string
	Path    string
	Targets screenplay.TargetSet
}

// Options tune a Build call. The zero value uses default thresholds, one worker
// and drops rows whose cleaned dialogue is empty.
type Options struct {
	Thresholds screenplay.Thresholds
	KeepEmpty  bool
	Workers    int
}

// Severity of a film diagnostic.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
)

// Diagnostic is a per-film note recorded during a run.
type Diagnostic struct {
	Film     string   `json:"film"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// FilmResult summarises one film of a run.
type FilmResult struct {
	Film    string `json:"film"`
	Path    string `json:"path"`
	Lines   int    `json:"lines"`
	Records int    `json:"records"`
	Dropped int    `json:"dropped"`
	Err     error  `json:"-"`
}

// Run is the outcome of one Build call.
type Run struct {
	ID          string                             `json:"id"`
	StartedAt   time.Time                          `json:"started_at"`
	FinishedAt  time.Time                          `json:"finished_at"`
	Films       []FilmResult                       `json:"films"`
	Records     []screenplay.CleanedDialogueRecord `json:"records"`
	Diagnostics []Diagnostic                       `json:"diagnostics"`
}

// Build reads, scans and cleans every film. Unreadable or missing scripts yield a
// warning and zero records for that film; other films continue. Records keep the
// order of sources regardless of the worker count. Only context cancellation aborts.
func Build(ctx context.Context, sources []FilmSource, opts Options) (*Run, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Thresholds.CueMinIndent == 0 && opts.Thresholds.CueMaxLen == 0 {
		opts.Thresholds = screenplay.DefaultThresholds()
	}
	run := &Run{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	ctx = applog.ContextWithRun(ctx, run.ID)
	l := applog.WithOperation(applog.WithComponent("dataset"), "build")
	l.InfoContext(ctx, "run started", slog.Int("films", len(sources)), slog.Int("workers", opts.Workers))

	type outcome struct {
		res     FilmResult
		records []screenplay.CleanedDialogueRecord
		diags   []Diagnostic
	}
	outs := make([]outcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fctx := applog.ContextWithFilm(gctx, src.Name)
			res, recs, diags := buildFilm(fctx, l, src, opts)
			outs[i] = outcome{res: res, records: recs, diags: diags}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build run: %w", err)
	}

	for _, o := range outs {
		run.Films = append(run.Films, o.res)
		run.Records = append(run.Records, o.records...)
		run.Diagnostics = append(run.Diagnostics, o.diags...)
	}
	run.FinishedAt = time.Now().UTC()
	l.InfoContext(ctx, "run finished",
		slog.Int("records", len(run.Records)),
		slog.Int("diagnostics", len(run.Diagnostics)),
		slog.Duration("took", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

func buildFilm(ctx context.Context, l *slog.Logger, src FilmSource, opts Options) (FilmResult, []screenplay.CleanedDialogueRecord, []Diagnostic) {
	res := FilmResult{Film: src.Name, Path: src.Path}
	lines, err := screenplay.ReadScript(src.Path)
	if err != nil {
		res.Err = err
		msg := "script unreadable"
		if errors.Is(err, screenplay.ErrMissingFile) {
			msg = "script missing"
		}
		l.WarnContext(ctx, msg, slog.String("path", src.Path), slog.Any("err", err))
		return res, nil, []Diagnostic{{Film: src.Name, Severity: SeverityWarn, Message: err.Error()}}
	}
	res.Lines = len(lines)

	sc := screenplay.NewScanner(opts.Thresholds, src.Name, src.Targets)
	cleaned := screenplay.CleanRecords(sc.Scan(lines))
	kept := cleaned[:0]
	for _, r := range cleaned {
		if r.CleanedDialogue == "" && !opts.KeepEmpty {
			res.Dropped++
			continue
		}
		kept = append(kept, r)
	}
	res.Records = len(kept)
	l.DebugContext(ctx, "film parsed", slog.Int("lines", res.Lines), slog.Int("records", res.Records), slog.Int("dropped", res.Dropped))

	var diags []Diagnostic
	if len(kept) == 0 {
		l.InfoContext(ctx, "no dialogue matched", slog.Any("targets", src.Targets.Names()))
		diags = append(diags, Diagnostic{Film: src.Name, Severity: SeverityInfo, Message: "no dialogue matched the target characters"})
	}
	return res, kept, diags
}

// Failed reports whether any film could not be read.
func (r *Run) Failed() bool {
	for _, f := range r.Films {
		if f.Err != nil {
			return true
		}
	}
	return false
}
