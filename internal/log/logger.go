/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log configures slog for scriptdialogue.
//
// Console output is one compact line per record with a leading scope column naming
// the film and extraction run the record belongs to:
//
//	14:02:11 WRN [Goodfellas 3f2a9c1e] script unreadable component=dataset path=goodfellas.txt
//
// JSON goes to the console on request and always to the optional rotating log file.
// The film and run travel on the context (ContextWithFilm, ContextWithRun) and are
// added to every record logged with that context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"scriptdialogue/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Attribute keys shared by the handlers and callers.
const (
	FilmKey = "film"
	RunKey  = "run"
)

// Options controls logger initialization.
// Values can be provided directly or via environment variables:
//   - SDX_LOG_LEVEL=debug|info|warn|error
//   - SDX_LOG_FORMAT=console|json
//   - SDX_LOG_FILE=<path> (JSON file logging with rotation)
//   - SDX_LOG_SOURCE=true|false
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string
	Console   io.Writer // defaults to os.Stderr
}

var (
	defaultLoggerMu sync.RWMutex
	defaultLogger   *slog.Logger
)

// L returns the application logger, initializing it from the environment on first use.
func L() *slog.Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// Init configures the global logger and sets slog.Default as well.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		h = slog.NewJSONHandler(console, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})
	} else {
		h = newConsoleHandler(console, lvl, opts.AddSource)
	}
	if file := strings.TrimSpace(opts.File); file != "" {
		w := &lj.Logger{Filename: file, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		h = teeHandler{h, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})}
	}

	logger := slog.New(scopeHandler{next: h}).With(
		slog.String("app", "scriptdialogue"),
		slog.String("ver", version.Version),
	)

	defaultLoggerMu.Lock()
	defaultLogger = logger
	defaultLoggerMu.Unlock()
	slog.SetDefault(logger)
}

// FromEnv builds Options from SDX_LOG_* environment variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("SDX_LOG_LEVEL", "info"),
		Format:    getenv("SDX_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("SDX_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("SDX_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// WithRun annotates the logger with an extraction run id. Prefer ContextWithRun
// where a context is at hand.
func WithRun(l *slog.Logger, runID string) *slog.Logger { return l.With(slog.String(RunKey, runID)) }

type scopeKey struct{}

// scope is the film and run a unit of work belongs to.
type scope struct{ film, run string }

func (s scope) empty() bool { return s.film == "" && s.run == "" }

func scopeFrom(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// ContextWithFilm returns a context whose log records carry film=<name>.
func ContextWithFilm(ctx context.Context, film string) context.Context {
	s := scopeFrom(ctx)
	s.film = film
	return context.WithValue(ctx, scopeKey{}, s)
}

// ContextWithRun returns a context whose log records carry run=<id>.
func ContextWithRun(ctx context.Context, runID string) context.Context {
	s := scopeFrom(ctx)
	s.run = runID
	return context.WithValue(ctx, scopeKey{}, s)
}

// FilmFromContext returns the film stored by ContextWithFilm.
func FilmFromContext(ctx context.Context) (string, bool) {
	f := scopeFrom(ctx).film
	return f, f != ""
}

// RunFromContext returns the run id stored by ContextWithRun.
func RunFromContext(ctx context.Context) (string, bool) {
	r := scopeFrom(ctx).run
	return r, r != ""
}

func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// scopeHandler adds the film and run carried by the context to each record.
type scopeHandler struct{ next slog.Handler }

func (h scopeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h scopeHandler) Handle(ctx context.Context, r slog.Record) error {
	if s := scopeFrom(ctx); !s.empty() {
		r = r.Clone()
		if s.film != "" {
			r.AddAttrs(slog.String(FilmKey, s.film))
		}
		if s.run != "" {
			r.AddAttrs(slog.String(RunKey, s.run))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h scopeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return scopeHandler{next: h.next.WithAttrs(attrs)}
}

func (h scopeHandler) WithGroup(name string) slog.Handler {
	return scopeHandler{next: h.next.WithGroup(name)}
}

// teeHandler writes each record to the console handler and the log file handler.
type teeHandler struct{ console, file slog.Handler }

func (h teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var cerr error
	if h.console.Enabled(ctx, r.Level) {
		cerr = h.console.Handle(ctx, r)
	}
	if h.file.Enabled(ctx, r.Level) {
		if err := h.file.Handle(ctx, r); err != nil {
			return err
		}
	}
	return cerr
}

func (h teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{h.console.WithAttrs(attrs), h.file.WithAttrs(attrs)}
}

func (h teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{h.console.WithGroup(name), h.file.WithGroup(name)}
}

// consoleHandler renders "time level [film run] msg key=val ...".
// The film and run attributes move into the scope column; app and ver are left to
// the JSON outputs.
type consoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	source bool
	scope  scope
	attrs  string // pre-rendered " key=val" pairs from WithAttrs
	group  string // dotted prefix from WithGroup
}

func newConsoleHandler(w io.Writer, level slog.Leveler, source bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	sc := h.scope
	var b strings.Builder
	b.Grow(160)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))

	var rest strings.Builder
	r.Attrs(func(a slog.Attr) bool {
		if h.group == "" && absorbScope(&sc, a) {
			return true
		}
		writeAttr(&rest, h.group, a)
		return true
	})

	if !sc.empty() {
		b.WriteString(" [")
		b.WriteString(sc.film)
		if sc.run != "" {
			if sc.film != "" {
				b.WriteByte(' ')
			}
			b.WriteString(shortRun(sc.run))
		}
		b.WriteByte(']')
	}
	if r.Message != "" {
		b.WriteByte(' ')
		b.WriteString(r.Message)
	}
	b.WriteString(h.attrs)
	b.WriteString(rest.String())
	if h.source && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			b.WriteString(" src=")
			b.WriteString(filepath.Base(f.File))
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if h.group == "" {
			if absorbScope(&nh.scope, a) || a.Key == "app" || a.Key == "ver" {
				continue
			}
		}
		writeAttr(&b, h.group, a)
	}
	nh.attrs = b.String()
	return &nh
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.group = h.group + name + "."
	return &nh
}

// absorbScope moves a top-level film or run attribute into s.
func absorbScope(s *scope, a slog.Attr) bool {
	switch a.Key {
	case FilmKey:
		s.film = a.Value.Resolve().String()
	case RunKey:
		s.run = a.Value.Resolve().String()
	default:
		return false
	}
	return true
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			writeAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(v))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " =\"\t\n") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
		return v.String()
	default:
		return v.String()
	}
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERR"
	case l >= slog.LevelWarn:
		return "WRN"
	case l >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

// shortRun trims a UUID run id to its first block for the console.
func shortRun(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
