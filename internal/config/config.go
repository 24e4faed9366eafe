/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"scriptdialogue/internal/screenplay"
)

// AppConfig is the extraction configuration persisted to a YAML file.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type FilmConfig struct {
	Name       string   `yaml:"name"`
	Path       string   `yaml:"path"`
	Characters []string `yaml:"characters"`
}

type OutputConfig struct {
	Dir       string `yaml:"dir"`
	KeepEmpty bool   `yaml:"keep_empty"`
	Workers   int    `yaml:"workers"`
	PDF       bool   `yaml:"pdf"`
	// KeepRuns bounds the run history kept in the SQLite store; 0 keeps everything.
	KeepRuns int `yaml:"keep_runs"`
}

type BackendConfig struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMs int  `yaml:"timeout_ms"`
	// The DSN is not stored on disk; it lives in the OS keychain or SDX_PG_DSN.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int                   `yaml:"config_version"`
	Parser        screenplay.Thresholds `yaml:"parser"`
	Films         []FilmConfig          `yaml:"films"`
	Output        OutputConfig          `yaml:"output"`
	Logging       LoggingConfig         `yaml:"logging"`
	Backend       BackendConfig         `yaml:"backend"`
}

// Defaults returns the application defaults: stock thresholds and the two films
// the heuristics were tuned on.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Parser:        screenplay.DefaultThresholds(),
		Films: []FilmConfig{
			{Name: "Pulp Fiction", Path: "pulpfiction.txt", Characters: []string{"VINCENT", "JULES", "MIA", "BUTCH"}},
			{Name: "Goodfellas", Path: "goodfellas.txt", Characters: []string{"HENRY", "TOMMY", "JIMMY"}},
		},
		Output:  OutputConfig{Dir: "out", KeepEmpty: false, Workers: 1, PDF: false, KeepRuns: 20},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
		Backend: BackendConfig{Enabled: false, TimeoutMs: 10000},
	}
}

// Env var names used as overrides.
const (
	EnvOutputDir         = "SDX_OUTPUT_DIR"
	EnvWorkers           = "SDX_WORKERS"
	EnvKeepEmpty         = "SDX_KEEP_EMPTY"
	EnvCueMinIndent      = "SDX_CUE_MIN_INDENT"
	EnvDialogueMinIndent = "SDX_DIALOGUE_MIN_INDENT"
	EnvCueMaxLen         = "SDX_CUE_MAX_LEN"
	EnvBackendEnabled    = "SDX_BACKEND_ENABLED"
	EnvPGDSN             = "SDX_PG_DSN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SDX_LOG_LEVEL"
	EnvLogFormat = "SDX_LOG_FORMAT"
	EnvLogSource = "SDX_LOG_SOURCE"
	EnvLogFile   = "SDX_LOG_FILE"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "ScriptDialogue")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ScriptDialogue")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "scriptdialogue")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the config file at path (the per-user file when path is empty),
// applies defaults, loads a .env file from the working directory if present and
// merges environment overrides. Relative film paths in a loaded file are resolved
// against that file's directory; without a file they stay relative to the working
// directory. When the backend is enabled the Postgres DSN comes back separately
// (see LookupDSN).
func Load(path string) (AppConfig, string, error) {
	cfg := Defaults()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, "", fmt.Errorf("load .env: %w", err)
	}
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return cfg, "", err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := ValidateDocument(data); err != nil {
			return cfg, "", fmt.Errorf("config %s: %w", path, err)
		}
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
		resolveFilmPaths(&cfg, filepath.Dir(path))
	case explicit:
		return cfg, "", fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	if !cfg.Backend.Enabled {
		return cfg, "", nil
	}
	return cfg, LookupDSN(), nil
}

// Save writes cfg as YAML to path (the per-user file when empty).
func Save(path string, cfg AppConfig) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks cross-field constraints the schema cannot express.
func (c AppConfig) Validate() error {
	p := c.Parser
	if p.DialogueMinIndent < 0 || p.CueMinIndent <= p.DialogueMinIndent {
		return fmt.Errorf("parser: dialogue_min_indent (%d) must be below cue_min_indent (%d)", p.DialogueMinIndent, p.CueMinIndent)
	}
	if p.CueMaxLen <= 0 {
		return fmt.Errorf("parser: cue_max_len must be positive, got %d", p.CueMaxLen)
	}
	seen := map[string]bool{}
	for i, f := range c.Films {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("films[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("films[%d]: duplicate film %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(f.Path) == "" {
			return fmt.Errorf("film %q: path is required", name)
		}
		if len(screenplay.NewTargetSet(f.Characters...)) == 0 {
			return fmt.Errorf("film %q: at least one character is required", name)
		}
	}
	if c.Output.Workers < 1 {
		return fmt.Errorf("output: workers must be at least 1, got %d", c.Output.Workers)
	}
	return nil
}

// Targets returns the film's target set.
func (f FilmConfig) Targets() screenplay.TargetSet { return screenplay.NewTargetSet(f.Characters...) }

func resolveFilmPaths(cfg *AppConfig, base string) {
	for i := range cfg.Films {
		p := cfg.Films[i].Path
		if p != "" && !filepath.IsAbs(p) {
			cfg.Films[i].Path = filepath.Join(base, p)
		}
	}
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// parser
	if src.Parser.CueMinIndent != 0 {
		dst.Parser.CueMinIndent = src.Parser.CueMinIndent
	}
	if src.Parser.DialogueMinIndent != 0 {
		dst.Parser.DialogueMinIndent = src.Parser.DialogueMinIndent
	}
	if src.Parser.CueMaxLen != 0 {
		dst.Parser.CueMaxLen = src.Parser.CueMaxLen
	}
	// an explicit empty list disables exclusions
	if src.Parser.ExcludedPrefixes != nil {
		dst.Parser.ExcludedPrefixes = append([]string(nil), src.Parser.ExcludedPrefixes...)
	}
	if len(src.Films) > 0 {
		dst.Films = append([]FilmConfig(nil), src.Films...)
	}
	// output
	if strings.TrimSpace(src.Output.Dir) != "" {
		dst.Output.Dir = strings.TrimSpace(src.Output.Dir)
	}
	dst.Output.KeepEmpty = src.Output.KeepEmpty
	dst.Output.PDF = src.Output.PDF
	if src.Output.Workers != 0 {
		dst.Output.Workers = src.Output.Workers
	}
	if src.Output.KeepRuns != 0 {
		dst.Output.KeepRuns = src.Output.KeepRuns
	}
	// backend
	dst.Backend.Enabled = src.Backend.Enabled
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvOutputDir)); v != "" {
		cfg.Output.Dir = v
	}
	if n, ok := envInt(EnvWorkers); ok {
		cfg.Output.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvKeepEmpty)); v != "" {
		cfg.Output.KeepEmpty = parseBool(v)
	}
	if n, ok := envInt(EnvCueMinIndent); ok {
		cfg.Parser.CueMinIndent = n
	}
	if n, ok := envInt(EnvDialogueMinIndent); ok {
		cfg.Parser.DialogueMinIndent = n
	}
	if n, ok := envInt(EnvCueMaxLen); ok {
		cfg.Parser.CueMaxLen = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendEnabled)); v != "" {
		cfg.Backend.Enabled = parseBool(v)
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// envKeys maps config keys to the environment variables that override them.
var envKeys = []struct{ key, env string }{
	{"parser.cue_min_indent", EnvCueMinIndent},
	{"parser.dialogue_min_indent", EnvDialogueMinIndent},
	{"parser.cue_max_len", EnvCueMaxLen},
	{"output.dir", EnvOutputDir},
	{"output.workers", EnvWorkers},
	{"output.keep_empty", EnvKeepEmpty},
	{"backend.enabled", EnvBackendEnabled},
	{"logging.level", EnvLogLevel},
	{"logging.format", EnvLogFormat},
	{"logging.source", EnvLogSource},
	{"logging.file", EnvLogFile},
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	for _, k := range envKeys {
		if k.key == key {
			if os.Getenv(k.env) == "" {
				return "", false
			}
			return k.env, true
		}
	}
	return "", false
}

// OverriddenKeys lists the config keys currently set from the environment, in file order.
func OverriddenKeys() []string {
	var out []string
	for _, k := range envKeys {
		if _, ok := EnvOverrideFor(k.key); ok {
			out = append(out, k.key)
		}
	}
	return out
}

// Timeout returns the backend timeout, falling back to the default when unset.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}
