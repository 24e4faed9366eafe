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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type memKeyring map[string]string

func (m memKeyring) Get(service, user string) (string, error) {
	v, ok := m[service+"/"+user]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (m memKeyring) Set(service, user, secret string) error {
	m[service+"/"+user] = secret
	return nil
}

func (m memKeyring) Delete(service, user string) error {
	if _, ok := m[service+"/"+user]; !ok {
		return keyring.ErrNotFound
	}
	delete(m, service+"/"+user)
	return nil
}

func useMemKeyring(t *testing.T) memKeyring {
	t.Helper()
	m := memKeyring{}
	old := tokenStore
	tokenStore = m
	t.Cleanup(func() { tokenStore = old })
	return m
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadMissingDefaultFileYieldsDefaults(t *testing.T) {
	useMemKeyring(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvPGDSN, "")
	cfg, dsn, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, dsn)
	assert.Equal(t, 30, cfg.Parser.CueMinIndent)
	assert.Equal(t, 20, cfg.Parser.DialogueMinIndent)
	assert.Equal(t, 30, cfg.Parser.CueMaxLen)
	require.Len(t, cfg.Films, 2)
	assert.Equal(t, "Pulp Fiction", cfg.Films[0].Name)
	assert.Equal(t, []string{"HENRY", "TOMMY", "JIMMY"}, cfg.Films[1].Characters)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	useMemKeyring(t)
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadResolvesFilmPathsAgainstConfigDir(t *testing.T) {
	useMemKeyring(t)
	p := writeConfig(t, `
films:
  - name: Heat
    path: scripts/heat.txt
    characters: [neil, vincent]
  - name: Alien
    path: /abs/alien.txt
    characters: [RIPLEY]
`)
	cfg, _, err := Load(p)
	require.NoError(t, err)
	require.Len(t, cfg.Films, 2)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "scripts", "heat.txt"), cfg.Films[0].Path)
	assert.Equal(t, "/abs/alien.txt", cfg.Films[1].Path)
	assert.True(t, cfg.Films[0].Targets().Contains("NEIL"))
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	useMemKeyring(t)
	cases := map[string]string{
		"workers zero":        "output:\n  workers: 0\n",
		"characters missing":  "films:\n  - name: X\n    path: x.txt\n",
		"bad log format":      "logging:\n  format: xml\n",
		"indent not a number": "parser:\n  cue_min_indent: wide\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestValidateCrossFieldRules(t *testing.T) {
	cfg := Defaults()
	cfg.Parser.DialogueMinIndent = 30
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Films = append(cfg.Films, cfg.Films[0])
	assert.ErrorContains(t, cfg.Validate(), "duplicate")

	cfg = Defaults()
	cfg.Films[0].Characters = []string{"  "}
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Defaults().Validate())
}

func TestEmptyExcludedPrefixesDisablesExclusion(t *testing.T) {
	dst := Defaults()
	src := AppConfig{}
	src.Parser.ExcludedPrefixes = []string{}
	mergeInto(&dst, &src)
	assert.NotNil(t, dst.Parser.ExcludedPrefixes)
	assert.Empty(t, dst.Parser.ExcludedPrefixes)

	dst = Defaults()
	mergeInto(&dst, &AppConfig{})
	assert.Equal(t, Defaults().Parser.ExcludedPrefixes, dst.Parser.ExcludedPrefixes)
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/sdx.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/sdx.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	useMemKeyring(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/sdx.log")
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/sdx.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
	env, ok := EnvOverrideFor("logging.format")
	assert.True(t, ok)
	assert.Equal(t, EnvLogFormat, env)
}

func TestEnvOverridesParserAndOutput(t *testing.T) {
	useMemKeyring(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvCueMinIndent, "25")
	t.Setenv(EnvDialogueMinIndent, "10")
	t.Setenv(EnvCueMaxLen, "40")
	t.Setenv(EnvWorkers, "4")
	t.Setenv(EnvKeepEmpty, "yes")
	t.Setenv(EnvOutputDir, "/tmp/sdx-out")
	t.Setenv(EnvBackendEnabled, "on")
	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Parser.CueMinIndent)
	assert.Equal(t, 10, cfg.Parser.DialogueMinIndent)
	assert.Equal(t, 40, cfg.Parser.CueMaxLen)
	assert.Equal(t, 4, cfg.Output.Workers)
	assert.True(t, cfg.Output.KeepEmpty)
	assert.Equal(t, "/tmp/sdx-out", cfg.Output.Dir)
	assert.True(t, cfg.Backend.Enabled)
}

func TestDSNFromEnvWinsOverKeyring(t *testing.T) {
	m := useMemKeyring(t)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, SaveDSN("postgres://kr"))
	assert.Equal(t, "postgres://kr", m[keyringService+"/"+keyringDSN])

	t.Setenv(EnvPGDSN, "")
	t.Setenv(EnvBackendEnabled, "true")
	_, dsn, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://kr", dsn)

	t.Setenv(EnvPGDSN, "postgres://env")
	_, dsn, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", dsn)
}

type countingKeyring struct {
	memKeyring
	gets int
}

func (c *countingKeyring) Get(service, user string) (string, error) {
	c.gets++
	return c.memKeyring.Get(service, user)
}

func TestLoadSkipsKeyringWhenBackendDisabled(t *testing.T) {
	kr := &countingKeyring{memKeyring: memKeyring{keyringService + "/" + keyringDSN: "postgres://kr"}}
	old := tokenStore
	tokenStore = kr
	t.Cleanup(func() { tokenStore = old })
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvPGDSN, "")
	t.Setenv(EnvBackendEnabled, "")

	_, dsn, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, dsn)
	assert.Zero(t, kr.gets)

	assert.Equal(t, "postgres://kr", LookupDSN())
	assert.Equal(t, 1, kr.gets)
}

func TestLoadWithoutFileKeepsFilmPathsRelative(t *testing.T) {
	useMemKeyring(t)
	t.Setenv("HOME", t.TempDir())
	cfg, _, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Films, 2)
	assert.Equal(t, "pulpfiction.txt", cfg.Films[0].Path)
	assert.Equal(t, "goodfellas.txt", cfg.Films[1].Path)
}

func TestOverriddenKeys(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k.env, "")
	}
	assert.Empty(t, OverriddenKeys())
	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvLogLevel, "debug")
	assert.Equal(t, []string{"output.workers", "logging.level"}, OverriddenKeys())
	env, ok := EnvOverrideFor("output.workers")
	assert.True(t, ok)
	assert.Equal(t, EnvWorkers, env)
	_, ok = EnvOverrideFor("films")
	assert.False(t, ok)
}

func TestSaveDSNEmptyDeletes(t *testing.T) {
	m := useMemKeyring(t)
	require.NoError(t, SaveDSN(""))
	require.NoError(t, SaveDSN("postgres://x"))
	require.NoError(t, SaveDSN("  "))
	assert.Empty(t, m)
}

func TestSaveRoundTrip(t *testing.T) {
	useMemKeyring(t)
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.Output.Workers = 3
	cfg.Films = cfg.Films[:1]
	require.NoError(t, Save(p, cfg))
	got, _, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Output.Workers)
	require.Len(t, got.Films, 1)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "pulpfiction.txt"), got.Films[0].Path)
}

func TestBackendTimeoutFallsBack(t *testing.T) {
	assert.Equal(t, 10*time.Second, BackendConfig{}.Timeout())
	assert.Equal(t, 250*time.Millisecond, BackendConfig{TimeoutMs: 250}.Timeout())
}
