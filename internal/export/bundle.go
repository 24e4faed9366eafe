/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "scriptdialogue/internal/log"
	"scriptdialogue/internal/version"
)

// BundleManifestName is the text file added at the root of every bundle.
const BundleManifestName = "bundle.manifest.txt"

// WriteBundle zips the output directory into destZipPath. The archive preserves the
// directory structure and adds a small manifest at its root. SQLite side files
// (-wal, -shm) and the archive itself are skipped.
func WriteBundle(outDir string, destZipPath string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("export"), "bundle").With(slog.String("dir", outDir))
	if strings.TrimSpace(outDir) == "" {
		return 0, errors.New("outDir is required")
	}
	if strings.TrimSpace(destZipPath) == "" {
		return 0, errors.New("destZipPath is required")
	}
	if st, err := os.Stat(outDir); err != nil || !st.IsDir() {
		return 0, fmt.Errorf("output directory %s not found", outDir)
	}
	destAbs, err := filepath.Abs(destZipPath)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(destZipPath), 0o755); err != nil {
		return 0, fmt.Errorf("ensure zip dir: %w", err)
	}
	// On Windows, remove destination if present before create
	_ = os.Remove(destZipPath)

	zf, err := os.Create(destZipPath)
	if err != nil {
		return 0, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	manifest := fmt.Sprintf("%s dialogue bundle\nCreated: %s\nSource: %s\n\nContents mirror the output directory.\n",
		version.String(), time.Now().Format(time.RFC3339), outDir)
	w, err := zw.Create(BundleManifestName)
	if err != nil {
		return 0, fmt.Errorf("add manifest: %w", err)
	}
	if _, err := w.Write([]byte(manifest)); err != nil {
		return 0, fmt.Errorf("write manifest: %w", err)
	}

	added := 0
	err = filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, "-wal") || strings.HasSuffix(path, "-shm") {
			return nil
		}
		if abs, aerr := filepath.Abs(path); aerr == nil && abs == destAbs {
			return nil
		}
		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			return err
		}
		// Forward slashes inside the zip
		fw, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if _, err := io.Copy(fw, f); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		l.Error("zip build failed", slog.Any("err", err))
		return added, fmt.Errorf("build zip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("finish zip: %w", err)
	}
	l.Info("bundle written", slog.Int("files", added), slog.String("zip", destZipPath))
	return added, nil
}

// BundleContents lists the file names stored in a bundle, manifest excluded.
func BundleContents(zipPath string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = r.Close() }()
	var names []string
	for _, f := range r.File {
		if f.Name == BundleManifestName || f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	return names, nil
}
