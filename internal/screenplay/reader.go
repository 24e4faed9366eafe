/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package screenplay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

var (
	// ErrMissingFile is returned when a script path does not exist.
	ErrMissingFile = errors.New("script file not found")
	// ErrUnreadableFile is returned when a script exists but cannot be read.
	ErrUnreadableFile = errors.New("script file unreadable")
)

// ReadScript reads the whole file at path into lines. Invalid UTF-8 byte
// sequences are dropped rather than failing the read.
func ReadScript(path string) ([]Line, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, path, err)
	}
	return SplitLines(strings.ToValidUTF8(string(b), "")), nil
}

// SplitLines splits text on "\n", "\r\n" and "\r". Terminators are removed and
// everything else, leading whitespace included, is kept verbatim. A trailing
// terminator does not produce an extra empty line.
func SplitLines(text string) []Line {
	if text == "" {
		return nil
	}
	lines := make([]Line, 0, strings.Count(text, "\n")+1)
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			lines = append(lines, NewLine(text[start:i]))
			start = i + 1
		case '\r':
			lines = append(lines, NewLine(text[start:i]))
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, NewLine(text[start:]))
	}
	return lines
}
