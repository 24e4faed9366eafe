/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package screenplay recovers (film, character, dialogue) records from plain-text
// screenplays that carry no markup. Cues and dialogue are told apart purely by layout:
// character cues are heavily indented upper-case lines, dialogue lines are moderately
// indented mixed-case lines directly below an accepted cue.
package screenplay

import "strings"

// Line is one input line with its line terminator removed.
// Indent counts leading literal space characters only; tabs are not expanded.
type Line struct {
	Text   string
	Indent int
}

// NewLine derives the indentation of raw.
func NewLine(raw string) Line {
	n := 0
	for n < len(raw) && raw[n] == ' ' {
		n++
	}
	return Line{Text: raw, Indent: n}
}

// Stripped returns the line text without surrounding whitespace.
func (l Line) Stripped() string { return strings.TrimSpace(l.Text) }

// TargetSet is the per-film allow-list of upper-case character names.
type TargetSet map[string]struct{}

// NewTargetSet builds a set from names, trimming and upper-casing each one.
// Empty names are ignored.
func NewTargetSet(names ...string) TargetSet {
	ts := make(TargetSet, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		ts[n] = struct{}{}
	}
	return ts
}

// Contains reports whether name is an accepted character. The test is exact.
func (ts TargetSet) Contains(name string) bool {
	_, ok := ts[name]
	return ok
}

// Names returns the members in no particular order.
func (ts TargetSet) Names() []string {
	out := make([]string, 0, len(ts))
	for k := range ts {
		out = append(out, k)
	}
	return out
}

// DialogueRecord is one block of dialogue attributed to a character.
// Dialogue holds the raw block lines joined by a single space and is never empty.
type DialogueRecord struct {
	Film      string `json:"film"`
	Character string `json:"character"`
	Dialogue  string `json:"dialogue"`
}

// CleanedDialogueRecord keeps the raw dialogue next to its normalized form.
// CleanedDialogue may be empty.
type CleanedDialogueRecord struct {
	DialogueRecord
	CleanedDialogue string `json:"cleaned_dialogue"`
}
