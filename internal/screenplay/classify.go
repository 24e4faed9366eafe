/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package screenplay

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Thresholds holds the layout heuristics used to classify lines.
// All values come from configuration; DefaultThresholds mirrors common
// screenplay layouts where cues sit around column 37 and dialogue around column 25.
type Thresholds struct {
	CueMinIndent      int      `yaml:"cue_min_indent" json:"cue_min_indent"`
	DialogueMinIndent int      `yaml:"dialogue_min_indent" json:"dialogue_min_indent"`
	CueMaxLen         int      `yaml:"cue_max_len" json:"cue_max_len"`
	ExcludedPrefixes  []string `yaml:"excluded_prefixes" json:"excluded_prefixes"`
}

// DefaultExcludedPrefixes are scene headings and transitions that look like cues.
var DefaultExcludedPrefixes = []string{"INT.", "EXT.", "CUT TO:", "FADE IN:", "FADE OUT:"}

// DefaultThresholds returns the stock heuristics.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CueMinIndent:      30,
		DialogueMinIndent: 20,
		CueMaxLen:         30,
		ExcludedPrefixes:  append([]string(nil), DefaultExcludedPrefixes...),
	}
}

// Kind is the classification of a single line.
type Kind int

const (
	KindOther Kind = iota
	KindCue
	KindDialogue
)

func (k Kind) String() string {
	switch k {
	case KindCue:
		return "cue"
	case KindDialogue:
		return "dialogue"
	default:
		return "other"
	}
}

// Classify maps l to exactly one Kind. Cue and dialogue candidates are disjoint
// because their indentation ranges do not overlap.
func (t Thresholds) Classify(l Line) Kind {
	switch {
	case t.IsCueCandidate(l):
		return KindCue
	case t.IsDialogueCandidate(l):
		return KindDialogue
	default:
		return KindOther
	}
}

// IsCueCandidate reports whether l looks like a character cue.
func (t Thresholds) IsCueCandidate(l Line) bool {
	s := l.Stripped()
	if s == "" || !isUpper(s) {
		return false
	}
	if l.Indent < t.CueMinIndent {
		return false
	}
	if utf8.RuneCountInString(s) >= t.CueMaxLen {
		return false
	}
	for _, p := range t.ExcludedPrefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return false
		}
	}
	return true
}

// IsDialogueCandidate reports whether l can belong to a dialogue block.
// Upper-case lines are refused so an under-indented cue is never swallowed as speech.
func (t Thresholds) IsDialogueCandidate(l Line) bool {
	s := l.Stripped()
	if s == "" {
		return false
	}
	if l.Indent < t.DialogueMinIndent || l.Indent >= t.CueMinIndent {
		return false
	}
	return !isUpper(s)
}

// NormalizeCueName strips a trailing parenthetical such as (O.S.), (V.O.) or (CONT'D)
// from a cue. The cut starts at the first '(' of the line.
func NormalizeCueName(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasSuffix(s, ")") {
		if i := strings.IndexByte(s, '('); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// isUpper reports whether s has at least one cased letter and no lower- or
// title-case letters. Digits and punctuation do not count either way.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		switch {
		case unicode.IsLower(r), unicode.IsTitle(r):
			return false
		case unicode.IsUpper(r):
			cased = true
		}
	}
	return cased
}
