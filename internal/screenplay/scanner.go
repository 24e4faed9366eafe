/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package screenplay

import (
	"iter"
	"strings"
)

// Mode is the scanner state.
type Mode int

const (
	// SeekCue scans for the next accepted character cue.
	SeekCue Mode = iota
	// CollectDialogue accumulates the block following an accepted cue.
	CollectDialogue
)

// State is everything a scan carries between steps. It is a plain value, so a scan
// can be replayed or inspected line by line.
// While collecting, the pending block is lines[BlockStart:Cursor].
type State struct {
	Mode       Mode
	Cursor     int
	Character  string
	BlockStart int
}

// Scanner pairs accepted cues of one film with the dialogue blocks below them.
// It holds only configuration; all per-scan state lives in State.
type Scanner struct {
	Thresholds Thresholds
	Film       string
	Targets    TargetSet
}

// NewScanner returns a scanner for film using t and targets.
func NewScanner(t Thresholds, film string, targets TargetSet) *Scanner {
	return &Scanner{Thresholds: t, Film: film, Targets: targets}
}

// Done reports whether st has consumed all n lines with nothing pending.
func (st State) Done(n int) bool {
	return st.Mode == SeekCue && st.Cursor >= n
}

// Step advances st by one decision. When a dialogue block closes with content,
// the record is returned with ok set. A block that closes on a failing line leaves
// the cursor on that line so the next step re-examines it as a cue.
func (s *Scanner) Step(lines []Line, st State) (next State, rec DialogueRecord, ok bool) {
	switch st.Mode {
	case CollectDialogue:
		if st.Cursor < len(lines) && s.Thresholds.IsDialogueCandidate(lines[st.Cursor]) {
			st.Cursor++
			return st, DialogueRecord{}, false
		}
		next = State{Mode: SeekCue, Cursor: st.Cursor}
		if st.Cursor <= st.BlockStart {
			return next, DialogueRecord{}, false
		}
		return next, DialogueRecord{
			Film:      s.Film,
			Character: st.Character,
			Dialogue:  joinStripped(lines[st.BlockStart:st.Cursor]),
		}, true
	default:
		if st.Cursor >= len(lines) {
			return st, DialogueRecord{}, false
		}
		l := lines[st.Cursor]
		if s.Thresholds.IsCueCandidate(l) {
			if name := NormalizeCueName(l.Text); s.Targets.Contains(name) {
				return State{Mode: CollectDialogue, Cursor: st.Cursor + 1, Character: name, BlockStart: st.Cursor + 1}, DialogueRecord{}, false
			}
		}
		return State{Mode: SeekCue, Cursor: st.Cursor + 1}, DialogueRecord{}, false
	}
}

// Records yields the film's dialogue records in script order. Each call starts a
// fresh scan.
func (s *Scanner) Records(lines []Line) iter.Seq[DialogueRecord] {
	return func(yield func(DialogueRecord) bool) {
		st := State{Mode: SeekCue}
		for !st.Done(len(lines)) {
			var (
				rec DialogueRecord
				ok  bool
			)
			st, rec, ok = s.Step(lines, st)
			if ok && !yield(rec) {
				return
			}
		}
	}
}

// Scan collects all records of lines.
func (s *Scanner) Scan(lines []Line) []DialogueRecord {
	var out []DialogueRecord
	for rec := range s.Records(lines) {
		out = append(out, rec)
	}
	return out
}

func joinStripped(block []Line) string {
	var b strings.Builder
	for i, l := range block {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(l.Stripped())
	}
	return b.String()
}
