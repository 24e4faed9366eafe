/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package screenplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pulpScanner() *Scanner {
	return NewScanner(DefaultThresholds(), "Pulp Fiction", NewTargetSet("VINCENT", "JULES", "MIA", "BUTCH"))
}

func TestScanEndToEnd(t *testing.T) {
	lines := SplitLines("                              JULES\n" +
		"                    Say what again.\n" +
		"                    I dare you.\n")
	recs := NewScanner(DefaultThresholds(), "Pulp Fiction", NewTargetSet("JULES")).Scan(lines)
	require.Len(t, recs, 1)
	assert.Equal(t, DialogueRecord{Film: "Pulp Fiction", Character: "JULES", Dialogue: "Say what again. I dare you."}, recs[0])
}

func TestScanJoinsBlockInOrder(t *testing.T) {
	lines := []Line{
		indented(32, "VINCENT"),
		indented(22, "And you know what they call a"),
		indented(22, "Quarter Pounder with Cheese in Paris?"),
	}
	recs := pulpScanner().Scan(lines)
	require.Len(t, recs, 1)
	assert.Equal(t, "VINCENT", recs[0].Character)
	assert.Equal(t, "And you know what they call a Quarter Pounder with Cheese in Paris?", recs[0].Dialogue)
}

func TestScanRejectsNonTargetCue(t *testing.T) {
	lines := []Line{
		indented(32, "PUMPKIN"),
		indented(22, "Everybody be cool, this is a robbery!"),
		indented(22, "Any of you move, I'll execute you."),
	}
	assert.Empty(t, pulpScanner().Scan(lines))
}

func TestScanNormalizesAnnotatedCue(t *testing.T) {
	lines := []Line{
		indented(31, "JULES (V.O.)"),
		indented(22, "The path of the righteous man..."),
	}
	recs := pulpScanner().Scan(lines)
	require.Len(t, recs, 1)
	assert.Equal(t, "JULES", recs[0].Character)
}

func TestScanCueWithoutDialogueYieldsNothing(t *testing.T) {
	cases := map[string][]Line{
		"blank": {
			indented(32, "MIA"),
			indented(0, ""),
			indented(22, "Don't you hate that?"),
		},
		"another cue": {
			indented(32, "MIA"),
			indented(32, "PUMPKIN"),
			indented(22, "Garcon! Coffee!"),
		},
		"action line": {
			indented(32, "BUTCH"),
			indented(0, "Butch looks at the watch."),
			indented(22, "Zed's dead, baby."),
		},
		"end of input": {
			indented(32, "BUTCH"),
		},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, pulpScanner().Scan(lines))
		})
	}
}

func TestScanReexaminesLineThatClosesBlock(t *testing.T) {
	lines := []Line{
		indented(32, "JULES"),
		indented(22, "Check out the big brain on Brett!"),
		indented(32, "VINCENT"),
		indented(22, "Royale with cheese."),
		indented(32, "MIA (O.S.)"),
		indented(22, "Vincent?"),
	}
	recs := pulpScanner().Scan(lines)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"JULES", "VINCENT", "MIA"}, []string{recs[0].Character, recs[1].Character, recs[2].Character})
	assert.Equal(t, "Royale with cheese.", recs[1].Dialogue)
}

func TestScanTargetSetIsPerFilm(t *testing.T) {
	lines := []Line{
		indented(32, "JIMMY"),
		indented(22, "Never rat on your friends."),
	}
	th := DefaultThresholds()
	assert.Empty(t, NewScanner(th, "Pulp Fiction", NewTargetSet("JULES", "VINCENT")).Scan(lines))
	recs := NewScanner(th, "Goodfellas", NewTargetSet("HENRY", "TOMMY", "JIMMY")).Scan(lines)
	require.Len(t, recs, 1)
	assert.Equal(t, "Goodfellas", recs[0].Film)
}

func TestStepKeepsCursorOnFailingLine(t *testing.T) {
	s := pulpScanner()
	lines := []Line{
		indented(32, "JULES"),
		indented(22, "English, do you speak it?"),
		indented(32, "VINCENT"),
	}
	st := State{Mode: SeekCue}

	st, _, ok := s.Step(lines, st)
	require.False(t, ok)
	assert.Equal(t, State{Mode: CollectDialogue, Cursor: 1, Character: "JULES", BlockStart: 1}, st)

	st, _, ok = s.Step(lines, st)
	require.False(t, ok)
	assert.Equal(t, 2, st.Cursor)

	st, rec, ok := s.Step(lines, st)
	require.True(t, ok)
	assert.Equal(t, "English, do you speak it?", rec.Dialogue)
	assert.Equal(t, State{Mode: SeekCue, Cursor: 2}, st, "the closing line must be re-examined")

	st, _, ok = s.Step(lines, st)
	require.False(t, ok)
	assert.Equal(t, CollectDialogue, st.Mode)
	assert.Equal(t, "VINCENT", st.Character)

	st, _, ok = s.Step(lines, st)
	require.False(t, ok, "empty block at end of input")
	assert.True(t, st.Done(len(lines)))
}

func TestStepDoesNotMutateInputState(t *testing.T) {
	s := pulpScanner()
	lines := []Line{indented(32, "JULES"), indented(22, "Hello.")}
	in := State{Mode: CollectDialogue, Cursor: 1, Character: "JULES", BlockStart: 1}
	next, _, _ := s.Step(lines, in)
	assert.Equal(t, 1, in.Cursor)
	assert.Equal(t, 2, next.Cursor)
}

func TestRecordsStopsEarlyAndRestarts(t *testing.T) {
	s := pulpScanner()
	lines := []Line{
		indented(32, "JULES"), indented(22, "One."),
		indented(32, "JULES"), indented(22, "Two."),
	}
	var first []DialogueRecord
	for rec := range s.Records(lines) {
		first = append(first, rec)
		break
	}
	require.Len(t, first, 1)
	assert.Equal(t, "One.", first[0].Dialogue)
	assert.Len(t, s.Scan(lines), 2)
	assert.Equal(t, s.Scan(lines), s.Scan(lines))
}

func TestScanTabIndentedLinesAreNotCues(t *testing.T) {
	lines := SplitLines("\t\t\t\tJULES\n\t\t\tSay what again.\n")
	assert.Empty(t, pulpScanner().Scan(lines))
}
