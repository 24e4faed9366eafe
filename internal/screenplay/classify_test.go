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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indented(n int, text string) Line {
	return NewLine(strings.Repeat(" ", n) + text)
}

func TestNewLineCountsSpacesOnly(t *testing.T) {
	assert.Equal(t, 4, NewLine("    JULES").Indent)
	assert.Equal(t, 0, NewLine("\t\t\t\tJULES").Indent)
	assert.Equal(t, 2, NewLine("  \tJULES").Indent)
	assert.Equal(t, 0, NewLine("").Indent)
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		name string
		line Line
		want Kind
	}{
		{"cue", indented(32, "JULES"), KindCue},
		{"cue with annotation", indented(31, "JULES (V.O.)"), KindCue},
		{"cue at threshold", indented(30, "MIA"), KindCue},
		{"dialogue", indented(22, "Say what again."), KindDialogue},
		{"dialogue at lower bound", indented(20, "I dare you."), KindDialogue},
		{"dialogue just below cue indent", indented(29, "Okay."), KindDialogue},
		{"under-indented cue is not dialogue", indented(22, "VINCENT"), KindOther},
		{"scene heading", indented(35, "INT. DINER - MORNING"), KindOther},
		{"transition", indented(40, "CUT TO:"), KindOther},
		{"fade in", indented(40, "FADE IN:"), KindOther},
		{"too long for a cue", indented(31, strings.Repeat("A", 30)), KindOther},
		{"mixed case heavily indented", indented(35, "Jules"), KindOther},
		{"blank", indented(40, ""), KindOther},
		{"action line", indented(0, "Jules takes a bite."), KindOther},
		{"digits only", indented(35, "2."), KindOther},
		{"too shallow for dialogue", indented(10, "Hello."), KindOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, th.Classify(tc.line))
		})
	}
}

func TestClassificationIsTotalAndDeterministic(t *testing.T) {
	th := DefaultThresholds()
	texts := []string{"", "JULES", "Jules", "INT. HOUSE", "(beat)", "OK!", "123", "JULES (O.S.)", "Yeah, yeah."}
	for indent := 0; indent <= 45; indent++ {
		for _, txt := range texts {
			l := indented(indent, txt)
			cue := th.IsCueCandidate(l)
			dlg := th.IsDialogueCandidate(l)
			require.False(t, cue && dlg, "line %q at %d is both cue and dialogue", txt, indent)
			first := th.Classify(l)
			require.Equal(t, first, th.Classify(l))
			switch {
			case cue:
				require.Equal(t, KindCue, first)
			case dlg:
				require.Equal(t, KindDialogue, first)
			default:
				require.Equal(t, KindOther, first)
			}
		}
	}
}

func TestClassifyUsesConfiguredThresholds(t *testing.T) {
	th := Thresholds{CueMinIndent: 10, DialogueMinIndent: 4, CueMaxLen: 12, ExcludedPrefixes: []string{"SCENE"}}
	assert.Equal(t, KindCue, th.Classify(indented(12, "HENRY")))
	assert.Equal(t, KindDialogue, th.Classify(indented(5, "As far back as I can remember.")))
	assert.Equal(t, KindOther, th.Classify(indented(12, "SCENE 4")))
	assert.Equal(t, KindOther, th.Classify(indented(12, "HENRY HILL JR")))
}

func TestIsUpper(t *testing.T) {
	assert.True(t, isUpper("JULES"))
	assert.True(t, isUpper("JULES'S 2ND"))
	assert.True(t, isUpper("ÉMILE"))
	assert.False(t, isUpper("123 !"))
	assert.False(t, isUpper("JULeS"))
	assert.False(t, isUpper("ǅ"))
}

func TestNormalizeCueName(t *testing.T) {
	cases := map[string]string{
		"JULES (V.O.)":             "JULES",
		"   MIA (O.S.)   ":         "MIA",
		"VINCENT (CONT'D)":         "VINCENT",
		"BUTCH":                    "BUTCH",
		"JULES (O.S.) (CONT'D)":    "JULES",
		"(V.O.)":                   "",
		"HENRY (INTO PHONE) LATER": "HENRY (INTO PHONE) LATER",
		"TOMMY(O.S.)":              "TOMMY",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCueName(in), "input %q", in)
	}
}

func TestTargetSet(t *testing.T) {
	ts := NewTargetSet(" jules ", "VINCENT", "")
	assert.True(t, ts.Contains("JULES"))
	assert.True(t, ts.Contains("VINCENT"))
	assert.False(t, ts.Contains("jules"))
	assert.False(t, ts.Contains(""))
	assert.ElementsMatch(t, []string{"JULES", "VINCENT"}, ts.Names())
}
