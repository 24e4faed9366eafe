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

// CleanDialogue turns a raw dialogue block into speech-only text:
//   - every non-nested "(...)" span is removed as stage direction,
//   - a leaked speaker prefix such as "JULES:" or "JULES (O.S.):" is removed,
//   - whitespace runs collapse to one space and the result is trimmed.
//
// An empty result is valid. The function is idempotent.
func CleanDialogue(raw string) string {
	s := stripParentheticals(raw)
	for {
		n, ok := speakerPrefixLen(s)
		if !ok {
			break
		}
		s = s[n:]
	}
	return strings.Join(strings.Fields(s), " ")
}

// CleanRecords normalizes every record. It never drops a record.
func CleanRecords(recs []DialogueRecord) []CleanedDialogueRecord {
	out := make([]CleanedDialogueRecord, len(recs))
	for i, r := range recs {
		out[i] = CleanedDialogueRecord{DialogueRecord: r, CleanedDialogue: CleanDialogue(r.Dialogue)}
	}
	return out
}

// stripParentheticals removes each '(' together with everything up to the first
// ')' after it. A '(' with no closing ')' is kept as is.
func stripParentheticals(s string) string {
	if strings.IndexByte(s, '(') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.IndexByte(s, '(')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open:], ')')
		if end < 0 {
			break
		}
		b.WriteString(s[:open])
		s = s[open+end+1:]
	}
	b.WriteString(s)
	return b.String()
}

// speakerPrefixLen matches a leading "NAME (annotation): " at the start of s and
// returns its byte length. NAME is a non-empty run of A-Z and whitespace; the
// annotation is optional and may not span a newline.
func speakerPrefixLen(s string) (int, bool) {
	i := 0
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !(r >= 'A' && r <= 'Z') && !unicode.IsSpace(r) {
			break
		}
		i += w
	}
	if i == 0 || i >= len(s) {
		return 0, false
	}
	switch s[i] {
	case ':':
		i++
	case '(':
		// The annotation ends at the last ')' directly followed by ':' before any newline.
		limit := len(s)
		if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
			limit = i + nl
		}
		rp := -1
		for k := limit - 1; k > i; k-- {
			if s[k] == ')' && k+1 < len(s) && s[k+1] == ':' {
				rp = k
				break
			}
		}
		if rp < 0 {
			return 0, false
		}
		i = rp + 2
	default:
		return 0, false
	}
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += w
	}
	return i, true
}
