/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"scriptdialogue/internal/screenplay"
)

var (
	cleanedHeader = []string{"film", "character", "dialogue", "cleaned_dialogue"}
	rawHeader     = []string{"film", "character", "dialogue"}
)

// WriteCSV writes the cleaned dialogue table with a header row.
func WriteCSV(path string, records []screenplay.CleanedDialogueRecord) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(cleanedHeader); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write([]string{r.Film, r.Character, r.Dialogue, r.CleanedDialogue}); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteRawCSV writes the uncleaned dialogue table with a header row.
func WriteRawCSV(path string, records []screenplay.DialogueRecord) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(rawHeader); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write([]string{r.Film, r.Character, r.Dialogue}); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// ReadCSV reads a table written by WriteCSV.
func ReadCSV(r io.Reader) ([]screenplay.CleanedDialogueRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(cleanedHeader)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]screenplay.CleanedDialogueRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out = append(out, screenplay.CleanedDialogueRecord{
			DialogueRecord:  screenplay.DialogueRecord{Film: row[0], Character: row[1], Dialogue: row[2]},
			CleanedDialogue: row[3],
		})
	}
	return out, nil
}
