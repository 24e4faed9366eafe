/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dataset

import (
	"math"
	"slices"
	"strings"

	"scriptdialogue/internal/screenplay"
)

// GroupStats aggregates words per cleaned dialogue for one group of records.
// Std is the sample standard deviation and is 0 for groups of one.
type GroupStats struct {
	Film      string  `json:"film"`
	Character string  `json:"character,omitempty"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean_words"`
	Median    float64 `json:"median_words"`
	Std       float64 `json:"std_words"`
}

// WordCount is the metric the statistics are computed over.
func WordCount(r screenplay.CleanedDialogueRecord) int {
	return len(strings.Fields(r.CleanedDialogue))
}

// CharacterStats groups records by (film, character) in first-seen order.
func CharacterStats(records []screenplay.CleanedDialogueRecord) []GroupStats {
	return group(records, func(r screenplay.CleanedDialogueRecord) [2]string {
		return [2]string{r.Film, r.Character}
	})
}

// FilmStats groups records by film in first-seen order.
func FilmStats(records []screenplay.CleanedDialogueRecord) []GroupStats {
	return group(records, func(r screenplay.CleanedDialogueRecord) [2]string {
		return [2]string{r.Film, ""}
	})
}

func group(records []screenplay.CleanedDialogueRecord, key func(screenplay.CleanedDialogueRecord) [2]string) []GroupStats {
	var order [][2]string
	values := map[[2]string][]float64{}
	for _, r := range records {
		k := key(r)
		if _, ok := values[k]; !ok {
			order = append(order, k)
		}
		values[k] = append(values[k], float64(WordCount(r)))
	}
	out := make([]GroupStats, 0, len(order))
	for _, k := range order {
		vs := values[k]
		out = append(out, GroupStats{
			Film:      k[0],
			Character: k[1],
			Count:     len(vs),
			Mean:      mean(vs),
			Median:    median(vs),
			Std:       sampleStd(vs),
		})
	}
	return out
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func median(vs []float64) float64 {
	n := len(vs)
	if n == 0 {
		return 0
	}
	s := slices.Clone(vs)
	slices.Sort(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func sampleStd(vs []float64) float64 {
	n := len(vs)
	if n < 2 {
		return 0
	}
	m := mean(vs)
	var ss float64
	for _, v := range vs {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(n-1))
}
