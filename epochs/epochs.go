// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package epochs loads the trial boundaries and prompts of a subject.
package epochs

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/OpenPSG/eegprep"
)

// Action selects which phase of the task the trial boundaries refer to.
type Action int

const (
	// Thinking is the imagined-speech phase of each trial.
	Thinking Action = iota + 1
	// Clearing is the rest phase that follows it.
	Clearing
)

// String returns the key the action is stored under in the index file.
func (a Action) String() string {
	switch a {
	case Thinking:
		return "thinking_inds"
	case Clearing:
		return "clearing_inds"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction maps an index file key onto an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "thinking_inds":
		return Thinking, nil
	case "clearing_inds":
		return Clearing, nil
	}
	return 0, eegprep.Errorf(eegprep.ErrInvalidKey, "action", "unsupported action %q, expected thinking_inds or clearing_inds", s)
}

func (a Action) valid() bool {
	return a == Thinking || a == Clearing
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, eegprep.Errorf(eegprep.ErrInvalidKey, "action", "unsupported action %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Interval is a half-open sample range [Start, End) in the continuous recording.
type Interval struct {
	Start int
	End   int
}

// Len returns the number of samples in the interval.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Table holds one interval per trial, in trial order.
type Table []Interval

// indexFile is the on-disk layout of epoch_inds.json.
type indexFile struct {
	Thinking [][2]int `json:"thinking_inds"`
	Clearing [][2]int `json:"clearing_inds"`
}

// LoadTable reads the intervals stored for action in the index file at path.
// The action is checked before the file is touched.
func LoadTable(path string, action Action) (Table, error) {
	if !action.valid() {
		return nil, eegprep.Errorf(eegprep.ErrInvalidKey, "action", "unsupported action %d", int(action))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eegprep.Classify(path, err)
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}

	rows := f.Thinking
	if action == Clearing {
		rows = f.Clearing
	}

	table := make(Table, len(rows))
	for i, row := range rows {
		iv := Interval{Start: row[0], End: row[1]}
		if iv.Start < 0 || iv.End < iv.Start {
			return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, path, "%s row %d: invalid interval [%d, %d)", action, i, iv.Start, iv.End)
		}
		table[i] = iv
	}

	return table, nil
}

// SaveTable writes an index file holding both tables.
func SaveTable(path string, thinking, clearing Table) error {
	f := indexFile{Thinking: pairs(thinking), Clearing: pairs(clearing)}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return eegprep.Classify(path, os.WriteFile(path, data, 0o644))
}

func pairs(t Table) [][2]int {
	out := make([][2]int, len(t))
	for i, iv := range t {
		out[i] = [2]int{iv.Start, iv.End}
	}
	return out
}

// promptsFile is the on-disk layout of the prompt list.
type promptsFile struct {
	Prompts []string `json:"prompts"`
}

// LoadLabels reads the per-trial prompts.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eegprep.Classify(path, err)
	}

	var f promptsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return f.Prompts, nil
}

// SaveLabels writes a prompt list.
func SaveLabels(path string, labels []string) error {
	data, err := json.Marshal(promptsFile{Prompts: labels})
	if err != nil {
		return err
	}
	return eegprep.Classify(path, os.WriteFile(path, data, 0o644))
}
