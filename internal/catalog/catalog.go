// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package catalog keeps a SQLite record of every artifact the pipeline writes.
package catalog

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OpenPSG/eegprep"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// schema.sql creates the artifacts table and its lookup index.
//
//go:embed schema.sql
var schemaSQL string

// Stage is the pipeline step that produced an artifact.
type Stage string

const (
	// Segmented is a trial tensor cut from a raw recording.
	Segmented Stage = "segmented"
	// Augmented is a segmented tensor extended with noisy copies.
	Augmented Stage = "augmented"
	// Decimated is a tensor of wavelet magnitudes at the decimated rate.
	Decimated Stage = "decimated"
	// Exported is a Parquet file of decimated features.
	Exported Stage = "export"
)

// Entry is one persisted artifact.
type Entry struct {
	ID        string
	Subject   string
	Stage     Stage
	Path      string
	Shape     [3]int
	Params    json.RawMessage
	CreatedAt time.Time
}

// Catalog is an artifact catalog backed by a SQLite file.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, eegprep.Classify(path, fmt.Errorf("initialise catalog schema: %w", err))
	}

	return &Catalog{db: db, now: time.Now}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record stores e. An empty ID is replaced with a new UUID, and a zero
// CreatedAt with the current time. params, when non-nil, is stored as JSON.
func (c *Catalog) Record(e *Entry, params any) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		e.Params = b
	}

	var paramsStr any
	if len(e.Params) > 0 {
		paramsStr = string(e.Params)
	}

	_, err := c.db.Exec(`
		INSERT INTO artifacts (
			artifact_id, subject, stage, path, trials, channels, samples, params_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Subject, string(e.Stage), e.Path, e.Shape[0], e.Shape[1], e.Shape[2],
		paramsStr, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// List returns the artifacts of a subject, newest first. An empty subject lists everything.
func (c *Catalog) List(subject string) ([]*Entry, error) {
	query := `
		SELECT artifact_id, subject, stage, path, trials, channels, samples, params_json, created_at
		FROM artifacts`
	var args []any
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Latest returns the newest artifact of a subject at the given stage.
func (c *Catalog) Latest(subject string, stage Stage) (*Entry, error) {
	row := c.db.QueryRow(`
		SELECT artifact_id, subject, stage, path, trials, channels, samples, params_json, created_at
		FROM artifacts
		WHERE subject = ? AND stage = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, subject, string(stage))

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eegprep.Errorf(eegprep.ErrNotFound, subject, "no %s artifact", stage)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e         Entry
		stage     string
		params    sql.NullString
		createdAt int64
	)
	err := s.Scan(&e.ID, &e.Subject, &stage, &e.Path, &e.Shape[0], &e.Shape[1], &e.Shape[2], &params, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	e.Stage = Stage(stage)
	if params.Valid {
		e.Params = json.RawMessage(params.String)
	}
	e.CreatedAt = time.Unix(0, createdAt)
	return &e, nil
}
