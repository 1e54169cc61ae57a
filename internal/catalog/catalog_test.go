// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package catalog_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/internal/catalog"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRecordAssignsID(t *testing.T) {
	c := openCatalog(t)

	e := &catalog.Entry{Subject: "MM05", Stage: catalog.Segmented, Path: "MM05.eeg", Shape: [3]int{165, 62, 4400}}
	require.NoError(t, c.Record(e, map[string]any{"duration": 4400, "action": "thinking_inds"}))

	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.False(t, e.CreatedAt.IsZero())
	assert.JSONEq(t, `{"action":"thinking_inds","duration":4400}`, string(e.Params))
}

func TestListAndLatest(t *testing.T) {
	c := openCatalog(t)
	base := time.Unix(1700000000, 0)

	entries := []*catalog.Entry{
		{Subject: "MM05", Stage: catalog.Segmented, Path: "a.eeg", Shape: [3]int{2, 3, 4}, CreatedAt: base},
		{Subject: "MM05", Stage: catalog.Decimated, Path: "b.eeg", Shape: [3]int{2, 3, 1}, CreatedAt: base.Add(time.Second)},
		{Subject: "MM08", Stage: catalog.Segmented, Path: "c.eeg", Shape: [3]int{5, 3, 4}, CreatedAt: base.Add(2 * time.Second)},
		{Subject: "MM05", Stage: catalog.Segmented, Path: "d.eeg", Shape: [3]int{2, 3, 4}, CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, c.Record(e, nil))
	}

	got, err := c.List("MM05")
	require.NoError(t, err)
	paths := make([]string, len(got))
	for i, e := range got {
		paths[i] = e.Path
	}
	if diff := cmp.Diff([]string{"d.eeg", "b.eeg", "a.eeg"}, paths); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	all, err := c.List("")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	latest, err := c.Latest("MM05", catalog.Segmented)
	require.NoError(t, err)
	assert.Equal(t, entries[3].ID, latest.ID)
	assert.Equal(t, [3]int{2, 3, 4}, latest.Shape)
	assert.True(t, entries[3].CreatedAt.Equal(latest.CreatedAt))
	assert.Nil(t, latest.Params)

	_, err = c.Latest("MM08", catalog.Decimated)
	assert.ErrorIs(t, err, eegprep.ErrNotFound)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := catalog.Open(path)
	require.NoError(t, err)
	params := json.RawMessage(`{"level":6}`)
	require.NoError(t, c.Record(&catalog.Entry{Subject: "MM05", Stage: catalog.Exported, Path: "MM05.parquet", Params: params}, nil))
	require.NoError(t, c.Close())

	c, err = catalog.Open(path)
	require.NoError(t, err)
	defer c.Close()

	e, err := c.Latest("MM05", catalog.Exported)
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":6}`, string(e.Params))
}

func TestLatestPerStage(t *testing.T) {
	c := openCatalog(t)

	stages := []catalog.Stage{catalog.Segmented, catalog.Augmented, catalog.Decimated, catalog.Exported}
	for i, stage := range stages {
		e := &catalog.Entry{Subject: "MM05", Stage: stage, Path: string(stage), Shape: [3]int{i + 1, 2, 3}}
		require.NoError(t, c.Record(e, nil))
	}

	for i, stage := range stages {
		got, err := c.Latest("MM05", stage)
		require.NoError(t, err, "stage %s", stage)
		assert.Equal(t, stage, got.Stage)
		assert.Equal(t, string(stage), got.Path)
		assert.Equal(t, [3]int{i + 1, 2, 3}, got.Shape)
	}
}
