// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package tensor

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/OpenPSG/eegprep"
	"golang.org/x/exp/mmap"
)

// On-disk layout:
//
//	magic (8 bytes) | header length (uint32 LE) | JSON header | zero padding | float64 LE data
//
// The data section starts on a 64 byte boundary.
const (
	magic     = "EEGTNSR1"
	dtype     = "<f8"
	alignment = 64
)

type header struct {
	Shape       [3]int   `json:"shape"`
	DType       string   `json:"dtype"`
	Labels      []string `json:"labels"`
	Identifiers []string `json:"identifiers,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	SampleRate  float64  `json:"sample_rate,omitempty"`
}

func dataOffset(headerLen int) int64 {
	n := int64(len(magic) + 4 + headerLen)
	return (n + alignment - 1) / alignment * alignment
}

// Save writes the artifact to path. The file is written to a temporary name in
// the same directory and renamed into place, so readers never observe a
// partially written tensor.
func Save(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return &eegprep.Error{Kind: eegprep.ErrInvalidParameter, Resource: path, Err: err}
	}

	hdr, err := json.Marshal(header{
		Shape:       a.Tensor.Shape(),
		DType:       dtype,
		Labels:      a.Labels,
		Identifiers: a.Identifiers,
		Channels:    a.Channels,
		SampleRate:  a.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("error encoding header: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eegprep.Classify(dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eegprep.Classify(dir, err)
	}
	tmp := f.Name()

	if err := writeTo(f, hdr, a.Tensor.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return eegprep.Classify(path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eegprep.Classify(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eegprep.Classify(path, err)
	}
	return nil
}

func writeTo(f *os.File, hdr []byte, data []float64) error {
	w := bufio.NewWriterSize(f, 1<<20)

	prefix := make([]byte, 0, dataOffset(len(hdr)))
	prefix = append(prefix, magic...)
	prefix = binary.LittleEndian.AppendUint32(prefix, uint32(len(hdr)))
	prefix = append(prefix, hdr...)
	prefix = append(prefix, make([]byte, int(dataOffset(len(hdr)))-len(prefix))...)
	if _, err := w.Write(prefix); err != nil {
		return err
	}

	var buf [8]byte
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Mapped is a persisted artifact opened without reading its data. Trials are
// decoded from the memory-mapped file on demand.
type Mapped struct {
	r      *mmap.ReaderAt
	path   string
	hdr    header
	offset int64
}

// Open memory-maps the artifact at path and parses its header.
func Open(path string) (*Mapped, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, eegprep.Classify(path, err)
	}

	m, err := parse(r, path)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return m, nil
}

func parse(r *mmap.ReaderAt, path string) (*Mapped, error) {
	prefix := make([]byte, len(magic)+4)
	if _, err := r.ReadAt(prefix, 0); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if !bytes.Equal(prefix[:len(magic)], []byte(magic)) {
		return nil, fmt.Errorf("%s is not a tensor file", path)
	}

	hdrLen := int(binary.LittleEndian.Uint32(prefix[len(magic):]))
	raw := make([]byte, hdrLen)
	if _, err := r.ReadAt(raw, int64(len(prefix))); err != nil {
		return nil, fmt.Errorf("error reading %s header: %w", path, err)
	}

	var hdr header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("error parsing %s header: %w", path, err)
	}
	if hdr.DType != dtype {
		return nil, fmt.Errorf("%s: unsupported dtype %q", path, hdr.DType)
	}

	m := &Mapped{r: r, path: path, hdr: hdr, offset: dataOffset(hdrLen)}
	trials, channels, samples := m.Dims()
	if trials < 0 || channels < 0 || samples < 0 {
		return nil, fmt.Errorf("%s: invalid shape %v", path, hdr.Shape)
	}
	if want := m.offset + int64(trials*channels*samples)*8; int64(r.Len()) < want {
		return nil, fmt.Errorf("%s: truncated, %d bytes of %d", path, r.Len(), want)
	}
	if len(hdr.Labels) != trials {
		return nil, fmt.Errorf("%s: %d labels for %d trials", path, len(hdr.Labels), trials)
	}
	return m, nil
}

// Path returns the file the artifact was opened from.
func (m *Mapped) Path() string {
	return m.path
}

// Dims implements Source.
func (m *Mapped) Dims() (trials, channels, samples int) {
	return m.hdr.Shape[0], m.hdr.Shape[1], m.hdr.Shape[2]
}

// Labels returns the per-trial labels.
func (m *Mapped) Labels() []string {
	return append([]string(nil), m.hdr.Labels...)
}

// Identifiers returns the per-trial identifiers, empty strings when the file has none.
func (m *Mapped) Identifiers() []string {
	if len(m.hdr.Identifiers) == 0 {
		return make([]string, m.hdr.Shape[0])
	}
	return append([]string(nil), m.hdr.Identifiers...)
}

// Channels returns the channel names, nil when the file has none.
func (m *Mapped) Channels() []string {
	return append([]string(nil), m.hdr.Channels...)
}

// SampleRate returns the sample rate along the last axis, 0 when unknown.
func (m *Mapped) SampleRate() float64 {
	return m.hdr.SampleRate
}

// ReadTrial implements Source.
func (m *Mapped) ReadTrial(i int, dst []float64) error {
	trials, channels, samples := m.Dims()
	if i < 0 || i >= trials {
		return fmt.Errorf("trial %d out of range [0, %d)", i, trials)
	}
	n := channels * samples
	if len(dst) != n {
		return fmt.Errorf("destination holds %d values, trial has %d", len(dst), n)
	}

	buf := make([]byte, n*8)
	if _, err := m.r.ReadAt(buf, m.offset+int64(i*n)*8); err != nil && err != io.EOF {
		return fmt.Errorf("error reading trial %d of %s: %w", i, m.path, err)
	}
	for j := range dst {
		dst[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[j*8:]))
	}
	return nil
}

// Load reads every trial into memory.
func (m *Mapped) Load() (*Artifact, error) {
	trials, channels, samples := m.Dims()
	t := New(trials, channels, samples)
	for i := 0; i < trials; i++ {
		if err := m.ReadTrial(i, t.Trial(i)); err != nil {
			return nil, err
		}
	}

	return &Artifact{
		Tensor:      t,
		Labels:      m.Labels(),
		Identifiers: m.Identifiers(),
		Channels:    m.Channels(),
		SampleRate:  m.SampleRate(),
	}, nil
}

// Close unmaps the file.
func (m *Mapped) Close() error {
	return m.r.Close()
}

// Load reads a whole artifact from path.
func Load(path string) (*Artifact, error) {
	m, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	return m.Load()
}
