// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package export writes tensors as Parquet tables for downstream training.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/tensor"
	parquet "github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

// Row is one channel of one trial.
type Row struct {
	Subject    string    `parquet:"subject"`
	Trial      int64     `parquet:"trial"`
	Channel    string    `parquet:"channel"`
	Label      string    `parquet:"label"`
	Identifier string    `parquet:"identifier"`
	Values     []float64 `parquet:"values"`
}

// Dataset is a tensor with its per-trial and per-channel names, such as an
// artifact opened with tensor.Open.
type Dataset interface {
	tensor.Source
	Labels() []string
	Identifiers() []string
	Channels() []string
}

// Compression maps a codec name onto a writer option. The empty name selects snappy.
func Compression(name string) (parquet.WriterOption, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "gzip", "gz":
		return parquet.Compression(&parquet.Gzip), nil
	}
	return nil, eegprep.Errorf(eegprep.ErrInvalidKey, "export_compression", "unsupported codec %q, expected snappy, zstd or gzip", name)
}

// Exporter writes datasets to Parquet files.
type Exporter struct {
	compression string
	logger      *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithCompression selects the column codec.
func WithCompression(name string) Option {
	return func(e *Exporter) { e.compression = name }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) { e.logger = logger }
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes one row per (trial, channel) of ds to path and returns the
// number of rows written. The file appears atomically.
func (e *Exporter) Export(ctx context.Context, path, subject string, ds Dataset) (int, error) {
	codec, err := Compression(e.compression)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eegprep.Classify(dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, eegprep.Classify(dir, err)
	}
	tmp := f.Name()

	n, err := e.write(ctx, f, subject, ds, codec)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, eegprep.Classify(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, eegprep.Classify(path, err)
	}

	e.logger.Info("Exported dataset",
		zap.String("subject", subject),
		zap.String("path", path),
		zap.Int("rows", n))
	return n, nil
}

func (e *Exporter) write(ctx context.Context, w io.Writer, subject string, ds Dataset, codec parquet.WriterOption) (int, error) {
	trials, channels, samples := ds.Dims()
	labels, identifiers, names := ds.Labels(), ds.Identifiers(), ds.Channels()

	pw := parquet.NewGenericWriter[Row](w, codec)

	buf := make([]float64, channels*samples)
	rows := make([]Row, channels)
	total := 0
	for i := 0; i < trials; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := ds.ReadTrial(i, buf); err != nil {
			return 0, fmt.Errorf("error reading trial %d: %w", i, err)
		}
		for ch := range rows {
			rows[ch] = Row{
				Subject:    subject,
				Trial:      int64(i),
				Channel:    channelName(names, ch),
				Label:      at(labels, i),
				Identifier: at(identifiers, i),
				Values:     append([]float64(nil), buf[ch*samples:(ch+1)*samples]...),
			}
		}
		n, err := pw.Write(rows)
		total += n
		if err != nil {
			return 0, fmt.Errorf("error writing trial %d: %w", i, err)
		}
	}

	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("error closing parquet writer: %w", err)
	}
	return total, nil
}

// ReadRows reads every row of a Parquet file written by Export.
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eegprep.Classify(path, err)
	}
	defer f.Close()

	gr := parquet.NewGenericReader[Row](f)
	defer gr.Close()

	out := make([]Row, 0, int(gr.NumRows()))
	for {
		batch := make([]Row, 256)
		n, err := gr.Read(batch)
		out = append(out, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading rows: %w", err)
		}
	}
	return out, nil
}

func channelName(names []string, ch int) string {
	if ch < len(names) && names[ch] != "" {
		return names[ch]
	}
	return strconv.Itoa(ch)
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
