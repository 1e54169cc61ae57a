// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the pipeline configuration file and resolves the
// per-subject file layout.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/augment"
	"github.com/OpenPSG/eegprep/epochs"
	"github.com/OpenPSG/eegprep/export"
	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/multires"
	"github.com/OpenPSG/eegprep/segment"
	"github.com/OpenPSG/eegprep/wavelet"
	"gopkg.in/yaml.v3"
)

const (
	// IndexFile holds the epoch boundaries inside a subject directory.
	IndexFile = "epoch_inds.json"
	// PromptsFile holds the per-trial prompts inside a subject directory.
	PromptsFile = "all_features_simple.json"
)

// Augment configures the optional augmentation stage.
type Augment struct {
	Method    augment.Method `yaml:"method"`
	Factor    int            `yaml:"factor"`
	LowSigma  float64        `yaml:"low_sigma"`
	HighSigma float64        `yaml:"high_sigma"`
	Seed      uint64         `yaml:"seed"`
}

// Params converts the section into augmentation parameters.
func (a *Augment) Params() augment.Params {
	return augment.Params{
		Method:    a.Method,
		Factor:    a.Factor,
		LowSigma:  a.LowSigma,
		HighSigma: a.HighSigma,
		Seed:      a.Seed,
	}
}

// Config is the root of the configuration file.
type Config struct {
	Root         string `yaml:"root"`
	RawDir       string `yaml:"raw_dir"`
	SegmentedDir string `yaml:"segmented_dir"`
	AugmentedDir string `yaml:"augmented_dir"`
	DecimatedDir string `yaml:"decimated_dir"`
	ExportDir    string `yaml:"export_dir"`
	Catalog      string `yaml:"catalog"` // Empty disables the catalog

	Subjects []string      `yaml:"subjects"`
	Action   epochs.Action `yaml:"action"`
	Duration int           `yaml:"duration"` // Samples per trial, segment.FullEpoch for whole epochs

	Level         int        `yaml:"level"`
	Wavelet       string     `yaml:"wavelet"`
	Scale         *bool      `yaml:"scale,omitempty"`
	QuantileRange [2]float64 `yaml:"quantile_range"`

	IgnoreChannels []string `yaml:"ignore_channels"`
	KeepChannels   []string `yaml:"keep_channels"`

	Workers  int    `yaml:"workers"` // Zero uses GOMAXPROCS
	LogLevel string `yaml:"log_level"`

	Augment           *Augment `yaml:"augment,omitempty"` // Nil skips augmentation
	ExportCompression string   `yaml:"export_compression"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Root:              "Data",
		RawDir:            "RawDataExtracted",
		SegmentedDir:      "SplittedData",
		AugmentedDir:      "AugmentedData",
		DecimatedDir:      "WaveletData",
		ExportDir:         "Export",
		Catalog:           "catalog.db",
		Action:            epochs.Thinking,
		Duration:          4400,
		Level:             6,
		Wavelet:           wavelet.Haar.Name,
		QuantileRange:     multires.DefaultQuantileRange,
		LogLevel:          "info",
		ExportCompression: "snappy",
	}
}

// Load reads a YAML configuration file on top of Default and validates it.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eegprep.Classify(path, err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value that can be checked without reading data.
func (c *Config) Validate() error {
	if _, err := c.Action.MarshalText(); err != nil {
		return err
	}
	if err := segment.ValidateDuration(c.Duration); err != nil {
		return err
	}
	if err := multires.ValidateLevel(c.Duration, c.Level); err != nil {
		return err
	}
	if _, err := wavelet.ByName(c.Wavelet); err != nil {
		return err
	}
	if err := (&multires.RobustScaler{QuantileRange: c.QuantileRange}).Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "workers", "%d, must not be negative", c.Workers)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := export.Compression(c.ExportCompression); err != nil {
		return err
	}
	if c.Augment != nil {
		if err := c.Augment.Params().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetScale reports whether decimated tensors are robust-scaled. Defaults to true.
func (c *Config) GetScale() bool {
	if c.Scale == nil {
		return true
	}
	return *c.Scale
}

// CatalogPath returns the resolved catalog file, or "" when disabled.
func (c *Config) CatalogPath() string {
	if c.Catalog == "" {
		return ""
	}
	return c.resolve(c.Catalog)
}

// SubjectPaths is the resolved file layout of one subject.
type SubjectPaths struct {
	Subject   string
	Dir       string // Raw recording directory
	Index     string // Epoch boundaries
	Prompts   string // Trial labels
	Segmented string
	Augmented string
	Decimated string
	Export    string
}

// Subject resolves the file layout of a subject.
func (c *Config) Subject(name string) SubjectPaths {
	dir := filepath.Join(c.resolve(c.RawDir), name)
	decimated := fmt.Sprintf("%s_wavelet_%d", name, c.Level)
	return SubjectPaths{
		Subject:   name,
		Dir:       dir,
		Index:     filepath.Join(dir, IndexFile),
		Prompts:   filepath.Join(dir, PromptsFile),
		Segmented: filepath.Join(c.resolve(c.SegmentedDir), name+".eeg"),
		Augmented: filepath.Join(c.resolve(c.AugmentedDir), name+".eeg"),
		Decimated: filepath.Join(c.resolve(c.DecimatedDir), decimated+".eeg"),
		Export:    filepath.Join(c.resolve(c.ExportDir), decimated+".parquet"),
	}
}

// resolve places relative paths under Root.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}
