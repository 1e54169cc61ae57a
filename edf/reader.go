// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reader reads EDF/EDF+ files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// signalField describes one block of the per-signal header. Blocks are
// stored field by field: all labels first, then all transducer types, etc.
type signalField struct {
	name  string
	width int
	set   func(sig *Signal, v string) error
}

var signalFields = []signalField{
	{"label", 16, func(sig *Signal, v string) error { sig.Label = v; return nil }},
	{"transducer type", 80, func(sig *Signal, v string) error { sig.TransducerType = v; return nil }},
	{"physical dimension", 8, func(sig *Signal, v string) error { sig.PhysicalDimension = v; return nil }},
	{"physical minimum", 8, func(sig *Signal, v string) (err error) { sig.PhysicalMin, err = parseFloat(v); return }},
	{"physical maximum", 8, func(sig *Signal, v string) (err error) { sig.PhysicalMax, err = parseFloat(v); return }},
	{"digital minimum", 8, func(sig *Signal, v string) (err error) { sig.DigitalMin, err = parseInt(v); return }},
	{"digital maximum", 8, func(sig *Signal, v string) (err error) { sig.DigitalMax, err = parseInt(v); return }},
	{"prefiltering", 80, func(sig *Signal, v string) error { sig.Prefiltering = v; return nil }},
	{"samples per record", 8, func(sig *Signal, v string) (err error) { sig.SamplesPerRecord, err = parseInt(v); return }},
	{"reserved", 32, func(sig *Signal, v string) error { sig.Reserved = v; return nil }},
}

// Open opens an EDF/EDF+ file for reading.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr := &Header{}
	hdr.Version = Version(field(b, 0, 8))
	hdr.PatientID = field(b, 8, 88)
	hdr.RecordingID = field(b, 88, 168)

	startDate, err := time.Parse("02.01.06", field(b, 168, 176))
	if err != nil {
		return nil, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", field(b, 176, 184))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)

	if hdr.HeaderBytes, err = parseInt(field(b, 184, 192)); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	if hdr.DataRecords, err = parseInt(field(b, 236, 244)); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	hdr.DataRecordDuration, err = time.ParseDuration(field(b, 244, 252) + "s")
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	if hdr.SignalCount, err = parseInt(field(b, 252, 256)); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount < 0 {
		return nil, fmt.Errorf("invalid signal count %d", hdr.SignalCount)
	}

	hdr.Signals = make([]Signal, hdr.SignalCount)
	for _, f := range signalFields {
		b := make([]byte, f.width*hdr.SignalCount)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, fmt.Errorf("error reading signal %s: %w", f.name, err)
		}
		for i := range hdr.Signals {
			if err := f.set(&hdr.Signals[i], field(b, i*f.width, (i+1)*f.width)); err != nil {
				return nil, fmt.Errorf("error parsing signal %d %s: %w", i, f.name, err)
			}
		}
	}

	// Writers that never finalised the header leave the record count at -1.
	if hdr.DataRecords < 0 {
		if hdr.DataRecords, err = countRecords(r, hdr); err != nil {
			return nil, err
		}
	}

	return &Reader{
		r:   r,
		hdr: hdr,
	}, nil
}

// Header returns a copy of the parsed file header.
func (er *Reader) Header() Header {
	hdr := *er.hdr
	hdr.Signals = append([]Signal(nil), er.hdr.Signals...)
	return hdr
}

// ReadAll decodes every data record and returns the physical values of each
// signal, indexed like Header().Signals. Annotation signals come back empty.
func (er *Reader) ReadAll() ([][]float64, error) {
	recordSize := er.hdr.RecordSize()

	out := make([][]float64, er.hdr.SignalCount)
	for i, sig := range er.hdr.Signals {
		if sig.IsAnnotation() {
			continue
		}
		out[i] = make([]float64, 0, sig.SamplesPerRecord*er.hdr.DataRecords)
	}

	if _, err := er.r.Seek(int64(er.hdr.HeaderBytes), io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to data records: %w", err)
	}

	reader := bufio.NewReader(er.r)
	record := make([]byte, recordSize)
	for n := 0; n < er.hdr.DataRecords; n++ {
		if _, err := io.ReadFull(reader, record); err != nil {
			return nil, fmt.Errorf("error reading data record %d: %w", n, err)
		}

		offset := 0
		for i, sig := range er.hdr.Signals {
			size := sig.SamplesPerRecord * 2
			if !sig.IsAnnotation() {
				out[i] = decodeSamples(out[i], record[offset:offset+size], sig)
			}
			offset += size
		}
	}

	return out, nil
}

// SignalReader reads continuous signal data from an EDF/EDF+ file.
type SignalReader struct {
	r             io.ReadSeeker
	hdr           *Header
	signal        Signal
	recordSize    int       // Total size of one data record
	signalOffset  int       // Byte offset of the signal in a record
	currentRecord int       // Next record to load
	buf           []byte    // Raw bytes of the signal in one record
	pending       []float64 // Decoded samples not yet returned
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index out of range")
	}

	signalOffset := 0
	for _, sig := range er.hdr.Signals[:signalIndex] {
		signalOffset += sig.SamplesPerRecord * 2
	}

	signal := er.hdr.Signals[signalIndex]
	return &SignalReader{
		r:            er.r,
		hdr:          er.hdr,
		signal:       signal,
		recordSize:   er.hdr.RecordSize(),
		signalOffset: signalOffset,
		buf:          make([]byte, signal.SamplesPerRecord*2),
	}, nil
}

// Read fills the provided float64 slice with the physical values from the signal.
func (sr *SignalReader) Read(data []float64) (int, error) {
	n := 0
	for n < len(data) {
		if len(sr.pending) == 0 {
			if sr.currentRecord >= sr.hdr.DataRecords {
				return n, io.EOF
			}
			if err := sr.loadRecord(); err != nil {
				return n, err
			}
		}

		copied := copy(data[n:], sr.pending)
		sr.pending = sr.pending[copied:]
		n += copied
	}

	return n, nil
}

func (sr *SignalReader) loadRecord() error {
	pos := int64(sr.hdr.HeaderBytes) + int64(sr.currentRecord)*int64(sr.recordSize) + int64(sr.signalOffset)
	if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to position: %w", err)
	}
	if _, err := io.ReadFull(sr.r, sr.buf); err != nil {
		return fmt.Errorf("error reading sample data: %w", err)
	}

	sr.pending = decodeSamples(sr.pending[:0], sr.buf, sr.signal)
	sr.currentRecord++
	return nil
}

// decodeSamples appends the physical values of the little-endian 16 bit
// digital samples in b to dst.
func decodeSamples(dst []float64, b []byte, sig Signal) []float64 {
	for i := 0; i+1 < len(b); i += 2 {
		digital := int16(binary.LittleEndian.Uint16(b[i:]))
		dst = append(dst, convertDigitalToPhysical(digital, sig.DigitalMin, sig.DigitalMax, sig.PhysicalMin, sig.PhysicalMax))
	}
	return dst
}

// countRecords infers the number of data records from the file size.
func countRecords(r io.Seeker, hdr *Header) (int, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("error seeking to end of file: %w", err)
	}
	recordSize := hdr.RecordSize()
	if recordSize == 0 {
		return 0, nil
	}
	return int((size - int64(hdr.HeaderBytes)) / int64(recordSize)), nil
}

// convertDigitalToPhysical converts a digital value from the data record to a physical value using the calibration factors.
func convertDigitalToPhysical(digital int16, dmin, dmax int, pmin, pmax float64) float64 {
	if dmax == dmin {
		return 0 // Avoid division by zero
	}
	return pmin + (float64(digital)-float64(dmin))*(pmax-pmin)/float64(dmax-dmin)
}

func field(b []byte, from, to int) string {
	return strings.TrimSpace(string(b[from:to]))
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
