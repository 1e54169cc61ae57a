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
	"math"
	"strconv"
)

// maxRecordBytes is the data record size recommended by the EDF standard.
const maxRecordBytes = 61440

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	hdr.DataRecords = -1 // Unknown number of data records (at this time).
	hdr.SignalCount = len(hdr.Signals)

	if size := hdr.RecordSize(); size > maxRecordBytes {
		return nil, fmt.Errorf("data record too large: %d bytes, max is %d bytes", size, maxRecordBytes)
	}

	ew := &Writer{w: w, hdr: &hdr}
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	// Leave the file positioned after the last record.
	_, err := ew.w.Seek(0, io.SeekEnd)
	return err
}

// WriteRecord writes a single data record to the EDF file.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}
	for i, signal := range signals {
		if want := ew.hdr.Signals[i].SamplesPerRecord; len(signal) != want {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, want, len(signal))
		}
	}

	pos := int64(ew.hdr.HeaderBytes) + int64(ew.dataRecords)*int64(ew.hdr.RecordSize())
	if _, err := ew.w.Seek(pos, io.SeekStart); err != nil {
		return err
	}

	record := make([]byte, 0, ew.hdr.RecordSize())
	for i, signal := range ew.hdr.Signals {
		for _, sample := range signals[i] {
			digital := convertPhysicalToDigital(sample, signal.PhysicalMin, signal.PhysicalMax, signal.DigitalMin, signal.DigitalMax)
			record = binary.LittleEndian.AppendUint16(record, uint16(digital))
		}
	}

	if _, err := ew.w.Write(record); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

// WriteSignals splits whole-recording signals into data records and writes
// them. Every signal must hold the same number of records worth of samples.
func (ew *Writer) WriteSignals(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	records := -1
	for i, signal := range signals {
		spr := ew.hdr.Signals[i].SamplesPerRecord
		if spr == 0 || len(signal)%spr != 0 {
			return fmt.Errorf("signal %d: %d samples is not a multiple of %d", i, len(signal), spr)
		}
		if n := len(signal) / spr; records == -1 {
			records = n
		} else if n != records {
			return fmt.Errorf("signal %d spans %d records, expected %d", i, n, records)
		}
	}

	record := make([][]float64, len(signals))
	for n := 0; n < records; n++ {
		for i, signal := range signals {
			spr := ew.hdr.Signals[i].SamplesPerRecord
			record[i] = signal[n*spr : (n+1)*spr]
		}
		if err := ew.WriteRecord(record); err != nil {
			return fmt.Errorf("error writing record %d: %w", n, err)
		}
	}

	return nil
}

// writeHeader writes the EDF header at the start of the file.
func (ew *Writer) writeHeader() error {
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	hdr := ew.hdr
	hdr.HeaderBytes = 256 + (hdr.SignalCount * 256)

	writer := bufio.NewWriter(ew.w)
	fields := []string{
		pad(string(hdr.Version), 8),
		pad(hdr.PatientID, 80),
		pad(hdr.RecordingID, 80),
		pad(hdr.StartTime.Format("02.01.06"), 8),
		pad(hdr.StartTime.Format("15.04.05"), 8),
		pad(strconv.Itoa(hdr.HeaderBytes), 8),
		pad("", 44),
		pad(strconv.Itoa(hdr.DataRecords), 8),
		pad(formatNumber(hdr.DataRecordDuration.Seconds()), 8),
		pad(strconv.Itoa(hdr.SignalCount), 4),
	}

	// Signal blocks are written field by field, in the order the reader expects.
	for _, f := range []func(Signal) string{
		func(s Signal) string { return pad(s.Label, 16) },
		func(s Signal) string { return pad(s.TransducerType, 80) },
		func(s Signal) string { return pad(s.PhysicalDimension, 8) },
		func(s Signal) string { return pad(formatNumber(s.PhysicalMin), 8) },
		func(s Signal) string { return pad(formatNumber(s.PhysicalMax), 8) },
		func(s Signal) string { return pad(strconv.Itoa(s.DigitalMin), 8) },
		func(s Signal) string { return pad(strconv.Itoa(s.DigitalMax), 8) },
		func(s Signal) string { return pad(s.Prefiltering, 80) },
		func(s Signal) string { return pad(strconv.Itoa(s.SamplesPerRecord), 8) },
		func(s Signal) string { return pad("", 32) },
	} {
		for _, signal := range hdr.Signals {
			fields = append(fields, f(signal))
		}
	}

	for _, s := range fields {
		if _, err := writer.WriteString(s); err != nil {
			return err
		}
	}

	return writer.Flush()
}

// convertPhysicalToDigital converts a physical value to a digital value using the calibration factors.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int16 {
	if pmax == pmin {
		return 0 // Avoid division by zero
	}
	digital := math.Round(((physical - pmin) * (float64(dmax - dmin)) / (pmax - pmin)) + float64(dmin))
	digital = math.Max(float64(dmin), math.Min(float64(dmax), digital))
	return int16(digital)
}

// pad left-aligns s in a field of the given width, truncating if necessary.
func pad(s string, width int) string {
	if len(s) > width {
		s = s[:width]
	}
	return fmt.Sprintf("%-*s", width, s)
}

// formatNumber renders a value in at most 8 characters.
func formatNumber(val float64) string {
	s := strconv.FormatFloat(val, 'f', -1, 64)
	if len(s) > 8 {
		// Try with 2 decimal places, then fall back to no decimal
		s = fmt.Sprintf("%.2f", val)
		if len(s) > 8 {
			s = fmt.Sprintf("%.0f", val)
		}
	}
	return s
}
