package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// nullMarker is written for an absent numeric component — explicit and
// distinct from the string "0".
const nullMarker = "NULL"

var primaryHeader = []string{
	"wall_clock", "arrival_time", "device_id", "sequence", "kind",
	"duplicate", "gap_synthesized", "temperature", "humidity", "voltage",
}

var batchHeader = []string{
	"device_id", "sequence", "sensor_kind", "value", "batch_mean", "batch_min", "batch_max",
}

// CSVSink appends Row and BatchDetail records to two line-buffered CSV
// files, flushing after every write to bound data loss at crash (spec.md
// §5). Its primary log additionally receives the shutdown summary block.
type CSVSink struct {
	primaryPath string
	batchPath   string

	primaryFile *os.File
	primaryW    *csv.Writer
	batchFile   *os.File
	batchW      *csv.Writer
}

// Open truncates and opens primaryPath and a derived batch-detail path
// (suffix substitution: ".csv" -> "_batch_details.csv"), writing each
// header row immediately.
func Open(primaryPath string) (*CSVSink, error) {
	batchPath := derivedBatchPath(primaryPath)

	pf, err := os.Create(primaryPath)
	if err != nil {
		return nil, fmt.Errorf("sink: open primary log: %w", err)
	}
	bf, err := os.Create(batchPath)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("sink: open batch-detail log: %w", err)
	}

	s := &CSVSink{
		primaryPath: primaryPath,
		batchPath:   batchPath,
		primaryFile: pf,
		primaryW:    csv.NewWriter(pf),
		batchFile:   bf,
		batchW:      csv.NewWriter(bf),
	}

	if err := s.primaryW.Write(primaryHeader); err != nil {
		s.Close()
		return nil, fmt.Errorf("sink: write primary header: %w", err)
	}
	s.primaryW.Flush()
	if err := s.batchW.Write(batchHeader); err != nil {
		s.Close()
		return nil, fmt.Errorf("sink: write batch header: %w", err)
	}
	s.batchW.Flush()

	return s, nil
}

func derivedBatchPath(primaryPath string) string {
	const suffix = ".csv"
	if len(primaryPath) >= len(suffix) && primaryPath[len(primaryPath)-len(suffix):] == suffix {
		return primaryPath[:len(primaryPath)-len(suffix)] + "_batch_details.csv"
	}
	return primaryPath + "_batch_details.csv"
}

func optionalField(o Optional) string {
	if !o.Valid {
		return nullMarker
	}
	return strconv.FormatFloat(float64(o.Value), 'f', 2, 32)
}

// WriteRow appends one primary-log row and flushes it.
func (s *CSVSink) WriteRow(r Row) error {
	record := []string{
		r.WallClock.Format("2006-01-02T15:04:05.000Z07:00"),
		r.ArrivalTime.Format("2006-01-02T15:04:05.000000Z07:00"),
		strconv.FormatUint(uint64(r.DeviceID), 10),
		strconv.FormatUint(uint64(r.Sequence), 10),
		r.Kind.String(),
		strconv.FormatBool(r.Duplicate),
		strconv.FormatBool(r.Synthesized),
		optionalField(r.Temperature),
		optionalField(r.Humidity),
		optionalField(r.Voltage),
	}
	if err := s.primaryW.Write(record); err != nil {
		return fmt.Errorf("sink: write row: %w", err)
	}
	s.primaryW.Flush()
	return s.primaryW.Error()
}

// WriteBatchDetail appends one secondary-log sub-reading row and flushes
// it.
func (s *CSVSink) WriteBatchDetail(d BatchDetail) error {
	record := []string{
		strconv.FormatUint(uint64(d.DeviceID), 10),
		strconv.FormatUint(uint64(d.Sequence), 10),
		strconv.FormatUint(uint64(d.SensorKind), 10),
		strconv.FormatFloat(float64(d.Value), 'f', 2, 32),
		strconv.FormatFloat(float64(d.BatchMean), 'f', 2, 32),
		strconv.FormatFloat(float64(d.BatchMin), 'f', 2, 32),
		strconv.FormatFloat(float64(d.BatchMax), 'f', 2, 32),
	}
	if err := s.batchW.Write(record); err != nil {
		return fmt.Errorf("sink: write batch detail: %w", err)
	}
	s.batchW.Flush()
	return s.batchW.Error()
}

// WriteSummaryMetric appends one "METRIC, VALUE, UNIT" row to the
// shutdown summary block.
func (s *CSVSink) WriteSummaryMetric(metric, value, unit string) error {
	if err := s.primaryW.Write([]string{metric, value, unit}); err != nil {
		return fmt.Errorf("sink: write summary metric: %w", err)
	}
	s.primaryW.Flush()
	return s.primaryW.Error()
}

// WriteSentinel appends the sentinel row that introduces the shutdown
// summary block.
func (s *CSVSink) WriteSentinel() error {
	if err := s.primaryW.Write([]string{"---SUMMARY---", "", ""}); err != nil {
		return fmt.Errorf("sink: write summary sentinel: %w", err)
	}
	s.primaryW.Flush()
	return s.primaryW.Error()
}

// Close flushes and closes both underlying files.
func (s *CSVSink) Close() error {
	s.primaryW.Flush()
	s.batchW.Flush()
	err1 := s.primaryFile.Close()
	err2 := s.batchFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
