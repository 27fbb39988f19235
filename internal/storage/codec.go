package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/search"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// VersionedRecord stamps every stored payload.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func currentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

type generationsRecord struct {
	VersionedRecord
	Stats []search.GenerationStats `json:"stats"`
}

type matrixRecord struct {
	VersionedRecord
	Subject string   `json:"subject"`
	Rows    [][]bool `json:"rows"`
	Passed  []bool   `json:"passed"`
	Columns int      `json:"columns"`
}

func EncodeRun(r Run) ([]byte, error) {
	r.VersionedRecord = currentVersion()
	return json.Marshal(r)
}

func DecodeRun(data []byte) (Run, error) {
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return Run{}, err
	}
	return run, nil
}

func EncodeGenerations(stats []search.GenerationStats) ([]byte, error) {
	return json.Marshal(generationsRecord{VersionedRecord: currentVersion(), Stats: stats})
}

func DecodeGenerations(data []byte) ([]search.GenerationStats, error) {
	var rec generationsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return nil, err
	}
	return rec.Stats, nil
}

func EncodeMatrix(subject string, m *fitness.CoverageMatrix) ([]byte, error) {
	return json.Marshal(matrixRecord{
		VersionedRecord: currentVersion(),
		Subject:         subject,
		Rows:            m.Rows,
		Passed:          m.Passed,
		Columns:         m.NumCols,
	})
}

func DecodeMatrix(data []byte) (*fitness.CoverageMatrix, error) {
	var rec matrixRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return nil, err
	}
	m := &fitness.CoverageMatrix{NumCols: rec.Columns}
	if len(rec.Rows) != len(rec.Passed) {
		return nil, fmt.Errorf("matrix has %d rows and %d verdicts", len(rec.Rows), len(rec.Passed))
	}
	for i, row := range rec.Rows {
		if err := m.AddRow(row, rec.Passed[i]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
