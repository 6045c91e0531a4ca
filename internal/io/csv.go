package io

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// Mat64toCSV saves a mat64 matrix as a csv file, one row per line
func Mat64toCSV(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(matrix.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return WriteFileAtomic(path, buf.Bytes(), 0644)
}

// CSVtoMat64 reads a headerless numeric csv file into a mat64 matrix
func CSVtoMat64(path string) (*mat64.Dense, error) {
	records, err := readCSV(path, ',')
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("csv %s is empty", path)
	}

	rows, cols := len(records), len(records[0])
	matrix := mat64.NewDense(rows, cols, nil)
	for i, record := range records {
		if len(record) != cols {
			return nil, fmt.Errorf("csv %s: line %d has %d fields, want %d", path, i+1, len(record), cols)
		}
		for j, field := range record {
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("csv %s: line %d: %w", path, i+1, err)
			}
			matrix.Set(i, j, value)
		}
	}

	return matrix, nil
}

func readCSV(path string, comma rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return records, nil
}

// table is a csv file with a header line, addressed by column name.
type table struct {
	path   string
	header map[string]int
	rows   [][]string
}

func readTable(path string, comma rune) (*table, error) {
	records, err := readCSV(path, comma)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header", path)
	}

	t := &table{path: path, header: make(map[string]int), rows: records[1:]}
	for i, name := range records[0] {
		t.header[strings.TrimSpace(name)] = i
	}

	return t, nil
}

// column returns the index of the first present name, or -1.
func (t *table) column(names ...string) int {
	for _, name := range names {
		if i, ok := t.header[name]; ok {
			return i
		}
	}
	return -1
}

func (t *table) mustColumn(names ...string) (int, error) {
	if i := t.column(names...); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%s: missing column %q", t.path, names[0])
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseFloatField(record []string, i int) (float64, error) {
	s := field(record, i)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func writeTable(path string, header []string, records [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}

	return WriteFileAtomic(path, buf.Bytes(), 0644)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
