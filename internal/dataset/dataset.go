// Package dataset loads tabular training data and prepares it for fitting.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/stayml/listing-price-service/internal/schema"
)

// Dataset holds validated training rows and their targets. DroppedRows counts
// rows excluded because the target was empty or unparsable; feature values
// are never silently repaired, a bad feature cell fails the load.
type Dataset struct {
	Rows        []*schema.Vector
	Targets     []float64
	DroppedRows int
}

// Load reads a CSV file with a header row and validates every row against
// the schema. All schema fields and the target column must be present in the
// header; a missing column fails fast before any row is read.
func Load(path string, s *schema.Schema, target string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	for _, name := range append(s.Names(), target) {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("dataset is missing required column %q", name)
		}
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row: %w", err)
		}
		line++

		// Rows with a missing or unparsable target are dropped, not guessed at.
		rawTarget := strings.TrimSpace(record[col[target]])
		price, err := strconv.ParseFloat(rawTarget, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			ds.DroppedRows++
			continue
		}

		raw := make(map[string]interface{}, len(s.Fields))
		for _, f := range s.Fields {
			cell := strings.TrimSpace(record[col[f.Name]])
			switch f.Kind {
			case schema.KindNumeric:
				num, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: column %q: %q is not a number", line, f.Name, cell)
				}
				raw[f.Name] = num
			case schema.KindCategorical:
				raw[f.Name] = cell
			}
		}

		vec, fieldErrs := s.Validate(raw)
		if len(fieldErrs) > 0 {
			return nil, fmt.Errorf("line %d: %v", line, fieldErrs[0])
		}

		ds.Rows = append(ds.Rows, vec)
		ds.Targets = append(ds.Targets, price)
	}

	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("dataset %s has no usable rows (%d dropped for missing target)", path, ds.DroppedRows)
	}
	return ds, nil
}

// Split partitions the dataset into train and test sets. The shuffle is
// seeded, so the same seed always yields the same partition.
func (d *Dataset) Split(testFraction float64, seed int64) (train, test *Dataset, err error) {
	if testFraction < 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in [0, 1), got %v", testFraction)
	}

	n := len(d.Rows)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(float64(n) * testFraction)

	train = &Dataset{DroppedRows: d.DroppedRows}
	test = &Dataset{}
	for i, idx := range perm {
		if i < nTest {
			test.Rows = append(test.Rows, d.Rows[idx])
			test.Targets = append(test.Targets, d.Targets[idx])
		} else {
			train.Rows = append(train.Rows, d.Rows[idx])
			train.Targets = append(train.Targets, d.Targets[idx])
		}
	}

	if len(train.Rows) == 0 {
		return nil, nil, fmt.Errorf("split left no training rows")
	}
	return train, test, nil
}
