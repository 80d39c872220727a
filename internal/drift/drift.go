// Package drift compares a current dataset against the reference dataset a
// model was trained on, per numeric feature. It is an offline report, not a
// serving-path check.
package drift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stayml/listing-price-service/internal/dataset"
	"github.com/stayml/listing-price-service/internal/schema"
)

// FeatureDrift summarizes the shift of one numeric feature between the
// reference and current datasets. Score is the absolute mean shift in
// reference standard deviations; Drifted is set when it crosses the
// threshold.
type FeatureDrift struct {
	Feature       string  `json:"feature"`
	ReferenceMean float64 `json:"reference_mean"`
	ReferenceStd  float64 `json:"reference_std"`
	CurrentMean   float64 `json:"current_mean"`
	CurrentStd    float64 `json:"current_std"`
	Score         float64 `json:"score"`
	Drifted       bool    `json:"drifted"`
}

// Report is the full drift report over all numeric features.
type Report struct {
	Threshold     float64        `json:"threshold"`
	ReferenceRows int            `json:"reference_rows"`
	CurrentRows   int            `json:"current_rows"`
	Features      []FeatureDrift `json:"features"`
	DriftedCount  int            `json:"drifted_count"`
}

// Compare builds a drift report for every numeric feature in the schema.
func Compare(s *schema.Schema, reference, current *dataset.Dataset, threshold float64) (*Report, error) {
	if len(reference.Rows) == 0 || len(current.Rows) == 0 {
		return nil, fmt.Errorf("both datasets must be non-empty")
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %v", threshold)
	}

	report := &Report{
		Threshold:     threshold,
		ReferenceRows: len(reference.Rows),
		CurrentRows:   len(current.Rows),
	}

	for _, f := range s.Fields {
		if f.Kind != schema.KindNumeric {
			continue
		}

		refMean, refStd := stat.MeanStdDev(column(reference, f.Name), nil)
		curMean, curStd := stat.MeanStdDev(column(current, f.Name), nil)

		// A constant reference feature has no scale to normalize by; fall
		// back to the raw mean shift.
		score := math.Abs(curMean - refMean)
		if refStd > 0 {
			score /= refStd
		}

		fd := FeatureDrift{
			Feature:       f.Name,
			ReferenceMean: refMean,
			ReferenceStd:  refStd,
			CurrentMean:   curMean,
			CurrentStd:    curStd,
			Score:         score,
			Drifted:       score >= threshold,
		}
		if fd.Drifted {
			report.DriftedCount++
		}
		report.Features = append(report.Features, fd)
	}

	if len(report.Features) == 0 {
		return nil, fmt.Errorf("schema has no numeric features to compare")
	}
	return report, nil
}

func column(ds *dataset.Dataset, name string) []float64 {
	vals := make([]float64, len(ds.Rows))
	for i, row := range ds.Rows {
		vals[i] = row.Numeric[name]
	}
	return vals
}
