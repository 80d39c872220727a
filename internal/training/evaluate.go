package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stayml/listing-price-service/internal/dataset"
	"github.com/stayml/listing-price-service/internal/model"
	"github.com/stayml/listing-price-service/internal/schema"
)

// Evaluate scores the fitted model on a held-out dataset and returns
// mae, rmse and r2.
func Evaluate(s *schema.Schema, m *model.Linear, ds *dataset.Dataset) (map[string]float64, error) {
	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("no evaluation rows")
	}

	estimates := make([]float64, len(ds.Rows))
	var absSum, sqSum float64
	for i, vec := range ds.Rows {
		pred, err := m.Predict(s, vec)
		if err != nil {
			return nil, fmt.Errorf("evaluation row %d: %w", i, err)
		}
		estimates[i] = pred

		diff := pred - ds.Targets[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
	}

	n := float64(len(ds.Rows))
	return map[string]float64{
		"mae":  absSum / n,
		"rmse": math.Sqrt(sqSum / n),
		"r2":   stat.RSquaredFrom(estimates, ds.Targets, nil),
	}, nil
}
