package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/stayml/listing-price-service/internal/schema"
)

// Fit solves the least-squares problem for the encoded training rows and
// returns the fitted model. The fit is deterministic: the same rows and
// targets always produce the same weights.
func Fit(s *schema.Schema, rows []*schema.Vector, targets []float64) (*Linear, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(rows) != len(targets) {
		return nil, fmt.Errorf("got %d rows but %d targets", len(rows), len(targets))
	}

	cols := EncodedColumns(s)
	p := len(cols) + 1 // leading intercept column
	if len(rows) < p {
		return nil, fmt.Errorf("need at least %d rows to fit %d coefficients, got %d", p, p, len(rows))
	}

	x := mat.NewDense(len(rows), p, nil)
	y := mat.NewVecDense(len(rows), targets)
	for i, vec := range rows {
		x.Set(i, 0, 1)
		for j, v := range Encode(s, vec) {
			x.Set(i, j+1, v)
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("least squares solve failed: %w", err)
	}

	m := &Linear{
		Intercept: coef.AtVec(0),
		Weights:   make([]float64, len(cols)),
		Columns:   cols,
	}
	for i := range cols {
		m.Weights[i] = coef.AtVec(i + 1)
	}

	if err := m.Validate(s); err != nil {
		return nil, fmt.Errorf("fitted model is invalid: %w", err)
	}
	return m, nil
}
