// Package model implements the linear regression model the service evaluates
// at inference time. The model is an intercept plus one weight per encoded
// design-matrix column; categorical features are one-hot encoded against a
// reference category so the design stays full rank.
package model

import (
	"fmt"
	"math"

	"github.com/stayml/listing-price-service/internal/schema"
)

// Linear is the fitted regression state embedded in an artifact. It is
// immutable after fitting; Predict never mutates it, so a single instance is
// safe to share across concurrent requests.
type Linear struct {
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`

	// Columns names the encoded design-matrix columns, in weight order.
	Columns []string `json:"columns"`
}

// EncodedColumns returns the design-matrix column names for a schema, in
// encoding order. Numeric fields contribute one column; categorical fields
// contribute one indicator column per category beyond the first (the first
// category is the reference level).
func EncodedColumns(s *schema.Schema) []string {
	var cols []string
	for _, f := range s.Fields {
		switch f.Kind {
		case schema.KindNumeric:
			cols = append(cols, f.Name)
		case schema.KindCategorical:
			for _, c := range f.Categories[1:] {
				cols = append(cols, f.Name+"="+c)
			}
		}
	}
	return cols
}

// Encode maps a validated feature vector onto the encoded design row.
func Encode(s *schema.Schema, vec *schema.Vector) []float64 {
	var row []float64
	for _, f := range s.Fields {
		switch f.Kind {
		case schema.KindNumeric:
			row = append(row, vec.Numeric[f.Name])
		case schema.KindCategorical:
			val := vec.Categorical[f.Name]
			for _, c := range f.Categories[1:] {
				if val == c {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
	}
	return row
}

// Predict evaluates the model on a validated feature vector. The result is
// clamped to zero from below; a non-finite result is an internal error, never
// a response.
func (m *Linear) Predict(s *schema.Schema, vec *schema.Vector) (float64, error) {
	row := Encode(s, vec)
	if len(row) != len(m.Weights) {
		return 0, fmt.Errorf("feature encoding produced %d columns, model has %d weights", len(row), len(m.Weights))
	}

	price := m.Intercept
	for i, w := range m.Weights {
		price += w * row[i]
	}

	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("model produced a non-finite prediction")
	}
	if price < 0 {
		price = 0
	}
	return price, nil
}

// Validate checks that the model state is usable with the given schema.
func (m *Linear) Validate(s *schema.Schema) error {
	want := EncodedColumns(s)
	if len(m.Weights) != len(want) {
		return fmt.Errorf("model has %d weights, schema encodes to %d columns", len(m.Weights), len(want))
	}
	if len(m.Columns) != len(want) {
		return fmt.Errorf("model names %d columns, schema encodes to %d", len(m.Columns), len(want))
	}
	for i, c := range want {
		if m.Columns[i] != c {
			return fmt.Errorf("model column %d is %q, schema expects %q", i, m.Columns[i], c)
		}
	}
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return fmt.Errorf("model intercept is not finite")
	}
	for i, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("model weight %d is not finite", i)
		}
	}
	return nil
}
