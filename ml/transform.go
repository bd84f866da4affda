package ml

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"pavecheck/frame"
)

// Transformer triple names recognized during schema introspection.
const (
	TransformerNum = "num"
	TransformerCat = "cat"
)

// ColumnTransformer mirrors the artifact's preprocessing stage: an ordered
// list of (name, columns, transformer) triples.
type ColumnTransformer struct {
	Transformers []TransformerSpec `json:"transformers"`
}

type TransformerSpec struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Scaler  *StandardScaler `json:"scaler,omitempty"`
	Encoder *OneHotEncoder  `json:"encoder,omitempty"`
}

// StandardScaler standardizes numeric columns with training-time mean and
// scale. Missing values are imputed with the mean.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// OneHotEncoder expands a categorical column into indicator features, one
// per training-time category. Unknown categories encode as all zeros.
type OneHotEncoder struct {
	Categories [][]string `json:"categories"`
}

// Width returns the number of encoded features the transformer produces.
func (ct *ColumnTransformer) Width() int {
	w := 0
	for _, t := range ct.Transformers {
		switch t.Name {
		case TransformerNum:
			w += len(t.Columns)
		case TransformerCat:
			if t.Encoder != nil {
				for _, cats := range t.Encoder.Categories {
					w += len(cats)
				}
			}
		}
	}
	return w
}

// Transform encodes a reconciled table into a design matrix. Column order
// follows the transformer triples in declaration order, numeric features
// first when the artifact was built that way.
func (ct *ColumnTransformer) Transform(t *frame.Table) (*mat.Dense, error) {
	width := ct.Width()
	if width == 0 {
		return nil, fmt.Errorf("column transformer declares no features")
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("input table is empty")
	}

	x := mat.NewDense(t.Len(), width, nil)
	for i := 0; i < t.Len(); i++ {
		offset := 0
		for _, spec := range ct.Transformers {
			switch spec.Name {
			case TransformerNum:
				for j, col := range spec.Columns {
					v, err := numericCell(t.Value(i, col), spec.Scaler, j)
					if err != nil {
						return nil, fmt.Errorf("column %q row %d: %w", col, i, err)
					}
					if spec.Scaler != nil && j < len(spec.Scaler.Mean) && j < len(spec.Scaler.Scale) && spec.Scaler.Scale[j] != 0 {
						v = (v - spec.Scaler.Mean[j]) / spec.Scaler.Scale[j]
					}
					x.Set(i, offset+j, v)
				}
				offset += len(spec.Columns)
			case TransformerCat:
				if spec.Encoder == nil {
					return nil, fmt.Errorf("categorical triple %q has no encoder", spec.Name)
				}
				for j, col := range spec.Columns {
					if j >= len(spec.Encoder.Categories) {
						return nil, fmt.Errorf("encoder categories missing for column %q", col)
					}
					cats := spec.Encoder.Categories[j]
					val := stringCell(t.Value(i, col))
					for k, c := range cats {
						if c == val {
							x.Set(i, offset+k, 1)
							break
						}
					}
					offset += len(cats)
				}
			}
		}
	}
	return x, nil
}

func numericCell(v any, scaler *StandardScaler, idx int) (float64, error) {
	switch val := v.(type) {
	case nil:
		if scaler != nil && idx < len(scaler.Mean) {
			return scaler.Mean[idx], nil
		}
		return 0, nil
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func stringCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}
