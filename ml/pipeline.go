package ml

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"pavecheck/frame"
)

// Step names the trained artifact is expected to use.
const (
	StepPrep  = "prep"
	StepModel = "model"
)

const (
	LabelOverloaded = "Overloaded"
	LabelSafe       = "Safe"
)

// Pipeline is a deserialized trained classification pipeline. Its steps are
// the artifact's contract: a preprocessing step exposing the input schema and
// an estimator step exposing classification, plus optionally probability
// estimation.
type Pipeline struct {
	Steps []Step `json:"steps"`
}

type Step struct {
	Name              string             `json:"name"`
	ColumnTransformer *ColumnTransformer `json:"column_transformer,omitempty"`
	Estimator         *EstimatorSpec     `json:"estimator,omitempty"`
}

// Load deserializes a pipeline artifact. The decode error is returned
// verbatim so the caller can surface it to the user.
func Load(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, err
	}
	if _, err := p.classifier(); err != nil {
		return nil, err
	}
	return &p, nil
}

func LoadFile(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (p *Pipeline) Save(path string) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (p *Pipeline) step(name string) *Step {
	for i := range p.Steps {
		if p.Steps[i].Name == name {
			return &p.Steps[i]
		}
	}
	return nil
}

// InputColumns returns the numeric and categorical column names declared by
// the prep step, in training-time order. A missing step or missing triple is
// a valid state and yields an empty list.
func (p *Pipeline) InputColumns() (num, cat []string) {
	prep := p.step(StepPrep)
	if prep == nil || prep.ColumnTransformer == nil {
		return nil, nil
	}
	for _, t := range prep.ColumnTransformer.Transformers {
		switch t.Name {
		case TransformerNum:
			num = append([]string(nil), t.Columns...)
		case TransformerCat:
			cat = append([]string(nil), t.Columns...)
		}
	}
	return num, cat
}

func (p *Pipeline) classifier() (Classifier, error) {
	model := p.step(StepModel)
	if model == nil || model.Estimator == nil {
		return nil, errors.New("pipeline has no model step")
	}
	return model.Estimator.build()
}

// Predict runs classification over a reconciled table and returns per-row
// integer class labels.
func (p *Pipeline) Predict(t *frame.Table) ([]int, error) {
	clf, err := p.classifier()
	if err != nil {
		return nil, err
	}
	prep := p.step(StepPrep)
	if prep == nil || prep.ColumnTransformer == nil {
		return nil, errors.New("pipeline has no prep step")
	}
	x, err := prep.ColumnTransformer.Transform(t)
	if err != nil {
		return nil, err
	}
	return clf.Classify(x)
}

// PredictProba returns the positive-class probability per row. ok is false
// when the estimator does not expose probability estimation, which is not an
// error.
func (p *Pipeline) PredictProba(t *frame.Table) (probs []float64, ok bool, err error) {
	clf, err := p.classifier()
	if err != nil {
		return nil, false, err
	}
	est, capable := clf.(ProbabilityEstimator)
	if !capable {
		return nil, false, nil
	}
	prep := p.step(StepPrep)
	if prep == nil || prep.ColumnTransformer == nil {
		return nil, false, errors.New("pipeline has no prep step")
	}
	x, err := prep.ColumnTransformer.Transform(t)
	if err != nil {
		return nil, false, err
	}
	probs, err = est.Proba(x)
	if err != nil {
		return nil, false, err
	}
	return probs, true, nil
}

// HasProba reports whether the estimator step exposes probability estimation.
func (p *Pipeline) HasProba() bool {
	clf, err := p.classifier()
	if err != nil {
		return false
	}
	_, ok := clf.(ProbabilityEstimator)
	return ok
}

// Labels maps integer classes to display labels: 1 is the positive
// (overloaded) outcome, anything else is safe.
func Labels(classes []int) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		if c == 1 {
			out[i] = LabelOverloaded
		} else {
			out[i] = LabelSafe
		}
	}
	return out
}
