package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Classifier is the capability every estimator step must provide.
type Classifier interface {
	Classify(x *mat.Dense) ([]int, error)
}

// ProbabilityEstimator is the optional capability of estimators that can
// score the positive class. Its absence is a valid state.
type ProbabilityEstimator interface {
	Proba(x *mat.Dense) ([]float64, error)
}

// Estimator type tags understood by the artifact adapter.
const (
	EstimatorLogisticRegression = "logistic_regression"
	EstimatorDecisionTree       = "decision_tree"
)

type EstimatorSpec struct {
	Type               string              `json:"type"`
	LogisticRegression *LogisticRegression `json:"logistic_regression,omitempty"`
	DecisionTree       *DecisionTree       `json:"decision_tree,omitempty"`
}

func (s *EstimatorSpec) build() (Classifier, error) {
	switch s.Type {
	case EstimatorLogisticRegression:
		if s.LogisticRegression == nil {
			return nil, errors.New("logistic_regression parameters missing")
		}
		return s.LogisticRegression, nil
	case EstimatorDecisionTree:
		if s.DecisionTree == nil {
			return nil, errors.New("decision_tree parameters missing")
		}
		return s.DecisionTree, nil
	default:
		return nil, fmt.Errorf("unsupported estimator type %q", s.Type)
	}
}

// LogisticRegression is a binary linear classifier. It implements both
// Classifier and ProbabilityEstimator.
type LogisticRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (lr *LogisticRegression) Proba(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != len(lr.Coef) {
		return nil, fmt.Errorf("feature width mismatch: matrix has %d, coefficients expect %d", cols, len(lr.Coef))
	}
	w := mat.NewVecDense(len(lr.Coef), lr.Coef)
	probs := make([]float64, rows)
	for i := 0; i < rows; i++ {
		z := mat.Dot(x.RowView(i), w) + lr.Intercept
		probs[i] = 1.0 / (1.0 + math.Exp(-z))
	}
	return probs, nil
}

func (lr *LogisticRegression) Classify(x *mat.Dense) ([]int, error) {
	probs, err := lr.Proba(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// DecisionTree is a flattened binary tree: children are indexes into the
// node array. It classifies only; no probability capability.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

func (dt *DecisionTree) Classify(x *mat.Dense) ([]int, error) {
	if len(dt.Nodes) == 0 {
		return nil, errors.New("empty decision tree")
	}
	rows, cols := x.Dims()
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		label, err := dt.classifyRow(x, i, cols)
		if err != nil {
			return nil, err
		}
		labels[i] = label
	}
	return labels, nil
}

func (dt *DecisionTree) classifyRow(x *mat.Dense, row, cols int) (int, error) {
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= cols {
			return 0, errors.New("feature index out of range")
		}
		if x.At(row, node.FeatureIdx) <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}
