package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pavecheck_predictions_total",
		Help: "Total number of prediction rows returned.",
	})
	PredictionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pavecheck_prediction_failures_total",
		Help: "Total number of failed prediction submissions.",
	})
	ModelsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pavecheck_models_loaded_total",
		Help: "Total number of pipeline artifacts loaded.",
	})
	ModelLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pavecheck_model_load_failures_total",
		Help: "Total number of artifact uploads that failed to deserialize.",
	})
	DatasetsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pavecheck_datasets_loaded_total",
		Help: "Total number of choice spreadsheets parsed.",
	})
	PredictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pavecheck_predict_duration_seconds",
		Help:    "Duration of a full predict submission.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})
)
