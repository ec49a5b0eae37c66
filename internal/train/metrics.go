package train

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "positnn_train_steps_total",
		Help: "The total number of optimizer steps taken",
	})

	stepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "positnn_train_step_errors_total",
		Help: "The total number of failed training steps",
	})

	samplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "positnn_train_samples_total",
		Help: "The total number of samples trained on",
	})

	lossGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "positnn_train_loss",
		Help: "Mean loss per sample of the last training step",
	})

	accuracyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "positnn_eval_accuracy",
		Help: "Accuracy of the last evaluation pass",
	})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "positnn_train_step_duration_seconds",
		Help:    "Time spent in one training step",
		Buckets: prometheus.DefBuckets,
	})
)
