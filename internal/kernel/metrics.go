package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	kernelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "positnn_kernel_calls_total",
		Help: "Number of kernel invocations",
	}, []string{"kernel"})

	kernelOutputs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "positnn_kernel_outputs_total",
		Help: "Number of output elements produced by exact accumulation",
	}, []string{"kernel"})
)

func observe(kernel string, outputs int) {
	kernelCalls.WithLabelValues(kernel).Inc()
	kernelOutputs.WithLabelValues(kernel).Add(float64(outputs))
}
