package billsplit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK           = "ok"
	outcomeMismatch     = "mismatch"
	outcomeMalformed    = "malformed"
	outcomeEmpty        = "empty"
	outcomeRateLimited  = "rate_limited"
	outcomeProviderFail = "provider_error"
	outcomeEven         = "even"
)

var (
	splitOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billsplit",
		Name:      "splits_total",
		Help:      "Split attempts by outcome.",
	}, []string{"outcome"})

	splitDifference = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "billsplit",
		Name:      "validation_difference_dollars",
		Help:      "Absolute difference between owed amounts and the receipt total.",
		Buckets:   []float64{0, 0.01, 0.02, 0.05, 0.10, 0.50, 1, 5, 20},
	})
)
