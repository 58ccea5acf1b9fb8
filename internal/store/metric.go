package store

import (
	"fmt"

	"github.com/coder/hnsw"
)

// Metric is the distance metric of a collection's vector index.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricL2, MetricInnerProduct:
		return Metric(s), nil
	case "":
		return MetricCosine, nil
	}
	return "", fmt.Errorf("unknown metric %q (valid: cosine, l2, inner_product)", s)
}

// distanceFunc returns the HNSW distance function for the metric.
// Lower distance always means more similar.
func (m Metric) distanceFunc() hnsw.DistanceFunc {
	switch m {
	case MetricL2:
		return hnsw.EuclideanDistance
	case MetricInnerProduct:
		return negativeDotDistance
	default:
		return hnsw.CosineDistance
	}
}

// Similarity converts a raw distance to a normalized similarity,
// clamped to [0,1] so thresholds and fusion weights compose across
// metrics:
//
//	cosine:        1 - distance (distance is 1 - cos, range 0..2)
//	l2:            1 / (1 + distance)
//	inner_product: the raw dot product
func (m Metric) Similarity(distance float64) float64 {
	var sim float64
	switch m {
	case MetricL2:
		sim = 1.0 / (1.0 + distance)
	case MetricInnerProduct:
		sim = -distance
	default:
		sim = 1.0 - distance
	}
	return clamp01(sim)
}

// normalizesVectors reports whether stored vectors are scaled to unit
// length before indexing.
func (m Metric) normalizesVectors() bool {
	return m == MetricCosine
}

// negativeDotDistance orders vectors by descending dot product.
func negativeDotDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
