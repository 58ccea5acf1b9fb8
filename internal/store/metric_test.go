package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	for _, valid := range []string{"cosine", "l2", "inner_product"} {
		m, err := ParseMetric(valid)
		require.NoError(t, err)
		assert.Equal(t, Metric(valid), m)
	}

	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}

func TestMetricSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		metric   Metric
		distance float64
		want     float64
	}{
		{"cosine identical", MetricCosine, 0.0, 1.0},
		{"cosine orthogonal", MetricCosine, 1.0, 0.0},
		{"cosine opposite clamps to zero", MetricCosine, 2.0, 0.0},
		{"l2 identical", MetricL2, 0.0, 1.0},
		{"l2 far", MetricL2, 3.0, 0.25},
		{"inner product raw", MetricInnerProduct, -0.8, 0.8},
		{"inner product clamps high", MetricInnerProduct, -3.0, 1.0},
		{"inner product clamps negative", MetricInnerProduct, 0.5, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.metric.Similarity(tt.distance), 1e-9)
		})
	}
}

func TestNegativeDotDistance(t *testing.T) {
	a := []float32{1, 0, 2}
	b := []float32{3, 1, 0.5}
	assert.InDelta(t, -4.0, float64(negativeDotDistance(a, b)), 1e-6)
}
