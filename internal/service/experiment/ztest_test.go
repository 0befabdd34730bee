package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTwoProportionZTest(t *testing.T) {
	tests := []struct {
		name           string
		sA, nA, sB, nB int
		wantConfidence float64
		minConfidence  float64
	}{
		{name: "identical proportions", sA: 30, nA: 500, sB: 30, nB: 500, wantConfidence: 0},
		{name: "clearly separated", sA: 5, nA: 1000, sB: 50, nB: 1000, minConfidence: 95},
		{name: "twenty vs forty five of five hundred", sA: 20, nA: 500, sB: 45, nB: 500, wantConfidence: 99},
		{name: "no successes", sA: 0, nA: 200, sB: 0, nB: 200, wantConfidence: 0},
		{name: "all successes", sA: 200, nA: 200, sB: 100, nB: 100, wantConfidence: 0},
		{name: "empty sample", sA: 0, nA: 0, sB: 10, nB: 100, wantConfidence: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conf := TwoProportionZTest(tt.sA, tt.nA, tt.sB, tt.nB)
			if tt.minConfidence > 0 {
				assert.GreaterOrEqual(t, conf, tt.minConfidence)
				return
			}
			assert.Equal(t, tt.wantConfidence, conf)
		})
	}
}

func TestTwoProportionZTest_Symmetric(t *testing.T) {
	zAB, cAB := TwoProportionZTest(12, 300, 25, 310)
	zBA, cBA := TwoProportionZTest(25, 310, 12, 300)
	assert.InDelta(t, zAB, zBA, 1e-12)
	assert.Equal(t, cAB, cBA)
}

func TestConfidenceForZ(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{3.0, 99},
		{2.576, 99},
		{2.575, 95},
		{1.96, 95},
		{1.7, 90},
		{1.645, 90},
		{1.3, 80},
		{1.28, 80},
		{1.0, 30},
		{0.5, 15},
		{0, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, confidenceForZ(tt.z), 1e-9, "z=%v", tt.z)
	}
}
