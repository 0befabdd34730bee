package experiment

import "math"

// TwoProportionZTest compares two conversion proportions and returns the
// z-score and the discrete confidence level consumers key off. The
// confidence is not a p-value: z≥2.576 maps to 99, z≥1.96 to 95, z≥1.645
// to 90, z≥1.28 to 80 and anything lower to min(z*30, 70).
func TwoProportionZTest(successA, sampleA, successB, sampleB int) (z, confidence float64) {
	if sampleA <= 0 || sampleB <= 0 {
		return 0, 0
	}
	nA, nB := float64(sampleA), float64(sampleB)
	p1 := float64(successA) / nA
	p2 := float64(successB) / nB

	pooled := float64(successA+successB) / (nA + nB)
	if pooled == 0 || pooled == 1 {
		return 0, 0
	}
	se := math.Sqrt(pooled * (1 - pooled) * (1/nA + 1/nB))
	if se == 0 {
		return 0, 0
	}

	z = math.Abs(p1-p2) / se
	return z, confidenceForZ(z)
}

func confidenceForZ(z float64) float64 {
	switch {
	case z >= 2.576:
		return 99
	case z >= 1.96:
		return 95
	case z >= 1.645:
		return 90
	case z >= 1.28:
		return 80
	}
	return math.Min(z*30, 70)
}
