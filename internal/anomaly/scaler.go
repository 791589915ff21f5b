package anomaly

import "math"

// StandardScaler centres features to zero mean and unit variance. Constant
// columns keep a scale of 1 so transformed values stay finite.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit computes per-column mean and standard deviation over the samples.
func (s *StandardScaler) Fit(samples [][]float64) {
	if len(samples) == 0 {
		return
	}
	width := len(samples[0])
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)

	for _, row := range samples {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= float64(len(samples))
	}

	for _, row := range samples {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Scale[j] += d * d
		}
	}
	for j := range s.Scale {
		sd := math.Sqrt(s.Scale[j] / float64(len(samples)))
		if sd == 0 {
			sd = 1
		}
		s.Scale[j] = sd
	}
}

// Transform returns the standardised copy of one sample.
func (s *StandardScaler) Transform(sample []float64) []float64 {
	out := make([]float64, len(sample))
	for j, v := range sample {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}
