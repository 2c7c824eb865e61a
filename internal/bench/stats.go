package bench

import "math"

// tTable holds two-tailed Student t critical values at 95% confidence,
// indexed by degrees of freedom.
var tTable = [...]float64{
	1: 12.706, 2: 4.303, 3: 3.182, 4: 2.776, 5: 2.571,
	6: 2.447, 7: 2.365, 8: 2.306, 9: 2.262, 10: 2.228,
	11: 2.201, 12: 2.179, 13: 2.16, 14: 2.145, 15: 2.131,
	16: 2.12, 17: 2.11, 18: 2.101, 19: 2.093, 20: 2.086,
	21: 2.08, 22: 2.074, 23: 2.069, 24: 2.064, 25: 2.06,
	26: 2.056, 27: 2.052, 28: 2.048, 29: 2.045, 30: 2.042,
}

// tInfinity is used for more than 30 degrees of freedom.
const tInfinity = 1.96

func tCritical(df int) float64 {
	if df < 1 {
		return tTable[1]
	}
	if df >= len(tTable) {
		return tInfinity
	}
	return tTable[df]
}

// Stats summarizes the per-call durations of one operation. Times are in seconds.
type Stats struct {
	Sample    []float64 `json:"-"`
	N         int       `json:"samples"`
	Mean      float64   `json:"mean"`
	Variance  float64   `json:"variance"`
	Deviation float64   `json:"deviation"`
	SEM       float64   `json:"sem"`
	MOE       float64   `json:"moe"`
	RME       float64   `json:"rme"`
}

// Size returns the number of samples.
func (s Stats) Size() int { return s.N }

// computeStats derives the statistics of sample. Variance uses n-1; with
// fewer than two samples variance and everything derived from it is zero.
func computeStats(sample []float64) Stats {
	n := len(sample)
	s := Stats{Sample: sample, N: n}
	if n == 0 {
		return s
	}

	var sum float64
	for _, v := range sample {
		sum += v
	}
	s.Mean = sum / float64(n)

	if n > 1 {
		var sq float64
		for _, v := range sample {
			d := v - s.Mean
			sq += d * d
		}
		s.Variance = sq / float64(n-1)
	}
	s.Deviation = math.Sqrt(s.Variance)
	s.SEM = s.Deviation / math.Sqrt(float64(n))
	s.MOE = s.SEM * tCritical(n-1)
	if s.Mean > 0 {
		s.RME = s.MOE / s.Mean * 100
	}
	return s
}

// running keeps Welford's online mean and variance so the stop rules can
// check the relative margin of error after each call without rescanning.
type running struct {
	n    int
	mean float64
	m2   float64
}

func (r *running) add(v float64) {
	r.n++
	d := v - r.mean
	r.mean += d / float64(r.n)
	r.m2 += d * (v - r.mean)
}

// rme returns the relative margin of error in percent, matching computeStats.
func (r *running) rme() float64 {
	if r.n < 2 || r.mean <= 0 {
		return 0
	}
	sem := math.Sqrt(r.m2/float64(r.n-1)) / math.Sqrt(float64(r.n))
	return sem * tCritical(r.n-1) / r.mean * 100
}
