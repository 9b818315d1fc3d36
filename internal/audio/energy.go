package audio

import "math"

// energyFloor keeps the reference out of the log singularity when the
// trailing window is near-silent.
const energyFloor = 1e-3

// Meter tracks short-term signal energy over a trailing window of buffers
// and scores each buffer relative to the quietest recent one. The external
// recognizer uses the score as a voice-activity heuristic.
type Meter struct {
	window int
	avgs   []float64

	rms float64
	max float64
	min float64
}

func NewMeter(window int) *Meter {
	if window < 1 {
		window = 1
	}
	return &Meter{window: window}
}

// Update folds one buffer into the trailing window and returns the relative
// energy score in [0, 1]. O(len(samples)), no allocation beyond the window
// slice, safe to call from the capture callback.
func (m *Meter) Update(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	maxAbs := 0.0
	minAbs := math.MaxFloat64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		a := math.Abs(v)
		if a > maxAbs {
			maxAbs = a
		}
		if a < minAbs {
			minAbs = a
		}
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	m.rms, m.max, m.min = rms, maxAbs, minAbs

	m.avgs = append(m.avgs, rms)
	if len(m.avgs) > m.window {
		m.avgs = m.avgs[len(m.avgs)-m.window:]
	}

	ref := math.MaxFloat64
	for _, a := range m.avgs {
		if a < ref {
			ref = a
		}
	}
	if ref < energyFloor {
		ref = energyFloor
	}

	refDB := 20 * math.Log10(ref)
	if refDB >= 0 || rms <= 0 {
		return 0
	}
	rel := (20*math.Log10(rms) - refDB) / (0 - refDB)
	if rel < 0 {
		return 0
	}
	if rel > 1 {
		return 1
	}
	return rel
}

// RMS returns the root-mean-square energy of the last buffer.
func (m *Meter) RMS() float64 { return m.rms }
