package audio

// Resampler converts mono samples from the hardware rate to the fixed target
// rate by linear interpolation, carrying the fractional read position and the
// last sample across chunks so the output is continuous.
type Resampler struct {
	step   float64 // source samples per output sample
	pos    float64
	last   float32
	primed bool
}

func NewResampler(srcRate, dstRate float64) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, &EngineError{Reason: FailureConverterCreation}
	}
	return &Resampler{step: srcRate / dstRate}, nil
}

// Process resamples one chunk. The returned slice is freshly allocated.
func (r *Resampler) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	if r.step == 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	buf := in
	if r.primed {
		buf = make([]float32, 0, len(in)+1)
		buf = append(buf, r.last)
		buf = append(buf, in...)
	} else {
		r.primed = true
		r.pos = 0
	}

	out := make([]float32, 0, int(float64(len(in))/r.step)+2)
	t := r.pos
	for ; t+1 < float64(len(buf)); t += r.step {
		i := int(t)
		frac := float32(t - float64(i))
		out = append(out, buf[i]+(buf[i+1]-buf[i])*frac)
	}
	r.pos = t - float64(len(buf)-1)
	r.last = buf[len(buf)-1]
	return out
}
