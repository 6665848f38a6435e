package critic

import "time"

// Waveform is one decoded audio track: mono samples in [-1, 1] at a known
// sample rate. It exists only for the duration of embedding extraction.
type Waveform struct {
	SampleRate int
	Samples    []float64
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	secs := float64(len(w.Samples)) / float64(w.SampleRate)
	return time.Duration(secs * float64(time.Second))
}
