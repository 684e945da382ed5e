// Package detect turns raw per-frame pitch estimates into stable
// frequencies. It holds the two pure stages of the pipeline: the [Gate],
// which decides whether a single frame is trustworthy, and the
// [Stabilizer], which requires agreement across a short window of
// accepted frames before emitting a frequency.
//
// Nothing in this package is safe for concurrent use. The pipeline owns
// one Gate and one Stabilizer per run and drives them from a single
// goroutine.
package detect

import (
	"math"

	"github.com/MrWong99/fretsense/pkg/provider/pitch"
)

// Reason explains why the [Gate] rejected a frame. Rejections are not
// errors; the reason exists for metrics and debug logging.
type Reason string

const (
	ReasonQuiet         Reason = "quiet"
	ReasonLoud          Reason = "loud"
	ReasonUnpitched     Reason = "unpitched"
	ReasonLowConfidence Reason = "low_confidence"
	ReasonBadFrequency  Reason = "bad_frequency"
)

// Detection is the gate's view of one frame.
type Detection struct {
	FrequencyHz float64
	Pitched     bool
	Confidence  float64
	RMS         float64

	// Reason is empty for accepted frames.
	Reason Reason
}

// GateConfig holds the acceptance thresholds. All bounds are exclusive.
type GateConfig struct {
	RMSLow              float64
	RMSHigh             float64
	ConfidenceThreshold float64
}

// Gate filters frames by loudness and estimator confidence.
type Gate struct {
	cfg GateConfig
}

// NewGate returns a Gate for cfg.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate combines the frame's loudness with the estimator result and
// reports whether the frame may feed the stabilizer.
func (g *Gate) Evaluate(samples []float32, r pitch.Result) (Detection, bool) {
	d := Detection{
		FrequencyHz: r.FrequencyHz,
		Pitched:     r.Pitched,
		Confidence:  r.Probability,
		RMS:         RMS(samples),
	}
	switch {
	case !(d.RMS > g.cfg.RMSLow):
		d.Reason = ReasonQuiet
	case !(d.RMS < g.cfg.RMSHigh):
		d.Reason = ReasonLoud
	case !r.Pitched:
		d.Reason = ReasonUnpitched
	case !(r.Probability > g.cfg.ConfidenceThreshold):
		d.Reason = ReasonLowConfidence
	case !(r.FrequencyHz > 0) || math.IsInf(r.FrequencyHz, 0):
		d.Reason = ReasonBadFrequency
	}
	return d, d.Reason == ""
}

// RMS returns the root mean square of samples. NaN samples contribute
// nothing to the sum but still count towards the length. An empty frame
// has an RMS of zero.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			continue
		}
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
