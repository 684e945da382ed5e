// Package mpm implements the McLeod Pitch Method as a [pitch.Estimator].
//
// The normalised square difference function (NSDF) is derived from the
// frame's autocorrelation, which is computed in O(n log n) with an FFT:
// the frame is zero-padded to at least twice its length, transformed,
// reduced to its power spectrum and transformed back. Key maxima are the
// highest points of each positive NSDF lobe after the first negative
// crossing; the first key maximum within Cutoff of the global best is
// taken as the period and refined by parabolic interpolation.
package mpm

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/MrWong99/fretsense/pkg/provider/pitch"
)

const (
	// DefaultCutoff is the fraction of the best NSDF peak a key maximum
	// must reach to be chosen.
	DefaultCutoff = 0.97

	// DefaultMinFrequency bounds the lowest reportable pitch.
	DefaultMinFrequency = 60.0

	// smallCutoff rejects frames whose best periodicity is too weak to
	// count as pitched.
	smallCutoff = 0.5
)

// Option configures an [Estimator].
type Option func(*Estimator)

// WithCutoff sets the key-maximum selection threshold in (0, 1].
func WithCutoff(c float64) Option {
	return func(e *Estimator) { e.cutoff = c }
}

// WithMinFrequency sets the lowest frequency reported as pitched.
func WithMinFrequency(hz float64) Option {
	return func(e *Estimator) { e.minFreq = hz }
}

// Estimator is a McLeod pitch detector. It reuses internal buffers and
// must not be shared between goroutines.
type Estimator struct {
	sampleRate float64
	cutoff     float64
	minFreq    float64

	padded []float64
	nsdf   []float64
}

// New returns an Estimator for frames sampled at cfg.SampleRate.
func New(cfg pitch.Config, opts ...Option) (*Estimator, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("mpm: sample rate must be positive, got %d", cfg.SampleRate)
	}
	e := &Estimator{
		sampleRate: float64(cfg.SampleRate),
		cutoff:     DefaultCutoff,
		minFreq:    DefaultMinFrequency,
	}
	for _, o := range opts {
		o(e)
	}
	if !(e.cutoff > 0) || e.cutoff > 1 {
		return nil, fmt.Errorf("mpm: cutoff must be in (0, 1], got %v", e.cutoff)
	}
	if !(e.minFreq > 0) {
		return nil, fmt.Errorf("mpm: min frequency must be positive, got %v", e.minFreq)
	}
	if cfg.BufferSize > 0 {
		e.padded = make([]float64, padLen(cfg.BufferSize))
		e.nsdf = make([]float64, cfg.BufferSize)
	}
	return e, nil
}

// Estimate implements [pitch.Estimator].
func (e *Estimator) Estimate(samples []float32) (pitch.Result, error) {
	n := len(samples)
	if n < 4 {
		return pitch.Unpitched, fmt.Errorf("%w: %d samples", pitch.ErrFrameTooShort, n)
	}

	nsdf := e.normalisedSquareDifference(samples)
	if nsdf == nil {
		return pitch.Unpitched, nil
	}

	// Longest period worth searching.
	maxLag := min(n-1, int(e.sampleRate/e.minFreq)+1)

	peaks := keyMaxima(nsdf[:maxLag+1])
	if len(peaks) == 0 {
		return pitch.Unpitched, nil
	}
	best := 0.0
	for _, p := range peaks {
		best = max(best, nsdf[p])
	}
	if best < smallCutoff {
		return pitch.Unpitched, nil
	}

	threshold := e.cutoff * best
	for _, p := range peaks {
		if nsdf[p] < threshold {
			continue
		}
		period, value := interpolate(nsdf, p)
		freq := e.sampleRate / period
		if freq < e.minFreq || math.IsNaN(freq) || math.IsInf(freq, 0) {
			return pitch.Unpitched, nil
		}
		return pitch.Result{
			FrequencyHz: freq,
			Pitched:     true,
			Probability: min(max(value, 0), 1),
		}, nil
	}
	return pitch.Unpitched, nil
}

// normalisedSquareDifference returns nsdf[τ] for τ in [0, n). It returns
// nil for a silent frame.
func (e *Estimator) normalisedSquareDifference(samples []float32) []float64 {
	n := len(samples)
	size := padLen(n)
	if len(e.padded) != size {
		e.padded = make([]float64, size)
	}
	if len(e.nsdf) != n {
		e.nsdf = make([]float64, n)
	}
	x := e.padded
	clear(x)
	for i, s := range samples {
		if v := float64(s); !math.IsNaN(v) && !math.IsInf(v, 0) {
			x[i] = v
		}
	}

	spectrum := fft.FFTReal(x)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	acf := fft.IFFT(spectrum)

	r0 := real(acf[0])
	if r0 <= 1e-12 {
		return nil
	}

	nsdf := e.nsdf
	m := 2 * r0
	nsdf[0] = 1
	for tau := 1; tau < n; tau++ {
		m -= x[tau-1]*x[tau-1] + x[n-tau]*x[n-tau]
		if m > 1e-12 {
			nsdf[tau] = 2 * real(acf[tau]) / m
		} else {
			nsdf[tau] = 0
		}
	}
	return nsdf
}

// keyMaxima returns the index of the highest point of every positive lobe
// that follows the first negative stretch of nsdf.
func keyMaxima(nsdf []float64) []int {
	var peaks []int
	tau := 1
	for tau < len(nsdf) && nsdf[tau] > 0 {
		tau++
	}
	for tau < len(nsdf) && nsdf[tau] <= 0 {
		tau++
	}
	for tau < len(nsdf) {
		top := tau
		for tau < len(nsdf) && nsdf[tau] > 0 {
			if nsdf[tau] > nsdf[top] {
				top = tau
			}
			tau++
		}
		// A lobe cut off by the search window has no reliable peak.
		if tau < len(nsdf) {
			peaks = append(peaks, top)
		}
		for tau < len(nsdf) && nsdf[tau] <= 0 {
			tau++
		}
	}
	return peaks
}

// interpolate fits a parabola through the peak at i and its neighbours.
func interpolate(nsdf []float64, i int) (period, value float64) {
	if i <= 0 || i >= len(nsdf)-1 {
		return float64(i), nsdf[i]
	}
	a, b, c := nsdf[i-1], nsdf[i], nsdf[i+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(i), b
	}
	shift := 0.5 * (a - c) / den
	return float64(i) + shift, b - 0.25*(a-c)*shift
}

// padLen is the smallest power of two holding 2n samples, which keeps the
// circular autocorrelation free of wrap-around.
func padLen(n int) int {
	size := 1
	for size < 2*n {
		size <<= 1
	}
	return size
}

var _ pitch.Estimator = (*Estimator)(nil)
