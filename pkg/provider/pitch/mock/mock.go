// Package mock provides a test double for [pitch.Estimator].
//
// Results are returned from a script in order; once the script is
// exhausted every call returns Default. Example:
//
//	est := &mock.Estimator{Script: []pitch.Result{
//	    {FrequencyHz: 220, Pitched: true, Probability: 0.95},
//	}}
package mock

import (
	"sync"

	"github.com/MrWong99/fretsense/pkg/provider/pitch"
)

// EstimateCall records a single invocation of Estimator.Estimate.
type EstimateCall struct {
	// Len is the number of samples passed.
	Len int
}

// Estimator is a mock implementation of [pitch.Estimator].
type Estimator struct {
	mu sync.Mutex

	// Script is consumed front to back, one Result per call.
	Script []pitch.Result

	// Default is returned after Script is exhausted.
	Default pitch.Result

	// Err, if non-nil, is returned by every call instead of a result.
	Err error

	// Func, if set, overrides Script and Default.
	Func func(samples []float32) (pitch.Result, error)

	// EstimateCalls records every call in order.
	EstimateCalls []EstimateCall
}

// Estimate implements [pitch.Estimator].
func (e *Estimator) Estimate(samples []float32) (pitch.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EstimateCalls = append(e.EstimateCalls, EstimateCall{Len: len(samples)})
	if e.Err != nil {
		return pitch.Result{}, e.Err
	}
	if e.Func != nil {
		return e.Func(samples)
	}
	if len(e.Script) > 0 {
		r := e.Script[0]
		e.Script = e.Script[1:]
		return r, nil
	}
	return e.Default, nil
}

// Calls returns the number of Estimate calls. Thread-safe.
func (e *Estimator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.EstimateCalls)
}

var _ pitch.Estimator = (*Estimator)(nil)
