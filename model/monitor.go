// Package model provides the estimation plumbing shared by the
// concrete estimators: the convergence monitor that drives their
// iteration loops and helpers to sample synthetic observations.
package model

import (
	"fmt"
	"math"

	"github.com/golang/glog"
)

// Status is the state of a Monitor.
type Status int

const (
	// Initialized means Start has not been called yet.
	Initialized Status = iota
	// Iterating means the loop should continue.
	Iterating
	// Converged means the signature distance dropped below tolerance.
	Converged
	// MaxIters means the iteration cap was reached before convergence.
	// It is a warning, not a failure; results are still returned.
	MaxIters
)

func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIters:
		return "max iterations reached"
	}
	return fmt.Sprintf("unknown status %d", int(s))
}

// Terminal reports whether s ends the iteration loop.
func (s Status) Terminal() bool { return s == Converged || s == MaxIters }

// Monitor decides when an estimator's iteration loop stops. It owns
// the previous progress signature and the iteration counter; the
// estimator calls Start once with the signature of its initial state
// and Step once per completed iteration.
//
// The signature may be a single scalar (a log-likelihood) or a
// concatenated parameter vector; the distance between signatures is
// the maximum absolute component difference.
type Monitor struct {
	tol     float64
	maxIter int
	iter    int
	prev    []float64
	status  Status
}

// NewMonitor validates the convergence settings and returns a monitor
// in the Initialized state.
func NewMonitor(tol float64, maxIter int) (*Monitor, error) {
	if tol <= 0 {
		return nil, fmt.Errorf("%w: tolerance must be positive, got %g", ErrInvalidConfig, tol)
	}
	if maxIter <= 0 {
		return nil, fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidConfig, maxIter)
	}
	return &Monitor{tol: tol, maxIter: maxIter, status: Initialized}, nil
}

// Start records the signature of the initial parameter state at
// iteration zero and transitions the monitor to Iterating.
func (m *Monitor) Start(sig []float64) {
	m.prev = append(m.prev[:0], sig...)
	m.iter = 0
	m.status = Iterating
}

// Step records the signature after one completed iteration and returns
// the resulting status. The iteration counter is incremented first;
// convergence is tested before the iteration cap, so a run that meets
// tolerance on its last allowed iteration still reports Converged.
func (m *Monitor) Step(sig []float64) Status {
	if m.status != Iterating {
		panic("model: Step called on a monitor that is not iterating")
	}
	m.iter++
	d := distance(m.prev, sig)
	m.prev = append(m.prev[:0], sig...)
	switch {
	case d <= m.tol:
		m.status = Converged
	case m.iter >= m.maxIter:
		m.status = MaxIters
	}
	glog.V(2).Infof("iteration %d: signature distance %e (%s)", m.iter, d, m.status)
	return m.status
}

// Iterations returns the number of completed iterations.
func (m *Monitor) Iterations() int { return m.iter }

// Converged reports whether the run met the tolerance criterion.
func (m *Monitor) Converged() bool { return m.status == Converged }

// Status returns the current state.
func (m *Monitor) Status() Status { return m.status }

// distance is the maximum absolute component difference.
func distance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("model: signature length changed between iterations")
	}
	var max float64
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > max {
			max = d
		}
	}
	return max
}
