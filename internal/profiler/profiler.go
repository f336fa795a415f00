// Package profiler implements the per-application runtime-cost model: a
// bounded ring of recent (training_time, data_size) samples and the
// ordinary-least-squares fit over them.
//
// Grounded on original_source/src/libcontinuum/include/continuum/data_processor.hpp's
// RuntimeProfiler, re-expressed with the teacher's bounded-FIFO idiom
// (common/queue/fifo.go) generalized in internal/queue.
package profiler

import "github.com/All-less/continuum/internal/queue"

const (
	// DefaultMaxSamples is the size of the sample ring.
	DefaultMaxSamples = 10
	// DefaultThreshold is the minimum ring size before OLS replaces the
	// backend-supplied initial (alpha, beta).
	DefaultThreshold = 3
)

// Sample is one observed (training_time_ms, data_size) pair.
type Sample struct {
	TrainingTimeMs int64
	DataSize       int64
}

// Profiler tracks a bounded window of recent training-time samples for one
// application and exposes the current (alpha, beta) cost-model parameters.
//
// A Profiler is owned exclusively by the Trigger Checker's event loop; it is
// read but never mutated by policy evaluation.
type Profiler struct {
	ring      *queue.Fifo[Sample]
	threshold int

	alpha float64
	beta  float64
}

// New creates a Profiler seeded with the backend-provided initial (alpha,
// beta), which remain in effect until the ring accumulates at least
// threshold samples.
func New(alpha, beta float64) *Profiler {
	return NewWithOptions(alpha, beta, DefaultMaxSamples, DefaultThreshold)
}

// NewWithOptions allows overriding the ring size and regression threshold;
// production code always uses the defaults, but tests exercise small rings
// directly.
func NewWithOptions(alpha, beta float64, maxSamples, threshold int) *Profiler {
	return &Profiler{
		ring:      queue.NewFifo[Sample](maxSamples),
		threshold: threshold,
		alpha:     alpha,
		beta:      beta,
	}
}

// AddSample records a new (time, size) observation, evicting the oldest
// sample if the ring is full, then recomputes (alpha, beta) by OLS once the
// ring holds at least threshold samples.
func (p *Profiler) AddSample(trainingTimeMs, dataSize int64) {
	p.ring.Enqueue(Sample{TrainingTimeMs: trainingTimeMs, DataSize: dataSize})

	if p.ring.Len() >= p.threshold {
		p.alpha, p.beta = ordinaryLeastSquares(p.ring.Elements())
	}
}

// AlphaBeta returns the profiler's current cost-model parameters.
func (p *Profiler) AlphaBeta() (alpha, beta float64) {
	return p.alpha, p.beta
}

// Len reports how many samples are currently in the ring.
func (p *Profiler) Len() int {
	return p.ring.Len()
}

// ordinaryLeastSquares fits time = alpha*size + beta over the given samples,
// treating size as x and time as y, per spec.md §4.B.
func ordinaryLeastSquares(samples []Sample) (alpha, beta float64) {
	n := float64(len(samples))

	var sumX, sumY, sumXY, sumX2 float64
	for _, s := range samples {
		x := float64(s.DataSize)
		y := float64(s.TrainingTimeMs)

		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	alpha = (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX)
	beta = (sumY - alpha*sumX) / n
	return alpha, beta
}
