// Package policy implements the four interchangeable retraining decision
// functions — Naive, Speculative, CostAware and Manual — dispatched by name
// through a Registry.
//
// Grounded on original_source/src/libcontinuum/include/continuum/retrain_policies.hpp
// and retrain_policies.cpp, re-expressed as a Go interface with four
// stateless implementations, matching the teacher's interface-plus-struct
// idiom (e.g. common/scheduling/policy).
package policy

// Batch is one still-relevant window of arrived data, matching
// retrain_policies.hpp's BatchInfo pair.
type Batch struct {
	ArrivalUs int64
	Size      int64
}

// TrainingBatch describes the data dispatched with the most recent retrain:
// when it was dispatched and how much data it carried.
type TrainingBatch struct {
	DispatchUs int64
	Size       int64
}

// Record is the read-only snapshot a policy evaluates. It mirrors
// retrain_policies.hpp's RetrainRecord; the Trigger Checker owns the
// mutable original, policies only ever see a copy.
type Record struct {
	Alpha  float64
	Beta   float64
	Weight float64

	LastArrivalUs int64
	DataFromUs    int64
	DataToUs      int64
	Finished      bool
	TrainingBatch TrainingBatch
	Batches       []Batch
}

// Decision is the outcome of ready_to_retrain / on_retrain_finished: whether
// to trigger a retrain and, if so, over which arrival-time window.
type Decision struct {
	Trigger bool
	FromUs  int64
	ToUs    int64
}

var noTrigger = Decision{}

// Policy is a stateless decision function over a Retrain record snapshot.
type Policy interface {
	Name() string
	ReadyToRetrain(r Record) Decision
	OnRetrainFinished(r Record) Decision
	CalcTimeoutMs(r Record) int64
}

// Registry resolves a backend-supplied policy name to a Policy instance,
// falling back to NaiveBestEffort for unknown names per spec.md §4.E
// ("Policy switching").
type Registry struct {
	byName map[string]Policy
}

// NewRegistry builds a Registry pre-populated with the four built-in
// policies.
func NewRegistry() *Registry {
	reg := &Registry{byName: make(map[string]Policy)}
	for _, p := range []Policy{
		&NaiveBestEffort{},
		&SpeculativeBestEffort{},
		&CostAware{},
		&Manual{},
	} {
		reg.byName[p.Name()] = p
	}
	return reg
}

// Resolve returns the policy registered under name, or NaiveBestEffort if
// name is unrecognized.
func (reg *Registry) Resolve(name string) Policy {
	if p, ok := reg.byName[name]; ok {
		return p
	}
	return reg.byName[(&NaiveBestEffort{}).Name()]
}
