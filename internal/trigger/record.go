package trigger

import "github.com/All-less/continuum/internal/policy"

// RetrainState is the lifecycle state of an InflightMessage, mirroring
// data_processor.hpp's RetrainState enum.
type RetrainState int

const (
	RetrainSent RetrainState = iota
	StartedReceived
)

// Record is the mutable per-application retraining state owned exclusively
// by the Checker's event loop. Grounded on data_processor.hpp's
// RetrainRecord (declared in retrain_policies.hpp) plus the fields
// TriggerChecker adds for bookkeeping (ConnectionID).
type Record struct {
	Alpha  float64
	Beta   float64
	Weight float64

	LastArrivalUs int64
	DataFromUs    int64
	DataToUs      int64
	Finished      bool
	TrainingBatch policy.TrainingBatch
	Batches       []policy.Batch

	PolicyName   string
	ConnectionID int32
}

// Snapshot returns a read-only copy suitable for passing to a Policy, never
// sharing the backing Batches slice's mutability with the caller.
func (r *Record) Snapshot() policy.Record {
	batches := make([]policy.Batch, len(r.Batches))
	copy(batches, r.Batches)

	return policy.Record{
		Alpha:         r.Alpha,
		Beta:          r.Beta,
		Weight:        r.Weight,
		LastArrivalUs: r.LastArrivalUs,
		DataFromUs:    r.DataFromUs,
		DataToUs:      r.DataToUs,
		Finished:      r.Finished,
		TrainingBatch: r.TrainingBatch,
		Batches:       batches,
	}
}

// pruneTrainedBatches drops every batch whose arrival time falls within the
// window of the retrain that just finished, per spec.md's Record
// invariants.
func (r *Record) pruneTrainedBatches() {
	kept := r.Batches[:0]
	for _, b := range r.Batches {
		if b.ArrivalUs >= r.DataFromUs && b.ArrivalUs <= r.DataToUs {
			continue
		}
		kept = append(kept, b)
	}
	r.Batches = kept
}

// InflightMessage is a retrain dispatched but not yet reported
// RetrainingEnded. Grounded on data_processor.hpp's InflightRetrainMessage.
type InflightMessage struct {
	MsgID        int32
	SendTimeUs   int64
	ConnectionID int32
	AppName      string
	State        RetrainState
	BatchIDs     []string
	PrevMsgLink  int32 // -1 if none
}
