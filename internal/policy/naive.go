package policy

// NaiveBestEffort retrains as soon as any new data has arrived since the
// last finished retrain, with no speculative overlap and no cost modeling.
// Grounded on NaiveBestEffortPolicy in retrain_policies.cpp.
type NaiveBestEffort struct{}

func (*NaiveBestEffort) Name() string { return "NaiveBestEffortPolicy" }

func (*NaiveBestEffort) ReadyToRetrain(r Record) Decision {
	if r.DataFromUs <= 0 {
		return Decision{Trigger: true, FromUs: 1, ToUs: r.LastArrivalUs}
	}

	if r.Finished && r.LastArrivalUs > r.TrainingBatch.DispatchUs {
		return Decision{Trigger: true, FromUs: r.DataToUs + 1, ToUs: r.LastArrivalUs}
	}

	return noTrigger
}

func (p *NaiveBestEffort) OnRetrainFinished(r Record) Decision {
	if r.Finished && r.LastArrivalUs > r.TrainingBatch.DispatchUs {
		return Decision{Trigger: true, FromUs: r.DataToUs + 1, ToUs: r.LastArrivalUs}
	}
	return noTrigger
}

func (*NaiveBestEffort) CalcTimeoutMs(Record) int64 { return 0 }
