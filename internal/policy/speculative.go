package policy

// SpeculativeBestEffort applies the same first-retrain and post-finish rules
// as NaiveBestEffort, but additionally may dispatch an overlapping
// speculative retrain while one is already in flight, when the projected
// cost of waiting exceeds the projected cost of retraining now.
// Grounded on SpeculativeBestEffortPolicy in retrain_policies.cpp.
type SpeculativeBestEffort struct{}

func (*SpeculativeBestEffort) Name() string { return "SpeculativeBestEffortPolicy" }

func (*SpeculativeBestEffort) ReadyToRetrain(r Record) Decision {
	if r.DataFromUs <= 0 {
		return Decision{Trigger: true, FromUs: r.LastArrivalUs, ToUs: r.LastArrivalUs}
	}

	if r.Finished && r.LastArrivalUs > r.TrainingBatch.DispatchUs {
		return Decision{Trigger: true, FromUs: r.DataToUs + 1, ToUs: r.LastArrivalUs}
	}

	if r.Finished {
		return noTrigger
	}

	var dataSizeAfterRetrain int64
	for _, b := range r.Batches {
		if b.ArrivalUs > r.DataToUs {
			dataSizeAfterRetrain += b.Size
		}
	}

	lastRetrainDataSize := r.TrainingBatch.Size
	intervalMs := (r.LastArrivalUs - r.TrainingBatch.DispatchUs) / 1000

	left := float64(dataSizeAfterRetrain) * r.Beta
	right := 2 * (r.Alpha*float64(lastRetrainDataSize)*float64(dataSizeAfterRetrain) +
		float64(intervalMs)*float64(lastRetrainDataSize+dataSizeAfterRetrain))

	if left >= right {
		return Decision{Trigger: true, FromUs: r.DataFromUs, ToUs: r.LastArrivalUs}
	}

	return noTrigger
}

func (p *SpeculativeBestEffort) OnRetrainFinished(r Record) Decision {
	if r.Finished && r.LastArrivalUs > r.TrainingBatch.DispatchUs {
		return Decision{Trigger: true, FromUs: r.DataToUs + 1, ToUs: r.LastArrivalUs}
	}
	return noTrigger
}

func (*SpeculativeBestEffort) CalcTimeoutMs(Record) int64 { return 0 }
