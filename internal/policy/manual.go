package policy

// Manual never triggers on its own; retrains only happen through the
// explicit manual-trigger path in the Trigger Checker. Grounded on
// ManualPolicy in retrain_policies.cpp.
type Manual struct{}

func (*Manual) Name() string { return "ManualPolicy" }

func (*Manual) ReadyToRetrain(Record) Decision { return noTrigger }

func (*Manual) OnRetrainFinished(Record) Decision { return noTrigger }

func (*Manual) CalcTimeoutMs(Record) int64 { return 0 }
