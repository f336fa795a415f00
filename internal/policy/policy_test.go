package policy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/All-less/continuum/internal/policy"
)

var _ = Describe("NaiveBestEffort", func() {
	p := &policy.NaiveBestEffort{}

	It("triggers immediately on the first-ever retrain", func() {
		r := policy.Record{DataFromUs: 0, LastArrivalUs: 1_000_000}

		d := p.ReadyToRetrain(r)
		Expect(d.Trigger).To(BeTrue())
		Expect(d.FromUs).To(BeEquivalentTo(1))
		Expect(d.ToUs).To(BeEquivalentTo(1_000_000))
	})

	It("chains the next retrain once the in-flight one finishes and new data arrived", func() {
		r := policy.Record{
			DataFromUs:    1,
			DataToUs:      1_000_000,
			LastArrivalUs: 2_000_000,
			Finished:      true,
			TrainingBatch: policy.TrainingBatch{DispatchUs: 900_000},
		}

		d := p.ReadyToRetrain(r)
		Expect(d.Trigger).To(BeTrue())
		Expect(d.FromUs).To(BeEquivalentTo(1_000_001))
		Expect(d.ToUs).To(BeEquivalentTo(2_000_000))
	})

	It("does not trigger while a retrain is still in flight", func() {
		r := policy.Record{
			DataFromUs:    1,
			DataToUs:      1_000_000,
			LastArrivalUs: 2_000_000,
			Finished:      false,
		}

		Expect(p.ReadyToRetrain(r).Trigger).To(BeFalse())
	})

	It("always reports a zero timeout", func() {
		Expect(p.CalcTimeoutMs(policy.Record{})).To(BeEquivalentTo(0))
	})
})

var _ = Describe("SpeculativeBestEffort", func() {
	p := &policy.SpeculativeBestEffort{}

	It("triggers immediately on the first-ever retrain with from=to=last_arrival", func() {
		r := policy.Record{DataFromUs: 0, LastArrivalUs: 1_000_000}

		d := p.ReadyToRetrain(r)
		Expect(d.Trigger).To(BeTrue())
		Expect(d.FromUs).To(BeEquivalentTo(1_000_000))
		Expect(d.ToUs).To(BeEquivalentTo(1_000_000))
	})

	It("does not speculatively fire when left < right", func() {
		// Scenario 3 from the design notes: alpha=0.001, beta=100, weight=10.
		r := policy.Record{
			Alpha:         0.001,
			Beta:          100,
			Weight:        10,
			DataFromUs:    1,
			DataToUs:      0,
			LastArrivalUs: 500_000,
			Finished:      false,
			TrainingBatch: policy.TrainingBatch{DispatchUs: 0, Size: 1000},
			Batches: []policy.Batch{
				{ArrivalUs: 0, Size: 1000},
				{ArrivalUs: 500_000, Size: 1000},
			},
		}

		Expect(p.ReadyToRetrain(r).Trigger).To(BeFalse())
	})

	It("speculatively fires once beta grows large enough to flip the inequality", func() {
		r := policy.Record{
			Alpha:         0.001,
			Beta:          20000,
			Weight:        10,
			DataFromUs:    1,
			DataToUs:      0,
			LastArrivalUs: 500_000,
			Finished:      false,
			TrainingBatch: policy.TrainingBatch{DispatchUs: 0, Size: 1000},
			Batches: []policy.Batch{
				{ArrivalUs: 0, Size: 1000},
				{ArrivalUs: 500_000, Size: 1000},
			},
		}

		d := p.ReadyToRetrain(r)
		Expect(d.Trigger).To(BeTrue())
		Expect(d.FromUs).To(BeEquivalentTo(1))
		Expect(d.ToUs).To(BeEquivalentTo(500_000))
	})
})

var _ = Describe("CostAware", func() {
	p := &policy.CostAware{}

	It("does nothing while the last retrain is still unfinished", func() {
		r := policy.Record{Finished: false, Batches: []policy.Batch{{Size: 1}, {Size: 1}}}
		Expect(p.ReadyToRetrain(r).Trigger).To(BeFalse())
	})

	It("does nothing with at most one relevant batch", func() {
		r := policy.Record{Finished: true, Batches: []policy.Batch{{Size: 10}}}
		Expect(p.ReadyToRetrain(r).Trigger).To(BeFalse())
	})

	It("fires once the latency cost of waiting outweighs weight*beta", func() {
		// With alpha=beta=0 the only cost is the latency accrued by the first
		// batch waiting the full 10s gap for a combined pass; splitting
		// removes that wait entirely, so all_cost - min_cost is strictly
		// positive and exceeds the zero threshold.
		r := policy.Record{
			Alpha:         0,
			Beta:          0,
			Weight:        1,
			Finished:      true,
			DataToUs:      0,
			LastArrivalUs: 10_000_000,
			Batches: []policy.Batch{
				{ArrivalUs: 0, Size: 10},
				{ArrivalUs: 10_000_000, Size: 10},
			},
		}

		d := p.ReadyToRetrain(r)
		Expect(d.Trigger).To(BeTrue())
		Expect(d.FromUs).To(BeEquivalentTo(1))
		Expect(d.ToUs).To(BeEquivalentTo(10_000_000))
	})

	It("does not fire when the weight*beta threshold dominates", func() {
		r := policy.Record{
			Alpha:         1,
			Beta:          1_000_000,
			Weight:        10,
			Finished:      true,
			DataToUs:      0,
			LastArrivalUs: 1_000_000,
			Batches: []policy.Batch{
				{ArrivalUs: 0, Size: 10},
				{ArrivalUs: 1_000_000, Size: 10},
			},
		}

		Expect(p.ReadyToRetrain(r).Trigger).To(BeFalse())
	})
})

var _ = Describe("Manual", func() {
	p := &policy.Manual{}

	It("never triggers on its own", func() {
		Expect(p.ReadyToRetrain(policy.Record{DataFromUs: 0}).Trigger).To(BeFalse())
		Expect(p.OnRetrainFinished(policy.Record{Finished: true}).Trigger).To(BeFalse())
		Expect(p.CalcTimeoutMs(policy.Record{})).To(BeEquivalentTo(0))
	})
})

var _ = Describe("Registry", func() {
	It("resolves registered policy names", func() {
		reg := policy.NewRegistry()
		Expect(reg.Resolve("CostAwarePolicy").Name()).To(Equal("CostAwarePolicy"))
		Expect(reg.Resolve("ManualPolicy").Name()).To(Equal("ManualPolicy"))
	})

	It("falls back to NaiveBestEffortPolicy for unknown names", func() {
		reg := policy.NewRegistry()
		Expect(reg.Resolve("DoesNotExist").Name()).To(Equal("NaiveBestEffortPolicy"))
	})
})
