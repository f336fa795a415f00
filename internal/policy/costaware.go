package policy

// CostAware only retrains once the accumulated latency cost of deferring
// exceeds the fixed cost of an extra retraining pass, weighted by the
// backend's configured weight. Grounded on CostAwarePolicy in
// retrain_policies.cpp.
type CostAware struct{}

func (*CostAware) Name() string { return "CostAwarePolicy" }

// costInfo mirrors retrain_policies.hpp's CostInfo: the cost of retraining
// all pending data in one pass versus the cheapest two-pass split.
type costInfo struct {
	allCost float64
	minCost float64
}

func (p *CostAware) ReadyToRetrain(r Record) Decision {
	if !r.Finished {
		return noTrigger
	}
	if len(r.Batches) <= 1 {
		return noTrigger
	}

	info := p.calcCostInfo(r)
	if info.allCost-info.minCost > r.Weight*r.Beta {
		return Decision{Trigger: true, FromUs: r.DataToUs + 1, ToUs: r.LastArrivalUs}
	}
	return noTrigger
}

func (p *CostAware) OnRetrainFinished(r Record) Decision {
	return p.ReadyToRetrain(r)
}

func (p *CostAware) CalcTimeoutMs(r Record) int64 {
	info := p.calcCostInfo(r)

	var untrained int64
	for _, b := range r.Batches {
		if r.Finished || b.ArrivalUs > r.DataToUs {
			untrained += b.Size
		}
	}
	if untrained == 0 {
		return 0
	}

	return int64((r.Weight*r.Beta - (info.allCost - info.minCost)) / float64(untrained))
}

// calcCost mirrors CostAwarePolicy::calc_cost: the weighted cost of
// retraining [begin,end) as a single pass of the given size, plus the
// latency accrued by every batch in the range waiting for that pass to
// finish.
func (p *CostAware) calcCost(batches []Batch, begin, end int, size int64, alpha, beta, weight float64) float64 {
	if begin >= end {
		return 0
	}

	retrainTimeMs := alpha*float64(size) + beta
	endTimeUs := retrainTimeMs*1000 + float64(batches[end-1].ArrivalUs)

	var latencyUs float64
	for _, b := range batches[begin:end] {
		latencyUs += endTimeUs - float64(b.ArrivalUs)
	}

	return weight*retrainTimeMs + latencyUs/1000
}

// calcCostInfo mirrors CostAwarePolicy::calc_cost_info: it finds the
// contiguous suffix of still-relevant batches, then the split point that
// minimizes the two-pass retraining cost over that suffix.
func (p *CostAware) calcCostInfo(r Record) costInfo {
	begin := 0
	if !r.Finished {
		for begin < len(r.Batches) && r.Batches[begin].ArrivalUs <= r.DataToUs {
			begin++
		}
	}

	var dataSize int64
	for _, b := range r.Batches[begin:] {
		dataSize += b.Size
	}

	itr := begin
	var partialSize int64
	for itr < len(r.Batches) {
		if dataSize-r.Batches[itr].Size > 2*partialSize {
			partialSize += r.Batches[itr].Size
			itr++
		} else {
			break
		}
	}

	allCost := p.calcCost(r.Batches, begin, len(r.Batches), dataSize, r.Alpha, r.Beta, r.Weight)
	minCost := p.calcCost(r.Batches, begin, itr, partialSize, r.Alpha, r.Beta, r.Weight) +
		p.calcCost(r.Batches, itr, len(r.Batches), dataSize-partialSize, r.Alpha, r.Beta, r.Weight)

	return costInfo{allCost: allCost, minCost: minCost}
}
