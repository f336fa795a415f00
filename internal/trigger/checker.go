// Package trigger implements the Trigger Checker: the single-goroutine
// actor that owns every application's retraining state and decides, via a
// pluggable Policy, when to dispatch a retrain request.
//
// Grounded on original_source/src/libcontinuum/include/continuum/data_processor.hpp's
// TriggerChecker class, re-expressed as a mailbox-of-closures actor in the
// teacher's style (e.g. common/scheduling/cluster/base_cluster.go's
// runInEventBaseThread-equivalent channel loop) instead of folly::EventBase.
package trigger

import (
	"context"
	"strconv"
	"time"

	"github.com/Scusemua/go-utils/logger"
	"github.com/Scusemua/go-utils/promise"
	"github.com/elliotchance/orderedmap/v2"

	"github.com/All-less/continuum/internal/policy"
	"github.com/All-less/continuum/internal/profiler"
	"github.com/All-less/continuum/internal/store"
)

// Sender is the subset of the Backend RPC Transport the Trigger Checker
// needs: dispatching a StartRetraining request to a connected backend.
type Sender interface {
	SendMessage(payload [][]byte, connectionID int32) int32
}

// EncodeRequest builds the wire payload for a StartRetraining request. The
// trigger package takes this as a function value rather than importing
// transport directly, avoiding a package cycle (transport never needs to
// import trigger).
type EncodeRequest func(dataFromUs, dataToUs, dataSize int64, batchIDs []string) [][]byte

type mailboxFunc func()

// Checker is the Trigger Checker. Every field below is owned exclusively by
// the run loop; all public methods communicate with it only by enqueuing a
// closure onto mailbox and returning a promise the closure eventually
// resolves.
type Checker struct {
	log      logger.Logger
	adapter  store.Adapter
	sender   Sender
	encode   EncodeRequest
	policies *policy.Registry

	mailbox chan mailboxFunc

	records          *orderedmap.OrderedMap[string, *Record]
	profilers        map[string]*profiler.Profiler
	appPolicies      map[string]string
	inflightMessages map[int32]*InflightMessage
	zmqConnections   map[string]int32

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Checker. Call Start before using it.
func New(adapter store.Adapter, sender Sender, encode EncodeRequest, log logger.Logger) *Checker {
	return &Checker{
		log:              log,
		adapter:          adapter,
		sender:           sender,
		encode:           encode,
		policies:         policy.NewRegistry(),
		mailbox:          make(chan mailboxFunc),
		records:          orderedmap.NewOrderedMap[string, *Record](),
		profilers:        make(map[string]*profiler.Profiler),
		appPolicies:      make(map[string]string),
		inflightMessages: make(map[int32]*InflightMessage),
		zmqConnections:   make(map[string]int32),
	}
}

// Start launches the run loop and begins listening for application↔backend
// link changes on ctx.
func (c *Checker) Start(ctx context.Context) {
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	c.adapter.SubscribeAppBackendLinkChanges(ctx, func(key, event string) {
		if event != "set" {
			return
		}
		c.enqueue(func() {
			c.onBackendLinkChanged(ctx, key)
		})
	})

	go c.run()
}

// Stop signals the run loop to exit and waits for it to join.
func (c *Checker) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Checker) run() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			return
		case fn := <-c.mailbox:
			fn()
		}
	}
}

func (c *Checker) enqueue(fn mailboxFunc) {
	c.mailbox <- fn
}

func (c *Checker) onBackendLinkChanged(ctx context.Context, app string) {
	backendName, err := c.adapter.GetBackendLink(ctx, app)
	if err != nil || backendName == "" {
		return
	}

	backend, err := c.adapter.GetBackend(ctx, backendName)
	if err != nil {
		return
	}

	connID, err := strconv.ParseInt(backend["zmq_connection_id"], 10, 32)
	if err != nil {
		c.log.Error("Backend %s has malformed zmq_connection_id %q.", backendName, backend["zmq_connection_id"])
		return
	}
	c.zmqConnections[app] = int32(connID)

	if rec, ok := c.records.Get(app); ok {
		rec.ConnectionID = int32(connID)
	}
}

// ReportDataArrival records a new batch of data for app, initializing its
// Record from the app↔backend link if this is the first batch seen for it.
// Always resolves to true, including when app has no backend link yet and
// the arrival is discarded.
func (c *Checker) ReportDataArrival(ctx context.Context, app string, arrivalUs, dataSize int64) *promise.SyncPromise {
	p := promise.NewSyncPromise()

	c.enqueue(func() {
		if rec, ok := c.records.Get(app); ok {
			rec.Batches = append(rec.Batches, policy.Batch{ArrivalUs: arrivalUs, Size: dataSize})
			rec.LastArrivalUs = arrivalUs
		} else {
			backendName, err := c.adapter.GetBackendLink(ctx, app)
			if err != nil || backendName == "" {
				c.log.Error("No backend found when receiving data from app %s.", app)
				p.Resolve(true, nil)
				return
			}

			backend, err := c.adapter.GetBackend(ctx, backendName)
			if err != nil {
				p.Resolve(true, nil)
				return
			}

			alpha := parseFloatOr(backend["alpha"], store.DefaultAlpha)
			beta := parseFloatOr(backend["beta"], store.DefaultBeta)
			weight := parseFloatOr(backend["weight"], store.DefaultWeight)
			connID, _ := strconv.ParseInt(backend["zmq_connection_id"], 10, 32)

			rec = &Record{
				Alpha:         alpha,
				Beta:          beta,
				Weight:        weight,
				LastArrivalUs: arrivalUs,
				Finished:      true,
				Batches:       []policy.Batch{{ArrivalUs: arrivalUs, Size: dataSize}},
				ConnectionID:  int32(connID),
			}
			c.records.Set(app, rec)

			c.profilers[app] = profiler.New(alpha, beta)
			c.setAppPolicy(app, backend["policy"])
			c.zmqConnections[app] = int32(connID)
		}

		p.Resolve(true, nil)
		c.checkTrigger(ctx, app)
	})

	return p
}

// ManualTrigger forces an immediate retrain covering every batch arrived
// since the last retrain window, resolving to the data size triggered, 0 if
// there was nothing new, or -1 if app has no history at all.
func (c *Checker) ManualTrigger(ctx context.Context, app string) *promise.SyncPromise {
	p := promise.NewSyncPromise()

	c.enqueue(func() {
		rec, ok := c.records.Get(app)
		if !ok {
			c.log.Error("No historical data found upon manual trigger for app %s.", app)
			p.Resolve(int64(-1), nil)
			return
		}

		lastEnd := rec.DataToUs
		var dataSize int64
		for _, b := range rec.Batches {
			if b.ArrivalUs >= lastEnd {
				dataSize += b.Size
			}
		}

		if dataSize <= 0 {
			p.Resolve(int64(0), nil)
			return
		}

		curTime := nowUs()
		batchIDs, _ := c.adapter.GetRetrainDataIDs(ctx, app, lastEnd, curTime)
		c.triggerRetrain(ctx, app, rec, lastEnd, curTime, dataSize, batchIDs)

		p.Resolve(dataSize, nil)
	})

	return p
}

// ReportRetrainBegin marks msgID as acknowledged by the backend.
func (c *Checker) ReportRetrainBegin(msgID int32) *promise.SyncPromise {
	p := promise.NewSyncPromise()

	c.enqueue(func() {
		if msg, ok := c.inflightMessages[msgID]; ok {
			msg.State = StartedReceived
		}
		p.Resolve(true, nil)
	})

	return p
}

// ReportRetrainEnd finalizes msgID: updates the Runtime Profiler with the
// observed training time, prunes trained batches from the app's Record, and
// re-evaluates whether another retrain should fire immediately.
func (c *Checker) ReportRetrainEnd(ctx context.Context, msgID int32) *promise.SyncPromise {
	p := promise.NewSyncPromise()

	c.enqueue(func() {
		msg, ok := c.inflightMessages[msgID]
		if !ok {
			p.Resolve(true, nil)
			return
		}

		appName := msg.AppName
		curTime := nowUs()

		next := msg.PrevMsgLink
		delete(c.inflightMessages, msgID)
		for next >= 0 {
			cur := next
			if m, ok := c.inflightMessages[cur]; ok {
				next = m.PrevMsgLink
			} else {
				next = -1
			}
			delete(c.inflightMessages, cur)
		}

		if rec, ok := c.records.Get(appName); ok {
			rec.Finished = true
			rec.pruneTrainedBatches()

			trainingTimeMs := (curTime - rec.TrainingBatch.DispatchUs) / 1000
			if prof, ok := c.profilers[appName]; ok {
				prof.AddSample(trainingTimeMs, rec.TrainingBatch.Size)
				rec.Alpha, rec.Beta = prof.AlphaBeta()
			}

			c.log.Info("Retrain ended. app:%s trigger_time:%d cur_time:%d retrain_time:%d alpha:%v beta:%v",
				appName, rec.TrainingBatch.DispatchUs, curTime, trainingTimeMs, rec.Alpha, rec.Beta)
		}

		p.Resolve(true, nil)

		pol := c.resolvePolicy(appName)
		c.checkTriggerByDecision(ctx, appName, pol.OnRetrainFinished)
	})

	return p
}

func (c *Checker) setAppPolicy(app, policyName string) {
	resolved := c.policies.Resolve(policyName)
	c.appPolicies[app] = resolved.Name()
}

func (c *Checker) resolvePolicy(app string) policy.Policy {
	name, ok := c.appPolicies[app]
	if !ok {
		return c.policies.Resolve("")
	}
	return c.policies.Resolve(name)
}

// checkTrigger evaluates ReadyToRetrain and, if it doesn't fire, arms a
// timeout to re-evaluate later, mirroring data_processor.hpp's check_trigger.
func (c *Checker) checkTrigger(ctx context.Context, app string) {
	pol := c.resolvePolicy(app)
	triggered := c.checkTriggerByDecision(ctx, app, pol.ReadyToRetrain)
	if triggered {
		return
	}

	rec, ok := c.records.Get(app)
	if !ok {
		return
	}

	timeoutMs := pol.CalcTimeoutMs(rec.Snapshot())
	lastArrival := rec.LastArrivalUs

	c.setTimeout(ctx, app, lastArrival, timeoutMs)
}

// setTimeout arms a deferred re-check, mirroring set_timeout's
// tryRunAfterDelay: if no new data has arrived for app by the time the
// timer fires and the last retrain has finished, it triggers covering
// everything seen since.
func (c *Checker) setTimeout(ctx context.Context, app string, lastArrival, timeoutMs int64) {
	if timeoutMs <= 0 {
		return
	}

	time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		c.enqueue(func() {
			rec, ok := c.records.Get(app)
			if !ok || rec.LastArrivalUs != lastArrival || !rec.Finished {
				return
			}

			fromUs := rec.DataToUs + 1
			toUs := lastArrival
			c.log.Debug("Trigger retrain after timeout. app:%s", app)

			curRec := rec
			batchIDs, _ := c.adapter.GetRetrainDataIDs(ctx, app, fromUs, toUs)
			dataSize := sumBatchesInWindow(curRec.Batches, fromUs, toUs)
			c.triggerRetrain(ctx, app, curRec, fromUs, toUs, dataSize, batchIDs)
		})
	})
}

// checkTriggerByDecision evaluates decide against app's current Record and,
// if it decides to trigger, dispatches the retrain immediately. Returns
// whether it triggered.
func (c *Checker) checkTriggerByDecision(ctx context.Context, app string, decide func(policy.Record) policy.Decision) bool {
	rec, ok := c.records.Get(app)
	if !ok {
		return false
	}

	decision := decide(rec.Snapshot())
	c.log.Debug("In checkTriggerByDecision. app:%s decision:%v", app, decision.Trigger)

	if !decision.Trigger {
		return false
	}

	batchIDs, _ := c.adapter.GetRetrainDataIDs(ctx, app, decision.FromUs, decision.ToUs)
	dataSize := sumBatchesInWindow(rec.Batches, decision.FromUs, decision.ToUs)

	c.triggerRetrain(ctx, app, rec, decision.FromUs, decision.ToUs, dataSize, batchIDs)
	return true
}

// triggerRetrain dispatches a StartRetraining request over the backend
// linked to app and records the dispatch as a new inflight message, chained
// to the most recently sent inflight message for the same app.
func (c *Checker) triggerRetrain(ctx context.Context, app string, rec *Record, fromUs, toUs, dataSize int64, batchIDs []string) {
	connID, ok := c.zmqConnections[app]
	if !ok {
		c.log.Error("Attempted to trigger retrain for app %s with no linked backend.", app)
		return
	}

	payload := c.encode(fromUs, toUs, dataSize, batchIDs)
	msgID := c.sender.SendMessage(payload, connID)

	curTime := nowUs()
	rec.DataFromUs = fromUs
	rec.DataToUs = toUs
	rec.TrainingBatch = policy.TrainingBatch{DispatchUs: curTime, Size: dataSize}
	rec.Finished = false

	link := int32(-1)
	var lastTime int64
	for id, msg := range c.inflightMessages {
		if msg.AppName == app && msg.SendTimeUs > lastTime {
			lastTime = msg.SendTimeUs
			link = id
		}
	}

	c.inflightMessages[msgID] = &InflightMessage{
		MsgID:        msgID,
		SendTimeUs:   curTime,
		ConnectionID: connID,
		AppName:      app,
		State:        RetrainSent,
		BatchIDs:     batchIDs,
		PrevMsgLink:  link,
	}

	c.log.Info("Trigger retrain. batch_num:%d data_size:%d cur_time:%d", len(batchIDs), dataSize, curTime)
	c.log.Debug("trigger_time:%d msg_id:%d data_from:%d data_to:%d", curTime, msgID, fromUs, toUs)
}

func sumBatchesInWindow(batches []policy.Batch, fromUs, toUs int64) int64 {
	var total int64
	for _, b := range batches {
		if b.ArrivalUs >= fromUs && b.ArrivalUs <= toUs {
			total += b.Size
		}
	}
	return total
}

func parseFloatOr(raw string, fallback float64) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func nowUs() int64 {
	return time.Now().UnixMicro()
}
