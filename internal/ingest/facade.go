// Package ingest implements the Ingest Facade: the thin, promise-returning
// entry point the outward-facing API handlers call into, hiding the
// Trigger Checker's mailbox and the Backend RPC Transport's callbacks
// behind two operations.
//
// Grounded on original_source/src/libcontinuum/include/continuum/data_processor.hpp
// and data_processor.cpp's DataProcessor class, which wires
// RPCBackendService's retrain_started/retrain_finished callbacks directly
// to TriggerChecker's report_retrain_begin/report_retrain_end.
package ingest

import (
	"context"

	"github.com/Scusemua/go-utils/logger"
	"github.com/Scusemua/go-utils/promise"

	"github.com/All-less/continuum/internal/store"
	"github.com/All-less/continuum/internal/transport"
	"github.com/All-less/continuum/internal/trigger"
)

// Facade is the retraining-trigger core's single point of entry: register
// arriving data, request a manual retrain, and keep the Backend RPC
// Transport and Trigger Checker wired together.
type Facade struct {
	log       logger.Logger
	checker   *trigger.Checker
	transport *transport.Transport
}

// New builds a Facade around adapter, constructing and owning both the
// Backend RPC Transport and the Trigger Checker.
func New(adapter store.Adapter, log logger.Logger) *Facade {
	tp := transport.New(adapter, log)
	checker := trigger.New(adapter, tp, transport.EncodeRetrainRequest, log)

	return &Facade{
		log:       log,
		checker:   checker,
		transport: tp,
	}
}

// Start binds the Backend RPC Transport and begins the Trigger Checker's
// run loop, wiring RetrainingStarted/RetrainingEnded directly to
// report_retrain_begin/report_retrain_end, matching DataProcessor's
// constructor.
func (f *Facade) Start(ctx context.Context, ip string, port int) error {
	f.checker.Start(ctx)

	onStarted := func(msgID, _ int32) {
		f.checker.ReportRetrainBegin(msgID)
	}
	onEnded := func(msgID, _ int32) {
		f.checker.ReportRetrainEnd(ctx, msgID)
	}

	return f.transport.Start(ip, port, onStarted, onEnded)
}

// Stop tears down the transport and the checker's run loop.
func (f *Facade) Stop() {
	f.transport.Stop()
	f.checker.Stop()
}

// UpdateRetrainTriggerData records a newly-arrived batch of data for app,
// resolving to true (also when app has no backend link yet and the batch is
// discarded).
func (f *Facade) UpdateRetrainTriggerData(ctx context.Context, app string, arrivalTimeUs, dataAmount int64) *promise.SyncPromise {
	return f.checker.ReportDataArrival(ctx, app, arrivalTimeUs, dataAmount)
}

// ManualRetrain forces an immediate retrain for app, resolving to the data
// size triggered, 0 if nothing new has arrived, or -1 if app has no
// history at all.
func (f *Facade) ManualRetrain(ctx context.Context, app string) *promise.SyncPromise {
	return f.checker.ManualTrigger(ctx, app)
}

// Connections exposes the Backend RPC Transport's currently connected
// backends, for status/debug endpoints.
func (f *Facade) Connections() []transport.BackendConnection {
	return f.transport.Connections()
}
