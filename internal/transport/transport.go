package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Scusemua/go-utils/logger"
	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"

	"github.com/All-less/continuum/internal/hashmap"
	"github.com/All-less/continuum/internal/queue"
	"github.com/All-less/continuum/internal/store"
)

// ErrAlreadyStarted is returned by Start when the transport's worker is
// already running; spec.md §4.D calls this "idempotent start raises a
// fatal error" — this port returns an error instead of crashing the
// process, leaving that decision to the caller.
var ErrAlreadyStarted = errors.New("transport already started")

// StartedCallback is invoked on the transport's own goroutine whenever a
// RetrainingStarted message arrives.
type StartedCallback func(msgID, result int32)

// EndedCallback is invoked on the transport's own goroutine whenever a
// RetrainingEnded message arrives.
type EndedCallback func(msgID, result int32)

// BackendConnection is the externally-visible snapshot of one connected
// backend, kept in a concurrent map so status can be queried from any
// goroutine without touching the transport's internal, loop-owned state.
type BackendConnection struct {
	ConnectionID int32
	Name         string
	LastSeenUs   int64
}

type outboundMessage struct {
	connectionID int32
	msgID        int32
	payload      [][]byte
	enqueuedUs   int64
}

// Transport is the Backend RPC Transport: a single worker goroutine owning
// one ZeroMQ ROUTER socket, multiplexing backend connections by routing
// identity. Grounded on rpc_backend_service.cpp's RPCBackendService.
type Transport struct {
	log   logger.Logger
	store store.Adapter

	sock zmq4.Socket

	sendMu    sync.Mutex
	sendQueue *queue.Fifo[outboundMessage]

	nextMsgID  atomic.Int32
	nextConnID int32

	// Owned exclusively by the transport's run loop; never touched from
	// any other goroutine.
	identityToConnID  map[string]int32
	connIDToIdentity  map[int32]string
	identityToBackend map[string]string

	connections *hashmap.ConcurrentMap[BackendConnection]

	onStarted StartedCallback
	onEnded   EndedCallback

	active  atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Transport against the given Persistent Store Adapter. The
// transport does not bind a socket until Start is called.
func New(adapter store.Adapter, log logger.Logger) *Transport {
	return &Transport{
		log:               log,
		store:             adapter,
		sendQueue:         queue.NewFifo[outboundMessage](0),
		identityToConnID:  make(map[string]int32),
		connIDToIdentity:  make(map[int32]string),
		identityToBackend: make(map[string]string),
		connections:       hashmap.New[BackendConnection](),
	}
}

// Start binds the ROUTER socket at tcp://ip:port and begins the worker
// goroutine. Calling Start while already active returns ErrAlreadyStarted.
func (t *Transport) Start(ip string, port int, onStarted StartedCallback, onEnded EndedCallback) error {
	if !t.active.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	t.onStarted = onStarted
	t.onEnded = onEnded
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	addr := fmt.Sprintf("tcp://%s:%d", ip, port)
	go t.run(addr)
	return nil
}

// Stop signals the worker to exit and waits for it to join.
func (t *Transport) Stop() {
	if !t.active.CompareAndSwap(true, false) {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// SendMessage enqueues a StartRetraining request addressed to connectionID
// and returns the assigned msg_id, or -1 if the transport is inactive.
func (t *Transport) SendMessage(payload [][]byte, connectionID int32) int32 {
	if !t.active.Load() {
		return -1
	}

	msgID := t.nextMsgID.Add(1) - 1

	t.sendMu.Lock()
	t.sendQueue.Enqueue(outboundMessage{
		connectionID: connectionID,
		msgID:        msgID,
		payload:      payload,
		enqueuedUs:   nowUs(),
	})
	t.sendMu.Unlock()

	return msgID
}

// Connections returns a snapshot of every backend the transport has seen
// BackendMetadata from, safe to call from any goroutine.
func (t *Transport) Connections() []BackendConnection {
	out := make([]BackendConnection, 0, t.connections.Len())
	t.connections.Range(func(_ string, v BackendConnection) bool {
		out = append(out, v)
		return true
	})
	return out
}

func (t *Transport) run(addr string) {
	defer close(t.doneCh)

	sock := zmq4.NewRouter(context.Background())
	defer sock.Close()

	if err := sock.Listen(addr); err != nil {
		t.log.Error("Backend RPC transport failed to bind %s: %v", addr, err)
		return
	}
	t.sock = sock
	t.log.Info("Backend RPC transport listening on %s.", addr)

	inbound := make(chan zmq4.Msg, 1)
	recvErrs := make(chan error, 1)
	go func() {
		for {
			msg, err := sock.Recv()
			if err != nil {
				recvErrs <- err
				return
			}
			inbound <- msg
		}
	}()

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		pollTimeout := time.Millisecond
		t.sendMu.Lock()
		if t.sendQueue.Len() > 0 {
			pollTimeout = 0
		}
		t.sendMu.Unlock()

		select {
		case <-t.stopCh:
			return
		case err := <-recvErrs:
			t.log.Error("Backend RPC transport receive failed: %v", err)
			return
		case msg := <-inbound:
			t.handleInbound(msg)
		case <-time.After(pollTimeout):
		}

		t.drainSendQueue()
	}
}

func (t *Transport) drainSendQueue() {
	t.sendMu.Lock()
	var batch []outboundMessage
	for {
		m, ok := t.sendQueue.Dequeue()
		if !ok {
			break
		}
		batch = append(batch, m)
	}
	t.sendMu.Unlock()

	for _, m := range batch {
		identity, ok := t.connIDToIdentity[m.connectionID]
		if !ok {
			t.log.Error("Dropping message %d addressed to unknown connection_id %d.", m.msgID, m.connectionID)
			continue
		}

		frames := make([][]byte, 0, 4+len(m.payload))
		frames = append(frames, []byte(identity), nil, encodeInt32(MsgStartRetraining), encodeInt32(m.msgID))
		frames = append(frames, m.payload...)

		if err := t.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
			t.log.Error("Failed to send message %d to connection %d: %v", m.msgID, m.connectionID, err)
		}
	}
}

func (t *Transport) handleInbound(msg zmq4.Msg) {
	frames := msg.Frames
	if len(frames) < 3 {
		t.log.Error("Received malformed message with %d frames.", len(frames))
		return
	}

	identity := string(frames[0])
	msgType := decodeInt32(frames[2])
	payload := frames[3:]

	switch msgType {
	case MsgBackendMetadata:
		t.handleBackendMetadata(identity, payload)
	case MsgRetrainingStarted:
		t.handleRetrainingStarted(identity, payload)
	case MsgRetrainingEnded:
		t.handleRetrainingEnded(identity, payload)
	case MsgBackendHeartbeat:
		t.handleHeartbeat(identity)
	default:
		t.log.Error("Received message with unrecognized type %d.", msgType)
	}
}

func (t *Transport) handleBackendMetadata(identity string, payload [][]byte) {
	if _, known := t.identityToConnID[identity]; known {
		return
	}
	if len(payload) != 5 {
		t.log.Error("Received malformed BackendMetadata with %d frames.", len(payload))
		return
	}

	name := string(payload[0])
	version := string(payload[1])
	app := string(payload[2])
	policyName := string(payload[3])
	alpha, beta, weight := parseBackendParams(payload[4])

	connID := t.nextConnID
	t.nextConnID++
	t.identityToConnID[identity] = connID
	t.connIDToIdentity[connID] = identity
	t.identityToBackend[identity] = name

	ctx := context.Background()
	t.store.AddBackend(ctx, name, version, policyName, alpha, beta, weight, connID)

	t.log.Info("New backend connected. backend:%s app:%s alpha:%v beta:%v policy:%s weight:%v",
		name, app, alpha, beta, policyName, weight)

	if exists, err := t.store.ApplicationExists(ctx, app); err == nil && exists {
		t.store.SetBackendLink(ctx, app, name)
	}

	t.connections.Store(identity, BackendConnection{ConnectionID: connID, Name: name, LastSeenUs: nowUs()})
}

func (t *Transport) handleRetrainingStarted(identity string, payload [][]byte) {
	if _, known := t.identityToConnID[identity]; !known {
		return
	}
	if len(payload) != 2 {
		t.log.Error("Received malformed RetrainingStarted with %d frames.", len(payload))
		return
	}

	msgID := decodeInt32(payload[0])
	result := decodeInt32(payload[1])
	if t.onStarted != nil {
		t.onStarted(msgID, result)
	}
}

func (t *Transport) handleRetrainingEnded(identity string, payload [][]byte) {
	if len(payload) != 2 {
		t.log.Error("Received malformed RetrainingEnded with %d frames.", len(payload))
		return
	}

	msgID := decodeInt32(payload[0])
	result := decodeInt32(payload[1])
	if t.onEnded != nil {
		t.onEnded(msgID, result)
	}
}

func (t *Transport) handleHeartbeat(identity string) {
	_, known := t.identityToConnID[identity]

	subType := HeartbeatKeepAlive
	if !known {
		subType = HeartbeatRequestContainerMetadata
	}

	frames := [][]byte{[]byte(identity), nil, encodeInt32(MsgBackendHeartbeat), encodeInt32(subType)}
	if err := t.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		t.log.Error("Failed to send heartbeat response: %v", err)
		return
	}

	if known {
		if conn, ok := t.connections.Load(identity); ok {
			conn.LastSeenUs = nowUs()
			t.connections.Store(identity, conn)
		}
	}
}

type backendParams struct {
	Alpha  *float64 `json:"alpha"`
	Beta   *float64 `json:"beta"`
	Weight *float64 `json:"weight"`
}

// parseBackendParams decodes a backend's params_json, defaulting any
// missing field per constants.hpp's DEFAULT_ALPHA/BETA/WEIGHT.
func parseBackendParams(raw []byte) (alpha, beta, weight float64) {
	alpha, beta, weight = store.DefaultAlpha, store.DefaultBeta, store.DefaultWeight

	var params backendParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return alpha, beta, weight
	}

	if params.Alpha != nil {
		alpha = *params.Alpha
	}
	if params.Beta != nil {
		beta = *params.Beta
	}
	if params.Weight != nil {
		weight = *params.Weight
	}
	return alpha, beta, weight
}

func nowUs() int64 {
	return time.Now().UnixMicro()
}
