// Package transport implements the Backend RPC Transport: a single
// dedicated worker that owns one ZeroMQ ROUTER socket multiplexing many
// backend connections, identified by an opaque routing identity.
//
// Every message is framed as [identity][empty][msg_type int32][...fields],
// where the fields after msg_type are specific to that message type: a
// StartRetraining request carries [msg_id, data_from_us, data_to_us,
// data_size, retrain_type, batch_id...]; RetrainingStarted/Ended carry
// [msg_id, result]; BackendMetadata carries [name, version, app, policy,
// params_json]; BackendHeartbeat carries no fields (request) or a single
// sub-type field (response).
//
// Grounded on original_source/src/libcontinuum/include/continuum/rpc_backend_service.hpp
// and rpc_backend_service.cpp, re-expressed with the teacher's
// go-zeromq/zmq4 socket idiom (common/jupyter/router/router.go) in place of
// the original's raw zmq.hpp ROUTER socket and boost::bimap.
package transport

import "encoding/binary"

// Message types exchanged over the backend socket, per spec.md §6.
const (
	MsgStartRetraining  int32 = 0
	MsgBackendMetadata   int32 = 1
	MsgRetrainingStarted int32 = 2
	MsgRetrainingEnded   int32 = 3
	MsgBackendHeartbeat  int32 = 4
)

// Heartbeat sub-types carried in a BackendHeartbeat response.
const (
	HeartbeatKeepAlive                int32 = 0
	HeartbeatRequestContainerMetadata int32 = 1
)

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func decodeInt32(b []byte) int32 {
	if len(b) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// RetrainTypeStartRetrain is the sole retrain_type value defined by
// spec.md §6.
const RetrainTypeStartRetrain int32 = 0

// EncodeRetrainRequest builds the policy-agnostic retrain request payload
// frames sent after [msg_id] in a StartRetraining message: data_from_us,
// data_to_us, data_size, retrain_type, then one frame per batch id.
func EncodeRetrainRequest(dataFromUs, dataToUs, dataSize int64, batchIDs []string) [][]byte {
	frames := make([][]byte, 0, 4+len(batchIDs))
	frames = append(frames,
		encodeInt64(dataFromUs),
		encodeInt64(dataToUs),
		encodeInt64(dataSize),
		encodeInt32(RetrainTypeStartRetrain),
	)
	for _, id := range batchIDs {
		frames = append(frames, []byte(id))
	}
	return frames
}
