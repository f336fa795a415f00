// Package store implements the Persistent Store Adapter: the only
// component in this repository that talks to Redis, and the sole source of
// truth for backend records, application↔backend links and retrain data.
//
// Grounded on original_source/src/libcontinuum/src/redis.cpp (the functions
// operating on REDIS_BACKEND_DB_NUM, REDIS_APP_BACKEND_LINK_DB_NUM,
// REDIS_RETRAIN_DATA_DB, REDIS_APP_DATA_LINK_DB and REDIS_APPLICATION_DB_NUM)
// and on the teacher's smr/storage/redis.go for the go-redis wiring idiom.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Scusemua/go-utils/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is the sentinel for an unreachable Redis. Connect does
// not return it: it keeps retrying until Redis answers or ctx is done.
var ErrStoreUnavailable = errors.New("persistent store unavailable")

// Adapter is the interface the rest of the retraining-trigger core depends
// on; nothing outside this package imports *redis.Client directly.
type Adapter interface {
	GetBackendLink(ctx context.Context, app string) (string, error)
	GetBackend(ctx context.Context, name string) (map[string]string, error)
	GetRetrainDataIDs(ctx context.Context, app string, fromUs, toUs int64) ([]string, error)
	AddRetrainData(ctx context.Context, tsUs int64, data [][]float64) (id string, ok bool)
	AddAppDataLink(ctx context.Context, app string, tsUs int64, dataID string) bool
	AddBackend(ctx context.Context, name, version, policy string, alpha, beta, weight float64, connectionID int32) bool
	SetBackendLink(ctx context.Context, app, backend string) bool
	ApplicationExists(ctx context.Context, app string) (bool, error)
	SubscribeAppBackendLinkChanges(ctx context.Context, cb func(key, event string))
}

// RedisAdapter is the production Adapter, backed by one *redis.Client per
// logical namespace (see keys.go). All failures are logged and reported as
// a false boolean (writes) or a returned error (reads); this adapter never
// retries a failed command, matching
// spec.md §4.A ("the adapter does not retry").
type RedisAdapter struct {
	log logger.Logger

	addr     string
	password string

	backend       *redis.Client
	appBackendLink *redis.Client
	retrainData   *redis.Client
	appDataLink   *redis.Client
	application   *redis.Client
}

var _ Adapter = (*RedisAdapter)(nil)

// NewRedisAdapter builds a RedisAdapter pointed at addr; it does not connect
// until Connect is called.
func NewRedisAdapter(addr, password string, log logger.Logger) *RedisAdapter {
	return &RedisAdapter{
		log:      log,
		addr:     addr,
		password: password,
	}
}

func (a *RedisAdapter) newClient(db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     a.addr,
		Password: a.password,
		DB:       db,
	})
}

// Connect establishes all five namespace clients, retrying forever with a
// 1-second backoff, per spec.md §4.A.
func (a *RedisAdapter) Connect(ctx context.Context) error {
	a.backend = a.newClient(backendDB)
	a.appBackendLink = a.newClient(appBackendLinkDB)
	a.retrainData = a.newClient(retrainDataDB)
	a.appDataLink = a.newClient(appDataLinkDB)
	a.application = a.newClient(applicationDB)

	clients := []*redis.Client{a.backend, a.appBackendLink, a.retrainData, a.appDataLink, a.application}

	for {
		ok := true
		for _, c := range clients {
			if err := c.Ping(ctx).Err(); err != nil {
				ok = false
				a.log.Warn("Redis not reachable yet at %s: %v. Retrying in 1s.", a.addr, err)
				break
			}
		}
		if ok {
			a.log.Info("Connected to Redis at %s.", a.addr)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// Close releases all underlying connections.
func (a *RedisAdapter) Close() error {
	for _, c := range []*redis.Client{a.backend, a.appBackendLink, a.retrainData, a.appDataLink, a.application} {
		if c != nil {
			_ = c.Close()
		}
	}
	return nil
}

func (a *RedisAdapter) GetBackendLink(ctx context.Context, app string) (string, error) {
	val, err := a.appBackendLink.Get(ctx, app).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		a.log.Error("GetBackendLink(%s) failed: %v", app, err)
		return "", err
	}
	return val, nil
}

func (a *RedisAdapter) GetBackend(ctx context.Context, name string) (map[string]string, error) {
	val, err := a.backend.HGetAll(ctx, name).Result()
	if err != nil {
		a.log.Error("GetBackend(%s) failed: %v", name, err)
		return map[string]string{}, err
	}
	return val, nil
}

func (a *RedisAdapter) GetRetrainDataIDs(ctx context.Context, app string, fromUs, toUs int64) ([]string, error) {
	pattern := app + itemDelimiter + "*"
	keys, err := a.appDataLink.Keys(ctx, pattern).Result()
	if err != nil {
		a.log.Error("GetRetrainDataIDs(%s) KEYS failed: %v", app, err)
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		arrival, ok := parseArrivalFromLinkKey(key)
		if !ok || arrival < fromUs || arrival > toUs {
			continue
		}

		id, err := a.appDataLink.HGet(ctx, key, "data_id").Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				a.log.Error("GetRetrainDataIDs(%s) HGET %s failed: %v", app, key, err)
			}
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (a *RedisAdapter) AddRetrainData(ctx context.Context, tsUs int64, data [][]float64) (string, bool) {
	dataID := genRetrainDataID(tsUs)

	for _, row := range data {
		elems := make([]interface{}, 0, len(row))
		for _, v := range row {
			elems = append(elems, strconv.FormatFloat(v, 'f', -1, 64))
		}

		if err := a.retrainData.RPush(ctx, dataID, elems...).Err(); err != nil {
			a.log.Error("AddRetrainData RPUSH %s failed: %v", dataID, err)
			return dataID, false
		}
	}
	return dataID, true
}

func (a *RedisAdapter) AddAppDataLink(ctx context.Context, app string, tsUs int64, dataID string) bool {
	key := fmt.Sprintf("%s%s%d", app, itemDelimiter, tsUs)

	err := a.appDataLink.HSet(ctx, key,
		"app_name", app,
		"timestamp", strconv.FormatInt(tsUs, 10),
		"data_id", dataID,
	).Err()
	if err != nil {
		a.log.Error("AddAppDataLink(%s) failed: %v", app, err)
		return false
	}
	return true
}

func (a *RedisAdapter) AddBackend(ctx context.Context, name, version, policy string, alpha, beta, weight float64, connectionID int32) bool {
	err := a.backend.HSet(ctx, name,
		"backend_version", version,
		"policy", policy,
		"zmq_connection_id", strconv.FormatInt(int64(connectionID), 10),
		"alpha", strconv.FormatFloat(alpha, 'f', -1, 64),
		"beta", strconv.FormatFloat(beta, 'f', -1, 64),
		"weight", strconv.FormatFloat(weight, 'f', -1, 64),
	).Err()
	if err != nil {
		a.log.Error("AddBackend(%s) failed: %v", name, err)
		return false
	}
	return true
}

func (a *RedisAdapter) SetBackendLink(ctx context.Context, app, backend string) bool {
	if err := a.appBackendLink.Set(ctx, app, backend, 0).Err(); err != nil {
		a.log.Error("SetBackendLink(%s, %s) failed: %v", app, backend, err)
		return false
	}
	return true
}

func (a *RedisAdapter) ApplicationExists(ctx context.Context, app string) (bool, error) {
	n, err := a.application.Exists(ctx, app).Result()
	if err != nil {
		a.log.Error("ApplicationExists(%s) failed: %v", app, err)
		return false, err
	}
	return n > 0, nil
}

// SubscribeAppBackendLinkChanges subscribes to keyspace notifications on the
// app↔backend link namespace and invokes cb(key, event) for every message,
// mirroring redis.cpp's subscribe_to_backend_link_changes. Redis must have
// `notify-keyspace-events KEA` (or similar) enabled for this to fire; the
// core does not enable it itself.
func (a *RedisAdapter) SubscribeAppBackendLinkChanges(ctx context.Context, cb func(key, event string)) {
	pattern := fmt.Sprintf("__keyspace@%d__:*", appBackendLinkDB)
	pubsub := a.appBackendLink.PSubscribe(ctx, pattern)

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				idx := strings.IndexByte(msg.Channel, ':')
				if idx < 0 {
					continue
				}
				key := msg.Channel[idx+1:]
				cb(key, msg.Payload)
			}
		}
	}()
}

func genRetrainDataID(tsUs int64) string {
	return strconv.FormatInt(tsUs, 10) + "-" + uuid.NewString()[:8]
}

// parseArrivalFromLinkKey extracts the arrival timestamp encoded in an
// "<app>,<timestamp>" app-data-link key, per redis.cpp's
// get_retrain_data_ids (which splits on ITEM_DELIMITER and takes part [1]).
func parseArrivalFromLinkKey(key string) (int64, bool) {
	parts := strings.SplitN(key, itemDelimiter, 2)
	if len(parts) != 2 {
		return 0, false
	}

	arrival, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return arrival, true
}
