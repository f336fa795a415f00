package store

// Logical Redis databases, one per namespace, mirroring the RedisDBTable
// enum in original_source/src/libcontinuum/include/continuum/constants.hpp.
// The original issues a SELECT before every command against a single
// connection; this port instead keeps one *redis.Client pinned to each DB,
// which is the idiomatic go-redis way to model the same namespacing.
const (
	backendDB       = 8
	appBackendLinkDB = 9
	retrainDataDB   = 10
	appDataLinkDB   = 11
	applicationDB   = 5
)

// itemDelimiter mirrors constants.hpp's ITEM_DELIMITER, used to compose
// composite keys such as "<app_name>,<timestamp>".
const itemDelimiter = ","

// Default cost-model parameters applied when a backend's params_json omits
// a field, per constants.hpp's DEFAULT_ALPHA/BETA/WEIGHT.
const (
	DefaultAlpha  = 1.0
	DefaultBeta   = 1.0
	DefaultWeight = 10.0
)
