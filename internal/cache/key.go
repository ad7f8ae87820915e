package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

// KeyPrefix namespaces keys built by KeyFor.
const KeyPrefix = "api:"

// KeyFor derives a stable key for an endpoint call. encoding/json writes map
// keys in sorted order, so equal params always hash the same.
func KeyFor(endpoint string, params map[string]interface{}) string {
	encoded, err := json.Marshal(params)
	if err != nil || params == nil {
		encoded = []byte("{}")
	}
	sum := md5.Sum(append([]byte(endpoint), encoded...))
	return KeyPrefix + hex.EncodeToString(sum[:])
}
