package broker

import "errors"

// ErrKeyMissing is returned by TTL for a key that does not exist.
var ErrKeyMissing = errors.New("key does not exist")
