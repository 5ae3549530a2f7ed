package cache

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

// ErrCodec marks failures to encode or decode a cached value, as opposed
// to failures of the cache backend itself.
var ErrCodec = errors.New("cache codec")

// Cached values are CBOR. Times keep nanosecond precision so a record
// read back from the cache equals the one read from the database.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// canonical encoding for hashing query descriptions: map keys sorted.
	hashMode cbor.EncMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor dec mode: %v", err))
	}
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	hashMode, err = opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor hash mode: %v", err))
	}
}

// Encode serializes v for storage.
func Encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrCodec, err)
	}
	return b, nil
}

// Decode deserializes data into v.
func Decode(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrCodec, err)
	}
	return nil
}

// HashQuery derives a stable key suffix from a compiled statement and
// its parameters.
func HashQuery(sql string, params []any) (string, error) {
	b, err := hashMode.Marshal([]any{sql, params})
	if err != nil {
		return "", fmt.Errorf("hash query: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16), nil
}
