package table

import (
	"strconv"

	"github.com/disgoorg/snowflake/v2"
)

// KeyCodec maps a table key to the JSON object key it is stored under and
// back. Encode must be injective so distinct keys never share a document slot.
type KeyCodec[K comparable] struct {
	Encode func(K) string
	Decode func(string) (K, error)
}

// StringKeys stores string keys verbatim.
var StringKeys = KeyCodec[string]{
	Encode: func(k string) string { return k },
	Decode: func(s string) (string, error) { return s, nil },
}

// IntKeys stores int keys in base 10.
var IntKeys = KeyCodec[int]{
	Encode: strconv.Itoa,
	Decode: strconv.Atoi,
}

// SnowflakeKeys stores snowflake ids in their decimal string form.
var SnowflakeKeys = KeyCodec[snowflake.ID]{
	Encode: func(id snowflake.ID) string { return id.String() },
	Decode: snowflake.Parse,
}
