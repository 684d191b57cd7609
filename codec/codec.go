package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Codec names accepted by ByName.
const (
	NameJSON    = "json"
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
)

// ByName builds the codec registered under name ("" => json).
// CBOR is built in deterministic mode so equal values encode to equal bytes.
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", NameJSON:
		return JSON[V]{}, nil
	case NameCBOR:
		c, err := NewCBOR[V](true)
		if err != nil {
			return nil, err
		}
		return c, nil
	case NameMsgpack:
		return Msgpack[V]{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
