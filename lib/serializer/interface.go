package serializer

import "fmt"

// ISerializer is the interface for all document serializers.
// A serializer turns a document value into the bytes of one storage unit and back.
type ISerializer interface {
	// Serialize serializes a value into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(v any) ([]byte, error)
	// Deserialize deserializes a byte array into a value
	// It takes a byte array and a pointer to the target value as parameters
	// It returns an error if any
	Deserialize(b []byte, v any) error
	// Name returns the name of the serializer (e.g. "json" or "json+zstd")
	Name() string
}

// Names of the base serializers
const (
	NameJSON = "json"
	NameGOB  = "gob"
)

// Names of the supported compression algorithms
const (
	CompressionNone = "none"
	CompressionZSTD = "zstd"
	CompressionLZ4  = "lz4"
)

// ByName returns the serializer with the given base name wrapped with the given
// compression. An empty compression (or "none") returns the base serializer.
func ByName(name, compression string) (ISerializer, error) {
	var base ISerializer
	switch name {
	case NameJSON, "":
		base = NewJSONSerializer()
	case NameGOB:
		base = NewGOBSerializer()
	default:
		return nil, fmt.Errorf("unknown serializer %q (supported: %s, %s)", name, NameJSON, NameGOB)
	}

	if compression == "" || compression == CompressionNone {
		return base, nil
	}
	return NewCompressedSerializer(base, compression)
}
