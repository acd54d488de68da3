package serializer

import (
	"bytes"
	"errors"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/objectid"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() ISerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
	"JSON+ZSTD": func() ISerializer {
		s, _ := NewCompressedSerializer(NewJSONSerializer(), CompressionZSTD)
		return s
	},
	"JSON+LZ4": func() ISerializer {
		s, _ := NewCompressedSerializer(NewJSONSerializer(), CompressionLZ4)
		return s
	},
	"GOB+ZSTD": func() ISerializer {
		s, _ := NewCompressedSerializer(NewGOBSerializer(), CompressionZSTD)
		return s
	},
}

type testAddress struct {
	Street string
	City   string
}

type testDocument struct {
	ID      objectid.ID `json:"_id"`
	Name    string      `json:"name"`
	Age     int         `json:"age"`
	Tags    []string    `json:"tags"`
	Address testAddress `json:"address"`
	Created time.Time   `json:"created"`
	Blob    []byte      `json:"blob"`
}

// testDocuments creates a set of documents with different fields filled
func testDocuments() []testDocument {
	return []testDocument{
		// Empty document
		{},

		// Document with id only
		{ID: objectid.New()},

		// Typical document
		{
			ID:      objectid.New(),
			Name:    "Garfield",
			Age:     46,
			Tags:    []string{"cat", "lasagna"},
			Address: testAddress{Street: "711 Maple Street", City: "Muncie"},
			Created: time.Date(1978, 6, 19, 0, 0, 0, 0, time.UTC),
		},

		// Large, compressible document
		{
			ID:   objectid.New(),
			Name: strings.Repeat("Odie ", 1000),
			Blob: bytes.Repeat([]byte{0x42}, 16*1024),
		},
	}
}

// TestSerializerRoundTrip tests that documents can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	documents := testDocuments()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, doc := range documents {
				// Serialize
				data, err := serializer.Serialize(doc)
				if err != nil {
					t.Errorf("Failed to serialize document %d: %v", i, err)
					continue
				}

				// Deserialize
				var result testDocument
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize document %d: %v", i, err)
					continue
				}

				// empty and nil slices are equivalent for documents
				if len(doc.Tags) == 0 {
					doc.Tags, result.Tags = nil, nil
				}
				if len(doc.Blob) == 0 {
					doc.Blob, result.Blob = nil, nil
				}

				if !reflect.DeepEqual(doc, result) {
					t.Errorf("Document %d mismatch:\nExpected: %+v\nGot: %+v", i, doc, result)
				}
			}
		})
	}
}

// TestIdentifierIsStoredAsHex makes sure the json form of an identifier is its hex string
func TestIdentifierIsStoredAsHex(t *testing.T) {
	id := objectid.MustFromHex("65f1c0de0a1b2c3d4e5f6071")
	data, err := NewJSONSerializer().Serialize(testDocument{ID: id, Name: "Nermal"})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	if !strings.Contains(string(data), `"_id":"65f1c0de0a1b2c3d4e5f6071"`) {
		t.Errorf("Expected hex identifier in %s", data)
	}
}

// TestCompressionShrinksLargeUnits checks that compressible units get smaller
func TestCompressionShrinksLargeUnits(t *testing.T) {
	doc := testDocuments()[3]
	plain, _ := NewJSONSerializer().Serialize(doc)

	for _, algorithm := range []string{CompressionZSTD, CompressionLZ4} {
		s, err := NewCompressedSerializer(NewJSONSerializer(), algorithm)
		if err != nil {
			t.Fatalf("Failed to create %s serializer: %v", algorithm, err)
		}
		compressed, err := s.Serialize(doc)
		if err != nil {
			t.Fatalf("Failed to serialize with %s: %v", algorithm, err)
		}
		if len(compressed) >= len(plain) {
			t.Errorf("%s: expected compressed size < %d, got %d", algorithm, len(plain), len(compressed))
		}
	}
}

// TestDeserializeInvalidData checks that corrupt input yields an error and no panic
func TestDeserializeInvalidData(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("{not json"),
	}

	// inputs that only the block header of the compressed serializers rejects
	blockInputs := [][]byte{
		{0xff},
		{blockZSTD, 0xff, 0xff, 0xff, 0x0f, 1, 2, 3},
		{blockLZ4, 10, 0, 0, 0, 1, 2, 3},
		{blockStored, 100, 0, 0, 0, '{', '}'},
		{9, 0, 0, 0, 0},
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			cases := inputs
			if _, ok := serializer.(*compressedSerializerImpl); ok {
				cases = append(append([][]byte{}, inputs...), blockInputs...)
			}

			for i, input := range cases {
				var result testDocument
				if err := serializer.Deserialize(input, &result); err == nil {
					t.Errorf("Expected error for input %d (%v)", i, input)
				}
			}
		})
	}
}

// TestCorruptHeaderDoesNotAllocate checks that a block header announcing a huge
// unit is rejected without allocating the announced size
func TestCorruptHeaderDoesNotAllocate(t *testing.T) {
	const announced = 1<<30 - 1

	blocks := map[string][]byte{
		"LZ4":  {blockLZ4, 0xff, 0xff, 0xff, 0x3f, 1, 2, 3},
		"ZSTD": {blockZSTD, 0xff, 0xff, 0xff, 0x3f, 1, 2, 3},
	}

	for name, block := range blocks {
		t.Run(name, func(t *testing.T) {
			var before, after runtime.MemStats
			runtime.GC()
			runtime.ReadMemStats(&before)

			_, err := decompressBlock(block)

			runtime.ReadMemStats(&after)
			if !errors.Is(err, errCorruptBlock) {
				t.Fatalf("Expected errCorruptBlock, got %v", err)
			}
			if allocated := after.TotalAlloc - before.TotalAlloc; allocated > announced/16 {
				t.Errorf("Expected a small allocation for a corrupt header, got %d bytes", allocated)
			}
		})
	}
}

// TestSerializeUnsupportedValue checks that values the codec can not encode fail cleanly
func TestSerializeUnsupportedValue(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			if _, err := factory().Serialize(make(chan int)); err == nil {
				t.Errorf("Expected error when serializing a channel")
			}
		})
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name        string
		compression string
		expected    string
		wantErr     bool
	}{
		{"json", "", "json", false},
		{"", "none", "json", false},
		{"gob", "", "gob", false},
		{"json", "zstd", "json+zstd", false},
		{"gob", "lz4", "gob+lz4", false},
		{"xml", "", "", true},
		{"json", "brotli", "", true},
	}

	for _, tt := range tests {
		s, err := ByName(tt.name, tt.compression)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ByName(%q, %q): expected error", tt.name, tt.compression)
			}
			continue
		}
		if err != nil {
			t.Errorf("ByName(%q, %q): unexpected error %v", tt.name, tt.compression, err)
			continue
		}
		if s.Name() != tt.expected {
			t.Errorf("ByName(%q, %q): expected %s, got %s", tt.name, tt.compression, tt.expected, s.Name())
		}
	}
}
