package serializer

import (
	"testing"
)

// benchmarkDocuments returns a set of documents for targeted benchmarking
func benchmarkDocuments() map[string]testDocument {
	docs := testDocuments()
	return map[string]testDocument{
		"Empty":   docs[0],
		"IDOnly":  docs[1],
		"Typical": docs[2],
		"Large":   docs[3],
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various documents
func BenchmarkSerialize(b *testing.B) {
	documents := benchmarkDocuments()

	for name, factory := range testSerializers {
		for docName, doc := range documents {
			b.Run(name+"_"+docName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(doc)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various documents
func BenchmarkDeserialize(b *testing.B) {
	documents := benchmarkDocuments()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all documents with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for docName, doc := range documents {
			data, err := serializer.Serialize(doc)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", docName, name, err)
			}
			serializedData[name][docName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for docName := range documents {
			b.Run(name+"_"+docName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][docName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var doc testDocument
					err := serializer.Deserialize(data, &doc)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each document
func BenchmarkSize(b *testing.B) {
	documents := benchmarkDocuments()

	for name, factory := range testSerializers {
		serializer := factory()

		for docName, doc := range documents {
			b.Run(name+"_"+docName, func(b *testing.B) {
				data, err := serializer.Serialize(doc)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")

				// Minimal loop to satisfy benchmark requirements
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
