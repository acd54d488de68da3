// Package serializer provides the codecs the document store uses to turn
// documents into storage units and back. It defines a common interface and
// multiple implementations with different size and speed characteristics.
//
// Key Components:
//
//   - ISerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. Human-readable units that can be inspected
//     and edited with standard tools. This is the default.
//
//   - gobSerializerImpl: Go's gob encoding. Every unit carries its own type
//     description, which makes small documents larger than their JSON form.
//
//   - compressedSerializerImpl: Wraps another serializer and compresses each unit
//     with zstd (better ratio) or lz4 (faster). A unit that does not shrink is
//     stored uncompressed behind the same 5 byte header, so small documents
//     cost almost nothing extra.
//
// Identifiers implement encoding.TextMarshaler, so every serializer stores them
// as their 24 character hex form.
//
// Thread Safety:
//
//	All serializer implementations are stateless (or use pooled coders) and are
//	safe for concurrent use across multiple goroutines.
//
// Usage:
//
//	  s, err := serializer.ByName("json", "zstd")
//	  data, err := s.Serialize(doc)
//	  // ... persist data ...
//	  var restored Doc
//	  err = s.Deserialize(data, &restored)
package serializer
