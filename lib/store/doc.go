// Package store is an embedded document store: typed documents, addressed by a
// 12 byte identifier, grouped into collections and databases below one root
// directory.
//
// The package focuses on:
//   - Typed collections (Collection[T, PT]) whose documents carry their own identifier
//   - Crash safe persistence, one storage unit per document
//   - Recovery of the in-memory index on open, skipping (and reporting) damaged units
//   - Unified error handling with return codes
//
// Key Components:
//
//   - Server: The root handle, bound to one root directory. It hands out
//     Database handles (one per name) and owns their lifecycle. Shutdown closes
//     everything concurrently and moves the server to a terminal state in which
//     every operation fails with a ConnectionError.
//
//   - Database: A named namespace of collections (the directory <root>/<database>).
//     Collections are opened with the generic function GetCollection. The first
//     call for a name opens the collection, later calls return the cached handle.
//
//   - Collection: Save, FindOneById, FindAll, Count, Remove and RemoveAll on
//     documents of one Go type. The collection keeps the set of identifiers in
//     memory and reads documents from its db.UnitDB on demand. Writers are
//     serialized per collection, readers share a lock.
//
//   - Error System: Every failure is an *Error carrying a RetCode. Callers test
//     the category with IsConnectionError, IsSerializationError and
//     IsInvalidOperation or with errors.Is against the sentinel errors.
//     A missing document is not an error: FindOneById returns found == false.
//
//   - Options: The storage engine (a db.Factory), the filesystem (afero), the
//     serializer, the recovery scan parallelism and the OnSkip callback.
//
// On disk a document of collection c in database d is stored as
// <root>/d/c/<hex id>.doc when the default fsdir engine is used.
//
// Usage:
//
//	type Cat struct {
//		ID   objectid.ID `json:"_id"`
//		Name string      `json:"name"`
//	}
//
//	func (c *Cat) GetID() objectid.ID   { return c.ID }
//	func (c *Cat) SetID(id objectid.ID) { c.ID = id }
//
//	server, err := store.Create("/var/lib/ddoc", nil)
//	...
//	database, _ := server.GetDatabase("pets")
//	cats, _ := store.GetCollection[Cat](database, "cats")
//	garfield, _ := cats.Save(Cat{Name: "Garfield"})
//	found, ok, _ := cats.FindOneById(garfield.ID)
//
// Metrics:
//
// Each Server owns a VictoriaMetrics set with per collection operation
// counters, latency histograms, error counters and the number of units skipped
// during recovery. WriteMetrics writes it in the Prometheus text format.
package store
