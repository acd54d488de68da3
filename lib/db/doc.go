// Package db defines the storage layer that sits below a single document collection.
//
// A UnitDB stores opaque byte values ("units") addressed by a string key. The
// document store keeps exactly one unit per document, keyed by the hex form of
// the document identifier. The package does not know anything about documents,
// codecs or identifiers; it only moves bytes.
//
// Key Components:
//
//   - UnitDB Interface: Put, Get, Delete, DeleteAll and Keys plus feature
//     discovery (SupportsFeature) and metadata (GetInfo). Put must publish a unit
//     atomically so that readers never observe a partially written value.
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations advertise through SupportsFeature (e.g. FeatureDurable for
//     engines whose units survive a restart, FeatureSnapshot for engines that can
//     dump and restore their whole state).
//
//   - Factory: A function that creates the UnitDB for one collection directory.
//     The store receives a Factory and calls it the first time a collection is
//     opened, which keeps engine selection out of the store itself.
//
// Related Packages:
//
// The engines/fsdir package (github.com/ValentinKolb/dDoc/lib/db/engines/fsdir)
// is the durable engine: one file per unit under the collection directory, written
// with a write-temp, fsync, rename sequence so that a crash can only lose the
// unit that was in flight.
//
// The engines/maple package (github.com/ValentinKolb/dDoc/lib/db/engines/maple)
// is an in-memory engine backed by a sharded concurrent map. It does not survive a
// restart on its own but can be saved to and loaded from a binary snapshot.
//
// The util package (github.com/ValentinKolb/dDoc/lib/db/util) provides hashing,
// seed generation and size statistics shared by the engines.
//
// The testing package (github.com/ValentinKolb/dDoc/lib/db/testing) provides
// standardized tests and benchmarks for UnitDB implementations:
//   - RunUnitDBTests: Runs a standardized test suite to validate implementations
//   - RunUnitDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
