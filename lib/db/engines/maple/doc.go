// Package maple implements an in-memory unit database that satisfies the
// db.UnitDB interface. It is used for ephemeral stores (tests, benchmarks and
// caches) where documents do not have to survive a restart.
//
// Key Components:
//
//   - mapleImpl: The central structure implementing db.UnitDB. It owns a fixed
//     number of shards and routes every key to exactly one of them.
//
//   - Shard: A partition of the database that manages a subset of the key space.
//     Each shard wraps its own concurrent map (xsync.MapOf), so operations on
//     different shards never contend with each other.
//
// Internal Mechanisms:
//
//   - Sharding Strategy: Keys are distributed across shards in a two-step process:
//     1. String keys are converted to 64-bit integers using the HashString function
//     with a database-specific seed
//     2. The integer key is right-shifted by 7 bits to use higher-quality bits for
//     distribution
//     The hash only selects the shard. Inside the shard the original key is used,
//     so hash collisions can not mix up two units.
//
//   - Value Ownership: Put stores a copy of the value and Get returns a copy, so
//     callers may freely modify the slices they pass in or receive.
//
// Persistence:
//
// Save writes a binary snapshot and Load replaces the whole database with one.
// The format is:
//
//	"MAPLEDOC" | version (uint8) | count (uint64) | count * (keyLen uint32, key, valueLen uint32, value)
//
// All integers are little-endian. Save runs concurrently with writers and
// produces a fuzzy snapshot. Load builds the new shards first and swaps them in
// only if the whole snapshot could be read.
//
// If DBOptions.Fs is set, NewFactory restores every database from the file
// units.maple in its directory and writes it back (temp file, sync, rename) on
// Close. Units written after the last Close are lost on a crash, so the engine
// does not advertise db.FeatureDurable.
//
// Thread Safety:
//
// All exported operations are safe for concurrent use.
package maple
