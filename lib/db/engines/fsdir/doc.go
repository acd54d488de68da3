// Package fsdir implements a durable unit database that stores every unit as
// a single file inside one directory. It satisfies the db.UnitDB interface and
// is the default engine of the document store.
//
// Layout:
//
//	<dir>/<key>.doc                  published unit
//	<dir>/<key>.doc.tmp-<random>     unit that is being written
//
// Write Protocol:
//
// Put writes the value to a fresh temp file in the same directory, syncs it,
// closes it and renames it over the final file. Because the rename happens
// within one directory it replaces the unit atomically: readers see either the
// previous or the new content. When SyncWrites is enabled the directory is
// synced as well so that the rename survives a crash. Temp files that are left
// behind by an interrupted write are removed by the next Open and are never
// reported by Keys.
//
// Filesystem Abstraction:
//
// All file access goes through an afero.Fs. Production code uses the OS
// filesystem, tests can use an in-memory or read-only filesystem to exercise
// the error paths without touching the disk.
//
// Thread Safety:
//
// All exported operations are safe for concurrent use. Two engines must not
// be opened on the same directory at the same time.
package fsdir
