package db

import "errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplFSDir Implementation = "fsdir"
	ImplMaple Implementation = "maple"
)

// ErrClosed is returned by all operations on a closed UnitDB
var ErrClosed = errors.New("unit database is closed")

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePut       Feature = 1 << iota // Support for Put operations
	FeatureGet                           // Support for Get operations
	FeatureDelete                        // Support for Delete operations
	FeatureDeleteAll                     // Support for DeleteAll operations
	FeatureKeys                          // Support for listing all keys
	FeatureDurable                       // Units survive a process restart
	FeatureSnapshot                      // Support for Save / Load of the whole database
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureDeleteAll:
		return "DeleteAll"
	case FeatureKeys:
		return "Keys"
	case FeatureDurable:
		return "Durable"
	case FeatureSnapshot:
		return "Snapshot"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	UnitCount         int            `json:"unit_count"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// Factory creates the UnitDB for one collection.
// The dir parameter is the location dedicated to that collection.
type Factory func(dir string) (UnitDB, error)

// UnitDB defines the storage layer below a single collection.
// It stores opaque byte values ("units") addressed by a key, one unit per document.
// Implementations must be safe for concurrent use, but callers are expected to
// serialize writers on their own (the collection holds an exclusive lock for writes).
type UnitDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put creates or replaces the unit for key. The replacement must be atomic:
	// a concurrent or later Get either sees the old or the new value, never a mix.
	// The returned location identifies where the unit was published.
	Put(key string, value []byte) (location string, err error)

	// Delete removes the unit for key. Deleting a missing key is not an error.
	Delete(key string) (err error)

	// DeleteAll removes all units. The database stays usable.
	DeleteAll() (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns a copy of the unit for key.
	// The boolean return value indicates whether a unit for the key was found.
	Get(key string) (value []byte, found bool, err error)

	// Keys lists the keys of all units in no particular order.
	Keys() (keys []string, err error)

	// Location returns where the unit for key is (or would be) published.
	// It equals the location returned by Put.
	Location(key string) (location string)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close releases all resources. Subsequent calls return ErrClosed.
	Close() (err error)
}
