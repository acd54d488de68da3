package store

import (
	"runtime"
	"strings"
	"unicode"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/fsdir"
	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/ValentinKolb/dDoc/lib/serializer"
	"github.com/spf13/afero"
)

// --------------------------------------------------------------------------
// Document contract
// --------------------------------------------------------------------------

// Document is implemented by (the pointer type of) every value stored in a collection.
// The store assigns a new identifier on Save if GetID returns the empty identifier.
type Document interface {
	GetID() objectid.ID
	SetID(id objectid.ID)
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// SkipReport describes a storage unit that was ignored while reading a collection
type SkipReport struct {
	Database   string // Name of the database
	Collection string // Name of the collection
	Key        string // Name of the unit (normally the identifier hex)
	Reason     error  // Why the unit was skipped
}

// Options configures a Server
type Options struct {
	// Fs is the filesystem the root directory lives on (nil = OS filesystem)
	Fs afero.Fs
	// Engine creates the unit database of a collection (nil = fsdir on Fs)
	Engine db.Factory
	// Serializer encodes documents (nil = JSON)
	Serializer serializer.ISerializer
	// ScanWorkers bounds the parallelism of the recovery scan (0 = number of CPUs)
	ScanWorkers int
	// OnSkip is called for every unit skipped by the recovery scan or FindAll (optional)
	OnSkip func(SkipReport)
}

// DefaultOptions returns the default options: fsdir engine on the OS filesystem
// with synced writes and the JSON serializer
func DefaultOptions() *Options {
	return &Options{
		Fs:          afero.NewOsFs(),
		Serializer:  serializer.NewJSONSerializer(),
		ScanWorkers: runtime.NumCPU(),
	}
}

// withDefaults returns a copy of the options with all empty fields filled
func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Serializer == nil {
		opts.Serializer = serializer.NewJSONSerializer()
	}
	if opts.ScanWorkers <= 0 {
		opts.ScanWorkers = runtime.NumCPU()
	}
	if opts.Engine == nil {
		opts.Engine = fsdir.NewFactory(&fsdir.Options{
			Fs:         opts.Fs,
			SyncWrites: true,
		})
	}
	return opts
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// validateName checks that name can be used as a database or collection name.
// Names are single path segments without quotes or control characters.
func validateName(kind, name string) error {
	if name == "" || name == "." || name == ".." {
		return wrapError(RetCInvalidOperation, nil, "invalid %s name %q", kind, name)
	}
	if strings.ContainsAny(name, "/\\\"") || strings.ContainsFunc(name, unicode.IsControl) {
		return wrapError(RetCInvalidOperation, nil, "invalid %s name %q: must not contain separators, quotes or control characters", kind, name)
	}
	return nil
}
