package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
)

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// Database is a named namespace of collections. It caches collection handles,
// so there is exactly one handle (and one lock) per collection.
//
// Thread-safety: All methods are safe for concurrent use.
type Database struct {
	server      *Server
	name        string
	dir         string
	collections *xsync.MapOf[string, *collectionEntry]
}

// collectionHandle is the type independent part of a Collection
type collectionHandle interface {
	Name() string
	close() error
}

// collectionEntry is the registry slot of a collection. The handle is opened
// exactly once, concurrent callers wait for the first one.
type collectionEntry struct {
	once   sync.Once
	handle collectionHandle
	err    error
}

func newDatabase(server *Server, name string) *Database {
	return &Database{
		server:      server,
		name:        name,
		dir:         filepath.Join(server.rootPath, name),
		collections: xsync.NewMapOf[string, *collectionEntry](),
	}
}

// Name returns the name of the database
func (d *Database) Name() string {
	return d.name
}

// CollectionNames returns the names of all open collections in sorted order
func (d *Database) CollectionNames() []string {
	var names []string
	d.collections.Range(func(name string, entry *collectionEntry) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// GetCollection returns the collection with the given name and element type.
// The first call creates the collection directory and runs the recovery scan,
// later calls return the cached handle. Requesting an open collection with a
// different element type fails with an InvalidOperation error.
//
// GetCollection is a function and not a method because Go methods can not
// have type parameters.
func GetCollection[T any, PT interface {
	*T
	Document
}](database *Database, name string) (*Collection[T, PT], error) {
	if err := validateName("collection", name); err != nil {
		return nil, err
	}

	s := database.server
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	if !s.running() {
		return nil, wrapError(RetCConnectionError, errShutDown, "can not open collection %s/%s", database.name, name)
	}

	entry, _ := database.collections.LoadOrCompute(name, func() *collectionEntry {
		return &collectionEntry{}
	})

	entry.once.Do(func() {
		c, err := openCollection[T, PT](database, name)
		if err != nil {
			entry.err = err
			return
		}
		entry.handle = c
	})

	if entry.err != nil {
		// forget the failed entry so that the next call retries
		database.collections.Compute(name, func(old *collectionEntry, loaded bool) (*collectionEntry, bool) {
			return old, !loaded || old == entry
		})
		return nil, entry.err
	}

	c, ok := entry.handle.(*Collection[T, PT])
	if !ok {
		var zero T
		return nil, wrapError(RetCInvalidOperation, nil,
			"collection %s/%s is already open with a different element type (requested %T)", database.name, name, zero)
	}
	return c, nil
}

// close closes all collections of the database concurrently
func (d *Database) close() error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	d.collections.Range(func(name string, entry *collectionEntry) bool {
		if entry.handle == nil {
			return true
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.handle.close(); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("collection %s: %w", name, err))
				mu.Unlock()
			}
		}()
		return true
	})
	wg.Wait()

	return errs
}
