package store

import (
	"context"
	"errors"
	"iter"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/ValentinKolb/dDoc/lib/serializer"
	"golang.org/x/sync/errgroup"
)

// Reasons reported in a SkipReport
var (
	ErrSkipInvalidName = errors.New("unit name is not an identifier")
	ErrSkipIDMismatch  = errors.New("identifier in document does not match unit name")
	ErrSkipVanished    = errors.New("unit vanished")
)

// --------------------------------------------------------------------------
// Collection
// --------------------------------------------------------------------------

// Collection is a set of documents of type T addressed by identifier.
// PT is the pointer type of T and carries the Document capability.
//
// Every document is one unit of the collection's UnitDB, keyed by the hex form
// of its identifier. The collection keeps an index of all identifiers in memory.
//
// Thread-safety: All methods are safe for concurrent use. Save, Remove and
// RemoveAll are serialized by an exclusive lock, all other operations share it.
type Collection[T any, PT interface {
	*T
	Document
}] struct {
	database *Database
	name     string
	dir      string
	units    db.UnitDB
	codec    serializer.ISerializer
	onSkip   func(SkipReport)
	metrics  *collectionMetrics

	mu     sync.RWMutex
	index  map[objectid.ID]string // identifier -> location of the unit
	closed bool
}

// CollectionInfo describes a collection
type CollectionInfo struct {
	Database   string          `json:"database"`
	Name       string          `json:"name"`
	Count      int             `json:"count"`
	Serializer string          `json:"serializer"`
	Engine     db.DatabaseInfo `json:"engine"`
}

// openCollection opens the unit database of a collection and builds the index
// by decoding every unit once (recovery scan).
func openCollection[T any, PT interface {
	*T
	Document
}](database *Database, name string) (c *Collection[T, PT], err error) {
	s := database.server
	start := time.Now()

	c = &Collection[T, PT]{
		database: database,
		name:     name,
		dir:      filepath.Join(database.dir, name),
		codec:    s.opts.Serializer,
		onSkip:   s.opts.OnSkip,
		metrics:  newCollectionMetrics(s.metrics, database.name, name),
		index:    make(map[objectid.ID]string),
	}
	defer func() { c.metrics.observe(opOpen, start, err) }()

	units, err := s.opts.Engine(c.dir)
	if err != nil {
		return nil, wrapError(RetCConnectionError, err, "failed to open collection %s/%s", database.name, name)
	}
	c.units = units

	if err := c.scan(s.opts.ScanWorkers); err != nil {
		_ = units.Close()
		return nil, err
	}

	Logger.Infof("opened collection %s/%s with %d document(s) in %s",
		database.name, name, len(c.index), time.Since(start).Round(time.Millisecond))
	return c, nil
}

// scan reads and decodes every unit with bounded parallelism.
// Units that can not be decoded are skipped and reported; read failures abort the scan.
func (c *Collection[T, PT]) scan(workers int) error {
	keys, err := c.units.Keys()
	if err != nil {
		return wrapError(RetCConnectionError, err, "failed to list collection %s/%s", c.database.name, c.name)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)

	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			id, err := objectid.FromHex(key)
			if err != nil || id.Hex() != key {
				c.skip(key, ErrSkipInvalidName)
				return nil
			}

			_, err = c.read(id)
			switch {
			case errors.Is(err, ErrSkipVanished):
				return nil
			case IsConnectionError(err):
				return err
			case err != nil:
				c.skip(key, err)
				return nil
			}

			mu.Lock()
			c.index[id] = c.units.Location(key)
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// read loads and decodes the unit of id. The caller must hold the lock (or be the scan).
// A missing unit is reported as ErrSkipVanished.
func (c *Collection[T, PT]) read(id objectid.ID) (T, error) {
	var doc T

	data, found, err := c.units.Get(id.Hex())
	if err != nil {
		return doc, wrapError(RetCConnectionError, err, "failed to read document %s", id)
	}
	if !found {
		return doc, ErrSkipVanished
	}

	if err := c.codec.Deserialize(data, PT(&doc)); err != nil {
		return doc, wrapError(RetCSerializationError, err, "failed to decode document %s", id)
	}

	stored := PT(&doc).GetID()
	if stored.IsZero() {
		PT(&doc).SetID(id)
	} else if stored != id {
		return doc, ErrSkipIDMismatch
	}
	return doc, nil
}

// skip reports a skipped unit to the logger, the metrics and the OnSkip callback
func (c *Collection[T, PT]) skip(key string, reason error) {
	Logger.Warningf("skipping unit %s in collection %s/%s: %v", key, c.database.name, c.name, reason)
	c.metrics.skipped.Inc()
	if c.onSkip != nil {
		c.onSkip(SkipReport{
			Database:   c.database.name,
			Collection: c.name,
			Key:        key,
			Reason:     reason,
		})
	}
}

// errClosed returns the error for operations on a closed collection
func (c *Collection[T, PT]) errClosed() error {
	return wrapError(RetCConnectionError, errShutDown, "collection %s/%s is closed", c.database.name, c.name)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Name returns the name of the collection
func (c *Collection[T, PT]) Name() string {
	return c.name
}

// Count returns the number of documents.
// The only possible error is a ConnectionError after the server was shut down.
func (c *Collection[T, PT]) Count() (n int, err error) {
	defer func(start time.Time) { c.metrics.observe(opCount, start, err) }(time.Now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, c.errClosed()
	}
	return len(c.index), nil
}

// FindOneById returns the document with the given identifier.
// The boolean is false if no such document exists; absence is not an error.
func (c *Collection[T, PT]) FindOneById(id objectid.ID) (doc T, found bool, err error) {
	defer func(start time.Time) { c.metrics.observe(opFindOne, start, err) }(time.Now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return doc, false, c.errClosed()
	}
	if _, ok := c.index[id]; !ok {
		return doc, false, nil
	}

	doc, err = c.read(id)
	switch {
	case errors.Is(err, ErrSkipVanished):
		Logger.Warningf("document %s of collection %s/%s vanished from storage", id, c.database.name, c.name)
		return doc, false, nil
	case errors.Is(err, ErrSkipIDMismatch):
		return doc, false, wrapError(RetCSerializationError, err, "document %s", id)
	case err != nil:
		return doc, false, err
	}
	return doc, true, nil
}

// FindAll returns a sequence over all documents that existed when FindAll was called,
// ordered by identifier. Each document is read when the sequence reaches it; documents
// removed in the meantime are left out, undecodable ones are skipped and reported.
// The sequence can be iterated more than once. It stops early if the server is shut down.
func (c *Collection[T, PT]) FindAll() (docs iter.Seq[T], err error) {
	defer func(start time.Time) { c.metrics.observe(opFindAll, start, err) }(time.Now())

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, c.errClosed()
	}
	ids := slices.SortedFunc(maps.Keys(c.index), objectid.ID.Compare)
	c.mu.RUnlock()

	return func(yield func(T) bool) {
		for _, id := range ids {
			doc, ok, stop := c.readForScan(id)
			if stop {
				return
			}
			if !ok {
				continue
			}
			if !yield(doc) {
				return
			}
		}
	}, nil
}

// readForScan reads one document for FindAll under the shared lock.
// stop is true if the collection was closed.
func (c *Collection[T, PT]) readForScan(id objectid.ID) (doc T, ok bool, stop bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return doc, false, true
	}
	if _, exists := c.index[id]; !exists {
		return doc, false, false
	}

	doc, err := c.read(id)
	switch {
	case errors.Is(err, ErrSkipVanished):
		return doc, false, false
	case err != nil:
		c.skip(id.Hex(), err)
		return doc, false, false
	}
	return doc, true, false
}

// Info returns information about the collection and its storage engine
func (c *Collection[T, PT]) Info() (CollectionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return CollectionInfo{}, c.errClosed()
	}
	return CollectionInfo{
		Database:   c.database.name,
		Name:       c.name,
		Count:      len(c.index),
		Serializer: c.codec.Name(),
		Engine:     c.units.GetInfo(),
	}, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Save creates or replaces a document. A document without identifier gets a new one.
// The returned document carries the identifier it was stored under.
func (c *Collection[T, PT]) Save(doc T) (saved T, err error) {
	defer func(start time.Time) { c.metrics.observe(opSave, start, err) }(time.Now())

	if PT(&doc).GetID().IsZero() {
		PT(&doc).SetID(objectid.New())
	}
	id := PT(&doc).GetID()

	data, err := c.codec.Serialize(doc)
	if err != nil {
		return saved, wrapError(RetCSerializationError, err, "failed to encode document %s", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return saved, c.errClosed()
	}

	location, err := c.units.Put(id.Hex(), data)
	if err != nil {
		return saved, wrapError(RetCConnectionError, err, "failed to write document %s", id)
	}
	c.index[id] = location

	Logger.Debugf("saved document %s to %s", id, location)
	return doc, nil
}

// Remove deletes the document with the given identifier. Removing a missing document is a no-op.
func (c *Collection[T, PT]) Remove(id objectid.ID) (err error) {
	defer func(start time.Time) { c.metrics.observe(opRemove, start, err) }(time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.errClosed()
	}
	if _, ok := c.index[id]; !ok {
		return nil
	}

	if err := c.units.Delete(id.Hex()); err != nil {
		return wrapError(RetCConnectionError, err, "failed to delete document %s", id)
	}
	delete(c.index, id)
	return nil
}

// RemoveAll deletes all documents. The collection stays usable.
func (c *Collection[T, PT]) RemoveAll() (err error) {
	defer func(start time.Time) { c.metrics.observe(opRemoveAll, start, err) }(time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.errClosed()
	}

	if err := c.units.DeleteAll(); err != nil {
		// some units may already be gone
		c.resync()
		return wrapError(RetCConnectionError, err, "failed to delete documents of %s/%s", c.database.name, c.name)
	}
	clear(c.index)
	return nil
}

// resync drops every identifier from the index whose unit no longer exists.
// The caller must hold the exclusive lock.
func (c *Collection[T, PT]) resync() {
	keys, err := c.units.Keys()
	if err != nil {
		Logger.Errorf("failed to list collection %s/%s, index may be stale: %v", c.database.name, c.name, err)
		return
	}

	present := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		present[key] = struct{}{}
	}
	for id := range c.index {
		if _, ok := present[id.Hex()]; !ok {
			delete(c.index, id)
		}
	}
}

// close releases the unit database. Further operations fail with a ConnectionError.
func (c *Collection[T, PT]) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.index = nil

	if err := c.units.Close(); err != nil {
		return wrapError(RetCConnectionError, err, "failed to close collection %s/%s", c.database.name, c.name)
	}
	return nil
}
