package maple

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/spf13/afero"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for the snapshot format
const (
	magicNum     = "MAPLEDOC" // File format identifier
	mapleVersion = 1          // Snapshot version
	maxUnitSize  = 1 << 30    // Sanity limit for a single unit while loading

	// SnapshotFile is the name of the snapshot inside a collection directory
	SnapshotFile = "units.maple"
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory unit database with sharded data
type mapleImpl struct {
	mu        sync.RWMutex      // guards the shards slice (swapped by Load)
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	closed    atomic.Bool

	// snapshot persistence (optional)
	fs           afero.Fs
	snapshotPath string
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int      // Number of shards (0 = auto)
	Fs        afero.Fs // If set, databases created by NewFactory load a snapshot on open and write one on Close
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// DB is the interface of the maple engine: a db.UnitDB that can additionally
// be saved to and restored from a binary snapshot.
type DB interface {
	db.UnitDB

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the snapshot read from r.
	Load(r io.Reader) (err error)
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) DB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	return &mapleImpl{
		numShards: numShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(numShards),
	}
}

// NewFactory returns a db.Factory that creates an independent in-memory
// database per collection. Without DBOptions.Fs the directory parameter is ignored,
// otherwise the database is restored from <dir>/units.maple and saved there on Close.
func NewFactory(opts *DBOptions) db.Factory {
	return func(dir string) (db.UnitDB, error) {
		maple := NewMapleDB(opts).(*mapleImpl)
		if opts == nil || opts.Fs == nil {
			return maple, nil
		}

		maple.fs = opts.Fs
		maple.snapshotPath = filepath.Join(dir, SnapshotFile)
		if err := maple.restore(); err != nil {
			return nil, err
		}
		return maple, nil
	}
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shardFor returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	maple.mu.RLock()
	defer maple.mu.RUnlock()
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core UnitDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put stores a copy of value for key.
// The location of an in-memory unit is "maple:<key>".
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Put(key string, value []byte) (string, error) {
	if maple.closed.Load() {
		return "", db.ErrClosed
	}

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	maple.shardFor(key).Data.Store(key, valueCopy)
	return maple.Location(key), nil
}

// Delete removes the unit for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	maple.shardFor(key).Data.Delete(key)
	return nil
}

// DeleteAll removes all units
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) DeleteAll() error {
	if maple.closed.Load() {
		return db.ErrClosed
	}

	maple.mu.RLock()
	defer maple.mu.RUnlock()
	for _, shard := range maple.shards {
		shard.Data.Clear()
	}
	return nil
}

// --------------------------------------------------------------------------
// Core UnitDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the unit for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool, error) {
	if maple.closed.Load() {
		return nil, false, db.ErrClosed
	}

	value, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false, nil
	}

	data := make([]byte, len(value))
	copy(data, value)
	return data, true, nil
}

// Keys lists all keys
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Keys() ([]string, error) {
	if maple.closed.Load() {
		return nil, db.ErrClosed
	}

	maple.mu.RLock()
	defer maple.mu.RUnlock()

	var keys []string
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
	}
	return keys, nil
}

// Location returns the in-memory location of a unit
func (maple *mapleImpl) Location(key string) string {
	return "maple:" + key
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer
// Concurrent reading and writing is allowed during Save operation,
// the result is a fuzzy snapshot and not a consistent cut of the database.
func (maple *mapleImpl) Save(w io.Writer) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	return maple.save(w)
}

// save writes the snapshot without checking the closed flag
func (maple *mapleImpl) save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key   string
		value []byte
	}

	var entries []entryToSave

	maple.mu.RLock()
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			entries = append(entries, entryToSave{key, value})
			return true
		})
	}
	maple.mu.RUnlock()

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write maple version
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}

	// Write total entries count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {

		// Write key length and key
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}

		// Write value length and value
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load restores a database from the reader, replacing the current content.
// If the snapshot is invalid the current content is kept.
//
// Thread-safety: Load blocks all other operations while the shards are swapped.
func (maple *mapleImpl) Load(r io.Reader) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}

	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}

	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}

	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	// Read entries count
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	// Build the new shards before swapping them in
	shards := newShards(maple.numShards)

	for i := uint64(0); i < count; i++ {
		key, err := readBlock(br)
		if err != nil {
			return fmt.Errorf("entry %d: failed to read key: %w", i, err)
		}
		value, err := readBlock(br)
		if err != nil {
			return fmt.Errorf("entry %d: failed to read value: %w", i, err)
		}

		k := string(key)
		internal.GetShard(util.HashString(k, maple.seed), shards).Data.Store(k, value)
	}

	maple.mu.Lock()
	maple.shards = shards
	maple.mu.Unlock()

	return nil
}

// restore loads the snapshot file if it exists
func (maple *mapleImpl) restore() error {
	f, err := maple.fs.Open(maple.snapshotPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("maple: failed to open snapshot %s: %w", maple.snapshotPath, err)
	}
	defer f.Close()

	if err := maple.Load(f); err != nil {
		return fmt.Errorf("maple: failed to load snapshot %s: %w", maple.snapshotPath, err)
	}
	return nil
}

// persist writes the snapshot file atomically (temp file, sync, rename)
func (maple *mapleImpl) persist() error {
	dir := filepath.Dir(maple.snapshotPath)
	if err := maple.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("maple: failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(maple.fs, dir, SnapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("maple: failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if err := maple.save(tmp); err != nil {
		_ = tmp.Close()
		_ = maple.fs.Remove(tmpName)
		return fmt.Errorf("maple: failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = maple.fs.Remove(tmpName)
		return fmt.Errorf("maple: failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = maple.fs.Remove(tmpName)
		return fmt.Errorf("maple: failed to close snapshot: %w", err)
	}
	if err := maple.fs.Rename(tmpName, maple.snapshotPath); err != nil {
		_ = maple.fs.Remove(tmpName)
		return fmt.Errorf("maple: failed to publish snapshot: %w", err)
	}
	return nil
}

// readBlock reads a length prefixed byte block
func readBlock(br *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxUnitSize {
		return nil, fmt.Errorf("block of %d bytes exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// UnitDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	var sizes util.UnitSizes

	maple.mu.RLock()
	shardSizes := make([]float64, len(maple.shards))
	sizeBytes := 0
	count := 0
	for i, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			sizes.Add(len(value))
			sizeBytes += len(key) + len(value)
			count++
			return true
		})
		shardSizes[i] = float64(shard.Data.Size())
	}
	maple.mu.RUnlock()

	// Metadata for this specific database implementation
	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		MedianSize        int                    `json:"median_size"`
		AverageSize       int                    `json:"average_size"`
		Info              string                 `json:"info"`
	}{
		ShardCount:        len(shardSizes),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		MedianSize:        sizes.Median(),
		AverageSize:       sizes.Average(),
		Info:              "Units are kept in memory only and are lost on restart unless saved.",
	}

	// features
	supportedFeatures := []db.Feature{
		db.FeaturePut, db.FeatureGet,
		db.FeatureDelete, db.FeatureDeleteAll,
		db.FeatureKeys, db.FeatureSnapshot,
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		UnitCount:         count,
		DbType:            db.ImplMaple,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePut |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureDeleteAll |
		db.FeatureKeys |
		db.FeatureSnapshot
	return supportedFeatures&feature == feature
}

// Close marks the database as closed and drops all units.
// If the database was created with a filesystem the snapshot is written first.
func (maple *mapleImpl) Close() error {
	if !maple.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if maple.fs != nil {
		err = maple.persist()
	}

	maple.mu.Lock()
	maple.shards = newShards(maple.numShards)
	maple.mu.Unlock()
	return err
}
