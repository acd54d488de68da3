package fsdir

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/afero"
)

var Logger = logger.GetLogger("fsdir")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// UnitExt is the file extension of a published unit
	UnitExt = ".doc"
	// tmpMarker is inserted between the unit name and the random suffix of temp files
	tmpMarker = ".tmp-"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the fsdir engine
type Options struct {
	Fs         afero.Fs    // Filesystem to use (nil = OS filesystem)
	FileMode   os.FileMode // Permissions of unit files
	DirMode    os.FileMode // Permissions of the collection directory
	SyncWrites bool        // fsync every unit (and the directory) before publishing
}

// DefaultOptions returns the default fsdir options
func DefaultOptions() *Options {
	return &Options{
		Fs:         afero.NewOsFs(),
		FileMode:   0644,
		DirMode:    0755,
		SyncWrites: true,
	}
}

// NewFactory returns a db.Factory that opens an fsdir engine per collection directory
func NewFactory(opts *Options) db.Factory {
	return func(dir string) (db.UnitDB, error) {
		return Open(dir, opts)
	}
}

// --------------------------------------------------------------------------
// Core fsdir structure
// --------------------------------------------------------------------------

// fsdirImpl stores one file per unit inside a single directory
type fsdirImpl struct {
	fs     afero.Fs
	dir    string
	opts   Options
	closed atomic.Bool
}

// Open creates the directory (if needed), removes leftovers of interrupted
// writes and returns the engine for it.
//
// Thread-safety: This function is not thread-safe for the same directory.
func Open(dir string, opts *Options) (db.UnitDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.FileMode == 0 {
		o.FileMode = 0644
	}
	if o.DirMode == 0 {
		o.DirMode = 0755
	}

	if exists, err := afero.DirExists(o.Fs, dir); err != nil || !exists {
		if err := o.Fs.MkdirAll(dir, o.DirMode); err != nil {
			return nil, fmt.Errorf("fsdir: failed to create directory %s: %w", dir, err)
		}
	}

	f := &fsdirImpl{
		fs:   o.Fs,
		dir:  dir,
		opts: o,
	}

	n, err := f.sweep()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		Logger.Warningf("removed %d unfinished unit(s) in %s", n, dir)
	}

	return f, nil
}

// --------------------------------------------------------------------------
// Path Helper Functions
// --------------------------------------------------------------------------

func (f *fsdirImpl) unitPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("fsdir: invalid key %q", key)
	}
	return f.Location(key), nil
}

func isTempName(name string) bool {
	return strings.Contains(name, UnitExt+tmpMarker)
}

// sweep removes temp files left behind by interrupted writes
func (f *fsdirImpl) sweep() (int, error) {
	entries, err := afero.ReadDir(f.fs, f.dir)
	if err != nil {
		return 0, fmt.Errorf("fsdir: failed to read directory %s: %w", f.dir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isTempName(e.Name()) {
			continue
		}
		if err := f.fs.Remove(filepath.Join(f.dir, e.Name())); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return removed, fmt.Errorf("fsdir: failed to remove temp file %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// syncDir fsyncs the directory so that a rename is durable (best-effort)
func (f *fsdirImpl) syncDir() {
	if d, err := f.fs.Open(f.dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}

// --------------------------------------------------------------------------
// UnitDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put writes the value to a temp file in the same directory, syncs it and renames
// it over the final unit. A crash at any point leaves either the old or the new
// unit in place; a leftover temp file is removed by the next Open.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *fsdirImpl) Put(key string, value []byte) (string, error) {
	if f.closed.Load() {
		return "", db.ErrClosed
	}

	path, err := f.unitPath(key)
	if err != nil {
		return "", err
	}

	tmp, err := afero.TempFile(f.fs, f.dir, key+UnitExt+tmpMarker+"*")
	if err != nil {
		return "", fmt.Errorf("fsdir: failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	published := false
	defer func() {
		_ = tmp.Close()
		if !published {
			_ = f.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		return "", fmt.Errorf("fsdir: failed to write %s: %w", key, err)
	}
	if f.opts.SyncWrites {
		if err := tmp.Sync(); err != nil {
			return "", fmt.Errorf("fsdir: failed to sync %s: %w", key, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("fsdir: failed to close %s: %w", key, err)
	}

	// match the configured permissions (best-effort)
	_ = f.fs.Chmod(tmpName, f.opts.FileMode)

	if err := f.fs.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("fsdir: failed to publish %s: %w", key, err)
	}
	published = true

	if f.opts.SyncWrites {
		f.syncDir()
	}

	return path, nil
}

// Delete removes the unit file. A missing file is not an error.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *fsdirImpl) Delete(key string) error {
	if f.closed.Load() {
		return db.ErrClosed
	}

	path, err := f.unitPath(key)
	if err != nil {
		return err
	}

	if err := f.fs.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("fsdir: failed to delete %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes all unit files (and temp files) of the directory.
// The directory itself is kept. The first failure is returned immediately.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *fsdirImpl) DeleteAll() error {
	if f.closed.Load() {
		return db.ErrClosed
	}

	entries, err := afero.ReadDir(f.fs, f.dir)
	if err != nil {
		return fmt.Errorf("fsdir: failed to read directory %s: %w", f.dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), UnitExt) || isTempName(e.Name())) {
			continue
		}
		if err := f.fs.Remove(filepath.Join(f.dir, e.Name())); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("fsdir: failed to delete %s: %w", e.Name(), err)
		}
	}

	if f.opts.SyncWrites {
		f.syncDir()
	}
	return nil
}

// --------------------------------------------------------------------------
// UnitDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get reads the unit file
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *fsdirImpl) Get(key string) ([]byte, bool, error) {
	if f.closed.Load() {
		return nil, false, db.ErrClosed
	}

	path, err := f.unitPath(key)
	if err != nil {
		return nil, false, err
	}

	data, err := afero.ReadFile(f.fs, path)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fsdir: failed to read %s: %w", key, err)
	}
	return data, true, nil
}

// Keys lists all published units. Temp files and sub directories are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *fsdirImpl) Keys() ([]string, error) {
	if f.closed.Load() {
		return nil, db.ErrClosed
	}

	entries, err := afero.ReadDir(f.fs, f.dir)
	if err != nil {
		return nil, fmt.Errorf("fsdir: failed to read directory %s: %w", f.dir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), UnitExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), UnitExt))
	}
	return keys, nil
}

// Location returns the path of the unit file for key
func (f *fsdirImpl) Location(key string) string {
	return filepath.Join(f.dir, key+UnitExt)
}

// --------------------------------------------------------------------------
// UnitDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the directory. SizeBytes is the exact sum of all unit files.
func (f *fsdirImpl) GetInfo() db.DatabaseInfo {
	var sizes util.UnitSizes
	if entries, err := afero.ReadDir(f.fs, f.dir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), UnitExt) {
				continue
			}
			sizes.Add(int(e.Size()))
		}
	}

	meta := &struct {
		Directory   string `json:"directory"`
		SyncWrites  bool   `json:"sync_writes"`
		MedianSize  int    `json:"median_size"`
		AverageSize int    `json:"average_size"`
		P99Size     int    `json:"p99_size"`
		Closed      bool   `json:"closed"`
		Filesystem  string `json:"filesystem"`
		Info        string `json:"info"`
	}{
		Directory:   f.dir,
		SyncWrites:  f.opts.SyncWrites,
		MedianSize:  sizes.Median(),
		AverageSize: sizes.Average(),
		P99Size:     sizes.Percentile(99),
		Closed:      f.closed.Load(),
		Filesystem:  f.fs.Name(),
		Info:        "Median and percentile sizes are bucket estimates.",
	}

	// features
	supportedFeatures := []db.Feature{
		db.FeaturePut, db.FeatureGet,
		db.FeatureDelete, db.FeatureDeleteAll,
		db.FeatureKeys, db.FeatureDurable,
	}

	return db.DatabaseInfo{
		SizeBytes:         sizes.Total(),
		UnitCount:         sizes.Count(),
		DbType:            db.ImplFSDir,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (f *fsdirImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePut |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureDeleteAll |
		db.FeatureKeys |
		db.FeatureDurable
	return supportedFeatures&feature == feature
}

// Close marks the engine as closed. Units are already durable, so nothing is flushed.
func (f *fsdirImpl) Close() error {
	f.closed.Store(true)
	return nil
}
