package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
)

var Logger = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Server State
// --------------------------------------------------------------------------

// ServerState is the lifecycle state of a Server
type ServerState int32

const (
	StateRunning  ServerState = iota // Server accepts operations
	StateShutDown                    // Terminal, every operation fails with a ConnectionError
)

func (s ServerState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateShutDown:
		return "ShutDown"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// Server is the root handle of a document store. It is bound to one root
// directory and owns all databases (and their collections) opened through it.
//
// Thread-safety: All methods are safe for concurrent use.
type Server struct {
	rootPath  string
	opts      Options
	state     atomic.Int32
	lifecycle sync.RWMutex // shared by operations that create handles, exclusive for Shutdown
	databases *xsync.MapOf[string, *Database]
	metrics   *metrics.Set
}

// Create validates (and if needed creates) the root directory and returns a running Server.
// A nil opts uses DefaultOptions.
func Create(rootPath string, opts *Options) (*Server, error) {
	o := opts.withDefaults()

	if rootPath == "" {
		return nil, wrapError(RetCInvalidOperation, nil, "root path must not be empty")
	}
	rootPath = filepath.Clean(rootPath)

	info, err := o.Fs.Stat(rootPath)
	switch {
	case err == nil && !info.IsDir():
		return nil, wrapError(RetCConnectionError, nil, "root path %s is not a directory", rootPath)
	case err != nil:
		if err := o.Fs.MkdirAll(rootPath, 0755); err != nil {
			return nil, wrapError(RetCConnectionError, err, "failed to create root directory %s", rootPath)
		}
	}

	s := &Server{
		rootPath:  rootPath,
		opts:      o,
		databases: xsync.NewMapOf[string, *Database](),
		metrics:   metrics.NewSet(),
	}
	s.state.Store(int32(StateRunning))

	Logger.Infof("server started on %s (serializer %s)", rootPath, o.Serializer.Name())
	return s, nil
}

// RootPath returns the root directory of the server
func (s *Server) RootPath() string {
	return s.rootPath
}

// State returns the current lifecycle state
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// GetDatabase returns the database with the given name. Repeated calls with
// the same name return the same handle. Nothing is written to disk until the
// first collection of the database is opened.
func (s *Server) GetDatabase(name string) (*Database, error) {
	if err := validateName("database", name); err != nil {
		return nil, err
	}

	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	if s.State() != StateRunning {
		return nil, wrapError(RetCConnectionError, errShutDown, "can not open database %s", name)
	}

	database, _ := s.databases.LoadOrCompute(name, func() *Database {
		return newDatabase(s, name)
	})
	return database, nil
}

// DatabaseNames returns the names of all open databases in sorted order
func (s *Server) DatabaseNames() []string {
	var names []string
	s.databases.Range(func(name string, _ *Database) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Shutdown releases all databases and collections and moves the server to
// StateShutDown. All databases are closed concurrently; failures are collected
// and returned together. Calling Shutdown again returns nil.
func (s *Server) Shutdown() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateShutDown)) {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	s.databases.Range(func(name string, database *Database) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := database.close(); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("database %s: %w", name, err))
				mu.Unlock()
			}
		}()
		return true
	})
	wg.Wait()

	if errs != nil {
		Logger.Errorf("server on %s shut down with errors: %v", s.rootPath, errs)
		return wrapError(RetCConnectionError, errs, "shutdown failed for %d database(s)", len(multierr.Errors(errs)))
	}

	Logger.Infof("server on %s shut down", s.rootPath)
	return nil
}

// running reports whether the server still accepts operations
func (s *Server) running() bool {
	return s.State() == StateRunning
}
