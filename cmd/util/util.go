package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/fsdir"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/ValentinKolb/dDoc/lib/serializer"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// memoryRoot is the root path used when the maple engine runs without root directory
	memoryRoot = "/ddoc"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags that configure the document store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	defaults := common.DefaultStoreConfig("data")

	key := "root"
	cmd.PersistentFlags().String(key, defaults.RootDir, WrapString("Root directory of the document store. May be empty for the maple engine, which then keeps everything in memory"))

	key = "engine"
	cmd.PersistentFlags().String(key, defaults.Engine, WrapString("Storage engine to use (fsdir, maple). maple keeps all units in memory and writes one snapshot per collection on exit"))

	key = "sync-writes"
	cmd.PersistentFlags().Bool(key, defaults.SyncWrites, WrapString("Whether every unit (and its directory) is fsynced before it is published (fsdir only)"))

	key = "serializer"
	cmd.PersistentFlags().String(key, defaults.Serializer, WrapString("Serializer to use for documents (json, gob)"))

	key = "compression"
	cmd.PersistentFlags().String(key, defaults.Compression, WrapString("Compression applied to serialized documents (none, zstd, lz4)"))

	key = "scan-workers"
	cmd.PersistentFlags().Int(key, defaults.ScanWorkers, WrapString("How many units are decoded in parallel when a collection is opened"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// SetupCollectionFlags adds the flags that select a collection to a command
func SetupCollectionFlags(cmd *cobra.Command) {
	key := "db"
	cmd.PersistentFlags().String(key, "default", WrapString("Name of the database"))

	key = "collection"
	cmd.PersistentFlags().String(key, "documents", WrapString("Name of the collection"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ddoc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() (common.StoreConfig, error) {
	conf := common.StoreConfig{
		RootDir:     viper.GetString("root"),
		Engine:      viper.GetString("engine"),
		SyncWrites:  viper.GetBool("sync-writes"),
		Serializer:  viper.GetString("serializer"),
		Compression: viper.GetString("compression"),
		ScanWorkers: viper.GetInt("scan-workers"),
		LogLevel:    viper.GetString("log-level"),
	}
	return conf, conf.Validate()
}

// GetCollectionNames returns the database and collection selected by the flags
func GetCollectionNames() (database string, collection string) {
	return viper.GetString("db"), viper.GetString("collection")
}

// --------------------------------------------------------------------------
// Store setup
// --------------------------------------------------------------------------

// PrepareCommand binds the flags, reads the configuration and initializes the loggers.
// It is meant to be used as PersistentPreRunE.
func PrepareCommand(cmd *cobra.Command, _ []string) error {
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}
	conf, err := GetStoreConfig()
	if err != nil {
		return err
	}
	return common.InitLoggers(conf.LogLevel)
}

// GetStoreOptions converts a store configuration into store options and the root path to use
func GetStoreOptions(conf common.StoreConfig) (rootPath string, opts *store.Options, err error) {
	codec, err := serializer.ByName(conf.Serializer, conf.Compression)
	if err != nil {
		return "", nil, err
	}

	fs := afero.NewOsFs()
	rootPath = conf.RootDir

	var engine db.Factory
	switch conf.Engine {
	case common.EngineFSDir:
		engine = fsdir.NewFactory(&fsdir.Options{
			Fs:         fs,
			SyncWrites: conf.SyncWrites,
		})
	case common.EngineMaple:
		mapleOpts := maple.DefaultOptions()
		if rootPath == "" {
			// nothing is persisted
			fs = afero.NewMemMapFs()
			rootPath = memoryRoot
		} else {
			mapleOpts.Fs = fs
		}
		engine = maple.NewFactory(mapleOpts)
	default:
		return "", nil, fmt.Errorf("invalid engine %s", conf.Engine)
	}

	return rootPath, &store.Options{
		Fs:          fs,
		Engine:      engine,
		Serializer:  codec,
		ScanWorkers: conf.ScanWorkers,
	}, nil
}

// OpenServer creates a store server from the configuration read by GetStoreConfig.
// onSkip may be nil.
func OpenServer(onSkip func(store.SkipReport)) (*store.Server, error) {
	conf, err := GetStoreConfig()
	if err != nil {
		return nil, err
	}

	rootPath, opts, err := GetStoreOptions(conf)
	if err != nil {
		return nil, err
	}
	opts.OnSkip = onSkip

	Logger.Debugf("opening store with configuration:\n%s", conf.String())
	return store.Create(rootPath, opts)
}

// OpenCollection opens the server and the collection selected by the flags.
// The caller has to shut the server down.
func OpenCollection(onSkip func(store.SkipReport)) (*store.Server, *store.Collection[Document, *Document], error) {
	server, err := OpenServer(onSkip)
	if err != nil {
		return nil, nil, err
	}

	dbName, collName := GetCollectionNames()
	database, err := server.GetDatabase(dbName)
	if err != nil {
		_ = server.Shutdown()
		return nil, nil, err
	}

	c, err := store.GetCollection[Document](database, collName)
	if err != nil {
		_ = server.Shutdown()
		return nil, nil, err
	}
	return server, c, nil
}

// --------------------------------------------------------------------------
// Document
// --------------------------------------------------------------------------

// Document is the schema less document handled by the command line tools.
// Data holds arbitrary JSON.
type Document struct {
	ID   objectid.ID     `json:"_id"`
	Data json.RawMessage `json:"data"`
}

func (d *Document) GetID() objectid.ID   { return d.ID }
func (d *Document) SetID(id objectid.ID) { d.ID = id }
