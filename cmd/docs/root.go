package docs

import (
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/spf13/cobra"
)

// collection is the collection selected by the flags
type collection = store.Collection[util.Document, *util.Document]

var (
	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:               "doc",
		Short:             "Perform document operations on a collection",
		PersistentPreRunE: util.PrepareCommand,
	}
)

func init() {
	// Add store and collection flags to the doc command
	util.SetupStoreFlags(DocumentCommands)
	util.SetupCollectionFlags(DocumentCommands)

	// Add subcommands
	DocumentCommands.AddCommand(putCmd)
	DocumentCommands.AddCommand(getCmd)
	DocumentCommands.AddCommand(listCmd)
	DocumentCommands.AddCommand(rmCmd)
	DocumentCommands.AddCommand(clearCmd)
	DocumentCommands.AddCommand(countCmd)
}

// withCollection opens the selected collection, runs fn and shuts the store
// down afterwards, also if fn fails. For the maple engine the shutdown writes
// the snapshots, so changes made before a failure are kept.
func withCollection(fn func(cmd *cobra.Command, args []string, c *collection) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		server, c, err := util.OpenCollection(nil)
		if err != nil {
			return err
		}
		defer func() {
			if shutdownErr := server.Shutdown(); err == nil {
				err = shutdownErr
			}
		}()

		return fn(cmd, args, c)
	}
}
