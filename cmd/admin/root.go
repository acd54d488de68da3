package admin

import (
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/spf13/cobra"
)

var (
	// InspectCmd runs the recovery scan of a collection and reports skipped units
	InspectCmd = &cobra.Command{
		Use:               "inspect",
		Short:             "Check a collection for units that can not be read",
		Long:              `Opens a collection, which decodes every stored unit once, and prints every unit that was skipped together with the reason. Afterwards the collection information is printed as JSON. The command fails if at least one unit was skipped.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: util.PrepareCommand,
		RunE:              runInspect,
	}

	// StatsCmd opens a collection and prints the metrics of the store
	StatsCmd = &cobra.Command{
		Use:               "stats",
		Short:             "Print store metrics in Prometheus text format",
		Long:              `Opens a collection, optionally reads all of its documents, and prints the metrics of the store in Prometheus text format.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: util.PrepareCommand,
		RunE:              runStats,
	}
)

func init() {
	for _, cmd := range []*cobra.Command{InspectCmd, StatsCmd} {
		util.SetupStoreFlags(cmd)
		util.SetupCollectionFlags(cmd)
	}

	key := "read-all"
	StatsCmd.Flags().Bool(key, false, util.WrapString("Read every document once before the metrics are printed"))
	key = "process"
	StatsCmd.Flags().Bool(key, false, util.WrapString("Include process metrics (memory, cpu, file descriptors)"))
}
