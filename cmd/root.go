package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dDoc/cmd/admin"
	"github.com/ValentinKolb/dDoc/cmd/docs"
	"github.com/ValentinKolb/dDoc/cmd/perf"
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ddoc",
		Short: "embedded document store",
		Long: fmt.Sprintf(`dDoc (v%s)

An embedded document store library written in Go. Documents are grouped into
collections and databases and stored one file per document below a root directory.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dDoc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dDoc v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(docs.DocumentCommands)
	RootCmd.AddCommand(admin.InspectCmd)
	RootCmd.AddCommand(admin.StatsCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
