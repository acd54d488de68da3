package admin

import (
	"os"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runStats(_ *cobra.Command, _ []string) (err error) {
	server, collection, err := util.OpenCollection(nil)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := server.Shutdown(); err == nil {
			err = shutdownErr
		}
	}()

	if viper.GetBool("read-all") {
		docs, err := collection.FindAll()
		if err != nil {
			return err
		}
		for range docs {
		}
		if _, err := collection.Count(); err != nil {
			return err
		}
	}

	server.WriteMetrics(os.Stdout)
	if viper.GetBool("process") {
		metrics.WriteProcessMetrics(os.Stdout)
	}
	return nil
}
