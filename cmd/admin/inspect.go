package admin

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/spf13/cobra"
)

func runInspect(_ *cobra.Command, _ []string) (err error) {
	var (
		mu      sync.Mutex
		skipped []store.SkipReport
	)
	onSkip := func(r store.SkipReport) {
		mu.Lock()
		skipped = append(skipped, r)
		mu.Unlock()
	}

	server, collection, err := util.OpenCollection(onSkip)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := server.Shutdown(); err == nil {
			err = shutdownErr
		}
	}()

	for _, r := range skipped {
		fmt.Printf("skipped %s/%s/%s: %v\n", r.Database, r.Collection, r.Key, r.Reason)
	}

	info, err := collection.Info()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return err
	}

	if len(skipped) > 0 {
		return fmt.Errorf("%d unit(s) could not be read", len(skipped))
	}
	return nil
}
