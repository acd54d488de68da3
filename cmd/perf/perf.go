package perf

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/ValentinKolb/dDoc/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

var (
	// PerfCmd runs the performance tests
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for the document store",
		Long: `Runs concurrent benchmarks of Save, FindOneById, FindAll and Remove against a
collection of the configured store. The collection is cleared before and after each test.`,
		PersistentPreRunE: util.PrepareCommand,
		PreRunE:           processPerfConfig,
		RunE:              run,
	}
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfDocSpread        = 100
	perfRate             = 0
	perfSkip             = make([]string, 0)

	registry   = gometrics.NewRegistry()
	limiter    *rate.Limiter
	collection *store.Collection[util.Document, *util.Document]
)

// result is the outcome of one test
type result struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func init() {
	util.SetupStoreFlags(PerfCmd)
	util.SetupCollectionFlags(PerfCmd)

	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. save,find-one)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How large the data of the save-large test should be (in KB)"))
	key = "docs"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many different documents to use for the tests"))
	key = "rate"
	PerfCmd.Flags().Int(key, 0, util.WrapString("Upper bound of operations per second across all threads (0 = unlimited)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfDocSpread = viper.GetInt("docs")
	perfNumThreads = viper.GetInt("threads")
	perfRate = viper.GetInt("rate")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfDocSpread <= 0 {
		return fmt.Errorf("docs must be positive (got %d)", perfDocSpread)
	}
	if perfRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(perfRate), perfNumThreads)
	}
	return nil
}

func run(_ *cobra.Command, _ []string) (err error) {
	conf, err := util.GetStoreConfig()
	if err != nil {
		return err
	}

	fmt.Println("Performance testing tool for the document store")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	if perfRate > 0 {
		fmt.Printf("Rate limit: %d ops/sec\n", perfRate)
	}
	fmt.Println()

	var server *store.Server
	server, collection, err = util.OpenCollection(nil)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := server.Shutdown(); err == nil {
			err = shutdownErr
		}
	}()

	if err := collection.RemoveAll(); err != nil {
		return err
	}

	fmt.Println("starting tests...")

	largeData, err := json.Marshal(strings.Repeat("x", perfLargeValueSizeKB*1024))
	if err != nil {
		return err
	}

	tests := []struct {
		name    string
		prepare bool
		op      func(timer gometrics.Timer, id objectid.ID) error
	}{
		{"save", false, func(timer gometrics.Timer, id objectid.ID) error {
			return timed(timer, func() error {
				_, err := collection.Save(newDocument(id, smallData))
				return err
			})
		}},
		{"save-large", false, func(timer gometrics.Timer, id objectid.ID) error {
			return timed(timer, func() error {
				_, err := collection.Save(newDocument(id, largeData))
				return err
			})
		}},
		{"find-one", true, func(timer gometrics.Timer, id objectid.ID) error {
			return timed(timer, func() error {
				_, _, err := collection.FindOneById(id)
				return err
			})
		}},
		{"find-one-not", false, func(timer gometrics.Timer, id objectid.ID) error {
			return timed(timer, func() error {
				_, _, err := collection.FindOneById(id)
				return err
			})
		}},
		{"find-all", true, func(timer gometrics.Timer, _ objectid.ID) error {
			return timed(timer, func() error {
				docs, err := collection.FindAll()
				if err != nil {
					return err
				}
				for range docs {
				}
				return nil
			})
		}},
		{"remove", true, func(timer gometrics.Timer, id objectid.ID) error {
			return timed(timer, func() error {
				return collection.Remove(id)
			})
		}},
		{"mixed", true, func(timer gometrics.Timer, id objectid.ID) error {
			return timed(timer, func() error {
				var err error
				switch id[len(id)-1] % 4 {
				case 0: // save
					_, err = collection.Save(newDocument(id, smallData))
				case 1: // find one
					_, _, err = collection.FindOneById(id)
				case 2: // remove
					err = collection.Remove(id)
				case 3: // count
					_, err = collection.Count()
				}
				return err
			})
		}},
	}

	// Create results map
	results := make(map[string]result)

	for _, test := range tests {
		if shouldSkip(test.name) {
			printResult(test.name, result{})
			continue
		}

		timer := gometrics.GetOrRegisterTimer(test.name, registry)
		ids := getIDs()

		bench := testing.Benchmark(func(b *testing.B) {
			if test.prepare {
				for _, id := range ids {
					if _, err := collection.Save(newDocument(id, smallData)); err != nil {
						util.Logger.Errorf("(%s) - error preparing document: %v", test.name, err)
					}
				}
			}

			// cleanup
			b.Cleanup(func() {
				if err := collection.RemoveAll(); err != nil {
					util.Logger.Errorf("(%s) - error removing documents: %v", test.name, err)
				}
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if limiter != nil {
						_ = limiter.Wait(context.Background())
					}
					if err := test.op(timer, ids[counter%len(ids)]); err != nil {
						util.Logger.Errorf("(%s) - error: %v", test.name, err)
					}
					counter++
				}
			})
		})

		results[test.name] = result{bench: bench, timer: timer}
		printResult(test.name, results[test.name])
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, conf); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var smallData = json.RawMessage(`{"name":"test","legs":4}`)

func newDocument(id objectid.ID, data json.RawMessage) util.Document {
	return util.Document{ID: id, Data: data}
}

// timed runs op and records its latency in timer
func timed(timer gometrics.Timer, op func() error) error {
	start := time.Now()
	err := op()
	timer.UpdateSince(start)
	return err
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getIDs creates the identifiers of the test documents
func getIDs() []objectid.ID {
	ids := make([]objectid.ID, perfDocSpread)
	for i := range ids {
		ids[i] = objectid.New()
	}
	return ids
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, r result) {
	if r.bench.NsPerOp() == 0 || r.timer == nil {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(r.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	ps := r.timer.Percentiles([]float64{0.5, 0.99})

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50 %s\tp99 %s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, time.Duration(ps[0]), time.Duration(ps[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]result, conf common.StoreConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Skipped",
		"Engine", "SyncWrites", "Serializer", "Compression",
		"Threads", "RateLimit", "LargeValueSizeKB", "Docs Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, r := range results {
		var nsPerOp, opsPerSec, p50, p99 float64
		skipped := "true"

		if r.bench.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(r.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			ps := r.timer.Percentiles([]float64{0.5, 0.99})
			p50, p99 = ps[0], ps[1]
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", p50),
			fmt.Sprintf("%.0f", p99),
			skipped,
			conf.Engine,
			strconv.FormatBool(conf.SyncWrites),
			conf.Serializer,
			conf.Compression,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfRate),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfDocSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
