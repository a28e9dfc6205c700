package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ozonedb/ozone/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for a local database",
		Long:    "",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	KeyValueCommands.PersistentFlags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	KeyValueCommands.PersistentFlags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	KeyValueCommands.PersistentFlags().Int(key, 1000, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	KeyValueCommands.PersistentFlags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for a local database")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Dir: %s\n", viper.GetString("dir"))
	fmt.Printf("Zones: %d x %d workers\n", viper.GetInt("zones"), viper.GetInt("workers"))
	fmt.Printf("Schemes: %s/%s/%s/%s\n", viper.GetString("key-hash"), viper.GetString("checksum"),
		viper.GetString("sign"), viper.GetString("encrypt"))
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	putResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("put")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				err := database.Delete([]byte(k))
				if err != nil {
					log.Printf("(put) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				err := database.Put([]byte(getKey(counter)), []byte("test"))
				if err != nil {
					log.Printf("(put) - error putting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["put"] = putResult
	printResult("put", putResult)

	putLargeValueResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put-large") {
			return
		}

		// prepare large value
		largeValue := make([]byte, perfLargeValueSizeKB*1024)

		// prepare keys
		getKey, iter := getKeys("put-large")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				err := database.Delete([]byte(k))
				if err != nil {
					log.Printf("(put-large) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				err := database.Put([]byte(getKey(counter)), largeValue)
				if err != nil {
					log.Printf("(put-large) - error putting key: %v", err)
				}
				counter++
			}
		})
	})

	results["put-large"] = putLargeValueResult
	printResult("put-large", putLargeValueResult)

	getResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("get")

		// put keys
		iter(func(k string) {
			err := database.Put([]byte(k), []byte("test"))
			if err != nil {
				log.Printf("(get) - error putting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				err := database.Delete([]byte(k))
				if err != nil {
					log.Printf("(get) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				_, err := database.Get([]byte(getKey(counter)))
				if err != nil {
					log.Printf("(get) - error getting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["get"] = getResult
	printResult("get", getResult)

	hasResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("has") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("has")

		// put keys
		iter(func(k string) {
			err := database.Put([]byte(k), []byte("test"))
			if err != nil {
				log.Printf("(has) - error putting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				err := database.Delete([]byte(k))
				if err != nil {
					log.Printf("(has) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				_, err := database.Has([]byte(getKey(counter)))
				if err != nil {
					log.Printf("(has) - error checking key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["has"] = hasResult
	printResult("has", hasResult)

	mixedUsageResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("mixed")

		// put keys
		iter(func(k string) {
			err := database.Put([]byte(k), []byte("test"))
			if err != nil {
				log.Printf("(mixed) - error putting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				err := database.Delete([]byte(k))
				if err != nil {
					log.Printf("(mixed) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := []byte(getKey(counter))
				var err error
				switch counter % 4 {
				case 0: // put
					err = database.Put(key, []byte("test"))
				case 1: // get
					_, err = database.Get(key)
					if err != nil {
						err = nil // interleaved deletes make misses expected
					}
				case 2: // delete
					err = database.Delete(key)
				case 3: // has
					_, err = database.Has(key)
				}

				if err != nil {
					log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
				}
				counter++
			}
		})
	})

	results["mixed"] = mixedUsageResult
	printResult("mixed", mixedUsageResult)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Dir", "Zones", "Workers",
		"KeyHash", "Checksum", "Sign", "Encrypt",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			viper.GetString("dir"),
			strconv.Itoa(viper.GetInt("zones")),
			strconv.Itoa(viper.GetInt("workers")),
			viper.GetString("key-hash"),
			viper.GetString("checksum"),
			viper.GetString("sign"),
			viper.GetString("encrypt"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
