// Command cdmconvert converts a hospital standard-charges CSV into the JSON
// resources the price lookup service and its static front-end load.
package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/robbie-med/Sjprice/chargemaster"
	"github.com/robbie-med/Sjprice/logging"
)

type options struct {
	input     string
	outDir    string
	chunkSize int
	logLevel  string
}

var opts options

var rootCmd = &cobra.Command{
	Use:          "cdmconvert",
	Short:        "Hospital standard charges CSV → base.json, payer files and payers.json",
	Long:         "Reads a hospital standard-charges CSV, deduplicates items by description and first code, and writes the item catalog plus one sparse negotiated-rate file per payer.",
	SilenceUsage: true,
	RunE:         runConvert,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.input, "input", "", "Path to the standard charges CSV (required)")
	f.StringVar(&opts.outDir, "out", "data", "Output directory")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "Split the catalog into chunks of this many items (0 writes a single base.json)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	_ = rootCmd.MarkFlagRequired("input")
}

func runConvert(cmd *cobra.Command, args []string) error {
	// Published resources carry amounts as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
	logging.InitLoggerWithOptions(logging.Options{Level: opts.logLevel})

	file, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.input, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("Failed to close input file", "error", err)
		}
	}()

	res, err := chargemaster.Read(file)
	if err != nil {
		return err
	}

	sum, err := chargemaster.Write(opts.outDir, res, chargemaster.WriteOptions{ChunkSize: opts.chunkSize})
	if err != nil {
		return err
	}

	fmt.Printf("Converted %d rows: %d items, %d payers, %d files (%.1f MB) in %s\n",
		res.Rows, len(res.Catalog.Items), len(res.Payers), len(sum.Files),
		float64(sum.TotalBytes)/1024/1024, opts.outDir)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
