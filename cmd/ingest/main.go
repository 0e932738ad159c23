// Package main 是批次匯入食譜的命令列工具
package main

import (
	"errors"
	"fmt"
	"os"

	"recipe-ingest/internal/pkg/common"

	"github.com/spf13/cobra"
)

// 結束碼
const (
	exitOK          = 0
	exitItemErrors  = 1
	exitConfigError = 2
)

var (
	dryRun     bool
	showStats  bool
	outputPath string
	workers    int
)

var rootCmd = &cobra.Command{
	Use:   "ingest <input.json>",
	Short: "Generate, validate and store a batch of recipes",
	Long: `ingest reads a batch document, generates each recipe with the configured
language models, validates it, resolves its ingredients and utensils and
stores everything.

Examples:
  ingest recettes.json                      # Run the batch
  ingest recettes.json --dry-run            # Generate and validate only
  ingest recettes.json --stats -o out.json  # Print audit counts and write the report
  ingest recettes.json --workers 4          # Process four items at a time`,
	Args:          cobra.ExactArgs(1),
	RunE:          runIngest,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Generate and validate without writing to the store")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "Print audit statistics after the run")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the JSON report to this path")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "Items processed concurrently (default from config)")
}

// errItemsFailed 批次完成但至少一個項目失敗
var errItemsFailed = errors.New("one or more items failed")

// exitCode 依錯誤種類決定結束碼
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, common.ErrConfiguration):
		return exitConfigError
	default:
		return exitItemErrors
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errItemsFailed) {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
	}
	common.Sync()
	os.Exit(exitCode(err))
}
