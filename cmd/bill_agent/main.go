// Package main provides the entry point for the bill_agent CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bill_agent",
	Short: "Download electricity bills from the Maharashtra and Madhya Pradesh portals",
	Long: `bill_agent logs in to the utility portals with the accounts stored in PostgreSQL and saves
each account's bill as a PDF named after the consumer.

Configuration can be loaded from a JSON file using --config. Command-line flags override config
file values; DATABASE_URL, CAPTCHA_API_KEY, CHROME_PATH and TESSERACT_PATH fill what both leave empty.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	flags.StringVar(&opts.databaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&opts.headless, "headless", true, "Run Chrome without a window")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Print every CAPTCHA attempt and enable debug logging")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
