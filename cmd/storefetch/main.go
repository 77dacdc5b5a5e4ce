// Command storefetch runs the storefront resource controllers outside a
// browser: one-shot fetches, a long-running refresher with metrics, and a
// view of the generation counters shared through Redis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "storefetch"

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Fetch storefront resources through resilient controllers",
		Long: `storefetch drives one fetch controller per configured resource
(products, brands, categories, free-form tables) against the storefront data
service. Failed refreshes retry with backoff and fall back to cached data.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "storefetch.yaml", "config file")
	cmd.PersistentFlags().StringVar(&g.envFile, "env", ".env", "dotenv file loaded before the config (skipped if missing)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(fetchCmd(g), watchCmd(g), statusCmd(g))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}
