// Package main implements the omniquery CLI: a thin cobra front end that
// loads a manifest, wires connectors in-process, and runs a single query
// through the orchestrator without needing omniqueryd running.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/omniquery/internal/config"
)

var (
	manifestPath string
	outputFormat string
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "omniquery",
		Short:   "Query SaaS APIs with SQL",
		Version: Version,
		Long: `omniquery runs a single federated SQL query across configured SaaS
sources (GitHub, Jira, and declarative REST connectors), enforcing the
tenant's row- and column-level security rules, and prints the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&manifestPath, "config", "", "path to omniquery.yaml (default: search upward from cwd)")
	root.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "output format: table, json, csv")

	root.AddCommand(newQueryCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the omniquery version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}

func resolveManifestPath() (string, error) {
	if manifestPath != "" {
		return manifestPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := config.FindProjectRoot(cwd)
	if dir == "" {
		return "", fmt.Errorf("no %s found searching upward from %s", config.ManifestFileName, cwd)
	}
	p := filepath.Join(dir, config.ManifestFileName)
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return filepath.Join(dir, config.ManifestFileNameAlt), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
