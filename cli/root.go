package cli

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "eps-server",
	Short: "Content-addressed dataset cache and dynamic query server",
	Long: `eps-server ingests delimited and spreadsheet files into a
content-addressed parquet cache and exposes them for filtered,
paginated queries and first-match joins over an embedded columnar
engine.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "eps-server.yml", "configuration file")
}
