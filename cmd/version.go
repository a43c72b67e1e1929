package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/penwyp/tokencat/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tokencat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tokencat %s\n", config.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
