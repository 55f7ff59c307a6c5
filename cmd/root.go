package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zenmix",
	Short: "ZenMix is an ambient sound mixing service.",
	Run: func(cmd *cobra.Command, args []string) {
		// 不带子命令时直接启动服务器
		runServer()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
