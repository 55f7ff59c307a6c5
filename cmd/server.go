package cmd

import (
	"ZenMix/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动ZenMix服务器",
	Long:  `启动ZenMix环境音混音系统的HTTP服务器，提供音色库、调音台与混音存取API`,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func runServer() {
	server.Start()
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
