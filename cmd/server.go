package cmd

import (
	"SceneCast/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动SceneCast服务器",
	Long:  `启动SceneCast播放系统的HTTP服务器，提供演示文稿管理API与观看会话WebSocket服务`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
