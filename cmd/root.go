package cmd

import (
	"fmt"
	"log"
	"os"

	"SceneCast/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scenecast_server",
	Short: "SceneCast is a scene-sequenced media playback service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting SceneCast server...")
		// server.Start now handles its own port and logging for startup.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
