package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Webcam face recognition against a whitelist of known people",
	Long: `Facegate captures frames from a webcam, detects faces using a local
detection model server, embeds them with a local embedding model server and
recognizes each face against a whitelist of per-person prototype embeddings.

Build the whitelist from a dataset of per-person photos first, then run
"facegate detect" to recognize whoever is in front of the camera.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
