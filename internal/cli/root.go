package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/daybook/internal/client"
)

var (
	serverURL string
	apiToken  string
)

var rootCmd = &cobra.Command{
	Use:          "daybook",
	Short:        "Per-day activity, variable and note journal",
	Long:         "Daybook records what you did each day: timed activities, named variable readings and a note, served over an HTTP API.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DAYBOOK_URL", client.DefaultServerURL), "daybook server URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("DAYBOOK_TOKEN"), "bearer token for the API")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rangeCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	return client.New(serverURL, apiToken)
}
