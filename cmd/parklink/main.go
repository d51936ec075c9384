// parklink joins a park server as a lightweight client, keeps the session
// alive, and relays chat and roster changes to a REST API, a WebSocket
// stream, MQTT, a Discord webhook and a local history database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parklink-project/parklink/internal/api"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

const banner = `
                 _    _ _       _    
  _ __  __ _ _ _| |__| (_)_ __ | | __
 | '_ \/ _' | '_| / /| | | '_ \| |/ /
 | .__/\__,_|_| |_\_\|_|_|_| |_|_|\_\
 |_|                            v%s
`

func main() {
	api.Version = version

	rootCmd := &cobra.Command{
		Use:   "parklink",
		Short: "Headless client for park multiplayer servers",
		Long: `parklink joins a park server and keeps the session alive.

Chat, roster changes and session state are exposed through a REST API
and WebSocket stream, published to MQTT, relayed to a Discord webhook
and recorded in a local history database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		infoCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parklink %s (%s)\n", version, commit)
		},
	}
}
