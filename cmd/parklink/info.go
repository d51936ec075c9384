package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/protocol"
)

func infoCmd() *cobra.Command {
	var (
		timeout time.Duration
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "info <host> [port]",
		Short: "Query a server's info document and exit",
		Long: `Connect to a server, request its info document and print it.

No authentication is performed. Examples:
  parklink info park.example.com
  parklink info 10.0.0.5 11800 --raw`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port := protocol.DefaultPort
			if len(args) == 2 {
				p, err := strconv.Atoi(args[1])
				if err != nil || p < 1 || p > 65535 {
					return fmt.Errorf("invalid port: %s", args[1])
				}
				port = p
			}
			return runInfo(cmd.Context(), args[0], port, timeout, raw)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "How long to wait for the server")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the document exactly as received")

	return cmd
}

func runInfo(ctx context.Context, host string, port int, timeout time.Duration, raw bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cc := config.DefaultClientConfig()
	cc.DialTimeoutMS = int(timeout.Milliseconds())
	cc.RequestTimeoutMS = int(timeout.Milliseconds())

	c := client.New(cc, nil)
	defer c.Close()

	if err := c.Connect(ctx, host, port); err != nil {
		return err
	}

	doc, err := c.RequestServerInfo(ctx)
	if err != nil {
		return fmt.Errorf("server info request failed: %w", err)
	}

	if raw {
		fmt.Println(doc)
		return nil
	}

	info, err := protocol.ParseServerInfo(doc)
	if err != nil {
		fmt.Println(doc)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
