// Package cli implements the interactive console for parklink.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/db"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
)

const defaultHistoryRows = 20

// SessionSource hands out the client of the running session.
type SessionSource interface {
	Current() *client.Client
	Reconnect()
}

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	sessions SessionSource
	history  *db.HistoryStore

	in  io.Reader
	out io.Writer
}

// NewCLI creates a new CLI handler reading commands from in. history may be nil.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, sessions SessionSource, history *db.HistoryStore, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: sessions,
		history:  history,
		in:       in,
		out:      out,
	}
}

// Start runs the command loop until ctx is cancelled or input ends.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nparklink console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("CLI input closed")
		}
	}()

	for {
		fmt.Fprint(c.out, "parklink> ")

		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:]); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		return c.printStatus()
	case "players", "who":
		return c.printPlayers()
	case "say":
		return c.cmdSay(args)
	case "info":
		return c.cmdInfo(ctx)
	case "history":
		return c.cmdHistory(ctx, args)
	case "reconnect":
		c.sessions.Reconnect()
		fmt.Fprintln(c.out, "Reconnection initiated")
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down parklink...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
  status              Show the session state
  players             List players on the server
  say <message>       Send a chat message
  info                Request and show the server info document
  history chat [n]    Show the last n chat lines
  history players [name] [n]
                      Show recent joins and leaves
  reconnect           Drop the session and connect again
  setconfig <k> <v>   Update a server setting and save it
  quit                Shut down parklink
  help                Show this help message`)
	fmt.Fprintln(c.out)
}

func (c *CLI) printStatus() error {
	cl := c.sessions.Current()
	if cl == nil {
		fmt.Fprintln(c.out, "No session yet")
		return nil
	}

	fmt.Fprintf(c.out, "\n  Session:      %s\n", cl.SessionID())
	fmt.Fprintf(c.out, "  State:        %s\n", cl.State())
	fmt.Fprintf(c.out, "  Remote:       %s\n", orDash(cl.RemoteAddr()))
	fmt.Fprintf(c.out, "  Auth:         %s (%s)\n", cl.AuthState(), cl.AuthStatus())
	if cl.AuthState() == client.Authenticated {
		fmt.Fprintf(c.out, "  Player ID:    %d\n", cl.PlayerID())
	}
	fmt.Fprintf(c.out, "  Players:      %d\n", len(cl.Players()))
	if ping := cl.LastPing(); !ping.IsZero() {
		fmt.Fprintf(c.out, "  Last ping:    %s ago\n", time.Since(ping).Round(time.Millisecond))
	}
	if reason := cl.DisconnectReason(); reason != "" {
		fmt.Fprintf(c.out, "  Disconnect:   %s\n", reason)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *CLI) printPlayers() error {
	cl, err := c.connected()
	if err != nil {
		return err
	}

	players := cl.Players()
	if players == nil {
		fmt.Fprintln(c.out, "No player list received yet")
		return nil
	}

	tw := c.table([]string{"ID", "Name", "Group", "Flags"})
	for _, p := range players {
		tw.Append([]string{
			strconv.Itoa(int(p.ID)),
			p.Name,
			strconv.Itoa(int(p.Group)),
			fmt.Sprintf("0x%02x", p.Flags),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdSay(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: say <message>")
	}
	cl, err := c.connected()
	if err != nil {
		return err
	}

	message := strings.Join(args, " ")
	if err := cl.SendChat(message); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sent: %s\n", message)
	return nil
}

func (c *CLI) cmdInfo(ctx context.Context) error {
	cl, err := c.connected()
	if err != nil {
		return err
	}

	doc, err := cl.RequestServerInfo(ctx)
	if err != nil {
		return err
	}

	info, err := protocol.ParseServerInfo(doc)
	if err != nil {
		// Not JSON we understand; show it as received.
		fmt.Fprintln(c.out, doc)
		return nil
	}

	fmt.Fprintf(c.out, "\n  Name:         %s\n", info.Name)
	fmt.Fprintf(c.out, "  Description:  %s\n", orDash(info.Description))
	fmt.Fprintf(c.out, "  Version:      %s\n", orDash(info.Version))
	fmt.Fprintf(c.out, "  Players:      %d/%d\n", info.Players, info.MaxPlayers)
	fmt.Fprintf(c.out, "  Password:     %v\n", info.RequiresPassword)
	if info.Provider.Name != "" {
		fmt.Fprintf(c.out, "  Provider:     %s\n", info.Provider.Name)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *CLI) cmdHistory(ctx context.Context, args []string) error {
	if c.history == nil {
		return fmt.Errorf("history is disabled")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: history chat [n] | history players [name] [n]")
	}

	switch args[0] {
	case "chat":
		limit, err := parseLimit(args[1:])
		if err != nil {
			return err
		}
		records, err := c.history.RecentChat(ctx, limit)
		if err != nil {
			return err
		}
		tw := c.table([]string{"Time", "Message"})
		for _, r := range records {
			tw.Append([]string{r.ReceivedAt.Local().Format(time.DateTime), r.Message})
		}
		tw.Render()

	case "players":
		rest := args[1:]
		name := ""
		if len(rest) > 0 {
			if _, err := strconv.Atoi(rest[0]); err != nil {
				name = rest[0]
				rest = rest[1:]
			}
		}
		limit, err := parseLimit(rest)
		if err != nil {
			return err
		}
		records, err := c.history.RecentSightings(ctx, name, limit)
		if err != nil {
			return err
		}
		tw := c.table([]string{"Time", "Player", "ID", "Event"})
		for _, r := range records {
			tw.Append([]string{r.At.Local().Format(time.DateTime), r.Name, strconv.Itoa(int(r.PlayerID)), r.Kind})
		}
		tw.Render()

	default:
		return fmt.Errorf("unknown history table %q", args[0])
	}
	return nil
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	raw := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateServerField(key, raw); err != nil {
		return err
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config updated: %s = %s (applies on next reconnect)\n", key, raw)
	return nil
}

func (c *CLI) connected() (*client.Client, error) {
	cl := c.sessions.Current()
	if cl == nil || !cl.Connected() {
		return nil, errors.New("not connected to a server")
	}
	return cl, nil
}

func (c *CLI) table(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func parseLimit(args []string) (int, error) {
	if len(args) == 0 {
		return defaultHistoryRows, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid count: %s", args[0])
	}
	return n, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
