// Command consolectl is the operator client for consoled: it attaches
// to a server's live console, tails history, and watches resource
// stats from a terminal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	flagHost  string
	flagToken string
	flagUser  string
)

var severityStyles = map[string]lipgloss.Style{
	"ERROR":   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	"WARN":    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"DEBUG":   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	"SUCCESS": lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	"COMMAND": lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
	"INFO":    lipgloss.NewStyle(),
}

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

func main() {
	root := &cobra.Command{
		Use:           "consolectl",
		Short:         "Client for the game console streaming daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagHost, "host", "localhost:9757", "consoled host:port")
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("CONSOLE_TOKEN"), "access token")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "user id for console authorization")

	root.AddCommand(attachCmd(), statsCmd(), historyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <server-id>",
		Short: "Attach to a server's live console; stdin lines are sent as commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context(), args[0])
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <server-id>",
		Short: "Watch a server's resource usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), args[0])
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <server-id>",
		Short: "Print recent console history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "number of lines")
	return cmd
}

func wsURL(path, serverID string) string {
	u := url.URL{Scheme: "ws", Host: flagHost, Path: path + serverID}
	q := u.Query()
	if flagToken != "" {
		q.Set("token", flagToken)
	}
	if flagUser != "" {
		q.Set("user", flagUser)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func dial(ctx context.Context, path, serverID string) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL(path, serverID), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect %s: %s", flagHost, resp.Status)
		}
		return nil, fmt.Errorf("connect %s: %w", flagHost, err)
	}
	return conn, nil
}

type serverFrame struct {
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	LogLevel  string          `json:"log_level"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func runAttach(ctx context.Context, serverID string) error {
	conn, err := dial(ctx, "/ws/console/", serverID)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println(dimStyle.Render("attached to " + serverID + ", type commands below"))

	// stdin lines become commands
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			msg := map[string]string{"type": "command", "command": line}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var f serverFrame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection closed: %w", err)
		}
		printFrame(f)
	}
}

func printFrame(f serverFrame) {
	switch f.Type {
	case "log":
		style, ok := severityStyles[f.LogLevel]
		if !ok {
			style = severityStyles["INFO"]
		}
		ts := f.Timestamp
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ts = parsed.Local().Format("15:04:05")
		}
		fmt.Printf("%s %s\n", dimStyle.Render(ts), style.Render(f.Message))
	case "info":
		fmt.Println(dimStyle.Render("* " + f.Message))
	case "error":
		fmt.Println(severityStyles["ERROR"].Render("! " + f.Message))
	}
}

func runStats(ctx context.Context, serverID string) error {
	conn, err := dial(ctx, "/ws/stats/", serverID)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var f serverFrame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection closed: %w", err)
		}
		if f.Type != "stats" {
			continue
		}

		var s struct {
			CPUPercent    float64 `json:"cpu_percent"`
			MemoryMB      float64 `json:"memory_mb"`
			MemoryLimitMB float64 `json:"memory_limit_mb"`
			MemoryPercent float64 `json:"memory_percent"`
			Online        bool    `json:"online"`
		}
		if err := json.Unmarshal(f.Data, &s); err != nil {
			continue
		}

		if !s.Online {
			fmt.Println(dimStyle.Render("offline"))
			continue
		}
		fmt.Printf("cpu %5.1f%%  mem %7.1f MB / %7.1f MB (%4.1f%%)\n",
			s.CPUPercent, s.MemoryMB, s.MemoryLimitMB, s.MemoryPercent)
	}
}

func runHistory(ctx context.Context, serverID string, limit int) error {
	u := url.URL{
		Scheme:   "http",
		Host:     flagHost,
		Path:     "/api/v1/servers/" + serverID + "/logs",
		RawQuery: "limit=" + strconv.Itoa(limit),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if flagToken != "" {
		req.Header.Set("Authorization", "Bearer "+flagToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history request failed: %s", resp.Status)
	}

	var body struct {
		Data []struct {
			Message   string `json:"message"`
			LogLevel  string `json:"log_level"`
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}

	// The API returns newest first; print oldest first for reading.
	for i := len(body.Data) - 1; i >= 0; i-- {
		printFrame(serverFrame{
			Type:      "log",
			Message:   body.Data[i].Message,
			LogLevel:  body.Data[i].LogLevel,
			Timestamp: body.Data[i].Timestamp,
		})
	}
	return nil
}
