package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/tessera-dev/tessera/internal/rpc"
	agentrpc "github.com/tessera-dev/tessera/internal/rpc/agent"
	"github.com/tessera-dev/tessera/internal/rpc/connectjson"
)

// NewRunCmd sends one task to the daemon and streams events to stdout.
func NewRunCmd(opts *Options) *cobra.Command {
	var sessionID string
	var preset string
	var useRetrieval bool
	var useWebSearch bool
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "run \"<task>\"",
		Short: "Send a task to the daemon and stream agent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			query := args[0]
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("task cannot be empty")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if sessionID == "" {
				sessionID = fmt.Sprintf("cli-%d", time.Now().UnixNano())
			}

			reqBody := rpc.RunTaskRequest{
				SessionID:     sessionID,
				CorrelationID: fmt.Sprintf("%s-%d", sessionID, time.Now().UnixNano()),
				Query:         query,
				Preset:        preset,
				UseRetrieval:  useRetrieval,
				UseWebSearch:  useWebSearch,
				MaxIterations: maxIterations,
			}

			baseURL := daemonURL(cfg.Server.Addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson", "ws":
				return runNDJSON(ctx, cmd, baseURL+"/agent/run", reqBody)
			default:
				return runConnect(ctx, cmd, baseURL+agentrpc.ConnectRunTaskProcedure, reqBody)
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to continue a previous conversation")
	cmd.Flags().StringVar(&preset, "preset", "", "Model preset for this run")
	cmd.Flags().BoolVar(&useRetrieval, "retrieval", false, "Retrieve workspace context before the first model call")
	cmd.Flags().BoolVar(&useWebSearch, "web-search", false, "Allow the web_search tool for this run")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override the iteration cap for this run")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.RunTaskRequest) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.RunTaskEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.RunTaskRequest) error {
	client := connect.NewClient[rpc.RunTaskStreamRequest, rpc.RunTaskEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.RunTaskStreamRequest{Run: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.RunTaskStreamRequest{Cancel: true, SessionID: reqBody.SessionID, CorrelationID: reqBody.CorrelationID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.RunTaskEvent) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "state":
		fmt.Fprintf(out, "[state] %s\n", evt.State)
	case "thought":
		fmt.Fprintf(out, "[thought] %s\n", evt.Content)
	case "action":
		fmt.Fprintf(out, "[action] %s\n", evt.Content)
	case "observation":
		fmt.Fprintf(out, "[observation %d] %s\n", evt.StepNumber, evt.Content)
	case "context":
		fmt.Fprintf(out, "[context]\n%s\n", evt.Content)
	case "diff_preview":
		if evt.Diff != nil {
			added, removed := evt.Diff.Stats()
			fmt.Fprintf(out, "[diff %s %s +%d -%d]\n", evt.Diff.FilePath, evt.Diff.ChangeType, added, removed)
			for _, line := range evt.Diff.DiffLines {
				marker := " "
				switch line.Type {
				case "add":
					marker = "+"
				case "remove":
					marker = "-"
				}
				fmt.Fprintf(out, "%s %s\n", marker, line.Content)
			}
		}
	case "answer":
		fmt.Fprintf(out, "\n%s\n", evt.Content)
	case "cancelled":
		fmt.Fprintln(out, "[cancelled]")
	case "error":
		return fmt.Errorf("agent error: %s", evt.Content)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
