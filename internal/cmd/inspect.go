package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/lieberdev/hostd/internal/http"
	"github.com/lieberdev/hostd/internal/task"
	"github.com/spf13/cobra"
)

var inspectPort int

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print every request received and answer with an empty 200",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg := cfg.Server
			if cmd.Flags().Changed("port") {
				srvCfg.Port = inspectPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd.OutOrStdout(), srvCfg, inspectHandler(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().IntVarP(&inspectPort, "port", "p", 0, "Port to bind (overrides config)")
	return cmd
}

// inspectHandler prints each request to out. Concurrent requests are
// printed one at a time.
func inspectHandler(out io.Writer) http.Handler {
	var mu sync.Mutex
	return func(req *http.Request, res *http.Response) task.Task[*http.Response] {
		mu.Lock()
		fmt.Fprint(out, formatRequest(req))
		mu.Unlock()
		return http.Respond(http.StatusOK, []http.Header{{Name: "Content-Length", Value: "0"}}, nil, res)
	}
}

func formatRequest(req *http.Request) string {
	title := color.New(color.FgCyan, color.Bold).SprintFunc()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s #%d\n", title("Request"), req.ConnID)
	fmt.Fprintf(&sb, "- Method: %s\n", req.Method)
	fmt.Fprintf(&sb, "- URL: %s\n", req.URL())
	fmt.Fprintf(&sb, "- Version: %s\n", req.Proto)
	fmt.Fprintf(&sb, "%s\n", title("Headers:"))
	for _, h := range req.Headers {
		fmt.Fprintf(&sb, "- %s: %s\n", h.Name, h.Value)
	}
	fmt.Fprintf(&sb, "%s (%d bytes)\n", title("Body:"), len(req.Body))
	if len(req.Body) > 0 {
		if utf8.Valid(req.Body) {
			sb.Write(req.Body)
			sb.WriteString("\n")
		} else {
			fmt.Fprintf(&sb, "%x\n", req.Body)
		}
	}
	return sb.String()
}
