package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lieberdev/hostd/internal/config"
	"github.com/lieberdev/hostd/internal/http"
	"github.com/lieberdev/hostd/internal/logging"
	"github.com/lieberdev/hostd/internal/retry"
	"github.com/lieberdev/hostd/internal/task"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	serveHost        string
	servePort        int
	servePortRetries int
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in page and echo program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg := cfg.Server
			if cmd.Flags().Changed("host") {
				srvCfg.Host = serveHost
			}
			if cmd.Flags().Changed("port") {
				srvCfg.Port = servePort
			}
			if cmd.Flags().Changed("port-retries") {
				srvCfg.PortRetries = servePortRetries
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd.OutOrStdout(), srvCfg, pageHandler)
		},
	}

	cmd.Flags().StringVar(&serveHost, "host", "", "Host to bind (overrides config)")
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to bind (overrides config)")
	cmd.Flags().IntVar(&servePortRetries, "port-retries", 0, "Try the next N ports when the port is in use")
	return cmd
}

// serve runs handler until ctx is done, then shuts the server down.
func serve(ctx context.Context, out io.Writer, srvCfg config.ServerConfig, handler http.Handler) error {
	log := logging.WithComponent("cmd")
	httpLog := logging.WithComponent("http")
	opts := serverOptions(srvCfg, &httpLog)

	srv, err := createWithRetry(ctx, srvCfg.Host, srvCfg.Port, srvCfg.PortRetries, opts)
	if err != nil {
		var se *http.ServerError
		if errors.As(err, &se) {
			log.Error().Str("code", se.Code).Str("message", se.Message).Msg("Failed to start server")
		}
		return fmt.Errorf("failed to start server: %w", err)
	}
	srv.AddListener(handler)

	color.New(color.FgGreen, color.Bold).Fprintf(out, "Listening on http://%s\n", srv.Addr())
	log.Info().Str("address", srv.Addr().String()).Msg("Server started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.GracePeriod+time.Second)
	defer cancel()
	srv.RemoveAllListeners()
	if err := srv.Close(shutdownCtx); err != nil {
		return fmt.Errorf("failed to close server: %w", err)
	}
	log.Info().Msg("Server gracefully stopped")
	return nil
}

func serverOptions(srvCfg config.ServerConfig, logger *zerolog.Logger) http.Options {
	return http.Options{
		MaxBodyBytes:   srvCfg.MaxBodyBytes,
		MaxHeaderBytes: srvCfg.MaxHeaderBytes,
		ReadTimeout:    srvCfg.ReadTimeoutDuration(),
		WriteTimeout:   srvCfg.WriteTimeoutDuration(),
		GracePeriod:    srvCfg.GracePeriodDuration(),
		Logger:         logger,
	}
}

// createWithRetry moves on to the next port while the requested one is in
// use, at most retries times.
func createWithRetry(ctx context.Context, host string, port, retries int, opts http.Options) (*http.Server, error) {
	retryOpts := retry.DefaultOptions()
	retryOpts.MaxRetries = retries
	retryOpts.InitialDelay = 10 * time.Millisecond
	retryOpts.JitterFactor = 0
	retryOpts.IsRetryable = func(err error) bool {
		var se *http.ServerError
		return errors.As(err, &se) && se.Code == "EADDRINUSE"
	}
	retryOpts.Logger = func(format string, args ...interface{}) {
		logging.Warn(fmt.Sprintf(format, args...))
	}

	return retry.Do(ctx, func(attempt int) (*http.Server, error) {
		return http.Create(ctx, host, port+attempt, opts)
	}, retryOpts)
}

const pageTemplate = `<html>
  <head>
    <title>%d %s</title>
  </head>
  <body>
    <h1>%s</h1>
    <p>%s</p>
  </body>
</html>
`

func page(sc http.StatusCode, heading, text string) []byte {
	return []byte(fmt.Sprintf(pageTemplate, int(sc), sc.Reason(), heading, text))
}

// pageHandler is the program run by serve. /echo returns the request body,
// the problem routes return error pages and everything else a success page.
func pageHandler(req *http.Request, res *http.Response) task.Task[*http.Response] {
	html := []http.Header{{Name: "Content-Type", Value: "text/html"}}

	switch req.Path {
	case "/echo":
		contentType := req.Headers.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return http.Respond(http.StatusOK, []http.Header{{Name: "Content-Type", Value: contentType}}, req.Body, res)
	case "/yourproblem":
		return http.Respond(http.StatusBadRequest, html,
			page(http.StatusBadRequest, "This is your problem!", "Your problem is not my problem."), res)
	case "/myproblem":
		return http.Respond(http.StatusInternalServerError, html,
			page(http.StatusInternalServerError, "This is my problem!", "Woopsie, my bad"), res)
	default:
		return http.Respond(http.StatusOK, html, page(http.StatusOK, "Success!", "All good, frfr"), res)
	}
}
