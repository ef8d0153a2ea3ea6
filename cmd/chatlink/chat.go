package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/chatlink/internal/client"
	"github.com/haasonsaas/chatlink/internal/config"
	"github.com/haasonsaas/chatlink/internal/notify"
	"github.com/haasonsaas/chatlink/internal/observability"
	"github.com/haasonsaas/chatlink/internal/protocol"
)

func buildChatCmd(configPath *string) *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Connect to the chat server and read commands from stdin.

Lines starting with / are commands (/help lists them); anything else is
sent to the active chat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg, flags)
			if flags.AskToken {
				cfg.Server.AuthToken = promptSecret(cmd.ErrOrStderr(), "Token")
			}
			if strings.TrimSpace(cfg.Server.URL) == "" {
				return errors.New("server url is required (--url or server.url)")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, flags.Join, os.Stdin, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, join []string, in io.Reader, stdout io.Writer) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	if expires, err := checkTokenExpiry(cfg.Server.AuthToken, time.Now()); err != nil {
		logger.Warn("server may reject the connection", "error", err, "expired_at", expires)
	} else if !expires.IsZero() {
		logger.Debug("auth token expiry", "expires_at", expires)
	}

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "chatlink",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	if cfg.Metrics.Addr != "" {
		srv, err := startMetricsServer(cfg.Metrics.Addr, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx) //nolint:errcheck // exiting
		}()
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out := &syncWriter{w: stdout}
	c, err := client.New(cfg,
		client.WithLogger(logger),
		client.WithTracer(tracer),
		client.WithRegisterer(prometheus.DefaultRegisterer),
		client.WithNotifier(terminalNotifier{out: out}),
	)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }() //nolint:errcheck // exiting

	s := newSession(c, out)
	s.paint = configureColor(isTerminal(in) && isTerminalWriter(stdout))
	s.watch()
	for _, id := range join {
		if err := s.join(protocol.ChatID(strings.TrimSpace(id))); err != nil {
			return err
		}
	}
	if err := c.Connect(); err != nil {
		return err
	}
	logger.Info("starting chat session", "url", cfg.Server.URL, "channels", len(join))

	interactive := isTerminal(in)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if interactive {
			fmt.Fprint(out, "> ") //nolint:errcheck // terminal output
		}
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.handle(line)
			if err != nil {
				s.alertf("%v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func startMetricsServer(addr string, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

// terminalNotifier prints notifications inline.
type terminalNotifier struct {
	out io.Writer
}

func (n terminalNotifier) Show(note notify.Notification) error {
	_, err := fmt.Fprintf(n.out, "! %s: %s\n", note.Title, note.Body)
	return err
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptSecret reads a secret from stdin without echo when stdin is a
// terminal.
func promptSecret(out io.Writer, label string) string {
	fmt.Fprintf(out, "%s: ", label) //nolint:errcheck // prompt
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		text, err := term.ReadPassword(fd)
		fmt.Fprintln(out) //nolint:errcheck // prompt
		if err == nil {
			return strings.TrimSpace(string(text))
		}
	}
	text, _ := bufio.NewReader(os.Stdin).ReadString('\n') //nolint:errcheck // partial input is still used
	return strings.TrimSpace(text)
}
