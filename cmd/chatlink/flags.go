package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/chatlink/internal/config"
)

// chatFlags holds the values of the chat command's flags.
type chatFlags struct {
	URL         string
	Token       string
	AskToken    bool
	Join        []string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	MaxAttempts int
	BaseDelay   time.Duration
	Notify      bool
	IdleStop    bool
}

func (f *chatFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.URL, "url", "", "WebSocket URL of the chat server")
	flags.StringVar(&f.Token, "token", "", "Bearer token for the handshake")
	flags.BoolVar(&f.AskToken, "ask-token", false, "Prompt for the token without echo")
	flags.StringSliceVar(&f.Join, "join", nil, "Channels to join on start")
	flags.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&f.LogFormat, "log-format", "", "Log format (text, json)")
	flags.StringVar(&f.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.IntVar(&f.MaxAttempts, "max-attempts", 0, "Reconnect attempts before giving up (negative retries forever)")
	flags.DurationVar(&f.BaseDelay, "base-delay", 0, "Delay before the first reconnect attempt")
	flags.BoolVar(&f.Notify, "notify", false, "Show notifications for other channels")
	flags.BoolVar(&f.IdleStop, "idle-stop", false, "Send stop_typing automatically after the typing TTL")
}

// applyFlagOverrides copies explicitly set flags over the file config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, f chatFlags) {
	if flagChanged(cmd, "url") {
		cfg.Server.URL = f.URL
	}
	if flagChanged(cmd, "token") {
		cfg.Server.AuthToken = f.Token
	}
	if flagChanged(cmd, "log-level") {
		cfg.Logging.Level = f.LogLevel
	}
	if flagChanged(cmd, "log-format") {
		cfg.Logging.Format = f.LogFormat
	}
	if flagChanged(cmd, "metrics-addr") {
		cfg.Metrics.Addr = f.MetricsAddr
	}
	if flagChanged(cmd, "max-attempts") {
		cfg.Reconnect.MaxAttempts = f.MaxAttempts
	}
	if flagChanged(cmd, "base-delay") {
		cfg.Reconnect.BaseDelay = f.BaseDelay
	}
	if flagChanged(cmd, "notify") {
		cfg.Notify.Enabled = f.Notify
	}
	if flagChanged(cmd, "idle-stop") {
		cfg.Typing.IdleStop = f.IdleStop
	}
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil {
		return f.Changed
	}
	return false
}
