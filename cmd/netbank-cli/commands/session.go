package commands

import (
	"context"
	"log/slog"
	"netbank/internal/components/telemetry"
	"netbank/pkg/configutil"
	"netbank/pkg/netbank"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Timezone is the IANA zone transaction times are shown in, defaults to Australia/Sydney.
	Timezone         string               `json:"timezone"`
	BrowserTransport bool                 `json:"browser_transport"`
	Otlp             telemetry.OtlpConfig `json:"otlp"`
}

var exit = os.Exit

func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	exit(1)
}

func readConfig() Config {
	var (
		cfg Config
		err error
	)
	if filepath.IsAbs(*configPath) {
		cfg, err = configutil.ReadConfig[Config](*configPath)
	} else {
		cfg, err = configutil.ReadRecursively[Config](*configPath)
	}
	if err != nil {
		fatal("failed to read config", err)
	}
	return cfg
}

type session struct {
	client   *netbank.Client
	accounts map[string]netbank.Account
	otel     telemetry.Otel
}

func (s session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := s.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}

// fatal flushes telemetry before exiting, deferred calls do not run on exit.
func (s session) fatal(message string, err error) {
	s.Close()
	fatal(message, err)
}

// login reads the config, sets up telemetry and logs in, exiting on any failure.
func login(ctx context.Context) session {
	cfg := readConfig()

	if cfg.Timezone != "" {
		err := netbank.SetTimezone(cfg.Timezone)
		if err != nil {
			fatal("invalid timezone", err)
		}
	}

	otel, err := telemetry.Setup(ctx, "netbank-cli", cfg.Otlp)
	if err != nil {
		fatal("failed to setup telemetry", err)
	}
	s := session{otel: otel}

	opts := netbank.ClientOptions{BrowserTransport: cfg.BrowserTransport}
	if *dumpDir != "" {
		output, err := telemetry.NewFilesystemOutput(*dumpDir)
		if err != nil {
			s.fatal("failed to create dump directory", err)
		}
		opts.MessageOutput = output
	}

	client, err := netbank.NewClient(opts)
	if err != nil {
		s.fatal("failed to initialize client", err)
	}

	slog.Info("logging in", "username", cfg.Username)
	ctx, cancel := context.WithTimeout(ctx, time.Minute*2)
	defer cancel()
	accounts, err := client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		s.fatal("failed to login", err)
	}

	s.client = client
	s.accounts = accounts
	return s
}
