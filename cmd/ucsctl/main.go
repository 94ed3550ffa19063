// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command ucsctl queries, compares, synchronises and watches UCS managers
// from the command line.
//
// Connection settings come from flags, UCS_* environment variables or a
// config file, in that order of precedence:
//
//	export UCS_HOST=10.0.0.10 UCS_USERNAME=admin UCS_PASSWORD=secret
//	ucsctl resolve class fabricVlan --filter OperState=ok
//	ucsctl diff lsServer --candidate-host 10.0.0.20 --from-org org-root/org-lab --to-org org-root
//	ucsctl watch --dn org-root/ls-web01 --prop AssocState --success associated --poll 5s
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/netascode/go-ucs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "UCS"

// config holds the connection settings shared by all commands
type config struct {
	Host     string
	Username string
	Password string
	Port     int
	TLS      bool
	Insecure bool
	Timeout  time.Duration
	LogLevel string
}

// app is the state one command invocation works with
type app struct {
	v   *viper.Viper
	cfg config
	log *zap.Logger
	mgr *ucs.SessionManager
}

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *app {
	return &app{v: viper.New(), log: zap.NewNop()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ucsctl",
		Short:         "UCS manager CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml)")
	pf.String("host", "", "UCS manager address")
	pf.StringP("username", "u", "", "login user")
	pf.StringP("password", "p", "", "login password")
	pf.Int("port", 0, "port (default 443 with TLS, 80 without)")
	pf.Bool("tls", ucs.DefaultUseTLS, "use HTTPS")
	pf.Bool("insecure", false, "skip TLS certificate verification")
	pf.Duration("timeout", ucs.DefaultOperationTimeout, "per request timeout")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newResolveCmd(a),
		newDiffCmd(a),
		newSyncCmd(a),
		newWatchCmd(a),
	)
	return root
}

// init binds the persistent flags into viper, reads the optional config file
// and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg, err := loadConfig(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log, err = newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.mgr = ucs.NewSessionManager(ucs.NewZapLogger(a.log))
	return nil
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		Host:     v.GetString("host"),
		Username: v.GetString("username"),
		Password: v.GetString("password"),
		Port:     v.GetInt("port"),
		TLS:      v.GetBool("tls"),
		Insecure: v.GetBool("insecure"),
		Timeout:  v.GetDuration("timeout"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.Host == "" {
		return cfg, fmt.Errorf("no host configured (--host or %s_HOST)", envPrefix)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return cfg, fmt.Errorf("no credentials configured (--username/--password or %s_USERNAME/%s_PASSWORD)", envPrefix, envPrefix)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

// newLogger builds a JSON zap logger writing to stderr so that command
// output on stdout stays machine readable.
func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            atomicLevel,
		Encoding:         "json",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

// session logs in to host with the configured credentials and registers the
// client under host.
func (a *app) session(ctx context.Context, host string) (*ucs.Client, error) {
	opts := []func(*ucs.Client){
		ucs.Username(a.cfg.Username),
		ucs.Password(a.cfg.Password),
		ucs.TLS(a.cfg.TLS),
		ucs.VerifyCertificate(!a.cfg.Insecure),
		ucs.OperationTimeout(a.cfg.Timeout),
		ucs.WithLogger(ucs.NewZapLogger(a.log)),
		ucs.WithSessionManager(a.mgr, host),
	}
	if a.cfg.Port != 0 {
		opts = append(opts, ucs.Port(a.cfg.Port))
	}
	c, err := ucs.NewClient(host, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("login to %s: %w", host, err)
	}
	return c, nil
}

// close logs out every session opened by the command
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	if err := a.mgr.Shutdown(ctx); err != nil {
		a.log.Warn("logout failed", zap.Error(err))
	}
	_ = a.log.Sync()
}
