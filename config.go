package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind            string
	dev             bool
	port            int
	prefix          string
	profile         bool
	reconnectWindow time.Duration
	sessionTimeout  time.Duration
	teardownDelay   time.Duration
	tlsCert         string
	tlsKey          string
	validatorURL    string
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.reconnectWindow < 0 {
		return fmt.Errorf("invalid reconnect window: %s", c.reconnectWindow)
	}
	if c.teardownDelay < 0 {
		return fmt.Errorf("invalid teardown delay: %s", c.teardownDelay)
	}
	if c.validatorURL != "" {
		u, err := url.Parse(c.validatorURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid validator url: %q", c.validatorURL)
		}
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DATENIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "date-night",
		Short:         "Real-time two-player date night game sessions, staged as a series of mini-games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DATENIGHT_BIND)")
	fs.BoolVar(&cfg.dev, "dev", false, "register dev-only play-link endpoints (env: DATENIGHT_DEV)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DATENIGHT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DATENIGHT_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DATENIGHT_PROFILE)")
	fs.DurationVar(&cfg.reconnectWindow, "reconnect-window", 60*time.Second, "time a dropped player may rejoin with the same role (env: DATENIGHT_RECONNECT_WINDOW)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game rooms are ended (env: DATENIGHT_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.teardownDelay, "teardown-delay", 3*time.Second, "time clients keep the final screen before the room disconnects (env: DATENIGHT_TEARDOWN_DELAY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DATENIGHT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DATENIGHT_TLS_KEY)")
	fs.StringVar(&cfg.validatorURL, "validator-url", "", "base URL of the external session validator; empty serves the built-in session store (env: DATENIGHT_VALIDATOR_URL)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DATENIGHT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: DATENIGHT_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("date-night v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
