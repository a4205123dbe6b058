package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/multierr"
)

type Config struct {
	Addr            string        `help:"Listen address." default:":8080" env:"CHITS_ADDR"`
	LogLevel        string        `help:"Minimum log level." default:"info" enum:"debug,info,warn,error" env:"CHITS_LOG_LEVEL"`
	LogFormat       string        `help:"Log encoding." default:"json" enum:"json,console" env:"CHITS_LOG_FORMAT"`
	ReactionTimeout time.Duration `help:"Forfeit reactions not reported within this window. Zero waits forever." default:"0s" env:"CHITS_REACTION_TIMEOUT"`
	OutboxSize      int           `help:"Buffered notifications per connection before it is dropped." default:"16" env:"CHITS_OUTBOX_SIZE"`
	IdleTimeout     time.Duration `help:"Close connections silent for this long." default:"5m" env:"CHITS_IDLE_TIMEOUT"`
	AllowedOrigins  []string      `help:"Origins allowed by CORS and the websocket handshake." default:"*" env:"CHITS_ALLOWED_ORIGINS"`
	DatabaseURL     string        `help:"Postgres DSN for the result archive. Empty disables it." env:"DATABASE_URL"`
	ArchiveBuffer   int           `help:"Pending archive writes before new ones are dropped." default:"256" env:"CHITS_ARCHIVE_BUFFER"`
	ShutdownTimeout time.Duration `help:"Grace period for in-flight requests on shutdown." default:"10s" env:"CHITS_SHUTDOWN_TIMEOUT"`
}

func Load(args []string, options ...kong.Option) (Config, error) {
	var cfg Config
	options = append([]kong.Option{
		kong.Name("chits-server"),
		kong.Description("Realtime server for the four-player chit passing game"),
		kong.UsageOnError(),
	}, options...)
	parser, err := kong.New(&cfg, options...)
	if err != nil {
		return Config{}, err
	}
	if _, err := parser.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var err error
	if c.ReactionTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("reaction-timeout must not be negative, got %s", c.ReactionTimeout))
	}
	if c.OutboxSize < 1 {
		err = multierr.Append(err, fmt.Errorf("outbox-size must be positive, got %d", c.OutboxSize))
	}
	if c.IdleTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("idle-timeout must be positive, got %s", c.IdleTimeout))
	}
	if c.ArchiveBuffer < 1 {
		err = multierr.Append(err, fmt.Errorf("archive-buffer must be positive, got %d", c.ArchiveBuffer))
	}
	if len(c.AllowedOrigins) == 0 {
		err = multierr.Append(err, errors.New("allowed-origins must not be empty"))
	}
	return err
}

func (c Config) ArchiveEnabled() bool { return c.DatabaseURL != "" }
