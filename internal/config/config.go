// Package config loads the server configuration from an HCL file, applies
// defaults and environment overrides, and converts it into the settings each
// subsystem takes.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"

	"github.com/lox/durak/internal/auth"
	"github.com/lox/durak/internal/bot"
	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/jackpot"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/room"
	"github.com/lox/durak/internal/settlement"
	"github.com/lox/durak/internal/store"
)

// Environment variables that override the file
const (
	EnvDatabaseURL = "DURAK_DATABASE_URL"
	EnvAddr        = "DURAK_ADDR"
	EnvLogLevel    = "DURAK_LOG_LEVEL"
	EnvAuthSecret  = "DURAK_AUTH_SECRET"
)

// Config is the complete server configuration
type Config struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Game    *GameSettings    `hcl:"game,block"`
	Jackpot *JackpotSettings `hcl:"jackpot,block"`
	Store   *StoreSettings   `hcl:"store,block"`
}

// ServerSettings contains listener and logging configuration
type ServerSettings struct {
	Address      string `hcl:"address,optional"`
	Port         int    `hcl:"port,optional"`
	LogLevel     string `hcl:"log_level,optional"`
	TickInterval string `hcl:"tick_interval,optional"`
	AuthURL      string `hcl:"auth_url,optional"`
	AuthSecret   string `hcl:"auth_secret,optional"`
	AuthTimeout  string `hcl:"auth_timeout,optional"`
}

// GameSettings configures Durak rooms and their settlement
type GameSettings struct {
	Commission    *float64 `hcl:"commission,optional"`
	MinBet        float64  `hcl:"min_bet,optional"`
	MaxBet        float64  `hcl:"max_bet,optional"`
	MaxPlayers    int      `hcl:"max_players,optional"`
	BotsEnabled   *bool    `hcl:"bots_enabled,optional"`
	TurnTimeout   string   `hcl:"turn_timeout,optional"`
	DisposeGrace  string   `hcl:"dispose_grace,optional"`
	RetryAttempts int      `hcl:"retry_attempts,optional"`
	RetryBackoff  string   `hcl:"retry_backoff,optional"`
}

// JackpotSettings configures the betting wheel
type JackpotSettings struct {
	RoundDuration string   `hcl:"round_duration,optional"`
	LockDuration  string   `hcl:"lock_duration,optional"`
	SpinDuration  string   `hcl:"spin_duration,optional"`
	ResultDelay   string   `hcl:"result_delay,optional"`
	MinBet        float64  `hcl:"min_bet,optional"`
	MaxBet        float64  `hcl:"max_bet,optional"`
	Rake          *float64 `hcl:"rake,optional"`
}

// StoreSettings selects the persistence backend
type StoreSettings struct {
	Driver string `hcl:"driver,optional"`
	Path   string `hcl:"path,optional"`
	DSN    string `hcl:"dsn,optional"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads an HCL file. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var c Config
	diags = gohcl.DecodeBody(file.Body, nil, &c)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Game == nil {
		c.Game = &GameSettings{}
	}
	if c.Jackpot == nil {
		c.Jackpot = &JackpotSettings{}
	}
	if c.Store == nil {
		c.Store = &StoreSettings{}
	}

	s := c.Server
	if s.Address == "" {
		s.Address = "localhost"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.TickInterval == "" {
		s.TickInterval = room.DefaultTickInterval.String()
	}
	if s.AuthTimeout == "" {
		s.AuthTimeout = auth.DefaultTimeout.String()
	}

	g := c.Game
	if g.Commission == nil {
		pct := 10.0
		g.Commission = &pct
	}
	if g.MinBet == 0 {
		g.MinBet = 1
	}
	if g.MaxBet == 0 {
		g.MaxBet = 10_000
	}
	if g.MaxPlayers == 0 {
		g.MaxPlayers = durak.MaxPlayers
	}
	if g.BotsEnabled == nil {
		on := true
		g.BotsEnabled = &on
	}
	if g.TurnTimeout == "" {
		g.TurnTimeout = "30s"
	}
	if g.DisposeGrace == "" {
		g.DisposeGrace = "10s"
	}
	if g.RetryAttempts == 0 {
		g.RetryAttempts = 5
	}
	if g.RetryBackoff == "" {
		g.RetryBackoff = "1s"
	}

	j := c.Jackpot
	if j.RoundDuration == "" {
		j.RoundDuration = "30s"
	}
	if j.LockDuration == "" {
		j.LockDuration = "5s"
	}
	if j.SpinDuration == "" {
		j.SpinDuration = "5s"
	}
	if j.ResultDelay == "" {
		j.ResultDelay = "5s"
	}
	if j.MinBet == 0 {
		j.MinBet = 1
	}
	if j.MaxBet == 0 {
		j.MaxBet = 1000
	}
	if j.Rake == nil {
		pct := 5.0
		j.Rake = &pct
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Driver == "file" && c.Store.Path == "" {
		c.Store.Path = "durak-state.json"
	}
}

// LoadEnv reads .env style files into the process environment. Missing files
// are skipped; variables already set win.
func LoadEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides file settings from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if dsn, ok := lookup(EnvDatabaseURL); ok && dsn != "" {
		c.Store.Driver = "postgres"
		c.Store.DSN = dsn
	}
	if addr, ok := lookup(EnvAddr); ok && addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAddr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvAddr, port)
		}
		c.Server.Address = host
		c.Server.Port = p
	}
	if level, ok := lookup(EnvLogLevel); ok && level != "" {
		c.Server.LogLevel = strings.ToLower(level)
	}
	if secret, ok := lookup(EnvAuthSecret); ok && secret != "" {
		c.Server.AuthSecret = secret
	}
	return nil
}

// Validate checks every section converts cleanly
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}
	if _, err := c.TickInterval(); err != nil {
		return err
	}
	if _, err := c.AuthValidator(); err != nil {
		return err
	}
	if _, err := c.RoomConfig(); err != nil {
		return err
	}
	if _, err := c.SettlementConfig(); err != nil {
		return err
	}
	jc, err := c.JackpotConfig()
	if err != nil {
		return err
	}
	if err := jc.Validate(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "memory":
	case "file":
		if c.Store.Path == "" {
			return errors.New("store: file driver needs a path")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store: postgres driver needs a dsn or %s", EnvDatabaseURL)
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	return nil
}

// ListenAddress returns host:port for the HTTP listener
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// TickInterval returns the supervisor period
func (c *Config) TickInterval() (time.Duration, error) {
	return duration("server.tick_interval", c.Server.TickInterval)
}

// AuthValidator returns the identity check for websocket logins. Without
// an auth_url the server trusts the name each client claims.
func (c *Config) AuthValidator() (auth.Validator, error) {
	if c.Server.AuthURL == "" {
		return auth.NewNoopValidator(), nil
	}
	timeout, err := duration("server.auth_timeout", c.Server.AuthTimeout)
	if err != nil {
		return nil, err
	}
	return auth.NewHTTPValidator(c.Server.AuthURL, c.Server.AuthSecret, timeout), nil
}

// RoomConfig converts the game block for the room manager
func (c *Config) RoomConfig() (room.Config, error) {
	g := c.Game
	rc := room.DefaultConfig()
	var err error
	if rc.MinBet, err = amount("game.min_bet", g.MinBet); err != nil {
		return rc, err
	}
	if rc.MaxBet, err = amount("game.max_bet", g.MaxBet); err != nil {
		return rc, err
	}
	if rc.MaxBet < rc.MinBet {
		return rc, fmt.Errorf("game: max_bet %s below min_bet %s", rc.MaxBet, rc.MinBet)
	}
	if g.MaxPlayers < durak.MinPlayers || g.MaxPlayers > durak.MaxPlayers {
		return rc, fmt.Errorf("game: max_players must be between %d and %d", durak.MinPlayers, durak.MaxPlayers)
	}
	rc.MaxPlayers = g.MaxPlayers
	rc.BotsEnabled = *g.BotsEnabled
	if rc.TurnTimeout, err = duration("game.turn_timeout", g.TurnTimeout); err != nil {
		return rc, err
	}
	if rc.DisposeGrace, err = duration("game.dispose_grace", g.DisposeGrace); err != nil {
		return rc, err
	}
	rc.Pacing = bot.DefaultPacing
	return rc, nil
}

// SettlementConfig converts the commission and retry settings
func (c *Config) SettlementConfig() (settlement.Config, error) {
	g := c.Game
	sc := settlement.DefaultConfig()
	rate, err := money.RateFromPercent(*g.Commission)
	if err != nil {
		return sc, fmt.Errorf("game.commission: %w", err)
	}
	sc.Commission = rate
	if g.RetryAttempts < 1 {
		return sc, errors.New("game.retry_attempts must be at least 1")
	}
	sc.RetryAttempts = g.RetryAttempts
	if sc.RetryBackoff, err = duration("game.retry_backoff", g.RetryBackoff); err != nil {
		return sc, err
	}
	return sc, nil
}

// JackpotConfig converts the jackpot block
func (c *Config) JackpotConfig() (jackpot.Config, error) {
	j := c.Jackpot
	jc := jackpot.DefaultConfig()
	var err error
	if jc.RoundDuration, err = duration("jackpot.round_duration", j.RoundDuration); err != nil {
		return jc, err
	}
	if jc.LockDuration, err = duration("jackpot.lock_duration", j.LockDuration); err != nil {
		return jc, err
	}
	if jc.SpinDuration, err = duration("jackpot.spin_duration", j.SpinDuration); err != nil {
		return jc, err
	}
	if jc.ResultDelay, err = duration("jackpot.result_delay", j.ResultDelay); err != nil {
		return jc, err
	}
	if jc.MinBet, err = amount("jackpot.min_bet", j.MinBet); err != nil {
		return jc, err
	}
	if jc.MaxBet, err = amount("jackpot.max_bet", j.MaxBet); err != nil {
		return jc, err
	}
	if jc.Rake, err = money.RateFromPercent(*j.Rake); err != nil {
		return jc, fmt.Errorf("jackpot.rake: %w", err)
	}
	return jc, nil
}

// StoreOptions converts the store block
func (c *Config) StoreOptions() store.Options {
	return store.Options{Driver: c.Store.Driver, Path: c.Store.Path, DSN: c.Store.DSN}
}

func duration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

func amount(field string, f float64) (money.Amount, error) {
	a, err := money.FromFloat(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if a <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return a, nil
}
