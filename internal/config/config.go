// Package config loads process configuration from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"solana-hedge/internal/signer"
	"solana-hedge/internal/tracker"
)

// EnvPrefix prefixes every environment key (HEDGE_SLIPPAGE_BPS, ...).
const EnvPrefix = "HEDGE"

// legacyEnv are unprefixed environment names still honored.
var legacyEnv = map[string]string{
	"SECRET_KEY":      "secret_key",
	"SOLANA_ENDPOINT": "solana_endpoint",
}

// Error is a missing or malformed configuration value. It is fatal.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config is the process configuration. It is loaded once and passed explicitly.
type Config struct {
	SecretKey      string `mapstructure:"secret_key" validate:"required"`
	SolanaEndpoint string `mapstructure:"solana_endpoint" validate:"required,url"`
	WSEndpoint     string `mapstructure:"ws_endpoint" validate:"omitempty,url"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	ClickhouseDSN  string `mapstructure:"clickhouse_dsn"`

	QuoteURL string `mapstructure:"quote_url" validate:"required,url"`
	SwapURL  string `mapstructure:"swap_url" validate:"required,url"`

	SlippageBps     int            `mapstructure:"slippage_bps" validate:"gte=1,lte=10000"`
	DefaultDecimals int            `mapstructure:"default_decimals" validate:"gte=0,lte=18"`
	TokenDecimals   map[string]int `mapstructure:"-"`

	SkipPreflight       bool          `mapstructure:"skip_preflight"`
	PreflightCommitment string        `mapstructure:"preflight_commitment" validate:"oneof=processed confirmed finalized"`
	Commitment          string        `mapstructure:"commitment" validate:"oneof=processed confirmed finalized"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout" validate:"gt=0"`
	PollInterval        time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	StepTimeout         time.Duration `mapstructure:"step_timeout" validate:"gt=0"`

	TrackNotifications bool          `mapstructure:"track_notifications"`
	TrackerTimeout     time.Duration `mapstructure:"tracker_timeout" validate:"gt=0"`

	MetricsAddr string `mapstructure:"metrics_addr"`

	// Key is the parsed operator keypair.
	Key solana.PrivateKey `mapstructure:"-"`
}

// Options select the files Load reads.
type Options struct {
	// ConfigFile is a YAML/TOML/JSON file. Empty falls back to HEDGE_CONFIG,
	// then to config.yaml when it exists.
	ConfigFile string
	// EnvFile is a dotenv file. Empty means ".env"; a missing file is ignored.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("secret_key", "")
	v.SetDefault("solana_endpoint", "")
	v.SetDefault("ws_endpoint", "")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("clickhouse_dsn", "")
	v.SetDefault("quote_url", "https://quote-api.jup.ag/v6/quote")
	v.SetDefault("swap_url", "https://quote-api.jup.ag/v6/swap")
	v.SetDefault("slippage_bps", 50)
	v.SetDefault("default_decimals", 6)
	v.SetDefault("skip_preflight", true)
	v.SetDefault("preflight_commitment", "processed")
	v.SetDefault("commitment", "finalized")
	v.SetDefault("confirm_timeout", "90s")
	v.SetDefault("poll_interval", "2s")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("step_timeout", "2m")
	v.SetDefault("track_notifications", true)
	v.SetDefault("tracker_timeout", "2m")
	v.SetDefault("metrics_addr", ":9090")
}

// Load reads configuration with precedence: process environment, dotenv file,
// config file, defaults. The operator key is parsed and verified.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for env, key := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+env, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	setDefaults(v)

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}
	if err := applyEnvFile(v, opts.EnvFile); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Key: "config", Err: err}
	}

	decimals, err := tokenDecimals(v)
	if err != nil {
		return nil, err
	}
	cfg.TokenDecimals = decimals

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
		explicit = false
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return &Error{Key: "config_file", Err: err}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return &Error{Key: "config_file", Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return nil
}

// applyEnvFile layers dotenv values under the process environment.
func applyEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &Error{Key: "env_file", Err: fmt.Errorf("read %s: %w", path, err)}
	}

	for name, value := range values {
		if _, set := os.LookupEnv(name); set {
			continue
		}
		key, ok := legacyEnv[name]
		if !ok {
			prefix := EnvPrefix + "_"
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			key = strings.ToLower(strings.TrimPrefix(name, prefix))
		}
		if processEnvSet(key) {
			continue
		}
		v.Set(key, value)
	}
	return nil
}

// processEnvSet reports whether any environment name bound to key is set.
func processEnvSet(key string) bool {
	if _, set := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(key)); set {
		return true
	}
	for env, bound := range legacyEnv {
		if bound != key {
			continue
		}
		if _, set := os.LookupEnv(env); set {
			return true
		}
	}
	return false
}

// tokenDecimals reads the mint->decimals registry. It accepts a
// "mint:decimals,mint:decimals" string or a list of "mint:decimals" entries.
// Config file tables are not accepted: viper lowercases map keys, which
// corrupts base58 mint addresses.
func tokenDecimals(v *viper.Viper) (map[string]int, error) {
	var entries []string
	switch val := v.Get("token_decimals").(type) {
	case nil:
	case string:
		entries = strings.Split(val, ",")
	case []interface{}:
		for _, e := range val {
			entries = append(entries, fmt.Sprint(e))
		}
	case []string:
		entries = val
	default:
		return nil, &Error{Key: "token_decimals", Err: fmt.Errorf("expected list of mint:decimals, got %T", val)}
	}

	out := make(map[string]int, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		mint, dec, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, &Error{Key: "token_decimals", Err: fmt.Errorf("entry %q: expected mint:decimals", entry)}
		}
		n, err := strconv.Atoi(strings.TrimSpace(dec))
		if err != nil {
			return nil, &Error{Key: "token_decimals", Err: fmt.Errorf("entry %q: %w", entry, err)}
		}
		if n < 0 || n > 18 {
			return nil, &Error{Key: "token_decimals", Err: fmt.Errorf("entry %q: decimals out of range", entry)}
		}
		out[strings.TrimSpace(mint)] = n
	}
	return out, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	vd := validator.New()
	vd.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return vd
}

// finish validates the struct, derives the WebSocket endpoint and parses the key.
func (c *Config) finish() error {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.SolanaEndpoint = strings.TrimSpace(c.SolanaEndpoint)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &Error{Key: fe.Field(), Err: fmt.Errorf("failed %q validation", fe.Tag())}
		}
		return &Error{Key: "config", Err: err}
	}

	if c.WSEndpoint == "" {
		ws, err := tracker.Endpoint(c.SolanaEndpoint)
		if err != nil {
			return &Error{Key: "solana_endpoint", Err: err}
		}
		c.WSEndpoint = ws
	}

	key, err := signer.ParsePrivateKey(c.SecretKey)
	if err != nil {
		return &Error{Key: "secret_key", Err: err}
	}
	c.Key = key
	return nil
}

// PublicKey returns the operator address.
func (c *Config) PublicKey() string {
	return c.Key.PublicKey().String()
}
