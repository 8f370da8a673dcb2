package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wallet-engine/pkg/chain/evm"
	"wallet-engine/pkg/chain/solana"
	"wallet-engine/pkg/store"
	"wallet-engine/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Keystore  KeystoreConfig  `mapstructure:"keystore"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Health    HealthConfig    `mapstructure:"health"`
	EVM       EVMConfig       `mapstructure:"evm"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Price     PriceConfig     `mapstructure:"price"`
	OneClick  OneClickConfig  `mapstructure:"oneclick"`
	Policy    PolicyConfig    `mapstructure:"policy"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	File  string `mapstructure:"file"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is a file for the file driver and a directory for badger
	Path string `mapstructure:"path"`
}

type KeystoreConfig struct {
	Passphrase string `mapstructure:"passphrase"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BroadcastConfig bounds the broadcast state machine
type BroadcastConfig struct {
	MaxRebuilds int `mapstructure:"max_rebuilds"`
	// EVM receipt wait
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	// Solana finality polling
	MaxPolls int           `mapstructure:"max_polls"`
	PollStep time.Duration `mapstructure:"poll_step"`
	PollCap  time.Duration `mapstructure:"poll_cap"`
	// RateLimitRetries is the number of 429 retries per submission
	RateLimitRetries int `mapstructure:"rate_limit_retries"`
}

type CacheConfig struct {
	Size      int           `mapstructure:"size"`
	PriceTTL  time.Duration `mapstructure:"price_ttl"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type EVMConfig struct {
	Chains map[string]EVMChain `mapstructure:"chains"`
}

// EVMChain is one EVM network. A chain without rpc_url is not loaded.
type EVMChain struct {
	Name          string  `mapstructure:"name"`
	ChainID       int64   `mapstructure:"chain_id"`
	RPCURL        string  `mapstructure:"rpc_url"`
	Symbol        string  `mapstructure:"symbol"`
	Decimals      uint8   `mapstructure:"decimals"`
	Explorer      string  `mapstructure:"explorer"`
	WrappedNative string  `mapstructure:"wrapped_native"`
	Router        string  `mapstructure:"router"`
	DEX           string  `mapstructure:"dex"`
	RPS           float64 `mapstructure:"rps"`
}

type SolanaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	RPCURL        string   `mapstructure:"rpc_url"`
	BackupURLs    []string `mapstructure:"backup_urls"`
	FallbackURLs  []string `mapstructure:"fallback_urls"`
	Commitment    string   `mapstructure:"commitment"`
	SkipPreflight bool     `mapstructure:"skip_preflight"`
	JupiterURL    string   `mapstructure:"jupiter_url"`
	// PriorityFee is the compute unit price in micro-lamports
	PriorityFee uint64  `mapstructure:"priority_fee"`
	Explorer    string  `mapstructure:"explorer"`
	RPS         float64 `mapstructure:"rps"`
}

type PriceConfig struct {
	EVMBaseURL    string `mapstructure:"evm_base_url"`
	SolanaBaseURL string `mapstructure:"solana_base_url"`
	APIKey        string `mapstructure:"api_key"`
}

type OneClickConfig struct {
	JWTToken string `mapstructure:"jwt_token"`
	BaseURL  string `mapstructure:"base_url"`
}

type PolicyConfig struct {
	RejectSelfTransfer bool          `mapstructure:"reject_self_transfer"`
	QuoteTTL           time.Duration `mapstructure:"quote_ttl"`
}

// publicRPC are the default EVM endpoints
var publicRPC = map[types.ChainID]string{
	"eth":      "https://eth.llamarpc.com",
	"bsc":      "https://bsc-dataseed.binance.org",
	"matic":    "https://polygon-rpc.com",
	"avax":     "https://api.avax.network/ext/bc/C/rpc",
	"base":     "https://mainnet.base.org",
	"arbitrum": "https://arb1.arbitrum.io/rpc",
	"optimism": "https://mainnet.optimism.io",
}

var globalConfig *Config

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")

	v.SetDefault("store.driver", store.DriverFile)
	v.SetDefault("store.path", "")
	v.SetDefault("keystore.passphrase", "")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 5*time.Second)

	v.SetDefault("broadcast.max_rebuilds", 3)
	v.SetDefault("broadcast.receipt_timeout", 60*time.Second)
	v.SetDefault("broadcast.receipt_poll_interval", 2*time.Second)
	v.SetDefault("broadcast.max_polls", 30)
	v.SetDefault("broadcast.poll_step", 2*time.Second)
	v.SetDefault("broadcast.poll_cap", 10*time.Second)
	v.SetDefault("broadcast.rate_limit_retries", 5)

	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.price_ttl", 60*time.Second)
	v.SetDefault("cache.status_ttl", 30*time.Second)
	v.SetDefault("cache.token_ttl", time.Hour)

	v.SetDefault("health.timeout", 10*time.Second)

	for id, c := range evm.DefaultChains {
		prefix := "evm.chains." + string(id) + "."
		v.SetDefault(prefix+"name", c.Name)
		v.SetDefault(prefix+"chain_id", c.ChainID)
		v.SetDefault(prefix+"rpc_url", publicRPC[id])
		v.SetDefault(prefix+"symbol", c.Symbol)
		v.SetDefault(prefix+"decimals", c.Decimals)
		v.SetDefault(prefix+"explorer", c.Explorer)
		v.SetDefault(prefix+"wrapped_native", c.WrappedNative)
		v.SetDefault(prefix+"router", c.Router)
		v.SetDefault(prefix+"dex", c.DEX)
		v.SetDefault(prefix+"rps", 0)
	}

	sol := solana.DefaultConfig()
	v.SetDefault("solana.enabled", true)
	v.SetDefault("solana.rpc_url", sol.RPCURL)
	v.SetDefault("solana.backup_urls", []string{})
	v.SetDefault("solana.fallback_urls", solana.PublicFallbacks)
	v.SetDefault("solana.commitment", sol.Commitment)
	v.SetDefault("solana.skip_preflight", false)
	v.SetDefault("solana.jupiter_url", sol.JupiterURL)
	v.SetDefault("solana.priority_fee", sol.ComputeUnitPrice)
	v.SetDefault("solana.explorer", sol.Explorer)
	v.SetDefault("solana.rps", 0)

	v.SetDefault("price.evm_base_url", "https://deep-index.moralis.io/api/v2.2")
	v.SetDefault("price.solana_base_url", "https://solana-gateway.moralis.io")
	v.SetDefault("price.api_key", "")

	v.SetDefault("oneclick.jwt_token", "")
	v.SetDefault("oneclick.base_url", "https://1click.chaindefuser.com")

	v.SetDefault("policy.reject_self_transfer", true)
	v.SetDefault("policy.quote_ttl", 60*time.Second)
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".wallet-engine")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	cfg, err := LoadFrom(viper.GetViper())
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// LoadFrom reads configuration through v. A missing config file is not an error.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// WALLET_ENGINE_SOLANA_RPC_URL overrides solana.rpc_url
	v.SetEnvPrefix("WALLET_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverBadger, store.DriverFile, store.DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want %s, %s or %s)", c.Store.Driver, store.DriverBadger, store.DriverFile, store.DriverMemory)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Broadcast.MaxRebuilds < 0 {
		return fmt.Errorf("broadcast.max_rebuilds must not be negative")
	}
	for name, ch := range c.EVM.Chains {
		if ch.RPCURL != "" && ch.ChainID <= 0 {
			return fmt.Errorf("evm.chains.%s.chain_id is required", name)
		}
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unknown solana commitment %q", c.Solana.Commitment)
	}
	return nil
}

// RequireOneClick fails when the bridge API cannot be used
func (c *Config) RequireOneClick() error {
	if c.OneClick.JWTToken == "" {
		return fmt.Errorf("JWT token not found. Please set WALLET_ENGINE_ONECLICK_JWT_TOKEN environment variable or add oneclick.jwt_token to .wallet-engine.yaml")
	}
	return nil
}

// EVMChains returns the configured EVM networks in id order, skipping those
// without an RPC endpoint
func (c *Config) EVMChains() []evm.Config {
	names := make([]string, 0, len(c.EVM.Chains))
	for name := range c.EVM.Chains {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]evm.Config, 0, len(names))
	for _, name := range names {
		ch := c.EVM.Chains[name]
		if ch.RPCURL == "" {
			continue
		}
		id := types.ChainID(name).Normalize()
		if ch.Decimals == 0 {
			ch.Decimals = 18
		}
		out = append(out, evm.Config{
			ID:            id,
			Name:          ch.Name,
			ChainID:       ch.ChainID,
			RPCURL:        ch.RPCURL,
			Symbol:        ch.Symbol,
			Decimals:      ch.Decimals,
			Explorer:      ch.Explorer,
			WrappedNative: ch.WrappedNative,
			Router:        ch.Router,
			DEX:           ch.DEX,
			RPS:           ch.RPS,
		})
	}
	return out
}

// SolanaChain converts the solana section
func (c *Config) SolanaChain() solana.Config {
	sc := solana.DefaultConfig()
	sc.RPCURL = c.Solana.RPCURL
	sc.Backups = c.Solana.BackupURLs
	sc.Fallbacks = c.Solana.FallbackURLs
	if sc.Fallbacks == nil {
		sc.Fallbacks = []string{}
	}
	sc.Commitment = c.Solana.Commitment
	sc.SkipPreflight = c.Solana.SkipPreflight
	sc.JupiterURL = c.Solana.JupiterURL
	sc.ComputeUnitPrice = c.Solana.PriorityFee
	sc.Explorer = c.Solana.Explorer
	sc.RPS = c.Solana.RPS
	return sc
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
