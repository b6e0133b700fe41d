// Package config provides configuration loading and management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// JSON-RPC endpoint of the chain
	RPCURL string

	// Price API settings
	PriceAPIURL         string
	PriceAPIKey         string
	PriceRateLimitRPS   float64
	PriceRateLimitBurst int

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Upper bound for one pipeline run
	RequestTimeout time.Duration

	// Run the independent chain and price reads concurrently
	ParallelReads bool

	Pool     PoolConfig
	Sampling SamplingConfig

	// Server protection
	EnableMetrics   bool
	RateLimitRPS    float64
	RateLimitBurst  int
	BreakerFailures int
	BreakerCooldown time.Duration

	LogLevel  string
	LogFormat string

	// First environment value Load had to reject, reported by Validate
	loadErr error
}

// PoolConfig identifies the staking position being priced
type PoolConfig struct {
	// Pool id inside the staking contract
	ID int64

	// Staking (MasterChef) contract address
	StakingAddress string

	// Optional ABI JSON files overriding the embedded ones
	StakingABIFile string
	PairABIFile    string

	// Name of the per-block emission getter on the staking contract
	RewardMethod string

	// CoinGecko ids of the reward token and of the priced pair leg
	RewardPriceID string
	PairedPriceID string

	// Which getReserves output is the priced leg (NEAR-WETH: WETH is reserve 1)
	PairedReserveIndex int
}

// SamplingConfig controls the block rate estimate
type SamplingConfig struct {
	Lookback   uint64
	FloorBlock uint64
}

// Defaults for the AuroraSwap NEAR-WETH pool
const (
	DefaultPort           = "8080"
	DefaultRPCURL         = "https://mainnet.aurora.dev"
	DefaultPriceAPIURL    = "https://api.coingecko.com/api/v3"
	DefaultStakingAddress = "0x35CC71888DBb9FfB777337324a4A60fdBAA19DDE"
	DefaultRewardMethod   = "BRLPerBlock"
	DefaultRewardPriceID  = "borealis"
	DefaultPairedPriceID  = "ethereum"
	DefaultPoolID         = 1
	DefaultLookback       = 10000
	DefaultFloorBlock     = 500
)

// Load creates a new Config from environment variables
func Load() Config {
	lookback, lookbackErr := GetEnvAsUint64("BLOCK_LOOKBACK", DefaultLookback)
	floor, floorErr := GetEnvAsUint64("BLOCK_FLOOR", DefaultFloorBlock)

	loadErr := lookbackErr
	if loadErr == nil {
		loadErr = floorErr
	}

	return Config{
		Port:                GetEnvOrDefault("PORT", DefaultPort),
		RPCURL:              GetEnvOrDefault("RPC_URL", DefaultRPCURL),
		PriceAPIURL:         GetEnvOrDefault("PRICE_API_URL", DefaultPriceAPIURL),
		PriceAPIKey:         GetEnvOrDefault("PRICE_API_KEY", ""),
		PriceRateLimitRPS:   GetEnvAsFloat("PRICE_RATE_LIMIT_RPS", 0.5),
		PriceRateLimitBurst: GetEnvAsInt("PRICE_RATE_LIMIT_BURST", 2),
		OtelEndpoint:        GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RequestTimeout:      GetEnvAsDuration("REQUEST_TIMEOUT", 20*time.Second),
		ParallelReads:       GetEnvAsBool("PARALLEL_READS", false),
		Pool: PoolConfig{
			ID:                 int64(GetEnvAsInt("POOL_ID", DefaultPoolID)),
			StakingAddress:     GetEnvOrDefault("STAKING_ADDRESS", DefaultStakingAddress),
			StakingABIFile:     GetEnvOrDefault("STAKING_ABI_FILE", ""),
			PairABIFile:        GetEnvOrDefault("PAIR_ABI_FILE", ""),
			RewardMethod:       GetEnvOrDefault("REWARD_METHOD", DefaultRewardMethod),
			RewardPriceID:      GetEnvOrDefault("REWARD_PRICE_ID", DefaultRewardPriceID),
			PairedPriceID:      GetEnvOrDefault("PAIRED_PRICE_ID", DefaultPairedPriceID),
			PairedReserveIndex: GetEnvAsInt("PAIRED_RESERVE_INDEX", 1),
		},
		Sampling: SamplingConfig{
			Lookback:   lookback,
			FloorBlock: floor,
		},
		EnableMetrics:   GetEnvAsBool("ENABLE_METRICS", true),
		RateLimitRPS:    GetEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:  GetEnvAsInt("RATE_LIMIT_BURST", 20),
		BreakerFailures: GetEnvAsInt("BREAKER_FAILURES", 5),
		BreakerCooldown: GetEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),
		LogLevel:        strings.ToLower(GetEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(GetEnvOrDefault("LOG_FORMAT", "text")),
		loadErr:         loadErr,
	}
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if c.loadErr != nil {
		return c.loadErr
	}
	if c.RPCURL == "" {
		return errors.New("rpc url is required")
	}
	if !common.IsHexAddress(c.Pool.StakingAddress) {
		return fmt.Errorf("invalid staking address %q", c.Pool.StakingAddress)
	}
	if c.Pool.ID < 0 {
		return fmt.Errorf("invalid pool id %d", c.Pool.ID)
	}
	if c.Pool.RewardMethod == "" {
		return errors.New("reward method is required")
	}
	if c.Pool.RewardPriceID == "" || c.Pool.PairedPriceID == "" {
		return errors.New("both price ids are required")
	}
	if c.Pool.PairedReserveIndex != 0 && c.Pool.PairedReserveIndex != 1 {
		return fmt.Errorf("paired reserve index must be 0 or 1, got %d", c.Pool.PairedReserveIndex)
	}
	if c.Sampling.Lookback == 0 {
		return errors.New("block lookback must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsUint64 retrieves a block count from the environment. Unparsable values fall back
// to the default; negative values are an error.
func GetEnvAsUint64(key string, defaultValue uint64) (uint64, error) {
	value, exists := GetEnv(key)
	if !exists {
		return defaultValue, nil
	}
	intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return defaultValue, nil
	}
	if intValue < 0 {
		return defaultValue, fmt.Errorf("%s must not be negative, got %d", key, intValue)
	}
	return uint64(intValue), nil
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
