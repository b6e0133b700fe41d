package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the variables read by LoadWithFlags
const EnvPrefix = "APR"

// LoadWithFlags merges a config file, APR_* environment variables and flags
// on top of the defaults of Load. Flag names are the keys, e.g. --rpc, --pool-id.
func LoadWithFlags(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	base := Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", base.RPCURL)
	v.SetDefault("price-api-url", base.PriceAPIURL)
	v.SetDefault("price-api-key", base.PriceAPIKey)
	v.SetDefault("pool-id", base.Pool.ID)
	v.SetDefault("staking-address", base.Pool.StakingAddress)
	v.SetDefault("staking-abi", base.Pool.StakingABIFile)
	v.SetDefault("pair-abi", base.Pool.PairABIFile)
	v.SetDefault("reward-method", base.Pool.RewardMethod)
	v.SetDefault("reward-price-id", base.Pool.RewardPriceID)
	v.SetDefault("paired-price-id", base.Pool.PairedPriceID)
	v.SetDefault("paired-reserve-index", base.Pool.PairedReserveIndex)
	v.SetDefault("lookback", base.Sampling.Lookback)
	v.SetDefault("floor-block", base.Sampling.FloorBlock)
	v.SetDefault("timeout", base.RequestTimeout)
	v.SetDefault("parallel", base.ParallelReads)
	v.SetDefault("log-level", base.LogLevel)
	v.SetDefault("log-format", base.LogFormat)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := base
	cfg.RPCURL = v.GetString("rpc")
	cfg.PriceAPIURL = v.GetString("price-api-url")
	cfg.PriceAPIKey = v.GetString("price-api-key")
	cfg.RequestTimeout = v.GetDuration("timeout")
	cfg.ParallelReads = v.GetBool("parallel")
	cfg.LogLevel = strings.ToLower(v.GetString("log-level"))
	cfg.LogFormat = strings.ToLower(v.GetString("log-format"))
	cfg.Pool = PoolConfig{
		ID:                 v.GetInt64("pool-id"),
		StakingAddress:     v.GetString("staking-address"),
		StakingABIFile:     v.GetString("staking-abi"),
		PairABIFile:        v.GetString("pair-abi"),
		RewardMethod:       v.GetString("reward-method"),
		RewardPriceID:      v.GetString("reward-price-id"),
		PairedPriceID:      v.GetString("paired-price-id"),
		PairedReserveIndex: v.GetInt("paired-reserve-index"),
	}
	lookback, floor := v.GetInt64("lookback"), v.GetInt64("floor-block")
	if lookback < 0 || floor < 0 {
		return Config{}, fmt.Errorf("block lookback and floor must not be negative, got %d and %d", lookback, floor)
	}
	cfg.Sampling = SamplingConfig{
		Lookback:   uint64(lookback),
		FloorBlock: uint64(floor),
	}

	return cfg, nil
}
