package pipeline

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/auroraswap-apr/internal/chain"
	"github.com/yourorg/auroraswap-apr/internal/config"
	"github.com/yourorg/auroraswap-apr/internal/fetch"
	"github.com/yourorg/auroraswap-apr/internal/price"
)

// Dial builds an orchestrator over the live RPC endpoint and price API named in cfg.
// The returned func closes the RPC client.
func Dial(ctx context.Context, cfg config.Config) (*Orchestrator, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	stakingABI, err := chain.LoadABI(cfg.Pool.StakingABIFile, chain.MasterChefABI)
	if err != nil {
		return nil, nil, fmt.Errorf("staking abi: %w", err)
	}
	pairABI, err := chain.LoadABI(cfg.Pool.PairABIFile, chain.PairABI)
	if err != nil {
		return nil, nil, fmt.Errorf("pair abi: %w", err)
	}

	rpcHTTP := fetch.StandardClient(fetch.NewRetryClient(fetch.DefaultRetryMax), cfg.RequestTimeout)
	client, err := chain.Dial(ctx, cfg.RPCURL, rpcHTTP)
	if err != nil {
		return nil, nil, err
	}

	reader, err := chain.NewReader(client, common.HexToAddress(cfg.Pool.StakingAddress), stakingABI, pairABI, cfg.Pool.RewardMethod)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("bind staking contract: %w", err)
	}

	prices := price.NewCoinGeckoClient(price.Options{
		BaseURL:           cfg.PriceAPIURL,
		APIKey:            cfg.PriceAPIKey,
		RequestsPerSecond: cfg.PriceRateLimitRPS,
		Burst:             cfg.PriceRateLimitBurst,
		HTTPClient:        fetch.StandardClient(fetch.NewRetryClient(fetch.DefaultRetryMax), cfg.RequestTimeout),
	})

	logrus.WithFields(logrus.Fields{
		"rpc_url":       cfg.RPCURL,
		"staking":       cfg.Pool.StakingAddress,
		"pool_id":       cfg.Pool.ID,
		"reward_method": cfg.Pool.RewardMethod,
		"parallel":      cfg.ParallelReads,
	}).Info("Pipeline wired")

	return New(reader, prices, OptionsFromConfig(cfg)), client.Close, nil
}
