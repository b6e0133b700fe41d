// Command apr computes the APR of a staking pool once and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/auroraswap-apr/internal/config"
	"github.com/yourorg/auroraswap-apr/internal/logging"
	"github.com/yourorg/auroraswap-apr/internal/model"
	tracing "github.com/yourorg/auroraswap-apr/internal/otel"
	"github.com/yourorg/auroraswap-apr/internal/pipeline"
)

// runner is the part of the orchestrator the CLI drives
type runner interface {
	Run(ctx context.Context) (model.APRResult, error)
	Breakdown(ctx context.Context) (model.Breakdown, error)
}

// dialPipeline is swapped in tests
var dialPipeline = func(ctx context.Context, cfg config.Config) (runner, func(), error) {
	o, closeFn, err := pipeline.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return o, closeFn, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "apr",
		Short:        "AuroraSwap staking pool APR calculator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the APR once and print it",
		RunE:  runAPR,
	}

	runCmd.Flags().String("rpc", config.DefaultRPCURL, "chain JSON-RPC URL")
	runCmd.Flags().String("price-api-url", config.DefaultPriceAPIURL, "CoinGecko API base URL")
	runCmd.Flags().String("price-api-key", "", "CoinGecko demo API key")
	runCmd.Flags().Int64("pool-id", config.DefaultPoolID, "pool id in the staking contract")
	runCmd.Flags().String("staking-address", config.DefaultStakingAddress, "staking contract address")
	runCmd.Flags().String("staking-abi", "", "staking contract ABI JSON file (embedded ABI when empty)")
	runCmd.Flags().String("pair-abi", "", "LP pair ABI JSON file (embedded ABI when empty)")
	runCmd.Flags().String("reward-method", config.DefaultRewardMethod, "per-block emission getter on the staking contract")
	runCmd.Flags().String("reward-price-id", config.DefaultRewardPriceID, "CoinGecko id of the reward token")
	runCmd.Flags().String("paired-price-id", config.DefaultPairedPriceID, "CoinGecko id of the priced pair leg")
	runCmd.Flags().Int("paired-reserve-index", 1, "getReserves index of the priced leg (0 or 1)")
	runCmd.Flags().Uint64("lookback", config.DefaultLookback, "blocks between the current and the sample block")
	runCmd.Flags().Uint64("floor-block", config.DefaultFloorBlock, "lowest block the sample may use")
	runCmd.Flags().Duration("timeout", 0, "overall run timeout (REQUEST_TIMEOUT when unset)")
	runCmd.Flags().Bool("parallel", false, "run the chain and price reads concurrently")
	runCmd.Flags().Bool("breakdown", false, "print every intermediate figure instead of the APR pair")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().String("log-format", "text", "log format (text, json)")

	root.AddCommand(runCmd)
	return root
}

func runAPR(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWithFlags(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownTracer := tracing.InitTracer(cfg)
	defer shutdownTracer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	r, closeFn, err := dialPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	var out interface{}
	if breakdown, _ := cmd.Flags().GetBool("breakdown"); breakdown {
		out, err = r.Breakdown(ctx)
	} else {
		out, err = r.Run(ctx)
	}
	if err != nil {
		logrus.WithField("kind", model.KindOf(err)).Error(err)
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
