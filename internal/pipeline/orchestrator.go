// Package pipeline runs the APR computation end to end: it reads the chain and
// the price feed, then feeds the figures through the apr calculators.
package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/auroraswap-apr/internal/apr"
	"github.com/yourorg/auroraswap-apr/internal/chain"
	"github.com/yourorg/auroraswap-apr/internal/config"
	"github.com/yourorg/auroraswap-apr/internal/model"
	tracing "github.com/yourorg/auroraswap-apr/internal/otel"
)

// Stage names, used in error wrapping, span names and logs
const (
	StageConnect      = "connect"
	StageReadEmission = "read emission"
	StageReadRate     = "read rate"
	StageReadPool     = "read pool"
	StageCompute      = "compute"
)

// ChainReader is the subset of chain reads the pipeline needs.
// *chain.Reader satisfies it.
type ChainReader interface {
	StakingAddress() common.Address
	Ping(ctx context.Context) error
	LatestBlock(ctx context.Context) (model.BlockSample, error)
	BlockAt(ctx context.Context, number uint64) (model.BlockSample, error)
	RewardPerBlock(ctx context.Context) (*big.Int, error)
	PoolInfo(ctx context.Context, pid int64) (chain.PoolInfo, error)
	TotalAllocPoint(ctx context.Context) (*big.Int, error)
	LPBalance(ctx context.Context, lpToken, holder common.Address) (*big.Int, error)
	Reserves(ctx context.Context, lpToken common.Address) (chain.Reserves, error)
	TotalSupply(ctx context.Context, lpToken common.Address) (*big.Int, error)
}

// PriceReader returns USD spot prices by feed id.
type PriceReader interface {
	Price(ctx context.Context, id string) (float64, error)
}

// Options selects the pool and the sampling window.
type Options struct {
	PoolID             int64
	RewardPriceID      string
	PairedPriceID      string
	PairedReserveIndex int
	Lookback           uint64
	FloorBlock         uint64

	// Parallel runs the emission, rate and pool reads concurrently
	Parallel bool
}

// OptionsFromConfig maps the service configuration onto pipeline options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		PoolID:             cfg.Pool.ID,
		RewardPriceID:      cfg.Pool.RewardPriceID,
		PairedPriceID:      cfg.Pool.PairedPriceID,
		PairedReserveIndex: cfg.Pool.PairedReserveIndex,
		Lookback:           cfg.Sampling.Lookback,
		FloorBlock:         cfg.Sampling.FloorBlock,
		Parallel:           cfg.ParallelReads,
	}
}

// Orchestrator owns no mutable state; concurrent runs are independent.
type Orchestrator struct {
	chain  ChainReader
	prices PriceReader
	opts   Options
	log    *logrus.Entry
}

// New creates an orchestrator. Zero sampling options fall back to the defaults.
func New(chainReader ChainReader, prices PriceReader, opts Options) *Orchestrator {
	if opts.Lookback == 0 {
		opts.Lookback = apr.DefaultLookback
	}
	if opts.FloorBlock == 0 {
		opts.FloorBlock = apr.DefaultFloorBlock
	}
	return &Orchestrator{
		chain:  chainReader,
		prices: prices,
		opts:   opts,
		log:    logrus.WithFields(logrus.Fields{"component": "pipeline", "pool_id": opts.PoolID}),
	}
}

// rateSample is the output of the read rate stage
type rateSample struct {
	current      model.BlockSample
	sample       model.BlockSample
	blocksPerDay float64
}

// Run computes both APR figures for the configured pool.
func (o *Orchestrator) Run(ctx context.Context) (model.APRResult, error) {
	b, err := o.Breakdown(ctx)
	if err != nil {
		return model.APRResult{}, err
	}
	return b.Result, nil
}

// Breakdown runs the pipeline and returns every intermediate figure.
// The first failing stage aborts the run.
func (o *Orchestrator) Breakdown(ctx context.Context) (model.Breakdown, error) {
	ctx, span := tracing.Tracer().Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("pool.id", o.opts.PoolID),
		attribute.Bool("pipeline.parallel", o.opts.Parallel),
	)

	if err := o.stage(ctx, StageConnect, o.chain.Ping); err != nil {
		return model.Breakdown{}, err
	}

	var (
		emission model.EmissionParams
		info     *chain.PoolInfo
		rate     rateSample
		pool     model.PoolState
	)
	readEmission := func(ctx context.Context) (err error) {
		var read chain.PoolInfo
		emission, read, err = o.readEmission(ctx)
		if err == nil && !o.opts.Parallel {
			info = &read
		}
		return err
	}
	readRate := func(ctx context.Context) (err error) {
		rate, err = o.readRate(ctx)
		return err
	}
	readPool := func(ctx context.Context) (err error) {
		pool, err = o.readPool(ctx, info)
		return err
	}

	if o.opts.Parallel {
		if err := o.parallel(ctx, []string{StageReadEmission, StageReadRate, StageReadPool},
			[]func(context.Context) error{readEmission, readRate, readPool}); err != nil {
			return model.Breakdown{}, err
		}
	} else {
		if err := o.stage(ctx, StageReadEmission, readEmission); err != nil {
			return model.Breakdown{}, err
		}
		if err := o.stage(ctx, StageReadRate, readRate); err != nil {
			return model.Breakdown{}, err
		}
		if err := o.stage(ctx, StageReadPool, readPool); err != nil {
			return model.Breakdown{}, err
		}
	}

	var b model.Breakdown
	err := o.stage(ctx, StageCompute, func(ctx context.Context) (err error) {
		b, err = o.compute(emission, rate, pool)
		return err
	})
	if err != nil {
		return model.Breakdown{}, err
	}

	o.log.WithFields(logrus.Fields{
		"apr":      b.Result.APR,
		"apr_vfat": b.Result.APRVfat,
	}).Info("APR computed")
	return b, nil
}

// stage runs fn inside a span and tags its error with the stage name.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracing.Tracer().Start(ctx, "pipeline."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		tracing.RecordError(ctx, err)
		o.log.WithFields(logrus.Fields{
			"stage": name,
			"kind":  model.KindOf(err),
		}).WithError(err).Warn("Pipeline stage failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// parallel runs the stages concurrently and reports the first error in stage order.
func (o *Orchestrator) parallel(ctx context.Context, names []string, fns []func(context.Context) error) error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i := range fns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = o.stage(ctx, names[i], fns[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// readEmission also returns the pool info it read so a sequential run can reuse it.
func (o *Orchestrator) readEmission(ctx context.Context) (model.EmissionParams, chain.PoolInfo, error) {
	perBlock, err := o.chain.RewardPerBlock(ctx)
	if err != nil {
		return model.EmissionParams{}, chain.PoolInfo{}, err
	}
	info, err := o.chain.PoolInfo(ctx, o.opts.PoolID)
	if err != nil {
		return model.EmissionParams{}, chain.PoolInfo{}, err
	}
	total, err := o.chain.TotalAllocPoint(ctx)
	if err != nil {
		return model.EmissionParams{}, chain.PoolInfo{}, err
	}

	alloc := model.PoolAllocation{AllocPoint: info.AllocPoint, TotalAllocPoint: total}
	percent, err := apr.RewardPercent(alloc)
	if err != nil {
		return model.EmissionParams{}, chain.PoolInfo{}, err
	}

	price, err := o.prices.Price(ctx, o.opts.RewardPriceID)
	if err != nil {
		return model.EmissionParams{}, chain.PoolInfo{}, err
	}

	o.log.WithFields(logrus.Fields{
		"reward_per_block": perBlock.String(),
		"alloc_point":      info.AllocPoint.String(),
		"total_alloc":      total.String(),
		"reward_percent":   percent,
		"reward_price":     price,
	}).Debug("Emission read")

	return model.EmissionParams{
		RewardPerBlock: perBlock,
		RewardPriceUSD: price,
		RewardPercent:  percent,
		Allocation:     alloc,
	}, info, nil
}

func (o *Orchestrator) readRate(ctx context.Context) (rateSample, error) {
	current, err := o.chain.LatestBlock(ctx)
	if err != nil {
		return rateSample{}, err
	}

	number := apr.SampleBlockNumber(current.Number, o.opts.Lookback, o.opts.FloorBlock)
	if number >= current.Number {
		return rateSample{}, model.Errorf(model.KindInvalidSampleWindow, "sample block",
			"chain head %d is not past the floor block %d", current.Number, number)
	}

	sample, err := o.chain.BlockAt(ctx, number)
	if err != nil {
		return rateSample{}, err
	}

	blocksPerDay, err := apr.EstimateBlocksPerDay(current, sample)
	if err != nil {
		return rateSample{}, err
	}

	o.log.WithFields(logrus.Fields{
		"current_block":  current.Number,
		"sample_block":   sample.Number,
		"blocks_per_day": blocksPerDay,
		"avg_block_time": apr.AverageBlockTime(blocksPerDay).String(),
	}).Debug("Block rate estimated")

	return rateSample{current: current, sample: sample, blocksPerDay: blocksPerDay}, nil
}

// readPool reads the LP position. A nil info is fetched here, as in parallel runs.
func (o *Orchestrator) readPool(ctx context.Context, info *chain.PoolInfo) (model.PoolState, error) {
	if info == nil {
		read, err := o.chain.PoolInfo(ctx, o.opts.PoolID)
		if err != nil {
			return model.PoolState{}, err
		}
		info = &read
	}
	lp := info.LPToken

	staked, err := o.chain.LPBalance(ctx, lp, o.chain.StakingAddress())
	if err != nil {
		return model.PoolState{}, err
	}
	reserves, err := o.chain.Reserves(ctx, lp)
	if err != nil {
		return model.PoolState{}, err
	}
	reserveB, err := reserves.Reserve(o.opts.PairedReserveIndex)
	if err != nil {
		return model.PoolState{}, model.NewError(model.KindContractCall, "getReserves", err)
	}
	supply, err := o.chain.TotalSupply(ctx, lp)
	if err != nil {
		return model.PoolState{}, err
	}

	price, err := o.prices.Price(ctx, o.opts.PairedPriceID)
	if err != nil {
		return model.PoolState{}, err
	}

	o.log.WithFields(logrus.Fields{
		"lp_token":     lp.Hex(),
		"lp_staked":    staked.String(),
		"reserve":      reserveB.String(),
		"total_supply": supply.String(),
		"paired_price": price,
	}).Debug("Pool read")

	return model.PoolState{
		LPToken:        lp.Hex(),
		LPStaked:       staked,
		ReserveB:       reserveB,
		TotalSupply:    supply,
		PairedPriceUSD: price,
	}, nil
}

func (o *Orchestrator) compute(emission model.EmissionParams, rate rateSample, pool model.PoolState) (model.Breakdown, error) {
	rewards, err := apr.ChainRateReward(emission.RewardPerBlock, emission.RewardPriceUSD, emission.RewardPercent, rate.blocksPerDay)
	if err != nil {
		return model.Breakdown{}, err
	}
	rewardsVfat, err := apr.FixedRateReward(emission.RewardPerBlock, emission.RewardPriceUSD, emission.RewardPercent)
	if err != nil {
		return model.Breakdown{}, err
	}

	lpStaked := apr.NormalizeWei(pool.LPStaked)
	ethPerLP, err := apr.EthPerLP(pool.ReserveB, pool.TotalSupply)
	if err != nil {
		return model.Breakdown{}, err
	}
	stakedUSD, err := apr.StakedValueUSD(lpStaked, pool.ReserveB, pool.TotalSupply, pool.PairedPriceUSD)
	if err != nil {
		return model.Breakdown{}, err
	}

	result, err := apr.Result(rewards, rewardsVfat, stakedUSD)
	if err != nil {
		return model.Breakdown{}, err
	}

	b := model.NewBreakdown(o.opts.PoolID)
	b.LPToken = pool.LPToken
	b.CurrentBlock = rate.current
	b.SampleBlock = rate.sample
	b.BlocksPerDay = rate.blocksPerDay
	b.AvgBlockTimeSeconds = apr.AverageBlockTime(rate.blocksPerDay).Seconds()
	b.AllocPoint = emission.Allocation.AllocPoint.String()
	b.TotalAllocPoint = emission.Allocation.TotalAllocPoint.String()
	b.RewardPercent = emission.RewardPercent
	b.RewardPerBlock = emission.RewardPerBlock.String()
	b.RewardPriceUSD = emission.RewardPriceUSD
	b.PairedPriceUSD = pool.PairedPriceUSD
	b.RewardsPerYear = rewards
	b.RewardsPerYearVfat = rewardsVfat
	b.LPStaked = lpStaked
	b.EthPerLP = ethPerLP
	b.StakedUSD = stakedUSD
	b.Result = result
	return b, nil
}
