package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/auroraswap-apr/internal/apr"
	"github.com/yourorg/auroraswap-apr/internal/chain"
	"github.com/yourorg/auroraswap-apr/internal/config"
	"github.com/yourorg/auroraswap-apr/internal/model"
)

var (
	stakingAddr = common.HexToAddress("0x35CC71888DBb9FfB777337324a4A60fdBAA19DDE")
	lpAddr      = common.HexToAddress("0x84567E7511E0d97DE676d236AEa7aE688221799e")
)

const genesisTime = 1_600_000_000

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// fakeChain produces one block per second and fails any method listed in errs.
type fakeChain struct {
	mu    sync.Mutex
	calls []string

	head         uint64
	sampleTime   map[uint64]uint64
	perBlock     *big.Int
	allocPoint   *big.Int
	totalAlloc   *big.Int
	lpStaked     *big.Int
	reserves     chain.Reserves
	totalSupply  *big.Int
	balanceOwner common.Address
	errs         map[string]error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		head:        20000,
		sampleTime:  map[uint64]uint64{},
		perBlock:    tokens(2),
		allocPoint:  big.NewInt(1000),
		totalAlloc:  big.NewInt(4000),
		lpStaked:    tokens(100),
		reserves:    chain.Reserves{Reserve0: tokens(9_000_000), Reserve1: tokens(500)},
		totalSupply: tokens(1000),
		errs:        map[string]error{},
	}
}

func (f *fakeChain) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	return f.errs[method]
}

func (f *fakeChain) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == method {
			return true
		}
	}
	return false
}

func (f *fakeChain) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeChain) StakingAddress() common.Address { return stakingAddr }

func (f *fakeChain) Ping(context.Context) error { return f.record("Ping") }

func (f *fakeChain) LatestBlock(context.Context) (model.BlockSample, error) {
	if err := f.record("LatestBlock"); err != nil {
		return model.BlockSample{}, err
	}
	return model.BlockSample{Number: f.head, Timestamp: genesisTime + f.head}, nil
}

func (f *fakeChain) BlockAt(_ context.Context, number uint64) (model.BlockSample, error) {
	if err := f.record("BlockAt"); err != nil {
		return model.BlockSample{}, err
	}
	ts, ok := f.sampleTime[number]
	if !ok {
		ts = genesisTime + number
	}
	return model.BlockSample{Number: number, Timestamp: ts}, nil
}

func (f *fakeChain) RewardPerBlock(context.Context) (*big.Int, error) {
	return f.perBlock, f.record("RewardPerBlock")
}

func (f *fakeChain) PoolInfo(_ context.Context, pid int64) (chain.PoolInfo, error) {
	if err := f.record("PoolInfo"); err != nil {
		return chain.PoolInfo{}, err
	}
	if pid != 1 {
		return chain.PoolInfo{}, model.Errorf(model.KindContractCall, "poolInfo", "unknown pool %d", pid)
	}
	return chain.PoolInfo{LPToken: lpAddr, AllocPoint: f.allocPoint}, nil
}

func (f *fakeChain) TotalAllocPoint(context.Context) (*big.Int, error) {
	return f.totalAlloc, f.record("TotalAllocPoint")
}

func (f *fakeChain) LPBalance(_ context.Context, lpToken, holder common.Address) (*big.Int, error) {
	if err := f.record("LPBalance"); err != nil {
		return nil, err
	}
	if lpToken != lpAddr || holder != stakingAddr {
		return big.NewInt(0), nil
	}
	return f.lpStaked, nil
}

func (f *fakeChain) Reserves(context.Context, common.Address) (chain.Reserves, error) {
	return f.reserves, f.record("Reserves")
}

func (f *fakeChain) TotalSupply(context.Context, common.Address) (*big.Int, error) {
	return f.totalSupply, f.record("TotalSupply")
}

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) Price(_ context.Context, id string) (float64, error) {
	p, ok := f.prices[id]
	if !ok {
		return 0, model.Errorf(model.KindPriceUnavailable, id, "no price")
	}
	return p, nil
}

func newFakePrices() *fakePrices {
	return &fakePrices{prices: map[string]float64{"borealis": 0.5, "ethereum": 2000}}
}

func testOptions(parallel bool) Options {
	return Options{
		PoolID:             1,
		RewardPriceID:      "borealis",
		PairedPriceID:      "ethereum",
		PairedReserveIndex: 1,
		Lookback:           10000,
		FloorBlock:         500,
		Parallel:           parallel,
	}
}

func TestOrchestrator_Run(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		o := New(newFakeChain(), newFakePrices(), testOptions(parallel))

		got, err := o.Run(context.Background())
		require.NoError(t, err)

		// 2 tokens/block * $0.5 * 25% share, 86400 blocks/day
		rewards := 2 * 0.5 * 0.25 * 86400.0 * 365
		rewardsVfat := 2 * 0.5 * 0.25 * apr.VfatBlocksPerDay * 365
		// 100 LP * 0.5 WETH/LP * 2 legs * $2000
		staked := 100 * 0.5 * 2 * 2000.0

		assert.InDelta(t, rewards/staked*100, got.APR, 1e-6, "parallel=%v", parallel)
		assert.InDelta(t, rewardsVfat/staked*100, got.APRVfat, 1e-6, "parallel=%v", parallel)
		assert.InDelta(t, 3942.0, got.APR, 1e-6)
	}
}

func TestOrchestrator_Breakdown(t *testing.T) {
	fc := newFakeChain()
	o := New(fc, newFakePrices(), testOptions(false))

	b, err := o.Breakdown(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.PoolID)
	assert.Equal(t, lpAddr.Hex(), b.LPToken)
	assert.Equal(t, uint64(20000), b.CurrentBlock.Number)
	assert.Equal(t, uint64(10000), b.SampleBlock.Number)
	assert.InDelta(t, 86400.0, b.BlocksPerDay, 1e-9)
	assert.InDelta(t, 1.0, b.AvgBlockTimeSeconds, 1e-9)
	assert.Equal(t, "1000", b.AllocPoint)
	assert.Equal(t, "4000", b.TotalAllocPoint)
	assert.Equal(t, 0.25, b.RewardPercent)
	assert.Equal(t, tokens(2).String(), b.RewardPerBlock)
	assert.InDelta(t, 100.0, b.LPStaked, 1e-9)
	assert.InDelta(t, 0.5, b.EthPerLP, 1e-12)
	assert.InDelta(t, 200000.0, b.StakedUSD, 1e-6)
	assert.NotZero(t, b.CollectedAt)
}

func TestOrchestrator_ParallelMatchesSequential(t *testing.T) {
	seq, err := New(newFakeChain(), newFakePrices(), testOptions(false)).Breakdown(context.Background())
	require.NoError(t, err)
	par, err := New(newFakeChain(), newFakePrices(), testOptions(true)).Breakdown(context.Background())
	require.NoError(t, err)

	par.CollectedAt = seq.CollectedAt
	assert.Equal(t, seq, par)
}

func TestOrchestrator_PoolInfoReads(t *testing.T) {
	fc := newFakeChain()
	_, err := New(fc, newFakePrices(), testOptions(false)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fc.count("PoolInfo"), "sequential runs reuse the emission stage pool info")

	fc = newFakeChain()
	_, err = New(fc, newFakePrices(), testOptions(true)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fc.count("PoolInfo"), "parallel pool reads fetch their own pool info")
}

func TestOrchestrator_UsesPairedReserveIndex(t *testing.T) {
	opts := testOptions(false)
	opts.PairedReserveIndex = 0

	b, err := New(newFakeChain(), newFakePrices(), opts).Breakdown(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 9000.0, b.EthPerLP, 1e-9)
}

func TestOrchestrator_StageFailures(t *testing.T) {
	callErr := errors.New("execution reverted")

	tests := []struct {
		name   string
		mutate func(*fakeChain, *fakePrices)
		stage  string
		want   *model.Error
	}{
		{
			name: "unreachable endpoint",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.errs["Ping"] = model.NewError(model.KindConnection, "ping", errors.New("dial tcp: refused"))
			},
			stage: StageConnect,
			want:  model.ErrConnection,
		},
		{
			name: "reward getter reverts",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.errs["RewardPerBlock"] = model.NewError(model.KindContractCall, "BRLPerBlock", callErr)
			},
			stage: StageReadEmission,
			want:  model.ErrContractCall,
		},
		{
			name: "reward price missing",
			mutate: func(_ *fakeChain, p *fakePrices) {
				delete(p.prices, "borealis")
			},
			stage: StageReadEmission,
			want:  model.ErrPriceUnavailable,
		},
		{
			name: "alloc exceeds total",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.allocPoint = big.NewInt(5000)
			},
			stage: StageReadEmission,
			want:  model.ErrInvalidEmissionParams,
		},
		{
			name: "zero elapsed time",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.sampleTime[10000] = genesisTime + c.head
			},
			stage: StageReadRate,
			want:  model.ErrInvalidSampleWindow,
		},
		{
			name: "head below floor",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.head = 400
			},
			stage: StageReadRate,
			want:  model.ErrInvalidSampleWindow,
		},
		{
			name: "header read fails",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.errs["BlockAt"] = model.NewError(model.KindContractCall, "header 10000", callErr)
			},
			stage: StageReadRate,
			want:  model.ErrContractCall,
		},
		{
			name: "reserves revert",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.errs["Reserves"] = model.NewError(model.KindContractCall, "getReserves", callErr)
			},
			stage: StageReadPool,
			want:  model.ErrContractCall,
		},
		{
			name: "paired price missing",
			mutate: func(_ *fakeChain, p *fakePrices) {
				delete(p.prices, "ethereum")
			},
			stage: StageReadPool,
			want:  model.ErrPriceUnavailable,
		},
		{
			name: "empty pool",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.totalSupply = big.NewInt(0)
			},
			stage: StageCompute,
			want:  model.ErrEmptyPool,
		},
		{
			name: "nothing staked",
			mutate: func(c *fakeChain, _ *fakePrices) {
				c.lpStaked = big.NewInt(0)
			},
			stage: StageCompute,
			want:  model.ErrDivisionByZero,
		},
	}

	for _, tt := range tests {
		for _, parallel := range []bool{false, true} {
			t.Run(tt.name, func(t *testing.T) {
				fc := newFakeChain()
				fp := newFakePrices()
				tt.mutate(fc, fp)

				got, err := New(fc, fp, testOptions(parallel)).Run(context.Background())
				require.Error(t, err)
				assert.Zero(t, got)
				assert.ErrorIs(t, err, tt.want)
				assert.Equal(t, tt.want.Kind, model.KindOf(err))
				assert.Contains(t, err.Error(), tt.stage+": ")
			})
		}
	}
}

func TestOrchestrator_EmptyPoolIsDivisionByZero(t *testing.T) {
	fc := newFakeChain()
	fc.totalSupply = big.NewInt(0)

	_, err := New(fc, newFakePrices(), testOptions(false)).Run(context.Background())
	assert.ErrorIs(t, err, model.ErrDivisionByZero)
}

func TestOrchestrator_ConnectFailureStopsPipeline(t *testing.T) {
	fc := newFakeChain()
	fc.errs["Ping"] = model.NewError(model.KindConnection, "ping", errors.New("no route to host"))

	_, err := New(fc, newFakePrices(), testOptions(true)).Run(context.Background())
	require.Error(t, err)

	assert.True(t, fc.called("Ping"))
	assert.False(t, fc.called("RewardPerBlock"))
	assert.False(t, fc.called("LatestBlock"))
	assert.False(t, fc.called("LPBalance"))
}

func TestOrchestrator_SequentialStopsAtFirstFailure(t *testing.T) {
	fc := newFakeChain()
	fc.errs["RewardPerBlock"] = model.NewError(model.KindContractCall, "BRLPerBlock", errors.New("reverted"))

	_, err := New(fc, newFakePrices(), testOptions(false)).Run(context.Background())
	require.Error(t, err)

	assert.False(t, fc.called("LatestBlock"))
	assert.False(t, fc.called("Reserves"))
}

func TestOrchestrator_ParallelReportsFirstStageError(t *testing.T) {
	fc := newFakeChain()
	fc.errs["RewardPerBlock"] = model.NewError(model.KindContractCall, "BRLPerBlock", errors.New("reverted"))
	fc.errs["TotalSupply"] = model.NewError(model.KindContractCall, "totalSupply", errors.New("reverted"))
	fp := newFakePrices()
	delete(fp.prices, "ethereum")

	_, err := New(fc, fp, testOptions(true)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageReadEmission+": ")
}

func TestNew_DefaultSampling(t *testing.T) {
	o := New(newFakeChain(), newFakePrices(), Options{PoolID: 1})
	assert.Equal(t, apr.DefaultLookback, o.opts.Lookback)
	assert.Equal(t, apr.DefaultFloorBlock, o.opts.FloorBlock)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Load()
	cfg.Pool.ID = 4
	cfg.ParallelReads = true
	cfg.Sampling.Lookback = 1234

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, int64(4), opts.PoolID)
	assert.True(t, opts.Parallel)
	assert.Equal(t, uint64(1234), opts.Lookback)
	assert.Equal(t, cfg.Pool.RewardPriceID, opts.RewardPriceID)
	assert.Equal(t, cfg.Pool.PairedReserveIndex, opts.PairedReserveIndex)
}
