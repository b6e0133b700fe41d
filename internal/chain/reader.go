package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

// Reader bundles every chain read the APR pipeline performs against one staking contract.
// It holds no mutable state and is safe for concurrent use.
type Reader struct {
	backend Backend
	chef    *MasterChef
	pairABI abi.ABI
}

// NewReader binds the staking contract at staking on backend.
func NewReader(backend Backend, staking common.Address, stakingABI, pairABI abi.ABI, rewardMethod string) (*Reader, error) {
	chef, err := NewMasterChef(backend, staking, stakingABI, rewardMethod)
	if err != nil {
		return nil, err
	}
	for _, method := range []string{"balanceOf", "getReserves", "totalSupply"} {
		if _, ok := pairABI.Methods[method]; !ok {
			return nil, fmt.Errorf("pair abi has no method %q", method)
		}
	}
	return &Reader{backend: backend, chef: chef, pairABI: pairABI}, nil
}

// StakingAddress returns the staking contract address.
func (r *Reader) StakingAddress() common.Address {
	return r.chef.Address()
}

// Ping verifies the endpoint answers.
func (r *Reader) Ping(ctx context.Context) error {
	id, err := r.backend.ChainID(ctx)
	if err != nil {
		return model.NewError(model.KindConnection, "ping", err)
	}
	if id == nil || id.Sign() <= 0 {
		return model.Errorf(model.KindConnection, "ping", "endpoint returned invalid chain id %v", id)
	}
	return nil
}

// LatestBlock returns the newest block sample.
func (r *Reader) LatestBlock(ctx context.Context) (model.BlockSample, error) {
	header, err := r.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return model.BlockSample{}, model.NewError(model.KindContractCall, "latest header", err)
	}
	return model.BlockSample{Number: header.Number.Uint64(), Timestamp: header.Time}, nil
}

// BlockAt returns the sample for block number.
func (r *Reader) BlockAt(ctx context.Context, number uint64) (model.BlockSample, error) {
	header, err := r.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return model.BlockSample{}, model.NewError(model.KindContractCall, fmt.Sprintf("header %d", number), err)
	}
	return model.BlockSample{Number: number, Timestamp: header.Time}, nil
}

// RewardPerBlock returns the staking contract's raw emission per block.
func (r *Reader) RewardPerBlock(ctx context.Context) (*big.Int, error) {
	return r.chef.RewardPerBlock(ctx)
}

// PoolInfo returns the entry of pool pid.
func (r *Reader) PoolInfo(ctx context.Context, pid int64) (PoolInfo, error) {
	return r.chef.PoolInfo(ctx, pid)
}

// TotalAllocPoint returns the allocation points summed over all pools.
func (r *Reader) TotalAllocPoint(ctx context.Context) (*big.Int, error) {
	return r.chef.TotalAllocPoint(ctx)
}

// LPBalance returns the raw LP balance of holder on pair lpToken.
func (r *Reader) LPBalance(ctx context.Context, lpToken, holder common.Address) (*big.Int, error) {
	return NewPair(r.backend, lpToken, r.pairABI).BalanceOf(ctx, holder)
}

// Reserves returns the reserves of pair lpToken.
func (r *Reader) Reserves(ctx context.Context, lpToken common.Address) (Reserves, error) {
	return NewPair(r.backend, lpToken, r.pairABI).GetReserves(ctx)
}

// TotalSupply returns the raw LP supply of pair lpToken.
func (r *Reader) TotalSupply(ctx context.Context, lpToken common.Address) (*big.Int, error) {
	return NewPair(r.backend, lpToken, r.pairABI).TotalSupply(ctx)
}
