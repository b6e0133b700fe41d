package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

// PoolInfo is the subset of the staking contract's pool entry the APR needs.
type PoolInfo struct {
	LPToken    common.Address
	AllocPoint *big.Int
}

// Reserves is the decoded result of getReserves.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Reserve returns reserve 0 or 1.
func (r Reserves) Reserve(index int) (*big.Int, error) {
	switch index {
	case 0:
		return r.Reserve0, nil
	case 1:
		return r.Reserve1, nil
	default:
		return nil, fmt.Errorf("reserve index %d out of range", index)
	}
}

// MasterChef reads the reward distribution parameters of a staking contract.
type MasterChef struct {
	caller       ethereum.ContractCaller
	address      common.Address
	abi          abi.ABI
	rewardMethod string
}

// NewMasterChef binds a staking contract. rewardMethod names the per-block
// emission getter (BRLPerBlock on AuroraSwap) and must exist in the ABI.
func NewMasterChef(caller ethereum.ContractCaller, address common.Address, parsed abi.ABI, rewardMethod string) (*MasterChef, error) {
	for _, method := range []string{rewardMethod, "poolInfo", "totalAllocPoint"} {
		if _, ok := parsed.Methods[method]; !ok {
			return nil, fmt.Errorf("staking abi has no method %q", method)
		}
	}
	return &MasterChef{caller: caller, address: address, abi: parsed, rewardMethod: rewardMethod}, nil
}

// Address returns the staking contract address.
func (m *MasterChef) Address() common.Address {
	return m.address
}

// RewardPerBlock returns the raw 18-decimal emission per block.
func (m *MasterChef) RewardPerBlock(ctx context.Context) (*big.Int, error) {
	values, err := callMethod(ctx, m.caller, m.address, m.abi, m.rewardMethod)
	if err != nil {
		return nil, err
	}
	return firstBigInt(m.rewardMethod, values)
}

// TotalAllocPoint returns the allocation points summed over every pool.
func (m *MasterChef) TotalAllocPoint(ctx context.Context) (*big.Int, error) {
	values, err := callMethod(ctx, m.caller, m.address, m.abi, "totalAllocPoint")
	if err != nil {
		return nil, err
	}
	return firstBigInt("totalAllocPoint", values)
}

// PoolInfo returns the LP token and allocation points of pool pid.
func (m *MasterChef) PoolInfo(ctx context.Context, pid int64) (PoolInfo, error) {
	values, err := callMethod(ctx, m.caller, m.address, m.abi, "poolInfo", big.NewInt(pid))
	if err != nil {
		return PoolInfo{}, err
	}
	if len(values) < 2 {
		return PoolInfo{}, model.Errorf(model.KindContractCall, "poolInfo", "expected at least 2 outputs, got %d", len(values))
	}

	lpToken, err := asAddress(values[0])
	if err != nil {
		return PoolInfo{}, model.NewError(model.KindContractCall, "poolInfo", fmt.Errorf("lpToken: %w", err))
	}
	allocPoint, err := asBigInt(values[1])
	if err != nil {
		return PoolInfo{}, model.NewError(model.KindContractCall, "poolInfo", fmt.Errorf("allocPoint: %w", err))
	}

	return PoolInfo{LPToken: lpToken, AllocPoint: allocPoint}, nil
}

// Pair reads the state of a Uniswap-V2 style LP pair.
type Pair struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewPair binds an LP pair contract.
func NewPair(caller ethereum.ContractCaller, address common.Address, parsed abi.ABI) *Pair {
	return &Pair{caller: caller, address: address, abi: parsed}
}

// BalanceOf returns the raw LP balance of holder.
func (p *Pair) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, p.caller, p.address, p.abi, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return firstBigInt("balanceOf", values)
}

// TotalSupply returns the raw LP total supply.
func (p *Pair) TotalSupply(ctx context.Context) (*big.Int, error) {
	values, err := callMethod(ctx, p.caller, p.address, p.abi, "totalSupply")
	if err != nil {
		return nil, err
	}
	return firstBigInt("totalSupply", values)
}

// GetReserves returns both reserves of the pair.
func (p *Pair) GetReserves(ctx context.Context) (Reserves, error) {
	values, err := callMethod(ctx, p.caller, p.address, p.abi, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	if len(values) < 2 {
		return Reserves{}, model.Errorf(model.KindContractCall, "getReserves", "expected at least 2 outputs, got %d", len(values))
	}

	r0, err := asBigInt(values[0])
	if err != nil {
		return Reserves{}, model.NewError(model.KindContractCall, "getReserves", err)
	}
	r1, err := asBigInt(values[1])
	if err != nil {
		return Reserves{}, model.NewError(model.KindContractCall, "getReserves", err)
	}

	reserves := Reserves{Reserve0: r0, Reserve1: r1}
	if len(values) > 2 {
		if ts, ok := values[2].(uint32); ok {
			reserves.BlockTimestampLast = ts
		}
	}
	return reserves, nil
}

func callMethod(ctx context.Context, caller ethereum.ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, model.NewError(model.KindContractCall, method, fmt.Errorf("pack: %w", err))
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, model.NewError(model.KindContractCall, method, fmt.Errorf("call %s: %w", to.Hex(), err))
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, model.NewError(model.KindContractCall, method, fmt.Errorf("unpack: %w", err))
	}
	return values, nil
}

func firstBigInt(method string, values []interface{}) (*big.Int, error) {
	if len(values) == 0 {
		return nil, model.Errorf(model.KindContractCall, method, "empty result")
	}
	v, err := asBigInt(values[0])
	if err != nil {
		return nil, model.NewError(model.KindContractCall, method, err)
	}
	return v, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
