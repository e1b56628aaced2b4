package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// RPCLimiterKey is the rate limiter key shared by every RPC caller.
const RPCLimiterKey = "rpc"

// Reader implements domain.ContractReader over a JSON-RPC node. Every call is
// pinned to the block of the event being indexed.
type Reader struct {
	caller  ethereum.ContractCaller
	limiter domain.RateLimiter
}

// NewReader creates a Reader. limiter may be nil.
func NewReader(caller ethereum.ContractCaller, limiter domain.RateLimiter) *Reader {
	return &Reader{caller: caller, limiter: limiter}
}

func (r *Reader) call(ctx context.Context, contract abi.ABI, to string, block uint64, method string, args ...any) ([]any, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, RPCLimiterKey); err != nil {
			return nil, fmt.Errorf("chain: %s throttle: %w", method, err)
		}
	}
	addr := common.HexToAddress(to)
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, new(big.Int).SetUint64(block))
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %s on %s: %w", domain.ErrReverted, method, to, err)
		}
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, to, err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		// No code at the address, or a non-conforming contract.
		return nil, fmt.Errorf("%w: %s on %s returned %d bytes: %w", domain.ErrReverted, method, to, len(out), err)
	}
	return values, nil
}

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func (r *Reader) Decimals(ctx context.Context, token string, block uint64) (uint8, error) {
	out, err := r.call(ctx, erc20Contract, token, block, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals of %s is %T", domain.ErrReverted, token, out[0])
	}
	return d, nil
}

func (r *Reader) Name(ctx context.Context, token string, block uint64) (string, error) {
	return r.text(ctx, token, block, "name")
}

func (r *Reader) Symbol(ctx context.Context, token string, block uint64) (string, error) {
	return r.text(ctx, token, block, "symbol")
}

func (r *Reader) text(ctx context.Context, token string, block uint64, method string) (string, error) {
	out, err := r.call(ctx, erc20Contract, token, block, method)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s of %s is %T", domain.ErrReverted, method, token, out[0])
	}
	return s, nil
}

// GetPair returns the pair address for two tokens, or the zero address when
// the factory has none.
func (r *Reader) GetPair(ctx context.Context, factory, tokenA, tokenB string, block uint64) (string, error) {
	out, err := r.call(ctx, uniswapFactoryContract, factory, block, "getPair",
		common.HexToAddress(tokenA), common.HexToAddress(tokenB))
	if err != nil {
		return "", err
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("%w: getPair returned %T", domain.ErrReverted, out[0])
	}
	return lowerHex(a), nil
}

// GetItemInfo returns the RLP item data and status of a GTCR item.
func (r *Reader) GetItemInfo(ctx context.Context, tcr, itemID string, block uint64) ([]byte, domain.TCRStatus, error) {
	out, err := r.call(ctx, gtcrContract, tcr, block, "getItemInfo", common.HexToHash(itemID))
	if err != nil {
		return nil, 0, err
	}
	data, ok := out[0].([]byte)
	if !ok {
		return nil, 0, fmt.Errorf("%w: getItemInfo data is %T", domain.ErrReverted, out[0])
	}
	status, ok := out[1].(uint8)
	if !ok {
		return nil, 0, fmt.Errorf("%w: getItemInfo status is %T", domain.ErrReverted, out[1])
	}
	return data, domain.TCRStatus(status), nil
}

// ExecutorByProvider returns the executor a Gelato provider has assigned.
func (r *Reader) ExecutorByProvider(ctx context.Context, core, provider string, block uint64) (string, error) {
	out, err := r.call(ctx, gelatoCoreContract, core, block, "executorByProvider", common.HexToAddress(provider))
	if err != nil {
		return "", err
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("%w: executorByProvider returned %T", domain.ErrReverted, out[0])
	}
	return lowerHex(a), nil
}

var _ domain.ContractReader = (*Reader)(nil)
