package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/liamashdown/whaleconsensus/internal/metrics"
)

// USDCDecimals is the token precision of USDC on Polygon
const USDCDecimals = 6

// ErrInvalidAddress is returned for strings that are not hex addresses
var ErrInvalidAddress = errors.New("invalid wallet address")

const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	parsedERC20ABI  abi.ABI
	parsedERC20Once sync.Once
)

func erc20() abi.ABI {
	parsedERC20Once.Do(func() {
		var err error
		parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
		}
	})
	return parsedERC20ABI
}

// ContractCaller executes read-only contract calls
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BalanceReader reads USDC balances from Polygon
type BalanceReader struct {
	caller      ContractCaller
	token       common.Address
	callTimeout time.Duration
	closeFn     func()
}

// Dial connects to the RPC endpoint and returns a reader for the USDC
// contract at tokenAddress
func Dial(ctx context.Context, rpcURL, tokenAddress string) (*BalanceReader, error) {
	if !common.IsHexAddress(tokenAddress) {
		return nil, fmt.Errorf("usdc contract %q: %w", tokenAddress, ErrInvalidAddress)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	r := NewBalanceReader(client, common.HexToAddress(tokenAddress))
	r.closeFn = client.Close
	return r, nil
}

// NewBalanceReader creates a reader over an existing caller
func NewBalanceReader(caller ContractCaller, token common.Address) *BalanceReader {
	return &BalanceReader{
		caller:      caller,
		token:       token,
		callTimeout: 10 * time.Second,
	}
}

// USDCBalance returns the wallet's USDC balance in whole dollars
func (r *BalanceReader) USDCBalance(ctx context.Context, wallet string) (balance float64, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAPIRequest("polygon", "balanceOf", time.Since(start), err)
	}()

	if !common.IsHexAddress(wallet) {
		return 0, fmt.Errorf("%q: %w", wallet, ErrInvalidAddress)
	}

	data, err := erc20().Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return 0, fmt.Errorf("pack balanceOf: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	out, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("call balanceOf: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}

	unpacked, err := erc20().Unpack("balanceOf", out)
	if err != nil {
		return 0, fmt.Errorf("unpack balanceOf: %w", err)
	}
	raw, ok := unpacked[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected balanceOf result type %T", unpacked[0])
	}

	return ToDecimal(raw, USDCDecimals), nil
}

// Close releases the RPC connection
func (r *BalanceReader) Close() {
	if r.closeFn != nil {
		r.closeFn()
	}
}

// ToDecimal scales an integer token amount down by decimals
func ToDecimal(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return f
}
