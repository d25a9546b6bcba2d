package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Typed failures surfaced by the client. Callers match with errors.Is.
var (
	ErrTxReverted      = errors.New("transaction reverted")
	ErrReceiptNotFound = errors.New("transaction receipt not found")
	ErrGasPriceTooHigh = errors.New("suggested gas price above configured maximum")
	ErrGasPriceUnknown = errors.New("gas price unavailable")
)

// Receipt is the confirmation record for a submitted transaction.
type Receipt struct {
	TxHash            common.Hash
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// Client is the on-chain capability the core depends on: read-only
// contract calls, signed submission, and confirmation waits. A hung
// call stalls only the caller; cancellation comes from the context.
type Client interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// RPCClient implements Client over a JSON-RPC endpoint with a token
// bucket bounding request rate.
type RPCClient struct {
	eth         *ethclient.Client
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	maxGasPrice *big.Int
	limiter     *rate.Limiter
	pollEvery   time.Duration
	logger      *zap.Logger
}

// RPCConfig carries the connection parameters for Dial.
type RPCConfig struct {
	Endpoint    string
	PrivateKey  string // hex, no 0x prefix
	ChainID     uint64
	MaxGasPrice *big.Int
	RateRPS     float64
	RateBurst   int
}

// Dial connects to the RPC endpoint and derives the sending address
// from the configured private key.
func Dial(ctx context.Context, cfg RPCConfig, logger *zap.Logger) (*RPCClient, error) {
	eth, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}

	return &RPCClient{
		eth:         eth,
		key:         key,
		from:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:     new(big.Int).SetUint64(cfg.ChainID),
		maxGasPrice: cfg.MaxGasPrice,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		pollEvery:   500 * time.Millisecond,
		logger:      logger,
	}, nil
}

// From returns the sending address.
func (c *RPCClient) From() common.Address {
	return c.from
}

// CallContract performs a read-only contract call at the latest block.
func (c *RPCClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{From: c.from, To: &to, Data: data}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call to %s failed: %w", to.Hex(), err)
	}
	return out, nil
}

// SendTransaction signs and submits a transaction. The suggested gas
// price is rejected when it exceeds the configured maximum.
func (c *RPCClient) SendTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (common.Hash, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrGasPriceUnknown, err)
	}
	if c.maxGasPrice != nil && gasPrice.Cmp(c.maxGasPrice) > 0 {
		return common.Hash{}, fmt.Errorf("%w: %s wei", ErrGasPriceTooHigh, gasPrice.String())
	}

	tx, err := gethtypes.SignNewTx(c.key, gethtypes.LatestSignerForChainID(c.chainID), &gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit transaction: %w", err)
	}

	c.logger.Debug("Transaction submitted",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("gas_limit", gasLimit))

	return tx.Hash(), nil
}

// WaitMined polls for the receipt until the context is cancelled.
func (c *RPCClient) WaitMined(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		rcpt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil && rcpt != nil {
			out := &Receipt{
				TxHash:            txHash,
				Status:            rcpt.Status,
				GasUsed:           rcpt.GasUsed,
				EffectiveGasPrice: rcpt.EffectiveGasPrice,
			}
			if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
				return out, fmt.Errorf("%w: %s", ErrTxReverted, txHash.Hex())
			}
			return out, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %v", ErrReceiptNotFound, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SuggestGasPrice returns the node's current gas price suggestion.
func (c *RPCClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGasPriceUnknown, err)
	}
	return price, nil
}
