// Package wallet submits transactions through the host's EIP-1193 wallet
// provider and waits for their receipts.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/R3E-Network/frame_layer/pkg/logger"
)

// DefaultPollInterval is the receipt polling interval.
const DefaultPollInterval = 2 * time.Second

// ReceiptStatusSuccessful is the status of a receipt whose transaction
// succeeded.
const ReceiptStatusSuccessful = types.ReceiptStatusSuccessful

// ErrNotConnected is returned when no account is available.
var ErrNotConnected = errors.New("wallet: not connected")

// TxRequest is a transaction to be signed and sent by the wallet.
type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Receipt is the part of a transaction receipt the frame cares about.
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	Status      uint64      `json:"status"`
	BlockNumber uint64      `json:"block_number"`
}

// Succeeded reports whether the transaction executed successfully.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}

// Wallet is the collaborator the transfer trigger talks to.
type Wallet interface {
	Connected() bool
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// Provider is an EIP-1193 request function. result is decoded from the
// JSON-RPC result and may be nil.
type Provider interface {
	Request(ctx context.Context, method string, params interface{}, result interface{}) error
}

// ReceiptSource looks up mined receipts. *ethclient.Client satisfies it and
// returns ethereum.NotFound for unknown hashes.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// DialReceiptSource connects to a JSON-RPC node.
func DialReceiptSource(ctx context.Context, rawurl string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

// Option configures a Client.
type Option func(*Client)

// WithReceiptSource reads receipts from src instead of the provider.
func WithReceiptSource(src ReceiptSource) Option {
	return func(c *Client) { c.receipts = src }
}

// WithPollInterval sets the receipt polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client implements Wallet on top of a Provider.
type Client struct {
	provider Provider
	receipts ReceiptSource
	poll     time.Duration
	log      *logger.Logger

	mu      sync.RWMutex
	account *common.Address
}

// NewClient creates a wallet client.
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDefault("wallet")
	}
	return c
}

// Connect asks the provider for accounts and remembers the first one.
func (c *Client) Connect(ctx context.Context) (common.Address, error) {
	var accounts []common.Address
	if err := c.provider.Request(ctx, "eth_requestAccounts", nil, &accounts); err != nil {
		return common.Address{}, fmt.Errorf("request accounts: %w", err)
	}
	c.SetAccounts(accounts)
	if len(accounts) == 0 {
		return common.Address{}, ErrNotConnected
	}
	return accounts[0], nil
}

// SetAccounts replaces the connected account, as reported by an
// accountsChanged event. An empty list disconnects.
func (c *Client) SetAccounts(accounts []common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(accounts) == 0 {
		c.account = nil
		return
	}
	account := accounts[0]
	c.account = &account
}

// Account returns the connected account.
func (c *Client) Account() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return common.Address{}, false
	}
	return *c.account, true
}

// Connected reports whether an account is available.
func (c *Client) Connected() bool {
	_, ok := c.Account()
	return ok
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

// SendTransaction asks the wallet to sign and broadcast tx.
func (c *Client) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	from, ok := c.Account()
	if !ok {
		return common.Hash{}, ErrNotConnected
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	args := sendTxArgs{
		From:  from,
		To:    tx.To,
		Value: (*hexutil.Big)(value),
		Data:  tx.Data,
	}
	var hash common.Hash
	if err := c.provider.Request(ctx, "eth_sendTransaction", []interface{}{args}, &hash); err != nil {
		return common.Hash{}, err
	}
	c.log.WithField("tx_hash", hash.Hex()).Info("Transaction submitted")
	return hash, nil
}

type rpcReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
}

// WaitForReceipt polls until the transaction is mined or ctx ends.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.receipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// receipt returns nil without error while the transaction is pending.
func (c *Client) receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	if c.receipts != nil {
		r, err := c.receipts.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get receipt: %w", err)
		}
		out := &Receipt{TxHash: r.TxHash, Status: r.Status}
		if r.BlockNumber != nil {
			out.BlockNumber = r.BlockNumber.Uint64()
		}
		return out, nil
	}

	var raw json.RawMessage
	if err := c.provider.Request(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &raw); err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &Receipt{TxHash: r.TransactionHash, Status: uint64(r.Status), BlockNumber: uint64(r.BlockNumber)}, nil
}
