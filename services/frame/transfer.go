package frame

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/frame_layer/internal/events"
	"github.com/R3E-Network/frame_layer/internal/metrics"
	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame/wallet"
)

const componentTransfer = "transfer"

// USDCDecimals is the token precision of USDC.
const USDCDecimals = 6

// USDCContract is the USDC token contract on Base.
var USDCContract = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

// DefaultRecipient is the custody address of the frame's owner account.
var DefaultRecipient = common.HexToAddress("0x7D400FD1F592bB4FCd6a363BfD200A43D16704e7")

// TransferAmount is 1 USDC in base units.
var TransferAmount = big.NewInt(1_000_000)

var (
	// ErrWalletNotConnected is returned by Send when no account is available.
	ErrWalletNotConnected = errors.New("frame: wallet not connected")
	// ErrTransferPending is returned by Send while a submission is in flight.
	ErrTransferPending = errors.New("frame: transfer already pending")
	// ErrTransferReverted is recorded when the receipt reports failure.
	ErrTransferReverted = errors.New("frame: transaction reverted")
)

const erc20TransferABI = `[{"name":"transfer","type":"function","stateMutability":"nonpayable",
"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
"outputs":[{"name":"","type":"bool"}]}]`

var erc20ABI = mustParseABI(erc20TransferABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// TransferCalldata encodes transfer(recipient, amount).
func TransferCalldata(recipient common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("pack transfer: %w", err)
	}
	return data, nil
}

// TransferStatus is the observable state of the trigger.
type TransferStatus struct {
	State  TransferState `json:"state"`
	TxHash string        `json:"tx_hash,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Pending reports whether a submission is in flight.
func (s TransferStatus) Pending() bool { return s.State == TransferPending }

// Confirming reports whether the hash is known but no receipt yet.
func (s TransferStatus) Confirming() bool { return s.State == TransferConfirming }

// Confirmed reports whether the receipt reported success.
func (s TransferStatus) Confirmed() bool { return s.State == TransferConfirmed }

// TransferOptions configures a Transfer.
type TransferOptions struct {
	SessionID string
	Recipient common.Address
	Logger    *logger.Logger
	Journal   events.EventLogger
	OnChange  func(TransferStatus)
}

// Transfer sends a fixed 1 USDC transfer through a wallet and tracks it until
// the receipt arrives.
type Transfer struct {
	wallet    wallet.Wallet
	token     common.Address
	recipient common.Address
	amount    *big.Int
	sessionID string
	log       *logger.Logger
	journal   events.EventLogger
	onChange  func(TransferStatus)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	status TransferStatus
	gen    uint64
}

// NewTransfer creates a trigger bound to w.
func NewTransfer(w wallet.Wallet, opts TransferOptions) *Transfer {
	recipient := opts.Recipient
	if recipient == (common.Address{}) {
		recipient = DefaultRecipient
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("frame")
	}
	journal := opts.Journal
	if journal == nil {
		journal = events.NoOpLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transfer{
		wallet:    w,
		token:     USDCContract,
		recipient: recipient,
		amount:    new(big.Int).Set(TransferAmount),
		sessionID: opts.SessionID,
		log:       log,
		journal:   journal,
		onChange:  opts.OnChange,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Request builds the transaction: a zero-value call to the token contract.
func (t *Transfer) Request() (wallet.TxRequest, error) {
	data, err := TransferCalldata(t.recipient, t.amount)
	if err != nil {
		return wallet.TxRequest{}, err
	}
	return wallet.TxRequest{To: t.token, Value: new(big.Int), Data: data}, nil
}

// Status returns the current status.
func (t *Transfer) Status() TransferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Send submits the transfer. It refuses while the wallet is disconnected or a
// submission is pending. The receipt is awaited in the background; errors
// from the wallet are returned and recorded unchanged.
func (t *Transfer) Send(ctx context.Context) (common.Hash, error) {
	if !t.wallet.Connected() {
		return common.Hash{}, ErrWalletNotConnected
	}
	req, err := t.Request()
	if err != nil {
		return common.Hash{}, err
	}

	t.mu.Lock()
	if t.status.State == TransferPending {
		t.mu.Unlock()
		return common.Hash{}, ErrTransferPending
	}
	t.gen++
	gen := t.gen
	pending := TransferStatus{State: TransferPending}
	t.status = pending
	t.mu.Unlock()
	t.announce(pending)

	hash, err := t.wallet.SendTransaction(ctx, req)
	if err != nil {
		t.transition(gen, TransferStatus{State: TransferFailed, Error: err.Error()})
		return common.Hash{}, err
	}
	t.transition(gen, TransferStatus{State: TransferConfirming, TxHash: hash.Hex()})

	t.wg.Add(1)
	go t.awaitReceipt(gen, hash)
	return hash, nil
}

func (t *Transfer) awaitReceipt(gen uint64, hash common.Hash) {
	defer t.wg.Done()

	receipt, err := t.wallet.WaitForReceipt(t.ctx, hash)
	switch {
	case err != nil:
		if t.ctx.Err() != nil {
			return
		}
		t.transition(gen, TransferStatus{State: TransferFailed, TxHash: hash.Hex(), Error: err.Error()})
	case receipt.Succeeded():
		t.transition(gen, TransferStatus{State: TransferConfirmed, TxHash: hash.Hex()})
	default:
		t.transition(gen, TransferStatus{State: TransferFailed, TxHash: hash.Hex(), Error: ErrTransferReverted.Error()})
	}
}

// transition applies status if gen is still the latest submission.
func (t *Transfer) transition(gen uint64, status TransferStatus) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.mu.Unlock()
	t.announce(status)
}

// announce reports a status that has already been stored.
func (t *Transfer) announce(status TransferStatus) {
	metrics.RecordTransfer(status.State.String())
	entry := t.log.WithField("session_id", t.sessionID).WithField("state", status.State.String())
	if status.TxHash != "" {
		entry = entry.WithField("tx_hash", status.TxHash)
	}
	if status.Error != "" {
		entry.WithField("error", status.Error).Warn("Transfer failed")
	} else {
		entry.Info("Transfer state changed")
	}

	b := events.NewEvent(transferEventType(status.State)).Session(t.sessionID).Component(componentTransfer)
	if status.TxHash != "" {
		b.Metadata("tx_hash", status.TxHash)
	}
	if status.Error != "" {
		b.ErrorFrom(errors.New(status.Error))
	}
	b.LogTo(t.journal)

	if t.onChange != nil {
		t.onChange(status)
	}
}

func transferEventType(s TransferState) events.EventType {
	switch s {
	case TransferPending:
		return events.EventTransferPending
	case TransferConfirming:
		return events.EventTransferConfirming
	case TransferConfirmed:
		return events.EventTransferConfirmed
	default:
		return events.EventTransferFailed
	}
}

// Wait blocks until outstanding receipt waits finish.
func (t *Transfer) Wait() {
	t.wg.Wait()
}

// Close abandons outstanding receipt waits.
func (t *Transfer) Close() {
	t.cancel()
	t.wg.Wait()
}
