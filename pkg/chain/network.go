package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

const (
	// DefaultPollInterval is the receipt polling period.
	DefaultPollInterval = 2 * time.Second

	// gasHeadroomPercent is applied on top of the node's gas estimate.
	gasHeadroomPercent = 120
)

// Backend is the subset of the JSON-RPC client the network needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// NetworkConfig describes one target chain.
type NetworkConfig struct {
	// ID is the ledger key of the network (e.g. "sepolia").
	ID string

	// ChainID is the EIP-155 chain ID; checked against the node on Dial.
	ChainID int64

	// RPCURL is the JSON-RPC endpoint.
	RPCURL string

	// Confirmations is the number of blocks, including the inclusion block,
	// required before a receipt is reported. Zero and one are equivalent.
	Confirmations uint64

	// PollInterval is the receipt polling period.
	PollInterval time.Duration
}

// EthNetwork deploys contracts to an EVM chain. It implements engine.Network.
type EthNetwork struct {
	config    NetworkConfig
	backend   Backend
	signer    Signer
	artifacts ArtifactSource
	chainID   *big.Int
	logger    *telemetry.Logger
	now       func() time.Time
}

var _ engine.Network = (*EthNetwork)(nil)

// NetworkOption configures an EthNetwork.
type NetworkOption func(*EthNetwork)

// WithNetworkLogger sets the logger.
func WithNetworkLogger(l *telemetry.Logger) NetworkOption {
	return func(n *EthNetwork) { n.logger = l }
}

// WithNetworkClock overrides the time source.
func WithNetworkClock(now func() time.Time) NetworkOption {
	return func(n *EthNetwork) { n.now = now }
}

// NewEthNetwork binds a backend, signer and artifact source to a network.
func NewEthNetwork(cfg NetworkConfig, backend Backend, signer Signer, artifacts ArtifactSource, opts ...NetworkOption) (*EthNetwork, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("network id is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("network %s: backend is required", cfg.ID)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	n := &EthNetwork{
		config:    cfg,
		backend:   backend,
		signer:    signer,
		artifacts: artifacts,
		chainID:   big.NewInt(cfg.ChainID),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = telemetry.NewNopLogger()
	}
	n.logger = n.logger.NewComponentLogger("network").WithNetwork(cfg.ID)
	return n, nil
}

// Dial connects to the network's RPC endpoint and verifies its chain ID.
func Dial(ctx context.Context, cfg NetworkConfig, signer Signer, artifacts ArtifactSource, opts ...NetworkOption) (*EthNetwork, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("network %s: rpc url is empty", cfg.ID)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.ID, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id of %s: %w", cfg.ID, err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("network %s: endpoint reports chain id %s, configured %d", cfg.ID, chainID, cfg.ChainID)
	}
	cfg.ChainID = chainID.Int64()

	return NewEthNetwork(cfg, client, signer, artifacts, opts...)
}

// ID returns the network identifier.
func (n *EthNetwork) ID() string {
	return n.config.ID
}

// ChainID returns the chain ID transactions are signed for.
func (n *EthNetwork) ChainID() *big.Int {
	return new(big.Int).Set(n.chainID)
}

// Deploy builds, signs and submits a contract creation transaction. Nothing
// is sent when any preparation step fails.
func (n *EthNetwork) Deploy(ctx context.Context, req engine.DeployRequest) (*engine.PendingTx, error) {
	if n.signer == nil {
		return nil, fmt.Errorf("network %s has no signer", n.config.ID)
	}
	if n.artifacts == nil {
		return nil, fmt.Errorf("network %s has no artifact source", n.config.ID)
	}

	artifact, err := n.artifacts.Load(req.Artifact)
	if err != nil {
		return nil, err
	}
	args, err := CoerceArgs(artifact.ConstructorInputs(), req.Args)
	if err != nil {
		return nil, fmt.Errorf("constructor of %s: %w", artifact.ContractName, err)
	}
	data, err := artifact.DeployData(args...)
	if err != nil {
		return nil, err
	}

	signed, nonce, err := n.submit(ctx, nil, data, new(big.Int))
	if err != nil {
		return nil, err
	}

	from := n.signer.Address()
	pending := &engine.PendingTx{
		Unit:            req.Unit,
		TxHash:          signed.Hash().Hex(),
		Nonce:           nonce,
		ExpectedAddress: crypto.CreateAddress(from, nonce).Hex(),
		SubmittedAt:     n.now(),
	}
	n.logger.WithUnit(req.Unit).
		WithField("tx_hash", pending.TxHash).
		WithField("nonce", nonce).
		WithField("expected_address", pending.ExpectedAddress).
		Debug("Contract creation sent")
	return pending, nil
}

// SendCall submits a plain transaction to an already deployed contract and
// waits for its receipt.
func (n *EthNetwork) SendCall(ctx context.Context, to common.Address, data []byte, value *big.Int, timeout time.Duration) (*engine.Receipt, error) {
	if n.signer == nil {
		return nil, fmt.Errorf("network %s has no signer", n.config.ID)
	}
	if value == nil {
		value = new(big.Int)
	}
	signed, nonce, err := n.submit(ctx, &to, data, value)
	if err != nil {
		return nil, err
	}
	return n.WaitForReceipt(ctx, &engine.PendingTx{
		TxHash:      signed.Hash().Hex(),
		Nonce:       nonce,
		SubmittedAt: n.now(),
	}, timeout)
}

// submit prices, signs and sends a transaction from the signer's account.
func (n *EthNetwork) submit(ctx context.Context, to *common.Address, data []byte, value *big.Int) (*types.Transaction, uint64, error) {
	from := n.signer.Address()

	nonce, err := n.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, 0, fmt.Errorf("get nonce: %w", err)
	}

	tip, feeCap, legacy, err := n.fees(ctx)
	if err != nil {
		return nil, 0, err
	}

	msg := ethereum.CallMsg{From: from, To: to, Value: value, Data: data}
	if legacy {
		msg.GasPrice = feeCap
	} else {
		msg.GasFeeCap = feeCap
		msg.GasTipCap = tip
	}
	gas, err := n.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, 0, fmt.Errorf("estimate gas: %w", err)
	}
	gas = gas * gasHeadroomPercent / 100

	var tx *types.Transaction
	if legacy {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: feeCap,
			Gas:      gas,
			To:       to,
			Value:    value,
			Data:     data,
		})
	} else {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   n.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        to,
			Value:     value,
			Data:      data,
		})
	}

	signed, err := n.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	if err := n.backend.SendTransaction(ctx, signed); err != nil {
		return nil, 0, fmt.Errorf("send transaction: %w", err)
	}
	return signed, nonce, nil
}

// fees returns the EIP-1559 tip and fee cap (2 * base fee + tip). Chains
// without a base fee fall back to a legacy gas price.
func (n *EthNetwork) fees(ctx context.Context) (tip, feeCap *big.Int, legacy bool, err error) {
	head, err := n.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, false, fmt.Errorf("get latest header: %w", err)
	}
	if head.BaseFee == nil {
		price, err := n.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, false, fmt.Errorf("get gas price: %w", err)
		}
		return price, price, true, nil
	}

	tip, err = n.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("get gas tip: %w", err)
	}
	feeCap = new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return tip, feeCap, false, nil
}

// WaitForReceipt polls for the transaction receipt until it is mined with the
// configured confirmations, the timeout elapses or ctx is cancelled. RPC
// errors while polling are retried; the transaction may still land.
func (n *EthNetwork) WaitForReceipt(ctx context.Context, tx *engine.PendingTx, timeout time.Duration) (*engine.Receipt, error) {
	if timeout <= 0 {
		timeout = engine.DefaultConfirmTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(n.config.PollInterval)
	defer ticker.Stop()

	hash := common.HexToHash(tx.TxHash)
	log := n.logger.WithUnit(tx.Unit).WithField("tx_hash", tx.TxHash)
	var lastErr error

	for {
		receipt, err := n.backend.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil:
			if n.confirmed(waitCtx, receipt) {
				out := toReceipt(receipt)
				if out.TxHash == (common.Hash{}).Hex() {
					out.TxHash = tx.TxHash
				}
				return out, nil
			}
		case errors.Is(err, ethereum.NotFound):
		default:
			lastErr = err
			log.WithError(err).Debug("Receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, engine.NewCancelledError(tx.Unit, ctx.Err()).WithDetail("tx_hash", tx.TxHash)
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, engine.NewCancelledError(tx.Unit, ctx.Err()).WithDetail("tx_hash", tx.TxHash)
			}
			cause := fmt.Errorf("no receipt after %s", timeout)
			if lastErr != nil {
				cause = fmt.Errorf("no receipt after %s: %w", timeout, lastErr)
			}
			return nil, engine.NewTimeoutError(tx.Unit, tx.TxHash, cause)
		case <-ticker.C:
		}
	}
}

// confirmed reports whether the receipt's block is deep enough.
func (n *EthNetwork) confirmed(ctx context.Context, receipt *types.Receipt) bool {
	if n.config.Confirmations <= 1 || receipt.BlockNumber == nil {
		return true
	}
	head, err := n.backend.BlockNumber(ctx)
	if err != nil {
		return false
	}
	mined := receipt.BlockNumber.Uint64()
	return head >= mined && head-mined+1 >= n.config.Confirmations
}

func toReceipt(r *types.Receipt) *engine.Receipt {
	out := &engine.Receipt{
		Success: r.Status == types.ReceiptStatusSuccessful,
		TxHash:  r.TxHash.Hex(),
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.ContractAddress != (common.Address{}) {
		out.Address = r.ContractAddress.Hex()
	}
	return out
}
