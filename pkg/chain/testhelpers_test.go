package chain

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// anvilKey is the first well-known development account of anvil and hardhat.
const (
	anvilKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	anvilAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

const paymasterABI = `[
	{"type":"constructor","inputs":[
		{"name":"entryPoint","type":"address","internalType":"address"},
		{"name":"owner","type":"address","internalType":"address"}
	],"stateMutability":"nonpayable"},
	{"type":"function","name":"deposit","inputs":[],"outputs":[],"stateMutability":"payable"},
	{"type":"function","name":"transferOwnership","inputs":[
		{"name":"newOwner","type":"address","internalType":"address"}
	],"outputs":[],"stateMutability":"nonpayable"}
]`

const helperABI = `[]`

func artifactJSON(name, abiJSON, bytecode string) string {
	return `{"_format":"hh-sol-artifact-1","contractName":"` + name + `","sourceName":"contracts/` + name +
		`.sol","abi":` + abiJSON + `,"bytecode":"` + bytecode + `","deployedBytecode":"0x","linkReferences":{}}`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// setupArtifacts lays out a Hardhat artifacts directory.
func setupArtifacts(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "artifacts")
	writeFile(t, filepath.Join(root, "contracts", "Paymaster.sol", "Paymaster.json"),
		artifactJSON("Paymaster", paymasterABI, "0x6080604052"))
	writeFile(t, filepath.Join(root, "contracts", "Paymaster.sol", "Paymaster.dbg.json"),
		`{"_format":"hh-sol-dbg-1","buildInfo":"../../build-info/abc.json"}`)
	writeFile(t, filepath.Join(root, "contracts", "WebAuthn256r1.sol", "WebAuthn256r1.json"),
		artifactJSON("WebAuthn256r1", helperABI, "0x60806040"))
	writeFile(t, filepath.Join(root, "build-info", "abc.json"), `{"id":"abc"}`)
	return root
}

// fakeBackend is an in-memory JSON-RPC backend.
type fakeBackend struct {
	mu sync.Mutex

	chainID     *big.Int
	nonce       uint64
	baseFee     *big.Int
	tip         *big.Int
	gasPrice    *big.Int
	gasEstimate uint64
	estimateErr error
	sendErr     error
	head        uint64

	// receipt is returned once pollsBeforeReceipt lookups have missed.
	receipt            *types.Receipt
	pollsBeforeReceipt int
	receiptErr         error
	polls              int

	sent      []*types.Transaction
	estimated []ethereum.CallMsg
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:     big.NewInt(31337),
		nonce:       7,
		baseFee:     big.NewInt(10),
		tip:         big.NewInt(2),
		gasPrice:    big.NewInt(15),
		gasEstimate: 100000,
		head:        100,
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).SetUint64(f.head), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, nil }

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimated = append(f.estimated, msg)
	return f.gasEstimate, f.estimateErr
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.receipt == nil || f.polls <= f.pollsBeforeReceipt {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
