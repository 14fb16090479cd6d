// Package chain implements the network and signing collaborators of the
// deployment engine for EVM chains.
//
// EthNetwork submits EIP-1559 contract creation transactions through a
// go-ethereum JSON-RPC client and polls for receipts. Compiled contracts are
// read from a Hardhat artifacts directory by ArtifactStore, and registry
// literals are coerced to constructor parameter types by CoerceArgs. Signing
// is delegated to a Signer so the engine never handles key material.
package chain
