package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/engine"
)

const sampleWorkspace = `registry:
  - registry.yaml
  - extra/factories.cue
artifacts_dir: out/artifacts
networks:
  anvil:
    chain_id: 31337
    rpc_url: http://127.0.0.1:8545
  sepolia:
    chain_id: 11155111
    rpc_url: ${SEPOLIA_RPC_URL}
    confirmations: 2
    poll_interval: 4s
deploy:
  confirm_timeout: 10m
  continue_on_failure: true
telemetry:
  log_level: debug
`

func TestParseWorkspace_DefaultsAndPaths(t *testing.T) {
	t.Setenv("SEPOLIA_RPC_URL", "https://sepolia.example.org")
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultWorkspaceFile)

	ws, err := ParseWorkspace(context.Background(), []byte(sampleWorkspace), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if ws.Path != path {
		t.Fatalf("Expected path %s, got: %s", path, ws.Path)
	}
	if ws.Registry[0] != filepath.Join(dir, "registry.yaml") || ws.Registry[1] != filepath.Join(dir, "extra", "factories.cue") {
		t.Fatalf("Expected registry paths relative to workspace, got: %v", ws.Registry)
	}
	if ws.ArtifactsDir != filepath.Join(dir, "out", "artifacts") {
		t.Fatalf("Expected artifacts dir to be resolved, got: %s", ws.ArtifactsDir)
	}
	if ws.Ledger.Path != filepath.Join(dir, "data", "ledger.db") {
		t.Fatalf("Expected default ledger path, got: %s", ws.Ledger.Path)
	}
	if ws.Deploy.ConfirmTimeout != 10*time.Minute {
		t.Fatalf("Expected confirm timeout 10m, got: %v", ws.Deploy.ConfirmTimeout)
	}
	if ws.Deploy.LockTTL != engine.DefaultLockTTL {
		t.Fatalf("Expected default lock TTL, got: %v", ws.Deploy.LockTTL)
	}
	if !ws.Deploy.ContinueOnFailure {
		t.Fatal("Expected continue_on_failure to be set")
	}
	if ws.Signer.PrivateKeyEnv != "PRIVATE_KEY" {
		t.Fatalf("Expected default signer env, got: %s", ws.Signer.PrivateKeyEnv)
	}
	if ws.Telemetry.LogLevel != "debug" || ws.Telemetry.LogFormat != "console" || ws.Telemetry.Tracing != "none" {
		t.Fatalf("Unexpected telemetry config: %+v", ws.Telemetry)
	}
	if ids := ws.NetworkIDs(); strings.Join(ids, ",") != "anvil,sepolia" {
		t.Fatalf("Expected sorted network ids, got: %v", ids)
	}

	sepolia, err := ws.Network("sepolia")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sepolia.RPCURL != "https://sepolia.example.org" || sepolia.Confirmations != 2 || sepolia.PollInterval != 4*time.Second {
		t.Fatalf("Unexpected sepolia config: %+v", sepolia)
	}
	anvil, _ := ws.Network("anvil")
	if anvil.PollInterval != ws.Deploy.PollInterval {
		t.Fatalf("Expected poll interval to default from deploy, got: %v", anvil.PollInterval)
	}
}

func TestParseWorkspace_UnsetEndpoint(t *testing.T) {
	t.Setenv("SEPOLIA_RPC_URL", "")

	ws, err := ParseWorkspace(context.Background(), []byte(sampleWorkspace), "chaindeploy.yaml")
	if err != nil {
		t.Fatalf("Expected workspace to load, got: %v", err)
	}
	if _, err := ws.Network("anvil"); err != nil {
		t.Fatalf("Expected anvil to be usable, got: %v", err)
	}
	if _, err := ws.Network("sepolia"); !engine.IsConfigError(err) {
		t.Fatalf("Expected config error for empty rpc_url, got: %v", err)
	}
	if _, err := ws.Network("mainnet"); !engine.IsConfigError(err) {
		t.Fatalf("Expected config error for unknown network, got: %v", err)
	}
}

func TestParseWorkspace_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"no networks", "registry: [registry.yaml]\n"},
		{"unknown field", "networks:\n  anvil:\n    chain_id: 31337\nnetwork_timeout: 5s\n"},
		{"bad chain id", "networks:\n  anvil:\n    chain_id: -1\n"},
		{"bad duration", "networks:\n  anvil:\n    chain_id: 1\ndeploy:\n  lock_ttl: soon\n"},
		{"bad log format", "networks:\n  anvil:\n    chain_id: 1\ntelemetry:\n  log_format: xml\n"},
		{"malformed", "networks: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorkspace(context.Background(), []byte(tt.content), "chaindeploy.yaml")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !engine.IsConfigError(err) {
				t.Fatalf("Expected config error, got: %v", err)
			}
		})
	}
}

func TestLoadWorkspace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, DefaultWorkspaceFile, "networks:\n  anvil:\n    chain_id: 31337\n    rpc_url: http://127.0.0.1:8545\nledger:\n  path: \":memory:\"\n")

	ws, err := LoadWorkspace(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ws.Ledger.Path != ":memory:" {
		t.Fatalf("Expected in-memory ledger path to be kept, got: %s", ws.Ledger.Path)
	}
	if ws.Registry[0] != filepath.Join(dir, "registry.yaml") {
		t.Fatalf("Expected default registry next to workspace, got: %v", ws.Registry)
	}

	paths := ws.WatchPaths()
	if len(paths) != 2 || paths[0] != path {
		t.Fatalf("Expected workspace and registry watch paths, got: %v", paths)
	}

	if _, err := LoadWorkspace(context.Background(), filepath.Join(dir, "missing.yaml")); !engine.IsConfigError(err) {
		t.Fatalf("Expected config error for missing file, got: %v", err)
	}
}

func TestDefaultWorkspace(t *testing.T) {
	ws := DefaultWorkspace()
	if ws.ArtifactsDir != "artifacts" || ws.Registry[0] != "registry.yaml" {
		t.Fatalf("Unexpected defaults: %+v", ws)
	}
	if ws.Deploy.ConfirmTimeout != engine.DefaultConfirmTimeout {
		t.Fatalf("Expected default confirm timeout, got: %v", ws.Deploy.ConfirmTimeout)
	}
}
