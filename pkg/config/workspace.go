package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/chaindeploy/pkg/engine"
)

// DefaultWorkspaceFile is the workspace file looked up in the working directory.
const DefaultWorkspaceFile = "chaindeploy.yaml"

// WorkspaceConfig is the content of chaindeploy.yaml.
type WorkspaceConfig struct {
	// Registry lists the registry sources, in merge order.
	Registry []string `yaml:"registry" validate:"required,min=1"`

	// ArtifactsDir is the compiled contract directory (Hardhat layout).
	ArtifactsDir string `yaml:"artifacts_dir" validate:"required"`

	// Ledger configures the ledger database.
	Ledger LedgerConfig `yaml:"ledger"`

	// Networks maps network ids to endpoints.
	Networks map[string]NetworkConfig `yaml:"networks" validate:"required,min=1,dive"`

	// Signer configures the deployer key.
	Signer SignerConfig `yaml:"signer"`

	// Deploy holds execution defaults.
	Deploy DeployConfig `yaml:"deploy"`

	// Policy configures the plan gate.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry configures logging, tracing and metrics output.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Path is the file the workspace was loaded from.
	Path string `yaml:"-"`
}

// LedgerConfig configures the ledger database.
type LedgerConfig struct {
	Path        string        `yaml:"path" validate:"required"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// NetworkConfig describes one network endpoint.
type NetworkConfig struct {
	ChainID       int64         `yaml:"chain_id" validate:"gt=0"`
	RPCURL        string        `yaml:"rpc_url"`
	Confirmations uint64        `yaml:"confirmations"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// SignerConfig names the environment variable holding the deployer key.
type SignerConfig struct {
	PrivateKeyEnv string `yaml:"private_key_env" validate:"required"`
}

// DeployConfig holds execution defaults; CLI flags override them.
type DeployConfig struct {
	ConfirmTimeout    time.Duration `yaml:"confirm_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	ContinueOnFailure bool          `yaml:"continue_on_failure"`
}

// PolicyConfig configures the plan gate.
type PolicyConfig struct {
	Paths           []string `yaml:"paths"`
	DisableBuiltins bool     `yaml:"disable_builtins"`
}

// TelemetryConfig configures logging, tracing and metrics output.
type TelemetryConfig struct {
	LogLevel        string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat       string `yaml:"log_format" validate:"omitempty,oneof=console json"`
	Tracing         string `yaml:"tracing" validate:"omitempty,oneof=none stdout otlp"`
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// DefaultWorkspace returns a workspace with every default applied.
func DefaultWorkspace() *WorkspaceConfig {
	ws := &WorkspaceConfig{}
	ws.applyDefaults()
	return ws
}

func (ws *WorkspaceConfig) applyDefaults() {
	if len(ws.Registry) == 0 {
		ws.Registry = []string{"registry.yaml"}
	}
	if ws.ArtifactsDir == "" {
		ws.ArtifactsDir = "artifacts"
	}
	if ws.Ledger.Path == "" {
		ws.Ledger.Path = filepath.Join("data", "ledger.db")
	}
	if ws.Ledger.BusyTimeout == 0 {
		ws.Ledger.BusyTimeout = 5 * time.Second
	}
	if ws.Signer.PrivateKeyEnv == "" {
		ws.Signer.PrivateKeyEnv = "PRIVATE_KEY"
	}
	if ws.Deploy.ConfirmTimeout == 0 {
		ws.Deploy.ConfirmTimeout = engine.DefaultConfirmTimeout
	}
	if ws.Deploy.PollInterval == 0 {
		ws.Deploy.PollInterval = 2 * time.Second
	}
	if ws.Deploy.LockTTL == 0 {
		ws.Deploy.LockTTL = engine.DefaultLockTTL
	}
	if ws.Telemetry.LogLevel == "" {
		ws.Telemetry.LogLevel = "info"
	}
	if ws.Telemetry.LogFormat == "" {
		ws.Telemetry.LogFormat = "console"
	}
	if ws.Telemetry.Tracing == "" {
		ws.Telemetry.Tracing = "none"
	}
}

// LoadWorkspace reads, expands, validates and defaults a workspace file.
// Relative paths in the file are resolved against its directory.
func LoadWorkspace(ctx context.Context, path string) (*WorkspaceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("failed to read workspace %s", path), err)
	}
	return ParseWorkspace(ctx, data, path)
}

// ParseWorkspace parses workspace content. path is used for relative path
// resolution and messages.
func ParseWorkspace(ctx context.Context, data []byte, path string) (*WorkspaceConfig, error) {
	// Unset variables expand to empty; a network whose rpc_url ends up empty
	// is rejected only when it is selected.
	expanded := os.ExpandEnv(string(data))

	var raw interface{}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("invalid workspace %s", path), err)
	}
	if raw == nil {
		return nil, engine.NewConfigError(fmt.Sprintf("workspace %s is empty", path), nil)
	}
	if err := NewSchemaRegistry().ValidateWorkspace(ctx, raw); err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("invalid workspace %s", path), err)
	}

	ws := &WorkspaceConfig{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(ws); err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("invalid workspace %s", path), err)
	}
	ws.applyDefaults()

	if err := newValidator().Struct(ws); err != nil {
		errs := convertValidatorErrors(path, err)
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.String())
		}
		return nil, engine.NewConfigError(fmt.Sprintf("invalid workspace %s", path), nil).
			WithDetail("problems", msgs)
	}

	ws.Path = path
	ws.resolvePaths(filepath.Dir(path))
	return ws, nil
}

func (ws *WorkspaceConfig) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || p == ":memory:" {
			return p
		}
		return filepath.Join(base, p)
	}
	for i, r := range ws.Registry {
		ws.Registry[i] = resolve(r)
	}
	ws.ArtifactsDir = resolve(ws.ArtifactsDir)
	ws.Ledger.Path = resolve(ws.Ledger.Path)
	for i, p := range ws.Policy.Paths {
		ws.Policy.Paths[i] = resolve(p)
	}
	ws.Telemetry.MetricsTextfile = resolve(ws.Telemetry.MetricsTextfile)
}

// Network returns the named network, rejecting unknown ids and empty
// endpoints.
func (ws *WorkspaceConfig) Network(id string) (NetworkConfig, error) {
	n, ok := ws.Networks[id]
	if !ok {
		return NetworkConfig{}, engine.NewConfigError(
			fmt.Sprintf("unknown network %q (configured: %v)", id, ws.NetworkIDs()), nil)
	}
	if n.RPCURL == "" {
		return NetworkConfig{}, engine.NewConfigError(
			fmt.Sprintf("network %s has no rpc_url (is its environment variable set?)", id), nil)
	}
	if n.PollInterval == 0 {
		n.PollInterval = ws.Deploy.PollInterval
	}
	return n, nil
}

// NetworkIDs returns the configured network ids, sorted.
func (ws *WorkspaceConfig) NetworkIDs() []string {
	ids := make([]string, 0, len(ws.Networks))
	for id := range ws.Networks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WatchPaths returns the files whose change should trigger revalidation.
func (ws *WorkspaceConfig) WatchPaths() []string {
	paths := make([]string, 0, len(ws.Registry)+len(ws.Policy.Paths)+1)
	if ws.Path != "" {
		paths = append(paths, ws.Path)
	}
	paths = append(paths, ws.Registry...)
	paths = append(paths, ws.Policy.Paths...)
	return paths
}
