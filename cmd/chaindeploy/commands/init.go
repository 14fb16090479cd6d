package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultWorkspaceTemplate = `# chaindeploy workspace

# Registry sources, merged in order (.cue, .yaml, .yml, .json or a CUE package directory)
registry:
  - registry.yaml

# Hardhat artifacts directory
artifacts_dir: artifacts

ledger:
  path: data/ledger.db

networks:
  sepolia:
    chain_id: 11155111
    rpc_url: ${SEPOLIA_URL}
    confirmations: 1
  arbitrumSepolia:
    chain_id: 421614
    rpc_url: ${ARBITRUM_SEPOLIA_URL}

# The deployer key is read from this environment variable
signer:
  private_key_env: PRIVATE_KEY

deploy:
  confirm_timeout: 5m
  poll_interval: 2s
  continue_on_failure: false

policy:
  paths: []

telemetry:
  log_level: info
  log_format: console
  tracing: none
`

const defaultRegistryTemplate = `name: account-abstraction

variables:
  entryPoint: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
  owner: "0x46897603e2A82755E9c416eF828Bd1515536b3D5"

units:
  - name: WebAuthn256r1
    description: P-256 WebAuthn signature verifier

  - name: Secp256r1Factory
    description: passkey account factory
    args:
      - var: entryPoint
      - dependsOn: WebAuthn256r1

  - name: Paymaster
    args:
      - var: entryPoint
      - var: owner

  - name: SimpleAccountFactory
    description: secp256k1 account factory
    args:
      - var: entryPoint
`

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a chaindeploy workspace",
		Long: `Initialize a new workspace: a chaindeploy.yaml, a sample registry of the
account-abstraction contracts and an empty ledger database.

Existing files are left untouched unless --force is given.`,
		Example: `  # Initialize in the current directory
  chaindeploy init

  # Initialize elsewhere
  chaindeploy init --config deployments/chaindeploy.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := filepath.Dir(configPath)

			log.Info().
				Str("config", configPath).
				Bool("force", force).
				Msg("Initializing workspace")

			if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			files := []struct {
				path    string
				content string
			}{
				{configPath, defaultWorkspaceTemplate},
				{filepath.Join(dir, "registry.yaml"), defaultRegistryTemplate},
			}
			for _, f := range files {
				written, err := writeIfAbsent(f.path, f.content, force)
				if err != nil {
					return err
				}
				if written {
					fmt.Printf("✓ Created %s\n", f.path)
				} else {
					fmt.Printf("- Kept existing %s\n", f.path)
				}
			}

			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("✓ Initialized ledger: %s\n", ws.Ledger.Path)

			fmt.Println("\nNext steps:")
			fmt.Println("  1. Compile your contracts so that artifacts/ holds the Hardhat artifacts")
			fmt.Println("  2. Export SEPOLIA_URL and PRIVATE_KEY")
			fmt.Println("  3. Run 'chaindeploy plan --network sepolia'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

func writeIfAbsent(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
