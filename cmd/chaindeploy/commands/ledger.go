package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/report"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

func newLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and repair the deployment ledger",
		Long: `Inspect and repair the per-network record of deployed units.

The ledger is what makes deploy idempotent: a unit with an entry is skipped.
A deployment transaction whose confirmation timed out or was interrupted is
kept as pending, and its unit is not submitted again until it is resolved:
use 'record' when the transaction was mined, and 'forget' when it was dropped.`,
	}

	cmd.AddCommand(newLedgerListCommand())
	cmd.AddCommand(newLedgerShowCommand())
	cmd.AddCommand(newLedgerForgetCommand())
	cmd.AddCommand(newLedgerRecordCommand())
	cmd.AddCommand(newLedgerPendingCommand())

	return cmd
}

func newLedgerListCommand() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		Example: `  # Entries of every configured network
  chaindeploy ledger list

  # Entries of one network as JSON
  chaindeploy ledger list -n sepolia --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()

			networks := ws.NetworkIDs()
			if network != "" {
				networks = []string{network}
			}

			var entries []*engine.LedgerEntry
			for _, id := range networks {
				found, err := store.List(ctx, id)
				if err != nil {
					return err
				}
				entries = append(entries, found...)
			}

			reporter, err := newReporter("", telemetry.FromZerolog(log.Logger))
			if err != nil {
				return err
			}
			reporter.RenderEntries(entries)
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "only this network")

	return cmd
}

func newLedgerShowCommand() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:     "show <unit>",
		Short:   "Show the ledger entry of a unit",
		Example: `  chaindeploy ledger show Paymaster -n sepolia`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := requireNetwork(network); err != nil {
				return err
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

			entry, err := store.Get(ctx, args[0], network)
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("%s is not recorded on %s", args[0], network)
			}

			reporter, err := newReporter("", telemetry.FromZerolog(log.Logger))
			if err != nil {
				return err
			}
			reporter.RenderEntries([]*engine.LedgerEntry{entry})
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network (required)")

	return cmd
}

func newLedgerForgetCommand() *cobra.Command {
	var (
		network string
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "forget <unit>",
		Short: "Remove the ledger entry of a unit",
		Long: `Remove the ledger entry of a unit so that the next deploy submits it again.

A pending transaction of the unit is discarded as well; do this only once the
transaction is known to be dropped. The contract on chain is not affected. Units depending on it keep their
entries; use 'deploy --force-redeploy' to redeploy a unit and its dependents.`,
		Example: `  chaindeploy ledger forget Paymaster -n sepolia --yes`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := requireNetwork(network); err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to forget %s on %s without --yes", args[0], network)
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

			entry, err := store.Get(ctx, args[0], network)
			if err != nil {
				return err
			}
			pending, err := store.PendingSubmission(ctx, args[0], network)
			if err != nil {
				return err
			}
			if entry == nil && pending == nil {
				fmt.Printf("%s is not recorded on %s\n", args[0], network)
				return nil
			}

			if pending != nil {
				if err := store.ClearSubmission(ctx, args[0], network); err != nil {
					return err
				}
				log.Info().
					Str("unit", args[0]).
					Str("network", network).
					Str("tx_hash", pending.TxHash).
					Msg("Pending submission discarded")
				fmt.Printf("✓ Discarded pending transaction %s of %s on %s\n", pending.TxHash, args[0], network)
			}
			if entry != nil {
				if err := store.Delete(ctx, args[0], network); err != nil {
					return err
				}
				log.Info().
					Str("unit", args[0]).
					Str("network", network).
					Str("address", entry.Address).
					Msg("Ledger entry removed")
				fmt.Printf("✓ Forgot %s on %s (was %s)\n", args[0], network, entry.Address)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network (required)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm removal")

	return cmd
}

func newLedgerRecordCommand() *cobra.Command {
	var (
		network   string
		address   string
		txHash    string
		block     uint64
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "record <unit>",
		Short: "Record a deployment made outside of chaindeploy",
		Long: `Record the address of a unit by hand.

This resolves a confirmation timeout: once the transaction reported by the
failed run is mined, record the address it created and deploy again. The
pending transaction is resolved, the unit is skipped and its dependents
receive the recorded address.`,
		Example: `  chaindeploy ledger record Paymaster -n sepolia \
    --address 0x1234...abcd --tx 0x9876...5432 --block 5123456`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := requireNetwork(network); err != nil {
				return err
			}
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid address %q", address)
			}
			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			if _, ok := ws.Networks[network]; !ok {
				return engine.NewConfigError(fmt.Sprintf("unknown network %q", network), nil)
			}
			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()

			entry := &engine.LedgerEntry{
				UnitName:   args[0],
				NetworkID:  network,
				Address:    common.HexToAddress(address).Hex(),
				TxHash:     txHash,
				DeployedAt: time.Now().UTC(),
			}
			if cmd.Flags().Changed("block") {
				entry.BlockNumber = &block
			}
			if err := store.Put(ctx, entry, overwrite); err != nil {
				if engine.IsDuplicateEntry(err) {
					return fmt.Errorf("%w (use --overwrite to replace it)", err)
				}
				return err
			}
			if err := store.ClearSubmission(ctx, entry.UnitName, network); err != nil {
				return err
			}

			fmt.Printf("✓ Recorded %s on %s at %s\n", entry.UnitName, network, entry.Address)
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network (required)")
	cmd.Flags().StringVar(&address, "address", "", "deployed contract address (required)")
	cmd.Flags().StringVar(&txHash, "tx", "", "deployment transaction hash")
	cmd.Flags().Uint64Var(&block, "block", 0, "inclusion block number")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing entry")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func newLedgerPendingCommand() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List deployment transactions with no known outcome",
		Long: `List deployment transactions that were sent but never confirmed.

Their units are blocked until each transaction is resolved with 'ledger
record' or 'ledger forget', or the unit is redeployed with --force-redeploy.`,
		Example: `  chaindeploy ledger pending -n sepolia`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()

			pending, err := store.ListPending(ctx, network)
			if err != nil {
				return err
			}

			reporter, err := newReporter("", telemetry.FromZerolog(log.Logger))
			if err != nil {
				return err
			}
			if reporter.Format() != report.FormatTable {
				reporter.RenderJSON(pending)
				return nil
			}
			if len(pending) == 0 {
				fmt.Println("No pending transactions")
				return nil
			}
			table := report.NewTable(os.Stdout, "Network", "Unit", "Transaction", "Nonce", "Expected address", "Submitted")
			for _, p := range pending {
				table.Append([]string{
					p.NetworkID,
					p.UnitName,
					p.TxHash,
					strconv.FormatUint(p.Nonce, 10),
					p.ExpectedAddress,
					p.SubmittedAt.Local().Format(timeLayout),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "only this network")

	return cmd
}
