package commands

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/openfroyo/chaindeploy/pkg/chain"
	"github.com/openfroyo/chaindeploy/pkg/config"
	"github.com/openfroyo/chaindeploy/pkg/engine"
)

func newCallCommand() *cobra.Command {
	var (
		network  string
		sig      string
		callArgs []string
		value    string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <unit>",
		Short: "Send a transaction to a deployed unit",
		Long: `Send a transaction to the address the ledger records for a unit.

The method is looked up in the unit's artifact ABI and the arguments are
converted to its parameter types. Argument-less methods can be called
without an ABI entry. --value attaches native currency, e.g. to fund a
paymaster deposit.`,
		Example: `  # Fund the paymaster deposit on the EntryPoint
  chaindeploy call Paymaster -n sepolia --sig "deposit()" --value 0.2ether

  # Call a method with arguments
  chaindeploy call Paymaster -n sepolia --sig "transferOwnership(address)" \
    --arg 0x46897603e2A82755E9c416eF828Bd1515536b3D5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			unitName := args[0]
			if err := requireNetwork(network); err != nil {
				return err
			}
			amount, err := chain.ParseValue(value)
			if err != nil {
				return err
			}

			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			netCfg, err := ws.Network(network)
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = ws.Deploy.ConfirmTimeout
			}

			tel, err := newTelemetry(ws, "")
			if err != nil {
				return err
			}
			defer shutdownTelemetry(ctx, tel)
			ctx = tel.WithContext(ctx)
			logger := tel.Logger.WithNetwork(network).WithUnit(unitName)

			registry, _, err := config.LoadRegistry(ctx, ws.Registry, network)
			if err != nil {
				return err
			}
			unit, ok := registry.Unit(unitName)
			if !ok {
				return engine.NewConfigError(fmt.Sprintf("unknown unit %q", unitName), nil)
			}

			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()

			entry, err := store.Get(ctx, unitName, network)
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("%s is not deployed on %s", unitName, network)
			}

			artifacts := chain.NewArtifactStore(ws.ArtifactsDir)
			artifact, err := artifacts.Load(unit.ArtifactRef())
			if err != nil {
				logger.WithError(err).Warn("Artifact not available; only argument-less calls can be encoded")
			}
			values := make([]interface{}, len(callArgs))
			for i, a := range callArgs {
				values[i] = a
			}
			data, err := chain.EncodeCall(artifact, sig, values)
			if err != nil {
				return err
			}

			net, err := dialNetwork(ctx, ws, network, netCfg, artifacts, logger)
			if err != nil {
				return err
			}

			logger.WithField("to", entry.Address).
				WithField("sig", sig).
				WithField("value_wei", amount.String()).
				Info("Sending transaction")
			receipt, err := net.SendCall(ctx, common.HexToAddress(entry.Address), data, amount, timeout)
			if err != nil {
				return err
			}
			if !receipt.Success {
				return fmt.Errorf("transaction %s reverted in block %d", receipt.TxHash, receipt.BlockNumber)
			}

			fmt.Printf("✓ %s.%s mined in block %d (tx %s, gas %d)\n",
				unitName, sig, receipt.BlockNumber, receipt.TxHash, receipt.GasUsed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network (required)")
	cmd.Flags().StringVar(&sig, "sig", "", `method signature, e.g. "deposit()" (required)`)
	cmd.Flags().StringArrayVar(&callArgs, "arg", nil, "method argument (repeatable, in order)")
	cmd.Flags().StringVar(&value, "value", "", "native value to send, e.g. 0.2ether, 30gwei or wei")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "confirmation timeout (default from workspace)")
	_ = cmd.MarkFlagRequired("sig")

	return cmd
}
