package engine

import (
	"context"
	"fmt"
)

// ResolveArgs substitutes every reference argument of unit with the address
// recorded in the ledger for the referenced unit on network. Literal
// arguments pass through unchanged.
func ResolveArgs(ctx context.Context, ledger Ledger, unit UnitSpec, network string) ([]interface{}, error) {
	args := make([]interface{}, 0, len(unit.Args))

	for i, arg := range unit.Args {
		if !arg.IsRef() {
			args = append(args, arg.Value)
			continue
		}

		entry, err := ledger.Get(ctx, arg.DependsOn, network)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve argument %d of %s: %w", i, unit.Name, err)
		}
		if entry == nil || entry.Address == "" {
			return nil, NewUnresolvedDependencyError(unit.Name, arg.DependsOn, network).
				WithDetail("argument", i)
		}
		args = append(args, entry.Address)
	}

	return args, nil
}
