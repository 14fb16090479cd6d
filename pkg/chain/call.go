package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// EncodeCall builds calldata for sig, e.g. "deposit()", "deposit" or
// "transferOwnership(address)". When the artifact's ABI declares the method
// the arguments are coerced to its parameter types. Without an ABI match only
// argument-less signatures can be encoded, as the bare selector.
func EncodeCall(artifact *Artifact, sig string, args []interface{}) ([]byte, error) {
	sig = strings.ReplaceAll(strings.TrimSpace(sig), " ", "")
	name := sig
	byName := !strings.Contains(sig, "(")
	if i := strings.Index(sig, "("); i >= 0 {
		name = sig[:i]
		if !strings.HasSuffix(sig, ")") {
			return nil, fmt.Errorf("malformed signature %q", sig)
		}
	} else {
		sig += "()"
	}
	if name == "" {
		return nil, fmt.Errorf("malformed signature %q", sig)
	}

	if artifact != nil {
		for _, method := range artifact.ABI.Methods {
			if byName && method.RawName != name || !byName && method.Sig != sig {
				continue
			}
			coerced, err := CoerceArgs(method.Inputs, args)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", method.Sig, err)
			}
			packed, err := method.Inputs.Pack(coerced...)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", method.Sig, err)
			}
			return append(append([]byte{}, method.ID...), packed...), nil
		}
	}

	if !strings.HasSuffix(sig, "()") || len(args) > 0 {
		return nil, fmt.Errorf("method %s not found in ABI; only argument-less signatures can be encoded without it", sig)
	}
	return crypto.Keccak256([]byte(sig))[:4], nil
}
