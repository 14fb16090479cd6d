package chain

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CoerceArgs converts registry literals (strings, numbers, bools, lists) into
// the Go values the ABI encoder expects for params.
func CoerceArgs(params abi.Arguments, values []interface{}) ([]interface{}, error) {
	if len(params) != len(values) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(values))
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		coerced, err := CoerceValue(params[i].Type, v)
		if err != nil {
			name := params[i].Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, params[i].Type.String(), err)
		}
		out[i] = coerced
	}
	return out, nil
}

// CoerceValue converts v to the Go representation of typ.
func CoerceValue(typ abi.Type, v interface{}) (interface{}, error) {
	switch typ.T {
	case abi.AddressTy:
		return toAddress(v)
	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return fitInteger(typ, n)
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
		return nil, fmt.Errorf("cannot use %T as bool", v)
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case abi.BytesTy:
		return toBytes(v)
	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != typ.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", typ.Size, len(b))
		}
		arr := reflect.New(typ.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("cannot use %T as %s", v, typ.String())
		}
		if typ.T == abi.ArrayTy && len(items) != typ.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", typ.Size, len(items))
		}
		var out reflect.Value
		if typ.T == abi.ArrayTy {
			out = reflect.New(typ.GetType()).Elem()
		} else {
			out = reflect.MakeSlice(typ.GetType(), len(items), len(items))
		}
		for i, item := range items {
			elem, err := CoerceValue(*typ.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %s", typ.String())
	}
}

func toAddress(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("invalid address %q", a)
		}
		return common.HexToAddress(a), nil
	}
	return common.Address{}, fmt.Errorf("cannot use %T as address", v)
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%v is not an integer", n)
		}
		if math.Abs(n) > 1<<53 {
			return nil, fmt.Errorf("%v exceeds float precision; quote large integers as strings", n)
		}
		return big.NewInt(int64(n)), nil
	case json.Number:
		return toBigInt(n.String())
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), "_", "")
		if out, ok := new(big.Int).SetString(s, 0); ok {
			return out, nil
		}
		if strings.ContainsAny(s, "eE") && !strings.HasPrefix(strings.ToLower(strings.TrimLeft(s, "+-")), "0x") {
			return exponentInteger(s, n)
		}
		return nil, fmt.Errorf("invalid integer %q", n)
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

// maxDecimalExponent bounds exponent notation to the range of 256-bit values.
const maxDecimalExponent = 78

// exponentInteger parses decimal exponent notation such as 1e18 or 2.5e3,
// which JSON and CUE documents may use for large amounts. The value must be
// integral.
func exponentInteger(s, original string) (*big.Int, error) {
	idx := strings.IndexAny(s, "eE")
	exp, err := strconv.Atoi(strings.TrimPrefix(s[idx+1:], "+"))
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", original)
	}
	if exp > maxDecimalExponent || exp < -maxDecimalExponent {
		return nil, fmt.Errorf("exponent of %q is out of range", original)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", original)
	}
	if !r.IsInt() {
		return nil, fmt.Errorf("%s is not an integer", original)
	}
	return new(big.Int).Set(r.Num()), nil
}

// fitInteger range-checks n and returns the Go type the encoder requires:
// *big.Int above 64 bits, the exact sized integer type otherwise.
func fitInteger(typ abi.Type, n *big.Int) (interface{}, error) {
	if typ.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for %s", n, typ.String())
		}
		if n.BitLen() > typ.Size {
			return nil, fmt.Errorf("value %s overflows %s", n, typ.String())
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
		lower := new(big.Int).Neg(limit)
		if n.Cmp(limit) >= 0 || n.Cmp(lower) < 0 {
			return nil, fmt.Errorf("value %s overflows %s", n, typ.String())
		}
	}

	goType := typ.GetType()
	if goType == reflect.TypeOf(&big.Int{}) {
		return n, nil
	}
	if typ.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		if !strings.HasPrefix(b, "0x") {
			b = "0x" + b
		}
		out, err := hexutil.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as bytes", v)
}

var etherUnits = map[string]int{
	"wei":   0,
	"gwei":  9,
	"ether": 18,
	"eth":   18,
}

// ParseValue parses an amount such as "0.2ether", "30gwei" or "1000" (wei).
func ParseValue(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return new(big.Int), nil
	}

	decimals := 0
	for _, unit := range []string{"gwei", "ether", "eth", "wei"} {
		if strings.HasSuffix(s, unit) {
			decimals = etherUnits[unit]
			s = strings.TrimSpace(strings.TrimSuffix(s, unit))
			break
		}
	}

	amount, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	amount.Mul(amount, new(big.Rat).SetInt(scale))
	if !amount.IsInt() {
		return nil, fmt.Errorf("amount %q has more precision than wei", s)
	}
	return new(big.Int).Set(amount.Num()), nil
}
