package chain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		t.Fatalf("failed to build abi type %s: %v", name, err)
	}
	return typ
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		value   interface{}
		check   func(t *testing.T, got interface{})
		wantErr bool
	}{
		{
			name:  "address from hex string",
			typ:   "address",
			value: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
			check: func(t *testing.T, got interface{}) {
				want := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
				if got.(common.Address) != want {
					t.Fatalf("Expected %s, got: %v", want.Hex(), got)
				}
			},
		},
		{name: "invalid address", typ: "address", value: "0x1234", wantErr: true},
		{name: "address from number", typ: "address", value: 12, wantErr: true},
		{
			name:  "uint256 from decimal string",
			typ:   "uint256",
			value: "1000000000000000000000",
			check: func(t *testing.T, got interface{}) {
				want, _ := new(big.Int).SetString("1000000000000000000000", 10)
				if got.(*big.Int).Cmp(want) != 0 {
					t.Fatalf("Expected %s, got: %v", want, got)
				}
			},
		},
		{
			name:  "uint256 from hex string",
			typ:   "uint256",
			value: "0x10",
			check: func(t *testing.T, got interface{}) {
				if got.(*big.Int).Int64() != 16 {
					t.Fatalf("Expected 16, got: %v", got)
				}
			},
		},
		{
			name:  "uint8 from yaml int",
			typ:   "uint8",
			value: 200,
			check: func(t *testing.T, got interface{}) {
				if got.(uint8) != 200 {
					t.Fatalf("Expected 200, got: %v", got)
				}
			},
		},
		{
			name:  "uint256 from json number in exponent form",
			typ:   "uint256",
			value: json.Number("1e18"),
			check: func(t *testing.T, got interface{}) {
				want, _ := new(big.Int).SetString("1000000000000000000", 10)
				if got.(*big.Int).Cmp(want) != 0 {
					t.Fatalf("Expected %s, got: %v", want, got)
				}
			},
		},
		{
			name:  "uint64 from decimal exponent string",
			typ:   "uint64",
			value: "2.5e3",
			check: func(t *testing.T, got interface{}) {
				if got.(uint64) != 2500 {
					t.Fatalf("Expected 2500, got: %v", got)
				}
			},
		},
		{name: "fractional exponent form", typ: "uint256", value: json.Number("1.5e0"), wantErr: true},
		{name: "exponent beyond 256 bits", typ: "uint256", value: json.Number("1e1000000"), wantErr: true},
		{
			name:  "int64 from json number",
			typ:   "int64",
			value: float64(-5),
			check: func(t *testing.T, got interface{}) {
				if got.(int64) != -5 {
					t.Fatalf("Expected -5, got: %v", got)
				}
			},
		},
		{name: "uint8 overflow", typ: "uint8", value: 256, wantErr: true},
		{name: "negative uint", typ: "uint256", value: -1, wantErr: true},
		{name: "int8 overflow", typ: "int8", value: 128, wantErr: true},
		{name: "fractional integer", typ: "uint256", value: 1.5, wantErr: true},
		{
			name:  "bool from string",
			typ:   "bool",
			value: "true",
			check: func(t *testing.T, got interface{}) {
				if got.(bool) != true {
					t.Fatalf("Expected true, got: %v", got)
				}
			},
		},
		{
			name:  "bytes32",
			typ:   "bytes32",
			value: "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000",
			check: func(t *testing.T, got interface{}) {
				arr := got.([32]byte)
				if arr[0] != 0xab {
					t.Fatalf("Expected first byte 0xab, got: %x", arr[0])
				}
			},
		},
		{name: "bytes32 wrong length", typ: "bytes32", value: "0xabcd", wantErr: true},
		{
			name:  "address slice",
			typ:   "address[]",
			value: []interface{}{"0x0000000000000000000000000000000000000001", "0x0000000000000000000000000000000000000002"},
			check: func(t *testing.T, got interface{}) {
				addrs := got.([]common.Address)
				if len(addrs) != 2 || addrs[1] != common.HexToAddress("0x02") {
					t.Fatalf("Expected two addresses, got: %v", got)
				}
			},
		},
		{
			name:  "string from number",
			typ:   "string",
			value: 42,
			check: func(t *testing.T, got interface{}) {
				if got.(string) != "42" {
					t.Fatalf("Expected \"42\", got: %v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceValue(mustType(t, tt.typ), tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got: %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestCoerceArgsArity(t *testing.T) {
	params := abi.Arguments{{Name: "entryPoint", Type: mustType(t, "address")}}
	if _, err := CoerceArgs(params, nil); err == nil {
		t.Fatal("Expected arity error, got nil")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0.2ether", want: "200000000000000000"},
		{in: "0.2 ETH", want: "200000000000000000"},
		{in: "30gwei", want: "30000000000"},
		{in: "1000", want: "1000"},
		{in: "1000wei", want: "1000"},
		{in: "", want: "0"},
		{in: "0.5wei", wantErr: true},
		{in: "-1ether", wantErr: true},
		{in: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got: %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got.String() != tt.want {
				t.Fatalf("Expected %s, got: %s", tt.want, got)
			}
		})
	}
}
