package config

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/openfroyo/chaindeploy/pkg/engine"
)

func parseSample(t *testing.T, content string) *ParsedRegistry {
	t.Helper()
	parsed, err := NewParser().ParseInline(context.Background(), content, FormatYAML)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("Expected no validation errors, got: %v", parsed.Errors)
	}
	return parsed
}

func TestBuild_ResolvesVariablesAndReferences(t *testing.T) {
	registry, err := parseSample(t, sampleRegistryYAML).Build("sepolia")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	names := registry.Names()
	want := []string{"WebAuthn256r1", "Secp256r1Factory", "Paymaster", "SimpleAccountFactory"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("Expected declaration order %v, got: %v", want, names)
	}

	factory, ok := registry.Unit("Secp256r1Factory")
	if !ok {
		t.Fatal("Expected Secp256r1Factory to be registered")
	}
	if factory.Args[0].Value != "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789" {
		t.Fatalf("Expected entry point literal, got: %v", factory.Args[0].Value)
	}
	if !factory.Args[1].IsRef() || factory.Args[1].DependsOn != "WebAuthn256r1" {
		t.Fatalf("Expected reference to WebAuthn256r1, got: %+v", factory.Args[1])
	}

	paymaster, _ := registry.Unit("Paymaster")
	if paymaster.Args[1].Value != "0x46897603e2A82755E9c416eF828Bd1515536b3D5" {
		t.Fatalf("Expected default owner, got: %v", paymaster.Args[1].Value)
	}

	simple, _ := registry.Unit("SimpleAccountFactory")
	if !simple.NonCritical {
		t.Fatal("Expected SimpleAccountFactory to stay non-critical")
	}
}

func TestBuild_NetworkOverride(t *testing.T) {
	registry, err := parseSample(t, sampleRegistryYAML).Build("arbitrumSepolia")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	paymaster, _ := registry.Unit("Paymaster")
	if paymaster.Args[1].Value != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("Expected overridden owner, got: %v", paymaster.Args[1].Value)
	}
	paymaster0 := paymaster.Args[0].Value
	if paymaster0 != "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789" {
		t.Fatalf("Expected entry point to be inherited, got: %v", paymaster0)
	}
}

func TestBuild_UnknownVariable(t *testing.T) {
	parsed := parseSample(t, `variables:
  owner: "0x46897603e2A82755E9c416eF828Bd1515536b3D5"
units:
  - name: Paymaster
    args: [{var: entryPoint}]
`)
	_, err := parsed.Build("sepolia")
	if err == nil {
		t.Fatal("Expected error for unknown variable, got nil")
	}
	if !engine.IsConfigError(err) {
		t.Fatalf("Expected config error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "entryPoint") || !strings.Contains(err.Error(), "defined: owner") {
		t.Fatalf("Expected message to name the variable and list defined ones, got: %v", err)
	}
}

func TestBuild_EnvironmentExpansion(t *testing.T) {
	t.Setenv("PAYMASTER_OWNER", "0x2222222222222222222222222222222222222222")

	parsed := parseSample(t, `variables:
  owner: "${PAYMASTER_OWNER}"
units:
  - name: Paymaster
    args: [{var: owner}, ["$PAYMASTER_OWNER", "literal"]]
`)
	registry, err := parsed.Build("sepolia")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	paymaster, _ := registry.Unit("Paymaster")
	if paymaster.Args[0].Value != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("Expected expanded owner, got: %v", paymaster.Args[0].Value)
	}
	list, ok := paymaster.Args[1].Value.([]interface{})
	if !ok || len(list) != 2 || list[0] != "0x2222222222222222222222222222222222222222" || list[1] != "literal" {
		t.Fatalf("Expected expanded list, got: %#v", paymaster.Args[1].Value)
	}
}

func TestBuild_MissingEnvironmentVariable(t *testing.T) {
	parsed := parseSample(t, `units:
  - name: Paymaster
    args: ["${CHAINDEPLOY_TEST_UNSET_OWNER}"]
`)
	_, err := parsed.Build("sepolia")
	if err == nil {
		t.Fatal("Expected error for unset environment variable, got nil")
	}
	if !strings.Contains(err.Error(), "CHAINDEPLOY_TEST_UNSET_OWNER is not set") {
		t.Fatalf("Expected message naming the variable, got: %v", err)
	}
}

func TestBuild_StructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "duplicate unit",
			content: `units:
  - name: Token
  - name: Token
`,
			want: "duplicate unit name: Token",
		},
		{
			name: "unknown dependency",
			content: `units:
  - name: Factory
    args: [{dependsOn: Missing}]
`,
			want: "not in the registry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSample(t, tt.content).Build("sepolia")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !engine.IsConfigError(err) {
				t.Fatalf("Expected config error, got: %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected %q in error, got: %v", tt.want, err)
			}
		})
	}
}

func TestBuild_ReportsParseErrors(t *testing.T) {
	parsed, err := NewParser().ParseInline(context.Background(), "unit: []\n", FormatYAML)
	if err != nil {
		t.Fatalf("Expected no hard error, got: %v", err)
	}
	if _, err := parsed.Build("sepolia"); !engine.IsConfigError(err) {
		t.Fatalf("Expected config error, got: %v", err)
	}
}

func TestBuild_NumericLiteralsStayExact(t *testing.T) {
	parsed, err := NewParser().ParseInline(context.Background(),
		`{"units": [{"name": "Vault", "args": [1000000000000000000000, true]}]}`, FormatJSON)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	registry, err := parsed.Build("sepolia")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	vault, _ := registry.Unit("Vault")
	if vault.Args[0].Value != json.Number("1000000000000000000000") {
		t.Fatalf("Expected exact number, got: %#v", vault.Args[0].Value)
	}
	if vault.Args[1].Value != true {
		t.Fatalf("Expected bool literal, got: %#v", vault.Args[1].Value)
	}
}

func TestLoadRegistry(t *testing.T) {
	path := writeFile(t, t.TempDir(), "registry.yaml", sampleRegistryYAML)

	registry, parsed, err := LoadRegistry(context.Background(), []string{path}, "sepolia")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if parsed == nil || parsed.Document.Name != "account-abstraction" {
		t.Fatalf("Expected parsed document, got: %+v", parsed)
	}
	units, _ := registry.ListUnits()
	if len(units) != 4 {
		t.Fatalf("Expected 4 units, got: %d", len(units))
	}

	if _, _, err := LoadRegistry(context.Background(), []string{"/nonexistent.yaml"}, "sepolia"); !engine.IsConfigError(err) {
		t.Fatalf("Expected config error for missing file, got: %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CHAINDEPLOY_TEST_VALUE", "abc")

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"${CHAINDEPLOY_TEST_VALUE}", "abc", false},
		{"x-$CHAINDEPLOY_TEST_VALUE-y", "x-abc-y", false},
		{"${CHAINDEPLOY_TEST_MISSING}", "", true},
	}
	for _, tt := range tests {
		got, err := ExpandEnv(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("Expected error for %q, got: %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Expected no error for %q, got: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("Expected %q, got: %q", tt.want, got)
		}
	}
}
