package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleRegistryYAML = `name: account-abstraction
variables:
  entryPoint: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
  owner: "0x46897603e2A82755E9c416eF828Bd1515536b3D5"
networks:
  arbitrumSepolia:
    variables:
      owner: "0x1111111111111111111111111111111111111111"
units:
  - name: WebAuthn256r1
  - name: Secp256r1Factory
    args:
      - {var: entryPoint}
      - {dependsOn: WebAuthn256r1}
  - name: Paymaster
    args: [{var: entryPoint}, {var: owner}]
  - name: SimpleAccountFactory
    args: [{var: entryPoint}]
    nonCritical: true
`

const sampleRegistryCUE = `
name: "account-abstraction"

variables: entryPoint: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"

units: [
	{name: "WebAuthn256r1"},
	{
		name: "Secp256r1Factory"
		args: [{var: "entryPoint"}, {dependsOn: "WebAuthn256r1"}]
	},
	{
		name:     "Token"
		artifact: "contracts/Token.sol:Token"
		args: ["Test Token", {value: 18}]
	},
]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
