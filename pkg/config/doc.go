// Package config loads the deployment registry and the workspace file.
//
// A registry lists the deployable units and their constructor arguments. It
// can be written in CUE, YAML or JSON; every format is validated against the
// built-in #Registry CUE schema and the struct validation tags:
//
//	name: account-abstraction
//	variables:
//	  entryPoint: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
//	  owner: "${PAYMASTER_OWNER}"
//	networks:
//	  arbitrumSepolia:
//	    variables: {owner: "0x46897603e2A82755E9c416eF828Bd1515536b3D5"}
//	units:
//	  - name: WebAuthn256r1
//	  - name: Secp256r1Factory
//	    args: [{var: entryPoint}, {dependsOn: WebAuthn256r1}]
//
// Arguments are bare literals or exactly one of {value: x}, {var: name} and
// {dependsOn: unit}. Variables take per-network overrides and ${ENV}
// expansion when the registry is built for a network:
//
//	parsed, err := config.NewParser().Parse(ctx, ws.Registry)
//	registry, err := parsed.Build("sepolia")
//
// The workspace file (chaindeploy.yaml) points at the registry, artifacts,
// ledger database and network endpoints. Watch reports edits to any of them
// for validate --watch.
package config
