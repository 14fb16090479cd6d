package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Values validated against
// a schema must be built with the registry's Context.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	return NewSchemaRegistryWithContext(cuecontext.New())
}

// NewSchemaRegistryWithContext creates a schema registry bound to ctx.
func NewSchemaRegistryWithContext(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

// registerBuiltInSchemas registers all built-in schemas. They are constants
// and compile.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	_ = sr.RegisterSchema("registry", builtinRegistrySchema)
	_ = sr.RegisterSchema("workspace", builtinWorkspaceSchema)
}

// Context returns the CUE context schemas are compiled in.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema registers a CUE schema with the given name. The schema must
// declare a definition named after the capitalised schema name (for
// "registry", #Registry).
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".schema.cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definitionName(name)))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not declare %s", name, definitionName(name))
	}

	sr.schemas[name] = def
	return nil
}

func definitionName(schema string) string {
	if schema == "" {
		return "#"
	}
	b := []byte(schema)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return "#" + string(b)
}

// GetSchema retrieves a schema definition by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate unifies val with the named schema and requires a concrete result.
func (sr *SchemaRegistry) Validate(schemaName string, val cue.Value) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}

// ValidateAgainstSchema encodes data and validates it against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if err := sr.Validate(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinRegistrySchema = `
#UnitName: =~"^[A-Za-z_][A-Za-z0-9_.-]*$"
#VarName:  =~"^[A-Za-z_][A-Za-z0-9_]*$"

// An argument is a bare literal or exactly one of value, var, dependsOn.
#Arg: string | number | bool | [...] | {value: _} | {var: #VarName} | {dependsOn: #UnitName}

#Unit: {
	name:         #UnitName
	artifact?:    string
	args?:        [...#Arg]
	nonCritical?: bool
	description?: string
}

#Registry: {
	name?: string
	variables?: {[#VarName]: _}
	networks?: {[string]: {variables?: {[#VarName]: _}}}
	units: [...#Unit]
}
`

const builtinWorkspaceSchema = `
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Workspace: {
	registry?:      [...string]
	artifacts_dir?: string
	ledger?: {
		path?:         string
		busy_timeout?: #Duration
	}
	networks: {[string]: {
		chain_id:       int & >0
		rpc_url?:       string | null
		confirmations?: int & >=0
		poll_interval?: #Duration
	}}
	signer?: {private_key_env?: =~"^[A-Za-z_][A-Za-z0-9_]*$"}
	deploy?: {
		confirm_timeout?:     #Duration
		poll_interval?:       #Duration
		lock_ttl?:            #Duration
		continue_on_failure?: bool
	}
	policy?: {
		paths?:            [...string]
		disable_builtins?: bool
	}
	telemetry?: {
		log_level?:        "trace" | "debug" | "info" | "warn" | "error"
		log_format?:       "console" | "json"
		tracing?:          "none" | "stdout" | "otlp"
		otlp_endpoint?:    string
		metrics_textfile?: string
	}
}
`

// ValidateRegistry validates a registry document against the #Registry schema.
func (sr *SchemaRegistry) ValidateRegistry(ctx context.Context, doc interface{}) error {
	return sr.ValidateAgainstSchema(ctx, "registry", doc)
}

// ValidateWorkspace validates a raw workspace document against the
// #Workspace schema.
func (sr *SchemaRegistry) ValidateWorkspace(ctx context.Context, doc interface{}) error {
	return sr.ValidateAgainstSchema(ctx, "workspace", doc)
}
