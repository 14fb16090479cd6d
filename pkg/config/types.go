package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RegistryDocument is the declarative list of deployable units, as written in
// registry.cue / registry.yaml / registry.json.
type RegistryDocument struct {
	// Name identifies the registry in logs and reports.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Variables are named constants referenced by {var: name} arguments.
	Variables map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Networks holds per-network overrides.
	Networks map[string]NetworkOverride `json:"networks,omitempty" yaml:"networks,omitempty" validate:"dive"`

	// Units are the deployable units in declaration order.
	Units []UnitConfig `json:"units" yaml:"units" validate:"required,min=1,dive"`
}

// NetworkOverride replaces registry variables on one network.
type NetworkOverride struct {
	Variables map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// UnitConfig describes one unit.
type UnitConfig struct {
	// Name is the unique unit name and the ledger key.
	Name string `json:"name" yaml:"name" validate:"required,unitname"`

	// Artifact is the compiled contract reference; defaults to Name.
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`

	// Args are the constructor arguments in order.
	Args []ArgConfig `json:"args,omitempty" yaml:"args,omitempty" validate:"dive"`

	// NonCritical units do not fail a run executed with continue-on-failure.
	NonCritical bool `json:"nonCritical,omitempty" yaml:"nonCritical,omitempty"`

	// Description is free-form documentation.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ArgConfig is one constructor argument. Exactly one of the forms is set:
// a literal ({value: x} or a bare scalar), a variable reference ({var: name})
// or a dependency reference ({dependsOn: unit}).
type ArgConfig struct {
	Value     interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	Var       string      `json:"var,omitempty" yaml:"var,omitempty"`
	DependsOn string      `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`

	// HasValue distinguishes a literal null or zero from an absent value.
	HasValue bool `json:"-" yaml:"-"`
}

// UnmarshalJSON accepts a bare literal or an object with exactly one field.
// Numbers are kept as json.Number so large integers survive.
func (a *ArgConfig) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		*a = ArgConfig{Value: raw, HasValue: true}
		return nil
	}
	if len(obj) != 1 {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		return fmt.Errorf("argument must have exactly one of value, var or dependsOn, got {%s}", strings.Join(keys, ", "))
	}

	*a = ArgConfig{}
	for key, v := range obj {
		switch key {
		case "value":
			a.Value = v
			a.HasValue = true
		case "var", "dependsOn":
			s, ok := v.(string)
			if !ok || s == "" {
				return fmt.Errorf("argument field %s must be a non-empty string", key)
			}
			if key == "var" {
				a.Var = s
			} else {
				a.DependsOn = s
			}
		default:
			return fmt.Errorf("unknown argument field %q (expected value, var or dependsOn)", key)
		}
	}
	return nil
}

// MarshalJSON writes the object form.
func (a ArgConfig) MarshalJSON() ([]byte, error) {
	switch {
	case a.DependsOn != "":
		return json.Marshal(map[string]string{"dependsOn": a.DependsOn})
	case a.Var != "":
		return json.Marshal(map[string]string{"var": a.Var})
	default:
		return json.Marshal(map[string]interface{}{"value": a.Value})
	}
}

// forms returns how many argument forms are set.
func (a ArgConfig) forms() int {
	n := 0
	if a.HasValue || a.Value != nil {
		n++
	}
	if a.Var != "" {
		n++
	}
	if a.DependsOn != "" {
		n++
	}
	return n
}

// ParsedRegistry is the result of parsing one or more registry sources.
type ParsedRegistry struct {
	// Document is the merged registry.
	Document RegistryDocument `json:"document"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the registry was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation errors; a registry with errors cannot be built.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path of the error (e.g., "units[2].args[0]").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// String formats the error as file:line:col: path: message.
func (v ValidationError) String() string {
	var sb strings.Builder
	if v.File != "" {
		sb.WriteString(v.File)
		if v.Line > 0 {
			fmt.Fprintf(&sb, ":%d:%d", v.Line, v.Column)
		}
		sb.WriteString(": ")
	}
	if v.Path != "" {
		sb.WriteString(v.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(v.Message)
	return sb.String()
}
