package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/openfroyo/chaindeploy/pkg/engine"
)

// LoadRegistry parses sources and builds the registry for networkID.
func LoadRegistry(ctx context.Context, sources []string, networkID string) (*engine.StaticRegistry, *ParsedRegistry, error) {
	parsed, err := NewParser().Parse(ctx, sources)
	if err != nil {
		return nil, nil, engine.NewConfigError("failed to read registry", err)
	}
	registry, err := parsed.Build(networkID)
	if err != nil {
		return nil, parsed, err
	}
	return registry, parsed, nil
}

// Err returns a ConfigError summarising the validation errors, or nil.
func (p *ParsedRegistry) Err() error {
	if len(p.Errors) == 0 {
		return nil
	}
	problems := make([]string, 0, len(p.Errors))
	for _, e := range p.Errors {
		problems = append(problems, e.String())
	}
	return engine.NewConfigError(
		fmt.Sprintf("invalid registry:\n  %s", strings.Join(problems, "\n  ")), nil).
		WithDetail("problems", problems)
}

// VariablesFor returns the registry variables with the overrides of networkID
// applied. Values are not yet environment-expanded.
func (d *RegistryDocument) VariablesFor(networkID string) map[string]interface{} {
	vars := make(map[string]interface{}, len(d.Variables))
	for k, v := range d.Variables {
		vars[k] = v
	}
	if override, ok := d.Networks[networkID]; ok {
		for k, v := range override.Variables {
			vars[k] = v
		}
	}
	return vars
}

// Build resolves variables for networkID and returns the validated registry.
// Unknown variables, unset environment variables and structural problems are
// ConfigErrors.
func (p *ParsedRegistry) Build(networkID string) (*engine.StaticRegistry, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}

	vars := p.Document.VariablesFor(networkID)
	var problems []string
	units := make([]engine.UnitSpec, 0, len(p.Document.Units))

	for _, u := range p.Document.Units {
		spec := engine.UnitSpec{
			Name:        u.Name,
			Artifact:    u.Artifact,
			NonCritical: u.NonCritical,
			Description: u.Description,
		}
		for i, arg := range u.Args {
			switch {
			case arg.forms() != 1:
				problems = append(problems, fmt.Sprintf("%s: argument %d must have exactly one of value, var or dependsOn", u.Name, i))
			case arg.DependsOn != "":
				spec.Args = append(spec.Args, engine.Ref(arg.DependsOn))
			case arg.Var != "":
				raw, ok := vars[arg.Var]
				if !ok {
					problems = append(problems, fmt.Sprintf("%s: argument %d references unknown variable %q%s",
						u.Name, i, arg.Var, suggest(arg.Var, vars)))
					continue
				}
				v, err := expandValue(raw)
				if err != nil {
					problems = append(problems, fmt.Sprintf("%s: variable %s: %v", u.Name, arg.Var, err))
					continue
				}
				spec.Args = append(spec.Args, engine.Literal(v))
			default:
				v, err := expandValue(arg.Value)
				if err != nil {
					problems = append(problems, fmt.Sprintf("%s: argument %d: %v", u.Name, i, err))
					continue
				}
				spec.Args = append(spec.Args, engine.Literal(v))
			}
		}
		units = append(units, spec)
	}

	if len(problems) > 0 {
		return nil, engine.NewConfigError(
			fmt.Sprintf("invalid registry for network %s:\n  %s", networkID, strings.Join(problems, "\n  ")), nil).
			WithDetail("problems", problems)
	}
	return engine.NewStaticRegistry(units)
}

func suggest(name string, vars map[string]interface{}) string {
	if len(vars) == 0 {
		return ""
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf(" (defined: %s)", strings.Join(names, ", "))
}

// expandValue applies ${ENV} expansion to strings, recursively through lists.
func expandValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return ExpandEnv(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			expanded, err := expandValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

// ExpandEnv replaces ${VAR} and $VAR with environment values. Referencing an
// unset variable is an error.
func ExpandEnv(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	var missing []string
	out := os.Expand(s, func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s is not set", strings.Join(missing, ", "))
	}
	return out, nil
}
