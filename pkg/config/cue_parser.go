package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/go-playground/validator/v10"
)

// Format is a registry source format.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported registry format %q (expected .cue, .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// Parser loads registry documents from CUE, YAML and JSON sources. Every
// source is checked against the #Registry schema and the struct validation
// tags before it is merged.
type Parser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewParser creates a new registry parser.
func NewParser() *Parser {
	ctx := cuecontext.New()
	return &Parser{
		ctx:            ctx,
		schemaRegistry: NewSchemaRegistryWithContext(ctx),
		validator:      newValidator(),
	}
}

// Parse parses registry sources (files or CUE package directories) in order
// and merges them. Unreadable sources are returned as an error; invalid
// content is reported in ParsedRegistry.Errors.
func (p *Parser) Parse(ctx context.Context, sources []string) (*ParsedRegistry, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no registry sources provided")
	}

	parsed := &ParsedRegistry{ParsedAt: time.Now()}
	var docs []RegistryDocument

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var (
			val   cue.Value
			files []string
			errs  []ValidationError
		)
		if info.IsDir() {
			val, files, errs = p.loadDirectory(source)
		} else {
			files = []string{source}
			val, errs = p.loadFile(source)
		}
		parsed.SourceFiles = append(parsed.SourceFiles, files...)
		if len(errs) > 0 {
			parsed.Errors = append(parsed.Errors, errs...)
			continue
		}

		doc, errs := p.extract(val, source)
		if len(errs) > 0 {
			parsed.Errors = append(parsed.Errors, errs...)
			continue
		}
		docs = append(docs, *doc)
	}

	if len(parsed.Errors) == 0 {
		parsed.Document = mergeDocuments(docs)
	}
	return parsed, nil
}

// ParseInline parses registry content given directly.
func (p *Parser) ParseInline(ctx context.Context, content string, format Format) (*ParsedRegistry, error) {
	parsed := &ParsedRegistry{
		SourceFiles: []string{"inline"},
		ParsedAt:    time.Now(),
	}
	val, errs := p.compile([]byte(content), "inline", format)
	if len(errs) > 0 {
		parsed.Errors = errs
		return parsed, nil
	}
	doc, errs := p.extract(val, "inline")
	if len(errs) > 0 {
		parsed.Errors = errs
		return parsed, nil
	}
	parsed.Document = *doc
	return parsed, nil
}

// loadDirectory loads a directory as a CUE package.
func (p *Parser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}
	return val, files, nil
}

// loadFile loads a single registry file.
func (p *Parser) loadFile(path string) (cue.Value, []ValidationError) {
	format, err := FormatFromPath(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{File: path, Message: err.Error(), Severity: "error"}}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}
	return p.compile(content, path, format)
}

// compile turns source bytes into a CUE value. JSON is CUE syntax; YAML is
// extracted to a CUE file so that positions survive for error reporting.
func (p *Parser) compile(content []byte, name string, format Format) (cue.Value, []ValidationError) {
	switch format {
	case FormatCUE, FormatJSON:
		if len(bytes.TrimSpace(content)) == 0 {
			return cue.Value{}, []ValidationError{{File: name, Message: "document is empty", Severity: "error"}}
		}
		val := p.ctx.CompileBytes(content, cue.Filename(name))
		if err := val.Err(); err != nil {
			return cue.Value{}, p.convertCUEErrors(err)
		}
		return val, nil

	case FormatYAML:
		file, err := cueyaml.Extract(name, content)
		if err != nil {
			return cue.Value{}, []ValidationError{{File: name, Message: fmt.Sprintf("invalid YAML: %v", err), Severity: "error"}}
		}
		if len(file.Decls) == 0 {
			return cue.Value{}, []ValidationError{{File: name, Message: "document is empty", Severity: "error"}}
		}
		val := p.ctx.BuildFile(file)
		if err := val.Err(); err != nil {
			return cue.Value{}, p.convertCUEErrors(err)
		}
		return val, nil

	default:
		return cue.Value{}, []ValidationError{{File: name, Message: fmt.Sprintf("unsupported format %q", format), Severity: "error"}}
	}
}

// extract validates val against #Registry and decodes it.
func (p *Parser) extract(val cue.Value, source string) (*RegistryDocument, []ValidationError) {
	if err := p.schemaRegistry.Validate("registry", val); err != nil {
		errs := p.convertCUEErrors(err)
		for i := range errs {
			if errs[i].File == "" || strings.HasSuffix(errs[i].File, ".schema.cue") {
				errs[i].File = source
				errs[i].Line, errs[i].Column = 0, 0
			}
		}
		return nil, errs
	}

	data, err := val.MarshalJSON()
	if err != nil {
		return nil, p.convertCUEErrors(err)
	}

	var doc RegistryDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, []ValidationError{{File: source, Message: fmt.Sprintf("failed to decode registry: %v", err), Severity: "error"}}
	}

	if err := p.validator.Struct(doc); err != nil {
		return nil, convertValidatorErrors(source, err)
	}
	return &doc, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (p *Parser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// GetSchemaRegistry returns the schema registry.
func (p *Parser) GetSchemaRegistry() *SchemaRegistry {
	return p.schemaRegistry
}

// mergeDocuments concatenates units in source order. Later variables and
// network overrides replace earlier ones.
func mergeDocuments(docs []RegistryDocument) RegistryDocument {
	if len(docs) == 1 {
		return docs[0]
	}
	merged := RegistryDocument{
		Variables: make(map[string]interface{}),
		Networks:  make(map[string]NetworkOverride),
	}
	for _, doc := range docs {
		if merged.Name == "" {
			merged.Name = doc.Name
		}
		for k, v := range doc.Variables {
			merged.Variables[k] = v
		}
		for network, override := range doc.Networks {
			existing := merged.Networks[network]
			if existing.Variables == nil {
				existing.Variables = make(map[string]interface{})
			}
			for k, v := range override.Variables {
				existing.Variables[k] = v
			}
			merged.Networks[network] = existing
		}
		merged.Units = append(merged.Units, doc.Units...)
	}
	return merged
}
