package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

// ScanSubmittedSchema is the schema file for scan payloads
const ScanSubmittedSchema = "scan_submitted.yaml"

// Validator validates JSON payloads against the embedded schemas
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	compiler.AssertFormat()

	urls := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		doc, err := loadYAML(path.Join("schemas", name))
		if err != nil {
			return nil, err
		}
		url := "mem:///schemas/" + name
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		urls[name] = url
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(urls))}
	for name, url := range urls {
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// loadYAML converts a YAML schema into the JSON value model the compiler expects
func loadYAML(file string) (any, error) {
	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", file, err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", file, err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert schema %s: %w", file, err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
}

// Validate checks payload against the named schema
func (v *Validator) Validate(schemaName string, payload []byte) error {
	schema, ok := v.schemas[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaName)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("payload does not match %s: %w", schemaName, err)
	}
	return nil
}

// ValidateScan checks a scan payload
func (v *Validator) ValidateScan(payload []byte) error {
	return v.Validate(ScanSubmittedSchema, payload)
}
