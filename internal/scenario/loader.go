package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/encoding/json"
	"gopkg.in/yaml.v3"

	"github.com/attest-ai/voxcheck/pkg/types"
)

//go:embed schema/scenario.schema.json
var schemaDoc []byte

const schemaURL = "https://voxcheck.dev/schema/scenario.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func scenarioSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
		if err != nil {
			compileErr = fmt.Errorf("parse scenario schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add scenario schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Format is the encoding of a scenario document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the document format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Load reads, schema-checks and validates a scenario file.
func Load(path string) (*types.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	sc, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario document, checks it against the scenario schema
// and applies Validate.
func Parse(data []byte, format Format) (*types.Scenario, error) {
	jsonData, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	sch, err := scenarioSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var sc types.Scenario
	if err := json.Unmarshal(jsonData, &sc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := Validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func toJSON(data []byte, format Format) ([]byte, error) {
	if format == FormatJSON {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return out, nil
}

// Validate checks the invariants a scenario must hold before execution:
// positive, unique step numbers and thresholds within [0, 1].
func Validate(sc *types.Scenario) error {
	if sc == nil {
		return errors.New("scenario is nil")
	}
	var errs []error
	seen := make(map[int]bool, len(sc.Steps))
	for i, st := range sc.Steps {
		if st.StepNumber < 1 {
			errs = append(errs, fmt.Errorf("steps[%d]: step_number must be positive, got %d", i, st.StepNumber))
		}
		if seen[st.StepNumber] {
			errs = append(errs, fmt.Errorf("steps[%d]: duplicate step_number %d", i, st.StepNumber))
		}
		seen[st.StepNumber] = true
		if th := st.ToleranceThreshold; th != nil && (*th < 0 || *th > 1) {
			errs = append(errs, fmt.Errorf("steps[%d]: tolerance_threshold %v outside [0, 1]", i, *th))
		}
	}
	return errors.Join(errs...)
}

// LoadResponses reads an ordered list of captured responses from a YAML or
// JSON array of strings.
func LoadResponses(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("responses: read %s: %w", path, err)
	}
	var out []string
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("responses: %s: %w", path, err)
	}
	return out, nil
}
