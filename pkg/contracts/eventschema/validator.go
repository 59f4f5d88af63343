package eventschema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaFiles maps event types to their payload schema
var schemaFiles = map[string]string{
	cloudevents.InspectionSessionCompleted: "schemas/inspection-session-completed.json",
	cloudevents.InspectionSessionCancelled: "schemas/inspection-session-cancelled.json",
}

// Validator validates event payloads against JSON schemas
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the embedded payload schemas
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(schemaFiles))

	for eventType, file := range schemaFiles {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", file, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", file, err)
		}

		uri := "wms://events/" + path.Base(file)
		if err := compiler.AddResource(uri, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", file, err)
		}
		compiled, err := compiler.Compile(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", file, err)
		}
		schemas[eventType] = compiled
	}

	return &Validator{schemas: schemas}, nil
}

// HasSchema checks if a schema exists for the given event type
func (v *Validator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// EventTypes returns the event types with a registered schema, sorted
func (v *Validator) EventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// Validate checks the data of event against the schema for its type
func (v *Validator) Validate(event *cloudevents.WMSCloudEvent) error {
	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", event.Type)
	}
	if event.Data == nil {
		return fmt.Errorf("event data is required for type %s", event.Type)
	}

	raw, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	data, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}

	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", event.Type, err)
	}
	return nil
}
