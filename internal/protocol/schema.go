package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaTypes = []string{TypeHello, TypeCommand, TypeState, TypeAck, TypeError, TypeStatus, TypeReport}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		out := make(map[string]*jsonschema.Schema, len(schemaTypes))
		for _, typ := range schemaTypes {
			name := typ + ".schema.json"
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			url := "mem://protocol/" + name
			if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks raw against the schema registered for its "type" field and
// returns that type.
func Validate(raw []byte) (string, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return "", fmt.Errorf("bad json: %w", err)
	}
	all, err := loadSchemas()
	if err != nil {
		return base.Type, err
	}
	s, ok := all[base.Type]
	if !ok {
		return base.Type, fmt.Errorf("unknown message type %q", base.Type)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return base.Type, err
	}
	if err := s.Validate(v); err != nil {
		return base.Type, err
	}
	return base.Type, nil
}

// ValidateValue marshals v and validates the result; used on outbound messages.
func ValidateValue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = Validate(b)
	return err
}
