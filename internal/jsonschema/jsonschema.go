package jsonschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Schema is the subset of JSON Schema the Qianfan API understands.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"` // *Schema or bool
	Enum                 []any              `json:"enum,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Defs                 map[string]*Schema `json:"$defs,omitempty"`
}

// String returns the compact JSON form.
func (s *Schema) String() string {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("jsonschema: %v", err)
	}
	return string(raw)
}

// For returns the schema of T.
func For[T any]() (*Schema, error) {
	g := &generator{
		expanding:  make(map[reflect.Type]bool),
		referenced: make(map[reflect.Type]bool),
		defs:       make(map[string]*Schema),
	}
	s, err := g.schema(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	if len(g.defs) > 0 {
		s.Defs = g.defs
	}
	return s, nil
}

type generator struct {
	expanding  map[reflect.Type]bool // structs on the current path
	referenced map[reflect.Type]bool // structs reached again while expanding
	defs       map[string]*Schema
}

func (g *generator) schema(t reflect.Type) (*Schema, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}, nil
	case reflect.Bool:
		return &Schema{Type: "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}, nil
	case reflect.Interface:
		return &Schema{}, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			// encoding/json writes byte slices as base64 text.
			return &Schema{Type: "string"}, nil
		}
		items, err := g.schema(t.Elem())
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "array", Items: items}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("jsonschema: map key %s is not a string", t.Key())
		}
		values, err := g.schema(t.Elem())
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "object", AdditionalProperties: values}, nil
	case reflect.Struct:
		return g.object(t)
	}
	return nil, fmt.Errorf("jsonschema: unsupported type %s", t)
}

func (g *generator) object(t reflect.Type) (*Schema, error) {
	if g.expanding[t] {
		g.referenced[t] = true
		return &Schema{Ref: "#/$defs/" + defName(t)}, nil
	}
	g.expanding[t] = true
	defer delete(g.expanding, t)

	s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	if err := g.addFields(s, t); err != nil {
		return nil, err
	}
	if g.referenced[t] {
		g.defs[defName(t)] = s
	}
	return s, nil
}

// addFields adds the properties of t to s. Untagged embedded structs are
// flattened the way encoding/json flattens them.
func (g *generator) addFields(s *Schema, t reflect.Type) error {
	for field := range fields(t) {
		name, omitempty, skip := jsonName(field)
		if skip {
			continue
		}

		ft := field.Type
		if field.Anonymous && name == "" {
			for ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := g.addFields(s, ft); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}

		fs, err := g.schema(field.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name(), field.Name, err)
		}
		required, err := applyTag(fs, field)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name(), field.Name, err)
		}
		s.Properties[name] = fs
		if required || (field.Type.Kind() != reflect.Pointer && !omitempty) {
			s.Required = append(s.Required, name)
		}
	}
	return nil
}

func fields(t reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() && !f.Anonymous {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

func jsonName(f reflect.StructField) (name string, omitempty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false, !f.IsExported() && !f.Anonymous
	}
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	return name, strings.Contains(","+opts+",", ",omitempty,") || strings.Contains(","+opts+",", ",omitzero,"), false
}

// applyTag reads the jsonschema tag of f into s and reports whether it
// marks the field required. Descriptions run to the end of the tag, so put
// description last when it contains commas.
func applyTag(s *Schema, f reflect.StructField) (required bool, err error) {
	tag := f.Tag.Get("jsonschema")
	for tag != "" {
		var item string
		if strings.HasPrefix(tag, "description=") {
			item, tag = tag, ""
		} else {
			item, tag, _ = strings.Cut(tag, ",")
		}

		key, value, _ := strings.Cut(item, "=")
		switch key {
		case "required":
			required = true
		case "description":
			s.Description = value
		case "enum":
			v, err := enumValue(f.Type, value)
			if err != nil {
				return false, err
			}
			s.Enum = append(s.Enum, v)
		default:
			return false, fmt.Errorf("jsonschema: unknown tag option %q", key)
		}
	}
	return required, nil
}

// enumValue converts value to the JSON type of t.
func enumValue(t reflect.Type, value string) (any, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return value, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("jsonschema: enum %q: %w", value, err)
		}
		return v, nil
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("jsonschema: enum %q: %w", value, err)
		}
		return v, nil
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("jsonschema: enum %q: %w", value, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("jsonschema: enum on %s", t)
}

func defName(t reflect.Type) string {
	if t.Name() != "" {
		return strings.ToLower(t.Name())
	}
	return "anonymous"
}
