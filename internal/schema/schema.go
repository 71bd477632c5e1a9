// Package schema wraps github.com/santhosh-tekuri/jsonschema/v6 to give the
// Graph Builder and Provider Interface a single place to compile producer
// output/input schemas, enumerate leaf artifact paths, look up declared
// defaults, and snap enum inputs to their nearest representable value.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Compiled wraps a compiled JSON schema document.
type Compiled struct {
	schema *jsonschema.Schema
	raw    map[string]interface{}
}

// Compile parses and compiles a raw JSON schema document.
func Compile(raw json.RawMessage) (*Compiled, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema: unmarshal: %w", err)
	}
	const resourceURL = "mem://producer-output.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	var rawMap map[string]interface{}
	_ = json.Unmarshal(raw, &rawMap)
	return &Compiled{schema: sch, raw: rawMap}, nil
}

// Validate checks an instance document against the compiled schema.
func (c *Compiled) Validate(instance interface{}) error {
	return c.schema.Validate(instance)
}

// LeafPath is one decomposed scalar/array-of-scalar leaf discovered while
// walking a producer's declared output schema (§4.2 step 1).
type LeafPath struct {
	// Path is the dotted/indexed JSON path, e.g. "Segments[0].ImagePrompts[1]".
	Path string
	// Root is true for the single-artifact case (a schema of primitives).
	Root bool
}

// EnumerateLeaves walks the root-level static shape of the schema (object
// properties and, for arrays, a bounded set of declared-or-default indices)
// and returns every leaf scalar path plus every array element of primitive
// type, per §4.2 step 1. Arrays of objects expand to the Cartesian product
// of a caller-supplied cardinality and child leaves; since schemas alone
// rarely fix array length, callers pass the observed/declared cardinalities
// for each array path via dims.
func (c *Compiled) EnumerateLeaves(dims map[string]int) ([]LeafPath, error) {
	if c.raw == nil {
		return nil, fmt.Errorf("schema: no raw document available for leaf enumeration")
	}
	var out []LeafPath
	err := walkLeaves(c.raw, "", dims, &out)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	if len(out) == 1 && out[0].Path == "" {
		out[0] = LeafPath{Path: "", Root: true}
	}
	return out, nil
}

func walkLeaves(node interface{}, prefix string, dims map[string]int, out *[]LeafPath) error {
	m, ok := node.(map[string]interface{})
	if !ok {
		*out = append(*out, LeafPath{Path: prefix})
		return nil
	}
	typ, _ := m["type"].(string)
	switch typ {
	case "object":
		props, _ := m["properties"].(map[string]interface{})
		if len(props) == 0 {
			*out = append(*out, LeafPath{Path: prefix})
			return nil
		}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			childPrefix := name
			if prefix != "" {
				childPrefix = prefix + "." + name
			}
			if err := walkLeaves(props[name], childPrefix, dims, out); err != nil {
				return err
			}
		}
		return nil
	case "array":
		items := m["items"]
		n, ok := dims[prefix]
		if !ok {
			n = 1 // default single-element cardinality when unspecified
		}
		for i := 0; i < n; i++ {
			childPrefix := fmt.Sprintf("%s[%d]", prefix, i)
			if err := walkLeaves(items, childPrefix, dims, out); err != nil {
				return err
			}
		}
		return nil
	default:
		// primitive leaf: string, number, integer, boolean, or untyped.
		*out = append(*out, LeafPath{Path: prefix})
		return nil
	}
}

// Default returns the declared `default` value for a top-level property
// name, when present.
func (c *Compiled) Default(fieldName string) (json.RawMessage, bool) {
	props, _ := c.raw["properties"].(map[string]interface{})
	if props == nil {
		return nil, false
	}
	prop, _ := props[fieldName].(map[string]interface{})
	if prop == nil {
		return nil, false
	}
	def, ok := prop["default"]
	if !ok {
		return nil, false
	}
	b, err := json.Marshal(def)
	if err != nil {
		return nil, false
	}
	return b, true
}

// NearestEnum snaps a numeric input to the nearest value declared in a
// top-level property's enum (§4.5/§8 scenario 6). The result is always the
// enum entry's string form (fmt %v), whatever the property's declared type:
// an integer enum entry 8 comes back as "8", not as a number.
func (c *Compiled) NearestEnum(fieldName string, numeric float64) (string, error) {
	props, _ := c.raw["properties"].(map[string]interface{})
	prop, _ := props[fieldName].(map[string]interface{})
	if prop == nil {
		return "", fmt.Errorf("schema: no property %q", fieldName)
	}
	enumRaw, _ := prop["enum"].([]interface{})
	if len(enumRaw) == 0 {
		return "", fmt.Errorf("schema: property %q has no enum", fieldName)
	}
	fieldType, _ := prop["type"].(string)

	best := ""
	bestDist := -1.0
	for _, e := range enumRaw {
		s := fmt.Sprintf("%v", e)
		n, err := numericPrefix(s)
		if err != nil {
			continue
		}
		dist := n - numeric
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = s
		}
	}
	if best == "" {
		return "", fmt.Errorf("schema: no numeric enum candidates for %q", fieldName)
	}
	if fieldType == "integer" || fieldType == "number" {
		return best, nil
	}
	return best, nil
}

// numericPrefix extracts the leading numeric portion of a string like "8s" -> 8.
func numericPrefix(s string) (float64, error) {
	end := 0
	for end < len(s) && (s[end] == '-' || s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no numeric prefix in %q", s)
	}
	return strconv.ParseFloat(s[:end], 64)
}
