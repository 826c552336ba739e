package comparison

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Parse decodes and validates a comparison document. On any failure it
// returns a *FormatError and a nil comparison.
func Parse(data []byte) (*Comparison, error) {
	c, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal encodes c as canonical JSON: object keys are sorted and extra
// fields captured at decode time are written back.
func Marshal(c *Comparison) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("marshal comparison: nil")
	}
	return json.Marshal(c)
}

// MarshalIndent is Marshal with indentation, for files meant to be read by people.
func MarshalIndent(c *Comparison) ([]byte, error) {
	data, err := Marshal(c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indent comparison: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MarshalSection encodes one section including its type discriminant.
func MarshalSection(s Section) ([]byte, error) {
	if u, ok := s.(*UnknownSection); ok {
		if len(u.Raw) == 0 {
			return json.Marshal(map[string]string{"type": u.Type})
		}
		return u.Raw, nil
	}
	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s section: %w", s.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("marshal %s section: %w", s.Kind(), err)
	}
	mergeExtras(fields, *s.extras())
	kind, _ := json.Marshal(string(s.Kind()))
	fields["type"] = kind
	return json.Marshal(fields)
}

// MarshalJSON implements json.Marshaler.
func (c *Comparison) MarshalJSON() ([]byte, error) {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	eips := c.EIPs
	if eips == nil {
		eips = []int{}
	}
	sections := make([]json.RawMessage, 0, len(c.Sections))
	for _, s := range c.Sections {
		raw, err := MarshalSection(s)
		if err != nil {
			return nil, err
		}
		sections = append(sections, raw)
	}

	fields := map[string]json.RawMessage{}
	mergeExtras(fields, c.Extras)
	fields["meta"] = meta
	fields["eips"], _ = json.Marshal(eips)
	fields["sections"], _ = json.Marshal(sections)
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler. It decodes without validating;
// use Parse at trust boundaries.
func (c *Comparison) UnmarshalJSON(data []byte) error {
	decoded, err := decode(data)
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m Meta) MarshalJSON() ([]byte, error) {
	type plain Meta
	body, err := json.Marshal(plain(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extras) == 0 {
		return body, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	mergeExtras(fields, m.Extras)
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Meta) UnmarshalJSON(data []byte) error {
	type plain Meta
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = Meta(p)
	m.Extras = extraFields(fields, reflect.TypeOf(p))
	return nil
}

func decode(data []byte) (*Comparison, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, formatError(-1, "Invalid JSON: the document must be a JSON object", err)
	}
	for _, key := range []string{"meta", "eips", "sections"} {
		if _, ok := top[key]; !ok {
			return nil, formatError(-1, fmt.Sprintf("Missing required field %q", key), nil)
		}
	}

	c := &Comparison{}
	if isNull(top["meta"]) || !isObject(top["meta"]) {
		return nil, formatError(-1, `Field "meta" must be an object`, nil)
	}
	if err := json.Unmarshal(top["meta"], &c.Meta); err != nil {
		return nil, formatError(-1, `Field "meta" is malformed`, err)
	}
	if err := json.Unmarshal(top["eips"], &c.EIPs); err != nil || c.EIPs == nil {
		return nil, formatError(-1, `Field "eips" must be an array of integers`, err)
	}

	var rawSections []json.RawMessage
	if err := json.Unmarshal(top["sections"], &rawSections); err != nil || rawSections == nil {
		return nil, formatError(-1, `Field "sections" must be an array`, err)
	}
	c.Sections = make([]Section, 0, len(rawSections))
	for i, raw := range rawSections {
		s, err := decodeSection(i, raw)
		if err != nil {
			return nil, err
		}
		c.Sections = append(c.Sections, s)
	}

	delete(top, "meta")
	delete(top, "eips")
	delete(top, "sections")
	if len(top) > 0 {
		c.Extras = Extras(top)
	}
	return c, nil
}

func decodeSection(index int, raw json.RawMessage) (Section, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, formatError(index, "section must be an object", err)
	}
	var kind string
	if err := json.Unmarshal(fields["type"], &kind); err != nil || kind == "" {
		return nil, formatError(index, `section is missing a string "type"`, err)
	}

	factory, ok := sectionFactories[Kind(kind)]
	if !ok {
		return &UnknownSection{Type: kind, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	for _, name := range requiredFields[Kind(kind)] {
		if v, ok := fields[name]; !ok || isNull(v) {
			return nil, formatError(index, fmt.Sprintf("%s section is missing required field %q", kind, name), nil)
		}
	}

	s := factory()
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, formatError(index, fmt.Sprintf("%s section is malformed", kind), err)
	}
	*s.extras() = extraFields(fields, reflect.TypeOf(s).Elem())
	return s, nil
}

// extraFields returns the members of fields that t has no JSON field for.
func extraFields(fields map[string]json.RawMessage, t reflect.Type) Extras {
	known := jsonFieldNames(t)
	var out Extras
	for name, value := range fields {
		if name == "type" {
			continue
		}
		if _, ok := known[name]; ok {
			continue
		}
		if out == nil {
			out = Extras{}
		}
		out[name] = value
	}
	return out
}

func mergeExtras(fields map[string]json.RawMessage, extras Extras) {
	for name, value := range extras {
		if _, taken := fields[name]; taken || name == "type" {
			continue
		}
		fields[name] = value
	}
}

var fieldNameCache sync.Map

func jsonFieldNames(t reflect.Type) map[string]struct{} {
	if cached, ok := fieldNameCache.Load(t); ok {
		return cached.(map[string]struct{})
	}
	names := map[string]struct{}{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" || !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		names[name] = struct{}{}
	}
	fieldNameCache.Store(t, names)
	return names
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
