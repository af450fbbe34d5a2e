package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// MediaTypeRawVideo is the media type of decoded video frames.
const MediaTypeRawVideo = "video/x-raw"

// Fraction is a rational number such as a frame rate.
type Fraction struct {
	Num int
	Den int
}

func (f Fraction) String() string {
	return strconv.Itoa(f.Num) + "/" + strconv.Itoa(f.Den)
}

// Caps describes a media format: a media type plus named fields whose values
// are strings, ints or fractions.
type Caps struct {
	MediaType string
	fields    []capsField
}

type capsField struct {
	name  string
	value any
}

// NewCaps returns empty caps of the given media type.
func NewCaps(mediaType string) *Caps {
	return &Caps{MediaType: mediaType}
}

// Set assigns a field, replacing any previous value. Only string, int and
// Fraction values are kept.
func (c *Caps) Set(name string, value any) *Caps {
	switch value.(type) {
	case string, int, Fraction:
	default:
		return c
	}
	for i := range c.fields {
		if c.fields[i].name == name {
			c.fields[i].value = value
			return c
		}
	}
	c.fields = append(c.fields, capsField{name: name, value: value})
	return c
}

// Has reports whether the field is present.
func (c *Caps) Has(name string) bool {
	_, ok := c.get(name)
	return ok
}

// Fields returns the field names in insertion order.
func (c *Caps) Fields() []string {
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.name
	}
	return names
}

func (c *Caps) get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	for _, f := range c.fields {
		if f.name == name {
			return f.value, true
		}
	}
	return nil, false
}

// String returns the field as a string if it holds one.
func (c *Caps) String(name string) (string, bool) {
	v, ok := c.get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the field as an int if it holds one.
func (c *Caps) Int(name string) (int, bool) {
	v, ok := c.get(name)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// Fraction returns the field as a fraction if it holds one.
func (c *Caps) Fraction(name string) (Fraction, bool) {
	v, ok := c.get(name)
	if !ok {
		return Fraction{}, false
	}
	f, ok := v.(Fraction)
	return f, ok
}

// Clone returns a deep copy.
func (c *Caps) Clone() *Caps {
	if c == nil {
		return nil
	}
	out := &Caps{MediaType: c.MediaType, fields: make([]capsField, len(c.fields))}
	copy(out.fields, c.fields)
	return out
}

// Format renders the caps in description syntax, e.g.
// "video/x-raw,format=I420,width=1920,height=1080,framerate=30000/1001".
func (c *Caps) Format() string {
	var b strings.Builder
	b.WriteString(c.MediaType)
	for _, f := range c.fields {
		b.WriteByte(',')
		b.WriteString(f.name)
		b.WriteByte('=')
		switch v := f.value.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString(strconv.Itoa(v))
		case Fraction:
			b.WriteString(v.String())
		}
	}
	return b.String()
}

// ParseCaps parses a caps string as produced by Format. Field values of the
// form N/D become fractions, integers become ints, anything else a string.
// Values may carry an explicit type such as "(int)5" or "(string)I420".
func ParseCaps(s string) (*Caps, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	mediaType := strings.TrimSpace(parts[0])
	if !isMediaType(mediaType) {
		return nil, fmt.Errorf("invalid media type %q", mediaType)
	}
	caps := NewCaps(mediaType)
	for _, part := range parts[1:] {
		name, raw, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid caps field %q", part)
		}
		value, err := parseCapsValue(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("caps field %q: %w", name, err)
		}
		caps.Set(name, value)
	}
	return caps, nil
}

func parseCapsValue(raw string) (any, error) {
	typ := ""
	if strings.HasPrefix(raw, "(") {
		end := strings.IndexByte(raw, ')')
		if end < 0 {
			return nil, fmt.Errorf("unterminated type in %q", raw)
		}
		typ, raw = raw[1:end], raw[end+1:]
	}
	if raw == "" {
		return nil, fmt.Errorf("empty value")
	}
	switch typ {
	case "string":
		return raw, nil
	case "int":
		return strconv.Atoi(raw)
	case "fraction":
		return parseFraction(raw)
	case "":
	default:
		return nil, fmt.Errorf("unsupported type %q", typ)
	}
	if strings.Contains(raw, "/") {
		return parseFraction(raw)
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	return raw, nil
}

func parseFraction(raw string) (Fraction, error) {
	n, d, ok := strings.Cut(raw, "/")
	if !ok {
		return Fraction{}, fmt.Errorf("not a fraction: %q", raw)
	}
	num, err := strconv.Atoi(n)
	if err != nil {
		return Fraction{}, fmt.Errorf("fraction numerator %q: %w", n, err)
	}
	den, err := strconv.Atoi(d)
	if err != nil {
		return Fraction{}, fmt.Errorf("fraction denominator %q: %w", d, err)
	}
	if den == 0 {
		return Fraction{}, fmt.Errorf("fraction %q has zero denominator", raw)
	}
	return Fraction{Num: num, Den: den}, nil
}

func isMediaType(s string) bool {
	major, minor, ok := strings.Cut(s, "/")
	return ok && major != "" && minor != "" && !strings.ContainsAny(s, " =!")
}
