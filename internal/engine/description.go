package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KindCapsFilter is the stage kind produced by a bare caps string in a
// description.
const KindCapsFilter = "capsfilter"

// ParseError reports a malformed graph description.
type ParseError struct {
	Description string
	Msg         string
}

func (e *ParseError) Error() string {
	return "cannot parse graph description: " + e.Msg
}

// Spec is one stage of a linear graph description.
type Spec struct {
	Kind  string
	Name  string
	Props []Property
	Caps  *Caps
}

// Property is a stage property assignment.
type Property struct {
	Key   string
	Value string
}

// Prop formats value for use in a description. Durations are written in
// nanoseconds.
func Prop(key string, value any) Property {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case bool:
		s = strconv.FormatBool(v)
	case int:
		s = strconv.Itoa(v)
	case uint:
		s = strconv.FormatUint(uint64(v), 10)
	case int64:
		s = strconv.FormatInt(v, 10)
	case time.Duration:
		s = strconv.FormatInt(v.Nanoseconds(), 10)
	default:
		s = fmt.Sprint(v)
	}
	return Property{Key: key, Value: s}
}

// Element returns the spec of a named stage. An empty name lets the engine
// pick one.
func Element(kind, name string, props ...Property) Spec {
	return Spec{Kind: kind, Name: name, Props: props}
}

// Filter returns the spec of a caps filter stage.
func Filter(caps *Caps) Spec {
	return Spec{Kind: KindCapsFilter, Caps: caps}
}

// Prop returns the value of the named property.
func (s Spec) Prop(key string) (string, bool) {
	for _, p := range s.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Chain renders specs as a linear description joined by "!".
func Chain(specs ...Spec) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		parts = append(parts, s.render())
	}
	return strings.Join(parts, " ! ")
}

func (s Spec) render() string {
	if s.Kind == KindCapsFilter && s.Caps != nil && s.Name == "" && len(s.Props) == 0 {
		return s.Caps.Format()
	}
	var b strings.Builder
	b.WriteString(s.Kind)
	if s.Name != "" {
		b.WriteString(" name=")
		b.WriteString(quote(s.Name))
	}
	for _, p := range s.Props {
		b.WriteByte(' ')
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(quote(p.Value))
	}
	if s.Kind == KindCapsFilter && s.Caps != nil {
		b.WriteString(" caps=")
		b.WriteString(quote(s.Caps.Format()))
	}
	return b.String()
}

func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n!\"\\'") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}

// ParseDescription splits a linear description into stage specs and assigns
// names to unnamed stages. Stage names must be unique.
func ParseDescription(desc string) ([]Spec, error) {
	fail := func(format string, args ...any) ([]Spec, error) {
		return nil, &ParseError{Description: desc, Msg: fmt.Sprintf(format, args...)}
	}

	segments, err := splitUnquoted(desc, '!')
	if err != nil {
		return fail("%v", err)
	}

	specs := make([]Spec, 0, len(segments))
	for i, seg := range segments {
		words, err := splitWords(seg)
		if err != nil {
			return fail("stage %d: %v", i, err)
		}
		if len(words) == 0 {
			return fail("stage %d is empty", i)
		}

		if head, _, _ := strings.Cut(words[0], ","); strings.Contains(head, "/") && !strings.Contains(head, "=") {
			caps, err := ParseCaps(strings.Join(words, ""))
			if err != nil {
				return fail("stage %d: %v", i, err)
			}
			specs = append(specs, Filter(caps))
			continue
		}

		spec := Spec{Kind: words[0]}
		if !validIdent(spec.Kind) {
			return fail("stage %d: invalid stage kind %q", i, spec.Kind)
		}
		for _, w := range words[1:] {
			key, value, ok := strings.Cut(w, "=")
			if !ok || key == "" {
				return fail("stage %d (%s): invalid property %q", i, spec.Kind, w)
			}
			switch {
			case key == "name":
				spec.Name = value
			case key == "caps" && spec.Kind == KindCapsFilter:
				caps, err := ParseCaps(value)
				if err != nil {
					return fail("stage %d: %v", i, err)
				}
				spec.Caps = caps
			default:
				spec.Props = append(spec.Props, Property{Key: key, Value: value})
			}
		}
		if spec.Kind == KindCapsFilter && spec.Caps == nil {
			return fail("stage %d: capsfilter without caps", i)
		}
		specs = append(specs, spec)
	}

	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			continue
		}
		if seen[s.Name] {
			return fail("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
	}
	counters := make(map[string]int)
	for i := range specs {
		if specs[i].Name != "" {
			continue
		}
		for {
			name := specs[i].Kind + strconv.Itoa(counters[specs[i].Kind])
			counters[specs[i].Kind]++
			if !seen[name] {
				specs[i].Name = name
				seen[name] = true
				break
			}
		}
	}
	return specs, nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// splitUnquoted splits s on sep outside double quotes.
func splitUnquoted(s string, sep byte) ([]string, error) {
	var out []string
	inQuote, escaped := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == sep && !inQuote:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	return append(out, s[start:]), nil
}

// splitWords splits one stage into whitespace separated words, removing
// quotes and escapes.
func splitWords(s string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == '"':
			inQuote = !inQuote
			inWord = true
		case !inQuote && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}
