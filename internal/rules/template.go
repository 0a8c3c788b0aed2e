package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplateSyntax reports an empty, unclosed or stray brace in a template.
var ErrTemplateSyntax = errors.New("rules: template syntax error")

// TemplateBindingError is returned when a template references a token that
// the substitution table does not bind.
type TemplateBindingError struct {
	Token    string
	Template string
}

func (e *TemplateBindingError) Error() string {
	return fmt.Sprintf("rules: template %q: unbound token {%s}", e.Template, e.Token)
}

// segment is either literal text or a {token} reference.
type segment struct {
	text  string
	token bool
}

// parseTemplate splits tpl into segments. "{{" and "}}" are literal braces.
func parseTemplate(tpl string) ([]segment, error) {
	var (
		segs []segment
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(tpl[i+1:], "{}")
			if end < 0 || tpl[i+1+end] != '}' {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d in %q", ErrTemplateSyntax, i, tpl)
			}
			if end == 0 {
				return nil, fmt.Errorf("%w: empty token at offset %d in %q", ErrTemplateSyntax, i, tpl)
			}
			flush()
			segs = append(segs, segment{text: tpl[i+1 : i+1+end], token: true})
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: stray '}' at offset %d in %q", ErrTemplateSyntax, i, tpl)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

// Render replaces every {token} in tpl with its value from table.
func Render(tpl string, table map[string]string) (string, error) {
	segs, err := parseTemplate(tpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(tpl))
	for _, s := range segs {
		if !s.token {
			b.WriteString(s.text)
			continue
		}
		v, ok := table[s.text]
		if !ok {
			return "", &TemplateBindingError{Token: s.text, Template: tpl}
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// Placeholders lists the distinct tokens of tpl in order of first use.
func Placeholders(tpl string) ([]string, error) {
	segs, err := parseTemplate(tpl)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range segs {
		if s.token && !seen[s.text] {
			seen[s.text] = true
			out = append(out, s.text)
		}
	}
	return out, nil
}
