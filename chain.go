package bibtemplar

import (
	"fmt"
	"strings"
)

// opCall — один шаг цепочки: индекс/ключ (bare) или вызов оператора name(args).
type opCall struct {
	name string
	args []string
	call bool
	raw  string
}

// splitChain режет текст переменной по точкам верхнего уровня (вне скобок и кавычек):
// "authorlist.0.first.replace('.', '')" -> [authorlist 0 first replace('.', '')].
func splitChain(s string) []string {
	var parts []string
	var b strings.Builder
	quote := byte(0)
	depth := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			b.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			if depth > 0 {
				depth--
			}
		case ch == '.' && depth == 0:
			parts = append(parts, b.String())
			b.Reset()
			continue
		}
		b.WriteByte(ch)
	}
	return append(parts, b.String())
}

// parseVariable разбирает текст между < и > на базовое имя и цепочку операторов.
func parseVariable(s string) (base string, chain []opCall, err error) {
	parts := splitChain(strings.TrimSpace(s))
	base = parts[0]
	if !validName(base) {
		return "", nil, fmt.Errorf("недопустимое имя переменной %q", base)
	}
	for _, p := range parts[1:] {
		c, err := parseOpCall(p)
		if err != nil {
			return "", nil, err
		}
		chain = append(chain, c)
	}
	return base, chain, nil
}

func parseOpCall(seg string) (opCall, error) {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return opCall{}, fmt.Errorf("пустой шаг цепочки")
	}
	open := strings.IndexByte(seg, '(')
	if open < 0 {
		if strings.ContainsAny(seg, ")'\"") {
			return opCall{}, fmt.Errorf("недопустимые символы в %q", seg)
		}
		return opCall{name: seg, raw: seg}, nil
	}
	if !strings.HasSuffix(seg, ")") {
		return opCall{}, fmt.Errorf("незакрытый вызов %q", seg)
	}
	name := strings.TrimSpace(seg[:open])
	if !validName(name) {
		return opCall{}, fmt.Errorf("недопустимое имя оператора %q", name)
	}
	var args []string
	for _, a := range splitArgs(seg[open+1 : len(seg)-1]) {
		args = append(args, unquote(a))
	}
	return opCall{name: strings.ToLower(name), args: args, call: true, raw: seg}, nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// splitArgs делит список аргументов по запятым верхнего уровня, учитывая кавычки и вложенные скобки.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var args []string
	var b strings.Builder
	quote := byte(0)
	depth := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote == 0 {
			if ch == '\'' || ch == '"' {
				quote = ch
				b.WriteByte(ch)
				continue
			}
			if ch == '(' {
				depth++
				b.WriteByte(ch)
				continue
			}
			if ch == ')' {
				if depth > 0 {
					depth--
				}
				b.WriteByte(ch)
				continue
			}
			// по запятым только на верхнем уровне
			if ch == ',' && depth == 0 {
				args = append(args, strings.TrimSpace(b.String()))
				b.Reset()
				continue
			}
			b.WriteByte(ch)
			continue
		}
		b.WriteByte(ch)
		if ch == quote {
			quote = 0
		}
	}
	return append(args, strings.TrimSpace(b.String()))
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func toString(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case float64:
		if vv == float64(int64(vv)) {
			return fmt.Sprintf("%d", int64(vv))
		}
		return fmt.Sprintf("%v", vv)
	case bool:
		if vv {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return vv.String()
	default:
		return fmt.Sprintf("%v", vv)
	}
}
