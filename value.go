package bibtemplar

import (
	"sort"
	"strings"
)

// Kind — тег варианта значения поля.
type Kind int

const (
	KindString Kind = iota
	KindPerson
	KindNames
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindPerson:
		return "person"
	case KindNames:
		return "names"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value — значение поля записи: строка, персона, список персон или вложенный словарь.
type Value interface {
	Kind() Kind
	String() string
}

// Str — обычное строковое поле.
type Str string

func (Str) Kind() Kind       { return KindString }
func (s Str) String() string { return string(s) }

// Names — упорядоченный список персон (author, editor).
type Names []Person

func (Names) Kind() Kind { return KindNames }

func (n Names) String() string {
	parts := make([]string, len(n))
	for i, p := range n {
		parts[i] = p.String()
	}
	return strings.Join(parts, " and ")
}

// Map — вложенный словарь (структурированные подполя).
type Map map[string]Value

func (Map) Kind() Kind { return KindMap }

func (m Map) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k].String()
	}
	return strings.Join(parts, ", ")
}

// isBlank — пустое значение для целей проверки определённости.
func isBlank(v Value) bool {
	if v == nil {
		return true
	}
	switch vv := v.(type) {
	case Str:
		return vv == ""
	case Names:
		return len(vv) == 0
	case Map:
		return len(vv) == 0
	case Person:
		return vv.Last == ""
	}
	return false
}

// toValue приводит значения из JSON/скриптов к вариантам Value.
func toValue(v interface{}) Value {
	switch vv := v.(type) {
	case nil:
		return nil
	case Value:
		return vv
	case string:
		return Str(vv)
	case []interface{}:
		names := make(Names, 0, len(vv))
		for _, it := range vv {
			switch p := it.(type) {
			case string:
				names = append(names, parsePerson(p, nil, ""))
			case map[string]interface{}:
				names = append(names, personFromMap(p))
			}
		}
		return names
	case map[string]interface{}:
		m := make(Map, len(vv))
		for k, x := range vv {
			if xv := toValue(x); xv != nil {
				m[k] = xv
			}
		}
		return m
	default:
		return Str(toString(vv))
	}
}
