package bibtemplar

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Person — одно имя из списка авторов/редакторов; обязательна только фамилия.
type Person struct {
	First  string `json:"first,omitempty" yaml:"first,omitempty"`
	Middle string `json:"middle,omitempty" yaml:"middle,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Last   string `json:"last" yaml:"last"`
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
}

func (Person) Kind() Kind { return KindPerson }

// String собирает имя в естественном порядке: "First Middle prefix Last, Suffix".
func (p Person) String() string {
	var parts []string
	for _, s := range []string{p.First, p.Middle, p.Prefix, p.Last} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	out := strings.Join(parts, " ")
	if p.Suffix != "" {
		out += ", " + p.Suffix
	}
	return out
}

// Field — доступ к части имени по ключу (для цепочек вида <authorlist.0.last>).
func (p Person) Field(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "first":
		return p.First, p.First != ""
	case "middle":
		return p.Middle, p.Middle != ""
	case "prefix":
		return p.Prefix, p.Prefix != ""
	case "last":
		return p.Last, p.Last != ""
	case "suffix":
		return p.Suffix, p.Suffix != ""
	}
	return "", false
}

// IsOthers — хвостовой маркер "and others" (фамилия others без имени).
func (p Person) IsOthers() bool {
	return p.First == "" && strings.EqualFold(strings.Trim(p.Last, "{}"), "others")
}

func personFromMap(m map[string]interface{}) Person {
	get := func(k string) string {
		if v, ok := m[k]; ok {
			return toString(v)
		}
		return ""
	}
	return Person{First: get("first"), Middle: get("middle"), Prefix: get("prefix"), Last: get("last"), Suffix: get("suffix")}
}

var (
	rxNameTokenSep = regexp.MustCompile(`\s+|~`)
	rxTypoAndComma = regexp.MustCompile(`\sand,\s`)
	rxTypoCommaAnd = regexp.MustCompile(`,\s*and\s`)
	rxInnerDot     = regexp.MustCompile(`\.[^-]`)
	rxComma        = regexp.MustCompile(`,`)
)

// ParseNames разбивает сырое поле имён на персоны по слову-разделителю (обычно "and"),
// игнорируя разделители внутри фигурных скобок. abbrev — таблица сокращений имён.
func ParseNames(field, sep string, abbrev map[string]string, w *Warner, key string) Names {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	if sep == "" {
		sep = "and"
	}
	if rxTypoAndComma.MatchString(field) {
		w.Warn(WarnNameTypo, `строка имён в записи %q содержит " and, " — вероятно, опечатка`, key)
	}
	if rxTypoCommaAnd.MatchString(field) {
		w.Warn(WarnNameTypo, `строка имён в записи %q содержит ", and" — вероятно, опечатка`, key)
	}
	for long, short := range abbrev {
		field = strings.ReplaceAll(field, long, short)
	}
	rxSep := regexp.MustCompile(`\s+` + regexp.QuoteMeta(sep) + `\s+`)
	seps := topLevelIndexes(field, rxSep.FindAllStringIndex(field, -1))
	var names Names
	for _, part := range splitAtMatches(field, seps) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		names = append(names, parsePerson(part, w, key))
	}
	return names
}

// parsePerson разбирает одно имя в одной из форм BibTeX:
// "First Middle von Last", "von Last, First Middle", "von Last, Jr, First Middle",
// а также явные формы с тремя и четырьмя запятыми.
func parsePerson(s string, w *Warner, key string) Person {
	s = strings.TrimSpace(s)
	commas := topLevelIndexes(s, rxComma.FindAllStringIndex(s, -1))
	parts := splitAtMatches(s, commas)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var p Person
	switch len(commas) {
	case 0:
		tokens := splitNameTokens(s)
		for _, t := range tokens {
			inner := strings.Trim(t, "{}")
			if len(inner) > 1 && rxInnerDot.MatchString(inner[:len(inner)-1]) && !strings.Contains(t, "{") {
				w.Warn(WarnNameDot, "токен имени %q в %q содержит точку внутри — вероятно, опечатка", t, s)
			}
		}
		switch n := len(tokens); {
		case n == 0:
			return Person{}
		case n == 1:
			p.Last = tokens[0]
		case n == 2:
			p.First, p.Last = tokens[0], tokens[1]
		default:
			p.First = tokens[0]
			p.Last = tokens[n-1]
			p.Middle = strings.Join(tokens[1:n-1], " ")
		}
	case 1:
		first := strings.Fields(parts[0])
		second := strings.Fields(parts[1])
		p.Last, p.Prefix = lastAndPrefix(first)
		if len(second) > 0 {
			p.First = second[0]
			p.Middle = strings.Join(second[1:], " ")
		}
	case 2:
		first := strings.Fields(parts[0])
		second := strings.Fields(parts[1])
		third := strings.Fields(parts[2])
		if len(second) != 1 {
			w.Warn(WarnMalformedName, "имя %q в записи %q задано некорректно: во второй части должно быть одно слово", s, key)
			return Person{Last: "???"}
		}
		p.Last, p.Prefix = lastAndPrefix(first)
		p.Suffix = second[0]
		if len(third) > 0 {
			p.First = third[0]
			p.Middle = strings.Join(third[1:], " ")
		}
	case 3:
		p = Person{First: parts[0], Middle: parts[1], Prefix: parts[2], Last: parts[3]}
	case 4:
		p = Person{First: parts[0], Middle: parts[1], Prefix: parts[2], Last: parts[3], Suffix: parts[4]}
	default:
		w.Warn(WarnTooManyCommas, "имя %q в записи %q содержит больше четырёх запятых", s, key)
		return Person{Last: "???"}
	}
	return middleToPrefix(p)
}

func lastAndPrefix(tokens []string) (last, prefix string) {
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], ""
	}
	return tokens[len(tokens)-1], strings.Join(tokens[:len(tokens)-1], " ")
}

// splitNameTokens делит имя по пробелам и неэкранированным тильдам на нулевом уровне скобок.
func splitNameTokens(s string) []string {
	seps := rxNameTokenSep.FindAllStringIndex(s, -1)
	kept := seps[:0:0]
	for _, m := range seps {
		if s[m[0]] == '~' && m[0] > 0 && s[m[0]-1] == '\\' {
			continue
		}
		kept = append(kept, m)
	}
	var out []string
	for _, t := range splitAtMatches(s, topLevelIndexes(s, kept)) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// middleToPrefix переносит в префикс токены среднего имени, начиная с первого строчного ("van", "de").
func middleToPrefix(p Person) Person {
	if p.Middle == "" {
		return p
	}
	tokens := strings.Fields(p.Middle)
	cut := -1
	for i, t := range tokens {
		if startsLower(t) {
			cut = i
			break
		}
	}
	if cut < 0 {
		return p
	}
	moved := strings.Join(tokens[cut:], " ")
	p.Prefix = strings.TrimSpace(moved + " " + p.Prefix)
	p.Middle = strings.Join(tokens[:cut], " ")
	return p
}

func startsLower(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsLower(r)
}

// parseNameAbbrev разбирает поле вида "Long Name > L., Other > O." в таблицу сокращений.
func parseNameAbbrev(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, ">", 2)
		if len(kv) != 2 {
			continue
		}
		if k := strings.TrimSpace(kv[0]); k != "" {
			out[k] = strings.TrimSpace(kv[1])
		}
	}
	return out
}
