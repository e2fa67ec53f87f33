package bibtemplar

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// digraphs — двухбуквенные инициалы французской традиции: Philippe -> Ph., Christian -> Ch.
var digraphs = map[string]bool{"Ch": true, "Gn": true, "Ll": true, "Ph": true, "Ss": true, "Th": true}

type initialOptions struct {
	period bool
	french bool
	terse  bool
}

func initialsFrom(c *Config) initialOptions {
	return initialOptions{period: c.PeriodAfterInitial && !c.TerseInits, french: c.FrenchInitials, terse: c.TerseInits}
}

// initialize сокращает имя до инициалов: "Jean-Paul Marie" -> "J.-P. M.".
// Токены в фигурных скобках не трогаются, однобуквенные токены остаются как есть.
func initialize(name string, o initialOptions) string {
	if name == "" {
		return ""
	}
	period := ""
	if o.period {
		period = "."
	}
	tokens := strings.Fields(name)
	for j, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "{") && strings.HasSuffix(tok, "}"):
			continue
		case strings.Contains(tok, "-"):
			pieces := strings.Split(tok, "-")
			for k, p := range pieces {
				pieces[k] = initialize(p, o)
			}
			tokens[j] = strings.Join(pieces, "-")
		case strings.HasSuffix(tok, ".") && utf8.RuneCountInString(tok) == 2:
			r, _ := utf8.DecodeRuneInString(tok)
			tokens[j] = string(r) + period
		case utf8.RuneCountInString(tok) > 1:
			rs := []rune(tok)
			if o.french && digraphs[string(rs[:2])] {
				tokens[j] = string(rs[:2]) + period
			} else {
				tokens[j] = string(rs[0]) + period
			}
		}
	}
	if o.terse {
		joined := strings.Join(tokens, "")
		if period != "" {
			joined = strings.ReplaceAll(joined, period, "")
		}
		return joined
	}
	return strings.Join(tokens, " ")
}

// formatName собирает имя персоны в строку согласно настройкам.
func formatName(p Person, c *Config) string {
	first, middle := p.First, p.Middle
	if c.UseFirstnameInitials {
		o := initialsFrom(c)
		first = initialize(first, o)
		middle = initialize(middle, o)
	}

	front := first
	if middle != "" {
		switch {
		case c.TerseInits:
			front = strings.ReplaceAll(first+middle, " ", "")
		case c.UseNameTies:
			front = first + "~" + strings.ReplaceAll(middle, " ", "~")
		default:
			front = strings.TrimSpace(first + " " + middle)
		}
	}

	prefix, suffix := p.Prefix, p.Suffix
	if suffix != "" {
		suffix = ", " + suffix
	}
	if c.NamelistFormat == "last_name_first" {
		if prefix != "" {
			prefix += " "
		}
		if front != "" {
			front = ", " + front
		}
		return prefix + p.Last + front + suffix
	}
	if prefix != "" {
		prefix = " " + prefix
	}
	if front+prefix != "" {
		prefix += " "
	}
	return strings.TrimLeft(front+prefix, " ") + p.Last + suffix
}

// FormatNameList склеивает список персон: "A", "A and B", "A, B, and C" или
// "A, B, \textit{et al.}" при превышении максимума. Для редакторов добавляется ", ed."/", eds".
func FormatNameList(names Names, role string, c *Config) string {
	n := len(names)
	truncated := false
	if n > 0 && names[n-1].IsOthers() {
		n--
		truncated = true
	}
	if n == 0 {
		return ""
	}
	maxNames, minNames := c.NameLimits(role)
	if n > maxNames {
		truncated = true
	}
	formatted := make([]string, n)
	for i := 0; i < n; i++ {
		formatted[i] = formatName(names[i], c)
	}

	var out string
	switch {
	case truncated:
		keep := minNames
		if keep > n {
			keep = n
		}
		if keep < 1 {
			keep = 1
		}
		out = strings.Join(formatted[:keep], ", ") + c.EtalMessage
	case n == 1:
		out = formatted[0]
	case n == 2:
		out = formatted[0] + " and " + formatted[1]
	default:
		out = strings.Join(formatted[:n-1], ", ") + ", and " + formatted[n-1]
	}

	if strings.Contains(role, "editor") {
		if n == 1 && !truncated {
			out += c.EditorTagSingular
		} else {
			out += c.EditorTagPlural
		}
	}
	return out
}

var rxLatexCommand = regexp.MustCompile(`\\\w+`)

// sentenceCase переводит строку в нижний регистр, кроме первой буквы и всего, что
// находится внутри фигурных скобок или является именем LaTeX-команды.
func sentenceCase(s string, tag language.Tag) string {
	if s == "" {
		return s
	}
	lower := cases.Lower(tag)
	if !strings.Contains(s, "{") && !strings.Contains(s, `\`) {
		return capitalizeFirst(lower.String(s), tag)
	}
	lv, err := DelimLevels(s, "{", "}")
	if err != nil {
		return s
	}
	protected := make([]bool, len(s))
	for i := range s {
		protected[i] = lv[i] > 0
	}
	for _, m := range rxLatexCommand.FindAllStringIndex(s, -1) {
		for k := m[0]; k < m[1]; k++ {
			protected[k] = true
		}
	}
	var b strings.Builder
	first := true
	for i, r := range s {
		switch {
		case first:
			b.WriteString(cases.Upper(tag).String(string(r)))
		case !protected[i]:
			b.WriteString(lower.String(string(r)))
		default:
			b.WriteRune(r)
		}
		first = false
	}
	return b.String()
}

func capitalizeFirst(s string, tag language.Tag) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return cases.Upper(tag).String(string(r)) + s[size:]
}

var rxMath = regexp.MustCompile(`\$[^$]*\$`)

// purify убирает LaTeX-разметку (команды и фигурные скобки) для меток и ключей сортировки.
// Фрагменты формул $...$ сохраняются как есть.
func purify(s string) string {
	if !strings.Contains(s, `\`) {
		return strings.NewReplacer("{", "", "}", "").Replace(s)
	}
	if loc := rxMath.FindAllStringIndex(s, -1); len(loc) > 0 {
		var b strings.Builder
		last := 0
		for _, m := range loc {
			b.WriteString(purify(s[last:m[0]]))
			b.WriteString(s[m[0]:m[1]])
			last = m[1]
		}
		b.WriteString(purify(s[last:]))
		return b.String()
	}
	p := rxLatexCommand.ReplaceAllString(s, "")
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		ch := p[i]
		if ch == '{' || ch == '}' {
			if i > 0 && p[i-1] == '\\' {
				continue
			}
			continue
		}
		if ch == '\\' && i+1 < len(p) && (p[i+1] == '{' || p[i+1] == '}') {
			b.WriteByte(p[i+1])
			i++
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// firstLetter — первая буква строки (для меток alpha).
func firstLetter(s string) string {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(r)
		}
	}
	return ""
}
