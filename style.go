package bibtemplar

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Style — загруженный стиль: шаблоны типов записей, специальные шаблоны (переменные,
// определённые через другие переменные), опции и скриптовые переменные.
type Style struct {
	Templates map[string]*Template
	Special   map[string]*Template
	Options   *Config
	Variables map[string]string

	w *Warner
}

func NewStyle() *Style {
	return &Style{
		Templates: map[string]*Template{},
		Special:   map[string]*Template{},
		Options:   DefaultConfig(),
		Variables: map[string]string{},
	}
}

// AddTemplate компилирует шаблон типа записи. Шаблон с ошибкой разметки заменяется
// заглушкой MalformedTemplateText; остальные типы продолжают работать.
func (st *Style) AddTemplate(name, text string) error {
	return st.add(st.Templates, strings.ToLower(strings.TrimSpace(name)), text)
}

// AddSpecial компилирует специальный шаблон (например, au.n или citelabel).
func (st *Style) AddSpecial(name, text string) error {
	return st.add(st.Special, strings.TrimSpace(name), text)
}

func (st *Style) add(dst map[string]*Template, name, text string) error {
	if prev, ok := dst[name]; ok && prev.raw != text {
		st.w.Warn(WarnTemplateOverwrite, "шаблон %q переопределён: [%s] -> [%s]", name, prev.raw, text)
	}
	t, err := CompileTemplate(name, text)
	if err != nil {
		st.w.Warn(templateErrCode(err), "%v", err)
		dst[name] = malformedTemplate(name)
		return err
	}
	dst[name] = t
	return nil
}

// TemplateNames — отсортированные имена шаблонов типов записей.
func (st *Style) TemplateNames() []string {
	out := make([]string, 0, len(st.Templates))
	for k := range st.Templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// -----------------------------
// Формат стиля с секциями
// -----------------------------

var (
	rxDefinition = regexp.MustCompile(`\s=\s`)
	rxAliasWord  = regexp.MustCompile(`^[\w-]+$`)
)

type section int

const (
	secTemplates section = iota
	secSpecial
	secOptions
	secVariables
)

var sectionHeaders = map[string]section{
	"TEMPLATES:":         secTemplates,
	"SPECIAL-TEMPLATES:": secSpecial,
	"OPTIONS:":           secOptions,
	"VARIABLES:":         secVariables,
	"DEFINITIONS:":       secVariables,
}

type styleDef struct {
	sec   section
	name  string
	value string
	line  int
}

// ParseStyle читает стиль в секционном формате:
//
//	TEMPLATES:
//	article = <au>, <title>, <journal> [<volume>|] (<year>).
//	inbook = incollection
//	SPECIAL-TEMPLATES:
//	au = <authorlist.0>, ...{ and } and <authorlist.N>
//	OPTIONS:
//	undefstr = ???
//	VARIABLES:
//	shortkey = upper(entrykey)
//
// Строки, начинающиеся с #, — комментарии; строка, оканчивающаяся на "...", продолжается следующей.
// Структурные ошибки шаблонов не прерывают загрузку: они уходят в предупреждения.
func ParseStyle(r io.Reader, w *Warner) (*Style, error) {
	st := NewStyle()
	st.w = w

	var defs []styleDef
	sec := secTemplates
	var cur *styleDef
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if i := commentStart(line); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if s, ok := sectionHeaders[line]; ok {
			sec = s
			cur = nil
			continue
		}
		if line == "" {
			continue
		}
		if strings.Contains(line, "EXECUTE {") || strings.Contains(line, "FUNCTION {") {
			return nil, fmt.Errorf("строка %d: похоже на стиль BibTeX (.bst), а не на этот формат", lineNo)
		}

		cont := strings.HasSuffix(line, "...")
		if cont {
			line = strings.TrimSpace(strings.TrimSuffix(line, "..."))
		}
		if cur != nil {
			cur.value += line
			if !cont {
				defs = append(defs, *cur)
				cur = nil
			}
			continue
		}
		loc := rxDefinition.FindStringIndex(line)
		if loc == nil {
			w.Warn(WarnBadStyleLine, "строка %d стиля не содержит определения вида name = value, пропущена", lineNo)
			continue
		}
		d := styleDef{sec: sec, name: strings.TrimSpace(line[:loc[0]]), value: strings.TrimSpace(line[loc[1]:]), line: lineNo}
		if cont {
			cur = &d
			continue
		}
		defs = append(defs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("чтение стиля: %w", err)
	}
	if cur != nil {
		defs = append(defs, *cur)
	}

	st.apply(defs)
	return st, nil
}

// commentStart ищет # вне экранирования (\#).
func commentStart(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] != escapeMarker) {
			return i
		}
	}
	return -1
}

// apply раскладывает определения по секциям. Шаблон из одного слова без <...> —
// псевдоним другого типа записи (inbook = incollection).
func (st *Style) apply(defs []styleDef) {
	templates := map[string]string{}
	var order []string
	options := map[string]string{}
	for _, d := range defs {
		switch d.sec {
		case secTemplates:
			name := strings.ToLower(d.name)
			if prev, ok := templates[name]; ok && prev != d.value {
				st.w.Warn(WarnTemplateOverwrite, "шаблон %q переопределён: [%s] -> [%s]", name, prev, d.value)
			} else if !ok {
				order = append(order, name)
			}
			templates[name] = d.value
		case secSpecial:
			_ = st.AddSpecial(d.name, d.value)
		case secOptions:
			name := strings.ToLower(d.name)
			if prev, ok := options[name]; ok && prev != d.value {
				st.w.Warn(WarnTemplateOverwrite, "опция %q переопределена: [%s] -> [%s]", name, prev, d.value)
			}
			options[name] = d.value
			if err := st.Options.Set(name, d.value); err != nil {
				st.w.Warn(WarnUnknownOption, "строка %d: %v", d.line, err)
			}
		case secVariables:
			st.Variables[d.name] = d.value
		}
	}

	for _, name := range order {
		text := templates[name]
		if rxAliasWord.MatchString(text) {
			target, ok := templates[strings.ToLower(text)]
			if !ok {
				st.w.Warn(WarnUndefinedTemplate, "шаблон %q ссылается на неизвестный тип %q", name, text)
			} else {
				text = target
			}
		}
		_ = st.AddTemplate(name, text)
	}
}

// -----------------------------
// YAML
// -----------------------------

// yamlStyle — тот же стиль в YAML:
//
//	templates:
//	  article: "<au>, <title>"
//	special_templates:
//	  au: "<authorlist.0>, ...{ and } and <authorlist.N>"
//	options:
//	  undefstr: "???"
//	  maxauthors: 3
//	variables:
//	  shortkey: upper(entrykey)
type yamlStyle struct {
	Templates        map[string]string `yaml:"templates"`
	SpecialTemplates map[string]string `yaml:"special_templates"`
	Options          yaml.Node         `yaml:"options"`
	Variables        map[string]string `yaml:"variables"`
}

// ParseStyleYAML читает стиль из YAML. Опции накладываются на значения по умолчанию.
func ParseStyleYAML(r io.Reader, w *Warner) (*Style, error) {
	var ys yamlStyle
	if err := yaml.NewDecoder(r).Decode(&ys); err != nil && err != io.EOF {
		return nil, fmt.Errorf("разбор YAML-стиля: %w", err)
	}
	st := NewStyle()
	st.w = w

	if !ys.Options.IsZero() {
		var raw map[string]interface{}
		if err := ys.Options.Decode(&raw); err != nil {
			return nil, fmt.Errorf("секция options: %w", err)
		}
		known := map[string]bool{}
		for _, n := range optionNames() {
			known[n] = true
		}
		known["disable"] = true
		for k := range raw {
			if !known[strings.ToLower(k)] {
				msg := fmt.Sprintf("неизвестная опция %q", k)
				if hint := closestMatch(k, optionNames()); hint != "" {
					msg += fmt.Sprintf(" (возможно, %q)", hint)
				}
				w.Warn(WarnUnknownOption, "%s", msg)
			}
		}
		if err := ys.Options.Decode(st.Options); err != nil {
			return nil, fmt.Errorf("секция options: %w", err)
		}
	}

	defs := make([]styleDef, 0, len(ys.Templates)+len(ys.SpecialTemplates)+len(ys.Variables))
	for _, name := range sortedKeys(ys.SpecialTemplates) {
		defs = append(defs, styleDef{sec: secSpecial, name: name, value: ys.SpecialTemplates[name]})
	}
	for _, name := range sortedKeys(ys.Templates) {
		defs = append(defs, styleDef{sec: secTemplates, name: name, value: ys.Templates[name]})
	}
	for _, name := range sortedKeys(ys.Variables) {
		defs = append(defs, styleDef{sec: secVariables, name: name, value: ys.Variables[name]})
	}
	st.apply(defs)
	return st, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
