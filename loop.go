package bibtemplar

import (
	"regexp"
	"strconv"
	"strings"
)

// Неявный цикл: <name.START.suffix>GLUE...FINAL<name.END.suffix>.
// FINAL может начинаться с {TWO} — разделитель для случая ровно двух элементов:
// "<au.0>, ...{ and }, and <au.N>" даёт "A and B" и "A, B, and C".
var (
	rxLoop = regexp.MustCompile(`<([A-Za-z_][\w-]*)\.([^.<>\[\]|]+)((?:\.[^<>\[\]|]*)?)>([^<>\[\]|]*?)\.\.\.([^<>\[\]|]*?)<([A-Za-z_][\w-]*)\.([^.<>\[\]|]+)((?:\.[^<>\[\]|]*)?)>`)
	// ссылка на элемент списка с неявным индексом внутри специального шаблона: <authorlist.n.last>
	rxImplicitRef = regexp.MustCompile(`<([A-Za-z_][\w-]*)\.n([.>])`)
)

// loopSpec — разобранное вхождение цикла.
type loopSpec struct {
	start, end   int // границы вхождения в тексте шаблона
	name, suffix string
	from, to     string
	glue, final  string
}

func findLoops(text string) []loopSpec {
	var out []loopSpec
	for _, m := range rxLoop.FindAllStringSubmatchIndex(text, -1) {
		sub := func(k int) string { return text[m[2*k]:m[2*k+1]] }
		// имена и суффиксы начальной и конечной переменной обязаны совпадать
		if sub(1) != sub(6) || sub(3) != sub(8) {
			continue
		}
		out = append(out, loopSpec{
			start: m[0], end: m[1],
			name: sub(1), suffix: sub(3),
			from: sub(2), to: sub(7),
			glue: sub(4), final: sub(5),
		})
	}
	return out
}

// splitFinal отделяет необязательный вариант {TWO} от финального разделителя.
func splitFinal(final string) (two, rest string, hasTwo bool) {
	if !strings.HasPrefix(final, "{") {
		return "", final, false
	}
	lv, err := DelimLevels(final, "{", "}")
	if err != nil {
		return "", final, false
	}
	for i := 1; i < len(final); i++ {
		if lv[i] == 0 {
			return final[1:i], final[i+1:], true
		}
	}
	return "", final, false
}

// expandLoops возвращает текст шаблона, в котором каждый цикл заменён на явный перечень элементов.
// Исходный шаблон не изменяется.
func (s *Session) expandLoops(c *evalCtx, t *Template) string {
	loops := findLoops(t.raw)
	if len(loops) == 0 {
		return t.raw
	}
	levels, err := DelimLevels(t.raw, "[", "]")
	if err != nil {
		levels = nil
	}
	var b strings.Builder
	last := 0
	for _, lp := range loops {
		b.WriteString(t.raw[last:lp.start])
		out := s.expandLoop(c, t.Name, lp)
		// пустой список внутри группы: блок должен остаться неопределённым, а не стать пустым "|]"
		if out == "" && levels != nil && levels[lp.start] > 0 {
			out = "<" + lp.name + "." + loopStart(lp.from) + lp.suffix + ">"
		}
		b.WriteString(out)
		last = lp.end
	}
	b.WriteString(t.raw[last:])
	return b.String()
}

func (s *Session) expandLoop(c *evalCtx, tplName string, lp loopSpec) string {
	listName, names := s.loopTarget(c, lp.name)
	n := len(names)
	truncated := false
	if n > 0 && names[n-1].IsOthers() {
		n--
		truncated = true
	}
	if n == 0 {
		return ""
	}
	maxNames, minNames := c.cfg().NameLimits(listName)
	if n > maxNames {
		truncated = true
	}

	from, err := strconv.Atoi(lp.from)
	if err != nil || from < 0 {
		c.warn(WarnMalformedLoop, "шаблон %q: начальный индекс цикла %q не число, используется 0", tplName, lp.from)
		from = 0
	}
	to := n - 1
	if lp.to != "N" {
		k, err := strconv.Atoi(lp.to)
		switch {
		case err != nil:
			c.warn(WarnMalformedLoop, "шаблон %q: конечный индекс цикла %q не число и не N, используется N", tplName, lp.to)
		case k < to:
			to = k
		}
	}
	if from > to {
		return ""
	}

	elem := func(i int) string { return "<" + lp.name + "." + strconv.Itoa(i) + lp.suffix + ">" }
	two, final, hasTwo := splitFinal(lp.final)

	if truncated {
		keep := minNames
		if keep < 1 {
			keep = 1
		}
		if from+keep-1 < to {
			to = from + keep - 1
		}
		parts := make([]string, 0, to-from+1)
		for i := from; i <= to; i++ {
			parts = append(parts, elem(i))
		}
		return strings.Join(parts, lp.glue) + escapeTemplateText(c.cfg().EtalMessage)
	}

	count := to - from + 1
	switch {
	case count == 1:
		return elem(from)
	case count == 2 && hasTwo:
		return elem(from) + two + elem(to)
	}
	parts := make([]string, 0, count-1)
	for i := from; i < to; i++ {
		parts = append(parts, elem(i))
	}
	return strings.Join(parts, lp.glue) + final + elem(to)
}

// loopStart — начальный индекс цикла для подстановки; некорректный заменяется на 0.
func loopStart(from string) string {
	if n, err := strconv.Atoi(from); err == nil && n >= 0 {
		return from
	}
	return "0"
}

// loopTarget находит список, по которому идёт цикл: сама переменная цикла, если это список имён,
// либо первый список с неявным индексом <list.n...> из специального шаблона name.n.
func (s *Session) loopTarget(c *evalCtx, name string) (string, Names) {
	if tpl, ok := s.eng.style.Special[name+".n"]; ok {
		m := rxImplicitRef.FindStringSubmatch(tpl.raw)
		if m == nil {
			return name, nil
		}
		name = m[1]
	}
	v, ok := s.resolve(c, name, nil)
	if !ok {
		return name, nil
	}
	names, _ := v.(Names)
	return name, names
}

// instantiateImplicit подставляет конкретный индекс вместо n во всех ссылках <list.n...>.
func instantiateImplicit(text string, idx int) string {
	return rxImplicitRef.ReplaceAllString(text, "<${1}."+strconv.Itoa(idx)+"${2}")
}

// escapeTemplateText защищает служебные символы текста, вставляемого в шаблон.
func escapeTemplateText(s string) string {
	return strings.NewReplacer(
		"[", `{\makeopenbracket}`,
		"]", `{\makeclosebracket}`,
		"|", `{\makeverticalbar}`,
		"<", `{\makelessthan}`,
		">", `{\makegreaterthan}`,
	).Replace(s)
}
