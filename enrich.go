package bibtemplar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// computedField — производное поле, вычисляемое при первом обращении.
// session == true: значение зависит от прогона (номер цитаты, метка, ключ сортировки)
// и кэшируется в сессии, а не в самой записи.
type computedField struct {
	session bool
	fn      func(c *evalCtx) (Value, bool)
}

var computedFields map[string]computedField

func init() {
	computedFields = map[string]computedField{
		"authorlist":      {fn: nameList("author")},
		"editorlist":      {fn: nameList("editor")},
		"authorliststr":   {fn: nameListStr("authorlist", "author")},
		"editorliststr":   {fn: nameListStr("editorlist", "editor")},
		"edition_ordinal": {fn: editionOrdinal},
		"startpage":       {fn: pageBound(true)},
		"endpage":         {fn: pageBound(false)},
		"monthname":       {fn: monthName},
		"citenum":         {session: true, fn: citeNum},
		"citelabel":       {session: true, fn: citeLabel},
		"sortkey":         {session: true, fn: sortKey},
	}
}

// computed возвращает производное поле с мемоизацией.
func (s *Session) computed(c *evalCtx, name string) (Value, bool, bool) {
	cf, ok := computedFields[name]
	if !ok {
		return nil, false, false
	}
	compute := func() (Value, bool) { return cf.fn(c) }
	if cf.session {
		v, ok := s.memo.get(c.entry.Key()+"\x00"+name, compute)
		return v, ok, true
	}
	v, ok := c.entry.memo(name, compute)
	return v, ok, true
}

// nameList строит список персон из сырого поля author/editor с учётом таблицы nameabbrev.
func nameList(field string) func(c *evalCtx) (Value, bool) {
	return func(c *evalCtx) (Value, bool) {
		raw, ok := c.entry.Get(field)
		if !ok {
			return nil, false
		}
		switch v := raw.(type) {
		case Names:
			return v, len(v) > 0
		case Person:
			return Names{v}, true
		case Str:
			var abbrev map[string]string
			if ab, ok := c.entry.Get("nameabbrev"); ok {
				abbrev = parseNameAbbrev(ab.String())
			}
			names := ParseNames(string(v), c.cfg().NameSeparator, abbrev, c.s.eng.warner, c.entry.Key())
			return names, len(names) > 0
		}
		c.warn(WarnTypeMismatch, "запись %q: поле %s типа %s нельзя разобрать как список имён", c.entry.Key(), field, raw.Kind())
		return nil, false
	}
}

func nameListStr(list, role string) func(c *evalCtx) (Value, bool) {
	return func(c *evalCtx) (Value, bool) {
		v, ok := c.s.resolve(c, list, nil)
		if !ok {
			return nil, false
		}
		names, isList := v.(Names)
		if !isList {
			return nil, false
		}
		out := FormatNameList(names, role, c.cfg())
		return Str(out), out != ""
	}
}

func editionOrdinal(c *evalCtx) (Value, bool) {
	ed, ok := c.entry.Get("edition")
	if !ok {
		return nil, false
	}
	out, valid := ordinal(ed.String())
	if !valid {
		c.warn(WarnBadEdition, "номер издания %q в записи %q некорректен", ed.String(), c.entry.Key())
		return nil, false
	}
	return Str(out), true
}

var rxPageSep = regexp.MustCompile(`[-,\x{2013}]+`)

// parsePageRange делит поле pages на первую и последнюю страницы.
// Если страницы совпадают, конечной страницы нет.
func parsePageRange(pages string) (start, end string) {
	pages = strings.TrimSpace(pages)
	if pages == "" {
		return "", ""
	}
	var parts []string
	for _, p := range rxPageSep.Split(pages, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", ""
	}
	start, end = parts[0], parts[len(parts)-1]
	if end == start {
		end = ""
	}
	return start, end
}

func pageBound(first bool) func(c *evalCtx) (Value, bool) {
	return func(c *evalCtx) (Value, bool) {
		pages, ok := c.entry.Get("pages")
		if !ok {
			return nil, false
		}
		start, end := parsePageRange(pages.String())
		if si, err := strconv.Atoi(start); err == nil {
			if ei, err := strconv.Atoi(end); err == nil && ei < si {
				c.warn(WarnBadPageRange, "поле pages записи %q задаёт диапазон с конечной страницей меньше начальной", c.entry.Key())
			}
		}
		if first {
			return Str(start), start != ""
		}
		return Str(end), end != ""
	}
}

func monthName(c *evalCtx) (Value, bool) {
	m, ok := c.entry.Get("month")
	if !ok {
		return nil, false
	}
	i := monthIndex(m.String(), c.cfg())
	switch {
	case i < 0:
		return m, !isBlank(m)
	case c.cfg().MonthAbbrev:
		return Str(c.cfg().MonthAbbrevs[i]), true
	}
	return Str(c.cfg().MonthNames[i]), true
}

func citeNum(c *evalCtx) (Value, bool) {
	n, ok := c.s.citeNumber(c.entry.Key())
	if !ok {
		return nil, false
	}
	return Str(strconv.Itoa(n)), true
}

// citeLabel строит метку элемента списка по стилю citation_label.
func citeLabel(c *evalCtx) (Value, bool) {
	cfg := c.cfg()
	style := cfg.CitationLabel
	key := c.entry.Key()

	name := func() string {
		if names := c.s.firstNames(c); len(names) > 0 {
			return purify(names[0].Last)
		}
		if v, ok := c.entry.Get("name"); ok {
			return purify(v.String())
		}
		return cfg.UndefStr
	}
	year := func() string {
		if v, ok := c.entry.Get("year"); ok {
			if _, err := strconv.Atoi(v.String()); err == nil {
				return v.String()
			}
		}
		return cfg.UndefStr
	}

	switch style {
	case "citekey", "":
		return Str(key), true
	case "numeric", "citenum":
		return citeNum(c)
	case "name":
		return Str(name()), true
	case "name-year":
		return Str(name() + "-" + year()), true
	case "name, year":
		return Str(name() + ", " + year()), true
	case "name (year)":
		return Str(name() + " (" + year() + ")"), true
	case "alpha":
		return Str(alphaLabel(c)), true
	}
	c.warn(WarnBadLabelStyle, "стиль меток %q не поддерживается", style)
	return Str("Unknown-" + cfg.UndefStr), true
}

// alphaLabel: до трёх букв фамилий и две последние цифры года ("Smi99", "SJ01", "SJL05").
func alphaLabel(c *evalCtx) string {
	undef := []rune(c.cfg().UndefStr)
	if len(undef) > 2 {
		undef = undef[:2]
	}
	year := string(undef)
	if v, ok := c.entry.Get("year"); ok {
		if _, err := strconv.Atoi(v.String()); err == nil && len(v.String()) >= 2 {
			year = v.String()[len(v.String())-2:]
		}
	}
	return alphaName(c) + year
}

func alphaName(c *evalCtx) string {
	names := c.s.firstNames(c)
	switch {
	case len(names) == 1:
		label := []rune(purify(names[0].Last))
		if len(label) > 3 {
			label = label[:3]
		}
		return string(label)
	case len(names) > 1:
		var label string
		for i := 0; i < len(names) && i < 3; i++ {
			label += firstLetter(purify(names[i].Last))
		}
		return label
	}
	return ""
}

// firstNames — список авторов, а при его отсутствии — редакторов.
func (s *Session) firstNames(c *evalCtx) Names {
	for _, list := range []string{"authorlist", "editorlist"} {
		if v, ok := s.resolve(c, list, nil); ok {
			if names, isList := v.(Names); isList && len(names) > 0 {
				if names[len(names)-1].IsOthers() {
					names = names[:len(names)-1]
				}
				return names
			}
		}
	}
	return nil
}

// sortKey строит ключ сортировки по citation_sort и делает его уникальным в пределах сессии.
// Явное поле sortkey записи сюда не доходит: поля записи имеют приоритет.
func sortKey(c *evalCtx) (Value, bool) {
	cfg := c.cfg()
	key := c.entry.Key()
	order := cfg.CitationSort

	var sk string
	switch order {
	case "citekey":
		return Str(key), true
	case "citenum", "citenumber":
		n, ok := c.s.citeNumber(key)
		if !ok {
			return nil, false
		}
		width := len(strconv.Itoa(c.s.citeCount()))
		sk = zfill(strconv.Itoa(n), width)
	default:
		get := func(name string) string {
			if v, ok := c.entry.Get(name); ok {
				return v.String()
			}
			return ""
		}
		name := sortName(c)
		year := "9999"
		for _, f := range []string{"sortyear", "year"} {
			if y := get(f); y != "" {
				if n, err := strconv.Atoi(y); err == nil {
					y = fmt.Sprintf("%04d", n)
				}
				year = y
				break
			}
		}
		presort := get("presort")
		title := get("sorttitle")
		if title == "" {
			title = get("title")
		}
		volume := get("volume")
		if volume == "" {
			volume = "0"
		}
		switch order {
		case "nyt", "plain":
			sk = presort + name + year + title
		case "nty":
			sk = presort + name + title + year
		case "nyvt":
			sk = presort + name + year + volume + title
		case "ynt", "ydnt":
			sk = presort + year + name + title
		case "tny":
			sk = presort + title + name + year
		case "alpha":
			yy := year
			if len(yy) > 2 {
				yy = yy[len(yy)-2:]
			}
			sk = presort + alphaName(c) + yy
		case "anyt":
			sk = presort + alphaLabel(c) + name + year + title
		case "anyvt":
			sk = presort + alphaLabel(c) + name + year + volume + title
		default:
			c.warn(WarnUnknownOption, "порядок сортировки %q не поддерживается, используется citekey", order)
			return Str(key), true
		}
		sk = purify(sk)
		if !cfg.SortCase {
			sk = strings.ToLower(sk)
		}
	}
	return Str(c.s.uniqueSortKey(key, sk)), true
}

// sortName — имя для ключа сортировки: sortname, первый автор или редактор, организация.
func sortName(c *evalCtx) string {
	var names Names
	if v, ok := c.entry.Get("sortname"); ok {
		var abbrev map[string]string
		if ab, ok := c.entry.Get("nameabbrev"); ok {
			abbrev = parseNameAbbrev(ab.String())
		}
		names = ParseNames(v.String(), c.cfg().NameSeparator, abbrev, c.s.eng.warner, c.entry.Key())
	} else {
		names = c.s.firstNames(c)
	}
	if len(names) == 0 {
		for _, f := range []string{"organization", "institution"} {
			if v, ok := c.entry.Get(f); ok {
				return v.String()
			}
		}
		return ""
	}
	p := names[0]
	name := p.Last
	if c.cfg().SortWithPrefix && p.Prefix != "" {
		name = p.Prefix + name
	}
	name += p.First + p.Middle
	return strings.ReplaceAll(name, ".", "")
}
