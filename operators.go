package bibtemplar

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// operator — чистое преобразование значения; состояние (uniquify) берётся из контекста подстановки.
type operator func(c *evalCtx, v Value, args []string) (Value, error)

var operators map[string]operator

// реестр заполняется в init: if_singular косвенно обращается к реестру через lookup
func init() {
	operators = map[string]operator{
		"lower":         opLower,
		"upper":         opUpper,
		"sentence":      opSentence,
		"title":         opTitle,
		"initial":       opInitial(false),
		"frenchinitial": opInitial(true),
		"compress":      opCompress,
		"tie":           opTie,
		"ordinal":       opOrdinal,
		"monthname":     opMonth(false),
		"monthabbrev":   opMonth(true),
		"zfill":         opZfill,
		"replace":       opReplace,
		"if_singular":   opIfSingular,
		"if_equal":      opIfEqual,
		"names":         opNames,
		"namelist":      opNamelist,
		"uniquify":      opUniquify,
		"len":           opLen,
		"purify":        opPurify,
	}
}

func operatorNames() []string {
	out := make([]string, 0, len(operators))
	for k := range operators {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// applyChain последовательно применяет шаги цепочки. Любая ошибка шага превращается
// в предупреждение с кодом и неопределённый результат; пустое значение тоже неопределено.
func applyChain(c *evalCtx, v Value, chain []opCall) (Value, bool) {
	for _, op := range chain {
		if isBlank(v) {
			return nil, false
		}
		next, err := applyStep(c, v, op)
		if err != nil {
			c.warnOp(op, err)
			return nil, false
		}
		v = next
	}
	if isBlank(v) {
		return nil, false
	}
	return v, true
}

func (c *evalCtx) warnOp(op opCall, err error) {
	code := WarnTypeMismatch
	switch {
	case errors.Is(err, ErrUnknownOperator):
		code = WarnUnknownOperator
	case errors.Is(err, ErrBadArgument):
		code = WarnBadArgument
	case errors.Is(err, ErrImplicitIndex):
		code = WarnBadVariable
	}
	c.warn(code, "запись %q, переменная <%s>: %v", c.entry.Key(), c.scope, err)
}

func applyStep(c *evalCtx, v Value, op opCall) (Value, error) {
	if op.call {
		fn, ok := operators[op.name]
		if !ok {
			if hint := closestMatch(op.name, operatorNames()); hint != "" {
				return nil, opErr(op.name, ErrUnknownOperator, "возможно, имелся в виду %s()", hint)
			}
			return nil, opErr(op.name, ErrUnknownOperator, "")
		}
		return fn(c, v, op.args)
	}

	seg := op.name
	switch vv := v.(type) {
	case Names:
		if seg == "n" {
			return nil, opErr(seg, ErrImplicitIndex, "")
		}
		if isIndexToken(seg) {
			return indexNames(vv, seg)
		}
	case Person:
		if f, known := personField(seg); known {
			val, _ := vv.Field(f)
			return Str(val), nil
		}
	case Map:
		if x, ok := vv[seg]; ok {
			return x, nil
		}
		if x, ok := vv[strings.ToLower(seg)]; ok {
			return x, nil
		}
		if _, isOp := operators[strings.ToLower(seg)]; !isOp {
			return nil, nil
		}
	case Str:
		if strings.Contains(seg, ":") {
			return sliceString(string(vv), seg)
		}
		if isIndexToken(seg) {
			return nil, opErr(seg, ErrNotList, "значение %q — строка", string(vv))
		}
	}
	if fn, ok := operators[strings.ToLower(seg)]; ok {
		return fn(c, v, nil)
	}
	if isIndexToken(seg) {
		return nil, opErr(seg, ErrNotList, "значение типа %s", v.Kind())
	}
	return nil, opErr(seg, ErrNotMap, "значение типа %s", v.Kind())
}

func personField(seg string) (string, bool) {
	switch f := strings.ToLower(seg); f {
	case "first", "middle", "prefix", "last", "suffix":
		return f, true
	}
	return "", false
}

// isIndexToken: целое (в т.ч. отрицательное), N или срез a:b.
func isIndexToken(seg string) bool {
	if seg == "N" || strings.Contains(seg, ":") {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}

func indexNames(names Names, seg string) (Value, error) {
	n := len(names)
	if strings.Contains(seg, ":") {
		lo, hi, err := sliceBounds(seg, n)
		if err != nil {
			return nil, err
		}
		return append(Names(nil), names[lo:hi]...), nil
	}
	var i int
	if seg == "N" {
		i = n - 1
	} else {
		i, _ = strconv.Atoi(seg)
		if i < 0 {
			i += n
		}
	}
	if i < 0 || i >= n {
		return nil, nil
	}
	return names[i], nil
}

func sliceString(s, seg string) (Value, error) {
	rs := []rune(s)
	lo, hi, err := sliceBounds(seg, len(rs))
	if err != nil {
		return nil, err
	}
	return Str(string(rs[lo:hi])), nil
}

// sliceBounds разбирает "a:b" с отрицательными индексами и пустыми границами, зажимая в [0, n].
func sliceBounds(seg string, n int) (int, int, error) {
	parts := strings.SplitN(seg, ":", 2)
	bound := func(s string, def int) (int, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return def, nil
		}
		if s == "N" {
			return n - 1, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, opErr(seg, ErrBadArgument, "граница среза %q", s)
		}
		if i < 0 {
			i += n
		}
		if i < 0 {
			i = 0
		}
		if i > n {
			i = n
		}
		return i, nil
	}
	lo, err := bound(parts[0], 0)
	if err != nil {
		return 0, 0, err
	}
	hi, err := bound(parts[1], n)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi, nil
}

// textOf — строковое представление значения для текстовых операторов.
func textOf(op string, v Value) (string, error) {
	switch vv := v.(type) {
	case Str:
		return string(vv), nil
	case Person:
		return vv.String(), nil
	case Names:
		return vv.String(), nil
	}
	return "", opErr(op, ErrNotList, "ожидается строка, получено значение типа %s", v.Kind())
}

func textOp(name string, f func(c *evalCtx, s string) string) operator {
	return func(c *evalCtx, v Value, _ []string) (Value, error) {
		s, err := textOf(name, v)
		if err != nil {
			return nil, err
		}
		return Str(f(c, s)), nil
	}
}

var (
	opLower    = textOp("lower", func(c *evalCtx, s string) string { return cases.Lower(c.cfg().Tag()).String(s) })
	opUpper    = textOp("upper", func(c *evalCtx, s string) string { return cases.Upper(c.cfg().Tag()).String(s) })
	opTitle    = textOp("title", func(c *evalCtx, s string) string { return cases.Title(c.cfg().Tag(), cases.NoLower).String(s) })
	opSentence = textOp("sentence", func(c *evalCtx, s string) string { return sentenceCase(s, c.cfg().Tag()) })
	opCompress = textOp("compress", func(_ *evalCtx, s string) string { return replaceUnescapedSpaces(s, "") })
	opTie      = textOp("tie", func(_ *evalCtx, s string) string { return replaceUnescapedSpaces(s, "~") })
	opPurify   = textOp("purify", func(_ *evalCtx, s string) string { return purify(s) })
)

// replaceUnescapedSpaces заменяет пробелы, перед которыми нет обратного слеша.
func replaceUnescapedSpaces(s, with string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' && (i == 0 || s[i-1] != escapeMarker) {
			b.WriteString(with)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func opInitial(french bool) operator {
	return func(c *evalCtx, v Value, _ []string) (Value, error) {
		o := initialsFrom(c.cfg())
		o.french = o.french || french
		switch vv := v.(type) {
		case Str:
			return Str(initialize(string(vv), o)), nil
		case Person:
			return Str(initialize(strings.TrimSpace(vv.First+" "+vv.Middle), o)), nil
		}
		return nil, opErr("initial", ErrNotList, "ожидается строка или персона, получено %s", v.Kind())
	}
}

var namedOrdinals = map[string]string{
	"first": "1", "second": "2", "third": "3", "fourth": "4", "fifth": "5", "sixth": "6",
	"seventh": "7", "eighth": "8", "ninth": "9", "tenth": "10", "eleventh": "11",
	"twelfth": "12", "thirteenth": "13", "fourteenth": "14", "fifteenth": "15",
	"sixteenth": "16", "seventeenth": "17", "eighteenth": "18", "nineteenth": "19",
	"twentieth": "20",
}

func opOrdinal(c *evalCtx, v Value, _ []string) (Value, error) {
	s, err := textOf("ordinal", v)
	if err != nil {
		return nil, err
	}
	out, ok := ordinal(s)
	if !ok {
		c.warn(WarnBadEdition, "запись %q: номер %q не может быть порядковым", c.entry.Key(), s)
		return nil, nil
	}
	return Str(out), nil
}

// ordinal: "2" -> "2nd", "second" -> "2nd"; нечисловые строки возвращаются как есть.
// ok == false для чисел меньше 1.
func ordinal(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if d, named := namedOrdinals[strings.ToLower(s)]; named {
		s = d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return s, true
	}
	switch {
	case n == 1:
		return "1st", true
	case n == 2:
		return "2nd", true
	case n == 3:
		return "3rd", true
	case n > 3:
		return s + "th", true
	}
	return "", false
}

func opMonth(abbrev bool) operator {
	return func(c *evalCtx, v Value, _ []string) (Value, error) {
		s, err := textOf("monthname", v)
		if err != nil {
			return nil, err
		}
		i := monthIndex(s, c.cfg())
		if i < 0 {
			return Str(s), nil
		}
		if abbrev {
			return Str(c.cfg().MonthAbbrevs[i]), nil
		}
		return Str(c.cfg().MonthNames[i]), nil
	}
}

// monthIndex распознаёт месяц по номеру, полному имени или первым трём буквам; -1 если не удалось.
func monthIndex(s string, cfg *Config) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 12 {
			return n - 1
		}
		return -1
	}
	low := strings.ToLower(strings.TrimSuffix(s, "."))
	for i := 0; i < 12; i++ {
		for _, tbl := range [][]string{cfg.MonthNames, cfg.MonthAbbrevs, defaultMonthNames} {
			name := strings.ToLower(strings.TrimSuffix(tbl[i], "."))
			if low == name {
				return i
			}
			if utf8.RuneCountInString(low) >= 3 && strings.HasPrefix(name, low) {
				return i
			}
		}
	}
	return -1
}

func opZfill(_ *evalCtx, v Value, args []string) (Value, error) {
	s, err := textOf("zfill", v)
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, opErr("zfill", ErrBadArgument, "нужна ширина")
	}
	width, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || width < 0 {
		return nil, opErr("zfill", ErrBadArgument, "ширина %q", args[0])
	}
	return Str(zfill(s, width)), nil
}

// zfill дополняет цифры нулями слева до ширины width; знак стоит перед нулями и в ширину не входит.
func zfill(s string, width int) string {
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	if pad := width - utf8.RuneCountInString(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return sign + s
}

func opReplace(_ *evalCtx, v Value, args []string) (Value, error) {
	s, err := textOf("replace", v)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, opErr("replace", ErrBadArgument, "нужны два аргумента (old, new), получено %d", len(args))
	}
	if args[0] == "" {
		return Str(s), nil
	}
	return Str(strings.ReplaceAll(s, args[0], args[1])), nil
}

// opIfSingular: if_singular(field, sing, plural) — sing, если в поле field ровно одно имя.
func opIfSingular(c *evalCtx, _ Value, args []string) (Value, error) {
	if len(args) != 3 {
		return nil, opErr("if_singular", ErrBadArgument, "нужны три аргумента (field, singular, plural)")
	}
	field, ok := c.s.lookup(c, args[0])
	if !ok {
		return nil, nil
	}
	count := 0
	switch fv := field.(type) {
	case Names:
		count = len(fv)
		if count > 0 && fv[count-1].IsOthers() {
			count = 2
		}
	case Str:
		count = len(ParseNames(string(fv), c.cfg().NameSeparator, nil, nil, ""))
	case Person:
		count = 1
	case Map:
		count = len(fv)
	}
	if count == 1 {
		return Str(args[1]), nil
	}
	return Str(args[2]), nil
}

// opIfEqual: if_equal(value, yes, no) — сравнение текущего значения со строкой.
func opIfEqual(_ *evalCtx, v Value, args []string) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, opErr("if_equal", ErrBadArgument, "нужны аргументы (value, yes[, no])")
	}
	s, err := textOf("if_equal", v)
	if err != nil {
		return nil, err
	}
	if s == args[0] {
		return Str(args[1]), nil
	}
	if len(args) == 3 {
		return Str(args[2]), nil
	}
	return Str(""), nil
}

func opNames(c *evalCtx, v Value, args []string) (Value, error) {
	switch vv := v.(type) {
	case Names:
		return vv, nil
	case Person:
		return Names{vv}, nil
	case Str:
		sep := c.cfg().NameSeparator
		if len(args) > 0 && args[0] != "" {
			sep = args[0]
		}
		return ParseNames(string(vv), sep, nil, c.s.eng.warner, c.entry.Key()), nil
	}
	return nil, opErr("names", ErrNotList, "значение типа %s", v.Kind())
}

func opNamelist(c *evalCtx, v Value, args []string) (Value, error) {
	role := "author"
	if len(args) > 0 && args[0] != "" {
		role = args[0]
	} else if strings.Contains(c.scope, "editor") {
		role = "editor"
	}
	switch vv := v.(type) {
	case Person:
		return Str(formatName(vv, c.cfg())), nil
	case Names:
		return Str(FormatNameList(vv, role, c.cfg())), nil
	case Str:
		names := ParseNames(string(vv), c.cfg().NameSeparator, nil, c.s.eng.warner, c.entry.Key())
		return Str(FormatNameList(names, role, c.cfg())), nil
	}
	return nil, opErr("namelist", ErrNotList, "значение типа %s", v.Kind())
}

func opUniquify(c *evalCtx, v Value, args []string) (Value, error) {
	s, err := textOf("uniquify", v)
	if err != nil {
		return nil, err
	}
	mode := "num"
	if len(args) > 0 && args[0] != "" {
		mode = strings.ToLower(args[0])
	}
	if mode != "num" && mode != "alpha" {
		return nil, opErr("uniquify", ErrBadArgument, "режим %q (ожидается num или alpha)", mode)
	}
	// проверка определённости блока не должна занимать значения в истории
	if c.dry {
		return Str(s), nil
	}
	return Str(c.s.unique.Unique(c.scope, c.entry.Key(), s, mode)), nil
}

func opLen(_ *evalCtx, v Value, _ []string) (Value, error) {
	switch vv := v.(type) {
	case Str:
		return Str(strconv.Itoa(utf8.RuneCountInString(string(vv)))), nil
	case Names:
		return Str(strconv.Itoa(len(vv))), nil
	case Map:
		return Str(strconv.Itoa(len(vv))), nil
	case Person:
		return Str("1"), nil
	}
	return nil, opErr("len", ErrNotList, "значение типа %s", v.Kind())
}
