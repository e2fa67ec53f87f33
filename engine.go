package bibtemplar

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr/vm"
)

// maxDepth ограничивает вложенность специальных шаблонов и перекрёстных ссылок.
const maxDepth = 16

// titleMark ставится после значения заголовка, оканчивающегося на ? или !,
// чтобы убрать следующую за ним пунктуацию шаблона.
const titleMark = "\x00"

var (
	rxTitleMark = regexp.MustCompile(`\x00[.,;:!?]?`)

	escapeMarkers = strings.NewReplacer(
		`{\makeopenbracket}`, "[",
		`{\makeclosebracket}`, "]",
		`{\makeverticalbar}`, "|",
		`{\makegreaterthan}`, ">",
		`{\makelessthan}`, "<",
		`{\makehashsign}`, "#",
	)
)

// Engine — неизменяемый после создания движок: стиль, настройки, канал предупреждений,
// скрипты и кэш шаблонов, построенных на лету. Одним движком пользуются многие сессии.
type Engine struct {
	style   *Style
	cfg     *Config
	warner  *Warner
	scripts map[string]*vm.Program
	cache   *templateCache
}

// NewEngine создаёт движок для стиля; w == nil — предупреждения пишутся в log.Default().
func NewEngine(style *Style, w *Warner) *Engine {
	if style == nil {
		style = NewStyle()
	}
	cfg := style.Options.Clone()
	cfg.normalize()
	if w == nil {
		w = NewWarner(nil)
	}
	w.Disable(cfg.DisabledCodes()...)
	e := &Engine{style: style, cfg: cfg, warner: w, cache: newTemplateCache()}
	e.scripts = compileScripts(style.Variables, cfg.AllowScripts, w)
	return e
}

func (e *Engine) Config() *Config { return e.cfg }
func (e *Engine) Warner() *Warner { return e.warner }
func (e *Engine) Style() *Style   { return e.style }

// NewSession начинает прогон форматирования над базой db.
func (e *Engine) NewSession(db *Database) *Session {
	if db == nil {
		db = NewDatabase()
	}
	return &Session{
		eng:      e,
		db:       db,
		unique:   NewUniquifier(),
		citeNums: map[string]int{},
		sortKeys: map[string]string{},
	}
}

// Session — состояние одного прогона: история uniquify, номера цитат, ключи сортировки.
// Методы безопасны для параллельного вызова на разных записях.
type Session struct {
	eng    *Engine
	db     *Database
	unique *Uniquifier
	memo   memoTable

	mu       sync.Mutex
	citeNums map[string]int
	citeSeq  []string
	sortKeys map[string]string
}

// Cite регистрирует ключи в порядке цитирования; повторные ключи номера не меняют.
func (s *Session) Cite(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, ok := s.citeNums[k]; ok {
			continue
		}
		s.citeSeq = append(s.citeSeq, k)
		s.citeNums[k] = len(s.citeSeq)
	}
}

func (s *Session) citeNumber(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.citeNums[key]
	return n, ok
}

func (s *Session) citeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.citeSeq)
}

// uniqueSortKey дописывает нули, пока ключ сортировки занят другой записью.
func (s *Session) uniqueSortKey(key, sk string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		owner, taken := s.sortKeys[sk]
		if !taken || owner == key {
			s.sortKeys[sk] = key
			return sk
		}
		sk += "0"
	}
}

// -----------------------------
// Контекст подстановки
// -----------------------------

type evalCtx struct {
	s     *Session
	entry *Entry
	scope string
	dry   bool
	depth int
}

func (c *evalCtx) cfg() *Config { return c.s.eng.cfg }

func (c *evalCtx) warn(code WarnCode, format string, args ...interface{}) {
	c.s.eng.warner.Warn(code, format, args...)
}

func (c *evalCtx) dryRun() *evalCtx {
	cp := *c
	cp.dry = true
	return &cp
}

func (c *evalCtx) deeper() (*evalCtx, bool) {
	if c.depth >= maxDepth {
		c.warn(WarnBadVariable, "запись %q: слишком глубокая вложенность при разборе <%s>", c.entry.Key(), c.scope)
		return nil, false
	}
	cp := *c
	cp.depth++
	return &cp, true
}

func (c *evalCtx) forEntry(e *Entry) *evalCtx {
	cp := *c
	cp.entry = e
	return &cp
}

func (s *Session) ctx(e *Entry) *evalCtx {
	return &evalCtx{s: s, entry: e}
}

// -----------------------------
// Подстановка
// -----------------------------

// substitution — результат подстановки шаблона с учётом определённости переменных.
type substitution struct {
	text      string
	defined   int
	undefined int
	vars      int
	loop      bool
}

// ok — шаблон с циклом, где не определилась ни одна переменная, целиком не определён.
func (r substitution) ok() bool {
	return !(r.loop && r.defined == 0)
}

// complete — все переменные определены (для специальных шаблонов, подставляемых как значение).
func (r substitution) complete() bool {
	return r.ok() && r.undefined == 0 && (r.defined > 0 || r.vars == 0)
}

func (s *Session) substitute(c *evalCtx, t *Template) substitution {
	nodes := t.nodes
	if t.hasLoop {
		expanded := s.expandLoops(c, t)
		et, err := s.eng.cache.get(t.Name, expanded)
		if err != nil {
			c.warn(WarnMalformedLoop, "шаблон %q после развёртки цикла некорректен: %v", t.Name, err)
			return substitution{text: MalformedTemplateText, loop: true}
		}
		nodes = et.nodes
	}
	r := &renderer{c: c}
	text := r.render(nodes)
	return substitution{text: text, defined: r.defined, undefined: r.undefined, vars: r.vars, loop: t.hasLoop}
}

// finish применяет правило пунктуации заголовка и заменяет экранирующие маркеры.
func finish(s string) string {
	if strings.Contains(s, titleMark) {
		s = rxTitleMark.ReplaceAllString(s, "")
	}
	return escapeMarkers.Replace(s)
}

// Substitute компилирует (с кэшем) и подставляет шаблон для записи.
// ok == false означает, что шаблон с циклом целиком не определён и его нужно опустить.
func (s *Session) Substitute(template string, e *Entry) (string, bool) {
	t, err := s.eng.cache.get("", template)
	if err != nil {
		s.eng.warner.Warn(templateErrCode(err), "%v", err)
		return MalformedTemplateText, true
	}
	return s.SubstituteTemplate(t, e)
}

// SubstituteTemplate подставляет уже скомпилированный шаблон.
func (s *Session) SubstituteTemplate(t *Template, e *Entry) (string, bool) {
	res := s.substitute(s.ctx(e), t)
	if !res.ok() {
		return "", false
	}
	return finish(res.text), true
}

// ResolveVariable возвращает значение переменной вида "name.op1.op2(args)" для записи.
func (s *Session) ResolveVariable(e *Entry, name string) (Value, bool) {
	base, chain, err := parseVariable(name)
	if err != nil {
		s.eng.warner.Warn(WarnBadVariable, "переменная %q: %v", name, err)
		return nil, false
	}
	c := s.ctx(e)
	c.scope = base
	v, ok := s.resolve(c, base, chain)
	if !ok {
		return nil, false
	}
	if str, isStr := v.(Str); isStr {
		return Str(finish(string(str))), true
	}
	return v, true
}

// lookup разбирает и разрешает переменную внутри подстановки (для операторов вроде if_singular).
func (s *Session) lookup(c *evalCtx, name string) (Value, bool) {
	base, chain, err := parseVariable(name)
	if err != nil {
		c.warn(WarnBadArgument, "переменная %q: %v", name, err)
		return nil, false
	}
	return s.resolve(c, base, chain)
}

// variable подставляет одну переменную шаблона и возвращает её текст.
func (s *Session) variable(c *evalCtx, v *varNode) (string, bool) {
	vc := *c
	// область uniquify — внешняя переменная шаблона (citelabel, а не authorlist внутри него)
	if vc.scope == "" {
		vc.scope = v.base
	}
	val, ok := s.resolve(&vc, v.base, v.chain)
	if !ok {
		return "", false
	}
	text := s.valueText(v.base, val)
	if text == "" {
		return "", false
	}
	if s.isTitleField(v.base) {
		if s.eng.cfg.ForceSentenceCase {
			text = sentenceCase(text, s.eng.cfg.Tag())
		}
		if strings.HasSuffix(text, "?") || strings.HasSuffix(text, "!") {
			text += titleMark
		}
	}
	return text, true
}

func (s *Session) isTitleField(name string) bool {
	for _, f := range s.eng.cfg.TitleFields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// valueText — текст значения для вставки в шаблон.
func (s *Session) valueText(base string, v Value) string {
	switch vv := v.(type) {
	case Str:
		return string(vv)
	case Person:
		return formatName(vv, s.eng.cfg)
	case Names:
		role := "author"
		if strings.Contains(base, "editor") {
			role = "editor"
		}
		return FormatNameList(vv, role, s.eng.cfg)
	case Map:
		return vv.String()
	}
	return ""
}

// resolve ищет базовое имя по порядку: поле записи, специальный шаблон, производное поле,
// родительская запись crossref, скриптовая переменная. Затем применяет цепочку операторов.
func (s *Session) resolve(c *evalCtx, base string, chain []opCall) (Value, bool) {
	if v, ok := c.entry.Get(base); ok {
		return applyChain(c, v, chain)
	}
	if v, rest, found := s.special(c, base, chain); found {
		if v == nil {
			return nil, false
		}
		return applyChain(c, v, rest)
	}
	if v, ok, found := s.computed(c, base); found && ok {
		return applyChain(c, v, chain)
	}
	if v, ok := s.inherited(c, base, chain); ok {
		return v, true
	}
	if v, ok := s.script(c, base); ok {
		return applyChain(c, v, chain)
	}
	return nil, false
}

// special разрешает специальный шаблон. Явный шаблон с индексом (au.2) всегда важнее
// неявного (au.n); остаток цепочки возвращается для применения к результату.
func (s *Session) special(c *evalCtx, base string, chain []opCall) (Value, []opCall, bool) {
	tpls := s.eng.style.Special
	if len(tpls) == 0 {
		return nil, nil, false
	}
	implicit, hasImplicit := tpls[base+".n"]
	if len(chain) > 0 && !chain[0].call {
		if t, ok := tpls[base+"."+chain[0].name]; ok {
			return s.specialValue(c, t), chain[1:], true
		}
		if idx, err := strconv.Atoi(chain[0].name); err == nil && hasImplicit {
			t, err := s.eng.cache.get(base+"."+chain[0].name, instantiateImplicit(implicit.raw, idx))
			if err != nil {
				c.warn(templateErrCode(err), "%v", err)
				return nil, nil, true
			}
			return s.specialValue(c, t), chain[1:], true
		}
	}
	if t, ok := tpls[base]; ok {
		return s.specialValue(c, t), chain, true
	}
	if hasImplicit {
		c.warn(WarnBadVariable, "запись %q: шаблон %s.n используется без индекса: %v", c.entry.Key(), base, ErrImplicitIndex)
		return nil, nil, true
	}
	return nil, nil, false
}

func (s *Session) specialValue(c *evalCtx, t *Template) Value {
	dc, ok := c.deeper()
	if !ok {
		return nil
	}
	res := s.substitute(dc, t)
	if !res.complete() || res.text == "" {
		return nil
	}
	return Str(res.text)
}

// inherited берёт значение из записи, на которую ссылается поле crossref.
// Заголовок родителя служит booktitle для дочерней записи.
func (s *Session) inherited(c *evalCtx, base string, chain []opCall) (Value, bool) {
	ref, ok := c.entry.Get("crossref")
	if !ok || base == "crossref" || base == "entrytype" || base == "entrykey" {
		return nil, false
	}
	parent, found := s.db.Get(ref.String())
	if !found {
		c.warn(WarnBadCrossref, "запись %q ссылается на %q, которой нет в базе", c.entry.Key(), ref.String())
		return nil, false
	}
	pc, ok := c.deeper()
	if !ok {
		return nil, false
	}
	pc = pc.forEntry(parent)
	if base == "booktitle" {
		if _, has := parent.Get("booktitle"); !has {
			return s.resolve(pc, "title", chain)
		}
	}
	if computedFields[base].session {
		return nil, false
	}
	return s.resolve(pc, base, chain)
}

// -----------------------------
// Форматирование списка
// -----------------------------

// Item — один отформатированный элемент списка литературы.
type Item struct {
	Key     string
	Label   string
	SortKey string
	Text    string
	Omitted bool
}

// FormatEntry форматирует запись по шаблону её типа.
func (s *Session) FormatEntry(key string) Item {
	it := Item{Key: key}
	e, ok := s.db.Get(key)
	if !ok {
		s.eng.warner.Warn(WarnMissingEntry, "ключ %q отсутствует в базе", key)
		it.Text = fmt.Sprintf(`\textit{Warning: citation key %q is not in the database}`, key)
		it.Omitted = true
		return it
	}
	s.Cite(key)
	if v, ok := s.ResolveVariable(e, "citelabel"); ok {
		it.Label = v.String()
	}
	if v, ok := s.ResolveVariable(e, "sortkey"); ok {
		it.SortKey = v.String()
	}

	t, ok := s.eng.style.Templates[e.Type()]
	if !ok {
		msg := fmt.Sprintf("для типа записи %q (ключ %q) нет шаблона", e.Type(), key)
		if hint := closestMatch(e.Type(), s.eng.style.TemplateNames()); hint != "" {
			msg += fmt.Sprintf(" (возможно, %q)", hint)
		}
		s.eng.warner.Warn(WarnUndefinedTemplate, "%s", msg)
		it.Text = fmt.Sprintf(`\textit{Warning: entrytype %q has no template}`, e.Type())
		return it
	}
	text, ok := s.SubstituteTemplate(t, e)
	if !ok {
		it.Omitted = true
		return it
	}
	it.Text = text
	return it
}

// FormatList форматирует записи последовательно и сортирует результат по ключу сортировки.
func (s *Session) FormatList(keys []string) []Item {
	s.Cite(keys...)
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, s.FormatEntry(k))
	}
	sortItems(items)
	return items
}

// FormatAll — как FormatList, но записи форматируются параллельно ограниченным числом горутин.
// Номера цитат и ключи сортировки назначаются заранее в порядке keys.
func (s *Session) FormatAll(keys []string) []Item {
	s.Cite(keys...)
	for _, k := range keys {
		if e, ok := s.db.Get(k); ok {
			s.ResolveVariable(e, "sortkey")
		}
	}
	items := make([]Item, len(keys))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.eng.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				items[i] = s.FormatEntry(keys[i])
			}
		}()
	}
	for i := range keys {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	sortItems(items)
	return items
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortKey < items[j].SortKey })
}

func templateErrCode(err error) WarnCode {
	if te, ok := err.(*TemplateError); ok && te.Code != 0 {
		return te.Code
	}
	return WarnUnbalancedGroup
}
