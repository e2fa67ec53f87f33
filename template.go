package bibtemplar

import (
	"strings"
	"sync"
)

// Шаблон записи библиографии.
// Разметка:
// - <name> и <name.op1.op2(args)> — подстановка поля с цепочкой операторов
// - [a|b|c] — группа альтернатив: берётся первый блок, где определены все переменные
// - [a|] — пустой блок: если до него дошли, подставляется undefstr
// - <name.0>GLUE...FINAL<name.N> — неявный цикл по списку имён
// Шаблон компилируется один раз и дальше не изменяется.

// -----------------------------
// AST
// -----------------------------

type node interface{}

type textNode struct {
	text string
}

type varNode struct {
	raw   string
	base  string
	chain []opCall
	pos   int
}

type groupNode struct {
	blocks [][]node
}

// Template — скомпилированный шаблон.
type Template struct {
	Name    string
	raw     string
	nodes   []node
	hasLoop bool
}

func (t *Template) String() string { return t.raw }

// HasLoop — шаблон содержит неявный цикл "...".
func (t *Template) HasLoop() bool { return t.hasLoop }

// malformedTemplate — заглушка вместо шаблона, не прошедшего проверку.
func malformedTemplate(name string) *Template {
	return &Template{Name: name, raw: MalformedTemplateText, nodes: []node{textNode{text: MalformedTemplateText}}}
}

// -----------------------------
// Токенизатор
// -----------------------------

type tokenKind int

const (
	tokText tokenKind = iota
	tokVar
	tokOpen
	tokSep
	tokClose
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize режет шаблон на текст, переменные и служебные символы групп.
// Символ, перед которым стоит обратный слеш, всегда текст; "|" вне группы — тоже текст.
func tokenize(name, s string) ([]token, error) {
	var toks []token
	var text strings.Builder
	textPos := 0
	flush := func() {
		if text.Len() > 0 {
			toks = append(toks, token{kind: tokText, text: text.String(), pos: textPos})
			text.Reset()
		}
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		escaped := i > 0 && s[i-1] == escapeMarker
		if escaped || (ch != '<' && ch != '[' && ch != ']' && ch != '|') || (ch == '|' && depth == 0) {
			if text.Len() == 0 {
				textPos = i
			}
			text.WriteByte(ch)
			continue
		}
		flush()
		switch ch {
		case '<':
			end := variableEnd(s, i)
			if end < 0 {
				return nil, &TemplateError{Name: name, Pos: i, Msg: "незакрытая переменная <...>", Code: WarnUnbalancedGroup}
			}
			toks = append(toks, token{kind: tokVar, text: s[i+1 : end], pos: i})
			i = end
		case '[':
			depth++
			toks = append(toks, token{kind: tokOpen, pos: i})
		case '|':
			toks = append(toks, token{kind: tokSep, pos: i})
		case ']':
			if depth == 0 {
				return nil, &TemplateError{Name: name, Pos: i, Msg: "закрывающая ] без открывающей", Code: WarnCloseBeforeOpen}
			}
			depth--
			toks = append(toks, token{kind: tokClose, pos: i})
		}
	}
	flush()
	if depth != 0 {
		return nil, &TemplateError{Name: name, Pos: len(s), Msg: "незакрытая группа [", Code: WarnUnbalancedGroup}
	}
	return toks, nil
}

// variableEnd ищет ">" для переменной, открытой в позиции start, вне кавычек и скобок аргументов.
// Служебные символы шаблона внутри имени означают незакрытую переменную.
func variableEnd(s string, start int) int {
	quote := byte(0)
	depth := 0
	for j := start + 1; j < len(s); j++ {
		ch := s[j]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '>':
			if depth == 0 {
				return j
			}
		case '<', '[', ']', '|', '\n':
			if depth == 0 {
				return -1
			}
		}
	}
	return -1
}

// -----------------------------
// Построение дерева
// -----------------------------

// CompileTemplate проверяет и компилирует шаблон. Структурные ошибки возвращаются как *TemplateError.
func CompileTemplate(name, text string) (*Template, error) {
	toks, err := tokenize(name, text)
	if err != nil {
		return nil, err
	}
	nodes, err := buildTree(name, toks)
	if err != nil {
		return nil, err
	}
	return &Template{Name: name, raw: text, nodes: nodes, hasLoop: rxLoop.MatchString(text)}, nil
}

func buildTree(name string, toks []token) ([]node, error) {
	var root []node
	type frame struct {
		g     *groupNode
		block *[]node
	}
	var stack []frame

	appendNode := func(n node) {
		if len(stack) == 0 {
			root = append(root, n)
			return
		}
		top := stack[len(stack)-1]
		*top.block = append(*top.block, n)
	}

	for _, tk := range toks {
		switch tk.kind {
		case tokText:
			appendNode(textNode{text: tk.text})
		case tokVar:
			base, chain, err := parseVariable(tk.text)
			if err != nil {
				return nil, &TemplateError{Name: name, Pos: tk.pos, Msg: err.Error(), Code: WarnBadVariable}
			}
			appendNode(&varNode{raw: tk.text, base: base, chain: chain, pos: tk.pos})
		case tokOpen:
			g := &groupNode{blocks: [][]node{{}}}
			stack = append(stack, frame{g: g, block: &g.blocks[0]})
		case tokSep:
			top := &stack[len(stack)-1]
			top.g.blocks = append(top.g.blocks, []node{})
			top.block = &top.g.blocks[len(top.g.blocks)-1]
		case tokClose:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			appendNode(top.g)
		}
	}
	return root, nil
}

// -----------------------------
// Кэш скомпилированных шаблонов
// -----------------------------

// templateCache хранит шаблоны, построенные на лету (развёрнутые циклы, неявные индексы).
type templateCache struct {
	mu sync.RWMutex
	m  map[string]*Template
}

func newTemplateCache() *templateCache {
	return &templateCache{m: map[string]*Template{}}
}

func (tc *templateCache) get(name, text string) (*Template, error) {
	tc.mu.RLock()
	t, ok := tc.m[text]
	tc.mu.RUnlock()
	if ok {
		return t, nil
	}
	t, err := CompileTemplate(name, text)
	if err != nil {
		return nil, err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if prev, ok := tc.m[text]; ok {
		return prev, nil
	}
	tc.m[text] = t
	return t, nil
}
