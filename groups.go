package bibtemplar

import "strings"

// groupStatus — итог разрешения группы альтернатив.
type groupStatus int

const (
	groupDefined     groupStatus = iota // выбран определённый блок
	groupPlaceholder                    // дошли до пустого блока: undefstr
	groupEmpty                          // ни один блок не подошёл
)

// renderer обходит дерево шаблона и считает подстановки:
// defined — переменные с определённым значением, undefined — вставленные undefstr.
type renderer struct {
	c         *evalCtx
	defined   int
	undefined int
	vars      int
}

func (r *renderer) render(nodes []node) string {
	var b strings.Builder
	for _, n := range nodes {
		switch nn := n.(type) {
		case textNode:
			b.WriteString(nn.text)
		case *varNode:
			r.vars++
			text, ok := r.c.s.variable(r.c, nn)
			if !ok {
				r.undefined++
				b.WriteString(r.c.cfg().UndefStr)
				continue
			}
			r.defined++
			b.WriteString(text)
		case *groupNode:
			text, _ := r.group(nn)
			b.WriteString(text)
		}
	}
	return b.String()
}

// group выбирает первый блок, в котором определены все переменные и вложенные группы.
// Пустой блок обрывает перебор и даёт undefstr; если не подошёл ни один блок, группа пуста.
func (r *renderer) group(g *groupNode) (string, groupStatus) {
	for _, block := range g.blocks {
		if len(block) == 0 {
			r.undefined++
			return r.c.cfg().UndefStr, groupPlaceholder
		}
		if r.blockDefined(block) {
			return r.render(block), groupDefined
		}
	}
	return "", groupEmpty
}

// blockDefined проверяет блок без побочных эффектов (uniquify не занимает значения).
func (r *renderer) blockDefined(block []node) bool {
	probe := &renderer{c: r.c.dryRun()}
	for _, n := range block {
		switch nn := n.(type) {
		case *varNode:
			if _, ok := probe.c.s.variable(probe.c, nn); !ok {
				return false
			}
		case *groupNode:
			if _, st := probe.group(nn); st != groupDefined {
				return false
			}
		}
	}
	return true
}
