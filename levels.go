package bibtemplar

import "strings"

// escapeMarker экранирует следующий за ним разделитель: "\{" никогда не считается скобкой.
const escapeMarker = '\\'

// DelimLevels возвращает для каждого байта строки уровень вложенности пары разделителей.
// Открывающий разделитель уже входит в свой уровень, закрывающий — уже нет.
// Лишний закрывающий разделитель делает весь результат недействительным (ErrUnbalanced).
func DelimLevels(s, open, close string) ([]int, error) {
	_, br, err := delimLevels(s, open, close, "")
	return br, err
}

// DelimLevelsOp — вариант с оператором: разделители, перед которыми стоит operator
// (например `\textbf`), учитываются в отдельном канале oplevels, остальные — в brlevels.
func DelimLevelsOp(s, open, close, operator string) (oplevels, brlevels []int, err error) {
	return delimLevels(s, open, close, operator)
}

func delimLevels(s, open, close, operator string) ([]int, []int, error) {
	oplevels := make([]int, len(s))
	brlevels := make([]int, len(s))
	if open == "" || close == "" {
		return oplevels, brlevels, nil
	}
	// стек маркеров: 'o' — операторная скобка, 'b' — обычная
	var stack []byte
	nop, nbr := 0, 0
	fill := func(from, to int) {
		for k := from; k < to && k < len(s); k++ {
			oplevels[k] = nop
			brlevels[k] = nbr
		}
	}
	for j := 0; j < len(s); {
		escaped := j > 0 && s[j-1] == escapeMarker
		switch {
		case !escaped && strings.HasPrefix(s[j:], open):
			if operator != "" && strings.HasSuffix(s[:j], operator) {
				stack = append(stack, 'o')
				nop++
			} else {
				stack = append(stack, 'b')
				nbr++
			}
			fill(j, j+len(open))
			j += len(open)
		case !escaped && strings.HasPrefix(s[j:], close):
			if len(stack) == 0 {
				return nil, nil, ErrUnbalanced
			}
			if stack[len(stack)-1] == 'o' {
				nop--
			} else {
				nbr--
			}
			stack = stack[:len(stack)-1]
			fill(j, j+len(close))
			j += len(close)
		default:
			fill(j, j+1)
			j++
		}
	}
	return oplevels, brlevels, nil
}

// topLevelIndexes фильтрует позиции совпадений, оставляя только те, что на нулевом уровне фигурных скобок.
func topLevelIndexes(s string, matches [][]int) [][]int {
	if !strings.Contains(s, "{") {
		return matches
	}
	lv, err := DelimLevels(s, "{", "}")
	if err != nil {
		return nil
	}
	out := matches[:0:0]
	for _, m := range matches {
		if lv[m[0]] == 0 {
			out = append(out, m)
		}
	}
	return out
}

// splitAtMatches режет строку по найденным разделителям (пары [start,end]).
func splitAtMatches(s string, seps [][]int) []string {
	if len(seps) == 0 {
		return []string{s}
	}
	parts := make([]string, 0, len(seps)+1)
	last := 0
	for _, m := range seps {
		parts = append(parts, s[last:m[0]])
		last = m[1]
	}
	return append(parts, s[last:])
}
