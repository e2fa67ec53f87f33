package bibtemplar

import (
	"strconv"
	"sync"
)

// Uniquifier — накопитель выданных значений для оператора uniquify в рамках одного прогона.
// История разделена по ключу переменной шаблона; доступ защищён мьютексом.
// Для одной записи (owner) значение выдаётся один раз: повторный запрос возвращает его же.
type Uniquifier struct {
	mu    sync.Mutex
	seen  map[string]map[string]struct{}
	given map[string]string
}

func NewUniquifier() *Uniquifier {
	return &Uniquifier{seen: map[string]map[string]struct{}{}, given: map[string]string{}}
}

// Unique возвращает base, если в области scope он ещё не выдавался, иначе base с наименьшим
// свободным суффиксом: 1, 2, 3, ... (mode "num") или a, b, ..., z, aa, ... (mode "alpha").
// Повторный вызов с тем же (scope, owner, base) возвращает ранее выданное значение.
func (u *Uniquifier) Unique(scope, owner, base, mode string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	gk := scope + "\x00" + owner + "\x00" + base
	if v, ok := u.given[gk]; ok {
		return v
	}
	hist, ok := u.seen[scope]
	if !ok {
		hist = map[string]struct{}{}
		u.seen[scope] = hist
	}
	out := base
	for i := 1; ; i++ {
		if _, taken := hist[out]; !taken {
			break
		}
		out = base + uniqueSuffix(i, mode)
	}
	hist[out] = struct{}{}
	u.given[gk] = out
	return out
}

// Reset очищает историю (новый прогон форматирования).
func (u *Uniquifier) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seen = map[string]map[string]struct{}{}
	u.given = map[string]string{}
}

// uniqueSuffix: 1 -> "a", 26 -> "z", 27 -> "aa" для alpha; иначе десятичное число.
func uniqueSuffix(i int, mode string) string {
	if mode != "alpha" {
		return strconv.Itoa(i)
	}
	var b []byte
	for i > 0 {
		i--
		b = append([]byte{byte('a' + i%26)}, b...)
		i /= 26
	}
	return string(b)
}
