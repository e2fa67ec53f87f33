package bibtemplar

import (
	"io"
	"log"
	"testing"
)

// quietWarner — канал предупреждений без вывода в лог.
func quietWarner() *Warner {
	return NewWarner(log.New(io.Discard, "", 0))
}

// newTestSession собирает сессию над пустым стилем; mutate правит опции до создания движка.
func newTestSession(t *testing.T, mutate func(c *Config), entries ...*Entry) (*Session, *Warner) {
	t.Helper()
	st := NewStyle()
	w := quietWarner()
	st.w = w
	if mutate != nil {
		mutate(st.Options)
	}
	return NewEngine(st, w).NewSession(NewDatabase(entries...)), w
}

func resolveText(t *testing.T, s *Session, e *Entry, name string) (string, bool) {
	t.Helper()
	v, ok := s.ResolveVariable(e, name)
	if !ok {
		return "", false
	}
	return v.String(), true
}
