package bibtemplar

import (
	"sort"
	"strings"
	"sync"
)

// Entry — одна библиографическая запись: поля плюс лениво вычисляемые производные поля.
// Производные поля пишутся один раз (memo) и дальше только читаются.
type Entry struct {
	mu            sync.Mutex
	caseSensitive bool
	fields        map[string]Value
	computed      memoTable
}

type memoValue struct {
	v  Value
	ok bool
}

// memoTable — кэш производных значений с однократной записью.
type memoTable struct {
	mu sync.Mutex
	m  map[string]memoValue
}

// get возвращает закэшированное значение или вычисляет его.
// compute выполняется без блокировки (может рекурсивно читать другие значения);
// при гонке побеждает первое записанное значение.
func (t *memoTable) get(name string, compute func() (Value, bool)) (Value, bool) {
	t.mu.Lock()
	if m, ok := t.m[name]; ok {
		t.mu.Unlock()
		return m.v, m.ok
	}
	t.mu.Unlock()

	v, ok := compute()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = map[string]memoValue{}
	}
	if m, done := t.m[name]; done {
		return m.v, m.ok
	}
	t.m[name] = memoValue{v: v, ok: ok}
	return v, ok
}

// NewEntry создаёт запись с обязательными полями entrytype и entrykey.
// Имена полей приводятся к нижнему регистру.
func NewEntry(entrytype, key string) *Entry {
	return newEntry(entrytype, key, false)
}

func newEntry(entrytype, key string, caseSensitive bool) *Entry {
	e := &Entry{caseSensitive: caseSensitive, fields: map[string]Value{}}
	e.fields["entrytype"] = Str(strings.ToLower(strings.TrimSpace(entrytype)))
	e.fields["entrykey"] = Str(key)
	return e
}

func (e *Entry) norm(name string) string {
	name = strings.TrimSpace(name)
	if e.caseSensitive {
		return name
	}
	return strings.ToLower(name)
}

// Type — тип записи (article, book, ...).
func (e *Entry) Type() string {
	v, _ := e.Get("entrytype")
	if v == nil {
		return ""
	}
	return v.String()
}

// Key — ключ цитирования.
func (e *Entry) Key() string {
	v, _ := e.Get("entrykey")
	if v == nil {
		return ""
	}
	return v.String()
}

// Get возвращает исходное поле записи (без вычисляемых полей).
func (e *Entry) Get(name string) (Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.fields[e.norm(name)]
	return v, ok
}

// Set записывает поле; nil удаляет его.
func (e *Entry) Set(name string, v Value) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	name = e.norm(name)
	if v == nil {
		delete(e.fields, name)
		return e
	}
	e.fields[name] = v
	return e
}

func (e *Entry) SetString(name, s string) *Entry { return e.Set(name, Str(s)) }

// Fields — отсортированные имена исходных полей.
func (e *Entry) Fields() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.fields))
	for k := range e.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// memo — производное поле записи, вычисляемое один раз.
func (e *Entry) memo(name string, compute func() (Value, bool)) (Value, bool) {
	return e.computed.get(name, compute)
}

// Database — набор записей по ключу цитирования с сохранением порядка добавления.
type Database struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

func NewDatabase(entries ...*Entry) *Database {
	db := &Database{entries: map[string]*Entry{}}
	for _, e := range entries {
		db.Add(e)
	}
	return db
}

// Add добавляет запись; запись с тем же ключом заменяется.
func (db *Database) Add(e *Entry) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := e.Key()
	if _, exists := db.entries[key]; !exists {
		db.order = append(db.order, key)
	}
	db.entries[key] = e
}

func (db *Database) Get(key string) (*Entry, bool) {
	if db == nil {
		return nil, false
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	e, ok := db.entries[key]
	return e, ok
}

// Keys — ключи в порядке добавления.
func (db *Database) Keys() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]string(nil), db.order...)
}

func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.order)
}
