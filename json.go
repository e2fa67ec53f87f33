package bibtemplar

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DecodeEntries читает записи из JSON. Поддерживаются две формы:
//
//	[{"entrytype": "article", "entrykey": "smith99", "title": "..."}]
//	{"smith99": {"entrytype": "article", "title": "..."}}
//
// Массив строк или объектов {"first","last",...} становится списком имён,
// вложенный объект — словарём Map. Числа сохраняют исходную запись ("2001", а не 2001.0).
func DecodeEntries(r io.Reader, caseSensitive bool) ([]*Entry, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("разбор JSON: %w", err)
	}
	raw = deepNormalize(raw)

	var objs []map[string]interface{}
	switch v := raw.(type) {
	case []interface{}:
		for i, it := range v {
			obj, ok := it.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("элемент %d: ожидается объект записи", i)
			}
			objs = append(objs, obj)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj, ok := v[k].(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("запись %q: ожидается объект", k)
			}
			if _, has := obj["entrykey"]; !has {
				obj["entrykey"] = k
			}
			objs = append(objs, obj)
		}
	default:
		return nil, fmt.Errorf("ожидается массив или объект записей")
	}

	entries := make([]*Entry, 0, len(objs))
	for i, obj := range objs {
		e, err := entryFromObject(obj, caseSensitive)
		if err != nil {
			return nil, fmt.Errorf("запись %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DecodeDatabase — DecodeEntries с укладкой записей в базу.
func DecodeDatabase(r io.Reader, caseSensitive bool) (*Database, error) {
	entries, err := DecodeEntries(r, caseSensitive)
	if err != nil {
		return nil, err
	}
	return NewDatabase(entries...), nil
}

func entryFromObject(obj map[string]interface{}, caseSensitive bool) (*Entry, error) {
	typ, key := toString(obj["entrytype"]), toString(obj["entrykey"])
	if typ == "" {
		return nil, fmt.Errorf("нет обязательного поля entrytype")
	}
	if key == "" {
		return nil, fmt.Errorf("нет обязательного поля entrykey")
	}
	e := newEntry(typ, key, caseSensitive)
	for k, v := range obj {
		if k == "entrytype" || k == "entrykey" {
			continue
		}
		if val := toValue(v); val != nil {
			e.Set(k, val)
		}
	}
	return e, nil
}

// deepNormalize обрезает пробелы в строках и выбрасывает null и пустые значения.
func deepNormalize(v interface{}) interface{} {
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv)
	case []interface{}:
		out := vv[:0]
		for _, it := range vv {
			if n := deepNormalize(it); n != nil {
				out = append(out, n)
			}
		}
		return out
	case map[string]interface{}:
		for k, val := range vv {
			n := deepNormalize(val)
			if n == nil || n == "" {
				delete(vv, k)
				continue
			}
			vv[k] = n
		}
		return vv
	default:
		return vv
	}
}
