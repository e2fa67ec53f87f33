package bibtemplar

import (
	"sort"
	"strings"

	expro "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Скриптовые переменные из секции VARIABLES: выражения expr-lang с фиксированным окружением.
// Доступны только функции окружения ниже; ни файлов, ни сети, ни глобального состояния.
//
//	entry                — исходные поля записи (строки)
//	field("name")        — значение переменной шаблона (с операторами: field("authorlist.0.last"))
//	defined("name")      — определена ли переменная
//	names("author")      — фамилии из списка имён
//	entrykey, entrytype  — ключ и тип записи
//
// Плюс встроенные функции expr-lang: len, upper, lower, join, trim, split и т.д.

// scriptEnv строит окружение выражения. Для компиляции используется пустой прототип
// с теми же типами значений.
func scriptEnv(fields map[string]string, key, typ string,
	field func(string) string, defined func(string) bool, names func(string) []string) map[string]interface{} {
	return map[string]interface{}{
		"entry":     fields,
		"entrykey":  key,
		"entrytype": typ,
		"field":     field,
		"defined":   defined,
		"names":     names,
	}
}

func scriptPrototype() map[string]interface{} {
	return scriptEnv(map[string]string{}, "", "",
		func(string) string { return "" },
		func(string) bool { return false },
		func(string) []string { return nil },
	)
}

// compileScripts компилирует переменные один раз при создании движка.
// При allow == false скрипты не выполняются вовсе.
func compileScripts(vars map[string]string, allow bool, w *Warner) map[string]*vm.Program {
	if len(vars) == 0 {
		return nil
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	if !allow {
		w.Warn(WarnScript, "скриптовые переменные %s пропущены: allow_scripts = False", strings.Join(names, ", "))
		return nil
	}
	env := scriptPrototype()
	out := make(map[string]*vm.Program, len(vars))
	for _, name := range names {
		program, err := expro.Compile(vars[name], expro.Env(env))
		if err != nil {
			w.Warn(WarnScript, "скриптовая переменная %q не компилируется: %v", name, err)
			continue
		}
		out[name] = program
	}
	return out
}

// script вычисляет скриптовую переменную для записи; результат кэшируется в записи.
func (s *Session) script(c *evalCtx, base string) (Value, bool) {
	program, ok := s.eng.scripts[base]
	if !ok {
		return nil, false
	}
	return c.entry.memo("script:"+base, func() (Value, bool) {
		dc, ok := c.deeper()
		if !ok {
			return nil, false
		}
		dc = dc.dryRun()
		fields := map[string]string{}
		for _, f := range c.entry.Fields() {
			if v, ok := c.entry.Get(f); ok {
				fields[f] = v.String()
			}
		}
		field := func(name string) string {
			v, ok := s.lookup(dc, name)
			if !ok {
				return ""
			}
			return s.valueText(name, v)
		}
		defined := func(name string) bool {
			v, ok := s.lookup(dc, name)
			return ok && !isBlank(v)
		}
		names := func(name string) []string {
			v, ok := s.lookup(dc, name+"list")
			if !ok {
				v, ok = s.lookup(dc, name)
			}
			list, isList := v.(Names)
			if !ok || !isList {
				return nil
			}
			out := make([]string, 0, len(list))
			for _, p := range list {
				if !p.IsOthers() {
					out = append(out, p.Last)
				}
			}
			return out
		}
		env := scriptEnv(fields, c.entry.Key(), c.entry.Type(), field, defined, names)
		out, err := expro.Run(program, env)
		if err != nil {
			c.warn(WarnScript, "скриптовая переменная %q для записи %q: %v", base, c.entry.Key(), err)
			return nil, false
		}
		v := scriptValue(out)
		return v, !isBlank(v)
	})
}

// scriptValue приводит результат выражения к Value; списки строк склеиваются через ", ".
func scriptValue(out interface{}) Value {
	switch v := out.(type) {
	case nil:
		return nil
	case bool:
		if v {
			return Str("true")
		}
		return nil
	case []string:
		return Str(strings.Join(v, ", "))
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, it := range v {
			parts = append(parts, toString(it))
		}
		return Str(strings.Join(parts, ", "))
	}
	return toValue(out)
}
