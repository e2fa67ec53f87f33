package bibtemplar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptSession(t *testing.T, allow bool, vars map[string]string, entries ...*Entry) (*Session, *Warner) {
	t.Helper()
	st := NewStyle()
	w := quietWarner()
	st.w = w
	st.Options.AllowScripts = allow
	for k, v := range vars {
		st.Variables[k] = v
	}
	return NewEngine(st, w).NewSession(NewDatabase(entries...)), w
}

func scriptEntry() *Entry {
	return NewEntry("article", "smith99").
		SetString("title", "Hello world").
		SetString("author", "Smith, John and Jones, Ann")
}

func TestScripts_Disabled(t *testing.T) {
	e := scriptEntry()
	s, w := scriptSession(t, false, map[string]string{"shout": `upper(field("title"))`}, e)

	assert.True(t, w.Has(WarnScript))
	_, ok := s.ResolveVariable(e, "shout")
	assert.False(t, ok)
}

func TestScripts_Environment(t *testing.T) {
	e := scriptEntry()
	s, w := scriptSession(t, true, map[string]string{
		"shout":    `upper(field("title"))`,
		"ident":    `entrykey + "-" + entrytype`,
		"doiflag":  `defined("doi") ? "yes" : "no"`,
		"surnames": `names("author")`,
		"nauth":    `len(names("author"))`,
		"rawtitle": `entry["title"]`,
	}, e)
	require.False(t, w.Has(WarnScript), "%v", w.Warnings())

	cases := map[string]string{
		"shout":    "HELLO WORLD",
		"ident":    "smith99-article",
		"doiflag":  "no",
		"surnames": "Smith, Jones",
		"nauth":    "2",
		"rawtitle": "Hello world",
	}
	for name, want := range cases {
		got, ok := resolveText(t, s, e, name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestScripts_Errors(t *testing.T) {
	e := scriptEntry()
	s, w := scriptSession(t, true, map[string]string{
		"broken": `upper(`,
		"boom":   `split(entrykey, "-")[5]`,
	}, e)
	assert.True(t, w.Has(WarnScript))

	_, ok := s.ResolveVariable(e, "broken")
	assert.False(t, ok)
	_, ok = s.ResolveVariable(e, "boom")
	assert.False(t, ok)
}

func TestScripts_InTemplate(t *testing.T) {
	e := scriptEntry()
	s, _ := scriptSession(t, true, map[string]string{"shout": `upper(field("title"))`}, e)

	out, ok := s.Substitute("[<shout>|<title>].", e)
	require.True(t, ok)
	assert.Equal(t, "HELLO WORLD.", out)

	// поле записи важнее скрипта с тем же именем
	s, _ = scriptSession(t, true, map[string]string{"title": `"from script"`}, e)
	got, ok := resolveText(t, s, e, "title")
	require.True(t, ok)
	assert.Equal(t, "Hello world", got)
}

func TestScriptValue(t *testing.T) {
	assert.Nil(t, scriptValue(nil))
	assert.Nil(t, scriptValue(false))
	assert.Equal(t, Str("true"), scriptValue(true))
	assert.Equal(t, Str("a, b"), scriptValue([]string{"a", "b"}))
	assert.Equal(t, Str("1, x"), scriptValue([]interface{}{1, "x"}))
	assert.Equal(t, Str("42"), scriptValue(42))
}
