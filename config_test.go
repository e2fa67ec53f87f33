package bibtemplar

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestConfig_Set(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Set("MaxAuthors", " 3 "))
	require.NoError(t, c.Set("use_name_ties", "True"))
	require.NoError(t, c.Set("title_fields", "title, booktitle"))
	require.NoError(t, c.Set("undefstr", "--"))
	assert.Equal(t, 3, c.MaxAuthors)
	assert.True(t, c.UseNameTies)
	assert.Equal(t, []string{"title", "booktitle"}, c.TitleFields)
	assert.Equal(t, "--", c.UndefStr)

	err := c.Set("maxauthor", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxauthors")

	assert.Error(t, c.Set("maxauthors", "many"))
	assert.Error(t, c.Set("sort_case", "maybe"))
}

func TestConfig_CloneIsDeep(t *testing.T) {
	c := DefaultConfig()
	cp := c.Clone()
	cp.TitleFields[0] = "changed"
	cp.MonthNames[0] = "Janvier"
	assert.Equal(t, "title", c.TitleFields[0])
	assert.Equal(t, "January", c.MonthNames[0])
}

func TestConfig_Normalize(t *testing.T) {
	c := DefaultConfig()
	c.TerseInits = true
	c.MonthNames = []string{"only one"}
	c.Workers = 0
	c.NameSeparator = ""
	c.normalize()
	assert.False(t, c.PeriodAfterInitial)
	assert.Len(t, c.MonthNames, 12)
	assert.Equal(t, 1, c.Workers)
	assert.Equal(t, "and", c.NameSeparator)
}

func TestConfig_LimitsAndTag(t *testing.T) {
	c := DefaultConfig()
	c.MaxEditors, c.MinEditors = 2, 1
	maxN, minN := c.NameLimits("editorlist")
	assert.Equal(t, 2, maxN)
	assert.Equal(t, 1, minN)
	maxN, _ = c.NameLimits("authorlist")
	assert.Equal(t, 100, maxN)

	c.Locale = "not a locale!"
	assert.Equal(t, language.English, c.Tag())
	c.Locale = "tr"
	assert.Equal(t, language.Turkish, c.Tag())
}

func TestWarner_DisableAndDedupe(t *testing.T) {
	var buf bytes.Buffer
	w := NewWarner(log.New(&buf, "", 0), WarnNameTypo)

	w.Warn(WarnNameTypo, "скрыто")
	w.Warn(WarnTypeMismatch, "запись %q", "k")
	w.Warn(WarnTypeMismatch, "запись %q", "k")

	require.Len(t, w.Warnings(), 1)
	assert.Equal(t, WarnTypeMismatch, w.Warnings()[0].Code)
	assert.Contains(t, buf.String(), "Warning W030")
	assert.NotContains(t, buf.String(), "скрыто")
	assert.False(t, w.Has(WarnNameTypo))

	var nilWarner *Warner
	nilWarner.Warn(WarnTypeMismatch, "ничего не происходит")
	assert.Nil(t, nilWarner.Warnings())
}
