package bibtemplar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestInitialize(t *testing.T) {
	withPeriod := initialOptions{period: true}
	assert.Equal(t, "J.-P. M.", initialize("Jean-Paul Marie", withPeriod))
	assert.Equal(t, "{Ed} J.", initialize("{Ed} John", withPeriod))
	assert.Equal(t, "J.", initialize("J.", withPeriod))
	assert.Equal(t, "J", initialize("John", initialOptions{}))
	assert.Equal(t, "Ph. Ch.", initialize("Philippe Charles", initialOptions{period: true, french: true}))
	assert.Equal(t, "JR", initialize("John Ronald", initialOptions{terse: true}))
	assert.Equal(t, "", initialize("", withPeriod))
}

func TestFormatName(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "J. R. Tolkien", formatName(Person{First: "John", Middle: "Ronald", Last: "Tolkien"}, cfg))
	assert.Equal(t, "Tolkien", formatName(Person{Last: "Tolkien"}, cfg))

	cfg.UseNameTies = true
	assert.Equal(t, "J.~R.~R. Tolkien", formatName(Person{First: "John", Middle: "Ronald Reuel", Last: "Tolkien"}, cfg))

	cfg = DefaultConfig()
	cfg.UseFirstnameInitials = false
	assert.Equal(t, "John Smith, Jr.", formatName(Person{First: "John", Last: "Smith", Suffix: "Jr."}, cfg))
	assert.Equal(t, "Ludwig van Beethoven", formatName(Person{First: "Ludwig", Prefix: "van", Last: "Beethoven"}, cfg))

	cfg.NamelistFormat = "last_name_first"
	assert.Equal(t, "van Beethoven, Ludwig", formatName(Person{First: "Ludwig", Prefix: "van", Last: "Beethoven"}, cfg))
	assert.Equal(t, "Smith, John, Jr.", formatName(Person{First: "John", Last: "Smith", Suffix: "Jr."}, cfg))
}

func TestFormatName_Terse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TerseInits = true
	cfg.normalize()
	assert.Equal(t, "JRR Tolkien", formatName(Person{First: "John", Middle: "Ronald Reuel", Last: "Tolkien"}, cfg))
}

func lastNames(ls ...string) Names {
	out := make(Names, len(ls))
	for i, l := range ls {
		out[i] = Person{Last: l}
	}
	return out
}

func TestFormatNameList_Boundaries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAuthors, cfg.MinAuthors = 3, 1

	assert.Equal(t, "", FormatNameList(nil, "author", cfg))
	assert.Equal(t, "Smith", FormatNameList(lastNames("Smith"), "author", cfg))
	assert.Equal(t, "Smith and Jones", FormatNameList(lastNames("Smith", "Jones"), "author", cfg))
	assert.Equal(t, "Smith, Jones, and Lee", FormatNameList(lastNames("Smith", "Jones", "Lee"), "author", cfg))
	assert.Equal(t, `Smith, \textit{et al.}`, FormatNameList(lastNames("Smith", "Jones", "Lee", "Brown"), "author", cfg))

	cfg.MinAuthors = 2
	assert.Equal(t, `Smith, Jones, \textit{et al.}`, FormatNameList(lastNames("Smith", "Jones", "Lee", "Brown"), "author", cfg))
}

func TestFormatNameList_OthersForcesEtAl(t *testing.T) {
	cfg := DefaultConfig()
	names := append(lastNames("Smith"), Person{Last: "others"})
	assert.Equal(t, `Smith, \textit{et al.}`, FormatNameList(names, "author", cfg))
}

func TestFormatNameList_EditorTag(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "Smith, ed.", FormatNameList(lastNames("Smith"), "editor", cfg))
	assert.Equal(t, "Smith and Jones, eds", FormatNameList(lastNames("Smith", "Jones"), "editor", cfg))
}

func TestSentenceCase(t *testing.T) {
	en := language.English
	assert.Equal(t, "Hello world", sentenceCase("hello WORLD", en))
	assert.Equal(t, "The {NASA} mission to mars", sentenceCase("The {NASA} Mission to Mars", en))
	assert.Equal(t, `A \LaTeX{} guide`, sentenceCase(`a \LaTeX{} Guide`, en))
	assert.Equal(t, "", sentenceCase("", en))
}

func TestPurify(t *testing.T) {
	assert.Equal(t, "Knuth", purify(`\textbf{Knuth}`))
	assert.Equal(t, "Smith", purify("{Smith}"))
	assert.Equal(t, "$x^2$ y", purify(`$x^2$ \emph{y}`))
	assert.Equal(t, "S", firstLetter("{Smith}"))
}
