package bibtemplar_test

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nikitaxru/bibtemplar"
)

// EngineSuite — сьют тестов подстановки шаблонов и форматирования списка
type EngineSuite struct {
	suite.Suite
	w *bibtemplar.Warner
}

// SetupTest — свежий канал предупреждений без вывода в лог
func (s *EngineSuite) SetupTest() {
	s.w = bibtemplar.NewWarner(log.New(io.Discard, "", 0))
}

// Runner
func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

// session загружает стиль и открывает сессию над записями
func (s *EngineSuite) session(style string, entries ...*bibtemplar.Entry) *bibtemplar.Session {
	st, err := bibtemplar.ParseStyle(strings.NewReader(style), s.w)
	s.Require().NoError(err, "parse style")
	return bibtemplar.NewEngine(st, s.w).NewSession(bibtemplar.NewDatabase(entries...))
}

func (s *EngineSuite) hasWarning(code bibtemplar.WarnCode, substr string) bool {
	for _, wr := range s.w.Warnings() {
		if wr.Code == code && strings.Contains(wr.Msg, substr) {
			return true
		}
	}
	return false
}

func article(key string) *bibtemplar.Entry {
	return bibtemplar.NewEntry("article", key).
		SetString("title", "Literate Programming").
		SetString("year", "1984")
}

// TestGroupFirstDefinedWins — выбирается первый полностью определённый блок
func (s *EngineSuite) TestGroupFirstDefinedWins() {
	e := article("a")
	sess := s.session("", e)

	out, ok := sess.Substitute("[<subtitle>|<title>]", e)
	s.Require().True(ok)
	s.Assert().Equal("Literate Programming", out)

	out, _ = sess.Substitute("[<title>: <subtitle>|<title>] (<year>)", e)
	s.Assert().Equal("Literate Programming (1984)", out)

	e.SetString("subtitle", "Essays")
	out, _ = sess.Substitute("[<title>: <subtitle>|<title>] (<year>)", e)
	s.Assert().Equal("Literate Programming: Essays (1984)", out)
}

// TestGroupEmptyBlock — пустой блок обрывает перебор и даёт undefstr
func (s *EngineSuite) TestGroupEmptyBlock() {
	e := article("a")
	sess := s.session("", e)

	out, _ := sess.Substitute("[<volume>|]", e)
	s.Assert().Equal("???", out)

	out, _ = sess.Substitute("[<volume>||<year>]", e)
	s.Assert().Equal("???", out, "блок после пустого не рассматривается")

	out, _ = sess.Substitute("[<volume>|<number>]", e)
	s.Assert().Equal("", out, "ни один блок не определён")

	out, _ = sess.Substitute("<volume>", e)
	s.Assert().Equal("???", out)
}

// TestUndefStrOption — undefstr берётся из секции OPTIONS
func (s *EngineSuite) TestUndefStrOption() {
	e := article("a")
	sess := s.session("OPTIONS:\nundefstr = ---\n", e)

	out, _ := sess.Substitute("<volume>, [<number>|]", e)
	s.Assert().Equal("---, ---", out)
}

// TestNestedGroups — вложенная группа должна быть определена вместе с блоком
func (s *EngineSuite) TestNestedGroups() {
	tpl := "[<volume>[, no. <number>]|vol. ?] <year>"

	e := article("a").SetString("volume", "3").SetString("number", "2")
	sess := s.session("", e)
	out, _ := sess.Substitute(tpl, e)
	s.Assert().Equal("3, no. 2 1984", out)

	e2 := article("b")
	sess = s.session("", e2)
	out, _ = sess.Substitute(tpl, e2)
	s.Assert().Equal("vol. ? 1984", out)
}

// TestMalformedTemplates — структурные ошибки дают код и заглушку вместо текста
func (s *EngineSuite) TestMalformedTemplates() {
	cases := map[string]bibtemplar.WarnCode{
		"[<title>":       bibtemplar.WarnUnbalancedGroup,
		"<title":         bibtemplar.WarnUnbalancedGroup,
		"<title>]":       bibtemplar.WarnCloseBeforeOpen,
		"[<a>|<b>]] x":   bibtemplar.WarnCloseBeforeOpen,
		"<bad name!>":    bibtemplar.WarnBadVariable,
		"[[<a>|<b>]|<c>": bibtemplar.WarnUnbalancedGroup,
	}
	for text, code := range cases {
		s.Run(text, func() {
			_, err := bibtemplar.CompileTemplate("t", text)
			var te *bibtemplar.TemplateError
			s.Require().True(errors.As(err, &te), "ожидается TemplateError")
			s.Assert().Equal(code, te.Code)
		})
	}

	e := article("a")
	sess := s.session("", e)
	out, ok := sess.Substitute("[<title>", e)
	s.Assert().True(ok)
	s.Assert().Equal(bibtemplar.MalformedTemplateText, out)
	s.Assert().True(s.w.Has(bibtemplar.WarnUnbalancedGroup))
}

// TestMalformedTemplateInStyle — битый шаблон не мешает остальным типам
func (s *EngineSuite) TestMalformedTemplateInStyle() {
	style := "TEMPLATES:\nbook = <title>]\narticle = <title> (<year>)\n"
	b := bibtemplar.NewEntry("book", "b").SetString("title", "T")
	a := article("a")
	sess := s.session(style, a, b)

	s.Assert().True(s.w.Has(bibtemplar.WarnCloseBeforeOpen))
	s.Assert().Equal(bibtemplar.MalformedTemplateText, sess.FormatEntry("b").Text)
	s.Assert().Equal("Literate Programming (1984)", sess.FormatEntry("a").Text)
}

// TestTitlePunctuation — после ? или ! в заголовке пунктуация шаблона опускается
func (s *EngineSuite) TestTitlePunctuation() {
	tpl := "<title>. <year>"
	cases := map[string]string{
		"Literate Programming": "Literate Programming. 1984",
		"Why Functional?":      "Why Functional? 1984",
		"Go!":                  "Go! 1984",
	}
	for title, want := range cases {
		e := article("a").SetString("title", title)
		sess := s.session("", e)
		out, _ := sess.Substitute(tpl, e)
		s.Assert().Equal(want, out, title)
	}

	// правило касается только полей-заголовков
	e := article("a").SetString("note", "Really?")
	sess := s.session("", e)
	out, _ := sess.Substitute("<note>.", e)
	s.Assert().Equal("Really?.", out)
}

// TestEscapeMarkers — маркеры служебных символов заменяются в готовом тексте
func (s *EngineSuite) TestEscapeMarkers() {
	e := article("a")
	sess := s.session("", e)

	out, _ := sess.Substitute(`{\makeopenbracket}<year>{\makeclosebracket} {\makelessthan}{\makeverticalbar}{\makegreaterthan}`, e)
	s.Assert().Equal("[1984] <|>", out)

	// | вне группы — обычный текст
	out, _ = sess.Substitute("<year> | <year>", e)
	s.Assert().Equal("1984 | 1984", out)
}

// TestNameListBoundary — усечение списка авторов по maxauthors/minauthors
func (s *EngineSuite) TestNameListBoundary() {
	style := "OPTIONS:\nmaxauthors = 3\nminauthors = 1\n"
	tpl := "<authorlist.0.last>, ...{ & }, & <authorlist.N.last>"
	all := []string{"Ann Smith", "Bob Jones", "Cat Lee", "Dan Brown"}

	want := map[int]string{
		1: "Smith",
		2: "Smith & Jones",
		3: "Smith, Jones, & Lee",
		4: `Smith, \textit{et al.}`,
	}
	for n, exp := range want {
		e := bibtemplar.NewEntry("article", "k").SetString("author", strings.Join(all[:n], " and "))
		sess := s.session(style, e)
		out, ok := sess.Substitute(tpl, e)
		s.Require().True(ok, n)
		s.Assert().Equal(exp, out, n)
	}

	// "others" в конце списка тоже означает усечение
	e := bibtemplar.NewEntry("article", "k").SetString("author", "Ann Smith and others")
	sess := s.session(style, e)
	out, _ := sess.Substitute(tpl, e)
	s.Assert().Equal(`Smith, \textit{et al.}`, out)
}

// TestLoopWithoutNames — шаблон с циклом, где не определено ничего, опускается целиком
func (s *EngineSuite) TestLoopWithoutNames() {
	e := bibtemplar.NewEntry("misc", "m")
	sess := s.session("", e)

	out, ok := sess.Substitute("<authorlist.0.last>, ... and <authorlist.N.last>", e)
	s.Assert().False(ok)
	s.Assert().Equal("", out)
}

// TestImplicitSpecialTemplate — au.n задаёт элемент, au собирает список циклом
func (s *EngineSuite) TestImplicitSpecialTemplate() {
	style := `
TEMPLATES:
article = <au>, <title>.

SPECIAL-TEMPLATES:
au.n = <authorlist.n.last>
au = <au.0>, ...{ and }, and <au.N>
`
	three := article("three").SetString("author", "Ann Smith and Bob Jones and Cat Lee")
	two := article("two").SetString("author", "Ann Smith and Bob Jones")
	sess := s.session(style, three, two)

	s.Assert().Equal("Smith, Jones, and Lee, Literate Programming.", sess.FormatEntry("three").Text)
	s.Assert().Equal("Smith and Jones, Literate Programming.", sess.FormatEntry("two").Text)

	v, ok := sess.ResolveVariable(two, "au.1")
	s.Require().True(ok)
	s.Assert().Equal("Jones", v.String())
}

// TestExplicitIndexBeatsImplicit — явный au.0 важнее неявного au.n
func (s *EngineSuite) TestExplicitIndexBeatsImplicit() {
	style := `
TEMPLATES:
article = <au>
SPECIAL-TEMPLATES:
au.n = <authorlist.n.last>
au.0 = <authorlist.0.last.upper>
au = <au.0>, ...{ and }, and <au.N>
`
	e := article("a").SetString("author", "Ann Smith and Bob Jones and Cat Lee")
	sess := s.session(style, e)
	s.Assert().Equal("SMITH, Jones, and Lee", sess.FormatEntry("a").Text)
}

// TestImplicitWithoutIndex — au.n без индекса не определён и даёт предупреждение
func (s *EngineSuite) TestImplicitWithoutIndex() {
	style := "SPECIAL-TEMPLATES:\nau.n = <authorlist.n.last>\n"
	e := article("a").SetString("author", "Ann Smith")
	sess := s.session(style, e)

	_, ok := sess.ResolveVariable(e, "au")
	s.Assert().False(ok)
	s.Assert().True(s.w.Has(bibtemplar.WarnBadVariable))
}

// TestSpecialTemplateChain — к значению специального шаблона применяются операторы
func (s *EngineSuite) TestSpecialTemplateChain() {
	style := "SPECIAL-TEMPLATES:\nvenue = <journal> <volume>\n"
	e := article("a").SetString("journal", "Comput. J.").SetString("volume", "27")
	sess := s.session(style, e)

	out, _ := sess.Substitute("<venue.upper>", e)
	s.Assert().Equal("COMPUT. J. 27", out)

	// неполный специальный шаблон не определён
	e2 := article("b").SetString("journal", "Comput. J.")
	sess = s.session(style, e2)
	out, _ = sess.Substitute("[<venue>|n/a]", e2)
	s.Assert().Equal("n/a", out)
}

// TestSubstituteIdempotent — повторная подстановка даёт тот же результат
func (s *EngineSuite) TestSubstituteIdempotent() {
	e := article("a").SetString("author", "Ann Smith and Bob Jones")
	sess := s.session("", e)
	tpl := "<authorliststr>, [<subtitle>|<title>] (<year>)"

	first, _ := sess.Substitute(tpl, e)
	second, _ := sess.Substitute(tpl, e)
	s.Assert().Equal(first, second)
	s.Assert().Equal("A. Smith and B. Jones, Literate Programming (1984)", first)
}

// TestFormatEntryMissingKey — отсутствующий ключ опускается с предупреждением
func (s *EngineSuite) TestFormatEntryMissingKey() {
	sess := s.session("TEMPLATES:\narticle = <title>\n")

	it := sess.FormatEntry("ghost")
	s.Assert().True(it.Omitted)
	s.Assert().Contains(it.Text, `"ghost" is not in the database`)
	s.Assert().True(s.w.Has(bibtemplar.WarnMissingEntry))
}

// TestFormatEntryMissingTemplate — тип без шаблона: предупреждение с подсказкой
func (s *EngineSuite) TestFormatEntryMissingTemplate() {
	e := bibtemplar.NewEntry("artcle", "typo").SetString("title", "T")
	sess := s.session("TEMPLATES:\narticle = <title>\n", e)

	it := sess.FormatEntry("typo")
	s.Assert().False(it.Omitted)
	s.Assert().Contains(it.Text, `entrytype "artcle" has no template`)
	s.Assert().True(s.hasWarning(bibtemplar.WarnUndefinedTemplate, `"article"`))
}

// TestFormatListSorted — список сортируется по ключу сортировки
func (s *EngineSuite) TestFormatListSorted() {
	style := "TEMPLATES:\narticle = <authorlist.0.last> (<year>)\nOPTIONS:\ncitation_sort = nyt\ncitation_label = alpha\n"
	zed := article("zed").SetString("author", "Zoe Zed")
	abe := article("abe").SetString("author", "Al Abe").SetString("year", "2001")
	sess := s.session(style, zed, abe)

	items := sess.FormatList([]string{"zed", "abe"})
	s.Require().Len(items, 2)
	s.Assert().Equal("abe", items[0].Key)
	s.Assert().Equal("Abe (2001)", items[0].Text)
	s.Assert().Equal("Abe01", items[0].Label)
	s.Assert().Equal("zed", items[1].Key)
	s.Assert().Equal("Zed84", items[1].Label)
	s.Assert().True(items[0].SortKey < items[1].SortKey)
}

// TestFormatAllConcurrent — параллельное форматирование сохраняет порядок цитирования
func (s *EngineSuite) TestFormatAllConcurrent() {
	style := "TEMPLATES:\narticle = [<citenum>] <title>\nOPTIONS:\ncitation_sort = citenum\nworkers = 4\n"
	var entries []*bibtemplar.Entry
	var keys []string
	for i := 1; i <= 20; i++ {
		key := fmt.Sprintf("k%02d", i)
		keys = append(keys, key)
		entries = append(entries, bibtemplar.NewEntry("article", key).SetString("title", "T"+key))
	}
	sess := s.session(style, entries...)

	items := sess.FormatAll(keys)
	s.Require().Len(items, 20)
	for i, it := range items {
		s.Assert().Equal(keys[i], it.Key)
		s.Assert().Equal(fmt.Sprintf("%d T%s", i+1, keys[i]), it.Text)
		s.Assert().Equal(fmt.Sprintf("%02d", i+1), it.SortKey)
	}
}

// TestCrossrefInheritance — недостающие поля берутся из родительской записи
func (s *EngineSuite) TestCrossrefInheritance() {
	style := "TEMPLATES:\ninproceedings = <title>. In <booktitle>, <publisher> (<year>)\n"
	parent := bibtemplar.NewEntry("proceedings", "conf").
		SetString("title", "Proc. of Things").
		SetString("publisher", "ACM").
		SetString("year", "2010")
	child := bibtemplar.NewEntry("inproceedings", "paper").
		SetString("title", "A Paper").
		SetString("crossref", "conf")
	orphan := bibtemplar.NewEntry("inproceedings", "orphan").
		SetString("title", "Lost").
		SetString("crossref", "nowhere")
	sess := s.session(style, parent, child, orphan)

	s.Assert().Equal("A Paper. In Proc. of Things, ACM (2010)", sess.FormatEntry("paper").Text)
	s.Assert().Equal("Lost. In ???, ??? (???)", sess.FormatEntry("orphan").Text)
	s.Assert().True(s.w.Has(bibtemplar.WarnBadCrossref))
}

// TestAliasTemplate — однословный шаблон ссылается на шаблон другого типа
func (s *EngineSuite) TestAliasTemplate() {
	style := "TEMPLATES:\narticle = <title> (<year>)\nmisc = article\n"
	e := bibtemplar.NewEntry("misc", "m").SetString("title", "Note").SetString("year", "2020")
	sess := s.session(style, e)
	s.Assert().Equal("Note (2020)", sess.FormatEntry("m").Text)
}

// TestLoopInGroupFallsThrough — цикл по пустому списку не делает блок группы «пустым»
func (s *EngineSuite) TestLoopInGroupFallsThrough() {
	e := bibtemplar.NewEntry("book", "ed").
		SetString("editor", "Ed Itor").
		SetString("title", "T")
	sess := s.session("", e)

	out, ok := sess.Substitute("[<authorlist.0.last>, ... and <authorlist.N.last>|<editorlist.0.last>], <title>", e)
	s.Require().True(ok)
	s.Assert().Equal("Itor, T", out)

	// без запасного блока группа пуста, а не undefstr
	out, ok = sess.Substitute("[<authorlist.0.last>, ... and <authorlist.N.last>]<title>", e)
	s.Require().True(ok)
	s.Assert().Equal("T", out)

	// явно пустой блок по-прежнему даёт undefstr
	out, _ = sess.Substitute("[<authorlist.0.last>, ... and <authorlist.N.last>|]", e)
	s.Assert().Equal("???", out)
}

// TestUniquifiedLabelStable — метка с uniquify одинакова в Item.Label и в тексте записи
func (s *EngineSuite) TestUniquifiedLabelStable() {
	style := `
TEMPLATES:
article = <citelabel>: <title>
SPECIAL-TEMPLATES:
citelabel = <authorlist.0.last.uniquify()>
`
	a := bibtemplar.NewEntry("article", "a").SetString("author", "Ann Smith").SetString("title", "A")
	b := bibtemplar.NewEntry("article", "b").SetString("author", "Bob Smith").SetString("title", "B")
	sess := s.session(style, a, b)

	items := sess.FormatList([]string{"a", "b"})
	s.Require().Len(items, 2)
	s.Assert().Equal("Smith", items[0].Label)
	s.Assert().Equal("Smith: A", items[0].Text)
	s.Assert().Equal("Smith1", items[1].Label)
	s.Assert().Equal("Smith1: B", items[1].Text)

	for i := 0; i < 2; i++ {
		v, ok := sess.ResolveVariable(a, "citelabel")
		s.Require().True(ok)
		s.Assert().Equal("Smith", v.String())
	}
}
