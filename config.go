package bibtemplar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/language"
)

// Config — параметры форматирования. Значения по умолчанию берутся из DefaultConfig,
// затем переопределяются секцией OPTIONS файла стиля или YAML.
type Config struct {
	UndefStr       string `yaml:"undefstr"`
	NamelistFormat string `yaml:"namelist_format"` // first_name_first | last_name_first
	CitationSort   string `yaml:"citation_sort"`
	CitationLabel  string `yaml:"citation_label"`

	MaxAuthors int `yaml:"maxauthors"`
	MinAuthors int `yaml:"minauthors"`
	MaxEditors int `yaml:"maxeditors"`
	MinEditors int `yaml:"mineditors"`

	UseFirstnameInitials bool `yaml:"use_firstname_initials"`
	UseNameTies          bool `yaml:"use_name_ties"`
	FrenchInitials       bool `yaml:"french_initials"`
	PeriodAfterInitial   bool `yaml:"period_after_initial"`
	TerseInits           bool `yaml:"terse_inits"`

	ForceSentenceCase       bool `yaml:"force_sentence_case"`
	MonthAbbrev             bool `yaml:"month_abbrev"`
	SortCase                bool `yaml:"sort_case"`
	SortWithPrefix          bool `yaml:"sort_with_prefix"`
	AllowScripts            bool `yaml:"allow_scripts"`
	CaseSensitiveFieldNames bool `yaml:"case_sensitive_field_names"`

	NameSeparator     string   `yaml:"name_separator"`
	EtalMessage       string   `yaml:"etal_message"`
	EditorTagSingular string   `yaml:"editor_tag_singular"`
	EditorTagPlural   string   `yaml:"editor_tag_plural"`
	TitleFields       []string `yaml:"title_fields"`
	Locale            string   `yaml:"locale"`
	MonthNames        []string `yaml:"month_names"`
	MonthAbbrevs      []string `yaml:"month_abbrevs"`
	Workers           int      `yaml:"workers"`
	Disable           []int    `yaml:"disable"`
}

var (
	defaultMonthNames = []string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}
	defaultMonthAbbrevs = []string{"Jan.", "Feb.", "Mar.", "Apr.", "May", "Jun.",
		"Jul.", "Aug.", "Sep.", "Oct.", "Nov.", "Dec."}
)

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		UndefStr:             "???",
		NamelistFormat:       "first_name_first",
		CitationSort:         "citenum",
		CitationLabel:        "citekey",
		MaxAuthors:           100,
		MinAuthors:           5,
		MaxEditors:           100,
		MinEditors:           5,
		UseFirstnameInitials: true,
		PeriodAfterInitial:   true,
		SortCase:             true,
		MonthAbbrev:          true,
		NameSeparator:        "and",
		EtalMessage:          `, \textit{et al.}`,
		EditorTagSingular:    ", ed.",
		EditorTagPlural:      ", eds",
		TitleFields:          []string{"title"},
		Locale:               "en",
		MonthNames:           append([]string(nil), defaultMonthNames...),
		MonthAbbrevs:         append([]string(nil), defaultMonthAbbrevs...),
		Workers:              4,
	}
}

// Clone — глубокая копия (срезы копируются).
func (c *Config) Clone() *Config {
	cp := *c
	cp.TitleFields = append([]string(nil), c.TitleFields...)
	cp.MonthNames = append([]string(nil), c.MonthNames...)
	cp.MonthAbbrevs = append([]string(nil), c.MonthAbbrevs...)
	cp.Disable = append([]int(nil), c.Disable...)
	return &cp
}

// normalize применяет зависимости между опциями и заполняет пропуски.
func (c *Config) normalize() {
	if c.TerseInits {
		c.PeriodAfterInitial = false
	}
	if len(c.MonthNames) != 12 {
		c.MonthNames = append([]string(nil), defaultMonthNames...)
	}
	if len(c.MonthAbbrevs) != 12 {
		c.MonthAbbrevs = append([]string(nil), defaultMonthAbbrevs...)
	}
	if c.NameSeparator == "" {
		c.NameSeparator = "and"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
}

// Tag — языковой тег для регистровых преобразований.
func (c *Config) Tag() language.Tag {
	if t, err := language.Parse(c.Locale); err == nil {
		return t
	}
	return language.English
}

// NameLimits возвращает (max, min) для роли author|editor.
func (c *Config) NameLimits(role string) (int, int) {
	if strings.Contains(role, "editor") {
		return c.MaxEditors, c.MinEditors
	}
	return c.MaxAuthors, c.MinAuthors
}

// DisabledCodes — номера отключённых предупреждений.
func (c *Config) DisabledCodes() []WarnCode {
	out := make([]WarnCode, len(c.Disable))
	for i, d := range c.Disable {
		out[i] = WarnCode(d)
	}
	return out
}

type optionSetter func(c *Config, v string) error

func setString(dst func(c *Config) *string) optionSetter {
	return func(c *Config, v string) error { *dst(c) = v; return nil }
}

func setInt(dst func(c *Config) *int) optionSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ожидается целое: %w", err)
		}
		*dst(c) = n
		return nil
	}
}

func setBool(dst func(c *Config) *bool) optionSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ожидается True/False: %w", err)
		}
		*dst(c) = b
		return nil
	}
}

func setList(dst func(c *Config) *[]string) optionSetter {
	return func(c *Config, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst(c) = out
		return nil
	}
}

var optionSetters = map[string]optionSetter{
	"undefstr":                   setString(func(c *Config) *string { return &c.UndefStr }),
	"namelist_format":            setString(func(c *Config) *string { return &c.NamelistFormat }),
	"citation_sort":              setString(func(c *Config) *string { return &c.CitationSort }),
	"citation_label":             setString(func(c *Config) *string { return &c.CitationLabel }),
	"name_separator":             setString(func(c *Config) *string { return &c.NameSeparator }),
	"etal_message":               setString(func(c *Config) *string { return &c.EtalMessage }),
	"editor_tag_singular":        setString(func(c *Config) *string { return &c.EditorTagSingular }),
	"editor_tag_plural":          setString(func(c *Config) *string { return &c.EditorTagPlural }),
	"locale":                     setString(func(c *Config) *string { return &c.Locale }),
	"maxauthors":                 setInt(func(c *Config) *int { return &c.MaxAuthors }),
	"minauthors":                 setInt(func(c *Config) *int { return &c.MinAuthors }),
	"maxeditors":                 setInt(func(c *Config) *int { return &c.MaxEditors }),
	"mineditors":                 setInt(func(c *Config) *int { return &c.MinEditors }),
	"workers":                    setInt(func(c *Config) *int { return &c.Workers }),
	"use_firstname_initials":     setBool(func(c *Config) *bool { return &c.UseFirstnameInitials }),
	"use_name_ties":              setBool(func(c *Config) *bool { return &c.UseNameTies }),
	"french_initials":            setBool(func(c *Config) *bool { return &c.FrenchInitials }),
	"period_after_initial":       setBool(func(c *Config) *bool { return &c.PeriodAfterInitial }),
	"terse_inits":                setBool(func(c *Config) *bool { return &c.TerseInits }),
	"force_sentence_case":        setBool(func(c *Config) *bool { return &c.ForceSentenceCase }),
	"month_abbrev":               setBool(func(c *Config) *bool { return &c.MonthAbbrev }),
	"sort_case":                  setBool(func(c *Config) *bool { return &c.SortCase }),
	"sort_with_prefix":           setBool(func(c *Config) *bool { return &c.SortWithPrefix }),
	"allow_scripts":              setBool(func(c *Config) *bool { return &c.AllowScripts }),
	"case_sensitive_field_names": setBool(func(c *Config) *bool { return &c.CaseSensitiveFieldNames }),
	"title_fields":               setList(func(c *Config) *[]string { return &c.TitleFields }),
	"month_names":                setList(func(c *Config) *[]string { return &c.MonthNames }),
	"month_abbrevs":              setList(func(c *Config) *[]string { return &c.MonthAbbrevs }),
}

// Set устанавливает опцию по имени из строкового значения (формат секции OPTIONS).
func (c *Config) Set(name, value string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	setter, ok := optionSetters[name]
	if !ok {
		if hint := closestMatch(name, optionNames()); hint != "" {
			return fmt.Errorf("неизвестная опция %q (возможно, %q)", name, hint)
		}
		return fmt.Errorf("неизвестная опция %q", name)
	}
	if err := setter(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("опция %s: %w", name, err)
	}
	return nil
}

func optionNames() []string {
	names := make([]string, 0, len(optionSetters))
	for k := range optionSetters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// closestMatch подбирает ближайшее известное имя для подсказки "возможно, вы имели в виду".
func closestMatch(target string, candidates []string) string {
	if len(candidates) == 0 || target == "" {
		return ""
	}
	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	// короткие опечатки fuzzy не находит как подпоследовательность — пробуем наоборот
	for _, c := range candidates {
		if fuzzy.MatchFold(c, target) {
			return c
		}
	}
	return ""
}
