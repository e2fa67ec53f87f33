package bibtemplar

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// XLSXSheet — лист, на который пишется список литературы.
const XLSXSheet = "Sheet1"

var xlsxHeader = []interface{}{"Key", "Label", "Sort key", "Reference", "Plain text"}

// rxTexCommand — команды оформления вида \textit{ (сама команда убирается, скобки — ниже).
var rxTexCommand = regexp.MustCompile(`\\[A-Za-z]+\s*\{`)

// plainText упрощает разметку LaTeX для ячейки: убирает команды оформления и скобки,
// неразрывный пробел ~ заменяет обычным.
func plainText(s string) string {
	s = rxTexCommand.ReplaceAllString(s, "{")
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\\' && i+1 < len(s) && strings.IndexByte("{}~&%$#_", s[i+1]) >= 0 {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		switch ch {
		case '{', '}':
			continue
		case '~':
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// itemRow нормализует элемент перед записью в Excel.
func itemRow(it Item) []interface{} {
	return []interface{}{it.Key, it.Label, it.SortKey, it.Text, plainText(it.Text)}
}

// WriteXLSX сохраняет отформатированный список в XLSX: строка заголовка и по строке на запись.
// Опущенные записи (Omitted) не выводятся.
func WriteXLSX(destPath string, items []Item) error {
	log.Printf("📊 Начинаем запись списка литературы в Excel...")
	log.Printf("📄 Выходной файл: %s", destPath)
	log.Printf("📝 Количество записей: %d", len(items))

	startTime := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(XLSXSheet, "A1", &xlsxHeader); err != nil {
		log.Printf("❌ Ошибка записи заголовка: %v", err)
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(XLSXSheet, "A1", "E1", bold); err != nil {
		return err
	}

	row := 2
	skipped := 0
	for _, it := range items {
		if it.Omitted {
			skipped++
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := itemRow(it)
		if err := f.SetSheetRow(XLSXSheet, cell, &values); err != nil {
			log.Printf("❌ Ошибка записи строки %d: %v", row, err)
			return fmt.Errorf("строка %d (%s): %w", row, it.Key, err)
		}
		row++
	}
	if skipped > 0 {
		log.Printf("⚠️ Пропущено неопределённых записей: %d", skipped)
	}
	if err := f.SetColWidth(XLSXSheet, "D", "E", 80); err != nil {
		return err
	}

	log.Printf("💾 Сохранение файла...")
	if err := f.SaveAs(destPath); err != nil {
		log.Printf("❌ Ошибка сохранения: %v", err)
		return err
	}

	duration := time.Since(startTime)
	log.Printf("✅ Excel файл создан за %v", duration)
	log.Printf("📄 Результат сохранен в: %s", destPath)
	return nil
}
