package bibtemplar

import (
	"fmt"
	"log"
	"sync"
)

// WarnCode — стабильный номер предупреждения; по нему пользователь может отключать шумные категории.
type WarnCode int

const (
	WarnTemplateOverwrite WarnCode = 9
	WarnMissingEntry      WarnCode = 10
	WarnUndefinedTemplate WarnCode = 11
	WarnUnbalancedGroup   WarnCode = 12
	WarnCloseBeforeOpen   WarnCode = 13
	WarnBadCrossref       WarnCode = 15
	WarnAbbrevNotFound    WarnCode = 16
	WarnNameTypo          WarnCode = 17
	WarnBadVariable       WarnCode = 18
	WarnNameDot           WarnCode = 21
	WarnMalformedName     WarnCode = 22
	WarnTooManyCommas     WarnCode = 23
	WarnBadEdition        WarnCode = 24
	WarnBadPageRange      WarnCode = 25
	WarnScript            WarnCode = 26
	WarnBadLabelStyle     WarnCode = 27
	WarnUnknownOption     WarnCode = 29
	WarnTypeMismatch      WarnCode = 30
	WarnUnknownOperator   WarnCode = 31
	WarnMalformedLoop     WarnCode = 32
	WarnBadArgument       WarnCode = 33
	WarnBadStyleLine      WarnCode = 8
)

// Warning — одно восстановимое отклонение, зафиксированное во время загрузки или подстановки.
type Warning struct {
	Code WarnCode
	Msg  string
}

func (w Warning) String() string {
	return fmt.Sprintf("Warning W%03d: %s", int(w.Code), w.Msg)
}

// Warner — единый канал предупреждений с подавлением по номеру.
// Безопасен для параллельного использования.
type Warner struct {
	mu       sync.Mutex
	logger   *log.Logger
	disabled map[WarnCode]bool
	seen     map[Warning]bool
	list     []Warning
}

// NewWarner создаёт канал; logger == nil означает log.Default().
func NewWarner(logger *log.Logger, disable ...WarnCode) *Warner {
	if logger == nil {
		logger = log.Default()
	}
	w := &Warner{logger: logger, disabled: map[WarnCode]bool{}, seen: map[Warning]bool{}}
	w.Disable(disable...)
	return w
}

func (w *Warner) Disable(codes ...WarnCode) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range codes {
		w.disabled[c] = true
	}
}

// Warn регистрирует предупреждение, если его номер не отключён.
// Повторное одинаковое предупреждение не дублируется.
func (w *Warner) Warn(code WarnCode, format string, args ...interface{}) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disabled[code] {
		return
	}
	wr := Warning{Code: code, Msg: fmt.Sprintf(format, args...)}
	if w.seen[wr] {
		return
	}
	w.seen[wr] = true
	w.list = append(w.list, wr)
	if w.logger != nil {
		w.logger.Printf("⚠️ %s", wr)
	}
}

// Warnings возвращает копию накопленных предупреждений.
func (w *Warner) Warnings() []Warning {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Warning(nil), w.list...)
}

// Has сообщает, было ли зафиксировано предупреждение с данным номером.
func (w *Warner) Has(code WarnCode) bool {
	for _, wr := range w.Warnings() {
		if wr.Code == code {
			return true
		}
	}
	return false
}
