package bibtemplar

import (
	"errors"
	"fmt"
)

var (
	ErrUnbalanced      = errors.New("несбалансированные разделители")
	ErrNotList         = errors.New("индекс применён не к списку")
	ErrNotMap          = errors.New("ключ применён не к словарю")
	ErrUnknownOperator = errors.New("неизвестный оператор")
	ErrBadArgument     = errors.New("некорректный аргумент оператора")
	ErrImplicitIndex   = errors.New("неявный индекс n вне шаблона-цикла")
)

// MalformedTemplateText подставляется вместо шаблона, не прошедшего проверку при загрузке.
const MalformedTemplateText = `\textit{Error: malformed template}`

// TemplateError — структурная ошибка шаблона, обнаруженная при загрузке.
type TemplateError struct {
	Name string
	Pos  int
	Msg  string
	Code WarnCode
}

func (e *TemplateError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("шаблон %q, позиция %d: %s", e.Name, e.Pos, e.Msg)
	}
	return fmt.Sprintf("позиция %d: %s", e.Pos, e.Msg)
}

// OperatorError — ошибка применения оператора из цепочки.
type OperatorError struct {
	Op  string
	Err error
}

func (e *OperatorError) Error() string {
	return fmt.Sprintf("оператор %s: %v", e.Op, e.Err)
}

func (e *OperatorError) Unwrap() error { return e.Err }

func opErr(op string, err error, format string, args ...interface{}) error {
	if format == "" {
		return &OperatorError{Op: op, Err: err}
	}
	return &OperatorError{Op: op, Err: fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))}
}
