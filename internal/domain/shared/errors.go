// Package shared содержит общие для доменов типы: ошибки, события,
// идентификаторы и пагинацию. Внешних зависимостей у пакета нет.
package shared

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Конкретные ошибки доменов ссылаются на них через
// DomainError.Kind, поэтому errors.Is(err, ErrNotFound) работает для любой
// ошибки «не найдено».
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("empty value")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrStateTransition = errors.New("state transition not allowed")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrConcurrentModification = errors.New("concurrent modification")

	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timeout")
)

// Kind - класс ошибки, по которому внешние слои выбирают реакцию
// (HTTP-статус, повтор, уровень логирования).
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalid
	KindForbidden
	KindUnauthorized
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalid:
		return "validation_error"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// kinds проверяется по порядку: первое совпадение определяет класс.
var kinds = []struct {
	base error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrUnauthorized, KindUnauthorized},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrValidation, KindInvalid},
	{ErrInvalidID, KindInvalid},
	{ErrInvalidInput, KindInvalid},
	{ErrEmptyValue, KindInvalid},
	{ErrValueOutOfRange, KindInvalid},
	{ErrInvalidFormat, KindInvalid},
	{ErrInvalidEntity, KindInvalid},
	{ErrConcurrentModification, KindConflict},
	{ErrStateTransition, KindConflict},
	{ErrServiceUnavailable, KindUnavailable},
	{ErrTimeout, KindUnavailable},
}

// KindOf классифицирует ошибку. Неизвестные ошибки - KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.base) {
			return k.kind
		}
	}
	return KindInternal
}

func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsAlreadyExists(err error) bool { return KindOf(err) == KindAlreadyExists }
func IsValidation(err error) bool    { return KindOf(err) == KindInvalid }
func IsForbidden(err error) bool     { return KindOf(err) == KindForbidden }
func IsConflict(err error) bool      { return KindOf(err) == KindConflict }

// IsRetryable: повтор имеет смысл после гонки за блокировку или сбоя хранилища.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || KindOf(err) == KindUnavailable
}

// DomainError - ошибка с контекстом: где случилась (Domain.Op), к какому
// виду относится (Kind) и что показать пользователю (Message).
// Err - исходная причина, она в Message не попадает.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	s := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

// Unwrap отдаёт и вид, и причину, так что errors.Is видит обе цепочки.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError добавляет контекст к причине err. errors.Is(result, err) остаётся истинным.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// PublicMessage - текст для клиента: сообщение внешней доменной ошибки,
// без подробностей инфраструктуры.
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// Курсы
var (
	ErrCourseNotFound     = NewDomainError("course", "Find", ErrNotFound, "course not found")
	ErrModuleNotFound     = NewDomainError("course", "FindModule", ErrNotFound, "module not found")
	ErrInvalidCourse      = NewDomainError("course", "Validate", ErrInvalidEntity, "invalid course structure")
	ErrCourseNotPublished = NewDomainError("course", "Enroll", ErrForbidden, "course is not published")
)

// Записи на курс
var (
	ErrEnrollmentNotFound  = NewDomainError("enrollment", "Find", ErrNotFound, "enrollment not found")
	ErrEnrollmentExists    = NewDomainError("enrollment", "Create", ErrAlreadyExists, "enrollment already exists")
	ErrInvalidStatus       = NewDomainError("enrollment", "SetStatus", ErrStateTransition, "invalid enrollment status")
	ErrItemIndexOutOfRange = NewDomainError("enrollment", "TogglePracticeItem", ErrValueOutOfRange, "item index out of range")
	ErrInvalidItemType     = NewDomainError("enrollment", "TogglePracticeItem", ErrInvalidInput, "item type must be exercise or activity")
	ErrInvalidPercentage   = NewDomainError("enrollment", "Override", ErrValueOutOfRange, "percentage must be between 0 and 100")
	ErrLockNotAcquired     = NewDomainError("enrollment", "Lock", ErrConcurrentModification, "enrollment is being modified by another request")
)

// Тесты
var (
	ErrModuleHasNoQuiz     = NewDomainError("quiz", "Grade", ErrValidation, "module has no quiz")
	ErrAnswerCountMismatch = NewDomainError("quiz", "Grade", ErrValidation, "answer count does not match question count")
	ErrInvalidAnswer       = NewDomainError("quiz", "ParseAnswers", ErrInvalidFormat, "answer is not an integer option index")
)

// Сертификаты
var (
	ErrCertificateNotFound     = NewDomainError("certificate", "Find", ErrNotFound, "certificate not found")
	ErrCertificateCodeMismatch = NewDomainError("certificate", "Verify", ErrInvalidInput, "verification code does not match")
)
