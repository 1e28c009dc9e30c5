package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Коды ошибок
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidCode         = "INVALID_CODE"
	CodeAlreadyAttributed   = "ALREADY_ATTRIBUTED"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeNotificationFailure = "NOTIFICATION_FAILURE"
)

// AppError ошибка приложения с кодом из таксономии
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы работал errors.Is(err, ErrNotFound)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Эталонные ошибки для errors.Is
var (
	ErrValidation          = &AppError{Code: CodeValidation, Message: "некорректные данные"}
	ErrNotFound            = &AppError{Code: CodeNotFound, Message: "не найдено"}
	ErrInvalidCode         = &AppError{Code: CodeInvalidCode, Message: "реферальный код не найден"}
	ErrAlreadyAttributed   = &AppError{Code: CodeAlreadyAttributed, Message: "пользователь уже приглашен"}
	ErrStoreUnavailable    = &AppError{Code: CodeStoreUnavailable, Message: "хранилище недоступно"}
	ErrNotificationFailure = &AppError{Code: CodeNotificationFailure, Message: "ошибка отправки уведомления"}
)

// NewError создает ошибку с кодом
func NewError(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// ValidationError ошибка входных данных
func ValidationError(format string, args ...interface{}) *AppError {
	return NewError(CodeValidation, fmt.Sprintf(format, args...), nil)
}

// NotFoundError отсутствующая сущность
func NotFoundError(format string, args ...interface{}) *AppError {
	return NewError(CodeNotFound, fmt.Sprintf(format, args...), nil)
}

// StoreError оборачивает сбой хранилища
func StoreError(message string, err error) *AppError {
	return NewError(CodeStoreUnavailable, message, err)
}

// ErrorCode возвращает код ошибки или CodeStoreUnavailable для неизвестных ошибок
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeStoreUnavailable
}

// HTTPStatus сопоставляет ошибку с HTTP статусом
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case CodeValidation, CodeInvalidCode:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyAttributed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает сообщение, безопасное для ответа клиенту
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Code == CodeStoreUnavailable {
			return ErrStoreUnavailable.Message
		}
		return appErr.Message
	}
	return ErrStoreUnavailable.Message
}
