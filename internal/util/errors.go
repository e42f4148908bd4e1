package util

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailRegistered  = errors.New("该邮箱已被注册")
	ErrSessionNotFound  = errors.New("interview session not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrNoSlotsAvailable = errors.New("no slots available for this session")
	ErrAlreadyBooked    = errors.New("already booked for this session")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrAccessDenied     = errors.New("access denied")
	ErrInvalidState     = errors.New("operation not valid in current state")
	ErrSessionClosed    = errors.New("session is completed or cancelled")
	ErrFeedbackExists   = errors.New("feedback already submitted for this booking")
	ErrDependency       = errors.New("dependency call failed")
)

// ValidationError 逐字段校验错误，Fields 列出所有不合法的字段
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

// NewValidationError 构造校验错误，fields 为字段名加原因的短描述
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// InvalidStateError 状态机拒绝的转换，携带当前状态方便调用方提示
type InvalidStateError struct {
	Entity  string
	Current string
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s cannot %s while %s", e.Entity, e.Op, e.Current)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}
