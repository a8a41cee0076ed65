package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// 错误码，覆盖记录存储与权限网关的失败分类
const (
	CodeUnknown = iota
	CodeUnsupportedCapability
	CodePermissionDenied
	CodeTimeout
	CodeUnavailable
	CodeStoreNotInitialized
	CodeRecordNotFound
	CodeUnderlyingStoreFailure
	CodeInvalidArgument
	CodeBusy
	CodePreconditionFailed
)

var codeNames = map[int]string{
	CodeUnknown:                "Unknown",
	CodeUnsupportedCapability:  "UnsupportedCapability",
	CodePermissionDenied:       "PermissionDenied",
	CodeTimeout:                "Timeout",
	CodeUnavailable:            "Unavailable",
	CodeStoreNotInitialized:    "StoreNotInitialized",
	CodeRecordNotFound:         "RecordNotFound",
	CodeUnderlyingStoreFailure: "UnderlyingStoreFailure",
	CodeInvalidArgument:        "InvalidArgument",
	CodeBusy:                   "Busy",
	CodePreconditionFailed:     "PreconditionFailed",
}

// CodeName returns the taxonomy name for a code.
func CodeName(code int) string {
	if n, ok := codeNames[code]; ok {
		return n
	}
	return codeNames[CodeUnknown]
}

var (
	ErrStoreNotInitialized = &Error{Code: CodeStoreNotInitialized, Message: "Database not initialized"}
	ErrRecordNotFound      = &Error{Code: CodeRecordNotFound, Message: "Record not found"}
)

// Error represents a custom error with stack trace
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"` // 原始错误，不序列化
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same non-zero code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	if e.Code != CodeUnknown && e.Code == t.Code {
		return true
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// Wrap wraps an error with message
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    GetCode(err),
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// WrapCode wraps an error and tags it with a taxonomy code.
func WrapCode(err error, code int, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// New creates a new error
func New(message string) *Error {
	return &Error{
		Message: message,
		Stack:   captureStack(),
	}
}

// Errorf creates a new formatted error
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// WithContext adds context to an error
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}

	// 创建新的错误实例以避免修改原始错误
	newErr := &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Stack:   e.Stack,
		Context: make([]KeyValue, len(e.Context)),
	}
	copy(newErr.Context, e.Context)
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})

	return newErr
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// 移除顶部几行（captureStack 和构造函数本身）
	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}

	return strings.TrimSpace(stack)
}

// GetCode returns the first taxonomy code found in the error chain
func GetCode(err error) int {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return CodeUnknown
		}
		if e.Code != CodeUnknown {
			return e.Code
		}
		err = e.Err
	}
	return CodeUnknown
}

// GetMessage returns the error message
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// GetStack returns the error stack trace
func GetStack(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stack
	}
	return ""
}

// Is checks if the error chain contains the target error
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code int) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
