package domain

import (
	"errors"
	"fmt"
)

type StorageError struct {
	Type    ErrorType
	Key     string
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	switch e.Type {
	case ErrKeyNotFound:
		return ErrNotFound
	case ErrStoreClosed:
		return ErrClosed
	}
	return e.Err
}

type ErrorType int

const (
	ErrKeyNotFound ErrorType = iota
	ErrVersionMismatch
	ErrCorrupted
	ErrStoreClosed
	ErrStoreUnavailable
)

func NewKeyNotFoundError(key string) *StorageError {
	return &StorageError{
		Type:    ErrKeyNotFound,
		Key:     key,
		Message: "key not found: " + key,
	}
}

func NewVersionMismatchError(key string, expected, actual int64) *StorageError {
	return &StorageError{
		Type:    ErrVersionMismatch,
		Key:     key,
		Message: fmt.Sprintf("version mismatch for key %s: expected %d, got %d", key, expected, actual),
	}
}

var (
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrTimeout        = errors.New("operation timeout")
	ErrInvalidInput   = errors.New("invalid input")
	ErrClosed         = errors.New("closed")
)

// ErrorKind is the taxonomy shared by local and remote execution paths.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindConfiguration
	KindExecution
	KindStructural
	KindLoad
	KindTransport
	KindCancelled
	KindUseAsync
	KindNotFound
	KindInvalidState
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrExecution     = errors.New("execution error")
	ErrStructural    = errors.New("structural error")
	ErrLoad          = errors.New("load error")
	ErrTransport     = errors.New("transport error")
	ErrCancelled     = errors.New("cancelled")
	ErrUseAsync      = errors.New("Please use the async method instead.")
	ErrInvalidState  = errors.New("invalid state")
	ErrInternal      = errors.New("internal error")
)

var kindSentinels = map[ErrorKind]error{
	KindInternal:      ErrInternal,
	KindConfiguration: ErrConfiguration,
	KindExecution:     ErrExecution,
	KindStructural:    ErrStructural,
	KindLoad:          ErrLoad,
	KindTransport:     ErrTransport,
	KindCancelled:     ErrCancelled,
	KindUseAsync:      ErrUseAsync,
	KindNotFound:      ErrNotFound,
	KindInvalidState:  ErrInvalidState,
}

var kindNames = map[ErrorKind]string{
	KindInternal:      "internal",
	KindConfiguration: "configuration",
	KindExecution:     "execution",
	KindStructural:    "structural",
	KindLoad:          "load",
	KindTransport:     "transport",
	KindCancelled:     "cancelled",
	KindUseAsync:      "use_async",
	KindNotFound:      "not_found",
	KindInvalidState:  "invalid_state",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func ParseErrorKind(s string) ErrorKind {
	for kind, name := range kindNames {
		if name == s {
			return kind
		}
	}
	return KindInternal
}

// Error is the engine's typed error. Errors of the same Kind match each
// other's sentinel through errors.Is regardless of where they were raised.
type Error struct {
	Kind    ErrorKind
	Op      string
	NodeID  NodeID
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.NodeID != "" {
		msg = fmt.Sprintf("node %s: %s", e.NodeID, msg)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func (e *Error) WithNode(id NodeID) *Error {
	e.NodeID = id
	return e
}

func NewConfigurationError(op, message string, cause error) *Error {
	return newError(KindConfiguration, op, message, cause)
}

func NewExecutionError(op, message string, cause error) *Error {
	return newError(KindExecution, op, message, cause)
}

func NewStructuralError(op, message string, cause error) *Error {
	return newError(KindStructural, op, message, cause)
}

func NewLoadError(op, message string, cause error) *Error {
	return newError(KindLoad, op, message, cause)
}

func NewTransportError(op, message string, cause error) *Error {
	return newError(KindTransport, op, message, cause)
}

func NewCancelledError(op, message string, cause error) *Error {
	return newError(KindCancelled, op, message, cause)
}

func NewUseAsyncError(op string) *Error {
	return newError(KindUseAsync, op, ErrUseAsync.Error(), nil)
}

func NewNotFoundError(op, message string) *Error {
	return newError(KindNotFound, op, message, nil)
}

func NewInvalidStateError(op, message string) *Error {
	return newError(KindInvalidState, op, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal
// when there is none.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindCancelled
	}
	return KindInternal
}

func IsAlreadyStarted(err error) bool {
	return errors.Is(err, ErrAlreadyStarted)
}

func IsNotStarted(err error) bool {
	return errors.Is(err, ErrNotStarted)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsStructural(err error) bool {
	return errors.Is(err, ErrStructural)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func IsUseAsync(err error) bool {
	return errors.Is(err, ErrUseAsync)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsLoad(err error) bool {
	return errors.Is(err, ErrLoad)
}
