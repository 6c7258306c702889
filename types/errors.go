package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
)

var (
	ErrStoreKeyEmpty       = errors.New("store key empty")
	ErrStoreNamespaceEmpty = errors.New("store namespace empty")
	ErrStoreTypeUnknown    = errors.New("store type unknown")
	ErrStoreConnection     = errors.New("store connection failed")
	ErrStoreOperation      = errors.New("store operation failed")
)

var (
	ErrElementNotFound   = errors.New("element not found")
	ErrCyclicInclude     = errors.New("cyclic include")
	ErrRouteNotFound     = errors.New("route not found")
	ErrEmptyTemplate     = errors.New("template is empty")
	ErrTemplatingEngine  = errors.New("templating engine failed")
	ErrEngineTypeUnknown = errors.New("templating engine unknown")
	ErrEmptyStack        = errors.New("context stack is empty")
	ErrIntentUnresolved  = errors.New("intent unresolved")
	ErrComponentNotFound = errors.New("component not found")
	ErrComponentExists   = errors.New("component already registered")
	ErrRouteHasNoHandler = errors.New("route has no controller")
	ErrRequestFrozen     = errors.New("request is frozen")
)

var (
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronJobExists         = errors.New("cron job already exists")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronJobTimeout        = errors.New("cron job timeout")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
	ErrCronCacheUnknown      = errors.New("cron job cache unknown")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ElementNotFoundError reports a template element that no component in the
// chain provides.
type ElementNotFoundError struct {
	Element string
	Chain   []string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %s not found in component chain [%s]", e.Element, strings.Join(e.Chain, ", "))
}

func (e *ElementNotFoundError) Unwrap() error {
	return ErrElementNotFound
}

// CyclicIncludeError is returned when include expansion revisits an element
// that is still being expanded.
type CyclicIncludeError struct {
	Path []string
}

func (e *CyclicIncludeError) Error() string {
	return fmt.Sprintf("cyclic include: %s", strings.Join(e.Path, " -> "))
}

func (e *CyclicIncludeError) Unwrap() error {
	return ErrCyclicInclude
}

type RouteNotFoundError struct {
	Route     string
	Available []string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("route %s not defined, we have: %s", e.Route, strings.Join(e.Available, ", "))
}

func (e *RouteNotFoundError) Unwrap() error {
	return ErrRouteNotFound
}

type EmptyTemplateError struct {
	Identifier string
}

func (e *EmptyTemplateError) Error() string {
	return fmt.Sprintf("template from %q is empty", e.Identifier)
}

func (e *EmptyTemplateError) Unwrap() error {
	return ErrEmptyTemplate
}

// TemplatingEngineError wraps a failure of the templating engine with the
// source location it was reported at. Line is zero when unknown.
type TemplatingEngineError struct {
	Engine string
	Source string
	Line   int
	Err    error
}

func (e *TemplatingEngineError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s line %d: %v", e.Engine, e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Engine, e.Source, e.Err)
}

func (e *TemplatingEngineError) Unwrap() []error {
	return []error{ErrTemplatingEngine, e.Err}
}

// BackendError wraps a failed KVStore operation.
type BackendError struct {
	Op        string
	Namespace string
	Key       string
	Err       error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Namespace, e.Err)
	}
	return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Namespace, e.Key, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrStoreOperation, e.Err}
}

func NewBackendError(op, namespace, key string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Namespace: namespace, Key: key, Err: err}
}

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
