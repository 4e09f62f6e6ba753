// Package errors provides categorized errors with a fluent builder.
//
// Errors carry a component, a category and free-form context. The category
// drives the HTTP status returned by the API layer and decides whether the
// error is forwarded to the error reporter.
//
//	return errors.Newf("unknown priority %q", p).
//		Component("alerting").
//		Category(errors.CategoryValidation).
//		Context("field", "priority").
//		Build()
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"
	"sync/atomic"
	"time"
)

// Category classifies an error for status mapping and reporting.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryNotFound       Category = "not-found"
	CategoryAuthentication Category = "authentication"
	CategoryRateLimit      Category = "rate-limit"
	CategoryInternal       Category = "internal"
	CategoryDatabase       Category = "database"
	CategoryNetwork        Category = "network"
	CategoryConfiguration  Category = "configuration"
)

// EnhancedError is an error enriched with component, category and context.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
	timestamp time.Time
}

func (e *EnhancedError) Error() string { return e.Err.Error() }

func (e *EnhancedError) Unwrap() error { return e.Err }

// GetComponent returns the component that raised the error.
func (e *EnhancedError) GetComponent() string { return e.component }

// GetCategory returns the error category.
func (e *EnhancedError) GetCategory() Category { return e.category }

// GetContext returns a copy of the error context.
func (e *EnhancedError) GetContext() map[string]any {
	return maps.Clone(e.context)
}

// GetTimestamp returns when the error was built.
func (e *EnhancedError) GetTimestamp() time.Time { return e.timestamp }

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New starts a builder wrapping err.
func New(err error) *ErrorBuilder {
	if err == nil {
		err = stderrors.New("unknown error")
	}
	return &ErrorBuilder{err: err, category: CategoryInternal}
}

// Newf starts a builder from a formatted message. %w verbs wrap as usual.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the originating component.
func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.component = name
	return b
}

// Category sets the error category.
func (b *ErrorBuilder) Category(c Category) *ErrorBuilder {
	b.category = c
	return b
}

// Context adds a key/value to the error context.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error and hands reportable categories to the reporter.
func (b *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
		timestamp: time.Now(),
	}
	if shouldReport(ee.category) {
		if r := reporter.Load(); r != nil {
			(*r)(ee)
		}
	}
	return ee
}

// Reporter receives built errors of reportable categories.
type Reporter func(ee *EnhancedError)

var reporter atomic.Pointer[Reporter]

// SetReporter installs the hook that forwards internal errors to telemetry.
// Pass nil to disable reporting.
func SetReporter(r Reporter) {
	if r == nil {
		reporter.Store(nil)
		return
	}
	reporter.Store(&r)
}

func shouldReport(c Category) bool {
	return c == CategoryInternal || c == CategoryDatabase
}

// CategoryOf returns the category of the first EnhancedError in err's chain,
// or CategoryInternal when there is none.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if As(err, &ee) {
		return ee.category
	}
	return CategoryInternal
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, c Category) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.category == c
}

// HTTPStatus maps an error to the response status the API returns for it.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryAuthentication:
		return http.StatusUnauthorized
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Standard library passthroughs so callers need a single errors import.

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// NewStd creates a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }
