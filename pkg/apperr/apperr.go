/*
Package apperr - Uygulama genelinde hata sınıflandırması

Her iş kuralı ihlali bir Kind taşır. HTTP katmanı bu Kind'a bakarak
durum kodunu seçer; Kind taşımayan hatalar 500 olarak döner.

	if apperr.Is(err, apperr.InsufficientBalance) { ... }
*/
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind string

const (
	NotFound            Kind = "not_found"
	Inactive            Kind = "inactive"
	Expired             Kind = "expired"
	UsageExceeded       Kind = "usage_exceeded"
	NotApplicable       Kind = "not_applicable"
	InsufficientBalance Kind = "insufficient_balance"
	InvalidSignature    Kind = "invalid_signature"
	NotConfigured       Kind = "not_configured"
	DuplicateReferral   Kind = "duplicate_referral"
	SelfReferral        Kind = "self_referral"
	ProviderError       Kind = "provider_error"
	Invalid             Kind = "invalid"
	Conflict            Kind = "conflict"
	Internal            Kind = "internal"
)

// Error - Kind + kullanıcıya gösterilecek mesaj + (varsa) alttaki hata
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf - zincirdeki ilk *Error'un Kind'ını döner, yoksa Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Message - kullanıcıya gösterilebilecek mesaj. İç hatalar sızdırılmaz.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Beklenmeyen bir hata oluştu"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Inactive, Expired, UsageExceeded, NotApplicable, Invalid:
		return http.StatusBadRequest
	case InsufficientBalance:
		return http.StatusPaymentRequired
	case InvalidSignature:
		return http.StatusUnauthorized
	case NotConfigured:
		return http.StatusServiceUnavailable
	case DuplicateReferral, SelfReferral, Conflict:
		return http.StatusConflict
	case ProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
