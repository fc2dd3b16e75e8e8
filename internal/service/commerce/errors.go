package commerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nkiryanov/storefront/internal/apperrors"
)

type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindRateLimited       ErrorKind = "rate_limited"
	KindServer            ErrorKind = "server"
	KindTransport         ErrorKind = "transport"
	KindUnknown           ErrorKind = "unknown"
)

const (
	defaultRetryAfter = 60 * time.Second
	maxMessageLen     = 200
)

// APIError is every failure of a commerce API call, whatever shape the server used for it
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Fields     map[string][]string
	RetryAfter time.Duration

	// Underlying network error for KindTransport
	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "commerce api: %s", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	var errs []error
	switch e.Kind {
	case KindUnauthorized:
		errs = append(errs, apperrors.ErrUnauthenticated)
	case KindInsufficientStock:
		errs = append(errs, apperrors.ErrInsufficientStock)
	case KindTransport, KindServer, KindRateLimited:
		errs = append(errs, apperrors.ErrTransport)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Field errors flattened as "field: message" sorted by field
func (e *APIError) FieldMessages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		for _, msg := range e.Fields[k] {
			out = append(out, k+": "+msg)
		}
	}
	return out
}

// IsKind reports whether err is an APIError of the kind
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func transportError(err error) *APIError {
	return &APIError{Kind: KindTransport, Err: err}
}

// Decode non 2xx response into APIError
func decodeAPIError(statusCode int, header http.Header, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode, Kind: kindFromStatus(statusCode)}
	parseErrorBody(e, body)

	switch e.Kind {
	case KindValidation, KindConflict:
		if mentionsStock(e) {
			e.Kind = KindInsufficientStock
		}
	case KindRateLimited:
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return e
}

func kindFromStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized:
		return KindUnauthorized
	case code == http.StatusForbidden:
		return KindForbidden
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusConflict:
		return KindConflict
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return KindValidation
	case code >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// Known shapes:
//
//	{"detail": "..."}
//	{"error": "...", "message": "...", "code": "..."}
//	{"field": ["msg", ...]}
//	{"non_field_errors": ["..."]}
//	plain text
func parseErrorBody(e *APIError, body []byte) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		e.Message = truncate(text)
		return
	}

	var messages []string
	for key, raw := range obj {
		switch key {
		case "detail", "message", "error":
			if s, ok := asString(raw); ok && s != "" {
				messages = append(messages, s)
			}
		case "code":
			if s, ok := asString(raw); ok {
				e.Code = s
			}
		case "non_field_errors":
			messages = append(messages, asStrings(raw)...)
		default:
			if list := asStrings(raw); len(list) > 0 {
				if e.Fields == nil {
					e.Fields = make(map[string][]string)
				}
				e.Fields[key] = list
			}
		}
	}

	sort.Strings(messages)
	e.Message = truncate(strings.Join(messages, "; "))
	if e.Message == "" && len(e.Fields) > 0 {
		e.Message = strings.Join(e.FieldMessages(), "; ")
	}
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func asStrings(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	if s, ok := asString(raw); ok && s != "" {
		return []string{s}
	}
	return nil
}

func mentionsStock(e *APIError) bool {
	if e.Code == "insufficient_stock" || e.Code == "out_of_stock" {
		return true
	}
	if strings.Contains(strings.ToLower(e.Message), "stock") {
		return true
	}
	for _, msgs := range e.Fields {
		for _, m := range msgs {
			if strings.Contains(strings.ToLower(m), "stock") {
				return true
			}
		}
	}
	return false
}

// Retry-After is either delay in seconds or HTTP date
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

// Cut at a rune boundary so multi-byte text stays valid
func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}

	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
