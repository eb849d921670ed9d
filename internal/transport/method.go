package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnsupportedMethod reports an HTTP method outside of GET, POST and PUT.
var ErrUnsupportedMethod = errors.New("unsupported http method")

// Method is the closed set of HTTP methods servicecall dispatches.
type Method int

const (
	MethodGet Method = iota + 1
	MethodPost
	MethodPut
)

// ParseMethod maps a case-insensitive method name to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case http.MethodGet:
		return MethodGet, nil
	case http.MethodPost:
		return MethodPost, nil
	case http.MethodPut:
		return MethodPut, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected: GET, POST, PUT)", ErrUnsupportedMethod, s)
	}
}

// String returns the canonical upper-case method name.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return http.MethodGet
	case MethodPost:
		return http.MethodPost
	case MethodPut:
		return http.MethodPut
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut:
		return true
	default:
		return false
	}
}

// AllowsUpload reports whether m may carry a file body.
func (m Method) AllowsUpload() bool {
	return m == MethodPost || m == MethodPut
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
