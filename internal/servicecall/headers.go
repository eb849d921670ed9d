package servicecall

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"strings"
)

const authorizationHeader = "Authorization"

// ParseHeaders decodes a flat JSON object of string values. Blank input
// yields an empty map.
func ParseHeaders(text string) (map[string]string, error) {
	headers := map[string]string{}
	if strings.TrimSpace(text) == "" {
		return headers, nil
	}
	if err := json.Unmarshal([]byte(text), &headers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeaders, err)
	}
	return headers, nil
}

// withBearer returns a copy of headers carrying "Authorization: Bearer value".
// Any caller-supplied Authorization header is replaced regardless of case.
func withBearer(headers map[string]string, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		if strings.EqualFold(k, authorizationHeader) {
			continue
		}
		out[k] = v
	}
	out[authorizationHeader] = "Bearer " + value
	return out
}

func cloneHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return map[string]string{}
	}
	return maps.Clone(headers)
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q (expected: http, https)", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}
