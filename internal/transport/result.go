package transport

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// StatusTransportError is the StatusCode of a Result whose request never
// produced an HTTP response.
const StatusTransportError = -1

// Result is the uniform outcome of an outbound call.
type Result struct {
	StatusCode int
	// Status is the reason phrase ("OK", "Not Found") or, for transport
	// failures, a description of what went wrong.
	Status string
	Header http.Header
	Body   []byte
}

// Success reports whether the call returned a 2xx status.
func (r *Result) Success() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ContentType returns the media type of the response without parameters.
func (r *Result) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

// IsJSON reports whether the body is a JSON document the caller can embed
// as structured data.
func (r *Result) IsJSON() bool {
	if r == nil || len(r.Body) == 0 || !json.Valid(r.Body) {
		return false
	}
	ct := r.ContentType()
	// Some token endpoints omit the Content-Type, so trust a valid body then.
	return ct == "" || ct == "application/json" || strings.HasSuffix(ct, "+json")
}

type resultDocument struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	Response        any    `json:"response"`
}

// MarshalJSON renders the result as {"responseCode", "responseMessage",
// "response"}. The response is embedded as JSON when the body is JSON and as
// a string otherwise.
func (r *Result) MarshalJSON() ([]byte, error) {
	doc := resultDocument{
		ResponseCode:    r.StatusCode,
		ResponseMessage: r.Status,
	}
	switch {
	case len(r.Body) == 0:
		doc.Response = json.RawMessage("{}")
	case r.IsJSON():
		doc.Response = json.RawMessage(r.Body)
	default:
		doc.Response = string(r.Body)
	}
	return json.Marshal(doc)
}

// failure builds the Result for a request that never got a response.
func failure(format string, args ...any) *Result {
	return &Result{
		StatusCode: StatusTransportError,
		Status:     "transport error: " + fmt.Sprintf(format, args...),
	}
}

// reasonPhrase strips the numeric code from resp.Status.
func reasonPhrase(resp *http.Response) string {
	if reason, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok {
		return reason
	}
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}
