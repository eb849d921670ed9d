package server

import (
	"encoding/json"
	"net/http"

	"github.com/florianilch/servicecall/internal/servicecall"
	"github.com/florianilch/servicecall/internal/transport"
)

// callRequest is the payload of POST /v1/calls.
type callRequest struct {
	TokenUUID string          `json:"tokenUuid"`
	Method    string          `json:"method" validate:"required"`
	URL       string          `json:"url" validate:"required,url"`
	Headers   json.RawMessage `json:"headers"`
	Body      *string         `json:"body"`
}

// call performs an outbound request. Whatever happened on the wire is
// reported in the result document with 200; only requests that could not be
// attempted get an error status.
func (h *handlers) call(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req callRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	method, err := transport.ParseMethod(req.Method)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	headers, err := h.headers(req.Headers)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	res, err := h.dispatcher.Call(ctx, servicecall.CallRequest{
		TokenID: req.TokenUUID,
		Method:  method,
		URL:     req.URL,
		Headers: headers,
		Body:    req.Body,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, res, http.StatusOK)
}
