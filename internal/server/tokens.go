package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/florianilch/servicecall/internal/servicecall"
	"github.com/florianilch/servicecall/internal/transport"
)

// createTokenRequest is the payload of POST /v1/tokens.
type createTokenRequest struct {
	Method  string          `json:"method" validate:"required"`
	URL     string          `json:"url" validate:"required,url"`
	Headers json.RawMessage `json:"headers"`
	Body    *string         `json:"body"`
}

type tokenList struct {
	Tokens []string `json:"tokens"`
}

// createToken registers a token and fetches its first credential. The
// response is the token document; a failed fetch is reported with 502 and
// the token is not kept.
func (h *handlers) createToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createTokenRequest
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

	tok, err := h.dispatcher.CreateToken(ctx, servicecall.TokenRequest{
		Method:  method,
		URL:     req.URL,
		Headers: headers,
		Body:    req.Body,
	})

	var fetchErr *servicecall.FetchError
	switch {
	case err == nil:
		writeJSON(ctx, w, tok.Describe(), http.StatusCreated)
	case errors.As(err, &fetchErr) && tok != nil:
		writeJSON(ctx, w, tok.Describe(), http.StatusBadGateway)
	default:
		writeError(ctx, w, err)
	}
}

func (h *handlers) listTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, tokenList{Tokens: h.dispatcher.Registry().IDs()}, http.StatusOK)
}

func (h *handlers) describeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tok, ok := h.dispatcher.Registry().Get(id)
	if !ok {
		writeError(r.Context(), w, fmt.Errorf("%w: %q", servicecall.ErrUnknownToken, id))
		return
	}
	writeJSON(r.Context(), w, tok.Describe(), http.StatusOK)
}

func (h *handlers) removeToken(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Registry().Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
