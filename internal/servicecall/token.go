package servicecall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/servicecall/internal/transport"
)

// SafetyMargin is subtracted from the lifetime announced by the token
// endpoint, so a credential is refreshed before the remote side rejects it.
const SafetyMargin = 15 * time.Second

// refreshKey is the only key used with a Token's single-flight group; the
// group itself is scoped to one Token.
const refreshKey = "refresh"

// Fetcher performs the buffered request a Token is refreshed with.
type Fetcher interface {
	Do(ctx context.Context, method transport.Method, url string, headers map[string]string, body *string) *transport.Result
}

// Credential is a successfully fetched access token.
type Credential struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	// ExpiresIn is the lifetime in seconds announced by the token endpoint.
	ExpiresIn int64
	// Expiry is the instant the credential stops being used, SafetyMargin
	// before the announced end of life.
	Expiry time.Time
}

// OAuth2 converts the credential into an oauth2.Token.
func (c *Credential) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
		ExpiresIn:    c.ExpiresIn,
	}
}

// FetchError describes a failed token refresh: a transport failure, a non-2xx
// status or an error payload returned with a 2xx status.
type FetchError struct {
	StatusCode int
	Status     string
	// Code and Description carry the "error" and "error_description" fields of
	// an OAuth-style error payload, when present.
	Code        string
	Description string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token endpoint returned error %s: %s", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token endpoint returned error %s", e.Code)
	default:
		return fmt.Sprintf("token fetch failed with status %d: %s", e.StatusCode, e.Status)
	}
}

// FetchResult is the outcome of the last refresh of a Token. Exactly one of
// Credential and Err is set.
type FetchResult struct {
	StatusCode int
	Status     string
	// Body is the raw response of the token endpoint.
	Body      []byte
	FetchedAt time.Time

	Credential *Credential
	Err        *FetchError
}

// Token is a cached credential together with the request that refreshes it.
// The request template is immutable; the cached result is replaced as a whole
// on every refresh. Methods are safe for concurrent use.
type Token struct {
	id      string
	method  transport.Method
	url     string
	headers map[string]string
	body    *string

	fetcher  Fetcher
	now      func() time.Time
	observer Observer

	mu   sync.RWMutex
	last *FetchResult

	flight singleflight.Group
}

func newToken(id string, method transport.Method, url string, headers map[string]string, body *string, fetcher Fetcher, o options) *Token {
	if body != nil {
		b := *body
		body = &b
	}
	return &Token{
		id:       id,
		method:   method,
		url:      url,
		headers:  cloneHeaders(headers),
		body:     body,
		fetcher:  fetcher,
		now:      o.now,
		observer: o.observer,
	}
}

// ID returns the opaque identifier callers use to reference the token.
func (t *Token) ID() string {
	return t.id
}

// Method returns the HTTP method of the token request.
func (t *Token) Method() transport.Method {
	return t.method
}

// URL returns the token endpoint.
func (t *Token) URL() string {
	return t.url
}

// IsExpired reports whether a refresh is needed: there is no credential, or
// the current time has reached its expiry.
func (t *Token) IsExpired() bool {
	return t.current() == nil
}

// Expiry returns the expiry of the cached credential, or the zero time.
func (t *Token) Expiry() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.last == nil || t.last.Credential == nil {
		return time.Time{}
	}
	return t.last.Credential.Expiry
}

// LastResult returns the outcome of the most recent refresh, or nil before
// the first one.
func (t *Token) LastResult() *FetchResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.last
}

// Value returns the access token, refreshing it first when expired.
//
// Only one refresh per Token is in flight at any time; callers arriving
// during a refresh wait for it and receive the same outcome. On failure the
// returned error is a *FetchError and the token stays expired, so the next
// caller retries. A caller whose ctx ends while waiting gets ctx.Err(); the
// shared refresh keeps running for the others.
func (t *Token) Value(ctx context.Context) (string, error) {
	cred, err := t.credential(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// TokenSource exposes the token as an oauth2.TokenSource bound to ctx.
func (t *Token) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, token: t}
}

type tokenSource struct {
	ctx   context.Context
	token *Token
}

// Token implements oauth2.TokenSource.
func (s tokenSource) Token() (*oauth2.Token, error) {
	cred, err := s.token.credential(s.ctx)
	if err != nil {
		return nil, err
	}
	return cred.OAuth2(), nil
}

// SetCredential stores value as a credential valid for the given duration,
// without contacting the token endpoint.
func (t *Token) SetCredential(value string, validFor time.Duration) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = &FetchResult{
		FetchedAt: now,
		Credential: &Credential{
			AccessToken: value,
			TokenType:   "Bearer",
			ExpiresIn:   int64(validFor / time.Second),
			Expiry:      now.Add(validFor),
		},
	}
}

// Describe renders the last token endpoint response as a JSON object with
// responseCode, responseMessage and tokenUuid added. After a failed refresh
// only the status, the remote error fields and the id are present.
func (t *Token) Describe() json.RawMessage {
	last := t.LastResult()

	doc := []byte("{}")
	switch {
	case last == nil:
	case last.Err == nil && gjson.ParseBytes(last.Body).IsObject():
		doc = append([]byte(nil), last.Body...)
	case last.Err != nil && last.Err.Code != "":
		doc = setField(doc, "error", last.Err.Code)
		if last.Err.Description != "" {
			doc = setField(doc, "error_description", last.Err.Description)
		}
	}

	// A credential seeded through SetCredential has no response to report.
	if last != nil && (last.StatusCode != 0 || last.Err != nil) {
		doc = setField(doc, "responseCode", last.StatusCode)
		doc = setField(doc, "responseMessage", last.Status)
	}
	doc = setField(doc, "tokenUuid", t.id)

	return json.RawMessage(doc)
}

func setField(doc []byte, key string, value any) []byte {
	out, err := sjson.SetBytes(doc, key, value)
	if err != nil {
		// Keys are fixed identifiers; sjson only fails on invalid paths.
		return doc
	}
	return out
}

// current returns the cached credential while it is valid.
func (t *Token) current() *Credential {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.last == nil || t.last.Credential == nil {
		return nil
	}
	cred := t.last.Credential
	if cred.AccessToken == "" || !t.now().Before(cred.Expiry) {
		return nil
	}
	return cred
}

func (t *Token) credential(ctx context.Context) (*Credential, error) {
	if cred := t.current(); cred != nil {
		return cred, nil
	}

	// The refresh must not fail for every waiter because the caller that
	// happened to start it went away.
	refreshCtx := context.WithoutCancel(ctx)

	ch := t.flight.DoChan(refreshKey, func() (any, error) {
		// A flight that finished between our check and this one may already
		// have stored a fresh credential.
		if cred := t.current(); cred != nil {
			return cred, nil
		}
		result := t.refresh(refreshCtx)
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Credential, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	}
}

// refresh performs one request to the token endpoint and stores its outcome.
func (t *Token) refresh(ctx context.Context) *FetchResult {
	start := time.Now()
	res := t.fetcher.Do(ctx, t.method, t.url, t.headers, t.body)
	result := interpret(res, t.now())

	t.mu.Lock()
	t.last = result
	t.mu.Unlock()

	t.observer.TokenRefreshed(result.Err == nil, time.Since(start))

	if result.Err != nil {
		slog.ErrorContext(ctx, "token refresh failed",
			"token_id", t.id,
			"url", t.url,
			"status", result.StatusCode,
			"error", result.Err,
		)
	} else {
		slog.DebugContext(ctx, "token refreshed",
			"token_id", t.id,
			"expires_in", result.Credential.ExpiresIn,
			"expiry", result.Credential.Expiry,
		)
	}

	return result
}

// interpret turns a token endpoint response into a FetchResult. now is the
// instant the response was received.
func interpret(res *transport.Result, now time.Time) *FetchResult {
	result := &FetchResult{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Body:       res.Body,
		FetchedAt:  now,
	}

	payload := gjson.ParseBytes(res.Body)
	if !gjson.ValidBytes(res.Body) || !payload.IsObject() {
		payload = gjson.Result{}
	}

	if !res.Success() {
		result.Err = &FetchError{
			StatusCode:  res.StatusCode,
			Status:      res.Status,
			Code:        payload.Get("error").String(),
			Description: payload.Get("error_description").String(),
		}
		return result
	}

	if errField := payload.Get("error"); errField.Exists() {
		result.Err = &FetchError{
			StatusCode:  res.StatusCode,
			Status:      res.Status,
			Code:        errField.String(),
			Description: payload.Get("error_description").String(),
		}
		return result
	}

	accessToken := payload.Get("access_token").String()
	if accessToken == "" {
		result.Err = &FetchError{
			StatusCode:  res.StatusCode,
			Status:      res.Status,
			Code:        "invalid_response",
			Description: "missing access_token",
		}
		return result
	}

	expiresIn := payload.Get("expires_in").Int()
	result.Credential = &Credential{
		AccessToken:  accessToken,
		TokenType:    payload.Get("token_type").String(),
		RefreshToken: payload.Get("refresh_token").String(),
		ExpiresIn:    expiresIn,
		Expiry:       now.Add(time.Duration(expiresIn)*time.Second - SafetyMargin),
	}
	return result
}
