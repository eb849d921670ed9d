package servicecall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/florianilch/servicecall/internal/transport"
)

// Operation names reported to the Observer.
const (
	OperationCall     = "call"
	OperationUpload   = "upload"
	OperationDownload = "download"
)

// Transport is the outbound HTTP capability the Dispatcher depends on.
// *transport.Client implements it.
type Transport interface {
	Fetcher
	Upload(ctx context.Context, method transport.Method, path, url, contentType string, headers map[string]string) (*transport.Result, error)
	Download(ctx context.Context, url string, headers map[string]string) (*transport.File, *transport.Result, error)
}

// Compile-time check that the HTTP client satisfies Transport.
var _ Transport = (*transport.Client)(nil)

// TokenRequest describes how to obtain a credential from a token endpoint.
type TokenRequest struct {
	Method  transport.Method
	URL     string
	Headers map[string]string
	Body    *string
}

// CallRequest describes an outbound call. TokenID is optional.
type CallRequest struct {
	TokenID string
	Method  transport.Method
	URL     string
	Headers map[string]string
	Body    *string
}

// UploadRequest describes a file upload. Method must be POST or PUT. An
// empty ContentType is probed from the file.
type UploadRequest struct {
	TokenID     string
	Method      transport.Method
	FilePath    string
	URL         string
	ContentType string
	Headers     map[string]string
}

// DownloadRequest describes a file download.
type DownloadRequest struct {
	TokenID string
	URL     string
	Headers map[string]string
}

// Dispatcher performs outbound calls, resolving token references against a
// Registry and attaching the credential as a bearer Authorization header.
type Dispatcher struct {
	registry  *Registry
	transport Transport
	observer  Observer
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, t Transport, opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		registry:  registry,
		transport: t,
		observer:  o.observer,
	}
}

// Registry returns the registry tokens are resolved against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// CreateToken registers a token and fetches its first credential right away
// so configuration mistakes surface immediately. When that fetch fails the
// token is removed again and returned together with its *FetchError, so the
// caller can still report the failure via Describe.
func (d *Dispatcher) CreateToken(ctx context.Context, req TokenRequest) (*Token, error) {
	tok, err := d.registry.NewToken(req.Method, req.URL, req.Headers, req.Body)
	if err != nil {
		return nil, err
	}

	if _, err := tok.Value(ctx); err != nil {
		d.registry.Remove(tok.ID())

		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return tok, fetchErr
		}
		return tok, err
	}

	slog.InfoContext(ctx, "token created", "token_id", tok.ID(), "url", tok.URL())
	return tok, nil
}

// Call performs a GET, POST or PUT request. Configuration errors are
// returned before any request is made; everything that happens on the wire,
// including transport failures, is reported through the Result.
func (d *Dispatcher) Call(ctx context.Context, req CallRequest) (*transport.Result, error) {
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMethod, req.Method)
	}
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}

	headers, err := d.authorize(ctx, req.TokenID, req.Headers)
	if err != nil {
		return nil, err
	}

	res := d.transport.Do(ctx, req.Method, req.URL, headers, req.Body)
	d.observer.RequestCompleted(OperationCall, res)
	d.logOutcome(ctx, OperationCall, req.Method, req.URL, res)

	return res, nil
}

// Upload streams a local file to url.
func (d *Dispatcher) Upload(ctx context.Context, req UploadRequest) (*transport.Result, error) {
	if !req.Method.AllowsUpload() {
		return nil, fmt.Errorf("%w: upload requires POST or PUT, got %v", ErrUnsupportedMethod, req.Method)
	}
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	if _, err := os.Stat(req.FilePath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocalIO, err)
	}

	headers, err := d.authorize(ctx, req.TokenID, req.Headers)
	if err != nil {
		return nil, err
	}

	res, err := d.transport.Upload(ctx, req.Method, req.FilePath, req.URL, req.ContentType, headers)
	if err != nil {
		return nil, err
	}
	d.observer.RequestCompleted(OperationUpload, res)
	d.logOutcome(ctx, OperationUpload, req.Method, req.URL, res)

	return res, nil
}

// Download fetches url into a local file. The file is nil when the server
// answered with a non-2xx status or the request failed; the Result then
// describes why.
func (d *Dispatcher) Download(ctx context.Context, req DownloadRequest) (*transport.File, *transport.Result, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, nil, err
	}

	headers, err := d.authorize(ctx, req.TokenID, req.Headers)
	if err != nil {
		return nil, nil, err
	}

	file, res, err := d.transport.Download(ctx, req.URL, headers)
	if err != nil {
		return nil, nil, err
	}
	d.observer.RequestCompleted(OperationDownload, res)
	d.logOutcome(ctx, OperationDownload, transport.MethodGet, req.URL, res)

	return file, res, nil
}

// authorize returns a copy of headers with the bearer credential of tokenID
// attached. An empty tokenID leaves the headers untouched. When the token
// cannot produce a credential the request goes out without one, so the
// remote service reports the authentication problem.
func (d *Dispatcher) authorize(ctx context.Context, tokenID string, headers map[string]string) (map[string]string, error) {
	if tokenID == "" {
		return cloneHeaders(headers), nil
	}

	tok, ok := d.registry.Get(tokenID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, tokenID)
	}

	value, err := tok.Value(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.WarnContext(ctx, "no credential available, calling without authorization",
			"token_id", tokenID,
			"error", err,
		)
		return cloneHeaders(headers), nil
	}

	return withBearer(headers, value), nil
}

func (d *Dispatcher) logOutcome(ctx context.Context, operation string, method transport.Method, url string, res *transport.Result) {
	level := slog.LevelDebug
	if !res.Success() {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "outbound request completed",
		"operation", operation,
		"method", method.String(),
		"url", url,
		"status", res.StatusCode,
		"status_message", res.Status,
	)
}
