package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrLocalIO wraps failures of the local filesystem during uploads and
// downloads.
var ErrLocalIO = errors.New("local i/o failure")

// DefaultTimeout bounds every outbound request, including streamed bodies.
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of a failed download response is kept.
const maxErrorBody = 1 << 20

// Client performs outbound calls. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	downloadDir string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRoundTripper sets the transport of the underlying http.Client.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithTimeout sets the overall timeout of a single request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithUserAgent sets a User-Agent header on requests that do not carry one.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithDownloadDir sets the directory downloaded files are written to.
// Defaults to os.TempDir().
func WithDownloadDir(dir string) Option {
	return func(c *Client) {
		c.downloadDir = dir
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request. Query parameters must already be encoded in url.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) *Result {
	return c.Do(ctx, MethodGet, url, headers, nil)
}

// Post performs a POST request with an optional text body.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body *string) *Result {
	return c.Do(ctx, MethodPost, url, headers, body)
}

// Put performs a PUT request with an optional text body.
func (c *Client) Put(ctx context.Context, url string, headers map[string]string, body *string) *Result {
	return c.Do(ctx, MethodPut, url, headers, body)
}

// Do performs a buffered request and reads the whole response body.
// A nil body sends no request body. Invalid methods yield a transport
// failure; callers validate methods before reaching this point.
func (c *Client) Do(ctx context.Context, method Method, url string, headers map[string]string, body *string) *Result {
	if !method.Valid() {
		return failure("%v", fmt.Errorf("%w: %v", ErrUnsupportedMethod, method))
	}

	var reqBody io.Reader
	if body != nil && method != MethodGet {
		reqBody = strings.NewReader(*body)
	}

	req, err := http.NewRequestWithContext(ctx, method.String(), url, reqBody)
	if err != nil {
		return failure("creating request: %v", err)
	}
	c.applyHeaders(req, headers)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure("%v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure("reading response: %v", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Status:     reasonPhrase(resp),
		Header:     resp.Header,
		Body:       respBody,
	}
}

// Upload streams the file at path as the body of a POST or PUT request.
// An empty contentType falls back to a Content-Type entry of headers and then
// to a value probed from the file content.
func (c *Client) Upload(ctx context.Context, method Method, path, url, contentType string, headers map[string]string) (*Result, error) {
	if !method.AllowsUpload() {
		return nil, fmt.Errorf("%w: upload requires POST or PUT, got %v", ErrUnsupportedMethod, method)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening upload source: %w", ErrLocalIO, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: inspecting upload source: %w", ErrLocalIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: upload source %q is a directory", ErrLocalIO, path)
	}

	if contentType == "" {
		contentType = headerValue(headers, "Content-Type")
	}
	if contentType == "" {
		contentType = ProbeContentType(path)
	}

	var body io.Reader = f
	if info.Size() == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method.String(), url, body)
	if err != nil {
		return failure("creating request: %v", err), nil
	}
	// *os.File is not one of the readers net/http sizes on its own; a known
	// length avoids chunked encoding.
	req.ContentLength = info.Size()
	c.applyHeaders(req, headers)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure("uploading file: %v", err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure("reading response: %v", err), nil
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Status:     reasonPhrase(resp),
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// File describes a downloaded file on local disk.
type File struct {
	// Path is the location of the temporary file holding the content.
	Path string
	// Name is the file name announced by the server or derived from the URL.
	Name        string
	ContentType string
	Size        int64
}

// Download streams the response of a GET request into a new file under the
// configured download directory. On a non-2xx response no file is created
// and the error body is kept as text in the returned Result.
func (c *Client) Download(ctx context.Context, url string, headers map[string]string) (*File, *Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure("creating request: %v", err), nil
	}
	c.applyHeaders(req, headers)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure("%v", err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	res := &Result{
		StatusCode: resp.StatusCode,
		Status:     reasonPhrase(resp),
		Header:     resp.Header,
	}

	if !res.Success() {
		// Best effort: the status is what matters, the body is diagnostics.
		res.Body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, res, nil
	}

	dir := c.downloadDir
	if dir == "" {
		dir = os.TempDir()
	}
	out, err := os.CreateTemp(dir, "download-*.tmp")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: creating download destination: %w", ErrLocalIO, err)
	}

	w := &trackingWriter{w: out}
	size, copyErr := io.Copy(w, resp.Body)
	closeErr := out.Close()

	switch {
	case w.err != nil:
		_ = os.Remove(out.Name())
		return nil, nil, fmt.Errorf("%w: writing download: %w", ErrLocalIO, w.err)
	case copyErr != nil:
		_ = os.Remove(out.Name())
		return nil, failure("reading download: %v", copyErr), nil
	case closeErr != nil:
		_ = os.Remove(out.Name())
		return nil, nil, fmt.Errorf("%w: closing download: %w", ErrLocalIO, closeErr)
	}

	file := &File{
		Path:        out.Name(),
		Name:        FileName(resp.Header, req.URL),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        size,
	}
	return file, res, nil
}

func (c *Client) applyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// headerValue looks up a header by case-insensitive name.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// trackingWriter remembers write errors so they can be told apart from
// errors reading the response body.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
