package servicecall

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/florianilch/servicecall/internal/transport"
)

// recordedCall captures one request seen by fakeTransport.
type recordedCall struct {
	Method  transport.Method
	URL     string
	Headers map[string]string
	Body    *string
}

// fakeTransport answers requests with a configurable function and records
// what it was asked to do, without any network traffic.
type fakeTransport struct {
	respond func(call recordedCall) *transport.Result

	count atomic.Int64
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeTransport) Do(_ context.Context, method transport.Method, url string, headers map[string]string, body *string) *transport.Result {
	call := recordedCall{Method: method, URL: url, Headers: headers, Body: body}
	f.count.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.respond == nil {
		return &transport.Result{StatusCode: http.StatusOK, Status: "OK", Body: []byte("{}")}
	}
	return f.respond(call)
}

func (f *fakeTransport) Upload(_ context.Context, method transport.Method, path, url, contentType string, headers map[string]string) (*transport.Result, error) {
	f.count.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: method, URL: url, Headers: headers})
	f.mu.Unlock()
	return &transport.Result{StatusCode: http.StatusCreated, Status: "Created"}, nil
}

func (f *fakeTransport) Download(_ context.Context, url string, headers map[string]string) (*transport.File, *transport.Result, error) {
	f.count.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: transport.MethodGet, URL: url, Headers: headers})
	f.mu.Unlock()
	return nil, &transport.Result{StatusCode: http.StatusNotFound, Status: "Not Found"}, nil
}

func (f *fakeTransport) Calls() int {
	return int(f.count.Load())
}

func (f *fakeTransport) Last() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// jsonResponse builds a 200 response carrying body.
func jsonResponse(body string) *transport.Result {
	return &transport.Result{
		StatusCode: http.StatusOK,
		Status:     "OK",
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tokenFetchFrom returns a response function for a token endpoint that
// always answers with body.
func tokenFetchFrom(body string) func(recordedCall) *transport.Result {
	return func(recordedCall) *transport.Result {
		return jsonResponse(body)
	}
}

const tokenEndpoint = "https://auth.example.com/oauth/token"
