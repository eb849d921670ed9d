package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{in: "GET", want: MethodGet},
		{in: "post", want: MethodPost},
		{in: " Put ", want: MethodPut},
		{in: "DELETE", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedMethod) {
					t.Fatalf("ParseMethod(%q) error = %v, want ErrUnsupportedMethod", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMethod(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMethod(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDoSendsMethodHeadersAndBody(t *testing.T) {
	var gotMethod, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body := `{"name":"value"}`
	res := New().Put(context.Background(), srv.URL, map[string]string{"Authorization": "Basic abc"}, &body)

	if res.StatusCode != http.StatusCreated || res.Status != "Created" {
		t.Fatalf("unexpected status %d %q", res.StatusCode, res.Status)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if gotAuth != "Basic abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody != body {
		t.Errorf("body = %q, want %q", gotBody, body)
	}
	if !res.IsJSON() {
		t.Errorf("expected JSON response")
	}
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	res := New(WithTimeout(2*time.Second)).Get(context.Background(), addr, nil)

	if res.StatusCode != StatusTransportError {
		t.Fatalf("StatusCode = %d, want %d", res.StatusCode, StatusTransportError)
	}
	if !strings.HasPrefix(res.Status, "transport error:") {
		t.Errorf("Status = %q, want transport error description", res.Status)
	}
	if res.Success() {
		t.Error("transport failure reported as success")
	}
}

func TestResultMarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{
			name: "json body is embedded",
			result: &Result{
				StatusCode: 200, Status: "OK",
				Header: http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
				Body:   []byte(`{"a":1}`),
			},
			want: `{"responseCode":200,"responseMessage":"OK","response":{"a":1}}`,
		},
		{
			name: "text body is a string",
			result: &Result{
				StatusCode: 404, Status: "Not Found",
				Header: http.Header{"Content-Type": []string{"text/plain"}},
				Body:   []byte("missing"),
			},
			want: `{"responseCode":404,"responseMessage":"Not Found","response":"missing"}`,
		},
		{
			name:   "transport failure has an empty object",
			result: &Result{StatusCode: -1, Status: "transport error: refused"},
			want:   `{"responseCode":-1,"responseMessage":"transport error: refused","response":{}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestUploadStreamsFileBody(t *testing.T) {
	content := bytes.Repeat([]byte("servicecall upload payload\n"), 4096)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	var gotBody []byte
	var gotType string
	var gotLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotType = r.Header.Get("Content-Type")
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res, err := New().Upload(context.Background(), MethodPost, path, srv.URL, "", nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("StatusCode = %d", res.StatusCode)
	}
	if !bytes.Equal(gotBody, content) {
		t.Errorf("received %d bytes, want %d identical bytes", len(gotBody), len(content))
	}
	if gotLength != int64(len(content)) {
		t.Errorf("ContentLength = %d, want %d", gotLength, len(content))
	}
	if want := ProbeContentType(path); gotType != want || !strings.HasPrefix(gotType, "text/plain") {
		t.Errorf("Content-Type = %q, want probed %q", gotType, want)
	}
}

func TestUploadRejectsGet(t *testing.T) {
	_, err := New().Upload(context.Background(), MethodGet, "irrelevant", "http://127.0.0.1:1", "", nil)
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("error = %v, want ErrUnsupportedMethod", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	_, err := New().Upload(context.Background(), MethodPut, filepath.Join(t.TempDir(), "absent"), "http://127.0.0.1:1", "", nil)
	if !errors.Is(err, ErrLocalIO) {
		t.Fatalf("error = %v, want ErrLocalIO", err)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/report.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `attachment; filename="quarterly report.pdf"`)
			_, _ = w.Write([]byte("%PDF-1.4 content"))
		case "/files/plain.csv":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte("a,b\n1,2\n"))
		default:
			http.Error(w, "no such file", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := New(WithDownloadDir(dir))

	t.Run("content disposition names the file", func(t *testing.T) {
		file, res, err := c.Download(context.Background(), srv.URL+"/files/report.pdf", nil)
		if err != nil {
			t.Fatalf("Download: %v", err)
		}
		if !res.Success() {
			t.Fatalf("status %d", res.StatusCode)
		}
		if file.Name != "quarterly report.pdf" || file.ContentType != "application/pdf" {
			t.Errorf("file = %+v", file)
		}
		if filepath.Dir(file.Path) != dir {
			t.Errorf("file written to %q, want directory %q", file.Path, dir)
		}
		data, _ := os.ReadFile(file.Path)
		if string(data) != "%PDF-1.4 content" || file.Size != int64(len(data)) {
			t.Errorf("content = %q size = %d", data, file.Size)
		}
	})

	t.Run("url tail names the file", func(t *testing.T) {
		file, _, err := c.Download(context.Background(), srv.URL+"/files/plain.csv", nil)
		if err != nil {
			t.Fatalf("Download: %v", err)
		}
		if file.Name != "plain.csv" {
			t.Errorf("Name = %q, want plain.csv", file.Name)
		}
	})

	t.Run("error status produces no file", func(t *testing.T) {
		file, res, err := c.Download(context.Background(), srv.URL+"/files/missing", nil)
		if err != nil {
			t.Fatalf("Download: %v", err)
		}
		if file != nil {
			t.Errorf("unexpected file %+v", file)
		}
		if res.StatusCode != http.StatusNotFound || !strings.Contains(string(res.Body), "no such file") {
			t.Errorf("result = %d %q", res.StatusCode, res.Body)
		}
	})
}

func TestFileName(t *testing.T) {
	u, _ := url.Parse("https://example.com/a/b/archive.zip?x=1")
	tests := []struct {
		name        string
		disposition string
		url         *url.URL
		want        string
	}{
		{name: "quoted", disposition: `attachment; filename="data.json"`, url: u, want: "data.json"},
		{name: "rfc2231", disposition: `attachment; filename*=UTF-8''na%C3%AFve.txt`, url: u, want: "naïve.txt"},
		{name: "traversal", disposition: `attachment; filename="../../etc/passwd"`, url: u, want: "passwd"},
		{name: "url fallback", url: u, want: "archive.zip"},
		{name: "nothing", url: &url.URL{Path: "/"}, want: "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.disposition != "" {
				h.Set("Content-Disposition", tt.disposition)
			}
			if got := FileName(h, tt.url); got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}
