package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/florianilch/servicecall/internal/servicecall"
	"github.com/florianilch/servicecall/internal/transport"
)

// maxFormField caps the size of a non-file multipart field.
const maxFormField = 1 << 20

// downloadRequest is the payload of POST /v1/downloads.
type downloadRequest struct {
	TokenUUID string          `json:"tokenUuid"`
	URL       string          `json:"url" validate:"required,url"`
	Headers   json.RawMessage `json:"headers"`
}

// upload accepts a multipart form with the fields method, url, headers,
// contentType and tokenUuid plus a file part. The file is spooled to disk
// and then streamed to the target.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form, spooled, err := h.readUploadForm(r)
	if spooled != "" {
		defer func() {
			if err := os.Remove(spooled); err != nil {
				slog.WarnContext(ctx, "failed to remove spooled upload", "path", spooled, "error", err)
			}
		}()
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if spooled == "" {
		writeError(ctx, w, fmt.Errorf("%w: missing file part", errBadRequest))
		return
	}

	method, err := transport.ParseMethod(form["method"])
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	headers, err := h.headers(json.RawMessage(form["headers"]))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	res, err := h.dispatcher.Upload(ctx, servicecall.UploadRequest{
		TokenID:     form["tokenUuid"],
		Method:      method,
		FilePath:    spooled,
		URL:         form["url"],
		ContentType: form["contentType"],
		Headers:     headers,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, res, http.StatusOK)
}

// readUploadForm streams the multipart body. Text fields are collected, the
// file part is written to a temp file whose path is returned.
func (h *handlers) readUploadForm(r *http.Request) (map[string]string, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errBadRequest, err)
	}

	form := make(map[string]string)
	spooled := ""
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, spooled, nil
		}
		if err != nil {
			return nil, spooled, fmt.Errorf("%w: reading multipart body: %w", errBadRequest, err)
		}

		name := part.FormName()
		if name != "file" {
			value, err := io.ReadAll(io.LimitReader(part, maxFormField))
			_ = part.Close()
			if err != nil {
				return nil, spooled, fmt.Errorf("%w: reading field %s: %w", errBadRequest, name, err)
			}
			form[name] = string(value)
			continue
		}

		if spooled != "" {
			_ = part.Close()
			return nil, spooled, fmt.Errorf("%w: more than one file part", errBadRequest)
		}
		spooled, err = spool(h.uploadDir, part)
		_ = part.Close()
		if err != nil {
			return nil, spooled, err
		}
	}
}

func spool(dir string, src io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "upload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating spool file: %w", servicecall.ErrLocalIO, err)
	}
	_, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(copyErr, &maxBytesErr) {
			return f.Name(), copyErr
		}
		return f.Name(), fmt.Errorf("%w: spooling upload: %w", errBadRequest, copyErr)
	}
	if closeErr != nil {
		return f.Name(), fmt.Errorf("%w: %w", servicecall.ErrLocalIO, closeErr)
	}
	return f.Name(), nil
}

// download fetches the target and streams the file back. When the target
// does not deliver a file the result document is returned instead, with the
// upstream status for 4xx/5xx answers and 502 otherwise.
func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req downloadRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	headers, err := h.headers(req.Headers)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	file, res, err := h.dispatcher.Download(ctx, servicecall.DownloadRequest{
		TokenID: req.TokenUUID,
		URL:     req.URL,
		Headers: headers,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if file == nil {
		status := res.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		writeJSON(ctx, w, res, status)
		return
	}
	defer func() {
		if err := os.Remove(file.Path); err != nil {
			slog.WarnContext(ctx, "failed to remove downloaded file", "path", file.Path, "error", err)
		}
	}()

	f, err := os.Open(file.Path)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: %w", servicecall.ErrLocalIO, err))
		return
	}
	defer func() { _ = f.Close() }()

	contentType := file.ContentType
	if contentType == "" {
		contentType = transport.DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		slog.WarnContext(ctx, "failed to stream download to client", "error", err)
	}
}
