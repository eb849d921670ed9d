package transport

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when the content type of a file cannot be
// determined.
const DefaultContentType = "application/octet-stream"

// defaultFileName is used when neither the response nor the URL names the file.
const defaultFileName = "download"

// ProbeContentType detects the MIME type of the file at p from its content,
// falling back to DefaultContentType.
func ProbeContentType(p string) string {
	mt, err := mimetype.DetectFile(p)
	if err != nil || mt == nil {
		return DefaultContentType
	}
	return mt.String()
}

// FileName derives a file name from the Content-Disposition header and falls
// back to the last segment of the URL path. The result never contains a
// directory component.
func FileName(header http.Header, u *url.URL) string {
	if name := dispositionFileName(header.Get("Content-Disposition")); name != "" {
		return name
	}
	if u != nil {
		if name := sanitizeFileName(path.Base(u.Path)); name != "" {
			return name
		}
	}
	return defaultFileName
}

func dispositionFileName(cd string) string {
	if cd == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		// mime decodes RFC 2231 filename* into "filename".
		if name := sanitizeFileName(params["filename"]); name != "" {
			return name
		}
	}
	// Lenient fallback for headers mime rejects, e.g. unquoted spaces.
	if _, after, found := strings.Cut(cd, "filename="); found {
		name, _, _ := strings.Cut(after, ";")
		return sanitizeFileName(strings.Trim(strings.TrimSpace(name), `"`))
	}
	return ""
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	switch name {
	case ".", "/", "..", "":
		return ""
	}
	return name
}
