package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging writes one structured record per RPC request. Header and body
// logging is restricted because requests carry credentials for remote
// services.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		LogRequestHeaders:  []string{"Content-Type", "User-Agent"},
		LogResponseHeaders: []string{"Content-Type"},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		// Recovery middleware answers panics; httplog only records them.
		RecoverPanics: false,
	})
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
