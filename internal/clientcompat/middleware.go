package clientcompat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// Error codes returned in the error envelope.
const (
	CodeClientRequired  = "client_header_required"
	CodeUpgradeRequired = "upgrade_required"
)

// Middleware gates requests on the Widget-Client header. With an empty min
// the header is optional and only recorded; otherwise it is required and
// older builds get 426 Upgrade Required.
func Middleware(min string, logger *slog.Logger) func(http.Handler) http.Handler {
	min = Canonical(min)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(Header)
			if header == "" {
				if min != "" {
					writeError(w, http.StatusBadRequest, CodeClientRequired,
						"Widget-Client header is required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			client, err := ParseHeader(header)
			if err != nil {
				logger.Warn("invalid Widget-Client header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeError(w, http.StatusBadRequest, CodeClientRequired,
					"Invalid Widget-Client header: "+err.Error())
				return
			}

			if !Supported(client.Version, min) {
				logger.Info("rejected outdated widget",
					slog.String("version", client.Version),
					slog.String("min_version", min))
				w.Header().Set("Upgrade", "widget/"+min)
				writeError(w, http.StatusUpgradeRequired, CodeUpgradeRequired,
					"This page is out of date. Please reload to continue.")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the client recorded by Middleware.
func FromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(contextKey{}).(Client)
	return c, ok
}

// isExemptPath returns true for infrastructure paths.
func isExemptPath(path string) bool {
	return path == "/health" || path == "/healthz"
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
