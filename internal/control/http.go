package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// StatusHandler serves read-only JSON views of the bridge for HTTP/1 clients
// on the TCP listener:
//
//	GET /status     same body as Control.Status
//	GET /providers  same body as Control.Available
func StatusHandler(s *Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		ctx := withAuthHeader(r)
		resp, err := s.Status(ctx, &StatusRequest{})
		writeJSON(w, resp, err)
	})
	mux.HandleFunc("GET /providers", func(w http.ResponseWriter, r *http.Request) {
		ctx := withAuthHeader(r)
		resp, err := s.Available(ctx, &AvailableRequest{Provider: r.URL.Query().Get("provider")})
		writeJSON(w, resp, err)
	})
	return mux
}

// withAuthHeader exposes the HTTP Authorization header to Service.auth as
// incoming gRPC metadata.
func withAuthHeader(r *http.Request) context.Context {
	md := metadata.MD{}
	if h := r.Header.Get("Authorization"); h != "" {
		md.Set("authorization", h)
	}
	return metadata.NewIncomingContext(r.Context(), md)
}

func writeJSON(w http.ResponseWriter, body any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		st, _ := status.FromError(err)
		w.WriteHeader(httpCode(st.Code()))
		body = map[string]string{"error": st.Message()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		slog.Debug("http response write failed", "err", err)
	}
}

func httpCode(c codes.Code) int {
	switch c {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
