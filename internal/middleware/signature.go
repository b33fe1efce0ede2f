package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/response"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
)

// maxCallbackBody bounds what a callback may post.
const maxCallbackBody = 1 << 20

type SignatureVerifier interface {
	Verify(signature string, body []byte) (*scheduler.CallbackClaims, error)
}

type contextKey string

const claimsKey contextKey = "callback_claims"

// VerifySignature rejects requests whose scheduler signature is missing or does
// not match the body. The body is restored for the next handler.
func VerifySignature(v SignatureVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
			if err != nil {
				response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
				return
			}

			claims, err := v.Verify(r.Header.Get(scheduler.SignatureHeader), body)
			if err != nil {
				logger.Warn("rejected scheduler callback",
					zap.String("path", r.URL.Path),
					zap.Bool("missing", errors.Is(err, scheduler.ErrMissingSignature)),
					zap.Error(err),
				)
				response.Error(w, http.StatusUnauthorized, "Invalid signature", nil)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallbackClaims returns the claims VerifySignature stored on the request, if any.
func CallbackClaims(ctx context.Context) (*scheduler.CallbackClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*scheduler.CallbackClaims)
	return c, ok
}
