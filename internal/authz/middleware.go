package authz

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKeyAgencyID struct{}
type contextKeyUserID struct{}

// AgencyID returns the authorized agency from the request context, or
// uuid.Nil outside the middleware.
func AgencyID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(contextKeyAgencyID{}).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// UserID returns the authenticated user from the request context, or
// uuid.Nil outside the middleware.
func UserID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(contextKeyUserID{}).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// RequireAgency returns chi middleware that resolves the caller's identity
// from the X-User-ID header and the target tenant from the X-Agency-ID
// header, then rejects the request unless the user is a member of that
// agency. Both IDs are stored on the request context for handlers.
func RequireAgency(checker Checker) func(http.Handler) http.Handler {
	log := zap.L().With(zap.String("component", "authz"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
			if err != nil {
				writeDenied(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
				return
			}

			agencyID, err := uuid.Parse(r.Header.Get("X-Agency-ID"))
			if err != nil {
				writeDenied(w, http.StatusBadRequest, "missing or invalid X-Agency-ID header")
				return
			}

			ok, err := checker.Member(r.Context(), agencyID, userID)
			if err != nil {
				log.Error("membership lookup failed",
					zap.String("agency_id", agencyID.String()),
					zap.String("error", err.Error()),
				)
				writeDenied(w, http.StatusInternalServerError, "authorization check failed")
				return
			}
			if !ok {
				log.Warn("access denied",
					zap.String("agency_id", agencyID.String()),
					zap.String("user_id", userID.String()),
				)
				writeDenied(w, http.StatusForbidden, "not a member of this agency")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyAgencyID{}, agencyID)
			ctx = context.WithValue(ctx, contextKeyUserID{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}
