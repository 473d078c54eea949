package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestPostgresChecker_Member(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	agency := uuid.New()
	user := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(agency, user).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewPostgresChecker(mock).Member(context.Background(), agency, user)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type staticChecker struct {
	member bool
	err    error
}

func (c staticChecker) Member(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return c.member, c.err
}

func protectedHandler(t *testing.T, wantAgency, wantUser uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantAgency, AgencyID(r.Context()))
		assert.Equal(t, wantUser, UserID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAgency_Allows(t *testing.T) {
	agency := uuid.New()
	user := uuid.New()

	h := RequireAgency(staticChecker{member: true})(protectedHandler(t, agency, user))

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("X-User-ID", user.String())
	req.Header.Set("X-Agency-ID", agency.String())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAgency_NonMemberForbidden(t *testing.T) {
	h := RequireAgency(staticChecker{member: false})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	req.Header.Set("X-Agency-ID", uuid.NewString())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not a member")
}

func TestRequireAgency_MissingUserHeader(t *testing.T) {
	h := RequireAgency(staticChecker{member: true})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("X-Agency-ID", uuid.NewString())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAgency_BadAgencyHeader(t *testing.T) {
	h := RequireAgency(staticChecker{member: true})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	req.Header.Set("X-Agency-ID", "not-a-uuid")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireAgency_CheckerError(t *testing.T) {
	h := RequireAgency(staticChecker{err: assert.AnError})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	req.Header.Set("X-Agency-ID", uuid.NewString())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestContextAccessors_Empty(t *testing.T) {
	assert.Equal(t, uuid.Nil, AgencyID(context.Background()))
	assert.Equal(t, uuid.Nil, UserID(context.Background()))
}
