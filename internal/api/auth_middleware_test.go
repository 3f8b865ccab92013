package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/syncflow/internal/admin"
	"github.com/isqad/syncflow/internal/core"
)

type stubVerifier struct {
	uid string
	err error
}

func (v *stubVerifier) Verify(_ context.Context, _ string) (string, error) {
	return v.uid, v.err
}

var userColumns = []string{"id", "uid", "email", "name", "is_admin", "created_at"}

func whoAmI(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(user.ID))
}

func TestAuthMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}

	sqlxDb := sqlx.NewDb(db, "sqlmock")
	defer sqlxDb.Close()

	repo := core.NewUserRepository(sqlxDb)
	store := admin.NewCookieStore("test-secret", false)

	serve := func(firebaseAuth *FirebaseAuth, req *http.Request) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Use(firebaseAuth.Middleware())
		r.Get("/", whoAmI)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("default middleware with given AuthFailFunc", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.AuthFailFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusBadRequest)
		}

		rec := serve(firebaseAuth, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("default middleware without AuthFailFunc", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)

		rec := serve(firebaseAuth, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejected token", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.Verifier = &stubVerifier{err: errors.New("token expired")}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Auth", "expired")
		rec := serve(firebaseAuth, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("known user", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.Verifier = &stubVerifier{uid: "firebase-1"}

		mock.ExpectQuery("SELECT (.+) FROM users WHERE uid = ").
			WithArgs("firebase-1").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u-1", "firebase-1", "", "", false, time.Now()))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Auth", "valid")
		rec := serve(firebaseAuth, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-1", rec.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first login provisions the user", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.Verifier = &stubVerifier{uid: "firebase-2"}

		mock.ExpectQuery("SELECT (.+) FROM users WHERE uid = ").
			WithArgs("firebase-2").
			WillReturnRows(sqlmock.NewRows(userColumns))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "firebase-2", "", "", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u-2", "firebase-2", "", "", false, time.Now()))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Auth", "valid")
		rec := serve(firebaseAuth, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-2", rec.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database failure is a server error", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.Verifier = &stubVerifier{uid: "firebase-3"}

		mock.ExpectQuery("SELECT (.+) FROM users WHERE uid = ").
			WithArgs("firebase-3").
			WillReturnError(errors.New("connection reset"))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Auth", "valid")
		rec := serve(firebaseAuth, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent first login reads the winner", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.Verifier = &stubVerifier{uid: "firebase-4"}

		mock.ExpectQuery("SELECT (.+) FROM users WHERE uid = ").
			WithArgs("firebase-4").
			WillReturnRows(sqlmock.NewRows(userColumns))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "firebase-4", "", "", sqlmock.AnyArg()).
			WillReturnError(errors.New("could not serialize access"))
		mock.ExpectQuery("SELECT (.+) FROM users WHERE uid = ").
			WithArgs("firebase-4").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u-4", "firebase-4", "", "", false, time.Now()))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Auth", "valid")
		rec := serve(firebaseAuth, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-4", rec.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin cookie", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.Verifier = &stubVerifier{err: errors.New("must not be called")}

		// issue the cookie the admin login would write
		login := httptest.NewRecorder()
		session, err := store.Get(httptest.NewRequest(http.MethodPost, "/admin/login", nil), admin.SessionName)
		require.NoError(t, err)
		session.Values["id"] = "admin-1"
		require.NoError(t, session.Save(httptest.NewRequest(http.MethodPost, "/admin/login", nil), login))

		mock.ExpectQuery("SELECT (.+) FROM users WHERE id = ").
			WithArgs("admin-1").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow("admin-1", "firebase-0", "root@example.com", "Root", true, time.Now()))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range login.Result().Cookies() {
			req.AddCookie(c)
		}
		rec := serve(firebaseAuth, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin-1", rec.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stub handler", func(t *testing.T) {
		firebaseAuth := NewFirebaseAuth(repo, store)
		firebaseAuth.StubHandler = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		}

		rec := serve(firebaseAuth, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})
}
