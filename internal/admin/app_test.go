package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/syncflow/internal/core"
)

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := core.NewUserRepository(sqlx.NewDb(db, "sqlmock"))
	return NewApp(users, NewCookieStore("test-secret", false)), mock
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials set the session cookie", func(t *testing.T) {
		app, mock := newTestApp(t)
		rows := sqlmock.NewRows([]string{"id", "uid", "email", "name", "is_admin", "created_at"}).
			AddRow("u-1", "firebase-1", "root@example.com", "Root", true, time.Now())
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("secret", "root@example.com").
			WillReturnRows(rows)

		ts := httptest.NewServer(app.Router())
		defer ts.Close()

		resp, err := http.Post(ts.URL+"/login", "application/json",
			strings.NewReader(`{"email":"root@example.com","password":"secret"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, resp.Cookies(), 1)
		assert.Equal(t, SessionName, resp.Cookies()[0].Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		app, mock := newTestApp(t)
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("nope", "root@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		ts := httptest.NewServer(app.Router())
		defer ts.Close()

		resp, err := http.Post(ts.URL+"/login", "application/json",
			strings.NewReader(`{"email":"root@example.com","password":"nope"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, resp.Cookies())
	})

	t.Run("malformed body", func(t *testing.T) {
		app, _ := newTestApp(t)
		ts := httptest.NewServer(app.Router())
		defer ts.Close()

		resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogout(t *testing.T) {
	app, _ := newTestApp(t)
	ts := httptest.NewServer(app.Router())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/login", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, resp.Cookies(), 1)
	assert.True(t, resp.Cookies()[0].MaxAge < 0)
}
