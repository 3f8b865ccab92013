package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	firebase "github.com/isqad/firebase-auth-service/pkg/service"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/isqad/syncflow/internal/admin"
	"github.com/isqad/syncflow/internal/core"
)

type ctxKey string

const (
	// UserContextKey is used for extract user from request context
	UserContextKey ctxKey = "current_user"
)

// AuthFailFunc is function that is called when authentication failed
type AuthFailFunc func(w http.ResponseWriter, r *http.Request, err error)

// AuthHandler is optional handler for mocking in tests
type AuthHandler func(next http.Handler) http.Handler

// TokenVerifier resolves an identity provider token into its user uid.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

var (
	xAuth             = http.CanonicalHeaderKey("X-Auth")
	ErrEmptyAuthToken = errors.New("empty auth token")
)

type FirebaseAuth struct {
	Addr         string
	AuthFailFunc AuthFailFunc
	StubHandler  AuthHandler
	Verifier     TokenVerifier

	userRepository core.UserStorer
	cookieStore    sessions.Store
}

func NewFirebaseAuth(userRepository core.UserStorer, cookieStore sessions.Store) *FirebaseAuth {
	return &FirebaseAuth{
		userRepository: userRepository,
		cookieStore:    cookieStore,
	}
}

// Middleware is a middleware that verifies token from Firebase Auth
func (m *FirebaseAuth) Middleware() AuthHandler {
	if m.StubHandler != nil {
		return m.StubHandler
	}

	return m.defaultMiddleware()
}

func (m *FirebaseAuth) defaultMiddleware() AuthHandler {
	verifier := m.Verifier
	if verifier == nil {
		verifier = &grpcVerifier{addr: m.Addr}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u := m.adminFromCookie(r); u != nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
				return
			}

			token := r.Header.Get(xAuth)
			if token == "" {
				m.authFailed(w, r, ErrEmptyAuthToken)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			uid, err := verifier.Verify(ctx, token)
			if err != nil {
				m.authFailed(w, r, err)
				return
			}

			// the token is valid, a failure here is ours
			u, err := m.findOrCreate(r.Context(), uid)
			if err != nil {
				writeError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func (m *FirebaseAuth) adminFromCookie(r *http.Request) *core.User {
	if m.cookieStore == nil {
		return nil
	}
	adminSession, err := m.cookieStore.Get(r, admin.SessionName)
	if err != nil {
		return nil
	}
	adminID, ok := adminSession.Values["id"].(string)
	if !ok {
		return nil
	}
	u, err := m.userRepository.Find(r.Context(), adminID)
	if err != nil || !u.IsAdmin {
		return nil
	}
	return u
}

// findOrCreate provisions a dashboard user on the first verified login.
func (m *FirebaseAuth) findOrCreate(ctx context.Context, uid string) (*core.User, error) {
	u, err := m.userRepository.FindByUID(ctx, uid)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, core.ErrRecordNotFound) {
		return nil, err
	}

	u = &core.User{ID: uuid.NewString(), UID: uid, CreatedAt: time.Now().UTC()}
	if err := m.userRepository.Create(ctx, u); err != nil {
		// a concurrent first login may have inserted the user
		if existing, findErr := m.userRepository.FindByUID(ctx, uid); findErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("provision user %s: %w", uid, err)
	}
	log.Info().Str("service", "auth").Str("uid", uid).Msg("user provisioned")
	return u, nil
}

func (m *FirebaseAuth) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	log.Debug().Err(err).Str("service", "auth").Msg("authentication failed")

	if m.AuthFailFunc != nil {
		m.AuthFailFunc(w, r, err)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}
}

// grpcVerifier asks the firebase-auth-service to verify the token.
type grpcVerifier struct {
	addr string
}

func (v *grpcVerifier) Verify(ctx context.Context, token string) (string, error) {
	conn, err := grpc.DialContext(ctx, v.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	t, err := firebase.NewAuthClient(conn).Verify(ctx, &firebase.Token{Token: token})
	if err != nil {
		return "", err
	}
	return t.GetUserId(), nil
}

func WithUser(ctx context.Context, u *core.User) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

// UserFromContext returns the authenticated user.
func UserFromContext(ctx context.Context) (*core.User, error) {
	user, ok := ctx.Value(UserContextKey).(*core.User)
	if !ok || user == nil {
		return nil, errors.New("can't get user from request context")
	}

	return user, nil
}

func userFromRequest(r *http.Request) (*core.User, error) {
	return UserFromContext(r.Context())
}
