package echoapi

import (
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/session"
)

const (
	sessionStateKey   = "state"
	contextSessionKey = "session"
)

// NewCookieStore returns a store keeping the session in a signed and encrypted cookie.
func NewCookieStore(conf *core.Config) *sessions.CookieStore {
	hashKey := sha256.Sum256([]byte("session.hash:" + conf.SecretKey))
	blockKey := sha256.Sum256([]byte("session.block:" + conf.SecretKey))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(conf.Server.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   !(conf.Debug || conf.TestMode),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// sessionMiddleware loads the visitor's session.State before the handler runs and writes it back,
// if it changed, right before the response headers go out.
func sessionMiddleware(store sessions.Store, name string, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			// a cookie that fails to decode yields a new, empty session
			sess, _ := store.Get(ctx.Request(), name)
			if sess == nil {
				sess = sessions.NewSession(store, name)
			}
			raw, _ := sess.Values[sessionStateKey].(string)
			state := session.Decode(raw)
			ctx.Set(contextSessionKey, state)

			ctx.Response().Before(func() {
				if !state.Dirty() {
					return
				}
				encoded, err := state.Encode()
				if err != nil {
					logger.Error(fmt.Sprintf("encoding session: %v", err), err)
					return
				}
				sess.Values[sessionStateKey] = encoded
				if err = sess.Save(ctx.Request(), ctx.Response()); err != nil {
					logger.Error(fmt.Sprintf("saving session: %v", err), err)
				}
			})
			return next(ctx)
		}
	}
}

func getContextSession(ctx echo.Context) *session.State {
	if state, ok := ctx.Get(contextSessionKey).(*session.State); ok {
		return state
	}
	return session.New()
}
