package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/config"
	"github.com/Wynand91/fedauth/internal/session"
)

const (
	// SessionCookie is the browser cookie naming the server-side session.
	SessionCookie = "fedauth_session"

	ginSessionKey = "flowSession"
)

// Sessions loads the flow session named by the request cookie, or starts a
// fresh one, and persists it when the flow mutated it. Handlers write their
// response (c.JSON, c.Redirect) before the middleware regains control, so the
// response writer is wrapped and the session is flushed right before the
// first byte goes out; the Set-Cookie header always reaches the client.
func Sessions(cfg config.Config, store session.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := loadOrCreate(c, store)
		if err != nil {
			logger.Error("session setup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Session unavailable.",
			})
			return
		}
		c.Set(ginSessionKey, sess)

		writer := &sessionWriter{
			ResponseWriter: c.Writer,
			c:              c,
			cfg:            cfg,
			store:          store,
			sess:           sess,
			logger:         logger,
		}
		c.Writer = writer

		c.Next()

		// Handlers that wrote nothing still get their session persisted.
		writer.flushSession()
	}
}

// sessionWriter persists the session and sets the cookie immediately before
// the response is committed.
type sessionWriter struct {
	gin.ResponseWriter
	c       *gin.Context
	cfg     config.Config
	store   session.Store
	sess    *session.Session
	logger  *zap.Logger
	flushed bool
}

func (w *sessionWriter) WriteHeader(code int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) WriteString(s string) (int, error) {
	w.flushSession()
	return w.ResponseWriter.WriteString(s)
}

func (w *sessionWriter) WriteHeaderNow() {
	w.flushSession()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionWriter) flushSession() {
	if w.flushed {
		return
	}
	w.flushed = true

	if !w.sess.Dirty() {
		return
	}
	if err := w.store.Save(w.c.Request.Context(), w.sess.ID(), w.sess.Data(), w.cfg.SessionTTL); err != nil {
		w.logger.Error("session save failed", zap.Error(err))
		return
	}
	w.sess.MarkClean()

	// Covers both fresh sessions and callbacks that adopted another
	// session's identifier.
	if id, err := w.c.Cookie(SessionCookie); err != nil || id != w.sess.ID() {
		setCookie(w.c, w.cfg, w.sess.ID())
	}
}

// GetSession exposes the request's flow session to handlers.
func GetSession(c *gin.Context) (*session.Session, bool) {
	value, ok := c.Get(ginSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := value.(*session.Session)
	return sess, ok
}

func loadOrCreate(c *gin.Context, store session.Store) (*session.Session, error) {
	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		data, found, err := store.Load(c.Request.Context(), id)
		if err != nil {
			return nil, err
		}
		if found {
			return session.Restore(id, data), nil
		}
	}
	return session.New()
}

func setCookie(c *gin.Context, cfg config.Config, id string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Environment == "production",
		SameSite: http.SameSiteLaxMode,
	})
}
