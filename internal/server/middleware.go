package server

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/alderburg/Teste-sub007/internal/auth"
	"github.com/alderburg/Teste-sub007/internal/models"
	"github.com/alderburg/Teste-sub007/internal/sessionstore"
)

const (
	bearerPrefix = "Bearer "

	sessionKey = "session"
	userKey    = "user"
)

var (
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrUserNotFound      = errors.New("user not found")
)

func setSession(c *gin.Context, sessionData *auth.SessionData, user *models.User) {
	c.Set(sessionKey, sessionData)
	c.Set(userKey, user)
}

// GetSessionData returns the session resolved for this request, if any
func GetSessionData(c *gin.Context) (*auth.SessionData, bool) {
	session, exists := c.Get(sessionKey)
	if !exists {
		return nil, false
	}

	sessionData, ok := session.(*auth.SessionData)
	return sessionData, ok
}

// GetSessionUser returns the user of the session resolved for this request
func GetSessionUser(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	u, ok := user.(*models.User)
	return u, ok
}

type requestToken struct {
	value  string
	method string
}

// requestTokens returns the session tokens the request carries, cookie first
func (s *Server) requestTokens(c *gin.Context) []requestToken {
	var tokens []requestToken
	if cookie, err := c.Cookie(s.config.Session.CookieName); err == nil && cookie != "" {
		tokens = append(tokens, requestToken{value: cookie, method: "cookie"})
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return tokens
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		s.logger.Debug().Err(ErrInvalidAuthFormat).Msg("Ignoring authorization header")
		return tokens
	}
	return append(tokens, requestToken{value: strings.TrimPrefix(authHeader, bearerPrefix), method: "bearer"})
}

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
	c.Abort()
}

// noStoreMiddleware stops browsers and proxies from caching API answers. A
// cached "who am I" after logout would re-admit a signed-out user.
func noStoreMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}

// sessionMiddleware resolves the request's session, if any. A token that
// does not resolve gives way to the next one the request carries. Requests
// with no valid session continue anonymously; only a failing store aborts
// the request.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, token := range s.requestTokens(c) {
			sess, user, err := s.resolveSession(c, token.value)
			if err != nil {
				respondWithError(c, s.logger, http.StatusServiceUnavailable, err, "Session store unavailable")
				return
			}
			if sess == nil {
				continue
			}

			setSession(c, &auth.SessionData{
				SessionID:  sess.ID,
				UserID:     user.ID,
				Stage:      sess.Stage,
				ExpiresAt:  sess.ExpiresAt,
				AuthMethod: token.method,
			}, user)
			break
		}

		c.Next()
	}
}

// resolveSession maps a token to its live session and user. It returns nil
// without an error when the token does not resolve.
func (s *Server) resolveSession(c *gin.Context, token string) (*models.Session, *models.User, error) {
	claims, err := auth.ValidateToken(token)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Ignoring invalid session token")
		return nil, nil, nil
	}

	sess, err := s.sessions.Get(c.Request.Context(), claims.SessionID)
	if errors.Is(err, sessionstore.ErrSessionNotFound) {
		s.logger.Debug().Str("session_id", claims.SessionID).Msg("Session revoked or expired")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if sess.UserID != claims.UserID || sess.Stage != claims.Stage {
		s.logger.Warn().Str("session_id", sess.ID).Msg("Token does not match its session")
		return nil, nil, nil
	}

	var user models.User
	if err := models.FindByID(s.db.WithContext(c.Request.Context()), sess.UserID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(ErrUserNotFound).Str("user_id", sess.UserID).Msg("Session user no longer exists")
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return sess, &user, nil
}

// RequireSession rejects requests without a session. With stages given the
// session must be in one of them.
func RequireSession(log zerolog.Logger, stages ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionData, exists := GetSessionData(c)
		if !exists {
			respondWithError(c, log, http.StatusUnauthorized, errors.New("no session"), "Not authenticated")
			return
		}

		if len(stages) > 0 && !slices.Contains(stages, sessionData.Stage) {
			respondWithError(c, log, http.StatusUnauthorized, errors.New("session not verified"), "Two-factor verification required")
			return
		}

		c.Next()
	}
}
