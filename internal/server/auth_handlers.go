package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/alderburg/Teste-sub007/internal/auth"
	"github.com/alderburg/Teste-sub007/internal/models"
	"github.com/alderburg/Teste-sub007/internal/sessionstore"
)

// RegisterRequest represents a signup request
type RegisterRequest struct {
	Username string `json:"username" binding:"required" validate:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required" validate:"required,email"`
	Password string `json:"password" binding:"required" validate:"required,min=8"`
}

// LoginRequest represents a login request. Identifier is a username or an
// email address.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	RequiresTwoFactor bool          `json:"requires2FA"`
	User              *UserResponse `json:"user"`
	Token             string        `json:"token"`
}

// VerifyTwoFactorRequest completes a pending login
type VerifyTwoFactorRequest struct {
	UserID string `json:"userId" binding:"required"`
	Code   string `json:"code" binding:"required,len=6,numeric"`
}

// VerifyTwoFactorResponse represents a completed login
type VerifyTwoFactorResponse struct {
	User  *UserResponse `json:"user"`
	Token string        `json:"token"`
}

// TwoFactorSessionStatus tells whether the caller's session still owes a
// second factor
type TwoFactorSessionStatus struct {
	Authenticated        bool `json:"authenticated"`
	RequiresVerification bool `json:"requiresVerification"`
}

// UserResponse represents user information returned in responses
type UserResponse struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	EmailVerified    bool      `json:"emailVerified"`
	CreatedAt        time.Time `json:"createdAt"`
}

func newUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		TwoFactorEnabled: user.TwoFactorEnabled,
		EmailVerified:    user.EmailVerified,
		CreatedAt:        user.CreatedAt,
	}
}

// @Summary Register
// @Description Creates an account. The first account becomes an admin.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Register request"
// @Success 201 {object} UserResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.validator.Struct(&req); err != nil {
		s.logger.Warn().Err(err).Msg("Request validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	db := s.db.WithContext(c.Request.Context())
	username, email := req.Username, req.Email

	var existing int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check username")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		return
	}
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			user.Role = models.RoleAdmin
		}
		return tx.Create(user).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Str("role", user.Role).Msg("User registered")

	c.JSON(http.StatusCreated, newUserResponse(user))
}

// @Summary Login
// @Description Checks a username or email and password. Accounts with
// @Description two-factor authentication get a pending session that only
// @Description /api/verify-2fa can complete.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/login [post]
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identifier := strings.TrimSpace(req.Identifier)

	var user models.User
	err := s.db.WithContext(c.Request.Context()).
		Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	// A new login replaces whatever session the caller held
	s.endRequestSession(c)

	stage := models.StageActive
	if user.TwoFactorEnabled {
		stage = models.StagePendingTwoFactor
	}

	token, ok := s.startSession(c, &user, stage)
	if !ok {
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("stage", stage).Msg("User logged in")

	c.JSON(http.StatusOK, LoginResponse{
		RequiresTwoFactor: user.TwoFactorEnabled,
		User:              newUserResponse(&user),
		Token:             token,
	})
}

// @Summary Verify second factor
// @Description Completes a pending login with a TOTP code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyTwoFactorRequest true "Verification request"
// @Success 200 {object} VerifyTwoFactorResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/verify-2fa [post]
func (s *Server) verifyTwoFactor(c *gin.Context) {
	var req VerifyTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionData, exists := GetSessionData(c)
	if !exists || sessionData.Stage != models.StagePendingTwoFactor || sessionData.UserID != req.UserID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Verification session expired"})
		return
	}
	user, _ := GetSessionUser(c)

	if !auth.ValidateTwoFactorCode(req.Code, user.TwoFactorSecret, s.now()) {
		s.rejectTwoFactorCode(c, sessionData)
		return
	}

	if err := s.sessions.Delete(c.Request.Context(), sessionData.SessionID); err != nil {
		s.logger.Error().Err(err).Msg("Failed to end pending session")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
		return
	}

	token, ok := s.startSession(c, user, models.StageActive)
	if !ok {
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Second factor verified")

	c.JSON(http.StatusOK, VerifyTwoFactorResponse{
		User:  newUserResponse(user),
		Token: token,
	})
}

// rejectTwoFactorCode counts a wrong code against the pending session and
// ends the session once the configured number of attempts is used up.
func (s *Server) rejectTwoFactorCode(c *gin.Context, sessionData *auth.SessionData) {
	ctx := c.Request.Context()
	attempts, err := s.sessions.RecordFailedAttempt(ctx, &models.Session{
		BaseModel: models.BaseModel{ID: sessionData.SessionID},
		UserID:    sessionData.UserID,
		ExpiresAt: sessionData.ExpiresAt,
	})
	if errors.Is(err, sessionstore.ErrSessionNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Verification session expired"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to record second factor attempt")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
		return
	}

	limit := s.config.TwoFactor.MaxAttempts
	if limit <= 0 || attempts < limit {
		s.logger.Warn().Str("user_id", sessionData.UserID).Int("attempts", attempts).Msg("Rejected second factor code")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid verification code"})
		return
	}

	s.logger.Warn().Str("user_id", sessionData.UserID).Int("attempts", attempts).Msg("Too many second factor attempts, ending pending session")
	if !s.endRequestSession(c) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
		return
	}
	s.clearSessionCookie(c)
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Too many verification attempts"})
}

// @Summary Get current user
// @Description Returns the user of the caller's session, verified or not
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} map[string]interface{}
// @Router /api/user [get]
func (s *Server) getCurrentUser(c *gin.Context) {
	user, exists := GetSessionUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

// @Summary Second factor session status
// @Description Reports whether the caller's session still owes a second factor
// @Tags auth
// @Produce json
// @Success 200 {object} TwoFactorSessionStatus
// @Router /api/auth/2fa-session-status [get]
func (s *Server) twoFactorSessionStatus(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusOK, TwoFactorSessionStatus{})
		return
	}

	c.JSON(http.StatusOK, TwoFactorSessionStatus{
		Authenticated:        true,
		RequiresVerification: sessionData.Stage == models.StagePendingTwoFactor,
	})
}

// @Summary Logout
// @Description Revokes the caller's session. Succeeds without a session too.
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/logout [post]
func (s *Server) logout(c *gin.Context) {
	if !s.endRequestSession(c) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
		return
	}
	s.clearSessionCookie(c)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// startSession stores a session for user, sets the cookie and returns the
// token. It responds with an error itself when it returns false.
func (s *Server) startSession(c *gin.Context, user *models.User, stage string) (string, bool) {
	ttl := s.config.Session.TTL
	if stage == models.StagePendingTwoFactor {
		ttl = s.config.Session.PendingTTL
	}

	now := s.now()
	sess := &models.Session{
		UserID:     user.ID,
		Stage:      stage,
		ExpiresAt:  now.Add(ttl),
		UserAgent:  c.Request.UserAgent(),
		ClientIP:   c.ClientIP(),
		LastSeenAt: now,
	}
	if err := s.sessions.Create(c.Request.Context(), sess); err != nil {
		s.logger.Error().Err(err).Msg("Failed to create session")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
		return "", false
	}

	token, err := auth.GenerateToken(sess.ID, user.ID, stage, sess.ExpiresAt)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return "", false
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.Session.CookieName, token, int(ttl.Seconds()), "/", "", s.config.Session.CookieSecure, true)

	return token, true
}

// endRequestSession deletes the caller's session, if any. It reports false
// only when the store failed.
func (s *Server) endRequestSession(c *gin.Context) bool {
	sessionData, exists := GetSessionData(c)
	if !exists {
		return true
	}
	if err := s.sessions.Delete(c.Request.Context(), sessionData.SessionID); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionData.SessionID).Msg("Failed to delete session")
		return false
	}
	s.logger.Info().Str("session_id", sessionData.SessionID).Str("user_id", sessionData.UserID).Msg("Session ended")
	return true
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.Session.CookieName, "", -1, "/", "", s.config.Session.CookieSecure, true)
}
