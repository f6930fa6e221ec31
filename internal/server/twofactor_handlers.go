package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alderburg/Teste-sub007/internal/auth"
)

// TwoFactorSetupResponse carries the enrollment material for an
// authenticator app
type TwoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
	QRCode     string `json:"qrCode"`
}

// EnableTwoFactorRequest confirms enrollment with a first code
type EnableTwoFactorRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// @Summary Start two-factor enrollment
// @Description Issues a new TOTP secret. It takes effect once confirmed via /api/2fa/enable.
// @Tags two-factor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TwoFactorSetupResponse
// @Failure 401 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/2fa/setup [post]
func (s *Server) setupTwoFactor(c *gin.Context) {
	user, _ := GetSessionUser(c)
	if user.TwoFactorEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "Two-factor authentication is already enabled"})
		return
	}

	enrollment, err := auth.GenerateTwoFactorSecret(s.config.TwoFactor.Issuer, user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate two-factor secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate two-factor secret"})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Model(user).Update("pending_two_factor_secret", enrollment.Secret).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store two-factor secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Two-factor enrollment started")

	c.JSON(http.StatusOK, TwoFactorSetupResponse{
		Secret:     enrollment.Secret,
		OTPAuthURL: enrollment.OTPAuthURL,
		QRCode:     enrollment.QRCode,
	})
}

// @Summary Enable two-factor authentication
// @Description Confirms the pending secret with a code from the authenticator app
// @Tags two-factor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EnableTwoFactorRequest true "Enable request"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/2fa/enable [post]
func (s *Server) enableTwoFactor(c *gin.Context) {
	var req EnableTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, _ := GetSessionUser(c)
	if user.PendingTwoFactorSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Run two-factor setup first"})
		return
	}
	if !auth.ValidateTwoFactorCode(req.Code, user.PendingTwoFactorSecret, s.now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification code"})
		return
	}

	user.TwoFactorSecret = user.PendingTwoFactorSecret
	user.PendingTwoFactorSecret = ""
	user.TwoFactorEnabled = true

	err := s.db.WithContext(c.Request.Context()).Model(user).
		Select("two_factor_secret", "pending_two_factor_secret", "two_factor_enabled").
		Updates(user).Error
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enable two-factor authentication")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Two-factor authentication enabled")

	c.JSON(http.StatusOK, newUserResponse(user))
}
