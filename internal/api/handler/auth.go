package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/models"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const userContextKey = "user"

// generateJWT issues a token whose subject is the survey response id.
func (h *Handler) generateJWT(responseID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   responseID,
		Issuer:    h.Auth.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.Auth.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.Auth.JWTSecret))
}

// validateAndGetResponseID checks the signature and expiry and returns the
// token subject.
func (h *Handler) validateAndGetResponseID(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(h.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(h.Auth.Issuer))
	if err != nil {
		return "", fmt.Errorf("parse token: %v: %w", err, apperrors.ErrAuthentication)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject: %w", apperrors.ErrAuthentication)
	}
	return claims.Subject, nil
}

// tokenFromRequest reads the bearer header, falling back to the token query
// parameter for websocket clients.
func tokenFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.Query("token")
}

// AuthRequired resolves the caller to a user, or aborts with 401.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			h.respondError(c, fmt.Errorf("missing token: %w", apperrors.ErrAuthentication))
			return
		}
		responseID, err := h.validateAndGetResponseID(tokenString)
		if err != nil {
			h.respondError(c, err)
			return
		}
		user, err := h.Storage.GetUserByResponseID(c.Request.Context(), responseID)
		if errors.Is(err, apperrors.ErrNotFound) {
			h.respondError(c, fmt.Errorf("unknown subject %q: %w", responseID, apperrors.ErrAuthentication))
			return
		}
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userContextKey).(*models.User)
}

type signupRequest struct {
	RespondentID string          `json:"respondentId" binding:"required,max=320"`
	Position     models.Position `json:"position" binding:"required,oneof=support oppose"`
}

// Signup registers a survey respondent and returns their token. Signing up
// again with the same respondent id returns a fresh token for the existing
// user.
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("signup: %v: %w", err, apperrors.ErrInvalidInput))
		return
	}
	ctx := c.Request.Context()

	user, err := h.Storage.GetUserByResponseID(ctx, req.RespondentID)
	if errors.Is(err, apperrors.ErrNotFound) {
		user = &models.User{ResponseID: req.RespondentID, Position: req.Position}
		if err = h.Storage.CreateUser(ctx, user); err != nil {
			// Lost a race with a concurrent signup for the same id.
			user, err = h.Storage.GetUserByResponseID(ctx, req.RespondentID)
		}
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.generateJWT(user.ResponseID)
	if err != nil {
		h.respondError(c, fmt.Errorf("sign token: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
