package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"skillbadge/internal/domain"
	"skillbadge/internal/ledger"
)

const (
	principalKey = "principal"
	requestIDKey = "request_id"
)

// authMiddleware resolves the caller principal. Requests without a bearer token run
// as the anonymous principal; a malformed or expired token is rejected.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Set(principalKey, domain.AnonymousPrincipal)
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ledger.ErrorResponse{Error: "invalid authorization header"})
			return
		}
		principal, err := h.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ledger.ErrorResponse{Error: err.Error()})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func caller(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.AnonymousPrincipal
}

func requestIDMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)

		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"request_id": id,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
		}).Debugf("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}

func (h *Handler) register(c *gin.Context) {
	var req ledger.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ledger.ErrorResponse{Error: err.Error()})
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password, req.Secret)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeToken(c, http.StatusCreated, account.Principal, account.Username)
}

func (h *Handler) login(c *gin.Context) {
	var req ledger.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ledger.ErrorResponse{Error: err.Error()})
		return
	}

	account, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeToken(c, http.StatusOK, account.Principal, account.Username)
}

func (h *Handler) writeToken(c *gin.Context, status int, principal domain.Principal, username string) {
	token, expires, err := h.tokens.Issue(principal, username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(status, ledger.TokenResponse{
		Token:     token,
		Principal: principal.String(),
		ExpiresAt: expires.Unix(),
	})
}
