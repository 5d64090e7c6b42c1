package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"skillbadge/internal/access"
	"skillbadge/internal/domain"
	"skillbadge/internal/identity"
	"skillbadge/internal/ledger"
	"skillbadge/internal/metrics"
	"skillbadge/internal/repository"
	"skillbadge/internal/service"
	"skillbadge/internal/storage"
)

const certificateURLTTL = 15 * time.Minute

type Config struct {
	Ledger   service.LedgerService
	Accounts service.AccountService
	Tokens   *identity.TokenManager
	Storage  storage.Service
	Bucket   string
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer
	Logger   *logrus.Logger
}

// Handler wires HTTP routes to the ledger services.
type Handler struct {
	ledger   service.LedgerService
	accounts service.AccountService
	tokens   *identity.TokenManager
	storage  storage.Service
	bucket   string
	metrics  *metrics.HTTPMetrics
	gatherer prometheus.Gatherer
	logger   *logrus.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Handler{
		ledger:   cfg.Ledger,
		accounts: cfg.Accounts,
		tokens:   cfg.Tokens,
		storage:  cfg.Storage,
		bucket:   cfg.Bucket,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware(h.logger))
	if h.metrics != nil {
		router.Use(h.metrics.Middleware())
	}
	router.Use(corsMiddleware())
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(h.gatherer)))
	}

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
	}

	authed := api.Group("")
	authed.Use(h.authMiddleware())
	{
		authed.GET("/users/:principal/badges", h.userBadges)
		authed.GET("/users/:principal/profile", h.userProfile)
		authed.GET("/badges", h.listBadges)
		authed.POST("/badges", h.issueBadge)
		authed.GET("/badges/:id", h.getBadge)
		authed.GET("/badges/:id/certificate", h.certificate)
		authed.GET("/certificates", h.listCertificates)
		authed.GET("/profile", h.callerProfile)
		authed.PUT("/profile", h.saveProfile)
		authed.GET("/role", h.callerRole)
		authed.GET("/role/admin", h.isAdmin)
		authed.POST("/roles", h.assignRole)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) userBadges(c *gin.Context) {
	user, err := domain.ParsePrincipal(c.Param("principal"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	badges, err := h.ledger.BadgesForUser(c.Request.Context(), user)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, badgesToJSON(badges))
}

func (h *Handler) listBadges(c *gin.Context) {
	badges, err := h.ledger.AllBadges(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, badgesToJSON(badges))
}

func (h *Handler) getBadge(c *gin.Context) {
	id, err := domain.ParseBadgeID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	badge, err := h.ledger.Badge(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if badge == nil {
		c.JSON(http.StatusNotFound, ledger.ErrorResponse{Error: "badge not found"})
		return
	}
	c.JSON(http.StatusOK, ledger.BadgeToJSON(*badge))
}

func (h *Handler) issueBadge(c *gin.Context) {
	var req ledger.IssueBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ledger.ErrorResponse{Error: err.Error()})
		return
	}

	id, err := h.ledger.IssueBadge(c.Request.Context(), caller(c), domain.Principal(req.Owner), req.SkillName, req.Description, req.Level)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ledger.IssueBadgeResponse{ID: uint64(id)})
}

func (h *Handler) callerProfile(c *gin.Context) {
	profile, err := h.ledger.CallerProfile(c.Request.Context(), caller(c))
	h.writeProfile(c, profile, err)
}

func (h *Handler) userProfile(c *gin.Context) {
	user, err := domain.ParsePrincipal(c.Param("principal"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	profile, err := h.ledger.UserProfile(c.Request.Context(), caller(c), user)
	h.writeProfile(c, profile, err)
}

func (h *Handler) writeProfile(c *gin.Context, profile *domain.UserProfile, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, ledger.ErrorResponse{Error: "profile not found"})
		return
	}
	c.JSON(http.StatusOK, ledger.ProfileToJSON(*profile))
}

func (h *Handler) saveProfile(c *gin.Context) {
	var req ledger.ProfileJSON
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ledger.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.ledger.SaveCallerProfile(c.Request.Context(), caller(c), req.Domain()); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) callerRole(c *gin.Context) {
	role, err := h.ledger.CallerRole(c.Request.Context(), caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.RoleResponse{Role: role.String()})
}

func (h *Handler) isAdmin(c *gin.Context) {
	admin, err := h.ledger.IsAdmin(c.Request.Context(), caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.AdminResponse{Admin: admin})
}

func (h *Handler) assignRole(c *gin.Context) {
	var req ledger.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ledger.ErrorResponse{Error: err.Error()})
		return
	}
	role, err := domain.ParseUserRole(req.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.ledger.AssignRole(c.Request.Context(), caller(c), domain.Principal(req.User), role); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) certificate(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, ledger.ErrorResponse{Error: "certificate storage not configured"})
		return
	}
	id, err := domain.ParseBadgeID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	location, err := h.ledger.CertificateLocation(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if location == "" {
		c.JSON(http.StatusNotFound, ledger.ErrorResponse{Error: "certificate not archived yet"})
		return
	}
	key, err := storage.SplitLocation(location, h.bucket)
	if err != nil {
		h.writeError(c, err)
		return
	}
	url, err := h.storage.GetObjectURL(c.Request.Context(), h.bucket, key, certificateURLTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.CertificateResponse{URL: url})
}

func (h *Handler) listCertificates(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, ledger.ErrorResponse{Error: "certificate storage not configured"})
		return
	}
	role, err := h.ledger.CallerRole(c.Request.Context(), caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := access.Require(role, access.AssignRole); err != nil {
		c.JSON(http.StatusForbidden, ledger.ErrorResponse{Error: err.Error()})
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, c.Query("prefix"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

// writeError maps service and domain errors onto status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidBadgeID),
		errors.Is(err, domain.ErrInvalidPrincipal),
		errors.Is(err, domain.ErrInvalidRole):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrInvalidRegistrationPassword):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUserAlreadyExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.WithField("request_id", c.GetString(requestIDKey)).Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, ledger.ErrorResponse{Error: err.Error()})
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func badgesToJSON(badges []domain.SkillBadge) []ledger.BadgeJSON {
	resp := make([]ledger.BadgeJSON, len(badges))
	for i := range badges {
		resp[i] = ledger.BadgeToJSON(badges[i])
	}
	return resp
}
