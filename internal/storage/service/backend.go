package service

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/response"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/types"
)

// BackendService exposes backend administration over HTTP. All routes require
// an admin identity.
type BackendService struct {
	registry *biz.BackendRegistry
	probe    *biz.HealthProbe
	quota    *biz.QuotaLedger
	logger   *logger.Logger
}

// NewBackendService creates the backend admin service
func NewBackendService(registry *biz.BackendRegistry, probe *biz.HealthProbe, quota *biz.QuotaLedger, log *logger.Logger) *BackendService {
	return &BackendService{
		registry: registry,
		probe:    probe,
		quota:    quota,
		logger:   log,
	}
}

// Register handles POST /admin/backends
func (s *BackendService) Register(c *gin.Context) {
	var req RegisterBackendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b := &biz.Backend{
		Name:         req.Name,
		Kind:         types.BackendKind(req.Kind),
		Credentials:  req.Credentials,
		Capabilities: req.Capabilities,
		Settings:     req.Settings,
		IsDefault:    req.IsDefault,
	}

	created, err := s.registry.Register(c.Request.Context(), b)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toBackendView(created))
}

// List handles GET /admin/backends
func (s *BackendService) List(c *gin.Context) {
	backends, err := s.registry.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toBackendViews(backends))
}

// Get handles GET /admin/backends/:id
func (s *BackendService) Get(c *gin.Context) {
	b, err := s.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toBackendView(b))
}

// SetDefault handles PUT /admin/backends/:id/default
func (s *BackendService) SetDefault(c *gin.Context) {
	if err := s.registry.SetDefault(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Deactivate handles DELETE /admin/backends/:id
func (s *BackendService) Deactivate(c *gin.Context) {
	if err := s.registry.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ProbeNow handles POST /admin/backends/:id/probe, running an immediate
// health check and applying the result.
func (s *BackendService) ProbeNow(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := s.registry.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	res := s.probe.Probe(ctx, b)
	if err := s.registry.ApplyProbeResult(ctx, res); err != nil {
		response.Error(c, err)
		return
	}

	updated, err := s.registry.Get(ctx, b.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toBackendView(updated))
}

// SetQuotaLimitRequest updates one owner's quota override
type SetQuotaLimitRequest struct {
	LimitBytes int64 `json:"limit_bytes" binding:"required"`
}

// SetOwnerQuota handles PUT /admin/quotas/:owner_id
func (s *BackendService) SetOwnerQuota(c *gin.Context) {
	var req SetQuotaLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.quota.SetLimit(c.Request.Context(), c.Param("owner_id"), req.LimitBytes); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetOwnerQuota handles GET /admin/quotas/:owner_id
func (s *BackendService) GetOwnerQuota(c *gin.Context) {
	ownerID := c.Param("owner_id")
	if err := s.quota.Prime(c.Request.Context(), ownerID); err != nil {
		response.Error(c, err)
		return
	}
	used, limit, _ := s.quota.Snapshot(ownerID)
	response.Success(c, quotaView(used, limit))
}

func quotaView(used, limit int64) *QuotaView {
	available := limit - used
	if available < 0 {
		available = 0
	}
	var fraction float64
	if limit > 0 {
		fraction = float64(used) / float64(limit)
	}
	return &QuotaView{
		UsedBytes:      used,
		LimitBytes:     limit,
		AvailableBytes: available,
		UsedFraction:   fraction,
	}
}

// parseInt64Query reads an optional integer query parameter
func parseInt64Query(c *gin.Context, name string) int64 {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
