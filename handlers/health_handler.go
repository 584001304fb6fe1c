package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	db     *sql.DB
	roles  repositories.RoleRepository
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. roles may be nil to skip the seed check.
func NewHealthHandler(db *sql.DB, roles repositories.RoleRepository, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		roles:  roles,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz. It answers 200 while the process is up.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz. The database must answer and the
// default role must be seeded, since first-sight user creation needs it.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		ready = false
	} else {
		checks["database"] = "healthy"
	}

	if h.roles != nil {
		if _, err := h.roles.GetByCode(ctx, models.DefaultRoleCode); err != nil {
			h.logger.Warn("role seed check failed",
				zap.String("code", string(models.DefaultRoleCode)),
				zap.Error(err))
			checks["role_seed"] = "missing"
			ready = false
		} else {
			checks["role_seed"] = "healthy"
		}
	}

	status, httpStatus := "healthy", http.StatusOK
	if !ready {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}
