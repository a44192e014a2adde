package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/tenant"
	"github.com/bpofinanceiro/reconciliation-service/internal/operator/middleware"
	"github.com/bpofinanceiro/reconciliation-service/internal/operator/service"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// OperatorHandler serves the manual-review API: the ambiguous queue, match
// confirmation, parked jobs and the audit trail
type OperatorHandler struct {
	logger  *slog.Logger
	service service.OperatorService
}

// NewOperatorHandler creates the operator API handler
func NewOperatorHandler(logger *slog.Logger, svc service.OperatorService) *OperatorHandler {
	return &OperatorHandler{
		logger:  logger,
		service: svc,
	}
}

// ListAmbiguous returns the tenant's transactions awaiting manual review
func (h *OperatorHandler) ListAmbiguous(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, perPage := pagination(c)

	items, err := h.service.ListAmbiguous(c.Request.Context(), tenantID, page, perPage)
	if err != nil {
		h.logger.Error("Failed to list ambiguous transactions", "tenant_id", tenantID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]*AmbiguousTransactionResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toAmbiguousResponse(item))
	}
	RespondWithPage(c, responses, page, perPage)
}

// ConfirmMatch commits a reviewer's decision
func (h *OperatorHandler) ConfirmMatch(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req ConfirmMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	match, err := h.service.ConfirmMatch(c.Request.Context(), tenantID, req.BankTransactionID, req.EntryIDs, req.Reviewer)
	if err != nil {
		switch {
		case errors.Is(err, bank.ErrTransactionNotFound{}) || errors.Is(err, ledger.ErrEntryNotFound{}):
			RespondNotFound(c, err.Error())
		case errors.Is(err, service.ErrNotReviewable) || errors.Is(err, service.ErrEntryNotMatchable):
			RespondConflict(c, err.Error())
		case errors.Is(err, service.ErrNoEntries) || errors.Is(err, tenant.ErrContextMissing):
			RespondBadRequest(c, err.Error())
		default:
			h.logger.Error("Failed to confirm match", "tenant_id", tenantID.String(), "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondCreated(c, toMatchResponse(match))
}

// ListFailedJobs returns jobs parked as failed-permanent
func (h *OperatorHandler) ListFailedJobs(c *gin.Context) {
	page, perPage := pagination(c)

	jobs, err := h.service.ListFailedJobs(c.Request.Context(), page, perPage)
	if err != nil {
		h.logger.Error("Failed to list failed-permanent jobs", "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]*JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, toJobResponse(job))
	}
	RespondWithPage(c, responses, page, perPage)
}

// RequeueJob returns a parked job to the queue
func (h *OperatorHandler) RequeueJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "invalid job id")
		return
	}

	if err := h.service.RequeueJob(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, syncjob.ErrJobNotFound{}) {
			RespondNotFound(c, err.Error())
			return
		}
		h.logger.Error("Failed to requeue job", "job_id", jobID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondNoContent(c)
}

// CancelJob cancels a pending job
func (h *OperatorHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "invalid job id")
		return
	}

	if err := h.service.CancelJob(c.Request.Context(), jobID); err != nil {
		var notCancellable syncjob.ErrNotCancellable
		switch {
		case errors.Is(err, syncjob.ErrJobNotFound{}):
			RespondNotFound(c, err.Error())
		case errors.As(err, &notCancellable):
			RespondConflict(c, err.Error())
		default:
			h.logger.Error("Failed to cancel job", "job_id", jobID.String(), "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondNoContent(c)
}

// ListAuditEvents returns the tenant's audit trail, newest first
func (h *OperatorHandler) ListAuditEvents(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, perPage := pagination(c)

	events, err := h.service.ListAuditEvents(c.Request.Context(), tenantID, page, perPage)
	if err != nil {
		h.logger.Error("Failed to list audit events", "tenant_id", tenantID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondWithPage(c, events, page, perPage)
}

func pagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return page, perPage
}
