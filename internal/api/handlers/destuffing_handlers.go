package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/cfs-destuffing-service/internal/api/dto"
	"github.com/wms-platform/cfs-destuffing-service/internal/application"
	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	"github.com/wms-platform/cfs-destuffing-service/pkg/middleware"
)

// DefaultHeartbeat is the idle interval between SSE keep-alive events
const DefaultHeartbeat = 15 * time.Second

// DestuffingService is the workflow surface the handlers drive
type DestuffingService interface {
	LoadPlan(ctx context.Context, planID string) (*application.PlanView, error)
	GetContainer(ctx context.Context, ref application.ContainerRef) (*application.ContainerView, error)
	LoadContainer(ctx context.Context, ref application.ContainerRef) (*application.ContainerView, error)
	Unseal(ctx context.Context, cmd application.UnsealCommand) (*application.ContainerView, error)
	Reseal(ctx context.Context, cmd application.ResealCommand) (*application.ContainerView, error)
	Complete(ctx context.Context, cmd application.CompleteCommand) (*application.CompletionResult, error)
	StartDestuff(ctx context.Context, cmd application.StartDestuffCommand) (*application.StartDestuffResult, error)
	RecordResult(ctx context.Context, cmd application.RecordResultCommand) (*application.RecordResultOutcome, error)
	ResealPrompt(ref application.ContainerRef) application.ResealPrompt
	DismissResealPrompt(ref application.ContainerRef) application.ResealPrompt
	Subscribe(ref application.ContainerRef, fn application.Observer) func()
}

// DestuffingHandlers contains handlers for destuffing operations
type DestuffingHandlers struct {
	service   DestuffingService
	logger    *logging.Logger
	heartbeat time.Duration
}

// NewDestuffingHandlers creates a new DestuffingHandlers
func NewDestuffingHandlers(service DestuffingService, logger *logging.Logger) *DestuffingHandlers {
	return &DestuffingHandlers{
		service:   service,
		logger:    logger,
		heartbeat: DefaultHeartbeat,
	}
}

// RegisterRoutes registers destuffing routes on the router
func (h *DestuffingHandlers) RegisterRoutes(router *gin.RouterGroup) {
	plans := router.Group("/plans")
	{
		plans.GET("/:planId", h.GetPlan)

		container := plans.Group("/:planId/containers/:containerId")
		container.GET("", h.GetContainer)
		container.POST("/refresh", h.RefreshContainer)
		container.POST("/unseal", h.Unseal)
		container.POST("/reseal", h.Reseal)
		container.POST("/complete", h.Complete)
		container.GET("/reseal-prompt", h.GetResealPrompt)
		container.DELETE("/reseal-prompt", h.DismissResealPrompt)
		container.POST("/hbls/:hblId/start", h.StartDestuff)
		container.POST("/hbls/:hblId/result", h.RecordResult)
		container.GET("/events", h.StreamEvents)
	}
}

func containerRef(c *gin.Context) application.ContainerRef {
	ref := application.ContainerRef{PlanID: c.Param("planId"), ContainerID: c.Param("containerId")}
	middleware.AnnotateSpan(c, "plan.id", ref.PlanID, "container.id", ref.ContainerID)
	return ref
}

func (h *DestuffingHandlers) respondError(c *gin.Context, err error) {
	middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(application.ToAppError(err))
}

// GetPlan handles loading a plan with every container
func (h *DestuffingHandlers) GetPlan(c *gin.Context) {
	planID := c.Param("planId")
	middleware.AnnotateSpan(c, "plan.id", planID)

	view, err := h.service.LoadPlan(c.Request.Context(), planID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromPlanView(view))
}

// GetContainer serves the container view, from cache when fresh
func (h *DestuffingHandlers) GetContainer(c *gin.Context) {
	view, err := h.service.GetContainer(c.Request.Context(), containerRef(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromContainerView(view))
}

// RefreshContainer forces a refetch and reconcile
func (h *DestuffingHandlers) RefreshContainer(c *gin.Context) {
	view, err := h.service.LoadContainer(c.Request.Context(), containerRef(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromContainerView(view))
}

// Unseal handles unsealing a waiting container
func (h *DestuffingHandlers) Unseal(c *gin.Context) {
	view, err := h.service.Unseal(c.Request.Context(), application.UnsealCommand{ContainerRef: containerRef(c)})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromContainerView(view))
}

// Reseal handles resealing a container with a new seal
func (h *DestuffingHandlers) Reseal(c *gin.Context) {
	ref := containerRef(c)

	var req dto.ResealRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(appErr)
		return
	}

	view, err := h.service.Reseal(c.Request.Context(), application.ResealCommand{
		ContainerRef:  ref,
		ResealRequest: domain.ResealRequest(req),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromContainerView(view))
}

// Complete handles a completion attempt. A reseal redirect answers 409 with
// the completion payload so clients can open the prompt.
func (h *DestuffingHandlers) Complete(c *gin.Context) {
	result, err := h.service.Complete(c.Request.Context(), application.CompleteCommand{ContainerRef: containerRef(c)})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == application.OutcomeResealRequired {
		status = http.StatusConflict
	}
	c.JSON(status, dto.FromCompletionResult(result))
}

// GetResealPrompt returns the reseal prompt state
func (h *DestuffingHandlers) GetResealPrompt(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ResealPrompt(containerRef(c)))
}

// DismissResealPrompt closes the reseal prompt without resealing
func (h *DestuffingHandlers) DismissResealPrompt(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.DismissResealPrompt(containerRef(c)))
}

// StartDestuff handles starting destuff of one hbl
func (h *DestuffingHandlers) StartDestuff(c *gin.Context) {
	ref := containerRef(c)
	hblID := c.Param("hblId")
	middleware.AnnotateSpan(c, "hbl.id", hblID)

	result, err := h.service.StartDestuff(c.Request.Context(), application.StartDestuffCommand{ContainerRef: ref, HblID: hblID})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromStartDestuffResult(result))
}

// RecordResult handles recording the destuff result of one hbl
func (h *DestuffingHandlers) RecordResult(c *gin.Context) {
	ref := containerRef(c)
	hblID := c.Param("hblId")
	middleware.AnnotateSpan(c, "hbl.id", hblID)

	var req dto.DestuffResultRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(appErr)
		return
	}

	outcome, err := h.service.RecordResult(c.Request.Context(), application.RecordResultCommand{
		ContainerRef: ref,
		HblID:        hblID,
		Result:       req.ToDomain(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromRecordResultOutcome(outcome))
}
