package main

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/fashion-supplychain/progress-service/internal/application"
	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/api"
	"github.com/fashion-supplychain/progress-service/pkg/errors"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/middleware"
)

// Operator identity headers set by the shop-floor gateway
const (
	HeaderOperatorID   = "X-Operator-ID"
	HeaderOperatorName = "X-Operator-Name"
)

// ProgressService is the application surface served over HTTP
type ProgressService interface {
	ResolveStage(ctx context.Context, query application.ResolveStageQuery) (*application.ResolutionDTO, error)
	ListScanHistory(ctx context.Context, query application.ScanHistoryQuery) (*api.PageResponse[application.ScanEventDTO], error)
	RecordScan(ctx context.Context, cmd application.RecordScanCommand) (*application.RecordScanResultDTO, error)
	GetUndoEligibility(ctx context.Context, query application.UndoEligibilityQuery) (*application.UndoEligibilityDTO, error)
	UndoScan(ctx context.Context, cmd application.UndoScanCommand) (*application.UndoResultDTO, error)
	ClaimTask(ctx context.Context, cmd application.ClaimTaskCommand) (*application.ClaimResultDTO, error)
	GetCatalog(ctx context.Context, query application.GetCatalogQuery) (*application.CatalogDTO, error)
	SaveCatalog(ctx context.Context, cmd application.SaveCatalogCommand) (*application.CatalogDTO, error)
}

func registerRoutes(group *gin.RouterGroup, service ProgressService, logger *logging.Logger, scanRateLimit float64) {
	units := group.Group("/units")
	{
		units.GET("/:unitId/stage", resolveStageHandler(service, logger))
		units.GET("/:unitId/scans", listScansHandler(service, logger))
	}

	scans := group.Group("/scans")
	{
		submit := []gin.HandlerFunc{}
		if scanRateLimit > 0 {
			submit = append(submit, middleware.NewIPRateLimiter(rate.Limit(scanRateLimit), scanBurst(scanRateLimit)).RateLimit())
		}
		submit = append(submit, recordScanHandler(service, logger))
		scans.POST("", submit...)
		scans.GET("/:scanId/undo-eligibility", undoEligibilityHandler(service, logger))
		scans.POST("/:scanId/undo", undoScanHandler(service, logger))
	}

	group.POST("/tasks/claim", claimTaskHandler(service, logger))

	styles := group.Group("/styles")
	{
		styles.GET("/:styleNo/stages", getCatalogHandler(service, logger))
		styles.PUT("/:styleNo/stages", saveCatalogHandler(service, logger))
	}
}

// scanBurst lets a terminal submit one second's worth of scans at once,
// and at least one scan when the rate is fractional.
func scanBurst(perSecond float64) int {
	return max(1, int(math.Ceil(perSecond)))
}

// actorFromRequest reads the operator identity headers
func actorFromRequest(c *gin.Context) domain.Actor {
	return domain.Actor{
		ID:   strings.TrimSpace(c.GetHeader(HeaderOperatorID)),
		Name: strings.TrimSpace(c.GetHeader(HeaderOperatorName)),
	}
}

// withActor attaches the operator to the request context for audit logs
func withActor(c *gin.Context, actor domain.Actor) context.Context {
	ctx := c.Request.Context()
	if id := actor.ID; id != "" {
		return logging.ContextWithUserID(ctx, id)
	}
	if actor.Name != "" {
		return logging.ContextWithUserID(ctx, actor.Name)
	}
	return ctx
}

func parseRescan(c *gin.Context) (bool, *errors.AppError) {
	raw := c.Query("rescan")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.ErrValidationWithFields("validation failed", map[string]string{"rescan": "must be a boolean"})
	}
	return v, nil
}

func resolveStageHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		unitID := c.Param("unitId")

		res, err := service.ResolveStage(c.Request.Context(), application.ResolveStageQuery{UnitID: unitID})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		if !res.Determined {
			responder.RespondWithAppError(errors.ErrStageUndetermined(unitID))
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

func listScansHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		page := api.ParsePagination(c)

		res, err := service.ListScanHistory(c.Request.Context(), application.ScanHistoryQuery{
			UnitID:   c.Param("unitId"),
			Page:     page.Page,
			PageSize: page.PageSize,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

func recordScanHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.RecordScanCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		actor := actorFromRequest(c)
		if cmd.OperatorID == "" {
			cmd.OperatorID = actor.ID
		}
		if cmd.OperatorName == "" {
			cmd.OperatorName = actor.Name
		}

		res, err := service.RecordScan(withActor(c, actor), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		}
		c.JSON(status, res)
	}
}

func undoEligibilityHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		rescan, appErr := parseRescan(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		res, err := service.GetUndoEligibility(c.Request.Context(), application.UndoEligibilityQuery{
			ScanID: c.Param("scanId"),
			Actor:  actorFromRequest(c),
			Rescan: rescan,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

func undoScanHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		rescan, appErr := parseRescan(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		actor := actorFromRequest(c)
		if actor.IsZero() {
			responder.RespondWithAppError(errors.ErrValidation("operator identity is required"))
			return
		}

		res, err := service.UndoScan(withActor(c, actor), application.UndoScanCommand{
			ScanID: c.Param("scanId"),
			Actor:  actor,
			Rescan: rescan,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

func claimTaskHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.ClaimTaskCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		cmd.Actor = actorFromRequest(c)

		res, err := service.ClaimTask(withActor(c, cmd.Actor), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

func getCatalogHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		res, err := service.GetCatalog(c.Request.Context(), application.GetCatalogQuery{StyleNo: c.Param("styleNo")})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

func saveCatalogHandler(service ProgressService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.SaveCatalogCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		cmd.StyleNo = c.Param("styleNo")

		res, err := service.SaveCatalog(withActor(c, actorFromRequest(c)), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}
