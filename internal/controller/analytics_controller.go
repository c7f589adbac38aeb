package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"farm-analytics/internal/model"
	"farm-analytics/internal/service"
)

// AnalyticsController handles the analytics pipeline's HTTP surface.
type AnalyticsController struct {
	analyticsService service.AnalyticsService
	logger           *slog.Logger
}

// NewAnalyticsController creates a new analytics controller
func NewAnalyticsController(analyticsService service.AnalyticsService, logger *slog.Logger) *AnalyticsController {
	return &AnalyticsController{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

// RegisterRoutes mounts the API under /api.
func (c *AnalyticsController) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.POST("/data/send", c.SendData)
		api.POST("/data/bulk", c.SendBulkData)
		api.POST("/analytics/generate", c.GenerateAnalytics)
		api.GET("/farmers", c.ListFarmers)
		api.GET("/farmers/:farmer_id/data", c.GetFarmerData)
		api.DELETE("/farmers/:farmer_id", c.DeleteFarmer)
		api.GET("/health", c.Health)
	}
}

// sendDataRequest is the wire payload for one farmer's ingest.
type sendDataRequest struct {
	FarmerID   string         `json:"farmer_id"`
	FarmerName string         `json:"farmer_name"`
	Data       []service.Row  `json:"data"`
	Metadata   map[string]any `json:"metadata"`
}

// SendData handles POST /api/data/send. Per-row validation failures
// are reported, not treated as request errors.
func (c *AnalyticsController) SendData(ctx *gin.Context) {
	var req sendDataRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}
	if req.FarmerID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing required field",
			"message": "farmer_id is required",
		})
		return
	}
	if req.FarmerName == "" {
		req.FarmerName = "Unknown Farmer"
	}

	report, err := c.analyticsService.Ingest(ctx.Request.Context(), req.FarmerID, req.FarmerName, req.Data, req.Metadata)
	if err != nil {
		c.logger.Error("ingest failed",
			"farmer_id", req.FarmerID,
			"error", err.Error(),
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": "Failed to store farmer data",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   fmt.Sprintf("Data received for %s", req.FarmerName),
		"farmer_id": req.FarmerID,
		"accepted":  report.Accepted,
		"rejected":  report.Rejected,
	})
}

// sendBulkRequest maps farmer ID to that farmer's payload.
type sendBulkRequest struct {
	Farmers map[string]service.BulkPayload `json:"farmers"`
}

// SendBulkData handles POST /api/data/bulk. Farmers are processed
// independently; the response reports every outcome.
func (c *AnalyticsController) SendBulkData(ctx *gin.Context) {
	var req sendBulkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}
	if len(req.Farmers) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Empty batch",
			"message": "farmers must contain at least one entry",
		})
		return
	}

	report := c.analyticsService.BulkIngest(ctx.Request.Context(), req.Farmers)
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	})
}

// generateAnalyticsRequest selects the farmer and an optional crop
// filter and lookback window.
type generateAnalyticsRequest struct {
	FarmerID   string `json:"farmer_id"`
	CropFilter string `json:"crop_filter"`
	Weeks      int    `json:"weeks"`
}

// analyticsResponse mirrors the analytics contract: typed result plus
// chart-ready data, tagged with the producing source.
type analyticsResponse struct {
	Status          string                `json:"status"`
	FarmerID        string                `json:"farmer_id"`
	FarmerName      string                `json:"farmer_name"`
	Insights        []model.Insight       `json:"insights"`
	Forecast        []model.ForecastPoint `json:"forecast"`
	Recommendations []string              `json:"recommendations"`
	Charts          model.ChartBundle     `json:"charts"`
	Source          model.Source          `json:"source"`
}

// GenerateAnalytics handles POST /api/analytics/generate, the single
// externally meaningful pipeline operation. Generative failures never
// surface here; only the source tag reveals the fallback.
func (c *AnalyticsController) GenerateAnalytics(ctx *gin.Context) {
	startTime := time.Now()

	var req generateAnalyticsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}
	if req.FarmerID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing required field",
			"message": "farmer_id is required",
		})
		return
	}
	if req.Weeks < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid weeks",
			"message": "weeks must not be negative",
		})
		return
	}

	bundle, err := c.analyticsService.GenerateAnalytics(ctx.Request.Context(), req.FarmerID, req.CropFilter, req.Weeks)
	if err != nil {
		latency := time.Since(startTime)
		if errors.Is(err, service.ErrFarmerNotFound) {
			c.logger.Warn("farmer not found",
				"farmer_id", req.FarmerID,
				"latency_ms", latency.Milliseconds(),
			)
			ctx.JSON(http.StatusNotFound, gin.H{
				"error":   "Farmer not found",
				"message": fmt.Sprintf("No data found for farmer %s. Send data first using /api/data/send", req.FarmerID),
			})
			return
		}
		c.logger.Error("failed to generate analytics",
			"farmer_id", req.FarmerID,
			"crop_filter", req.CropFilter,
			"weeks", req.Weeks,
			"error", err.Error(),
			"latency_ms", latency.Milliseconds(),
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": "Failed to generate analytics",
		})
		return
	}

	c.logger.Info("analytics request completed",
		"farmer_id", req.FarmerID,
		"crop_filter", req.CropFilter,
		"weeks", req.Weeks,
		"source", bundle.Source,
		"insights", len(bundle.Analytics.Insights),
		"latency_ms", time.Since(startTime).Milliseconds(),
	)

	ctx.JSON(http.StatusOK, analyticsResponse{
		Status:          "success",
		FarmerID:        bundle.FarmerID,
		FarmerName:      bundle.FarmerName,
		Insights:        bundle.Analytics.Insights,
		Forecast:        bundle.Analytics.Forecast,
		Recommendations: bundle.Analytics.Recommendations,
		Charts:          bundle.Charts,
		Source:          bundle.Source,
	})
}

// ListFarmers handles GET /api/farmers.
func (c *AnalyticsController) ListFarmers(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"farmers": c.analyticsService.ListFarmers(),
	})
}

// GetFarmerData handles GET /api/farmers/:farmer_id/data.
func (c *AnalyticsController) GetFarmerData(ctx *gin.Context) {
	farmerID := ctx.Param("farmer_id")

	history, err := c.analyticsService.GetHistory(farmerID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error":   "Farmer not found",
			"message": fmt.Sprintf("Farmer %s has no stored history", farmerID),
		})
		return
	}
	ctx.JSON(http.StatusOK, history)
}

// DeleteFarmer handles DELETE /api/farmers/:farmer_id.
func (c *AnalyticsController) DeleteFarmer(ctx *gin.Context) {
	farmerID := ctx.Param("farmer_id")

	if err := c.analyticsService.RemoveFarmer(ctx.Request.Context(), farmerID); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error":   "Farmer not found",
			"message": fmt.Sprintf("Farmer %s has no stored history", farmerID),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Farmer data deleted",
	})
}

// Health handles GET /api/health.
func (c *AnalyticsController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":               "healthy",
		"generative_available": c.analyticsService.GenerativeAvailable(),
		"farmers_count":        len(c.analyticsService.ListFarmers()),
	})
}
