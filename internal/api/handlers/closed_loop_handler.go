package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/service"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type ClosedLoopHandler struct {
	service *service.ServiceLevelService
	now     func() time.Time
}

func NewClosedLoopHandler(service *service.ServiceLevelService) *ClosedLoopHandler {
	return &ClosedLoopHandler{service: service, now: time.Now}
}

type runRequest struct {
	AsOf string `json:"as_of"`
}

// Run starts a closed-loop review. The body is optional; as_of defaults to today.
func (h *ClosedLoopHandler) Run(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	asOf, ok := h.parseAsOf(c, req.AsOf)
	if !ok {
		return
	}

	report, err := h.service.RunClosedLoop(c.Request.Context(), asOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "closed loop run failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *ClosedLoopHandler) GetReport(c *gin.Context) {
	asOf, ok := h.parseAsOf(c, c.Query("as_of"))
	if !ok {
		return
	}

	payload, found, err := h.service.GetReport(c.Request.Context(), asOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to read report",
			"details": err.Error(),
		})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for " + asOf.Format(dateLayout)})
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *ClosedLoopHandler) parseAsOf(c *gin.Context, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := h.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}
	asOf, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be formatted as YYYY-MM-DD"})
		return time.Time{}, false
	}
	return asOf, true
}
