package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
	"github.com/andresuchdata/autopo-servicelevel/internal/service"
	"github.com/gin-gonic/gin"
)

type ServiceLevelHandler struct {
	service *service.ServiceLevelService
}

func NewServiceLevelHandler(service *service.ServiceLevelService) *ServiceLevelHandler {
	return &ServiceLevelHandler{service: service}
}

func (h *ServiceLevelHandler) GetSettings(c *gin.Context) {
	settings, err := h.service.Settings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to read settings",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, settings)
}

func (h *ServiceLevelHandler) GetTarget(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sku is required"})
		return
	}

	resolution, err := h.service.ResolveTarget(c.Request.Context(), sku)
	if errors.Is(err, repository.ErrSKUNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sku not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to resolve target csl",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resolution)
}

// Classify runs the variability classifier. ?apply=true writes labels back.
func (h *ServiceLevelHandler) Classify(c *gin.Context) {
	apply, err := strconv.ParseBool(c.DefaultQuery("apply", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "apply must be a boolean"})
		return
	}

	result, err := h.service.Classify(c.Request.Context(), apply)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to classify demand variability",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
