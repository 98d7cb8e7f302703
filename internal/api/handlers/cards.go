package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/logging"
	"github.com/codyseavey/cardprice/internal/models"
	"github.com/codyseavey/cardprice/internal/services"
)

type CardHandler struct {
	lookup   *services.LookupService
	resolver *services.PrintingResolver
	logger   zerolog.Logger
}

func NewCardHandler(lookup *services.LookupService, resolver *services.PrintingResolver, logger zerolog.Logger) *CardHandler {
	return &CardHandler{
		lookup:   lookup,
		resolver: resolver,
		logger:   logger,
	}
}

// Lookup resolves one card reference into a priced card
func (h *CardHandler) Lookup(c *gin.Context) {
	var msg models.LookupMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	card, err := h.lookup.Lookup(c.Request.Context(), msg)
	if err != nil {
		logger := logging.FromContext(c.Request.Context(), h.logger)
		switch {
		case errors.Is(err, models.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		case errors.Is(err, services.ErrStale):
			c.JSON(http.StatusConflict, gin.H{"success": false, "stale": true, "error": err.Error()})
		case errors.Is(err, services.ErrNotFound):
			logger.Debug().Err(err).Msg("lookup found nothing")
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "card not found"})
		default:
			logger.Warn().Err(err).Msg("lookup aborted")
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "lookup aborted"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "card": card})
}

// GetPrintings lists every printing of a card for the printing browser
func (h *CardHandler) GetPrintings(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query parameter 'name' is required"})
		return
	}

	printings, err := h.resolver.Summaries(c.Request.Context(), name)
	if err != nil {
		logger := logging.FromContext(c.Request.Context(), h.logger)
		logger.Warn().Err(err).Str("name", name).Msg("printing list failed")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "printing list unavailable"})
		return
	}
	if printings == nil {
		printings = []models.PrintingSummary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"printings": printings,
		"total":     len(printings),
	})
}
