package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/cardprice/internal/services"
)

type PriceHandler struct {
	rates  *services.ExchangeRateService
	status *services.StatusService
}

func NewPriceHandler(rates *services.ExchangeRateService, status *services.StatusService) *PriceHandler {
	return &PriceHandler{
		rates:  rates,
		status: status,
	}
}

// GetRate returns the USD conversion rate for a currency
func (h *PriceHandler) GetRate(c *gin.Context) {
	quote, err := h.rates.Rate(c.Request.Context(), c.Param("currency"))
	if err != nil {
		if errors.Is(err, services.ErrUnknownCurrency) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"currency": quote.Currency,
		"rate":     quote.Rate,
		"source":   quote.Source,
	})
}

// GetStatus returns queue, cache and generation state
func (h *PriceHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status())
}
