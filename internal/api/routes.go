package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/api/handlers"
	"github.com/codyseavey/cardprice/internal/services"
)

// Services bundles what the router serves
type Services struct {
	Lookup   *services.LookupService
	Resolver *services.PrintingResolver
	Rates    *services.ExchangeRateService
	Status   *services.StatusService
}

func SetupRouter(svc Services, corsOrigins []string, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID(logger))
	router.Use(requestMetrics())
	router.Use(accessLog(logger))

	// CORS configuration - the extension and local UIs call from other origins
	config := cors.DefaultConfig()
	if len(corsOrigins) > 0 {
		config.AllowOrigins = corsOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	config.ExposeHeaders = []string{RequestIDHeader}
	config.AllowCredentials = false
	router.Use(cors.New(config))

	cardHandler := handlers.NewCardHandler(svc.Lookup, svc.Resolver, logger)
	priceHandler := handlers.NewPriceHandler(svc.Rates, svc.Status)

	api := router.Group("/api")
	{
		api.POST("/lookup", cardHandler.Lookup)
		api.GET("/printings", cardHandler.GetPrintings)
		api.GET("/rates/:currency", priceHandler.GetRate)
		api.GET("/status", priceHandler.GetStatus)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
