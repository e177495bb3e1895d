// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quotecore/internal/http/handlers"
	"quotecore/internal/http/middleware"
)

type ServerDeps struct {
	Pricing      handlers.Estimator
	Quotes       handlers.QuoteService
	Availability handlers.SlotFinder
	Logger       *zap.Logger
}

type Server struct {
	pricing      *handlers.PricingHandler
	quotes       *handlers.QuoteHandler
	availability *handlers.AvailabilityHandler
	logger       *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pricing:      handlers.NewPricingHandler(deps.Pricing),
		quotes:       handlers.NewQuoteHandler(deps.Quotes),
		availability: handlers.NewAvailabilityHandler(deps.Availability),
		logger:       logger.Named("http"),
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.logger), middleware.Logging(s.logger))

	api := r.Group("/api")
	api.POST("/pricing/estimate", s.pricing.Estimate)

	quotes := api.Group("/quotes")
	quotes.POST("", s.quotes.Create)
	quotes.GET("/:id", s.quotes.Get)
	quotes.PATCH("/:id", s.quotes.Recompute)
	quotes.POST("/:id/request-signature", s.quotes.RequestSignature)
	quotes.POST("/:id/confirm", s.quotes.Confirm)
	quotes.POST("/:id/schedule", s.quotes.Schedule)
	quotes.POST("/:id/cancel", s.quotes.Cancel)

	api.GET("/availability/slots", s.availability.Slots)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}
