package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/services"
	"github.com/mikklepp/trickle/services/ingestion"
)

type ProviderHandler struct {
	services *services.Services
}

func NewProviderHandler(s *services.Services) *ProviderHandler {
	return &ProviderHandler{
		services: s,
	}
}

// Events is the webhook endpoint the email provider posts delivery-outcome
// notifications to. Notifications without a job tag are acknowledged but
// dropped: the provider retries on non-2xx and a retry will not grow a tag.
func (h *ProviderHandler) Events() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ProviderEvents", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var notification dto.ProviderNotification
		if err := c.ShouldBindJSON(&notification); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ids, err := h.services.IngestionService.Ingest(ctx, &notification)
		if err != nil {
			if errors.Is(err, ingestion.ErrMissingJobTag) {
				c.JSON(http.StatusOK, gin.H{"stored": 0, "dropped": true})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store events"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"stored": len(ids)})
	}
}
