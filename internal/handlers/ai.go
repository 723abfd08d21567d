package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/pkg/response"
)

type AIHandler struct {
	ai services.Completer
}

func NewAIHandler(ai services.Completer) *AIHandler {
	return &AIHandler{ai: ai}
}

// GetResult runs a single completion for the prompt query parameter
// GET /ai/get-result
func (h *AIHandler) GetResult(c *gin.Context) {
	prompt := c.Query("prompt")
	if prompt == "" {
		response.Error(c, response.NewBadRequest("prompt is required"))
		return
	}

	result, err := h.ai.Generate(c.Request.Context(), prompt)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
