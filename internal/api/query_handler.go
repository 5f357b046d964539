package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mailtriage/internal/model"
)

const defaultListLimit = 50

type InquiryLister interface {
	List(ctx context.Context, limit int) ([]model.SalesInquiry, error)
}

type OtherMessageLister interface {
	List(ctx context.Context, limit int) ([]model.OtherMessage, error)
}

// QueryHandler exposes read-only listings over the two destination tables
// for the back-office screens.
type QueryHandler struct {
	inquiries InquiryLister
	others    OtherMessageLister
}

func NewQueryHandler(inquiries InquiryLister, others OtherMessageLister) *QueryHandler {
	return &QueryHandler{
		inquiries: inquiries,
		others:    others,
	}
}

// GetInquiries handles GET /api/inquiries.
func (h *QueryHandler) GetInquiries(c *gin.Context) {
	inquiries, err := h.inquiries.List(c.Request.Context(), listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list inquiries"})
		return
	}
	c.JSON(http.StatusOK, inquiries)
}

// GetOtherMessages handles GET /api/messages/other.
func (h *QueryHandler) GetOtherMessages(c *gin.Context) {
	messages, err := h.others.List(c.Request.Context(), listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func listLimit(c *gin.Context) int {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
