package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/eventcover/internal/checkout/domain"
)

const eventDateLayout = "2006-01-02"

type createCheckoutSessionRequest struct {
	QuoteID string `json:"quote_id" binding:"required"`
}

type inlineCheckoutSessionRequest struct {
	ID            string          `json:"id" binding:"required"`
	QuoteNumber   string          `json:"quote_number" binding:"required"`
	PartnerID     string          `json:"partner_id" binding:"required"`
	Premium       decimal.Decimal `json:"premium"`
	CoverageType  string          `json:"coverage_type" binding:"required"`
	EventType     string          `json:"event_type" binding:"required"`
	EventDate     string          `json:"event_date" binding:"required,datetime=2006-01-02"`
	Participants  int             `json:"participants" binding:"gte=1"`
	Location      string          `json:"location"`
	CustomerEmail string          `json:"customer_email" binding:"omitempty,email"`
	CustomerName  string          `json:"customer_name"`
}

type validateMetadataRequest struct {
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req createCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.checkoutSvc.CreateForQuote(c.Request.Context(), req.QuoteID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) CreateInlineCheckoutSession(c *gin.Context) {
	var req inlineCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	eventDate, err := time.Parse(eventDateLayout, req.EventDate)
	if err != nil {
		AbortWithError(c, newValidationError("event_date", "datetime", "event_date must match "+eventDateLayout))
		return
	}

	result, err := s.checkoutSvc.CreateSession(c.Request.Context(), checkoutdomain.CheckoutQuote{
		ID:            req.ID,
		QuoteNumber:   req.QuoteNumber,
		PartnerID:     req.PartnerID,
		Premium:       req.Premium,
		CoverageType:  req.CoverageType,
		EventType:     req.EventType,
		EventDate:     eventDate,
		Participants:  req.Participants,
		Location:      req.Location,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) GetCheckoutSession(c *gin.Context) {
	session, err := s.checkoutSvc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) GetCheckoutPaymentDetails(c *gin.Context) {
	details, err := s.checkoutSvc.GetPaymentDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": details})
}

func (s *Server) ListCheckoutSessions(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || limit < 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}

	sessions, err := s.checkoutSvc.ListSessionsByEmail(c.Request.Context(), c.Query("email"), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

func (s *Server) ValidateSessionMetadata(c *gin.Context) {
	var req validateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.checkoutSvc.ValidateSessionMetadata(req.Metadata)})
}
