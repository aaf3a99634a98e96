package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/validator"
)

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, fmt.Errorf("%w: invalid JSON body", apperrors.ErrBadRequest))
		return false
	}
	return true
}

func (s *Server) listLeads(c *gin.Context) {
	leads, err := s.service.ListLeads(c.Request.Context(), validator.LeadListQuery{
		Status: c.Query("status"),
		Etapa:  c.Query("etapa"),
		Ciudad: c.Query("ciudad"),
		Search: c.Query("search"),
		Limit:  c.Query("limit"),
		Offset: c.Query("skip"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

func (s *Server) createLead(c *gin.Context) {
	var req validator.LeadCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := s.service.CreateLead(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lead": lead})
}

func (s *Server) getLead(c *gin.Context) {
	detail, err := s.service.GetLead(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) updateLead(c *gin.Context) {
	var req validator.LeadUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := s.service.UpdateLead(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

type stageRequest struct {
	Etapa string `json:"etapa"`
}

func (s *Server) setStage(c *gin.Context) {
	var req stageRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := s.service.SetStage(c.Request.Context(), c.Param("id"), req.Etapa)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

func (s *Server) recordEvent(c *gin.Context) {
	var req validator.EventCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	event, lead, err := s.service.RecordEvent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event, "lead": lead})
}

func (s *Server) listEvents(c *gin.Context) {
	events, err := s.service.ListEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) listMessages(c *gin.Context) {
	messages, err := s.service.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) listConversations(c *gin.Context) {
	conversations, err := s.service.ListConversations(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (s *Server) pipelineStats(c *gin.Context) {
	stats, err := s.service.PipelineStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) listWebhookLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, apperrors.NewFieldError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	logs, err := s.service.ListWebhookLogs(c.Request.Context(), c.Query("origen"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": logs})
}

func (s *Server) computeKPIs(c *gin.Context) {
	from, to, err := validator.ParseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := s.service.ComputeKPIs(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ingestWhatsApp hands the raw body to ingestion untouched so the audit log
// keeps malformed deliveries as sent. Replays answer 200 with the stored result.
func (s *Server) ingestWhatsApp(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, fmt.Errorf("%w: unreadable body", apperrors.ErrBadRequest))
		return
	}
	origen := s.ingestion.Origen
	if origen == "" {
		origen = model.V1InboundWhatsApp.Origen()
	}
	result, err := s.service.IngestRaw(c.Request.Context(), origen, body, s.ingestion.AutoCreateLead)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == model.OutcomeReplayed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}
