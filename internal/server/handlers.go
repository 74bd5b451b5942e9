package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func badRequest(c *gin.Context, code string, err error) {
	body := gin.H{"error": code}
	if err != nil {
		body["detail"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// validate checks a request the same way the orchestrator will, so bad input
// is answered with 400 instead of an error result.
func validate(req schemas.Request) (string, error) {
	if req.URL == "" {
		return "", errors.New("url is required")
	}
	return orchestrator.HostOf(req.URL)
}

func (s *Server) health(c *gin.Context) {
	st := s.submitter.Stats()
	body := gin.H{
		"ok":      true,
		"ts":      time.Now().UTC().Format(time.RFC3339),
		"global":  gin.H{"active": st.GlobalActive, "pending": st.GlobalPending},
		"domains": gin.H{"tracked": st.Domains, "pending": st.DomainPending},
	}
	if s.pool != nil {
		body["pool"] = s.pool.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) submit(c *gin.Context) {
	var req schemas.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad_request", err)
		return
	}
	host, err := validate(req)
	if err != nil {
		badRequest(c, "bad_request", err)
		return
	}

	st := s.submitter.Stats()
	c.Header("X-Queue-Global-Pending", strconv.Itoa(st.GlobalPending))
	c.Header("X-Queue-Domain-Pending", strconv.Itoa(s.submitter.DomainPending(host)))

	res := s.submitter.Submit(c.Request.Context(), req)
	c.JSON(http.StatusOK, res.View())
}

// submitBatch accepts either a bare array or {"items": [...]}. Invalid items
// are dropped.
func (s *Server) submitBatch(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "bad_request", err)
		return
	}
	var items []schemas.Request
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Items []schemas.Request `json:"items"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Items == nil {
			badRequest(c, "bad_request", errors.New("expected an array or {\"items\": [...]}"))
			return
		}
		items = wrapped.Items
	}

	jobs := make([]schemas.Request, 0, len(items))
	for _, it := range items {
		if _, err := validate(it); err != nil {
			s.logger.Debug("Dropping invalid batch item", zap.String("url", it.URL), zap.Error(err))
			continue
		}
		jobs = append(jobs, it)
	}
	if len(jobs) == 0 {
		badRequest(c, "empty", nil)
		return
	}
	if len(jobs) > s.cfg.MaxBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too_many_items", "max": s.cfg.MaxBatch})
		return
	}

	results := s.submitter.SubmitBatch(c.Request.Context(), jobs)
	views := make([]schemas.ResultView, len(results))
	for i, r := range results {
		views[i] = r.View()
	}
	c.JSON(http.StatusOK, gin.H{"count": len(views), "items": views})
}

func (s *Server) discover(c *gin.Context) {
	var req schemas.DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RootURL == "" {
		badRequest(c, "bad_request", err)
		return
	}
	found, err := s.discovery.Discover(c.Request.Context(), req.RootURL)
	if err != nil {
		s.logger.Warn("Discovery request failed.", zap.String("root", req.RootURL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "discovery_failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schemas.DiscoverResponse{RootURL: req.RootURL, ResultsTop: found})
}
