// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
	"github.com/mailcast/mailcast-backend/internal/middleware"
	"github.com/mailcast/mailcast-backend/internal/service"
)

var validate = validator.New()

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             *zap.Logger
}

type createCampaignRequest struct {
	Name            string   `json:"name" validate:"required"`
	Subject         string   `json:"subject" validate:"required,max=998"`
	Body            string   `json:"body" validate:"required"`
	IntervalSeconds int      `json:"interval_seconds" validate:"min=0"`
	Recipients      []string `json:"recipients" validate:"required,min=1,dive,email"`
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, c.Log, appErrors.NewValidation("invalid request body"))
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, c.Log, appErrors.NewValidation("invalid campaign submission: %v", err))
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(
		middleware.UserID(r.Context()),
		body.Name, body.Subject, body.Body, body.IntervalSeconds, body.Recipients,
	)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(middleware.UserID(r.Context()), page, pageSize, status)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetDetails(middleware.UserID(r.Context()), campaignID(r))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	c.control(w, r, c.CampaignService.Start, "running")
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.control(w, r, c.CampaignService.Pause, "paused")
}

func (c *CampaignController) StopCampaign(w http.ResponseWriter, r *http.Request) {
	c.control(w, r, c.CampaignService.Stop, "completed")
}

func (c *CampaignController) ContinueCampaign(w http.ResponseWriter, r *http.Request) {
	c.control(w, r, c.CampaignService.Continue, "running")
}

func (c *CampaignController) control(w http.ResponseWriter, r *http.Request, op func(userID, campaignID int) error, resulting string) {
	id := campaignID(r)
	if err := op(middleware.UserID(r.Context()), id); err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": resulting})
}

func campaignID(r *http.Request) int {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	return id
}
