// internal/controller/send_controller.go
package controller

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
	"github.com/mailcast/mailcast-backend/internal/middleware"
	"github.com/mailcast/mailcast-backend/internal/service"
)

type SendController struct {
	SendService *service.SendService
	Log         *zap.Logger
}

// Send is the single-delivery invocation boundary. Credentials are always
// resolved from the authenticated caller's stored settings, never from the
// request.
func (c *SendController) Send(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, c.Log, appErrors.NewValidation("invalid request body"))
		return
	}

	result, err := c.SendService.Send(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
