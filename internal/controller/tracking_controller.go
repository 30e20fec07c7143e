// internal/controller/tracking_controller.go
package controller

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mailcast/mailcast-backend/internal/repository"
)

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingController redeems per-message tokens minted at send time. Each
// event kind is recorded at most once; unknown tokens get the same response
// as known ones so the endpoint leaks nothing.
type TrackingController struct {
	SentRecords repository.SentRecordRepositoryInterface
	Log         *zap.Logger
}

func (c *TrackingController) Open(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if _, err := c.SentRecords.MarkOpened(token); err != nil {
		c.Log.Error("failed to record open event", zap.Error(err))
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(trackingPixel)
}

func (c *TrackingController) Click(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if _, err := c.SentRecords.MarkClicked(token); err != nil {
		c.Log.Error("failed to record click event", zap.Error(err))
	}

	target := r.URL.Query().Get("url")
	if u, err := url.Parse(target); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
