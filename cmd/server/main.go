// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailcast/mailcast-backend/internal/config"
	"github.com/mailcast/mailcast-backend/internal/controller"
	"github.com/mailcast/mailcast-backend/internal/db"
	"github.com/mailcast/mailcast-backend/internal/middleware"
	"github.com/mailcast/mailcast-backend/internal/queue"
	"github.com/mailcast/mailcast-backend/internal/repository"
	"github.com/mailcast/mailcast-backend/internal/service"
	"github.com/mailcast/mailcast-backend/internal/smtp"
	"github.com/mailcast/mailcast-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer zlog.Sync()

	conn, err := db.Connect(cfg.Database.DSN())
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	defer conn.Close()

	amqpConn, ch, err := queue.Connect(cfg.AMQP.URL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	defer amqpConn.Close()
	defer ch.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	itemRepo := &repository.QueueItemRepository{DB: conn}
	sentRepo := &repository.SentRecordRepository{DB: conn}
	credRepo := &repository.CredentialRepository{DB: conn}

	campaignService := &service.CampaignService{
		Campaigns: campaignRepo,
		Items:     itemRepo,
		Publisher: &queue.Publisher{Ch: ch},
		Log:       zlog,
	}
	sendService := &service.SendService{
		Campaigns:   campaignRepo,
		Items:       itemRepo,
		SentRecords: sentRepo,
		Credentials: credRepo,
		Transport:   transport(cfg),
		Log:         zlog,
	}

	campaignController := &controller.CampaignController{CampaignService: campaignService, Log: zlog}
	sendController := &controller.SendController{SendService: sendService, Log: zlog}
	trackingController := &controller.TrackingController{SentRecords: sentRepo, Log: zlog}

	r := chi.NewRouter()
	r.Use(middleware.Metrics)

	// Tracking endpoints are hit from mail clients, no auth.
	r.Get("/track/open/{token}", trackingController.Open)
	r.Get("/track/click/{token}", trackingController.Click)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))

		r.Post("/campaigns", campaignController.CreateCampaign)
		r.Get("/campaigns", campaignController.ListCampaigns)
		r.Get("/campaigns/{id}", campaignController.GetCampaign)
		r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
		r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
		r.Post("/campaigns/{id}/stop", campaignController.StopCampaign)
		r.Post("/campaigns/{id}/continue", campaignController.ContinueCampaign)

		r.Post("/send", sendController.Send)
	})

	log.Println("🚀 Server running on :" + cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, r))
}

func transport(cfg *config.Config) *smtp.Sender {
	return &smtp.Sender{
		LocalName: cfg.Delivery.LocalName,
		Timeout:   time.Duration(cfg.Delivery.StepTimeoutSec) * time.Second,
	}
}
