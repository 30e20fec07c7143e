// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mailcast/mailcast-backend/internal/config"
	"github.com/mailcast/mailcast-backend/internal/db"
	"github.com/mailcast/mailcast-backend/internal/queue"
	"github.com/mailcast/mailcast-backend/internal/repository"
	"github.com/mailcast/mailcast-backend/internal/scheduler"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to Redis:", err)
	}
	defer rdb.Close()

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

	sendService := &service.SendService{
		Campaigns:   campaignRepo,
		Items:       itemRepo,
		SentRecords: sentRepo,
		Credentials: credRepo,
		Transport: &smtp.Sender{
			LocalName: cfg.Delivery.LocalName,
			Timeout:   time.Duration(cfg.Delivery.StepTimeoutSec) * time.Second,
		},
		Log: zlog,
	}

	runner := &scheduler.Runner{
		Campaigns: campaignRepo,
		Items:     itemRepo,
		Deliverer: sendService,
		Lease: &scheduler.RedisLease{
			Client: rdb,
			Owner:  leaseOwner(),
			TTL:    time.Duration(cfg.Delivery.LeaseTTLSec) * time.Second,
		},
		LeaseTTL: time.Duration(cfg.Delivery.LeaseTTLSec) * time.Second,
		Log:      zlog,
	}

	zlog.Info("worker waiting for campaign run jobs", zap.String("queue", queue.RunQueue))
	err = queue.Consume(ch, zlog, func(job queue.RunJob) error {
		return runner.Run(context.Background(), job.CampaignID)
	})
	if err != nil {
		log.Fatal("consumer stopped:", err)
	}
}

// leaseOwner identifies this worker instance in scheduler lease records.
func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return host + "-" + uuid.NewString()
}
