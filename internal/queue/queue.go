// Package queue dispatches campaign run jobs to the delivery worker over
// RabbitMQ. A run job only names the campaign; all delivery state lives in
// postgres, so redelivering a job is harmless (the scheduler lease and the
// conditional status updates absorb duplicates).
package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	// RunQueue is the durable queue carrying campaign run jobs.
	RunQueue = "campaign_runs"
	// maxRetries bounds redelivery of a failing run job.
	maxRetries = 3
)

// RunJob asks a worker to attach the scheduler to a campaign.
type RunJob struct {
	CampaignID int `json:"campaign_id"`
	UserID     int `json:"user_id"`
}

// Connect dials RabbitMQ and declares the durable run queue.
func Connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if _, err := ch.QueueDeclare(
		RunQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

type Publisher struct {
	Ch *amqp.Channel
}

func (p *Publisher) PublishRun(job RunJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.Ch.Publish("", RunQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume processes run jobs until the channel closes. Jobs are acked
// manually; a failing job is republished with an incremented retry header
// and dropped after maxRetries attempts.
func Consume(ch *amqp.Channel, log *zap.Logger, handler func(RunJob) error) error {
	msgs, err := ch.Consume(
		RunQueue,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for d := range msgs {
		var job RunJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Warn("invalid run job payload", zap.Error(err))
			d.Ack(false)
			continue
		}

		if err := handler(job); err != nil {
			retries := retryCount(d.Headers)
			if retries < maxRetries {
				log.Warn("run job failed, requeueing",
					zap.Error(err),
					zap.Int("campaign_id", job.CampaignID),
					zap.Int("attempt", retries+1),
				)
				pub := amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					Body:         d.Body,
					Headers:      amqp.Table{"x-retry-count": int32(retries + 1)},
				}
				if err := ch.Publish("", RunQueue, false, false, pub); err != nil {
					log.Error("failed to requeue run job", zap.Error(err), zap.Int("campaign_id", job.CampaignID))
				}
			} else {
				log.Error("run job dropped after retries",
					zap.Error(err),
					zap.Int("campaign_id", job.CampaignID),
				)
			}
		}
		d.Ack(false)
	}
	return nil
}

func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers["x-retry-count"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
