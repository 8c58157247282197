package feed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"office_parking/internal/config"
	"office_parking/internal/domain"
	"office_parking/internal/service"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSConsumer tails the store's booking-change queue. Message payloads are
// deliberately untrusted beyond "something changed on this day": the handler
// drops the cached counters, re-reads authoritative state and tells websocket
// clients to refetch.
type SQSConsumer struct {
	sqsClient    *sqs.Client
	queueURL     string
	availability *service.AvailabilityService
	broadcaster  service.ChangeBroadcaster
}

func NewSQSConsumer(client *sqs.Client, cfg *config.Config, availability *service.AvailabilityService, broadcaster service.ChangeBroadcaster) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:    client,
		queueURL:     cfg.SQSChangeFeedQueueURL,
		availability: availability,
		broadcaster:  broadcaster,
	}
}

type changeMessage struct {
	Date string `json:"date"`
}

func (c *SQSConsumer) Start(ctx context.Context) {
	log.Printf("Change-feed consumer listening on queue: %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("Change-feed consumer: context cancelled, stopping.")
			return
		default:
			receiveInput := &sqs.ReceiveMessageInput{
				QueueUrl:            &c.queueURL,
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     20,
				VisibilityTimeout:   60,
			}

			result, err := c.sqsClient.ReceiveMessage(ctx, receiveInput)
			if err != nil {
				log.Printf("Change-feed consumer: receive error: %v", err)
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			for _, message := range result.Messages {
				if message.Body != nil {
					c.handle(ctx, *message.Body)
				}
				c.deleteMessage(ctx, message.ReceiptHandle)
			}
		}
	}
}

func (c *SQSConsumer) handle(ctx context.Context, body string) {
	var msg changeMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil || msg.Date == "" {
		// Unparseable or dateless events still mean "refetch everything".
		c.broadcaster.BroadcastBookingChange(domain.BookingChangeNotification{Kind: "bookings_changed"})
		return
	}

	c.availability.InvalidateDay(ctx, msg.Date)
	if _, err := c.availability.DayCapacityFor(ctx, msg.Date); err != nil {
		log.Printf("Change-feed consumer: re-read of %s failed: %v", msg.Date, err)
	}
	c.broadcaster.BroadcastBookingChange(domain.BookingChangeNotification{
		Kind: "bookings_changed",
		Date: msg.Date,
	})
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		log.Printf("Change-feed consumer: delete error: %v", err)
	}
}
