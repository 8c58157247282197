package service

import (
	"context"
	"encoding/json"
	"log"

	"office_parking/internal/domain"
	"office_parking/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

// NotifyService is the notification sink: each event is persisted for the
// in-app feed and pushed onto the delivery queue. Everything here is
// fire-and-forget; a sink failure never rolls back the booking mutation that
// produced it.
type NotifyService struct {
	notificationRepo repository.NotificationRepository
	pushTokenRepo    repository.PushTokenRepository
	sqsClient        *sqs.Client
	queueURL         string
}

func NewNotifyService(
	notificationRepo repository.NotificationRepository,
	pushTokenRepo repository.PushTokenRepository,
	sqsClient *sqs.Client,
	queueURL string,
) *NotifyService {
	return &NotifyService{
		notificationRepo: notificationRepo,
		pushTokenRepo:    pushTokenRepo,
		sqsClient:        sqsClient,
		queueURL:         queueURL,
	}
}

type queuedNotification struct {
	EventID string                  `json:"event_id"`
	Kind    domain.NotificationKind `json:"kind"`
	UserID  int                     `json:"user_id"`
	Payload json.RawMessage         `json:"payload"`
}

func (s *NotifyService) Emit(ctx context.Context, kind domain.NotificationKind, userID int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("NotifyService: could not marshal %s payload: %v", kind, err)
		return
	}

	eventID := uuid.NewString()
	row := &domain.Notification{
		EventID: eventID,
		UserID:  userID,
		Kind:    kind,
		Payload: body,
	}
	if s.notificationRepo != nil {
		if err := s.notificationRepo.Create(ctx, row); err != nil {
			log.Printf("NotifyService: could not persist %s notification: %v", kind, err)
		}
	}

	if s.sqsClient == nil || s.queueURL == "" {
		return
	}
	message, err := json.Marshal(queuedNotification{
		EventID: eventID,
		Kind:    kind,
		UserID:  userID,
		Payload: body,
	})
	if err != nil {
		log.Printf("NotifyService: could not marshal queue message: %v", err)
		return
	}
	_, err = s.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(message)),
	})
	if err != nil {
		log.Printf("NotifyService: could not enqueue %s notification: %v", kind, err)
	}
}

func (s *NotifyService) ListForUser(ctx context.Context, userID int, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notificationRepo.FindByUserID(ctx, userID, limit)
}

func (s *NotifyService) RegisterPushToken(ctx context.Context, userID int, dto domain.RegisterPushTokenDTO) (*domain.PushToken, error) {
	token := &domain.PushToken{
		UserID:   userID,
		Token:    dto.Token,
		Platform: dto.Platform,
	}
	return s.pushTokenRepo.CreateOrUpdate(ctx, token)
}

func (s *NotifyService) UnregisterPushToken(ctx context.Context, userID int, token string) error {
	return s.pushTokenRepo.DeleteByToken(ctx, userID, token)
}
