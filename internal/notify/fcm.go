package notify

import (
	"context"
	"errors"
	"fmt"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPublisher sends data-only messages to per-renter topics and a shared staff topic.
// Client apps subscribe to renter_<id> after sign-in.
type FCMPublisher struct {
	client     messageSender
	staffTopic string
}

func NewMessagingClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing FCM: %w", err)
	}
	return client, nil
}

func NewFCMPublisher(client messageSender, staffTopic string) *FCMPublisher {
	return &FCMPublisher{client: client, staffTopic: staffTopic}
}

func RenterTopic(renterID string) string {
	return "renter_" + renterID
}

func (p *FCMPublisher) Publish(ctx context.Context, event domain.Event) error {
	var topics []string
	if event.RenterID != "" {
		topics = append(topics, RenterTopic(event.RenterID))
	}
	if p.staffTopic != "" && forStaff(event.Type) {
		topics = append(topics, p.staffTopic)
	}

	var errs []error
	for _, topic := range topics {
		logger.ExternalServiceCall("fcm", "send", "topic", topic, "type", event.Type)
		id, err := p.client.Send(ctx, &messaging.Message{Topic: topic, Data: event.Attributes()})
		logger.ExternalServiceResult("fcm", "send", err, "topic", topic, "messageID", id)
		if err != nil {
			errs = append(errs, fmt.Errorf("fcm topic %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
