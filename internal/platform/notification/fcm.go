package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender delivers push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(ctx context.Context, credentialsPath string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func buildPushMessage(token, title, body string, data map[string]string) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:        "default",
				ChannelID:    "carelink_updates",
				DefaultSound: true,
			},
		},
	}
}

func (s *FCMSender) SendPush(ctx context.Context, token, title, body string, data map[string]string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("device token is empty")
	}
	id, err := s.client.Send(ctx, buildPushMessage(token, title, body, data))
	if err != nil {
		return "", fmt.Errorf("send push: %w", err)
	}
	return id, nil
}
