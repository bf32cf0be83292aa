package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/roomly/backend/internal/domain"
)

// messenger is the subset of *messaging.Client the push sender needs
type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client sends offline push notifications through Firebase Cloud Messaging
type Client struct {
	msgClient messenger
	logger    *zap.Logger
	// stale reports errors meaning the token will never work again
	stale func(error) bool
}

// NewApp initializes the Firebase app shared by messaging and auth
func NewApp(ctx context.Context, logger *zap.Logger, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		logger.Warn("No Firebase credentials file provided, using application default credentials")
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

func NewClient(ctx context.Context, app *firebase.App, logger *zap.Logger) (*Client, error) {
	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return newClient(msgClient, logger), nil
}

func newClient(m messenger, logger *zap.Logger) *Client {
	return &Client{
		msgClient: m,
		logger:    logger,
		stale: func(err error) bool {
			return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
		},
	}
}

// Send implements domain.PushSender. Tokens FCM no longer accepts come back
// as domain.ErrInvalidPushToken so callers can forget them.
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if token == "" {
		return nil
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	if _, err := c.msgClient.Send(ctx, message); err != nil {
		if c.stale(err) {
			c.logger.Info("FCM token no longer registered", zap.String("type", data["type"]))
			return fmt.Errorf("%w: %w", domain.ErrInvalidPushToken, err)
		}
		c.logger.Error("Failed to send FCM message", zap.Error(err))
		return err
	}
	return nil
}
