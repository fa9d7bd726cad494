package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/castellanhq/castellan/internal/models"
)

// SESNotifier emails the security mailbox when an account locks. Delivery is
// strictly best-effort: a notification failure must never block or delay the
// lockout itself.
type SESNotifier struct {
	sesClient       *ses.Client
	fromAddress     string
	securityAddress string
	logger          *slog.Logger
}

// NewSESNotifier creates a new SESNotifier
func NewSESNotifier(region, fromAddress, securityAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:       ses.NewFromConfig(cfg),
		fromAddress:     fromAddress,
		securityAddress: securityAddress,
		logger:          logger,
	}, nil
}

// NotifyLockout sends a lockout alert to the security mailbox.
func (n *SESNotifier) NotifyLockout(ctx context.Context, lockout *models.AccountLockout) {
	subject := fmt.Sprintf("Account lockout: %s", lockout.Username)

	textBody := fmt.Sprintf(`An account was locked after repeated failed login attempts.

Username:        %s
Source IP:       %s
Failed attempts: %d
Locked at:       %s
Expires at:      %s
Duration:        %d minutes

%s

The account unlocks automatically at the expiry time, or an administrator can
unlock it earlier from the admin console.
`,
		lockout.Username,
		orUnknown(lockout.IPAddress),
		lockout.FailedAttempts,
		lockout.LockedAt.UTC().Format(time.RFC3339),
		lockout.ExpiresAt.UTC().Format(time.RFC3339),
		lockout.DurationMinutes,
		lockout.Reason,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.securityAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send lockout alert via SES",
			slog.String("username", lockout.Username),
			slog.Any("error", err))
		return
	}

	n.logger.Info("lockout alert sent",
		slog.String("username", lockout.Username),
		slog.String("message_id", aws.ToString(result.MessageId)))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
