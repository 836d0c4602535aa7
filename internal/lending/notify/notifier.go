// internal/lending/notify/notifier.go
// Package notify sends client-facing messages about review outcomes and
// received payments. Delivery is best effort; callers log failures and move
// on, the ledger and the review result never depend on it.
package notify

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
)

// SESAPI and SNSAPI mirror the AWS clients so tests can substitute fakes.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	SenderEmail  string
	SenderID     string
}

type Notifier struct {
	db     *sql.DB
	ses    SESAPI
	sns    SNSAPI
	config Config
	logger logger.Logger
}

func NewNotifier(db *sql.DB, sesClient SESAPI, snsClient SNSAPI, cfg Config, log logger.Logger) *Notifier {
	return &Notifier{
		db:     db,
		ses:    sesClient,
		sns:    snsClient,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

func (n *Notifier) LoanApproved(ctx context.Context, clientID uuid.UUID, loanNumber string, monthlyPayment decimal.Decimal) error {
	subject := "Your loan has been approved"
	body := fmt.Sprintf("Good news! Loan %s is active. Your monthly payment is %s.",
		loanNumber, monthlyPayment.StringFixed(2))
	return n.dispatch(ctx, clientID, subject, body)
}

func (n *Notifier) ApplicationRejected(ctx context.Context, clientID uuid.UUID, comments string) error {
	subject := "Update on your credit application"
	body := "Unfortunately we could not approve your application at this time."
	if comments != "" {
		body = fmt.Sprintf("%s Reviewer note: %s", body, comments)
	}
	return n.dispatch(ctx, clientID, subject, body)
}

func (n *Notifier) PaymentReceived(ctx context.Context, clientID uuid.UUID, loanNumber string, amount, newBalance decimal.Decimal) error {
	subject := "Payment received"
	body := fmt.Sprintf("We received your payment of %s on loan %s. Remaining balance: %s.",
		amount.StringFixed(2), loanNumber, newBalance.StringFixed(2))
	if newBalance.IsZero() {
		body = fmt.Sprintf("We received your payment of %s on loan %s. The loan is now fully paid. Congratulations!",
			amount.StringFixed(2), loanNumber)
	}
	return n.dispatch(ctx, clientID, subject, body)
}

func (n *Notifier) dispatch(ctx context.Context, clientID uuid.UUID, subject, body string) error {
	email, phone, err := n.clientContact(ctx, clientID)
	if err != nil {
		return err
	}

	emailSent := false
	smsSent := false

	if n.config.EmailEnabled && email != "" {
		if err := n.sendEmail(ctx, email, subject, body); err != nil {
			return errors.NewNotificationSendFailedError("email", err)
		}
		emailSent = true
	}

	if n.config.SMSEnabled && phone != "" {
		if err := n.sendSMS(ctx, phone, body); err != nil {
			return errors.NewNotificationSendFailedError("sms", err)
		}
		smsSent = true
	}

	n.logger.Info("notification dispatched", map[string]interface{}{
		"clientId":  clientID.String(),
		"emailSent": emailSent,
		"smsSent":   smsSent,
	})

	return nil
}

func (n *Notifier) clientContact(ctx context.Context, clientID uuid.UUID) (string, string, error) {
	var name, email, phone string
	query := `SELECT full_name, email, phone FROM clients WHERE id = $1`
	err := n.db.QueryRowContext(ctx, query, clientID).Scan(&name, &email, &phone)
	if err == sql.ErrNoRows {
		return "", "", errors.NewClientNotFoundError(clientID.String())
	}
	if err != nil {
		return "", "", errors.NewPersistenceError("lookup client contact", err)
	}
	return email, phone, nil
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.SenderEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if n.config.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.config.SenderID),
			},
		}
	}
	_, err := n.sns.Publish(ctx, input)
	return err
}
