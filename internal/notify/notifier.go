// internal/notify/notifier.go
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"license-workflow/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

var ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")

// Notification types
const (
	TypeCaseAssigned      = "case_assigned"
	TypeCaseReassigned    = "case_reassigned"
	TypeCaseEscalated     = "case_escalated"
	TypeStatusChanged     = "status_changed"
	TypePaymentPending    = "payment_pending"
	TypeReturnedForFix    = "returned_for_correction"
	TypeCertificateIssued = "certificate_issued"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

// Recipient types
const (
	RecipientTypeOfficer   = "officer"
	RecipientTypeApplicant = "applicant"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Input struct {
	RecipientID      string                 `json:"recipientId"`
	RecipientType    string                 `json:"recipientType"` // "officer" or "applicant"
	NotificationType string                 `json:"notificationType"`
	ApplicationID    string                 `json:"applicationId,omitempty"`
	Priority         string                 `json:"priority,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "sent", "failed", "disabled"
	SentAt         string `json:"sentAt"` // ISO 8601
}

// Notifier sends workflow notifications. Callers treat failures as
// log-and-continue; a missed email never rolls back a committed decision.
type Notifier interface {
	Send(ctx context.Context, input *Input) (*Output, error)
}

type Service struct {
	config      *Config
	db          *sql.DB
	logger      logger.Logger
	sesClient   SESService
	snsClient   SNSService
	templateMap map[string]map[string]interface{}
}

func NewService(config *Config, db *sql.DB, log logger.Logger) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(config.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Service{
		config:      config,
		db:          db,
		logger:      log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient:   ses.NewFromConfig(awsCfg),
		snsClient:   sns.NewFromConfig(awsCfg),
		templateMap: defaultTemplates(),
	}, nil
}

// NewServiceWithClients wires explicit SES/SNS clients, used by tests.
func NewServiceWithClients(config *Config, db *sql.DB, log logger.Logger, sesClient SESService, snsClient SNSService) *Service {
	return &Service{
		config:      config,
		db:          db,
		logger:      log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient:   sesClient,
		snsClient:   snsClient,
		templateMap: defaultTemplates(),
	}
}

func (s *Service) Send(ctx context.Context, input *Input) (*Output, error) {
	email, phone, err := s.getRecipientContact(ctx, input.RecipientID, input.RecipientType)
	if err != nil {
		s.logger.Warn("recipient not found", map[string]interface{}{
			"recipientId": input.RecipientID,
			"type":        input.RecipientType,
		})
		return &Output{
			NotificationID: uuid.New().String(),
			Status:         StatusDisabled,
			SentAt:         time.Now().UTC().Format(time.RFC3339),
		}, nil
	}

	template, exists := s.templateMap[input.NotificationType]
	if !exists {
		return nil, fmt.Errorf("template not found for type: %s", input.NotificationType)
	}

	data := map[string]interface{}{
		"recipientId":      input.RecipientID,
		"notificationType": input.NotificationType,
		"applicationId":    input.ApplicationID,
		"priority":         input.Priority,
	}
	if input.Metadata != nil {
		for k, v := range input.Metadata {
			data[k] = v
		}
	}

	subject := renderTemplate(template["subject"].(string), data)
	body := renderTemplate(template["body"].(string), data)

	sentAt := time.Now().UTC().Format(time.RFC3339)
	notificationID := uuid.New().String()

	emailSent := false
	smsSent := false

	if s.config.EmailEnabled && email != "" {
		if err := s.sendEmail(ctx, email, subject, body); err != nil {
			s.logger.Error("email send failed", map[string]interface{}{
				"error": err,
				"email": email,
			})
			return &Output{NotificationID: notificationID, Status: StatusFailed, SentAt: sentAt}, nil
		}
		emailSent = true
	}

	// SMS only for high-priority events, assignment churn is email-only.
	if s.config.SMSEnabled && phone != "" && input.Priority == "high" {
		if err := s.sendSMS(ctx, phone, body); err != nil {
			s.logger.Error("SMS send failed", map[string]interface{}{
				"error": err,
				"phone": phone,
			})
			return &Output{NotificationID: notificationID, Status: StatusFailed, SentAt: sentAt}, nil
		}
		smsSent = true
	}

	status := StatusDisabled
	if emailSent || smsSent {
		status = StatusSent
	}

	return &Output{
		NotificationID: notificationID,
		Status:         status,
		SentAt:         sentAt,
	}, nil
}

func (s *Service) getRecipientContact(ctx context.Context, recipientID, recipientType string) (string, string, error) {
	var email, phone string
	var query string

	switch recipientType {
	case RecipientTypeOfficer:
		query = `SELECT email, phone FROM officers WHERE id = $1`
	case RecipientTypeApplicant:
		query = `SELECT email, phone FROM applicants WHERE id = $1`
	default:
		return "", "", fmt.Errorf("invalid recipient type: %s", recipientType)
	}

	err := s.db.QueryRowContext(ctx, query, recipientID).Scan(&email, &phone)
	return email, phone, err
}

func (s *Service) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := s.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.config.FromEmail),
	})
	return err
}

func (s *Service) sendSMS(ctx context.Context, to, message string) error {
	_, err := s.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}

func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if i, ok := v.(int); ok {
			value = fmt.Sprintf("%d", i)
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Strip placeholders that had no value
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return strings.TrimSpace(result)
}

func defaultTemplates() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		TypeCaseAssigned: {
			"subject": "License Application Assigned",
			"body":    "Application {{applicationId}} has been assigned to you. Current workload: {{workload}}.",
		},
		TypeCaseReassigned: {
			"subject": "License Application Reassigned",
			"body":    "Application {{applicationId}} has been reassigned to you. Reason: {{reason}}.",
		},
		TypeCaseEscalated: {
			"subject": "License Application Escalated",
			"body":    "Application {{applicationId}} was escalated to you after {{stalledDays}} days without progress.",
		},
		TypeStatusChanged: {
			"subject": "Application Status Updated",
			"body":    "Your application {{applicationId}} is now {{status}}.",
		},
		TypePaymentPending: {
			"subject": "Payment Required",
			"body":    "Your application {{applicationId}} has been approved for payment. Please complete the fee payment.",
		},
		TypeReturnedForFix: {
			"subject": "Application Returned for Correction",
			"body":    "Your application {{applicationId}} was returned for correction. Remarks: {{remarks}}.",
		},
		TypeCertificateIssued: {
			"subject": "License Certificate Issued",
			"body":    "Congratulations! The certificate for application {{applicationId}} has been issued.",
		},
	}
}
