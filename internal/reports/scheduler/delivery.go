package scheduler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports"
)

// Deliverer hands a finished scheduled export to its destination
type Deliverer interface {
	Deliver(ctx context.Context, schedule *reports.ReportSchedule, result *reports.ScheduledRunResult) error
}

// DeliveryManager routes artifacts to the schedule's configured
// destination
type DeliveryManager struct {
	mailer     Mailer
	sftpClient SFTPClient
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDeliveryManager creates a delivery manager. Mailer and SFTP client
// may be nil when those methods are not configured.
func NewDeliveryManager(mailer Mailer, sftpClient SFTPClient, logger *zap.Logger) *DeliveryManager {
	return &DeliveryManager{
		mailer:     mailer,
		sftpClient: sftpClient,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Deliver dispatches on the schedule's delivery method
func (d *DeliveryManager) Deliver(ctx context.Context, schedule *reports.ReportSchedule, result *reports.ScheduledRunResult) error {
	switch schedule.DeliveryMethod {
	case reports.DeliveryMethodStorage:
		// The artifact is already persisted under the execution id;
		// storage delivery has nothing left to do.
		return nil
	case reports.DeliveryMethodEmail:
		return d.deliverEmail(ctx, schedule, result)
	case reports.DeliveryMethodWebhook:
		return d.deliverWebhook(ctx, schedule, result)
	case reports.DeliveryMethodSFTP:
		return d.deliverSFTP(ctx, schedule, result)
	default:
		return &reports.DeliveryError{
			Method: string(schedule.DeliveryMethod),
			Err:    fmt.Errorf("unsupported delivery method"),
		}
	}
}

func (d *DeliveryManager) deliverEmail(ctx context.Context, schedule *reports.ReportSchedule, result *reports.ScheduledRunResult) error {
	if d.mailer == nil {
		return &reports.DeliveryError{Method: "email", Err: fmt.Errorf("no mailer configured")}
	}
	recipients := configStrings(schedule.DeliveryConfig, "recipients")
	if len(recipients) == 0 {
		return &reports.DeliveryError{Method: "email", Err: fmt.Errorf("no recipients configured")}
	}

	subject := configString(schedule.DeliveryConfig, "subject")
	if subject == "" {
		subject = fmt.Sprintf("Scheduled report: %s", result.Definition.Name)
	}

	msg := &EmailMessage{
		To:      recipients,
		Subject: subject,
		Body: fmt.Sprintf("Your scheduled report %q ran at %s. The result is attached.",
			result.Definition.Name, result.Execution.StartedAt.Format(time.RFC1123)),
		Attachment: &Attachment{
			Name:        result.FileName,
			Data:        result.Data,
			ContentType: http.DetectContentType(result.Data),
		},
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return &reports.DeliveryError{Method: "email", Err: err}
	}
	d.logger.Info("report delivered by email",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Int("recipients", len(recipients)))
	return nil
}

// webhookPayload is the JSON body posted to webhook destinations
type webhookPayload struct {
	ReportID    string `json:"report_id"`
	ScheduleID  string `json:"schedule_id"`
	FileName    string `json:"file_name"`
	Content     string `json:"content"`
	GeneratedAt string `json:"generated_at"`
}

func (d *DeliveryManager) deliverWebhook(ctx context.Context, schedule *reports.ReportSchedule, result *reports.ScheduledRunResult) error {
	url := configString(schedule.DeliveryConfig, "url")
	if url == "" {
		return &reports.DeliveryError{Method: "webhook", Err: fmt.Errorf("no webhook url configured")}
	}

	payload, err := json.Marshal(webhookPayload{
		ReportID:    result.Definition.ID.String(),
		ScheduleID:  schedule.ID.String(),
		FileName:    result.FileName,
		Content:     base64.StdEncoding.EncodeToString(result.Data),
		GeneratedAt: result.Execution.StartedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return &reports.DeliveryError{Method: "webhook", Err: err}
	}

	// One attempt per cycle; a failed delivery is recorded on the
	// schedule and the next occurrence is the retry.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &reports.DeliveryError{Method: "webhook", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := schedule.DeliveryConfig["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &reports.DeliveryError{Method: "webhook", Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &reports.DeliveryError{
			Method: "webhook",
			Err:    fmt.Errorf("webhook returned status %d", resp.StatusCode),
		}
	}
	d.logger.Info("report delivered by webhook",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Int("status_code", resp.StatusCode))
	return nil
}

func (d *DeliveryManager) deliverSFTP(ctx context.Context, schedule *reports.ReportSchedule, result *reports.ScheduledRunResult) error {
	if d.sftpClient == nil {
		return &reports.DeliveryError{Method: "sftp", Err: fmt.Errorf("no sftp client configured")}
	}
	target := SFTPTarget{
		Host:      configString(schedule.DeliveryConfig, "host"),
		Port:      configInt(schedule.DeliveryConfig, "port", 22),
		Username:  configString(schedule.DeliveryConfig, "username"),
		Password:  configString(schedule.DeliveryConfig, "password"),
		RemoteDir: configString(schedule.DeliveryConfig, "remote_dir"),
	}
	if target.Host == "" || target.Username == "" {
		return &reports.DeliveryError{Method: "sftp", Err: fmt.Errorf("sftp host and username are required")}
	}
	if err := d.sftpClient.Upload(ctx, target, result.FileName, result.Data); err != nil {
		return &reports.DeliveryError{Method: "sftp", Err: err}
	}
	d.logger.Info("report delivered by sftp",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("host", target.Host))
	return nil
}

func configString(config reports.JSONB, key string) string {
	if config == nil {
		return ""
	}
	if s, ok := config[key].(string); ok {
		return s
	}
	return ""
}

func configStrings(config reports.JSONB, key string) []string {
	if config == nil {
		return nil
	}
	raw, ok := config[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func configInt(config reports.JSONB, key string, defaultValue int) int {
	if config == nil {
		return defaultValue
	}
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}
