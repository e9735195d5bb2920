package scheduler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports"
)

func webhookSchedule(url string) *reports.ReportSchedule {
	return &reports.ReportSchedule{
		ID:             uuid.New(),
		ReportID:       uuid.New(),
		DeliveryMethod: reports.DeliveryMethodWebhook,
		Format:         reports.ExportFormatCSV,
		DeliveryConfig: reports.JSONB{"url": url},
	}
}

func runResult() *reports.ScheduledRunResult {
	return &reports.ScheduledRunResult{
		Execution: &reports.ReportExecution{
			ID:        uuid.New(),
			StartedAt: time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC),
		},
		Definition: &reports.ReportDefinition{ID: uuid.New(), Name: "Daily Call Summary"},
		FileName:   "abc123.csv",
		Data:       []byte("Status,Total Calls\ncompleted,42\n"),
	}
}

func TestWebhookDeliveryPostsEnvelope(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDeliveryManager(nil, nil, zap.NewNop())
	result := runResult()
	schedule := webhookSchedule(server.URL)

	require.NoError(t, d.Deliver(context.Background(), schedule, result))

	assert.Equal(t, result.Definition.ID.String(), received.ReportID)
	assert.Equal(t, schedule.ID.String(), received.ScheduleID)
	assert.Equal(t, "abc123.csv", received.FileName)
	assert.Equal(t, "2026-08-01T06:00:00Z", received.GeneratedAt)

	content, err := base64.StdEncoding.DecodeString(received.Content)
	require.NoError(t, err)
	assert.Equal(t, result.Data, content)
}

func TestWebhookDeliveryFailsAfterSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDeliveryManager(nil, nil, zap.NewNop())
	err := d.Deliver(context.Background(), webhookSchedule(server.URL), runResult())

	require.Error(t, err)
	var de *reports.DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "webhook", de.Method)
	// No in-cycle retry: the next scheduled occurrence is the retry.
	assert.Equal(t, int32(1), attempts.Load())
}

func TestStorageDeliveryIsNoOp(t *testing.T) {
	d := NewDeliveryManager(nil, nil, zap.NewNop())
	schedule := &reports.ReportSchedule{DeliveryMethod: reports.DeliveryMethodStorage}
	assert.NoError(t, d.Deliver(context.Background(), schedule, runResult()))
}

func TestEmailDeliveryRequiresRecipients(t *testing.T) {
	d := NewDeliveryManager(&captureMailer{}, nil, zap.NewNop())
	schedule := &reports.ReportSchedule{
		DeliveryMethod: reports.DeliveryMethodEmail,
		DeliveryConfig: reports.JSONB{},
	}
	err := d.Deliver(context.Background(), schedule, runResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients")
}

type captureMailer struct {
	sent []*EmailMessage
}

func (m *captureMailer) Send(_ context.Context, msg *EmailMessage) error {
	m.sent = append(m.sent, msg)
	return nil
}

func TestEmailDeliveryAttachesArtifact(t *testing.T) {
	mailer := &captureMailer{}
	d := NewDeliveryManager(mailer, nil, zap.NewNop())
	schedule := &reports.ReportSchedule{
		ID:             uuid.New(),
		DeliveryMethod: reports.DeliveryMethodEmail,
		DeliveryConfig: reports.JSONB{"recipients": []interface{}{"ops@example.com"}},
	}

	require.NoError(t, d.Deliver(context.Background(), schedule, runResult()))
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "Daily Call Summary")
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "abc123.csv", msg.Attachment.Name)
}

func TestMIMEMessageEncodesAttachment(t *testing.T) {
	raw := buildMIMEMessage("Reports", "reports@example.com", &EmailMessage{
		To:      []string{"a@example.com"},
		Subject: "Nightly export",
		Body:    "attached",
		Attachment: &Attachment{
			Name:        "r.csv",
			Data:        []byte("x,y\n1,2\n"),
			ContentType: "text/csv",
		},
	})
	out := string(raw)
	assert.Contains(t, out, "Subject: Nightly export")
	assert.Contains(t, out, "multipart/mixed")
	assert.Contains(t, out, "Content-Transfer-Encoding: base64")
	assert.Contains(t, out, base64.StdEncoding.EncodeToString([]byte("x,y\n1,2\n")))
}
