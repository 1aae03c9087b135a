// Package notify delivers escalation emails for events that need a human:
// a NO_GO gate decision and a failed rollback. Delivery is best effort and
// never changes a gate decision or exit code.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"

	"github.com/NomadCrew/release-gate/config"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

type EmailMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

// Singleton pattern for default-registry metrics (avoid double registration
// when a Service is constructed more than once per process).
var (
	defaultMetricsInstance *EmailMetrics
	defaultMetricsOnce     sync.Once
)

// Service sends operator escalation emails through Resend.
type Service struct {
	config  *config.EmailConfig
	client  *resend.Client
	metrics *EmailMetrics
}

func NewService(cfg *config.EmailConfig) *Service {
	defaultMetricsOnce.Do(func() {
		defaultMetricsInstance = newEmailMetrics(prometheus.DefaultRegisterer)
	})
	return &Service{
		config:  cfg,
		client:  resend.NewClient(cfg.ResendAPIKey),
		metrics: defaultMetricsInstance,
	}
}

func NewServiceWithRegistry(cfg *config.EmailConfig, reg prometheus.Registerer) *Service {
	return &Service{
		config:  cfg,
		client:  resend.NewClient(cfg.ResendAPIKey),
		metrics: newEmailMetrics(reg),
	}
}

func newEmailMetrics(reg prometheus.Registerer) *EmailMetrics {
	metrics := &EmailMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "release_gate_email_send_duration_seconds",
			Help:    "Time taken to send escalation emails",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_gate_email_errors_total",
			Help: "Total number of escalation email sending errors",
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_gate_emails_sent_total",
			Help: "Total number of escalation emails sent",
		}),
	}

	reg.MustRegister(metrics.sendLatency)
	reg.MustRegister(metrics.errorCount)
	reg.MustRegister(metrics.sentCount)

	return metrics
}

// RollbackFailed escalates a terminal FAILED rollback attempt to the
// configured operators.
func (s *Service) RollbackFailed(ctx context.Context, attempt *types.RollbackAttempt) error {
	subject := fmt.Sprintf("[release-gate] ROLLBACK FAILED: %s on %s",
		attempt.Service, attempt.Environment)
	return s.send(ctx, "rollback-failed", rollbackFailedTemplate, subject, attempt)
}

// GateBlocked notifies operators that a verification run decided NO_GO.
func (s *Service) GateBlocked(ctx context.Context, report *types.GateReport) error {
	subject := fmt.Sprintf("[release-gate] NO_GO on %s (run %.8s)",
		report.Environment, report.RunID)
	data := struct {
		*types.GateReport
		Failed []types.CheckResult
	}{report, report.FailedResults()}
	return s.send(ctx, "gate-blocked", gateBlockedTemplate, subject, data)
}

func (s *Service) send(_ context.Context, name, tmplText, subject string, data interface{}) error {
	log := logger.GetLogger()
	if !s.config.Enabled {
		log.Infow("Escalation email disabled, skipping", "template", name, "subject", subject)
		return nil
	}

	startTime := time.Now()
	defer func() {
		s.metrics.sendLatency.Observe(time.Since(startTime).Seconds())
	}()

	tmpl, err := template.New(name).Parse(tmplText)
	if err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to parse email template", "template", name, "error", err)
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var htmlContent bytes.Buffer
	if err := tmpl.Execute(&htmlContent, data); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to execute email template", "template", name, "error", err)
		return fmt.Errorf("failed to execute template: %w", err)
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress),
		To:      s.config.Operators,
		Subject: subject,
		Html:    htmlContent.String(),
	}

	if _, err := s.client.Emails.Send(params); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to send escalation email",
			"error", err,
			"subject", subject)
		return fmt.Errorf("email send failed: %w", err)
	}

	s.metrics.sentCount.Inc()
	log.Infow("Escalation email sent",
		"subject", subject,
		"recipients", len(s.config.Operators))
	return nil
}
