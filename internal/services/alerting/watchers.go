package alerting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/metrics"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/messages"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/notify"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

// HandleCycleStatus notifies the owner on every status transition of an
// irrigation cycle. No alert is stored and no cooldown applies.
func (s *Service) HandleCycleStatus(ctx context.Context, evt messages.CycleStatusChanged) error {
	if evt.NewStatus == "" || evt.OldStatus == evt.NewStatus {
		return nil
	}
	field, err := s.field(ctx, evt.FieldID)
	if err != nil {
		return err
	}
	userID := evt.UserID
	if userID == "" && field != nil {
		userID = field.UserID
	}
	v := policy.Values{
		CycleID:   evt.CycleID,
		FieldID:   evt.FieldID,
		Status:    evt.NewStatus,
		WaterUsed: evt.Liters(),
	}
	if field != nil {
		v.FieldName = field.Name
	}
	if _, ok := policy.ComposeNotification(entities.AlertIrrigationStatus, "", v); !ok {
		s.log.Debug().Str("cycle_id", evt.CycleID).Str("status", string(evt.NewStatus)).Msg("status without notification")
		return nil
	}
	s.log.Info().Str("cycle_id", evt.CycleID).Str("field_id", evt.FieldID).
		Str("old_status", string(evt.OldStatus)).Str("new_status", string(evt.NewStatus)).Msg("cycle status changed")
	return s.push(ctx, userID, entities.AlertIrrigationStatus, "", v)
}

// HandleAdvisory stores an ai_advice alert for every advisory and notifies
// the owner. Advisories are never de-duplicated by cooldown.
func (s *Service) HandleAdvisory(ctx context.Context, evt messages.AdvisoryEvent) error {
	field, err := s.field(ctx, evt.FieldID)
	if err != nil {
		return err
	}
	a := policy.BuildAdvisoryAlert(evt, field, s.now())
	if err := s.store.InsertAlert(ctx, a); err != nil {
		return fmt.Errorf("insert advisory alert: %w", err)
	}
	s.mirror(a)
	s.log.Info().Str("alert_id", a.ID).Str("field_id", a.FieldID).Str("severity", string(a.Severity)).Msg("advisory stored")

	return s.push(ctx, a.UserID, entities.AlertAIAdvice, a.Severity, policy.Values{
		AdvisoryID: a.ID,
		FieldID:    a.FieldID,
		FieldName:  a.FieldName,
		Title:      evt.Title,
		Message:    a.Message,
	})
}

var approvalMail = template.Must(template.New("approval").Parse(`<html><body>
<h2>New verification request</h2>
<p><strong>{{.Name}}</strong> ({{.Email}}) asked to be verified on {{.CreatedAt}}.</p>
<p><a href="{{.Link}}">Approve this request</a></p>
<p>The link expires after 7 days.</p>
</body></html>`))

// ApprovalLink builds the link mailed to administrators.
func ApprovalLink(base, verificationID, token string) string {
	q := url.Values{}
	q.Set("verificationId", verificationID)
	q.Set("token", token)
	return strings.TrimRight(base, "/") + "/approve?" + q.Encode()
}

// HandleVerificationRequested mails the administrators an approval link.
// The outcome is recorded on the verification either way.
func (s *Service) HandleVerificationRequested(ctx context.Context, evt messages.VerificationRequested) error {
	log := s.log.With().Str("verification_id", evt.VerificationID).Logger()

	v, err := s.store.GetVerification(ctx, evt.VerificationID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info().Msg("verification not found, mail skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load verification: %w", err)
	}
	if v.Status != entities.VerificationPending || v.EmailSentAt != nil {
		metrics.MailsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	var body bytes.Buffer
	if err := approvalMail.Execute(&body, map[string]string{
		"Name":      v.Name,
		"Email":     v.Email,
		"CreatedAt": v.CreatedAt.UTC().Format(time.RFC1123),
		"Link":      ApprovalLink(s.mail.ApprovalURL, v.ID, v.Token),
	}); err != nil {
		return fmt.Errorf("render approval mail: %w", err)
	}

	var sendErr error
	if len(s.mail.Admins) == 0 {
		sendErr = errors.New("no admin recipients configured")
	} else {
		sendErr = s.mailer.Send(ctx, notify.Mail{
			From:    s.mail.From,
			To:      s.mail.Admins,
			Subject: "Verification request: " + v.Name,
			HTML:    body.String(),
		})
	}

	if sendErr != nil {
		metrics.MailsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(sendErr).Msg("approval mail failed")
		if err := s.store.RecordVerificationEmail(ctx, v.ID, nil, sendErr.Error()); err != nil {
			return errors.Join(sendErr, err)
		}
		return sendErr
	}
	now := s.now()
	metrics.MailsTotal.WithLabelValues("sent").Inc()
	log.Info().Int("admins", len(s.mail.Admins)).Msg("approval mail sent")
	return s.store.RecordVerificationEmail(ctx, v.ID, &now, "")
}
