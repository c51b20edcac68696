package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/fault"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/store"
)

// ResponseService validates and stores public submissions, then triggers
// the analytics recompute and the owner-facing notifications.
type ResponseService struct {
	store     *store.Store
	forms     *FormService
	analytics *AnalyticsService
	notifier  *NotificationService
	mailer    *EmailService
}

func NewResponseService(st *store.Store, forms *FormService, analytics *AnalyticsService, notifier *NotificationService, mailer *EmailService) *ResponseService {
	return &ResponseService{
		store:     st,
		forms:     forms,
		analytics: analytics,
		notifier:  notifier,
		mailer:    mailer,
	}
}

// SubmitResponse checks a submission against the form's entire question
// set and persists it. Branching never exempts a question: required means
// required anywhere in the form. Analytics and notification failures
// after the response is stored degrade, they do not reject the submission.
func (rs *ResponseService) SubmitResponse(ctx context.Context, formID string, req *models.SubmitRequest, ip, userAgent string) (*models.FeedbackResponse, error) {
	form, err := rs.forms.formByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !form.IsActive {
		return nil, fault.ErrFormInactive
	}
	if form.Expired(time.Now().UTC()) {
		return nil, fault.ErrFormExpired
	}

	questions, err := rs.forms.FormQuestions(ctx, formID)
	if err != nil {
		return nil, err
	}

	known := make(map[int64]models.Question, len(questions))
	for _, q := range questions {
		known[q.ID] = q
	}
	answered := make(map[int64]bool, len(req.Answers))
	for _, a := range req.Answers {
		answered[a.QuestionID] = true
	}

	verr := &fault.ValidationError{}
	for _, q := range questions {
		if q.IsRequired && !answered[q.ID] {
			verr.MissingRequired = append(verr.MissingRequired, fault.MissingQuestion{
				QuestionID:   q.ID,
				QuestionText: q.Text,
			})
		}
	}
	if len(verr.MissingRequired) > 0 {
		return nil, verr
	}
	for _, a := range req.Answers {
		if _, ok := known[a.QuestionID]; !ok {
			verr.ForeignQuestions = append(verr.ForeignQuestions, a.QuestionID)
		}
	}
	if len(verr.ForeignQuestions) > 0 {
		return nil, verr
	}

	response := &models.FeedbackResponse{
		ID:          uuid.New().String(),
		FormID:      formID,
		SubmittedAt: time.Now().UTC(),
		IPAddress:   ip,
		UserAgent:   userAgent,
	}

	err = rs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, rs.store.Rebind(`
			INSERT INTO responses (id, form_id, submitted_at, ip_address, user_agent)
			VALUES (?, ?, ?, ?, ?)`),
			response.ID, response.FormID, response.SubmittedAt, response.IPAddress, response.UserAgent,
		)
		if err != nil {
			return fmt.Errorf("failed to store response: %w", err)
		}

		for _, a := range req.Answers {
			value := models.JSONMap(a.AnswerValue)
			_, err := tx.ExecContext(ctx, rs.store.Rebind(`
				INSERT INTO answers (response_id, question_id, answer_text, answer_value)
				VALUES (?, ?, ?, ?)`),
				response.ID, a.QuestionID, a.AnswerText, value,
			)
			if err != nil {
				if store.IsUniqueViolation(err) {
					return fault.NewClientError(
						fmt.Sprintf("question %d answered more than once", a.QuestionID),
						fault.ErrDuplicateAnswer,
					)
				}
				return fmt.Errorf("failed to store answer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := rs.analytics.Recompute(ctx, formID); err != nil {
		log.Printf("Failed to recompute analytics for form %s: %v", formID, err)
	}

	if _, err := rs.notifier.Notify(ctx, models.NotificationEvent{
		TargetGroup: userGroup(form.CreatedBy),
		Type:        models.NotificationNewResponse,
		Title:       "New Response Received",
		Message:     fmt.Sprintf("New response received for %q", form.Title),
		Data: map[string]interface{}{
			"form_id":     form.ID,
			"response_id": response.ID,
			"form_title":  form.Title,
		},
	}); err != nil {
		log.Printf("Failed to record notification for form %s: %v", formID, err)
	}

	if rs.mailer != nil {
		go func() {
			if err := rs.mailer.SendResponseNotification(form, response); err != nil {
				log.Printf("Failed to send response email for form %s: %v", formID, err)
			}
		}()
	}

	return response, nil
}

// ResponsesOf lists the form's responses, newest first. Owner-only; this
// is the snapshot the export collaborator consumes.
func (rs *ResponseService) ResponsesOf(ctx context.Context, actor, formID string) ([]models.FeedbackResponse, error) {
	if _, err := rs.forms.ownedForm(ctx, actor, formID); err != nil {
		return nil, err
	}
	responses := []models.FeedbackResponse{}
	err := rs.store.DB.SelectContext(ctx, &responses, rs.store.Rebind(`
		SELECT r.id, r.form_id, r.submitted_at, r.ip_address, r.user_agent, f.title AS form_title
		FROM responses r
		JOIN forms f ON f.id = r.form_id
		WHERE r.form_id = ?
		ORDER BY r.submitted_at DESC`), formID)
	return responses, err
}

// GetResponse returns one response with its answers, question text and
// type included for rendering.
func (rs *ResponseService) GetResponse(ctx context.Context, actor, responseID string) (*models.FeedbackResponse, error) {
	var response models.FeedbackResponse
	err := rs.store.DB.GetContext(ctx, &response, rs.store.Rebind(`
		SELECT r.id, r.form_id, r.submitted_at, r.ip_address, r.user_agent, f.title AS form_title
		FROM responses r
		JOIN forms f ON f.id = r.form_id
		WHERE r.id = ?`), responseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrResponseNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := rs.forms.ownedForm(ctx, actor, response.FormID); err != nil {
		return nil, fault.ErrResponseNotFound
	}

	answers, err := rs.AnswersOf(ctx, responseID)
	if err != nil {
		return nil, err
	}
	response.Answers = answers
	return &response, nil
}

// AnswersOf returns the answers of one response in question order.
func (rs *ResponseService) AnswersOf(ctx context.Context, responseID string) ([]models.Answer, error) {
	answers := []models.Answer{}
	err := rs.store.DB.SelectContext(ctx, &answers, rs.store.Rebind(`
		SELECT a.id, a.response_id, a.question_id, a.answer_text, a.answer_value,
		       q.text AS question_text, q.question_type
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.response_id = ?
		ORDER BY q.position, q.id`), responseID)
	return answers, err
}

func userGroup(actor string) string {
	return "user_" + actor
}
