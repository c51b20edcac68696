package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/config"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/fault"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/store"
)

// AnalyticsService derives FormAnalytics from responses and answers.
// Analytics rows carry no authority of their own: every recompute reads
// the full history inside one transaction and overwrites the row, so two
// recomputes with no new responses produce identical output.
type AnalyticsService struct {
	config *config.Config
	store  *store.Store
	forms  *FormService
}

func NewAnalyticsService(cfg *config.Config, st *store.Store, forms *FormService) *AnalyticsService {
	return &AnalyticsService{config: cfg, store: st, forms: forms}
}

// Recompute rebuilds the form's analytics row from scratch.
func (as *AnalyticsService) Recompute(ctx context.Context, formID string) (*models.FormAnalytics, error) {
	analytics := &models.FormAnalytics{
		FormID:           formID,
		QuestionsSummary: models.JSONMap{},
		LastUpdated:      time.Now().UTC(),
	}

	err := as.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var formCount int64
		if err := tx.GetContext(ctx, &formCount, as.store.Rebind(
			`SELECT COUNT(*) FROM forms WHERE id = ?`), formID); err != nil {
			return err
		}
		if formCount == 0 {
			return fault.ErrFormNotFound
		}

		if err := tx.GetContext(ctx, &analytics.TotalResponses, as.store.Rebind(
			`SELECT COUNT(*) FROM responses WHERE form_id = ?`), formID); err != nil {
			return err
		}

		var questions []models.Question
		if err := tx.SelectContext(ctx, &questions, as.store.Rebind(`
			SELECT q.id, q.section_id, q.text, q.question_type, q.is_required, q.position, q.options, q.enable_option_navigation
			FROM questions q
			JOIN sections s ON s.id = q.section_id
			WHERE s.form_id = ?
			ORDER BY s.position, s.id, q.position, q.id`), formID); err != nil {
			return err
		}

		totalQuestions := int64(len(questions))
		if analytics.TotalResponses > 0 && totalQuestions > 0 {
			var completed int64
			if err := tx.GetContext(ctx, &completed, as.store.Rebind(`
				SELECT COUNT(*) FROM (
					SELECT a.response_id
					FROM answers a
					JOIN responses r ON r.id = a.response_id
					WHERE r.form_id = ?
					GROUP BY a.response_id
					HAVING COUNT(*) = ?
				) AS complete`), formID, totalQuestions); err != nil {
				return err
			}
			analytics.CompletionRate = round2(float64(completed) / float64(analytics.TotalResponses) * 100)

			var ratingTexts []string
			if err := tx.SelectContext(ctx, &ratingTexts, as.store.Rebind(`
				SELECT a.answer_text
				FROM answers a
				JOIN responses r ON r.id = a.response_id
				JOIN questions q ON q.id = a.question_id
				WHERE r.form_id = ? AND q.question_type IN (?, ?)
				ORDER BY a.id`), formID, models.QuestionRating, models.QuestionRating10); err != nil {
				return err
			}
			var sum float64
			var n int
			for _, text := range ratingTexts {
				if v, ok := parseRating(text); ok {
					sum += v
					n++
				}
			}
			if n > 0 {
				analytics.AverageRating = sum / float64(n)
			}

			for _, q := range questions {
				summary, err := as.questionSummary(ctx, tx, q)
				if err != nil {
					return err
				}
				if summary != nil {
					analytics.QuestionsSummary[strconv.FormatInt(q.ID, 10)] = summary
				}
			}
		}

		res, err := tx.ExecContext(ctx, as.store.Rebind(`
			UPDATE form_analytics
			SET total_responses = ?, completion_rate = ?, average_rating = ?, questions_summary = ?, last_updated = ?
			WHERE form_id = ?`),
			analytics.TotalResponses, analytics.CompletionRate, analytics.AverageRating,
			analytics.QuestionsSummary, analytics.LastUpdated, formID,
		)
		if err != nil {
			return fmt.Errorf("failed to store analytics: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			_, err = tx.ExecContext(ctx, as.store.Rebind(`
				INSERT INTO form_analytics (form_id, total_responses, completion_rate, average_rating, questions_summary, last_updated)
				VALUES (?, ?, ?, ?, ?, ?)`),
				formID, analytics.TotalResponses, analytics.CompletionRate, analytics.AverageRating,
				analytics.QuestionsSummary, analytics.LastUpdated,
			)
			if err != nil {
				return fmt.Errorf("failed to store analytics: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return analytics, nil
}

// questionSummary builds the type-specific aggregate for one question.
// Choice types count label occurrences by substring because multi-select
// answers are stored as one combined string; rating types keep the raw
// numeric list for the consumer to bucket; text types keep raw texts;
// email and phone only expose a count. A nil summary means the type has
// no aggregate (the question gets no entry).
func (as *AnalyticsService) questionSummary(ctx context.Context, tx *sqlx.Tx, q models.Question) (interface{}, error) {
	var texts []string
	if err := tx.SelectContext(ctx, &texts, as.store.Rebind(
		`SELECT answer_text FROM answers WHERE question_id = ? ORDER BY id`), q.ID); err != nil {
		return nil, err
	}

	switch q.QuestionType {
	case models.QuestionRadio, models.QuestionCheckbox, models.QuestionYesNo:
		counts := make(map[string]int64, len(q.Options))
		for _, option := range q.Options {
			var n int64
			needle := strings.ToLower(option)
			for _, text := range texts {
				if strings.Contains(strings.ToLower(text), needle) {
					n++
				}
			}
			counts[option] = n
		}
		return counts, nil

	case models.QuestionRating, models.QuestionRating10:
		ratings := []float64{}
		for _, text := range texts {
			if v, ok := parseRating(text); ok {
				ratings = append(ratings, v)
			}
		}
		return ratings, nil

	case models.QuestionText, models.QuestionTextarea:
		if texts == nil {
			texts = []string{}
		}
		return texts, nil

	case models.QuestionEmail, models.QuestionPhone:
		return map[string]int64{"total_submissions": int64(len(texts))}, nil
	}

	return nil, nil
}

// Analytics recomputes and returns the form's analytics with per-question
// summaries in display order. Owner-only.
func (as *AnalyticsService) Analytics(ctx context.Context, actor, formID string) (*models.FormAnalytics, error) {
	form, err := as.forms.ownedForm(ctx, actor, formID)
	if err != nil {
		return nil, err
	}

	analytics, err := as.Recompute(ctx, formID)
	if err != nil {
		return nil, err
	}
	analytics.FormTitle = form.Title

	questions, err := as.forms.FormQuestions(ctx, formID)
	if err != nil {
		return nil, err
	}
	analytics.Summary = make([]models.QuestionSummary, 0, len(questions))
	for _, q := range questions {
		data, ok := analytics.QuestionsSummary[strconv.FormatInt(q.ID, 10)]
		if !ok {
			data = map[string]interface{}{}
		}
		analytics.Summary = append(analytics.Summary, models.QuestionSummary{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			QuestionType: q.QuestionType,
			Data:         data,
		})
	}

	return analytics, nil
}

// DashboardSummary aggregates across every form the actor owns.
func (as *AnalyticsService) DashboardSummary(ctx context.Context, actor string) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{RecentResponsesList: []models.FeedbackResponse{}}

	err := as.store.DB.GetContext(ctx, &summary.TotalForms, as.store.Rebind(
		`SELECT COUNT(*) FROM forms WHERE created_by = ?`), actor)
	if err != nil {
		return nil, err
	}
	err = as.store.DB.GetContext(ctx, &summary.ActiveForms, as.store.Rebind(
		`SELECT COUNT(*) FROM forms WHERE created_by = ? AND is_active`), actor)
	if err != nil {
		return nil, err
	}
	err = as.store.DB.GetContext(ctx, &summary.TotalResponses, as.store.Rebind(`
		SELECT COUNT(*) FROM responses r
		JOIN forms f ON f.id = r.form_id
		WHERE f.created_by = ?`), actor)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-time.Duration(as.config.Dashboard.RecentResponseHours) * time.Hour)
	err = as.store.DB.GetContext(ctx, &summary.RecentResponses, as.store.Rebind(`
		SELECT COUNT(*) FROM responses r
		JOIN forms f ON f.id = r.form_id
		WHERE f.created_by = ? AND r.submitted_at >= ?`), actor, since)
	if err != nil {
		return nil, err
	}

	var avg float64
	err = as.store.DB.GetContext(ctx, &avg, as.store.Rebind(`
		SELECT COALESCE(AVG(fa.completion_rate), 0)
		FROM form_analytics fa
		JOIN forms f ON f.id = fa.form_id
		WHERE f.created_by = ?`), actor)
	if err != nil {
		return nil, err
	}
	summary.AverageCompletionRate = round2(avg)

	err = as.store.DB.SelectContext(ctx, &summary.RecentResponsesList, as.store.Rebind(`
		SELECT r.id, r.form_id, r.submitted_at, f.title AS form_title
		FROM responses r
		JOIN forms f ON f.id = r.form_id
		WHERE f.created_by = ?
		ORDER BY r.submitted_at DESC
		LIMIT ?`), actor, as.config.Dashboard.RecentResponseList)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// parseRating accepts only unsigned decimal digit strings. Anything else
// is excluded from rating math, never an error.
func parseRating(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(v), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
