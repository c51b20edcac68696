package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/config"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/fault"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/store"
)

type testEnv struct {
	store     *store.Store
	forms     *FormService
	analytics *AnalyticsService
	responses *ResponseService
	notifier  *NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Notifications.Ntfy.Enabled = false
	cfg.Email.Enabled = false

	st, err := store.Open(config.DatabaseConfig{Type: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	notifier := NewNotificationService(cfg, st, NewHub())
	forms := NewFormService(st, notifier)
	analytics := NewAnalyticsService(cfg, st, forms)
	mailer := NewEmailService(cfg)
	responses := NewResponseService(st, forms, analytics, notifier, mailer)

	return &testEnv{
		store:     st,
		forms:     forms,
		analytics: analytics,
		responses: responses,
		notifier:  notifier,
	}
}

func sectionByTitle(t *testing.T, form *models.FeedbackForm, title string) *models.Section {
	t.Helper()
	for i := range form.Sections {
		if form.Sections[i].Title == title {
			return &form.Sections[i]
		}
	}
	t.Fatalf("section %q not found", title)
	return nil
}

func TestCreateFormForwardReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The first section routes to a section declared after it.
	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Survey",
		Sections: []models.SectionInput{
			{FrontendID: "intro", Title: "Intro", Position: 0, NextSection: "details"},
			{FrontendID: "details", Title: "Details", Position: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, form.Sections, 2)

	intro := sectionByTitle(t, form, "Intro")
	details := sectionByTitle(t, form, "Details")
	require.NotNil(t, intro.NextSectionID)
	assert.Equal(t, details.ID, *intro.NextSectionID)
	assert.Nil(t, details.NextSectionID)
}

func TestCreateFormCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Loop",
		Sections: []models.SectionInput{
			{FrontendID: "a", Title: "A", Position: 0, NextSection: "b"},
			{FrontendID: "b", Title: "B", Position: 1, NextSection: "a"},
		},
	})
	require.NoError(t, err)

	a := sectionByTitle(t, form, "A")
	b := sectionByTitle(t, form, "B")
	require.NotNil(t, a.NextSectionID)
	require.NotNil(t, b.NextSectionID)
	assert.Equal(t, b.ID, *a.NextSectionID)
	assert.Equal(t, a.ID, *b.NextSectionID)
}

func TestCreateFormUnresolvedReferenceDegradesToNull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Dangling",
		Sections: []models.SectionInput{
			{FrontendID: "a", Title: "A", Position: 0, NextSection: "nowhere"},
		},
	})
	require.NoError(t, err)
	require.Len(t, form.Sections, 1)
	assert.Nil(t, form.Sections[0].NextSectionID)
}

func TestCreateFormNotifiesOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{Title: "Survey"})
	require.NoError(t, err)

	notifications, err := env.notifier.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationFormCreated, notifications[0].NotificationType)
	assert.Equal(t, form.ID, notifications[0].Data["form_id"])
	assert.Equal(t, "Survey", notifications[0].Data["form_title"])

	foreign, err := env.notifier.List(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestCreateFormDuplicateFrontendIDRejectsWholeSave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Broken",
		Sections: []models.SectionInput{
			{FrontendID: "dup", Title: "A", Position: 0},
			{FrontendID: "dup", Title: "B", Position: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrDuplicateTransient))

	// Nothing was persisted and nobody was notified.
	forms, err := env.forms.ListForms(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, forms)
	notifications, err := env.notifier.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestCreateFormOptionLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Branching",
		Sections: []models.SectionInput{
			{
				FrontendID: "start", Title: "Start", Position: 0,
				Questions: []models.QuestionInput{
					{
						Text: "Happy?", QuestionType: models.QuestionRadio, Position: 0,
						Options:                []string{"Yes", "No"},
						EnableOptionNavigation: true,
						OptionLinks: []models.OptionLinkInput{
							{Text: "Yes", NextSection: "praise"},
							{Text: "No", NextSection: "missing"},
						},
					},
				},
			},
			{FrontendID: "praise", Title: "Praise", Position: 1},
		},
	})
	require.NoError(t, err)

	start := sectionByTitle(t, form, "Start")
	praise := sectionByTitle(t, form, "Praise")
	require.Len(t, start.Questions, 1)
	require.Len(t, start.Questions[0].OptionLinks, 2)

	links := start.Questions[0].OptionLinks
	require.NotNil(t, links[0].NextSectionID)
	assert.Equal(t, praise.ID, *links[0].NextSectionID)
	assert.Nil(t, links[1].NextSectionID)
}

func TestCreateFormRejectsUnknownQuestionType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Bad",
		Sections: []models.SectionInput{
			{Title: "S", Questions: []models.QuestionInput{
				{Text: "Q", QuestionType: "slider"},
			}},
		},
	})
	require.Error(t, err)
	assert.True(t, fault.IsClientError(err))
}

func TestUpdateFormUpsertAndPrune(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Survey",
		Sections: []models.SectionInput{
			{FrontendID: "keep", Title: "Keep", Position: 0,
				Questions: []models.QuestionInput{
					{FrontendID: "q1", Text: "Old text", QuestionType: models.QuestionText, Position: 0},
					{FrontendID: "q2", Text: "Doomed", QuestionType: models.QuestionText, Position: 1},
				}},
			{FrontendID: "drop", Title: "Drop", Position: 1},
		},
	})
	require.NoError(t, err)

	keptID := sectionByTitle(t, form, "Keep").ID
	keptQuestionID := sectionByTitle(t, form, "Keep").Questions[0].ID

	updated, err := env.forms.UpdateForm(ctx, "alice", form.ID, &models.FormDocument{
		Title: "Survey v2",
		Sections: []models.SectionInput{
			{FrontendID: "keep", Title: "Keep", Position: 0,
				Questions: []models.QuestionInput{
					{FrontendID: "q1", Text: "New text", QuestionType: models.QuestionText, Position: 0},
				}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Survey v2", updated.Title)
	require.Len(t, updated.Sections, 1)

	kept := updated.Sections[0]
	assert.Equal(t, keptID, kept.ID)
	require.Len(t, kept.Questions, 1)
	assert.Equal(t, keptQuestionID, kept.Questions[0].ID)
	assert.Equal(t, "New text", kept.Questions[0].Text)
}

func TestUpdateFormRewiresEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Survey",
		Sections: []models.SectionInput{
			{FrontendID: "a", Title: "A", Position: 0, NextSection: "b"},
			{FrontendID: "b", Title: "B", Position: 1},
		},
	})
	require.NoError(t, err)

	updated, err := env.forms.UpdateForm(ctx, "alice", form.ID, &models.FormDocument{
		Title: "Survey",
		Sections: []models.SectionInput{
			{FrontendID: "a", Title: "A", Position: 0},
			{FrontendID: "b", Title: "B", Position: 1, NextSection: "a"},
		},
	})
	require.NoError(t, err)

	a := sectionByTitle(t, updated, "A")
	b := sectionByTitle(t, updated, "B")
	assert.Nil(t, a.NextSectionID)
	require.NotNil(t, b.NextSectionID)
	assert.Equal(t, a.ID, *b.NextSectionID)
}

func TestFormsAreOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{Title: "Private"})
	require.NoError(t, err)

	_, err = env.forms.GetForm(ctx, "mallory", form.ID)
	assert.True(t, errors.Is(err, fault.ErrFormNotFound))
	assert.True(t, errors.Is(err, fault.ErrNotOwner))

	err = env.forms.DeleteForm(ctx, "mallory", form.ID)
	assert.True(t, errors.Is(err, fault.ErrFormNotFound))

	// A missing form is a plain NotFound, not an ownership failure.
	_, err = env.forms.GetForm(ctx, "alice", "no-such-form")
	assert.True(t, errors.Is(err, fault.ErrFormNotFound))
	assert.False(t, errors.Is(err, fault.ErrNotOwner))

	forms, err := env.forms.ListForms(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, forms)
}

func TestDeleteFormCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Doomed",
		Sections: []models.SectionInput{
			{FrontendID: "s", Title: "S", Questions: []models.QuestionInput{
				{Text: "Q", QuestionType: models.QuestionText},
			}},
		},
	})
	require.NoError(t, err)

	require.NoError(t, env.forms.DeleteForm(ctx, "alice", form.ID))

	_, err = env.forms.GetForm(ctx, "alice", form.ID)
	assert.True(t, errors.Is(err, fault.ErrFormNotFound))

	var sections int
	require.NoError(t, env.store.DB.Get(&sections, `SELECT COUNT(*) FROM sections`))
	assert.Zero(t, sections)
	var questions int
	require.NoError(t, env.store.DB.Get(&questions, `SELECT COUNT(*) FROM questions`))
	assert.Zero(t, questions)
}

func TestPublicFormGatekeeping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.forms.PublicForm(ctx, "no-such-form")
	assert.True(t, errors.Is(err, fault.ErrFormNotFound))

	inactive := false
	form, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Closed", IsActive: &inactive,
	})
	require.NoError(t, err)
	_, err = env.forms.PublicForm(ctx, form.ID)
	assert.True(t, errors.Is(err, fault.ErrFormInactive))

	past := time.Now().UTC().Add(-time.Hour)
	expired, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{
		Title: "Stale", ExpiresAt: &past,
	})
	require.NoError(t, err)
	_, err = env.forms.PublicForm(ctx, expired.ID)
	assert.True(t, errors.Is(err, fault.ErrFormExpired))

	open, err := env.forms.CreateForm(ctx, "alice", &models.FormDocument{Title: "Open"})
	require.NoError(t, err)
	got, err := env.forms.PublicForm(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, "Open", got.Title)
}
