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

// FormService persists form graphs. It is the only writer of sections,
// questions and option links, and saves a whole document in one
// transaction using two passes: pass 1 materializes every section and
// records its frontend id, pass 2 wires the branching edges and creates
// the questions underneath. That split is what lets a document reference
// a section declared later in the same payload.
type FormService struct {
	store    *store.Store
	notifier *NotificationService
}

func NewFormService(st *store.Store, notifier *NotificationService) *FormService {
	return &FormService{store: st, notifier: notifier}
}

// CreateForm persists a new form document for actor and seeds its
// analytics row. The whole save is atomic: a duplicate frontend id or a
// storage failure leaves nothing behind.
func (fs *FormService) CreateForm(ctx context.Context, actor string, doc *models.FormDocument) (*models.FeedbackForm, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	form := &models.FeedbackForm{
		ID:          uuid.New().String(),
		Title:       doc.Title,
		Description: doc.Description,
		FormType:    doc.FormType,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
		ExpiresAt:   doc.ExpiresAt,
	}
	if form.FormType == "" {
		form.FormType = models.FormTypeGeneral
	}
	if doc.IsActive != nil {
		form.IsActive = *doc.IsActive
	}

	err := fs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, fs.store.Rebind(`
			INSERT INTO forms (id, title, description, form_type, created_by, created_at, updated_at, is_active, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			form.ID, form.Title, form.Description, form.FormType, form.CreatedBy,
			form.CreatedAt, form.UpdatedAt, form.IsActive, form.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create form: %w", err)
		}

		if err := fs.saveSections(ctx, tx, form.ID, doc.Sections, false); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, fs.store.Rebind(`
			INSERT INTO form_analytics (form_id, total_responses, completion_rate, average_rating, questions_summary, last_updated)
			VALUES (?, 0, 0, 0, '{}', ?)`),
			form.ID, now,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, err := fs.notifier.Notify(ctx, models.NotificationEvent{
		TargetGroup: userGroup(actor),
		Type:        models.NotificationFormCreated,
		Title:       "Form Created",
		Message:     fmt.Sprintf("Form %q was created", form.Title),
		Data: map[string]interface{}{
			"form_id":    form.ID,
			"form_title": form.Title,
		},
	}); err != nil {
		log.Printf("Failed to record notification for form %s: %v", form.ID, err)
	}

	return fs.GetForm(ctx, actor, form.ID)
}

// UpdateForm replaces the form's document: every level of the hierarchy
// gets upsert-and-prune semantics, matched by frontend id with a durable
// id fallback. A child absent from the input is deleted.
func (fs *FormService) UpdateForm(ctx context.Context, actor, formID string, doc *models.FormDocument) (*models.FeedbackForm, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	form, err := fs.ownedForm(ctx, actor, formID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = fs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		title := form.Title
		if doc.Title != "" {
			title = doc.Title
		}
		formType := form.FormType
		if doc.FormType != "" {
			formType = doc.FormType
		}
		isActive := form.IsActive
		if doc.IsActive != nil {
			isActive = *doc.IsActive
		}

		_, err := tx.ExecContext(ctx, fs.store.Rebind(`
			UPDATE forms SET title = ?, description = ?, form_type = ?, is_active = ?, expires_at = ?, updated_at = ?
			WHERE id = ?`),
			title, doc.Description, formType, isActive, doc.ExpiresAt, now, formID,
		)
		if err != nil {
			return fmt.Errorf("failed to update form: %w", err)
		}

		return fs.saveSections(ctx, tx, formID, doc.Sections, true)
	})
	if err != nil {
		return nil, err
	}

	return fs.GetForm(ctx, actor, formID)
}

// saveSections runs the two-pass save for one form. Pass 1 must fully
// complete before pass 2 touches any edge; that ordering is what makes
// forward references inside the document resolve.
func (fs *FormService) saveSections(ctx context.Context, tx *sqlx.Tx, formID string, sections []models.SectionInput, replace bool) error {
	var existingByFrontend map[string]models.Section
	var existingByID map[int64]models.Section
	var existing []models.Section

	if replace {
		if err := tx.SelectContext(ctx, &existing, fs.store.Rebind(
			`SELECT id, form_id, frontend_id, title, description, position, next_section_id
			 FROM sections WHERE form_id = ? ORDER BY position, id`), formID); err != nil {
			return fmt.Errorf("failed to load existing sections: %w", err)
		}
		existingByFrontend = make(map[string]models.Section)
		existingByID = make(map[int64]models.Section)
		for _, s := range existing {
			if s.FrontendID != nil && *s.FrontendID != "" {
				existingByFrontend[*s.FrontendID] = s
			}
			existingByID[s.ID] = s
		}
	}

	resolver := newSectionResolver()
	kept := make(map[int64]bool)

	type pendingSection struct {
		id int64
		in models.SectionInput
	}
	pending := make([]pendingSection, 0, len(sections))

	// Pass 1: materialize every section with its scalar fields, edges
	// still unresolved, and register its frontend id.
	for _, in := range sections {
		var sectionID int64

		matched := false
		if replace {
			if in.FrontendID != "" {
				if s, ok := existingByFrontend[in.FrontendID]; ok {
					sectionID = s.ID
					matched = true
				}
			}
			if !matched && in.ID != 0 {
				if s, ok := existingByID[in.ID]; ok {
					sectionID = s.ID
					matched = true
				}
			}
		}

		if matched {
			_, err := tx.ExecContext(ctx, fs.store.Rebind(`
				UPDATE sections SET title = ?, description = ?, position = ?, frontend_id = ?
				WHERE id = ?`),
				in.Title, in.Description, in.Position, nullableString(in.FrontendID), sectionID,
			)
			if err != nil {
				return fmt.Errorf("failed to update section: %w", err)
			}
		} else {
			id, err := fs.store.InsertReturningID(ctx, tx, `
				INSERT INTO sections (form_id, frontend_id, title, description, position, next_section_id)
				VALUES (?, ?, ?, ?, ?, NULL)`,
				formID, nullableString(in.FrontendID), in.Title, in.Description, in.Position,
			)
			if err != nil {
				return fmt.Errorf("failed to create section: %w", err)
			}
			sectionID = id
		}

		if err := resolver.register(in.FrontendID, sectionID); err != nil {
			return err
		}
		kept[sectionID] = true
		pending = append(pending, pendingSection{id: sectionID, in: in})
	}

	// Pass 2: resolve branching edges and materialize questions. An
	// unresolved frontend id degrades to a null edge, never an error.
	for _, p := range pending {
		var nextID interface{}
		if target, ok := resolver.resolve(p.in.NextSection); ok {
			nextID = target
		}
		_, err := tx.ExecContext(ctx, fs.store.Rebind(
			`UPDATE sections SET next_section_id = ? WHERE id = ?`), nextID, p.id)
		if err != nil {
			return fmt.Errorf("failed to wire section edge: %w", err)
		}

		if err := fs.saveQuestions(ctx, tx, p.id, p.in.Questions, resolver, replace); err != nil {
			return err
		}
	}

	// Prune: sections missing from the input are deleted; their questions
	// cascade, and edges pointing at them are nulled by the schema.
	if replace {
		for _, s := range existing {
			if kept[s.ID] {
				continue
			}
			if _, err := tx.ExecContext(ctx, fs.store.Rebind(`DELETE FROM sections WHERE id = ?`), s.ID); err != nil {
				return fmt.Errorf("failed to prune section: %w", err)
			}
		}
	}

	return nil
}

func (fs *FormService) saveQuestions(ctx context.Context, tx *sqlx.Tx, sectionID int64, questions []models.QuestionInput, resolver *sectionResolver, replace bool) error {
	var existing []models.Question
	existingByFrontend := make(map[string]models.Question)
	existingByID := make(map[int64]models.Question)

	if replace {
		if err := tx.SelectContext(ctx, &existing, fs.store.Rebind(
			`SELECT id, section_id, frontend_id, text, question_type, is_required, position, options, enable_option_navigation
			 FROM questions WHERE section_id = ? ORDER BY position, id`), sectionID); err != nil {
			return fmt.Errorf("failed to load existing questions: %w", err)
		}
		for _, q := range existing {
			if q.FrontendID != nil && *q.FrontendID != "" {
				existingByFrontend[*q.FrontendID] = q
			}
			existingByID[q.ID] = q
		}
	}

	kept := make(map[int64]bool)

	for _, in := range questions {
		options := models.StringList(in.Options)
		if options == nil {
			options = models.StringList{}
		}

		var questionID int64
		matched := false
		if replace {
			if in.FrontendID != "" {
				if q, ok := existingByFrontend[in.FrontendID]; ok {
					questionID = q.ID
					matched = true
				}
			}
			if !matched && in.ID != 0 {
				if q, ok := existingByID[in.ID]; ok {
					questionID = q.ID
					matched = true
				}
			}
		}

		if matched {
			_, err := tx.ExecContext(ctx, fs.store.Rebind(`
				UPDATE questions SET text = ?, question_type = ?, is_required = ?, position = ?, options = ?, enable_option_navigation = ?, frontend_id = ?
				WHERE id = ?`),
				in.Text, in.QuestionType, in.IsRequired, in.Position, options, in.EnableOptionNavigation,
				nullableString(in.FrontendID), questionID,
			)
			if err != nil {
				return fmt.Errorf("failed to update question: %w", err)
			}
		} else {
			id, err := fs.store.InsertReturningID(ctx, tx, `
				INSERT INTO questions (section_id, frontend_id, text, question_type, is_required, position, options, enable_option_navigation)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sectionID, nullableString(in.FrontendID), in.Text, in.QuestionType,
				in.IsRequired, in.Position, options, in.EnableOptionNavigation,
			)
			if err != nil {
				return fmt.Errorf("failed to create question: %w", err)
			}
			questionID = id
		}

		kept[questionID] = true
		if err := fs.saveOptionLinks(ctx, tx, questionID, in.OptionLinks, resolver, replace); err != nil {
			return err
		}
	}

	if replace {
		for _, q := range existing {
			if kept[q.ID] {
				continue
			}
			if _, err := tx.ExecContext(ctx, fs.store.Rebind(`DELETE FROM questions WHERE id = ?`), q.ID); err != nil {
				return fmt.Errorf("failed to prune question: %w", err)
			}
		}
	}

	return nil
}

func (fs *FormService) saveOptionLinks(ctx context.Context, tx *sqlx.Tx, questionID int64, links []models.OptionLinkInput, resolver *sectionResolver, replace bool) error {
	var existing []models.QuestionOption
	existingByID := make(map[int64]models.QuestionOption)

	if replace {
		if err := tx.SelectContext(ctx, &existing, fs.store.Rebind(
			`SELECT id, question_id, text, next_section_id FROM question_options WHERE question_id = ? ORDER BY id`), questionID); err != nil {
			return fmt.Errorf("failed to load existing option links: %w", err)
		}
		for _, l := range existing {
			existingByID[l.ID] = l
		}
	}

	kept := make(map[int64]bool)

	for _, in := range links {
		var nextID interface{}
		if target, ok := resolver.resolve(in.NextSection); ok {
			nextID = target
		}

		if replace && in.ID != 0 {
			if _, ok := existingByID[in.ID]; ok {
				_, err := tx.ExecContext(ctx, fs.store.Rebind(
					`UPDATE question_options SET text = ?, next_section_id = ? WHERE id = ?`),
					in.Text, nextID, in.ID)
				if err != nil {
					return fmt.Errorf("failed to update option link: %w", err)
				}
				kept[in.ID] = true
				continue
			}
		}

		id, err := fs.store.InsertReturningID(ctx, tx, `
			INSERT INTO question_options (question_id, text, next_section_id)
			VALUES (?, ?, ?)`,
			questionID, in.Text, nextID,
		)
		if err != nil {
			return fmt.Errorf("failed to create option link: %w", err)
		}
		kept[id] = true
	}

	if replace {
		for _, l := range existing {
			if kept[l.ID] {
				continue
			}
			if _, err := tx.ExecContext(ctx, fs.store.Rebind(`DELETE FROM question_options WHERE id = ?`), l.ID); err != nil {
				return fmt.Errorf("failed to prune option link: %w", err)
			}
		}
	}

	return nil
}

// GetForm returns the owner's form with its full graph and response count.
func (fs *FormService) GetForm(ctx context.Context, actor, formID string) (*models.FeedbackForm, error) {
	form, err := fs.ownedForm(ctx, actor, formID)
	if err != nil {
		return nil, err
	}
	if err := fs.loadGraph(ctx, form); err != nil {
		return nil, err
	}
	if err := fs.store.DB.GetContext(ctx, &form.ResponseCount, fs.store.Rebind(
		`SELECT COUNT(*) FROM responses WHERE form_id = ?`), formID); err != nil {
		return nil, err
	}
	form.IsExpired = form.Expired(time.Now().UTC())
	return form, nil
}

// ListForms returns the actor's forms, newest first, with response counts.
func (fs *FormService) ListForms(ctx context.Context, actor string) ([]models.FeedbackForm, error) {
	var forms []models.FeedbackForm
	err := fs.store.DB.SelectContext(ctx, &forms, fs.store.Rebind(`
		SELECT f.id, f.title, f.description, f.form_type, f.created_by, f.created_at, f.updated_at, f.is_active, f.expires_at,
		       COUNT(r.id) AS response_count
		FROM forms f
		LEFT JOIN responses r ON r.form_id = f.id
		WHERE f.created_by = ?
		GROUP BY f.id, f.title, f.description, f.form_type, f.created_by, f.created_at, f.updated_at, f.is_active, f.expires_at
		ORDER BY f.created_at DESC`), actor)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for i := range forms {
		forms[i].IsExpired = forms[i].Expired(now)
	}
	return forms, nil
}

// DeleteForm removes the form; sections, responses and analytics cascade.
func (fs *FormService) DeleteForm(ctx context.Context, actor, formID string) error {
	if _, err := fs.ownedForm(ctx, actor, formID); err != nil {
		return err
	}
	_, err := fs.store.DB.ExecContext(ctx, fs.store.Rebind(`DELETE FROM forms WHERE id = ?`), formID)
	return err
}

// PublicForm returns the document end users fill in. Inactive and expired
// forms get their own rejections; neither is a NotFound.
func (fs *FormService) PublicForm(ctx context.Context, formID string) (*models.FeedbackForm, error) {
	form, err := fs.formByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !form.IsActive {
		return nil, fault.ErrFormInactive
	}
	if form.Expired(time.Now().UTC()) {
		return nil, fault.ErrFormExpired
	}
	if err := fs.loadGraph(ctx, form); err != nil {
		return nil, err
	}
	return form, nil
}

// FormQuestions returns every question reachable from the form, flattened
// across sections in display order.
func (fs *FormService) FormQuestions(ctx context.Context, formID string) ([]models.Question, error) {
	var questions []models.Question
	err := fs.store.DB.SelectContext(ctx, &questions, fs.store.Rebind(`
		SELECT q.id, q.section_id, q.frontend_id, q.text, q.question_type, q.is_required, q.position, q.options, q.enable_option_navigation
		FROM questions q
		JOIN sections s ON s.id = q.section_id
		WHERE s.form_id = ?
		ORDER BY s.position, s.id, q.position, q.id`), formID)
	return questions, err
}

func (fs *FormService) formByID(ctx context.Context, formID string) (*models.FeedbackForm, error) {
	var form models.FeedbackForm
	err := fs.store.DB.GetContext(ctx, &form, fs.store.Rebind(`
		SELECT id, title, description, form_type, created_by, created_at, updated_at, is_active, expires_at
		FROM forms WHERE id = ?`), formID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrFormNotFound
	}
	if err != nil {
		return nil, err
	}
	return &form, nil
}

func (fs *FormService) ownedForm(ctx context.Context, actor, formID string) (*models.FeedbackForm, error) {
	form, err := fs.formByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.CreatedBy != actor {
		// Foreign-owned forms are indistinguishable from missing ones at
		// the boundary, but callers can still tell the cases apart.
		return nil, fmt.Errorf("%w: %w", fault.ErrFormNotFound, fault.ErrNotOwner)
	}
	return form, nil
}

// loadGraph attaches sections, questions and option links to the form.
func (fs *FormService) loadGraph(ctx context.Context, form *models.FeedbackForm) error {
	sections := []models.Section{}
	if err := fs.store.DB.SelectContext(ctx, &sections, fs.store.Rebind(`
		SELECT id, form_id, frontend_id, title, description, position, next_section_id
		FROM sections WHERE form_id = ? ORDER BY position, id`), form.ID); err != nil {
		return err
	}
	if len(sections) == 0 {
		form.Sections = sections
		return nil
	}

	sectionIDs := make([]int64, len(sections))
	sectionIdx := make(map[int64]int, len(sections))
	for i, s := range sections {
		sectionIDs[i] = s.ID
		sectionIdx[s.ID] = i
		sections[i].Questions = []models.Question{}
	}

	query, args, err := sqlx.In(`
		SELECT id, section_id, frontend_id, text, question_type, is_required, position, options, enable_option_navigation
		FROM questions WHERE section_id IN (?) ORDER BY position, id`, sectionIDs)
	if err != nil {
		return err
	}
	var questions []models.Question
	if err := fs.store.DB.SelectContext(ctx, &questions, fs.store.DB.Rebind(query), args...); err != nil {
		return err
	}

	if len(questions) > 0 {
		questionIDs := make([]int64, len(questions))
		questionIdx := make(map[int64]int, len(questions))
		for i, q := range questions {
			questionIDs[i] = q.ID
			questionIdx[q.ID] = i
			questions[i].OptionLinks = []models.QuestionOption{}
		}

		query, args, err = sqlx.In(`
			SELECT id, question_id, text, next_section_id
			FROM question_options WHERE question_id IN (?) ORDER BY id`, questionIDs)
		if err != nil {
			return err
		}
		var links []models.QuestionOption
		if err := fs.store.DB.SelectContext(ctx, &links, fs.store.DB.Rebind(query), args...); err != nil {
			return err
		}
		for _, l := range links {
			i := questionIdx[l.QuestionID]
			questions[i].OptionLinks = append(questions[i].OptionLinks, l)
		}
	}

	for _, q := range questions {
		if q.SectionID == nil {
			continue
		}
		i := sectionIdx[*q.SectionID]
		sections[i].Questions = append(sections[i].Questions, q)
	}

	form.Sections = sections
	return nil
}

func validateDocument(doc *models.FormDocument) error {
	for _, s := range doc.Sections {
		for _, q := range s.Questions {
			if !models.ValidQuestionType(q.QuestionType) {
				return fault.NewClientError(
					fmt.Sprintf("unknown question type %q", q.QuestionType), nil)
			}
		}
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
