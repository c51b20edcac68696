package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/config"
)

// Store owns the database handle shared by all services.
type Store struct {
	DB      *sqlx.DB
	dialect string
}

// Open connects per the configured dialect and ensures the schema exists.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch cfg.Type {
	case "sqlite":
		dsn := cfg.Database
		if !strings.Contains(dsn, "_pragma") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=foreign_keys(1)"
		}
		db, err = sqlx.Open("sqlite", dsn)
		if err == nil {
			// modernc sqlite allows a single writer; a second pooled
			// connection would also miss an in-memory database entirely.
			db.SetMaxOpenConns(1)
		}
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
		db, err = sqlx.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{DB: db, dialect: cfg.Type}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) Dialect() string {
	return s.dialect
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Rebind converts ? placeholders to the dialect's bindvar style.
func (s *Store) Rebind(query string) string {
	return s.DB.Rebind(query)
}

// WithTx runs fn inside one transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// InsertReturningID executes an INSERT and reports the generated row id.
// Postgres needs RETURNING; sqlite exposes it through the driver result.
func (s *Store) InsertReturningID(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (int64, error) {
	if s.dialect == "postgres" {
		var id int64
		err := tx.QueryRowxContext(ctx, s.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}

	res, err := tx.ExecContext(ctx, s.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// IsUniqueViolation reports whether err is a unique-constraint failure
// from either driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		// SQLITE_CONSTRAINT_UNIQUE, SQLITE_CONSTRAINT_PRIMARYKEY, SQLITE_CONSTRAINT
		code := sqErr.Code()
		return code == 2067 || code == 1555 || code == 19
	}
	return false
}

func (s *Store) createTables() error {
	var schema string

	switch s.dialect {
	case "sqlite":
		schema = `
		CREATE TABLE IF NOT EXISTS forms (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			form_type TEXT NOT NULL DEFAULT 'general',
			created_by TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at DATETIME
		);
		CREATE TABLE IF NOT EXISTS sections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			form_id TEXT NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
			frontend_id TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			next_section_id INTEGER REFERENCES sections(id) ON DELETE SET NULL
		);
		CREATE TABLE IF NOT EXISTS questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			section_id INTEGER REFERENCES sections(id) ON DELETE CASCADE,
			frontend_id TEXT,
			text TEXT NOT NULL,
			question_type TEXT NOT NULL,
			is_required BOOLEAN NOT NULL DEFAULT FALSE,
			position INTEGER NOT NULL DEFAULT 0,
			options TEXT NOT NULL DEFAULT '[]',
			enable_option_navigation BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS question_options (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			next_section_id INTEGER REFERENCES sections(id) ON DELETE SET NULL
		);
		CREATE TABLE IF NOT EXISTS responses (
			id TEXT PRIMARY KEY,
			form_id TEXT NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
			submitted_at DATETIME NOT NULL,
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS answers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			response_id TEXT NOT NULL REFERENCES responses(id) ON DELETE CASCADE,
			question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			answer_text TEXT NOT NULL DEFAULT '',
			answer_value TEXT NOT NULL DEFAULT '{}',
			UNIQUE(response_id, question_id)
		);
		CREATE TABLE IF NOT EXISTS form_analytics (
			form_id TEXT PRIMARY KEY REFERENCES forms(id) ON DELETE CASCADE,
			total_responses INTEGER NOT NULL DEFAULT 0,
			completion_rate REAL NOT NULL DEFAULT 0,
			average_rating REAL NOT NULL DEFAULT 0,
			questions_summary TEXT NOT NULL DEFAULT '{}',
			last_updated DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recipient TEXT NOT NULL,
			notification_type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			data TEXT NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_sections_form_id ON sections(form_id);
		CREATE INDEX IF NOT EXISTS idx_questions_section_id ON questions(section_id);
		CREATE INDEX IF NOT EXISTS idx_question_options_question_id ON question_options(question_id);
		CREATE INDEX IF NOT EXISTS idx_responses_form_id ON responses(form_id);
		CREATE INDEX IF NOT EXISTS idx_answers_response_id ON answers(response_id);
		CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient);
		`
	case "postgres":
		schema = `
		CREATE TABLE IF NOT EXISTS forms (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			form_type TEXT NOT NULL DEFAULT 'general',
			created_by TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMP WITH TIME ZONE
		);
		CREATE TABLE IF NOT EXISTS sections (
			id BIGSERIAL PRIMARY KEY,
			form_id TEXT NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
			frontend_id TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			next_section_id BIGINT REFERENCES sections(id) ON DELETE SET NULL
		);
		CREATE TABLE IF NOT EXISTS questions (
			id BIGSERIAL PRIMARY KEY,
			section_id BIGINT REFERENCES sections(id) ON DELETE CASCADE,
			frontend_id TEXT,
			text TEXT NOT NULL,
			question_type TEXT NOT NULL,
			is_required BOOLEAN NOT NULL DEFAULT FALSE,
			position INTEGER NOT NULL DEFAULT 0,
			options JSONB NOT NULL DEFAULT '[]',
			enable_option_navigation BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS question_options (
			id BIGSERIAL PRIMARY KEY,
			question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			next_section_id BIGINT REFERENCES sections(id) ON DELETE SET NULL
		);
		CREATE TABLE IF NOT EXISTS responses (
			id TEXT PRIMARY KEY,
			form_id TEXT NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
			submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS answers (
			id BIGSERIAL PRIMARY KEY,
			response_id TEXT NOT NULL REFERENCES responses(id) ON DELETE CASCADE,
			question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			answer_text TEXT NOT NULL DEFAULT '',
			answer_value JSONB NOT NULL DEFAULT '{}',
			UNIQUE(response_id, question_id)
		);
		CREATE TABLE IF NOT EXISTS form_analytics (
			form_id TEXT PRIMARY KEY REFERENCES forms(id) ON DELETE CASCADE,
			total_responses BIGINT NOT NULL DEFAULT 0,
			completion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			questions_summary JSONB NOT NULL DEFAULT '{}',
			last_updated TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE TABLE IF NOT EXISTS notifications (
			id BIGSERIAL PRIMARY KEY,
			recipient TEXT NOT NULL,
			notification_type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			data JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_sections_form_id ON sections(form_id);
		CREATE INDEX IF NOT EXISTS idx_questions_section_id ON questions(section_id);
		CREATE INDEX IF NOT EXISTS idx_question_options_question_id ON question_options(question_id);
		CREATE INDEX IF NOT EXISTS idx_responses_form_id ON responses(form_id);
		CREATE INDEX IF NOT EXISTS idx_answers_response_id ON answers(response_id);
		CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient);
		`
	}

	_, err := s.DB.Exec(schema)
	return err
}
