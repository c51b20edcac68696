package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Form types offered by the builder UI.
const (
	FormTypeEmpty                = "empty"
	FormTypeCustomerSatisfaction = "customer_satisfaction"
	FormTypeEmployeeFeedback     = "employee_feedback"
	FormTypeProductFeedback      = "product_feedback"
	FormTypeServiceFeedback      = "service_feedback"
	FormTypeGeneral              = "general"
)

// Question types. Rating10 only ever appears in stored answers from older
// forms; the builder no longer emits it but analytics still fold it in.
const (
	QuestionText     = "text"
	QuestionTextarea = "textarea"
	QuestionRadio    = "radio"
	QuestionDropdown = "dropdown"
	QuestionCheckbox = "checkbox"
	QuestionEmail    = "email"
	QuestionPhone    = "phone"
	QuestionRating   = "rating"
	QuestionRating10 = "rating_10"
	QuestionYesNo    = "yes_no"
)

// Notification types.
const (
	NotificationNewResponse     = "new_response"
	NotificationFormCreated     = "form_created"
	NotificationFormUpdated     = "form_updated"
	NotificationAnalyticsUpdate = "analytics_update"
)

var questionTypes = map[string]bool{
	QuestionText:     true,
	QuestionTextarea: true,
	QuestionRadio:    true,
	QuestionDropdown: true,
	QuestionCheckbox: true,
	QuestionEmail:    true,
	QuestionPhone:    true,
	QuestionRating:   true,
	QuestionYesNo:    true,
}

// ValidQuestionType reports whether t is accepted from the builder.
func ValidQuestionType(t string) bool {
	return questionTypes[t]
}

// StringList is a flat list of option labels stored as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		if len(v) == 0 {
			*l = nil
			return nil
		}
		return json.Unmarshal(v, l)
	case string:
		if v == "" {
			*l = nil
			return nil
		}
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// JSONMap is a free-form JSON object column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONMap) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		if len(v) == 0 {
			*m = nil
			return nil
		}
		return json.Unmarshal(v, m)
	case string:
		if v == "" {
			*m = nil
			return nil
		}
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
}

// FeedbackForm is the root of a form graph. Owned by the actor that
// created it; only the owner may mutate or read it through admin routes.
type FeedbackForm struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	FormType    string     `json:"form_type" db:"form_type"`
	CreatedBy   string     `json:"created_by" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at" db:"expires_at"`

	Sections      []Section `json:"sections,omitempty" db:"-"`
	ResponseCount int64     `json:"response_count" db:"response_count"`
	IsExpired     bool      `json:"is_expired" db:"-"`
}

// Expired reports whether the form's expiry timestamp has passed.
// A form with no expiry never expires.
func (f *FeedbackForm) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}

// Section groups questions and carries the default branching edge:
// NextSectionID is where the client routes on submit unless an
// option-link overrides it. Nil means terminal.
type Section struct {
	ID            int64   `json:"id" db:"id"`
	FormID        string  `json:"form_id" db:"form_id"`
	FrontendID    *string `json:"frontend_id" db:"frontend_id"`
	Title         string  `json:"title" db:"title"`
	Description   string  `json:"description" db:"description"`
	Position      int     `json:"order" db:"position"`
	NextSectionID *int64  `json:"next_section_on_submit" db:"next_section_id"`

	Questions []Question `json:"questions" db:"-"`
}

// Question belongs to one section. Options is the flat render list;
// OptionLinks is the separate branching list consulted only when
// EnableOptionNavigation is set. The two are deliberately not unified.
type Question struct {
	ID                     int64      `json:"id" db:"id"`
	SectionID              *int64     `json:"section_id" db:"section_id"`
	FrontendID             *string    `json:"frontend_id" db:"frontend_id"`
	Text                   string     `json:"text" db:"text"`
	QuestionType           string     `json:"question_type" db:"question_type"`
	IsRequired             bool       `json:"is_required" db:"is_required"`
	Position               int        `json:"order" db:"position"`
	Options                StringList `json:"options" db:"options"`
	EnableOptionNavigation bool       `json:"enable_option_navigation" db:"enable_option_navigation"`

	OptionLinks []QuestionOption `json:"option_links" db:"-"`
}

// QuestionOption is the branching primitive: one choosable label with an
// optional routing target in the same form.
type QuestionOption struct {
	ID            int64  `json:"id" db:"id"`
	QuestionID    int64  `json:"question_id" db:"question_id"`
	Text          string `json:"text" db:"text"`
	NextSectionID *int64 `json:"next_section" db:"next_section_id"`
}

// FeedbackResponse is one anonymous submission. Immutable once created.
type FeedbackResponse struct {
	ID          string    `json:"id" db:"id"`
	FormID      string    `json:"form" db:"form_id"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
	IPAddress   string    `json:"ip_address" db:"ip_address"`
	UserAgent   string    `json:"user_agent" db:"user_agent"`

	FormTitle string   `json:"form_title,omitempty" db:"form_title"`
	Answers   []Answer `json:"answers,omitempty" db:"-"`
}

// Answer holds one (response, question) pair; the pair is unique.
type Answer struct {
	ID          int64   `json:"id" db:"id"`
	ResponseID  string  `json:"response_id" db:"response_id"`
	QuestionID  int64   `json:"question" db:"question_id"`
	AnswerText  string  `json:"answer_text" db:"answer_text"`
	AnswerValue JSONMap `json:"answer_value" db:"answer_value"`

	QuestionText string `json:"question_text,omitempty" db:"question_text"`
	QuestionType string `json:"question_type,omitempty" db:"question_type"`
}

// FormAnalytics is derived state, recomputed in full from responses and
// answers; it is never patched incrementally.
type FormAnalytics struct {
	FormID           string    `json:"form" db:"form_id"`
	TotalResponses   int64     `json:"total_responses" db:"total_responses"`
	CompletionRate   float64   `json:"completion_rate" db:"completion_rate"`
	AverageRating    float64   `json:"average_rating" db:"average_rating"`
	QuestionsSummary JSONMap   `json:"-" db:"questions_summary"`
	LastUpdated      time.Time `json:"last_updated" db:"last_updated"`

	FormTitle string            `json:"form_title,omitempty" db:"-"`
	Summary   []QuestionSummary `json:"questions_summary" db:"-"`
}

// QuestionSummary pairs a question with its type-specific aggregate.
type QuestionSummary struct {
	QuestionID   int64       `json:"question_id"`
	QuestionText string      `json:"question_text"`
	QuestionType string      `json:"question_type"`
	Data         interface{} `json:"data"`
}

// Notification is a stored event for a recipient group, mirrored to the
// live transports on creation.
type Notification struct {
	ID               int64     `json:"id" db:"id"`
	Recipient        string    `json:"-" db:"recipient"`
	NotificationType string    `json:"notification_type" db:"notification_type"`
	Title            string    `json:"title" db:"title"`
	Message          string    `json:"message" db:"message"`
	IsRead           bool      `json:"is_read" db:"is_read"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	Data             JSONMap   `json:"data" db:"data"`
}

// NotificationEvent is the fire-and-forget payload handed to the live
// transports. Delivery is never awaited.
type NotificationEvent struct {
	TargetGroup string                 `json:"-"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data"`
}

// FormDocument is the full builder payload for create and replace. Section
// and option-link targets reference other sections by frontend id, which
// only has meaning within this one document.
type FormDocument struct {
	Title       string         `json:"title" binding:"required"`
	Description string         `json:"description"`
	FormType    string         `json:"form_type"`
	IsActive    *bool          `json:"is_active"`
	ExpiresAt   *time.Time     `json:"expires_at"`
	Sections    []SectionInput `json:"sections"`
}

type SectionInput struct {
	ID          int64           `json:"id"`
	FrontendID  string          `json:"frontend_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Position    int             `json:"order"`
	NextSection string          `json:"next_section_on_submit"`
	Questions   []QuestionInput `json:"questions"`
}

type QuestionInput struct {
	ID                     int64             `json:"id"`
	FrontendID             string            `json:"frontend_id"`
	Text                   string            `json:"text"`
	QuestionType           string            `json:"question_type"`
	IsRequired             bool              `json:"is_required"`
	Position               int               `json:"order"`
	Options                []string          `json:"options"`
	EnableOptionNavigation bool              `json:"enable_option_navigation"`
	OptionLinks            []OptionLinkInput `json:"option_links"`
}

type OptionLinkInput struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	NextSection string `json:"next_section"`
}

// SubmitRequest is the public submission payload.
type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" binding:"required"`
}

type AnswerInput struct {
	QuestionID  int64                  `json:"question"`
	AnswerText  string                 `json:"answer_text"`
	AnswerValue map[string]interface{} `json:"answer_value"`
}

// DashboardSummary aggregates across all of an owner's forms.
type DashboardSummary struct {
	TotalForms            int64              `json:"total_forms"`
	ActiveForms           int64              `json:"active_forms"`
	TotalResponses        int64              `json:"total_responses"`
	RecentResponses       int64              `json:"recent_responses"`
	AverageCompletionRate float64            `json:"average_completion_rate"`
	RecentResponsesList   []FeedbackResponse `json:"recent_responses_list"`
}

// ErrorResponse is the wire shape for rejected requests.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Code    int         `json:"code"`
	Details interface{} `json:"details,omitempty"`
}
