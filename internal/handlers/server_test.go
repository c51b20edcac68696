package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/config"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.RateLimiting.Enabled = false
	cfg.Notifications.Ntfy.Enabled = false
	cfg.Email.Enabled = false

	st, err := store.Open(config.DatabaseConfig{Type: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewServer(cfg, st)
}

func doJSON(t *testing.T, s *Server, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func surveyDocument() map[string]interface{} {
	return map[string]interface{}{
		"title": "Survey",
		"sections": []map[string]interface{}{
			{
				"frontend_id":            "intro",
				"title":                  "Intro",
				"order":                  0,
				"next_section_on_submit": "details",
				"questions": []map[string]interface{}{
					{"frontend_id": "q1", "text": "Name?", "question_type": "text", "is_required": true, "order": 0},
				},
			},
			{"frontend_id": "details", "title": "Details", "order": 1},
		},
	}
}

func TestAdminRoutesRequireActor(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/forms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndFetchForm(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/forms", "alice", surveyDocument())
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	formID, _ := created["id"].(string)
	require.NotEmpty(t, formID)

	sections, ok := created["sections"].([]interface{})
	require.True(t, ok)
	require.Len(t, sections, 2)
	intro := sections[0].(map[string]interface{})
	details := sections[1].(map[string]interface{})
	// The forward reference resolved to the second section's durable id.
	assert.Equal(t, details["id"], intro["next_section_on_submit"])

	w = doJSON(t, s, http.MethodGet, "/api/forms/"+formID, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Another actor cannot see it.
	w = doJSON(t, s, http.MethodGet, "/api/forms/"+formID, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/forms", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode(t, w)
	assert.EqualValues(t, 1, listed["total"])
}

func TestCreateFormRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/forms", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "alice")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A missing title fails binding.
	w = doJSON(t, s, http.MethodPost, "/api/forms", "alice", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicSubmitFlow(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/forms", "alice", surveyDocument())
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	formID := created["id"].(string)
	sections := created["sections"].([]interface{})
	question := sections[0].(map[string]interface{})["questions"].([]interface{})[0].(map[string]interface{})
	questionID := question["id"].(float64)

	// The public document is readable without an actor.
	w = doJSON(t, s, http.MethodGet, "/public/forms/"+formID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Missing the required question yields a structured rejection.
	w = doJSON(t, s, http.MethodPost, "/public/forms/"+formID+"/submit", "", map[string]interface{}{
		"answers": []map[string]interface{}{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	rejected := decode(t, w)
	details := rejected["details"].(map[string]interface{})
	missing := details["missing_questions"].([]interface{})
	require.Len(t, missing, 1)
	assert.Equal(t, "Name?", missing[0].(map[string]interface{})["question_text"])

	w = doJSON(t, s, http.MethodPost, "/public/forms/"+formID+"/submit", "", map[string]interface{}{
		"answers": []map[string]interface{}{
			{"question": questionID, "answer_text": "Bob"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	submitted := decode(t, w)
	responseID := submitted["response_id"].(string)
	require.NotEmpty(t, responseID)

	// The owner sees the response, its answers and a notification.
	w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/forms/%s/responses", formID), "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = doJSON(t, s, http.MethodGet, "/api/responses/"+responseID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	answers := response["answers"].([]interface{})
	require.Len(t, answers, 1)
	assert.Equal(t, "Bob", answers[0].(map[string]interface{})["answer_text"])

	// One form_created and one new_response notification.
	w = doJSON(t, s, http.MethodGet, "/api/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["total"])

	w = doJSON(t, s, http.MethodGet, "/api/forms/"+formID+"/analytics", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	analytics := decode(t, w)
	assert.EqualValues(t, 1, analytics["total_responses"])

	w = doJSON(t, s, http.MethodGet, "/api/dashboard", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total_responses"])
}

func TestPublicFormStatusMapping(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/public/forms/no-such-form", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/forms", "alice", map[string]interface{}{
		"title": "Closed", "is_active": false,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	closedID := decode(t, w)["id"].(string)
	w = doJSON(t, s, http.MethodGet, "/public/forms/"+closedID, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	w = doJSON(t, s, http.MethodPost, "/api/forms", "alice", map[string]interface{}{
		"title": "Stale", "expires_at": past,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	staleID := decode(t, w)["id"].(string)
	w = doJSON(t, s, http.MethodGet, "/public/forms/"+staleID, "", nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/forms", "alice", surveyDocument())
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	formID := created["id"].(string)
	sections := created["sections"].([]interface{})
	question := sections[0].(map[string]interface{})["questions"].([]interface{})[0].(map[string]interface{})

	w = doJSON(t, s, http.MethodPost, "/public/forms/"+formID+"/submit", "", map[string]interface{}{
		"answers": []map[string]interface{}{
			{"question": question["id"], "answer_text": "Bob"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// The create and the submission each left one unread notification.
	w = doJSON(t, s, http.MethodGet, "/api/notifications/unread-count", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["unread_count"])

	w = doJSON(t, s, http.MethodGet, "/api/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notifications := decode(t, w)["notifications"].([]interface{})
	require.Len(t, notifications, 2)
	assert.Equal(t, "new_response", notifications[0].(map[string]interface{})["notification_type"])
	id := notifications[0].(map[string]interface{})["id"].(float64)

	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", int64(id)), "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/notifications/unread-count", "alice", nil)
	assert.EqualValues(t, 1, decode(t, w)["unread_count"])

	// Foreign actors get a 404 for someone else's notification.
	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", int64(id)), "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/notifications/abc/read", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/notifications/read-all", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/notifications/unread-count", "alice", nil)
	assert.EqualValues(t, 0, decode(t, w)["unread_count"])
}

func TestUpdateAndDeleteForm(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/forms", "alice", surveyDocument())
	require.Equal(t, http.StatusCreated, w.Code)
	formID := decode(t, w)["id"].(string)

	doc := surveyDocument()
	doc["title"] = "Survey v2"
	doc["sections"] = doc["sections"].([]map[string]interface{})[:1]
	w = doJSON(t, s, http.MethodPut, "/api/forms/"+formID, "alice", doc)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode(t, w)
	assert.Equal(t, "Survey v2", updated["title"])
	assert.Len(t, updated["sections"].([]interface{}), 1)

	w = doJSON(t, s, http.MethodDelete, "/api/forms/"+formID, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/forms/"+formID, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/forms/"+formID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}
