package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/persistence/file"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/testutil"
	"github.com/dukex/casework/pkg/validation"
	"github.com/dukex/casework/pkg/web"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	p := testutil.NewMemoryPersistence(t, time.Second)
	validator := validation.NewSchemaService(testutil.Logger(), p)
	orchestrator := workflow.NewOrchestrator(testutil.Logger(), p, validator)

	handlers := web.NewAPIHandlers(
		services.NewDefinitions(testutil.Logger(), p),
		services.NewCases(p, orchestrator),
		services.NewWorkItems(p, orchestrator),
		services.NewDocuments(p, validator),
	)

	app := fiber.New()
	handlers.Register(app)

	return app, p
}

type response struct {
	status int
	body   map[string]any
}

func call(t *testing.T, app *fiber.App, method, target, body string) response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.ActorHeader, "alice")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	r := response{status: resp.StatusCode}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &r.body), string(data))
	}

	return r
}

func importPermit(t *testing.T, app *fiber.App) {
	t.Helper()

	data, err := os.ReadFile("../../examples/definitions/permit.yaml")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/definitions", strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/yaml")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func startPermit(t *testing.T, app *fiber.App) (caseID, documentID, workItemID string) {
	t.Helper()

	r := call(t, app, http.MethodPost, "/cases", `{"workflow_id":"building-permit","meta":{"boards":["fire","water"]}}`)
	require.Equal(t, http.StatusCreated, r.status, r.body)

	items := r.body["work_items"].([]any)
	require.Len(t, items, 1)

	return r.body["id"].(string), r.body["document_id"].(string), items[0].(map[string]any)["id"].(string)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	r := call(t, app, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "healthy", r.body["status"])
}

func TestAPIHandlers_ImportDefinitions(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{
			name:           "json document",
			body:           `{"tasks":[{"id":"review","name":"Review"}],"workflows":[{"id":"wf","name":"Workflow","start_tasks":["review"]}]}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "empty body",
			body:           "",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "broken flow expression",
			body:           `{"tasks":[{"id":"a","name":"Task A"}],"workflows":[{"id":"wf","name":"Workflow","start_tasks":["a"],"flows":[{"tasks":["a"],"next":"'a'|"}]}]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown start task",
			body:           `{"workflows":[{"id":"wf","name":"Workflow","start_tasks":["ghost"]}]}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(t, app, http.MethodPost, "/definitions", tt.body)

			assert.Equal(t, tt.expectedStatus, r.status, r.body)
		})
	}

	r := call(t, app, http.MethodGet, "/workflows/wf", "")
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, []any{"review"}, r.body["start_tasks"])

	r = call(t, app, http.MethodGet, "/workflows/missing", "")
	assert.Equal(t, http.StatusNotFound, r.status)
}

func TestAPIHandlers_CaseLifecycle(t *testing.T) {
	app, _ := setupTestApp(t)
	importPermit(t, app)

	caseID, documentID, intakeID := startPermit(t, app)

	r := call(t, app, http.MethodPost, "/work-items/"+intakeID+"/complete", "")
	require.Equal(t, http.StatusUnprocessableEntity, r.status)
	assert.Equal(t, []any{"applicant", "floors"}, r.body["missing"])

	r = call(t, app, http.MethodPut, "/documents/"+documentID+"/answers/applicant", `{"value":"Ada"}`)
	require.Equal(t, http.StatusOK, r.status, r.body)

	r = call(t, app, http.MethodPut, "/documents/"+documentID+"/answers/floors", `{"value":3}`)
	require.Equal(t, http.StatusOK, r.status, r.body)

	r = call(t, app, http.MethodPut, "/documents/"+documentID+"/answers/verdict", `{"value":"approve"}`)
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = call(t, app, http.MethodGet, "/documents/"+documentID, "")
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, true, r.body["validation"].(map[string]any)["ok"])

	r = call(t, app, http.MethodPost, "/work-items/"+intakeID+"/complete", "")
	require.Equal(t, http.StatusOK, r.status, r.body)
	assert.Len(t, r.body["created"], 2)
	assert.Equal(t, "alice", r.body["work_item"].(map[string]any)["closed_by_user"])

	r = call(t, app, http.MethodPost, "/work-items/"+intakeID+"/complete", "")
	assert.Equal(t, http.StatusConflict, r.status)

	r = call(t, app, http.MethodGet, "/work-items?status=ready&case="+caseID+"&task=structural-review,zoning-review", "")
	require.Equal(t, http.StatusOK, r.status)
	assert.EqualValues(t, 2, r.body["total_count"])

	for _, item := range r.body["work_items"].([]any) {
		id := item.(map[string]any)["id"].(string)

		skipped := call(t, app, http.MethodPost, "/work-items/"+id+"/skip", "")
		require.Equal(t, http.StatusOK, skipped.status, skipped.body)
	}

	filter := url.QueryEscape(`[{"question":"floors","value":3}]`)
	r = call(t, app, http.MethodGet, "/work-items?addressed_groups=fire&case_has_answer="+filter, "")
	require.Equal(t, http.StatusOK, r.status, r.body)
	assert.EqualValues(t, 1, r.body["total_count"])

	r = call(t, app, http.MethodPost, "/cases/"+caseID+"/work-items", `{"task_id":"decision"}`)
	assert.Equal(t, http.StatusConflict, r.status)

	r = call(t, app, http.MethodPost, "/cases/"+caseID+"/work-items", `{"task_id":"sign-off"}`)
	require.Equal(t, http.StatusCreated, r.status, r.body)

	created := r.body["id"].(string)

	r = call(t, app, http.MethodPatch, "/work-items/"+created, `{"assigned_users":["bob"],"meta":{"priority":1}}`)
	require.Equal(t, http.StatusOK, r.status, r.body)
	assert.Equal(t, []any{"bob"}, r.body["assigned_users"])

	r = call(t, app, http.MethodPost, "/cases/"+caseID+"/cancel", "")
	require.Equal(t, http.StatusOK, r.status, r.body)
	assert.Equal(t, "canceled", r.body["status"])

	r = call(t, app, http.MethodPost, "/cases/"+caseID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, r.status)
}

func TestAPIHandlers_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)
	importPermit(t, app)

	for _, target := range []string{
		"/cases/0197a5b8-0000-7000-8000-000000000000",
		"/work-items/0197a5b8-0000-7000-8000-000000000000",
		"/documents/0197a5b8-0000-7000-8000-000000000000",
	} {
		t.Run(target, func(t *testing.T) {
			r := call(t, app, http.MethodGet, target, "")

			assert.Equal(t, http.StatusNotFound, r.status)
			assert.Equal(t, "not_found", r.body["type"])
		})
	}

	r := call(t, app, http.MethodPost, "/work-items/0197a5b8-0000-7000-8000-000000000000/complete", "")
	assert.Equal(t, http.StatusNotFound, r.status)

	r = call(t, app, http.MethodPost, "/cases", `{"workflow_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, r.status)

	r = call(t, app, http.MethodPost, "/documents", `{"form_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, r.status)
}

func TestAPIHandlers_BadRequests(t *testing.T) {
	app, _ := setupTestApp(t)
	importPermit(t, app)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "malformed case body", method: http.MethodPost, target: "/cases", body: `{"workflow_id":`},
		{name: "case without workflow", method: http.MethodPost, target: "/cases", body: `{}`},
		{name: "parent is not an id", method: http.MethodPost, target: "/cases", body: `{"workflow_id":"building-permit","parent_work_item_id":"x"}`},
		{name: "unknown status", method: http.MethodGet, target: "/work-items?status=done"},
		{name: "limit not a number", method: http.MethodGet, target: "/work-items?limit=ten"},
		{name: "filter not json", method: http.MethodGet, target: "/work-items?meta_value=priority"},
		{name: "document without form", method: http.MethodPost, target: "/documents", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(t, app, tt.method, tt.target, tt.body)

			assert.Equal(t, http.StatusBadRequest, r.status, r.body)
		})
	}
}

func TestAPIHandlers_Timeout(t *testing.T) {
	p := testutil.NewMemoryPersistence(t, 20*time.Millisecond)
	validator := validation.NewSchemaService(testutil.Logger(), p)
	orchestrator := workflow.NewOrchestrator(testutil.Logger(), p, validator)

	handlers := web.NewAPIHandlers(
		services.NewDefinitions(testutil.Logger(), p),
		services.NewCases(p, orchestrator),
		services.NewWorkItems(p, orchestrator),
		services.NewDocuments(p, validator),
	)

	app := fiber.New()
	handlers.Register(app)
	importPermit(t, app)

	caseID, _, _ := startPermit(t, app)

	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = p.Transaction(t.Context(), func(_ context.Context, _ persistence.Tx) error {
			close(held)
			<-release

			return nil
		})
	}()

	<-held
	defer close(release)

	r := call(t, app, http.MethodPost, "/cases/"+caseID+"/cancel", "")

	assert.Equal(t, http.StatusServiceUnavailable, r.status, r.body)
	assert.Equal(t, "timeout", r.body["type"])
}
