package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hiveflow/orchestrator/agentregistry"
	"github.com/hiveflow/orchestrator/client"
	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/plan"
	"github.com/hiveflow/orchestrator/store/memstore"
	"github.com/hiveflow/orchestrator/tasks"
	"github.com/hiveflow/orchestrator/workers"
)

func newTestServer() *Server {
	st := memstore.New()
	bus := eventbus.New()
	c := client.New(tasks.New(st, bus), workers.New(st, bus), plan.New(st, bus), nil, agentregistry.New(), bus)
	return NewServer(c)
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestCreateTaskRoute(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/tasks", map[string]any{"title": "x", "task_type": "generic"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error decoding body: %v", err)
	}
	if resp["id"] == "" {
		t.Error("expected a non-empty task id in the response")
	}
}

func TestCreateTaskRouteValidationMapsTo400(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/tasks", map[string]any{"task_type": "generic"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a validation_error, got %d", rec.Code)
	}
}

func TestGetTaskRouteNotFoundMapsTo404(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodGet, "/tasks/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a not_found error, got %d", rec.Code)
	}
}

func TestGetTaskRouteRoundTrips(t *testing.T) {
	s := newTestServer()
	createRec := doRequest(s, http.MethodPost, "/tasks", map[string]any{"title": "x", "task_type": "generic"})
	var created map[string]string
	_ = json.Unmarshal(createRec.Body.Bytes(), &created)

	rec := doRequest(s, http.MethodGet, "/tasks/"+created["id"], nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateTaskStatusRouteIllegalTransitionMapsTo409(t *testing.T) {
	s := newTestServer()
	createRec := doRequest(s, http.MethodPost, "/tasks", map[string]any{"title": "x", "task_type": "generic"})
	var created map[string]string
	_ = json.Unmarshal(createRec.Body.Bytes(), &created)

	rec := doRequest(s, http.MethodPost, "/tasks/"+created["id"]+"/status", map[string]any{"new_status": "completed"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a state_error, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterWorkerAndClaimRoutes(t *testing.T) {
	s := newTestServer()
	doRequest(s, http.MethodPost, "/tasks", map[string]any{"title": "x", "task_type": "generic"})

	rec := doRequest(s, http.MethodPost, "/workers", map[string]any{"id": "w1", "role": "coder"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering a worker, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodPost, "/workers/w1/claim", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 claiming a task, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateRunStatusRoute(t *testing.T) {
	s := newTestServer()
	doRequest(s, http.MethodPost, "/tasks", map[string]any{"title": "x", "task_type": "generic"})
	doRequest(s, http.MethodPost, "/workers", map[string]any{"id": "w1", "role": "coder"})
	claimRec := doRequest(s, http.MethodPost, "/workers/w1/claim", nil)
	if claimRec.Code != http.StatusOK {
		t.Fatalf("expected 200 claiming a task, got %d: %s", claimRec.Code, claimRec.Body.String())
	}
	var claimed struct {
		Run struct {
			ID string `json:"ID"`
		} `json:"Run"`
	}
	_ = json.Unmarshal(claimRec.Body.Bytes(), &claimed)
	if claimed.Run.ID == "" {
		t.Fatalf("expected a run id in the claim response, got %s", claimRec.Body.String())
	}

	rec := doRequest(s, http.MethodPost, "/runs/"+claimed.Run.ID+"/status", map[string]any{"new_status": "running"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 moving the run to running, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(s, http.MethodPost, "/runs/"+claimed.Run.ID+"/status", map[string]any{"new_status": "success"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteUnknownWorkerMapsTo404(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodDelete, "/workers/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 unregistering an unknown worker, got %d", rec.Code)
	}
}

func TestStatusForMapsEveryKind(t *testing.T) {
	cases := map[orcherrors.Kind]int{
		orcherrors.NotFound:        http.StatusNotFound,
		orcherrors.Conflict:        http.StatusConflict,
		orcherrors.StateError:      http.StatusConflict,
		orcherrors.ValidationError: http.StatusBadRequest,
		orcherrors.Timeout:         http.StatusGatewayTimeout,
		orcherrors.AgentError:      http.StatusBadGateway,
		orcherrors.ConfigurationErr: http.StatusUnprocessableEntity,
		orcherrors.InternalError:   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		got := statusFor(orcherrors.New(kind, "boom"))
		if got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
