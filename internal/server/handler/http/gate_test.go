package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/service"
	"github.com/go-chi/chi/v5"
)

// fakeGateService implements GateService for testing.
type fakeGateService struct {
	view      gate.View
	saveErr   error
	authErr   error
	verify    service.VerifyResult
	verifyErr error
	invokeErr error
	resume    gate.Result
	resumeErr error

	invokedAction models.Action
	override      models.Action
}

func (f *fakeGateService) View() gate.View { return f.view }

func (f *fakeGateService) SaveCode(context.Context, string) (gate.View, error) {
	return f.view, f.saveErr
}

func (f *fakeGateService) Authenticate(context.Context) (gate.View, error) {
	return f.view, f.authErr
}

func (f *fakeGateService) Verify(context.Context, string) (service.VerifyResult, error) {
	return f.verify, f.verifyErr
}

func (f *fakeGateService) Invoke(_ context.Context, action models.Action, file models.FileRef, returnTo models.ReturnTo) (gate.Result, error) {
	f.invokedAction = action
	if f.invokeErr != nil {
		return gate.Result{}, f.invokeErr
	}
	p := models.PendingAction{ID: "p1", Action: action, File: file, ReturnTo: returnTo}
	return gate.Result{Redirect: true, Pending: &p}, nil
}

func (f *fakeGateService) Resume(_ context.Context, _ models.ReturnTo, override models.Action) (gate.Result, error) {
	f.override = override
	return f.resume, f.resumeErr
}

func TestGateHandler_Verify(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		service        *fakeGateService
		expectedCode   int
		expectedSubstr string
	}{
		{
			name:           "invalid JSON",
			body:           `{`,
			service:        &fakeGateService{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request",
		},
		{
			name:           "mismatch",
			body:           `{"code":"nope"}`,
			service:        &fakeGateService{verifyErr: gate.ErrCodeMismatch, verify: service.VerifyResult{View: gate.View{Phase: gate.PhaseVerify, Message: "The entered code does not match."}}},
			expectedCode:   http.StatusUnauthorized,
			expectedSubstr: "does not match",
		},
		{
			name:           "rate limited",
			body:           `{"code":"nope"}`,
			service:        &fakeGateService{verifyErr: gate.ErrRateLimited},
			expectedCode:   http.StatusTooManyRequests,
			expectedSubstr: "too many",
		},
		{
			name:           "wrong phase",
			body:           `{"code":"alpha"}`,
			service:        &fakeGateService{verifyErr: gate.ErrWrongPhase},
			expectedCode:   http.StatusConflict,
			expectedSubstr: "not allowed",
		},
		{
			name:           "no code stored",
			body:           `{"code":"alpha"}`,
			service:        &fakeGateService{verifyErr: gate.ErrNoCode},
			expectedCode:   http.StatusNotFound,
			expectedSubstr: "no security code",
		},
		{
			name: "verified with pending",
			body: `{"code":"alpha"}`,
			service: &fakeGateService{verify: service.VerifyResult{
				View:    gate.View{Phase: gate.PhaseEdit},
				Pending: &models.PendingAction{ID: "p1", Verified: true, Action: models.ActionDelete},
			}},
			expectedCode:   http.StatusOK,
			expectedSubstr: `"verified":true`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/gate/verify", bytes.NewBufferString(tt.body))
			(&GateHandler{GateService: tt.service}).Verify(rec, req)
			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, res.StatusCode)
			}
			buf := new(bytes.Buffer)
			if _, err := buf.ReadFrom(res.Body); err != nil {
				t.Fatalf("failed to read body: %v", err)
			}
			if !bytes.Contains(buf.Bytes(), []byte(tt.expectedSubstr)) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedSubstr, buf.String())
			}
		})
	}
}

func TestGateHandler_SaveCodeAndAuthenticate(t *testing.T) {
	svc := &fakeGateService{saveErr: gate.ErrInvalidCode}
	h := &GateHandler{GateService: svc}

	rec := httptest.NewRecorder()
	h.SaveCode(rec, httptest.NewRequest("POST", "/api/gate/code", bytes.NewBufferString(`{"code":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("SaveCode: expected 400, got %d", rec.Code)
	}

	svc.authErr = gate.ErrBiometricFailed
	rec = httptest.NewRecorder()
	h.Authenticate(rec, httptest.NewRequest("POST", "/api/gate/authenticate", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Authenticate: expected 401, got %d", rec.Code)
	}
}

// serveInvoke routes through chi so the {action} param is populated.
func serveInvoke(h *GateHandler, action, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/api/files/{action}", h.Invoke)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/files/"+action, bytes.NewBufferString(body)))
	return rec
}

func TestGateHandler_Invoke(t *testing.T) {
	svc := &fakeGateService{}
	h := &GateHandler{GateService: svc}

	rec := serveInvoke(h, "delete", `{"file":{"uri":"/data/a.txt","name":"a.txt"},"return_to":{"endpoint":"preview"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if svc.invokedAction != models.ActionDelete {
		t.Errorf("expected delete to be recorded, got %q", svc.invokedAction)
	}
	var res gate.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if !res.Redirect || res.Pending == nil || res.Pending.ReturnTo.Endpoint != "preview" {
		t.Errorf("unexpected result %+v", res)
	}

	rec = serveInvoke(h, "delete", `{"file":{"name":"a.txt"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing uri: expected 400, got %d", rec.Code)
	}

	svc.invokeErr = gate.ErrUnknownAction
	rec = serveInvoke(h, "print", `{"file":{"uri":"/data/a.txt"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action: expected 400, got %d", rec.Code)
	}
}

func TestGateHandler_Resume(t *testing.T) {
	svc := &fakeGateService{}
	h := &GateHandler{GateService: svc}
	body := `{"return_to":{"endpoint":"preview"},"action":"save"}`

	rec := httptest.NewRecorder()
	h.Resume(rec, httptest.NewRequest("POST", "/api/files/resume", bytes.NewBufferString(body)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified: expected 403, got %d", rec.Code)
	}
	if svc.override != models.ActionSave {
		t.Errorf("expected override save, got %q", svc.override)
	}

	svc.resume = gate.Result{Executed: true}
	rec = httptest.NewRecorder()
	h.Resume(rec, httptest.NewRequest("POST", "/api/files/resume", bytes.NewBufferString(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("verified: expected 200, got %d", rec.Code)
	}
}
