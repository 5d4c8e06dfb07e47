// cmd/workflow-manager/api_test.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-workflow/internal/models"
	"license-workflow/internal/workflow"
)

// ========================== Mock Implementations ==========================

type fakeTransitioner struct {
	in  *workflow.TransitionInput
	out *workflow.TransitionOutput
	err error
}

func (f *fakeTransitioner) TransitionWithRetry(ctx context.Context, in *workflow.TransitionInput) (*workflow.TransitionOutput, error) {
	f.in = in
	return f.out, f.err
}

// ========================== Handler Tests ==========================

func TestTransitionHandler_Success(t *testing.T) {
	fake := &fakeTransitioner{
		out: &workflow.TransitionOutput{
			Application: &models.Application{ID: "app-1", Status: "under_review_by_je"},
		},
	}

	body := `{"applicationId":"app-1","to":"under_review_by_je","actorId":"clerk-1","actorRole":"clerk"}`
	req := httptest.NewRequest(http.MethodPost, "/api/transitions", strings.NewReader(body))
	w := httptest.NewRecorder()

	transitionHandler(fake)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, fake.in)
	assert.Equal(t, "app-1", fake.in.ApplicationID)
	assert.Equal(t, workflow.Status("under_review_by_je"), fake.in.To)
	assert.Equal(t, workflow.RoleClerk, fake.in.ActorRole)

	var resp workflow.TransitionOutput
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Application)
	assert.Equal(t, "under_review_by_je", resp.Application.Status)
}

func TestTransitionHandler_RejectsNonPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/transitions", nil)
	w := httptest.NewRecorder()

	transitionHandler(&fakeTransitioner{})(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestTransitionHandler_RejectsBadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/transitions", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	transitionHandler(&fakeTransitioner{})(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionHandler_RejectsUnknownRole(t *testing.T) {
	body := `{"applicationId":"app-1","to":"under_review_by_je","actorId":"x","actorRole":"intern"}`
	req := httptest.NewRequest(http.MethodPost, "/api/transitions", strings.NewReader(body))
	w := httptest.NewRecorder()

	transitionHandler(&fakeTransitioner{})(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", workflow.ErrApplicationNotFound, http.StatusNotFound},
		{"invalid transition", fmt.Errorf("%w: submitted to completed", workflow.ErrInvalidTransition), http.StatusUnprocessableEntity},
		{"wrong actor", workflow.ErrInvalidOfficer, http.StatusForbidden},
		{"internal", fmt.Errorf("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"applicationId":"app-1","to":"completed","actorId":"ce-1","actorRole":"chief_engineer"}`
			req := httptest.NewRequest(http.MethodPost, "/api/transitions", strings.NewReader(body))
			w := httptest.NewRecorder()

			transitionHandler(&fakeTransitioner{err: tt.err})(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}
