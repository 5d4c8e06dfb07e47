// cmd/workflow-manager/api.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"license-workflow/internal/workflow"
)

// transitioner is the slice of the orchestrator the HTTP surface needs.
type transitioner interface {
	TransitionWithRetry(ctx context.Context, in *workflow.TransitionInput) (*workflow.TransitionOutput, error)
}

type transitionRequest struct {
	ApplicationID string `json:"applicationId"`
	To            string `json:"to"`
	ActorID       string `json:"actorId"`
	ActorRole     string `json:"actorRole"`
	Remarks       string `json:"remarks,omitempty"`
}

// transitionHandler drives a status transition through the orchestrator.
func transitionHandler(orch transitioner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		role, err := workflow.ParseRole(req.ActorRole)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		out, err := orch.TransitionWithRetry(r.Context(), &workflow.TransitionInput{
			ApplicationID: req.ApplicationID,
			To:            workflow.Status(req.To),
			ActorID:       req.ActorID,
			ActorRole:     role,
			Remarks:       req.Remarks,
		})
		if err != nil {
			writeTransitionError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrApplicationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workflow.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, workflow.ErrInvalidOfficer):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
