package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/smallnest/roadclaw/mutate"
	"github.com/smallnest/roadclaw/roadmap"
	"github.com/smallnest/roadclaw/store"
)

// mutationRequest is the wire form of one mutation submission. Kind selects
// the mutation; the remaining fields are read as that kind needs them.
type mutationRequest struct {
	Kind string `json:"kind"`
	Path string `json:"path,omitempty"`

	TaskID         int       `json:"task_id,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Priority       string    `json:"priority,omitempty"`
	Phase          string    `json:"phase,omitempty"`
	Tags           *[]string `json:"tags,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	Dependencies   []int     `json:"dependencies,omitempty"`
	DependsOn      int       `json:"depends_on,omitempty"`
	EstimatedHours *float64  `json:"estimated_hours,omitempty"`
	ActualHours    *float64  `json:"actual_hours,omitempty"`
	Reopen         bool      `json:"reopen,omitempty"`
	Emoji          string    `json:"emoji,omitempty"`
	Name           string    `json:"name,omitempty"`
}

// toMutation maps the wire request onto a concrete mutation.
func (req *mutationRequest) toMutation() (mutate.Mutation, error) {
	switch req.Kind {
	case "add_task":
		description := ""
		if req.Description != nil {
			description = *req.Description
		}
		var tags []string
		if req.Tags != nil {
			tags = *req.Tags
		}
		notes := ""
		if req.Notes != nil {
			notes = *req.Notes
		}
		return &mutate.AddTask{
			Description:    description,
			Priority:       roadmap.Priority(req.Priority),
			Phase:          req.Phase,
			Tags:           tags,
			Notes:          notes,
			Dependencies:   req.Dependencies,
			EstimatedHours: req.EstimatedHours,
		}, nil
	case "complete_task":
		return &mutate.CompleteTask{ID: req.TaskID}, nil
	case "edit_task":
		return &mutate.EditTask{
			ID:             req.TaskID,
			Description:    req.Description,
			Notes:          req.Notes,
			Tags:           req.Tags,
			EstimatedHours: req.EstimatedHours,
			ActualHours:    req.ActualHours,
			Reopen:         req.Reopen,
		}, nil
	case "set_phase":
		return &mutate.SetPhase{ID: req.TaskID, Phase: req.Phase}, nil
	case "set_priority":
		return &mutate.SetPriority{ID: req.TaskID, Priority: roadmap.Priority(req.Priority)}, nil
	case "add_dependency":
		return &mutate.AddDependency{ID: req.TaskID, DependsOn: req.DependsOn}, nil
	case "remove_dependency":
		return &mutate.RemoveDependency{ID: req.TaskID, DependsOn: req.DependsOn}, nil
	case "remove_task":
		return &mutate.RemoveTask{ID: req.TaskID}, nil
	case "start_session":
		description := ""
		if req.Description != nil {
			description = *req.Description
		}
		return &mutate.StartSession{ID: req.TaskID, Description: description}, nil
	case "stop_session":
		return &mutate.StopSession{ID: req.TaskID}, nil
	case "add_phase":
		description := ""
		if req.Description != nil {
			description = *req.Description
		}
		return &mutate.AddPhase{Name: req.Name, Description: description, Emoji: req.Emoji}, nil
	}
	return nil, errors.New("unknown mutation kind: " + req.Kind)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleRoadmap serves the full current document for a project path.
func (s *Server) handleRoadmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, ok := s.projectPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	roadmapDoc, err := s.gateway.GetRoadmap(path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roadmapDoc)
}

// handleDeps serves the dependency view: the whole-roadmap ready/blocked
// partition, plus the tree, ancestors and impact of an optional ?task=.
func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, ok := s.projectPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	taskID := 0
	if raw := r.URL.Query().Get("task"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
			return
		}
		taskID = id
	}

	view, err := s.gateway.GetDependencyView(path, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleMutations applies one mutation and returns the resulting document.
func (s *Server) handleMutations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	path, ok := s.projectPath(w, req.Path)
	if !ok {
		return
	}

	m, err := req.toMutation()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := s.gateway.Apply(r.Context(), path, m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleJournal serves recent journal entries for a project.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	journal := s.gateway.Journal()
	if journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "journal disabled"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := journal.Recent(r.URL.Query().Get("path"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*store.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// projectPath resolves the effective project path for a request, falling
// back to the configured default.
func (s *Server) projectPath(w http.ResponseWriter, requested string) (string, bool) {
	if requested != "" {
		return requested, true
	}
	if s.cfg.Project.Path != "" {
		return s.cfg.Project.Path, true
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project path not specified"})
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes: missing things are
// 404, invariant violations are 409, everything else is 400.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest

	var (
		notFound     *store.NotFoundError
		corrupt      *store.CorruptStateError
		unknownTask  *roadmap.UnknownTaskError
		unknownPhase *roadmap.UnknownPhaseError
		cyclic       *roadmap.CyclicDependencyError
		selfDep      *roadmap.SelfDependencyError
		dependents   *roadmap.HasDependentsError
		blocked      *roadmap.BlockedError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &unknownTask), errors.As(err, &unknownPhase):
		status = http.StatusNotFound
	case errors.As(err, &corrupt):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &cyclic), errors.As(err, &selfDep),
		errors.As(err, &dependents), errors.As(err, &blocked):
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
