package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/observability"
	"github.com/mateo/pagesmith/internal/pipeline"
	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

type createJobRequest struct {
	ClientID string            `json:"client_id"`
	PageType string            `json:"page_type" validate:"required"`
	Inputs   map[string]string `json:"inputs" validate:"required"`
}

type jobResponse struct {
	ID              string `json:"id"`
	CurrentStep     string `json:"current_step"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	TokensUsed      int    `json:"tokens_used"`
	Error           string `json:"error,omitempty"`
	DocumentID      string `json:"document_id,omitempty"`
	Slug            string `json:"slug,omitempty"`
}

func (s *Server) toJobResponse(j *types.Job) jobResponse {
	resp := jobResponse{
		ID:              j.ID.String(),
		CurrentStep:     j.CurrentStep,
		Status:          j.Status,
		ProgressPercent: j.ProgressPercent(),
		TokensUsed:      j.TokensUsed,
		Error:           j.Error,
	}
	if raw, ok := j.StepOutputs[types.StepAssembly]; ok {
		if out, err := types.DecodeStepOutput(types.StepAssembly, raw); err == nil {
			assembly := out.(*types.AssemblyOutput)
			resp.DocumentID = assembly.DocumentID.String()
			resp.Slug = assembly.Slug
		}
	}
	return resp
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, &ErrValidation{Field: "body", Message: "invalid JSON"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, &ErrValidation{Field: "request", Message: err.Error()})
		return
	}
	if req.Inputs[pipeline.InputBusinessName] == "" {
		s.errorResponse(w, &ErrValidation{Field: "inputs.business_name", Message: "business_name is required"})
		return
	}

	j, err := s.jobs.Create(r.Context(), req.ClientID, req.PageType, req.Inputs)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	observability.JobsStarted.Inc()
	s.jsonResponse(w, http.StatusCreated, s.toJobResponse(j))
}

// handleRunJob drives the job from its current step to completion,
// synchronously. A re-run after a failure re-enters the sequence at the last
// committed step.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &ErrValidation{Field: "id", Message: "invalid job ID"})
		return
	}

	j, err := s.runner.Run(r.Context(), id)
	if err != nil {
		if j != nil {
			// The failure is recorded on the job; report the snapshot.
			s.jsonResponse(w, http.StatusOK, s.toJobResponse(j))
			return
		}
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.toJobResponse(j))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &ErrValidation{Field: "id", Message: "invalid job ID"})
		return
	}
	j, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.toJobResponse(j))
}

type documentResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Status    string `json:"status"`
	HTML      string `json:"html"`
	Views     int    `json:"views"`
	Leads     int    `json:"leads"`
	UpdatedAt string `json:"updated_at"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, _, err := s.loadDocument(r, r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, documentResponse{
		ID:        doc.ID.String(),
		Name:      doc.Name,
		Slug:      doc.Slug,
		Status:    doc.Status,
		HTML:      doc.HTML,
		Views:     doc.Views,
		Leads:     doc.Leads,
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
	})
}

type applyChangeRequest struct {
	Instruction string `json:"instruction" validate:"required"`
}

type applyChangeResponse struct {
	Success     bool   `json:"success"`
	Summary     string `json:"summary"`
	ChangeCount int    `json:"change_count"`
	Tier        int    `json:"tier,omitempty"`
}

// handleApplyChange runs the patch engine against the stored document and
// commits the result under the version read before patching. A concurrent
// edit surfaces as 409; the caller re-reads and retries.
func (s *Server) handleApplyChange(w http.ResponseWriter, r *http.Request) {
	var req applyChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, &ErrValidation{Field: "body", Message: "invalid JSON"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, &ErrValidation{Field: "instruction", Message: "instruction is required"})
		return
	}

	doc, version, err := s.loadDocument(r, r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	result, err := s.patcher.ApplyChange(r.Context(), doc.HTML, req.Instruction)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	observability.TokensUsed.Add(float64(result.Usage.TotalTokens))

	if !result.Applied {
		s.jsonResponse(w, http.StatusOK, applyChangeResponse{
			Success: false,
			Summary: result.Description,
			Tier:    result.Tier,
		})
		return
	}

	doc.HTML = result.Document
	doc.UpdatedAt = time.Now().UTC()
	if _, err := s.store.Put(r.Context(), store.CollectionDocuments, doc.ID.String(), doc, &store.Precondition{Version: version}); err != nil {
		if store.IsConflict(err) {
			observability.StoreConflicts.Inc()
		}
		s.errorResponse(w, err)
		return
	}

	observability.PatchApplications.WithLabelValues(tierLabel(result.Tier)).Inc()
	s.logger.Info("change applied",
		zap.String("document_id", doc.ID.String()),
		zap.Int("tier", result.Tier),
		zap.Int("changes", result.Changes))
	s.jsonResponse(w, http.StatusOK, applyChangeResponse{
		Success:     true,
		Summary:     result.Description,
		ChangeCount: result.Changes,
		Tier:        result.Tier,
	})
}

func (s *Server) handleRenderPage(w http.ResponseWriter, r *http.Request) {
	rendered, err := s.pages.Render(r.Context(), r.PathValue("slug"))
	if err != nil {
		if HTTPStatus(err) == http.StatusNotFound {
			http.NotFound(w, r)
			return
		}
		s.errorResponse(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered.HTML)); err != nil {
		s.logger.Error("failed to write page", zap.Error(err))
	}
}

func (s *Server) handleRecordLead(w http.ResponseWriter, r *http.Request) {
	var meta map[string]string
	if r.Body != nil {
		// Lead metadata is free-form; a bad body just means an empty lead.
		_ = json.NewDecoder(r.Body).Decode(&meta)
	}
	if err := s.pages.RecordLead(r.Context(), r.PathValue("slug"), meta); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]bool{"recorded": true})
}

func (s *Server) loadDocument(r *http.Request, idStr string) (*types.Document, string, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, "", &ErrValidation{Field: "id", Message: "invalid document ID"}
	}
	rec, err := s.store.Get(r.Context(), store.CollectionDocuments, id.String())
	if err != nil {
		return nil, "", err
	}
	var doc types.Document
	if err := store.Decode(rec, &doc); err != nil {
		return nil, "", err
	}
	return &doc, rec.Version, nil
}

func tierLabel(tier int) string {
	switch tier {
	case 1:
		return "heuristic"
	case 2:
		return "ai_patch"
	case 3:
		return "replacement"
	default:
		return "none"
	}
}
