package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saira-network/saira/internal/domain"
)

// ─── Models ─────────────────────────────────────────────────────────────────

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.engine.Models()})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	info, err := s.engine.Slot(kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type loadRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	var req loadRequest
	if !decode(w, r, &req) {
		return
	}
	info, err := s.engine.LoadModel(r.Context(), kind, req.Path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	info, err := s.engine.UnloadModel(r.Context(), kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func kindParam(w http.ResponseWriter, r *http.Request) (domain.ModelKind, bool) {
	kind, err := domain.ParseModelKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeDomainError(w, err)
		return 0, false
	}
	return kind, true
}

// ─── Inference ──────────────────────────────────────────────────────────────

type generateRequest struct {
	Prompt string `json:"prompt"`
	domain.GenerateOptions
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := s.engine.LLMGenerate(r.Context(), req.Prompt, req.GenerateOptions)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type embeddingRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if !decode(w, r, &req) {
		return
	}
	vec, err := s.engine.CreateEmbedding(r.Context(), req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"embedding": vec,
		"dimension": len(vec),
	})
}

// transcribeRequest carries audio as base64 in JSON.
type transcribeRequest struct {
	Audio []byte `json:"audio"`
	domain.TranscribeOptions
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := s.engine.ASRTranscribe(r.Context(), req.Audio, req.TranscribeOptions)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// ─── Audio ──────────────────────────────────────────────────────────────────

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeDomainError(w, domain.ErrAudioClosed)
		return
	}
	devices, err := s.bridge.Devices(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var inputs, outputs []domain.DeviceInfo
	for _, d := range devices {
		if d.Type == domain.DeviceInput {
			inputs = append(inputs, d)
		} else {
			outputs = append(outputs, d)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inputs":  nonNil(inputs),
		"outputs": nonNil(outputs),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeDomainError(w, domain.ErrAudioClosed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.bridge.Sessions()})
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeDomainError(w, domain.ErrAudioClosed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stopped": s.bridge.StopAllCaptures()})
}

type playRequest struct {
	Samples []int16 `json:"samples"`
	domain.PlaybackOptions
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeDomainError(w, domain.ErrAudioClosed)
		return
	}
	var req playRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.bridge.PlayAudio(req.Samples, req.PlaybackOptions); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"playing": true, "samples": len(req.Samples)})
}

// ─── Diagnostics ────────────────────────────────────────────────────────────

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"spans": nonNil(s.tracer.Spans(queryLimit(r, 100)))})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "operation journal is disabled")
		return
	}
	ops, err := s.history.RecentOperations(queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": nonNil(ops)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
