package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"wa-bridge/internal/repo"
)

// registerAdminRoutes mounts the operator-facing CRUD surface for businesses,
// channel configs, tones and conversation browsing.
func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/businesses", s.handleCreateBusiness)
	mux.HandleFunc("GET /api/businesses", s.handleListBusinesses)
	mux.HandleFunc("GET /api/businesses/{id}", s.handleGetBusiness)
	mux.HandleFunc("PUT /api/businesses/{id}", s.handleUpdateBusiness)
	mux.HandleFunc("DELETE /api/businesses/{id}", s.handleDeleteBusiness)

	mux.HandleFunc("POST /api/businesses/{id}/whatsapp-config", s.handleCreateChannelConfig)
	mux.HandleFunc("GET /api/businesses/{id}/whatsapp-config", s.handleGetChannelConfig)
	mux.HandleFunc("PUT /api/businesses/{id}/whatsapp-config", s.handleUpdateChannelConfig)
	mux.HandleFunc("DELETE /api/businesses/{id}/whatsapp-config", s.handleDeleteChannelConfig)

	mux.HandleFunc("POST /api/businesses/{id}/tones", s.handleCreateTone)
	mux.HandleFunc("GET /api/businesses/{id}/tones", s.handleListTones)
	mux.HandleFunc("PUT /api/businesses/{id}/tones/{toneID}", s.handleUpdateTone)
	mux.HandleFunc("DELETE /api/businesses/{id}/tones/{toneID}", s.handleDeleteTone)

	mux.HandleFunc("GET /api/businesses/{id}/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleListConversationMessages)
}

type businessRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
}

type channelConfigRequest struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
	VerifyToken   string `json:"verify_token"`
	Status        string `json:"status"`
}

type toneRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Instructions string  `json:"tone_instructions"`
	IsDefault    bool    `json:"is_default"`
}

func (s *Server) handleCreateBusiness(w http.ResponseWriter, r *http.Request) {
	if s.deps.Repository == nil {
		writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	var req businessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	business, err := s.deps.Repository.CreateBusiness(r.Context(), req.Name, req.Description)
	if err != nil {
		s.adminError(w, "create business", err)
		return
	}
	writeJSON(w, http.StatusCreated, business)
}

func (s *Server) handleListBusinesses(w http.ResponseWriter, r *http.Request) {
	businesses, err := s.deps.Repository.ListBusinesses(r.Context())
	if err != nil {
		s.adminError(w, "list businesses", err)
		return
	}
	writeJSON(w, http.StatusOK, businesses)
}

func (s *Server) handleGetBusiness(w http.ResponseWriter, r *http.Request) {
	business, err := s.deps.Repository.GetBusiness(r.Context(), r.PathValue("id"))
	if err != nil {
		s.adminError(w, "get business", err)
		return
	}
	writeJSON(w, http.StatusOK, business)
}

func (s *Server) handleUpdateBusiness(w http.ResponseWriter, r *http.Request) {
	var req businessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Status == "" {
		req.Status = "active"
	}
	business, err := s.deps.Repository.UpdateBusiness(r.Context(), r.PathValue("id"), req.Name, req.Description, req.Status)
	if err != nil {
		s.adminError(w, "update business", err)
		return
	}
	writeJSON(w, http.StatusOK, business)
}

func (s *Server) handleDeleteBusiness(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Repository.DeleteBusiness(r.Context(), r.PathValue("id")); err != nil {
		s.adminError(w, "delete business", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateChannelConfig(w http.ResponseWriter, r *http.Request) {
	var req channelConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumberID == "" || req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "phone_number_id and access_token are required")
		return
	}
	cfg, err := s.deps.Repository.CreateChannelConfig(r.Context(), repo.ChannelConfig{
		BusinessID:    r.PathValue("id"),
		PhoneNumberID: req.PhoneNumberID,
		AccessToken:   req.AccessToken,
		VerifyToken:   req.VerifyToken,
	})
	if err != nil {
		s.adminError(w, "create channel config", err)
		return
	}
	s.invalidateChannel(r, cfg.PhoneNumberID)
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleGetChannelConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Repository.GetChannelConfigByBusinessID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.adminError(w, "get channel config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateChannelConfig(w http.ResponseWriter, r *http.Request) {
	existing, err := s.deps.Repository.GetChannelConfigByBusinessID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.adminError(w, "get channel config", err)
		return
	}
	var req channelConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumberID == "" || req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "phone_number_id and access_token are required")
		return
	}
	if req.Status == "" {
		req.Status = existing.Status
	}
	cfg, err := s.deps.Repository.UpdateChannelConfig(r.Context(), repo.ChannelConfig{
		ID:            existing.ID,
		PhoneNumberID: req.PhoneNumberID,
		AccessToken:   req.AccessToken,
		VerifyToken:   req.VerifyToken,
		Status:        req.Status,
	})
	if err != nil {
		s.adminError(w, "update channel config", err)
		return
	}
	// Rotated credentials must take effect immediately.
	s.invalidateChannel(r, existing.PhoneNumberID)
	s.invalidateChannel(r, cfg.PhoneNumberID)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteChannelConfig(w http.ResponseWriter, r *http.Request) {
	existing, err := s.deps.Repository.GetChannelConfigByBusinessID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.adminError(w, "get channel config", err)
		return
	}
	if err := s.deps.Repository.DeleteChannelConfig(r.Context(), existing.ID); err != nil {
		s.adminError(w, "delete channel config", err)
		return
	}
	s.invalidateChannel(r, existing.PhoneNumberID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateTone(w http.ResponseWriter, r *http.Request) {
	var req toneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Instructions == "" {
		writeError(w, http.StatusBadRequest, "name and tone_instructions are required")
		return
	}
	tone, err := s.deps.Repository.CreateTone(r.Context(), repo.Tone{
		BusinessID:   r.PathValue("id"),
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		s.adminError(w, "create tone", err)
		return
	}
	writeJSON(w, http.StatusCreated, tone)
}

func (s *Server) handleListTones(w http.ResponseWriter, r *http.Request) {
	tones, err := s.deps.Repository.ListTones(r.Context(), r.PathValue("id"))
	if err != nil {
		s.adminError(w, "list tones", err)
		return
	}
	writeJSON(w, http.StatusOK, tones)
}

func (s *Server) handleUpdateTone(w http.ResponseWriter, r *http.Request) {
	var req toneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Instructions == "" {
		writeError(w, http.StatusBadRequest, "name and tone_instructions are required")
		return
	}
	tone, err := s.deps.Repository.UpdateTone(r.Context(), repo.Tone{
		ID:           r.PathValue("toneID"),
		BusinessID:   r.PathValue("id"),
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		s.adminError(w, "update tone", err)
		return
	}
	writeJSON(w, http.StatusOK, tone)
}

func (s *Server) handleDeleteTone(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Repository.DeleteTone(r.Context(), r.PathValue("toneID")); err != nil {
		s.adminError(w, "delete tone", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.deps.Repository.ListConversations(r.Context(), r.PathValue("id"))
	if err != nil {
		s.adminError(w, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleListConversationMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	messages, err := s.deps.Repository.ListConversationMessages(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		s.adminError(w, "list conversation messages", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) invalidateChannel(r *http.Request, phoneNumberID string) {
	if s.deps.Directory != nil {
		s.deps.Directory.InvalidateChannel(r.Context(), phoneNumberID)
	}
}

func (s *Server) adminError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error("admin request failed", "action", action, "error", err)
	if s.metrics != nil {
		s.metrics.Errors.WithLabelValues("admin").Inc()
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return def
	}
	return val
}
