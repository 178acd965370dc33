package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"SceneCast/config"
	"SceneCast/core/auth"
	"SceneCast/logger"
	"SceneCast/model"
	"SceneCast/repository"

	"github.com/gorilla/mux"
)

// APIHandler 聚合演示文稿管理相关的 HTTP 处理器
type APIHandler struct {
	repo repository.PresentationRepository
	cfg  *config.Config
}

// NewAPIHandler 创建 API 处理器
func NewAPIHandler(repo repository.PresentationRepository, cfg *config.Config) *APIHandler {
	return &APIHandler{repo: repo, cfg: cfg}
}

// PresentationSummary 列表项，不暴露口令哈希
type PresentationSummary struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	ShareSlug string `json:"shareSlug"`
	Segments  int    `json:"segments"`
	Protected bool   `json:"protected"`
}

// ListPresentationsHandler 列出演示文稿
func (h *APIHandler) ListPresentationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		logger.Error("查询演示文稿列表失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summaries := make([]PresentationSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, PresentationSummary{
			ID:        rec.ID,
			Title:     rec.Title,
			ShareSlug: rec.ShareSlug,
			Segments:  len(rec.Segments),
			Protected: rec.HasPasscode(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// CreatePresentationRequest 创建演示文稿请求
type CreatePresentationRequest struct {
	Title          string          `json:"title"`
	ShareSlug      string          `json:"shareSlug"`
	SingleMediaURL string          `json:"singleMediaUrl,omitempty"`
	Passcode       string          `json:"passcode,omitempty"`
	Segments       []model.Segment `json:"segments"`
}

// CreatePresentationHandler 创建演示文稿
func (h *APIHandler) CreatePresentationHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePresentationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.ShareSlug == "" {
		http.Error(w, "Title and shareSlug are required", http.StatusBadRequest)
		return
	}

	rec := &model.PresentationRecord{
		Title:          req.Title,
		ShareSlug:      req.ShareSlug,
		SingleMediaURL: req.SingleMediaURL,
		Segments:       model.SegmentList(req.Segments),
	}

	// 空演示文稿拒绝入库
	if err := rec.ToPresentation().Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Passcode != "" {
		hash, err := auth.HashPasscode(req.Passcode)
		if err != nil {
			logger.Error("口令处理失败", logger.ErrorField(err))
			http.Error(w, "Failed to process passcode", http.StatusInternalServerError)
			return
		}
		rec.PasscodeHash = hash
	}

	if err := h.repo.Create(r.Context(), rec); err != nil {
		logger.Error("创建演示文稿失败", logger.ErrorField(err))
		http.Error(w, "Failed to create presentation", http.StatusInternalServerError)
		return
	}

	logger.Info("演示文稿已创建",
		logger.Int64("id", rec.ID),
		logger.String("slug", rec.ShareSlug))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(PresentationSummary{
		ID:        rec.ID,
		Title:     rec.Title,
		ShareSlug: rec.ShareSlug,
		Segments:  len(rec.Segments),
		Protected: rec.HasPasscode(),
	})
}

// GetPresentationHandler 按分享标识取演示文稿详情（不含口令哈希）
func (h *APIHandler) GetPresentationHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slug := vars["slug"]

	rec, err := h.repo.GetByShareSlug(r.Context(), slug)
	if err != nil {
		logger.Error("查询演示文稿失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "Presentation not found", http.StatusNotFound)
		return
	}

	response := struct {
		ID             int64           `json:"id"`
		Title          string          `json:"title"`
		ShareSlug      string          `json:"shareSlug"`
		SingleMediaURL string          `json:"singleMediaUrl,omitempty"`
		Segments       []model.Segment `json:"segments"`
		Protected      bool            `json:"protected"`
	}{
		ID:             rec.ID,
		Title:          rec.Title,
		ShareSlug:      rec.ShareSlug,
		SingleMediaURL: rec.SingleMediaURL,
		Segments:       rec.Segments,
		Protected:      rec.HasPasscode(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// DeletePresentationHandler 删除演示文稿
func (h *APIHandler) DeletePresentationHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid presentation id", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		logger.Error("删除演示文稿失败", logger.ErrorField(err))
		http.Error(w, "Failed to delete presentation", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "deleted"})
}
