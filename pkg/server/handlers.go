package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/soulnet-ai/soulnet-go/pkg/chat"
	"github.com/soulnet-ai/soulnet-go/pkg/memory"
	"github.com/soulnet-ai/soulnet-go/pkg/search"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Listing bounds for GET /api/memories.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// memoryDTO is the wire form of a memory. IDs are strings on the wire; the
// int64 snowflake values do not survive JSON number precision in browsers.
type memoryDTO struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Content    string                 `json:"content"`
	Importance int                    `json:"importance"`
	Sentiment  string                 `json:"sentiment"`
	Confidence float64                `json:"confidence"`
	Source     map[string]interface{} `json:"source,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`

	// Similarity is only present on search results.
	Similarity *float64 `json:"similarity,omitempty"`
}

func toMemoryDTO(m *storage.Memory) memoryDTO {
	return memoryDTO{
		ID:         strconv.FormatInt(m.ID, 10),
		Type:       string(m.Type),
		Content:    m.Content,
		Importance: m.Importance,
		Sentiment:  m.Sentiment,
		Confidence: m.Confidence,
		Source:     m.Source,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

type interactionDTO struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func errorResponse(message string) map[string]interface{} {
	return map[string]interface{}{"success": false, "error": message}
}

// handleListMemories serves GET /api/memories with pagination and an
// optional type filter.
func (s *Server) handleListMemories(c echo.Context) error {
	user := currentUser(c)

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	result, err := s.memories.List(c.Request().Context(), user.ID, &memory.ListRequest{
		Type:   storage.MemoryType(c.QueryParam("type")),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		if errors.Is(err, memory.ErrInvalidType) {
			return c.JSON(http.StatusBadRequest, errorResponse("Invalid memory type"))
		}
		s.logger.Error("failed to list memories", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to fetch memories"))
	}

	memories := make([]memoryDTO, 0, len(result.Memories))
	for _, m := range result.Memories {
		memories = append(memories, toMemoryDTO(m))
	}
	totalPages := (result.Total + limit - 1) / limit

	return c.JSON(http.StatusOK, map[string]interface{}{
		"memories":   memories,
		"total":      result.Total,
		"page":       page,
		"totalPages": totalPages,
	})
}

type createMemoryRequest struct {
	Type       string                 `json:"type"`
	Content    string                 `json:"content"`
	Importance *int                   `json:"importance"`
	Source     map[string]interface{} `json:"source"`
}

// handleCreateMemory serves POST /api/memories.
func (s *Server) handleCreateMemory(c echo.Context) error {
	user := currentUser(c)

	var req createMemoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}

	importance := 3
	if req.Importance != nil {
		importance = *req.Importance
	}

	result, err := s.memories.Create(c.Request().Context(), user.ID, &memory.CreateRequest{
		Type:       storage.MemoryType(req.Type),
		Content:    req.Content,
		Importance: importance,
		Source:     req.Source,
	})
	if err != nil {
		switch {
		case errors.Is(err, memory.ErrEmptyContent):
			return c.JSON(http.StatusBadRequest, errorResponse("Type and content are required"))
		case errors.Is(err, memory.ErrInvalidType):
			return c.JSON(http.StatusBadRequest, errorResponse("Invalid memory type"))
		case errors.Is(err, memory.ErrInvalidImportance):
			return c.JSON(http.StatusBadRequest, errorResponse("Importance must be between 1 and 5"))
		}
		s.logger.Error("failed to create memory", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to create memory"))
	}

	newAchievements := make([]string, 0, len(result.NewAchievements))
	for _, check := range result.NewAchievements {
		newAchievements = append(newAchievements, check.Type)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":              strconv.FormatInt(result.Memory.ID, 10),
		"success":         true,
		"newAchievements": newAchievements,
	})
}

type updateMemoryRequest struct {
	Type       *string                `json:"type"`
	Content    *string                `json:"content"`
	Importance *int                   `json:"importance"`
	Source     map[string]interface{} `json:"source"`
}

// handleUpdateMemory serves PUT /api/memories/:id as a partial update.
func (s *Server) handleUpdateMemory(c echo.Context) error {
	user := currentUser(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid memory ID"))
	}

	var req updateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}

	update := &memory.UpdateRequest{
		Content:    req.Content,
		Importance: req.Importance,
		Source:     req.Source,
	}
	if req.Type != nil {
		memType := storage.MemoryType(*req.Type)
		update.Type = &memType
	}

	updated, err := s.memories.Update(c.Request().Context(), user.ID, id, update)
	if err != nil {
		switch {
		case errors.Is(err, memory.ErrEmptyUpdate):
			return c.JSON(http.StatusBadRequest, errorResponse("No fields provided for update"))
		case errors.Is(err, memory.ErrInvalidType):
			return c.JSON(http.StatusBadRequest, errorResponse("Invalid memory type"))
		case errors.Is(err, memory.ErrEmptyContent):
			return c.JSON(http.StatusBadRequest, errorResponse("Content cannot be empty"))
		case errors.Is(err, memory.ErrInvalidImportance):
			return c.JSON(http.StatusBadRequest, errorResponse("Importance must be between 1 and 5"))
		case errors.Is(err, memory.ErrNotFound):
			return c.JSON(http.StatusNotFound, errorResponse("Memory not found"))
		}
		s.logger.Error("failed to update memory", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to update memory"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":      strconv.FormatInt(updated.ID, 10),
		"success": true,
	})
}

// handleDeleteMemory serves DELETE /api/memories/:id.
func (s *Server) handleDeleteMemory(c echo.Context) error {
	user := currentUser(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid memory ID"))
	}

	if err := s.memories.Delete(c.Request().Context(), user.ID, id); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse("Memory not found"))
		}
		s.logger.Error("failed to delete memory", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to delete memory"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// handleSearchMemories serves POST /api/memories/search.
func (s *Server) handleSearchMemories(c echo.Context) error {
	user := currentUser(c)

	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}

	results, err := s.searcher.Search(c.Request().Context(), user.ID, req.Query, req.K)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			return c.JSON(http.StatusBadRequest, errorResponse("Query is required"))
		}
		s.logger.Error("semantic search failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Semantic search failed"))
	}

	memories := make([]memoryDTO, 0, len(results))
	for _, r := range results {
		dto := toMemoryDTO(r.Memory)
		score := r.Score
		dto.Similarity = &score
		memories = append(memories, dto)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"memories": memories,
		"query":    req.Query,
		"total":    len(memories),
	})
}

type generateEmbeddingsRequest struct {
	IDs []string `json:"ids"`
}

// handleGenerateEmbeddings serves POST /api/memories/generate-embeddings.
func (s *Server) handleGenerateEmbeddings(c echo.Context) error {
	user := currentUser(c)

	var req generateEmbeddingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}

	ids := make([]int64, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse("Invalid memory ID: "+raw))
		}
		ids = append(ids, id)
	}

	result, err := s.memories.GenerateEmbeddings(c.Request().Context(), user.ID, ids)
	if err != nil {
		switch {
		case errors.Is(err, memory.ErrEmptyBatch):
			return c.JSON(http.StatusBadRequest, errorResponse("Memory IDs array is required"))
		case errors.Is(err, memory.ErrBatchTooLarge):
			return c.JSON(http.StatusBadRequest, errorResponse("Maximum 50 memories can be processed at once"))
		case errors.Is(err, memory.ErrNotFound):
			return c.JSON(http.StatusNotFound, errorResponse("No memories found"))
		}
		s.logger.Error("embedding generation failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to generate embeddings"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"processed": result.Processed,
		"failed":    result.Failed,
		"errors":    result.Errors,
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat serves POST /api/chat.
func (s *Server) handleChat(c echo.Context) error {
	user := currentUser(c)

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}

	reply, err := s.chat.Respond(c.Request().Context(), user.ID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return c.JSON(http.StatusBadRequest, errorResponse("Message is required"))
		}
		s.logger.Error("chat failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to process message"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"reply":         reply.Content,
		"persisted":     reply.Persisted,
		"memories_used": reply.MemoriesUsed,
	})
}

// handleChatHistory serves GET /api/chat/history.
func (s *Server) handleChatHistory(c echo.Context) error {
	user := currentUser(c)

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	interactions, err := s.interactions.ListInteractions(c.Request().Context(), user.ID, limit)
	if err != nil {
		s.logger.Error("failed to fetch chat history", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to fetch chat history"))
	}

	dtos := make([]interactionDTO, 0, len(interactions))
	for _, i := range interactions {
		dtos = append(dtos, interactionDTO{
			ID:        strconv.FormatInt(i.ID, 10),
			Role:      i.Role,
			Content:   i.Content,
			Meta:      i.Meta,
			CreatedAt: i.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"interactions": dtos,
	})
}

// handleAchievements serves GET /api/achievements.
func (s *Server) handleAchievements(c echo.Context) error {
	user := currentUser(c)

	overview, err := s.achievements.Overview(c.Request().Context(), user.ID)
	if err != nil {
		s.logger.Error("failed to fetch achievements", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to fetch achievements"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    overview,
	})
}

// handleAnalytics serves GET /api/analytics.
func (s *Server) handleAnalytics(c echo.Context) error {
	user := currentUser(c)

	summary, err := s.analytics.Summarize(c.Request().Context(), user.ID)
	if err != nil {
		s.logger.Error("failed to compute analytics", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse("Erro ao buscar dados de analytics"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    summary,
	})
}
