package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"awake/backend/internal/auth"
	"awake/backend/internal/chat"
	"awake/backend/internal/config"
	"awake/backend/internal/models"
	"awake/backend/internal/openrouter"
	"awake/backend/internal/store"

	"github.com/go-chi/chi/v5"
)

// demoUserID is the identity used when authentication is disabled.
const demoUserID = "demo-user-123"

type identityVerifier interface {
	Verify(ctx context.Context, idToken string) (auth.Identity, error)
}

type modelLister interface {
	ListModels(ctx context.Context) ([]openrouter.Model, error)
}

type Handler struct {
	cfg      config.Config
	db       *sql.DB
	store    store.Store
	chat     chat.Service
	verifier identityVerifier
	catalog  modelLister
	files    objectStore
}

func NewHandler(cfg config.Config, database *sql.DB, st store.Store, chatService chat.Service, verifier identityVerifier, catalog modelLister, files objectStore) Handler {
	return Handler{
		cfg:      cfg,
		db:       database,
		store:    st,
		chat:     chatService,
		verifier: verifier,
		catalog:  catalog,
		files:    files,
	}
}

type contextKey string

const identityContextKey contextKey = "identity"

func (h Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RequireIdentity resolves the caller's identity and stores the opaque user
// id in the request context. Handlers pass it explicitly into the chat
// service; nothing below this layer touches the request.
func (h Handler) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.AuthRequired {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), demoUserID)))
			return
		}

		if h.cfg.InsecureSkipGoogleVerify {
			testUser := strings.TrimSpace(r.Header.Get("X-Test-User"))
			if testUser == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "insecure auth mode requires the X-Test-User header")
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), testUser)))
			return
		}

		idToken, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		identity, err := h.verifier.Verify(r.Context(), idToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid identity token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity.UserID)))
	})
}

func (h Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	conversations, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		log.Printf("list conversations failed: user_id=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch conversations")
		return
	}

	writeJSON(w, http.StatusOK, conversations)
}

func (h Handler) ListConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	conversation, err := h.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		log.Printf("get conversation failed: user_id=%s conversation_id=%s err=%v", userID, conversationID, err)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch conversation")
		return
	}
	if conversation.UserID != userID {
		writeError(w, http.StatusForbidden, "access_denied", "conversation belongs to another user")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conversationID)
	if err != nil {
		log.Printf("list messages failed: user_id=%s conversation_id=%s err=%v", userID, conversationID, err)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch messages")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

type chatRequest struct {
	ConversationID   *string           `json:"conversationId"`
	ModelID          string            `json:"modelId"`
	ModelName        string            `json:"modelName"`
	Message          string            `json:"message"`
	WebSearchEnabled *bool             `json:"webSearchEnabled"`
	Attachments      []chat.Attachment `json:"attachments"`
}

type chatResponse struct {
	ConversationID string        `json:"conversationId"`
	UserMessage    store.Message `json:"userMessage"`
	AIMessage      store.Message `json:"aiMessage"`
	WebSearchUsed  bool          `json:"webSearchUsed,omitempty"`
	SearchResults  string        `json:"searchResults,omitempty"`
}

func (h Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sendReq := chat.SendRequest{
		ModelID:     req.ModelID,
		ModelName:   req.ModelName,
		Message:     req.Message,
		Attachments: req.Attachments,
	}
	if req.ConversationID != nil {
		sendReq.ConversationID = *req.ConversationID
	}
	if req.WebSearchEnabled != nil {
		sendReq.WebSearchEnabled = *req.WebSearchEnabled
	}

	resp, err := h.chat.Send(r.Context(), userID, sendReq)
	if err != nil {
		h.writeChatError(w, userID, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: resp.ConversationID,
		UserMessage:    resp.UserMessage,
		AIMessage:      resp.AIMessage,
		WebSearchUsed:  resp.WebSearchUsed,
		SearchResults:  resp.SearchResults,
	})
}

func (h Handler) writeChatError(w http.ResponseWriter, userID string, err error) {
	var validationErr chat.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "invalid_request", validationErr.Error())
	case errors.Is(err, chat.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, please slow down")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
	case errors.Is(err, chat.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", "conversation belongs to another user")
	case errors.Is(err, openrouter.ErrMissingAPIKey):
		log.Printf("chat misconfigured: user_id=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "configuration_error", "OPENROUTER_API_KEY is not configured; set it and restart the service")
	default:
		log.Printf("chat failed: user_id=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process chat message")
	}
}

func (h Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.catalog.ListModels(r.Context())
	if err == nil && len(catalog) > 0 {
		out := make([]models.Model, 0, len(catalog))
		for _, model := range catalog {
			out = append(out, models.Model{
				ID:            model.ID,
				Name:          model.Name,
				Provider:      providerFromModelID(model.ID),
				ContextLength: formatContextLength(model.ContextWindow),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": out})
		return
	}
	if err != nil && !errors.Is(err, openrouter.ErrMissingAPIKey) {
		log.Printf("model catalog fetch failed, serving curated list: err=%v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"models": models.Curated()})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errors.New("Authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

func withIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityContextKey, userID)
}

func identityFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(identityContextKey).(string)
	return userID, ok && userID != ""
}

func providerFromModelID(id string) string {
	provider, _, found := strings.Cut(id, "/")
	if !found {
		return ""
	}
	return provider
}

func formatContextLength(contextWindow int) string {
	if contextWindow <= 0 {
		return ""
	}
	thousands := (contextWindow + 500) / 1000
	if thousands < 1 {
		thousands = 1
	}
	return strconv.Itoa(thousands) + "K"
}
