// Package chat orchestrates a single chat turn: admission, conversation
// resolution, persistence, optional search augmentation, and the upstream
// completion call.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"awake/backend/internal/openrouter"
	"awake/backend/internal/serper"
	"awake/backend/internal/store"
)

const searchReplySeparator = "\n\n---\n\n"

var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrAccessDenied = errors.New("conversation belongs to another user")
)

// ValidationError reports a malformed field before any side effect happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Limiter admits or rejects a request for an identity.
type Limiter interface {
	Admit(identity string) bool
}

// Completer produces a model reply from the full ordered history.
type Completer interface {
	Complete(ctx context.Context, modelID string, messages []openrouter.Message) (string, error)
}

// Searcher returns a snippet block for a query; it never fails, only degrades.
type Searcher interface {
	Search(ctx context.Context, query string) serper.Outcome
}

type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

type SendRequest struct {
	ConversationID   string
	ModelID          string
	ModelName        string
	Message          string
	WebSearchEnabled bool
	Attachments      []Attachment
}

type SendResponse struct {
	ConversationID string
	UserMessage    store.Message
	AIMessage      store.Message
	WebSearchUsed  bool
	SearchResults  string
}

type Service struct {
	store           store.Store
	limiter         Limiter
	completions     Completer
	search          Searcher
	maxMessageChars int
}

func NewService(st store.Store, limiter Limiter, completions Completer, search Searcher, maxMessageChars int) Service {
	return Service{
		store:           st,
		limiter:         limiter,
		completions:     completions,
		search:          search,
		maxMessageChars: maxMessageChars,
	}
}

// Send runs one chat turn for userID. Validation, admission, and ownership
// failures return before anything is persisted. Once the user message is
// stored it is never rolled back: completion failures (other than a missing
// API key) become an apologetic assistant turn so the conversation keeps a
// matching reply per user message.
func (s Service) Send(ctx context.Context, userID string, req SendRequest) (SendResponse, error) {
	if err := s.validate(req); err != nil {
		return SendResponse{}, err
	}

	if !s.limiter.Admit(userID) {
		return SendResponse{}, ErrRateLimited
	}

	conversation, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		return SendResponse{}, err
	}

	userMessage, err := s.store.CreateMessage(ctx, conversation.ID, store.RoleUser, req.Message)
	if err != nil {
		return SendResponse{}, fmt.Errorf("persist user message: %w", err)
	}

	persisted, err := s.store.ListMessages(ctx, conversation.ID)
	if err != nil {
		return SendResponse{}, fmt.Errorf("load history: %w", err)
	}

	history := make([]openrouter.Message, 0, len(persisted)+1)
	for _, message := range persisted {
		history = append(history, openrouter.Message{Role: message.Role, Content: message.Content})
	}

	var searchOutcome serper.Outcome
	if req.WebSearchEnabled {
		searchOutcome = s.search.Search(ctx, req.Message)
		// Synthetic context entry only; it shapes the model's input and is
		// never persisted as a message of its own.
		history = append(history, openrouter.Message{
			Role:    "system",
			Content: "Use the following web search results to inform your answer:\n\n" + searchOutcome.Text,
		})
	}

	reply, err := s.completions.Complete(ctx, req.ModelID, history)
	if err != nil {
		if errors.Is(err, openrouter.ErrMissingAPIKey) {
			return SendResponse{}, err
		}
		log.Printf("completion failed: user_id=%s conversation_id=%s model_id=%s err=%v", userID, conversation.ID, req.ModelID, err)
		reply = apologyFor(err)
	}

	finalContent := reply
	if req.WebSearchEnabled {
		finalContent = searchOutcome.Text + searchReplySeparator + reply
	}

	aiMessage, err := s.store.CreateMessage(ctx, conversation.ID, store.RoleAssistant, finalContent)
	if err != nil {
		return SendResponse{}, fmt.Errorf("persist assistant message: %w", err)
	}

	return SendResponse{
		ConversationID: conversation.ID,
		UserMessage:    userMessage,
		AIMessage:      aiMessage,
		WebSearchUsed:  req.WebSearchEnabled,
		SearchResults:  searchOutcome.Text,
	}, nil
}

func (s Service) validate(req SendRequest) error {
	if strings.TrimSpace(req.ModelID) == "" {
		return ValidationError{Field: "modelId", Reason: "is required"}
	}
	if strings.TrimSpace(req.ModelName) == "" {
		return ValidationError{Field: "modelName", Reason: "is required"}
	}
	if req.Message == "" {
		return ValidationError{Field: "message", Reason: "is required"}
	}
	if utf8.RuneCountInString(req.Message) > s.maxMessageChars {
		return ValidationError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", s.maxMessageChars)}
	}
	return nil
}

func (s Service) resolveConversation(ctx context.Context, userID string, req SendRequest) (store.Conversation, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		conversation, err := s.store.CreateConversation(ctx, userID, req.ModelID, req.ModelName)
		if err != nil {
			return store.Conversation{}, fmt.Errorf("create conversation: %w", err)
		}
		return conversation, nil
	}

	conversation, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return store.Conversation{}, err
	}
	if conversation.UserID != userID {
		return store.Conversation{}, ErrAccessDenied
	}
	return conversation, nil
}

// apologyFor maps an upstream failure onto a user-visible assistant reply.
// The marker phrase "I apologize" is load-bearing for clients that detect
// degraded turns.
func apologyFor(err error) string {
	var apiErr openrouter.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestEntityTooLarge || containsTokenLimitHint(apiErr.Body):
			return "I apologize, but your message or the conversation history is too large for this model. Please shorten your message or start a new conversation."
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "I apologize, but the model provider is currently rate limiting requests. Please wait a moment and try again."
		}
	}
	return "I apologize, but I encountered an error while processing your request. Please try again."
}

func containsTokenLimitHint(body string) bool {
	lowered := strings.ToLower(body)
	return strings.Contains(lowered, "maximum context") || strings.Contains(lowered, "token limit") || strings.Contains(lowered, "too many tokens")
}
