package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"awake/backend/internal/openrouter"
	"awake/backend/internal/ratelimit"
	"awake/backend/internal/serper"
	"awake/backend/internal/store"
)

type recordingCompleter struct {
	reply   string
	history []openrouter.Message
}

func (c *recordingCompleter) Complete(_ context.Context, _ string, messages []openrouter.Message) (string, error) {
	c.history = messages
	return c.reply, nil
}

func postChat(t *testing.T, h Handler, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = requestWithIdentity(req, userID)

	resp := httptest.NewRecorder()
	h.Chat(resp, req)
	return resp
}

func TestChatCreatesConversationAndPersistsBothTurns(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "Hi there!"}, stubSearcher{}, nil)

	resp := postChat(t, h, demoUserID, `{"conversationId":null,"modelId":"m1","modelName":"Model One","message":"hello"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var payload chatResponse
	decodeJSONBody(t, resp, &payload)
	if payload.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}
	if payload.UserMessage.Role != store.RoleUser || payload.UserMessage.Content != "hello" {
		t.Fatalf("unexpected user message: %+v", payload.UserMessage)
	}
	if payload.AIMessage.Role != store.RoleAssistant || payload.AIMessage.Content != "Hi there!" {
		t.Fatalf("unexpected ai message: %+v", payload.AIMessage)
	}

	messages, err := h.store.ListMessages(context.Background(), payload.ConversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(messages))
	}
}

func TestChatReusesExistingConversation(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	first := postChat(t, h, demoUserID, `{"modelId":"m1","modelName":"Model One","message":"first"}`)
	var opened chatResponse
	decodeJSONBody(t, first, &opened)

	second := postChat(t, h, demoUserID, `{"conversationId":"`+opened.ConversationID+`","modelId":"m1","modelName":"Model One","message":"second"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, second.Code)
	}

	var continued chatResponse
	decodeJSONBody(t, second, &continued)
	if continued.ConversationID != opened.ConversationID {
		t.Fatalf("expected conversation %q, got %q", opened.ConversationID, continued.ConversationID)
	}

	messages, err := h.store.ListMessages(context.Background(), opened.ConversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 persisted messages after two turns, got %d", len(messages))
	}
}

func TestChatRejectsOversizedMessageWithoutSideEffects(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	body := `{"modelId":"m1","modelName":"Model One","message":"` + strings.Repeat("a", 50_001) + `"}`
	resp := postChat(t, h, demoUserID, body)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}

	conversations, err := h.store.ListConversations(context.Background(), demoUserID)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(conversations) != 0 {
		t.Fatalf("expected no persisted conversations, got %d", len(conversations))
	}
}

func TestChatRateLimitsAfterThirtyRequests(t *testing.T) {
	limiter := ratelimit.NewLimiter(60*time.Second, 30)
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, limiter)

	for i := 0; i < 30; i++ {
		resp := postChat(t, h, demoUserID, `{"modelId":"m1","modelName":"Model One","message":"hello"}`)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected status %d, got %d", i+1, http.StatusOK, resp.Code)
		}
	}

	resp := postChat(t, h, demoUserID, `{"modelId":"m1","modelName":"Model One","message":"hello"}`)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d on request 31, got %d", http.StatusTooManyRequests, resp.Code)
	}
}

func TestChatRejectsConversationOfAnotherUser(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	first := postChat(t, h, "user-a", `{"modelId":"m1","modelName":"Model One","message":"mine"}`)
	var opened chatResponse
	decodeJSONBody(t, first, &opened)

	resp := postChat(t, h, "user-b", `{"conversationId":"`+opened.ConversationID+`","modelId":"m1","modelName":"Model One","message":"theirs"}`)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, resp.Code)
	}

	messages, err := h.store.ListMessages(context.Background(), opened.ConversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected conversation untouched with 2 messages, got %d", len(messages))
	}
}

func TestChatReturnsNotFoundForUnknownConversation(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	resp := postChat(t, h, demoUserID, `{"conversationId":"missing","modelId":"m1","modelName":"Model One","message":"hello"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestChatDegradesUpstreamFailureToApology(t *testing.T) {
	upstreamErr := openrouter.APIError{StatusCode: http.StatusInternalServerError, Body: "boom"}
	h := newTestHandler(t, stubCompleter{err: upstreamErr}, stubSearcher{}, nil)

	resp := postChat(t, h, demoUserID, `{"modelId":"m1","modelName":"Model One","message":"hello"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var payload chatResponse
	decodeJSONBody(t, resp, &payload)
	if !strings.HasPrefix(payload.AIMessage.Content, "I apologize") {
		t.Fatalf("expected apologetic assistant reply, got %q", payload.AIMessage.Content)
	}

	messages, err := h.store.ListMessages(context.Background(), payload.ConversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected both turns persisted, got %d messages", len(messages))
	}
}

func TestChatSurfacesMissingAPIKeyAsConfigurationError(t *testing.T) {
	h := newTestHandler(t, stubCompleter{err: openrouter.ErrMissingAPIKey}, stubSearcher{}, nil)

	resp := postChat(t, h, demoUserID, `{"modelId":"m1","modelName":"Model One","message":"hello"}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSONBody(t, resp, &payload)
	if payload.Error.Code != "configuration_error" {
		t.Fatalf("expected configuration_error, got %q", payload.Error.Code)
	}

	// The user message stays persisted even though the turn failed.
	conversations, err := h.store.ListConversations(context.Background(), demoUserID)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(conversations))
	}
	messages, err := h.store.ListMessages(context.Background(), conversations[0].ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != store.RoleUser {
		t.Fatalf("expected only the user message persisted, got %+v", messages)
	}
}

func TestChatAugmentsWithSearchResults(t *testing.T) {
	completer := &recordingCompleter{reply: "Paris is the capital of France."}
	search := stubSearcher{outcome: serper.Outcome{
		Text:     "🔍 **Web Search Results for \"capital of France\":**\n\n1. **Paris**\n   The capital city.\n   Link: https://example.com\n\n",
		Provided: true,
	}}
	h := newTestHandler(t, completer, search, nil)

	resp := postChat(t, h, demoUserID, `{"modelId":"m1","modelName":"Model One","message":"capital of France","webSearchEnabled":true}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var payload chatResponse
	decodeJSONBody(t, resp, &payload)
	if !payload.WebSearchUsed {
		t.Fatal("expected webSearchUsed to be true")
	}
	if payload.SearchResults != search.outcome.Text {
		t.Fatalf("unexpected searchResults: %q", payload.SearchResults)
	}
	want := search.outcome.Text + "\n\n---\n\n" + completer.reply
	if payload.AIMessage.Content != want {
		t.Fatalf("expected composed reply %q, got %q", want, payload.AIMessage.Content)
	}

	last := completer.history[len(completer.history)-1]
	if last.Role != "system" || !strings.Contains(last.Content, search.outcome.Text) {
		t.Fatalf("expected search results as a trailing system entry, got %+v", last)
	}

	// The synthetic system entry is model input only.
	messages, err := h.store.ListMessages(context.Background(), payload.ConversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(messages))
	}
}

func TestListConversationMessagesEnforcesOwnership(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	first := postChat(t, h, "user-a", `{"modelId":"m1","modelName":"Model One","message":"hello"}`)
	var opened chatResponse
	decodeJSONBody(t, first, &opened)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+opened.ConversationID+"/messages", nil)
	req = requestWithIdentity(req, "user-b")
	req = requestWithConversationID(req, opened.ConversationID)
	resp := httptest.NewRecorder()
	h.ListConversationMessages(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, resp.Code)
	}
}

func TestListConversationMessagesReturnsOrderedHistory(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	first := postChat(t, h, demoUserID, `{"modelId":"m1","modelName":"Model One","message":"hello"}`)
	var opened chatResponse
	decodeJSONBody(t, first, &opened)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+opened.ConversationID+"/messages", nil)
	req = requestWithIdentity(req, demoUserID)
	req = requestWithConversationID(req, opened.ConversationID)
	resp := httptest.NewRecorder()
	h.ListConversationMessages(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	var messages []store.Message
	decodeJSONBody(t, resp, &messages)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != store.RoleUser || messages[1].Role != store.RoleAssistant {
		t.Fatalf("expected user then assistant, got %q then %q", messages[0].Role, messages[1].Role)
	}
}

func TestListConversationsIsScopedToIdentity(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	postChat(t, h, "user-a", `{"modelId":"m1","modelName":"Model One","message":"hello"}`)
	postChat(t, h, "user-b", `{"modelId":"m1","modelName":"Model One","message":"hello"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req = requestWithIdentity(req, "user-a")
	resp := httptest.NewRecorder()
	h.ListConversations(resp, req)

	var conversations []store.Conversation
	decodeJSONBody(t, resp, &conversations)
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation for user-a, got %d", len(conversations))
	}
	if conversations[0].UserID != "user-a" {
		t.Fatalf("unexpected owner: %q", conversations[0].UserID)
	}
}
