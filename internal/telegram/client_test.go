package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/internal/mcp"
)

const (
	backlogLimit = 100

	testToken   = "123:abc"
	testChatID  = int64(100)
	testMessage = 42
)

// fakeBot is a scripted Bot API. Updates queued in batches are returned one
// batch per long poll; a poll with timeout 0 returns the stale backlog past
// its offset, at most backlogLimit updates at a time.
type fakeBot struct {
	t *testing.T

	mu        sync.Mutex
	stale     []update
	batches   [][]update
	sent      []sendMessageRequest
	answered  []answerCallbackRequest
	offsets   []int
	sendError bool
}

func (f *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch strings.TrimPrefix(r.URL.Path, prefix) {
	case "sendMessage":
		var req sendMessageRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if f.sendError {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		f.sent = append(f.sent, req)
		f.ok(w, message{MessageID: testMessage, Chat: chat{ID: testChatID}})

	case "getUpdates":
		var req getUpdatesRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if req.Timeout == 0 {
			backlog := []update{}
			for _, u := range f.stale {
				if u.UpdateID >= req.Offset && len(backlog) < backlogLimit {
					backlog = append(backlog, u)
				}
			}
			f.ok(w, backlog)
			return
		}
		f.offsets = append(f.offsets, req.Offset)
		if len(f.batches) == 0 {
			f.mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			f.mu.Lock()
			f.ok(w, []update{})
			return
		}
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.ok(w, batch)

	case "answerCallbackQuery":
		var req answerCallbackRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.answered = append(f.answered, req)
		f.ok(w, true)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBot) ok(w http.ResponseWriter, result interface{}) {
	data, err := json.Marshal(result)
	require.NoError(f.t, err)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(apiResponse{OK: true, Result: data})
}

func newFakeBot(t *testing.T, batches ...[]update) (*fakeBot, config.TelegramConfig) {
	bot := &fakeBot{t: t, batches: batches}
	srv := httptest.NewServer(bot)
	t.Cleanup(srv.Close)

	return bot, config.TelegramConfig{
		Enabled:           true,
		BotToken:          testToken,
		ChatID:            "100",
		HideFrontendPopup: true,
		APIBaseURL:        srv.URL,
	}
}

func newTestClient(t *testing.T, cfg config.TelegramConfig) *Client {
	client, err := NewClient(cfg, nil, WithPollTimeout(1), WithRetryDelay(10*time.Millisecond))
	require.NoError(t, err)
	return client
}

func callback(updateID int, chatID int64, messageID int, data string) update {
	return update{
		UpdateID: updateID,
		CallbackQuery: &callbackQuery{
			ID:      "cb" + data,
			Message: &message{MessageID: messageID, Chat: chat{ID: chatID}},
			Data:    data,
		},
	}
}

func textMessage(updateID int, chatID int64, text string) update {
	return update{
		UpdateID: updateID,
		Message:  &message{MessageID: updateID, Chat: chat{ID: chatID}, Text: text},
	}
}

var testRequest = mcp.PopupRequest{
	ID:                "req-1",
	Message:           "Apply the patch?",
	PredefinedOptions: []string{"Yes", "No"},
	IsMarkdown:        true,
}

func TestDecide_OptionSelected(t *testing.T) {
	bot, cfg := newFakeBot(t,
		[]update{
			callback(10, 999, testMessage, "opt:0"), // other chat
			callback(11, testChatID, 7, "opt:0"),    // other message
			callback(12, testChatID, testMessage, "opt:1"),
		},
	)
	bot.mu.Lock()
	bot.stale = []update{textMessage(5, testChatID, "old reply")}
	bot.mu.Unlock()

	resp, err := newTestClient(t, cfg).Decide(context.Background(), testRequest)
	require.NoError(t, err)

	assert.Equal(t, []string{"No"}, resp.SelectedOptions)
	assert.Nil(t, resp.UserInput)
	assert.Equal(t, "req-1", resp.Metadata.RequestID)
	assert.Equal(t, mcp.SourceTelegram, resp.Metadata.Source)

	bot.mu.Lock()
	defer bot.mu.Unlock()

	require.Len(t, bot.sent, 1)
	sent := bot.sent[0]
	assert.Equal(t, "100", sent.ChatID)
	assert.Equal(t, "Apply the patch?", sent.Text)
	assert.Equal(t, "Markdown", sent.ParseMode)
	require.NotNil(t, sent.ReplyMarkup)
	require.Len(t, sent.ReplyMarkup.InlineKeyboard, 3)
	assert.Equal(t, "opt:0", sent.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "continue", sent.ReplyMarkup.InlineKeyboard[2][0].CallbackData)

	// Backlog before the popup is skipped
	require.NotEmpty(t, bot.offsets)
	assert.Equal(t, 6, bot.offsets[0])

	require.Len(t, bot.answered, 1)
	assert.Equal(t, "No", bot.answered[0].Text)
}

func TestDecide_SkipsLargeBacklog(t *testing.T) {
	bot, cfg := newFakeBot(t, []update{textMessage(500, testChatID, "fresh answer")})

	stale := make([]update, 0, 250)
	for i := 1; i <= 250; i++ {
		stale = append(stale, textMessage(i, testChatID, "old reply"))
	}
	bot.mu.Lock()
	bot.stale = stale
	bot.mu.Unlock()

	resp, err := newTestClient(t, cfg).Decide(context.Background(), testRequest)
	require.NoError(t, err)

	require.NotNil(t, resp.UserInput)
	assert.Equal(t, "fresh answer", *resp.UserInput)

	bot.mu.Lock()
	defer bot.mu.Unlock()
	require.NotEmpty(t, bot.offsets)
	assert.Equal(t, 251, bot.offsets[0])
}

func TestDecide_Continue(t *testing.T) {
	bot, cfg := newFakeBot(t, []update{callback(1, testChatID, testMessage, "continue")})

	resp, err := newTestClient(t, cfg).Decide(context.Background(), testRequest)
	require.NoError(t, err)

	require.NotNil(t, resp.UserInput)
	assert.Equal(t, "continue", *resp.UserInput)
	assert.Empty(t, resp.SelectedOptions)

	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.Len(t, bot.answered, 1)
}

func TestDecide_TextReply(t *testing.T) {
	_, cfg := newFakeBot(t,
		[]update{textMessage(1, 999, "stranger")},
		[]update{textMessage(2, testChatID, "   ")},
		[]update{textMessage(3, testChatID, "please add tests first")},
	)

	resp, err := newTestClient(t, cfg).Decide(context.Background(), testRequest)
	require.NoError(t, err)

	require.NotNil(t, resp.UserInput)
	assert.Equal(t, "please add tests first", *resp.UserInput)
}

func TestDecide_InvalidCallbackIgnored(t *testing.T) {
	bot, cfg := newFakeBot(t,
		[]update{callback(1, testChatID, testMessage, "opt:9")},
		[]update{callback(2, testChatID, testMessage, "garbage")},
		[]update{callback(3, testChatID, testMessage, "opt:0")},
	)

	resp, err := newTestClient(t, cfg).Decide(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yes"}, resp.SelectedOptions)

	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.Len(t, bot.answered, 3)
}

func TestDecide_PlainTextWithoutMarkdown(t *testing.T) {
	bot, cfg := newFakeBot(t, []update{callback(1, testChatID, testMessage, "continue")})

	req := mcp.PopupRequest{ID: "r", Message: "plain"}
	_, err := newTestClient(t, cfg).Decide(context.Background(), req)
	require.NoError(t, err)

	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.Empty(t, bot.sent[0].ParseMode)
	assert.Len(t, bot.sent[0].ReplyMarkup.InlineKeyboard, 1)
}

func TestDecide_APIError(t *testing.T) {
	bot, cfg := newFakeBot(t)
	bot.mu.Lock()
	bot.sendError = true
	bot.mu.Unlock()

	_, err := newTestClient(t, cfg).Decide(context.Background(), testRequest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestDecide_WrongToken(t *testing.T) {
	_, cfg := newFakeBot(t)
	cfg.BotToken = "wrong"

	_, err := newTestClient(t, cfg).Decide(context.Background(), testRequest)
	assert.True(t, errors.Is(err, ErrAPI))
}

func TestDecide_ContextCancelled(t *testing.T) {
	_, cfg := newFakeBot(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, cfg).Decide(ctx, testRequest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(config.TelegramConfig{Enabled: true, ChatID: "1"}, nil)
	assert.Error(t, err)

	_, err = NewClient(config.TelegramConfig{Enabled: true, BotToken: "t"}, nil)
	assert.Error(t, err)
}

func TestHandleRequestFile(t *testing.T) {
	_, cfg := newFakeBot(t, []update{callback(1, testChatID, testMessage, "opt:0")})

	path := filepath.Join(t.TempDir(), "request.json")
	data, err := json.Marshal(testRequest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var out bytes.Buffer
	err = HandleRequestFile(context.Background(), path, cfg, &out, nil, WithPollTimeout(1))
	require.NoError(t, err)

	var resp mcp.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, []string{"Yes"}, resp.SelectedOptions)
	assert.Equal(t, "req-1", resp.Metadata.RequestID)
}

func TestHandleRequestFile_MissingFile(t *testing.T) {
	_, cfg := newFakeBot(t)

	var out bytes.Buffer
	err := HandleRequestFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"), cfg, &out, nil)
	assert.Error(t, err)
	assert.Zero(t, out.Len())
}
