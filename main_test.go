package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/internal/mcp"
)

func runWith(args []string, env map[string]string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, config.NewEnvironment(env), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Help(t *testing.T) {
	for _, flag := range []string{"--help", "-h"} {
		code, stdout, stderr := runWith([]string{flag}, nil)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "--mcp-request")
		assert.Empty(t, stderr)
	}
}

func TestRun_Version(t *testing.T) {
	for _, flag := range []string{"--version", "-v"} {
		code, stdout, _ := runWith([]string{flag}, nil)
		assert.Equal(t, 0, code)
		assert.Equal(t, "cunzhi v"+version+"\n", stdout)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		env      map[string]string
		message  string
		withHelp bool
	}{
		{"bogus mode", nil, map[string]string{"mode": "bogus"}, "invalid CUNZHI_MODE value: bogus, supported values: desktop, web", false},
		{"unknown argument", []string{"--bogus"}, nil, "unknown argument: --bogus", true},
		{"bad shape", []string{"a", "b"}, nil, "invalid command line arguments", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, stderr := runWith(tc.args, tc.env)
			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			assert.True(t, strings.HasPrefix(stderr, tc.message), stderr)
			assert.Equal(t, tc.withHelp, strings.Contains(stderr, "Usage:"))
		})
	}
}

func TestRun_UnknownStoreBackend(t *testing.T) {
	code, _, stderr := runWith(
		[]string{"--mcp-request", "req.json"},
		map[string]string{"config_dir": t.TempDir(), "store": "redis"},
	)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown store backend")
}

// writeHeadlessSetup stores a Telegram configuration that selects the
// headless route and a request file
func writeHeadlessSetup(t *testing.T, apiURL string) (dir, requestFile string) {
	t.Helper()
	dir = t.TempDir()

	cfg := config.Default()
	cfg.Telegram = config.TelegramConfig{
		Enabled:           true,
		BotToken:          "token",
		ChatID:            "100",
		HideFrontendPopup: true,
		APIBaseURL:        apiURL,
	}
	require.NoError(t, config.NewFileCodec(filepath.Join(dir, "config.json"), nil, nil).Save(cfg))

	requestFile = filepath.Join(dir, "request.json")
	data, err := json.Marshal(mcp.PopupRequest{ID: "req-9", Message: "Continue?"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(requestFile, data, 0o600))
	return dir, requestFile
}

func TestRun_HeadlessFailureExits1(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer api.Close()

	dir, requestFile := writeHeadlessSetup(t, api.URL)

	code, stdout, stderr := runWith([]string{"--mcp-request", requestFile}, map[string]string{"config_dir": dir})
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "headless request failed")
}

func TestRun_HeadlessSuccess(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":100}}}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates") && body["timeout"] == float64(0):
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":1,"callback_query":{"id":"cb","data":"continue","message":{"message_id":1,"chat":{"id":100}}}}]}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	defer api.Close()

	dir, requestFile := writeHeadlessSetup(t, api.URL)

	code, stdout, _ := runWith([]string{"--mcp-request", requestFile}, map[string]string{"config_dir": dir})
	require.Equal(t, 0, code)

	var resp mcp.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.UserInput)
	assert.Equal(t, "continue", *resp.UserInput)
	assert.Equal(t, "req-9", resp.Metadata.RequestID)
	assert.Equal(t, mcp.SourceTelegram, resp.Metadata.Source)
}
