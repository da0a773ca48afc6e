package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manga-tracker/internal/observability"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		limit    int
		expected []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"by lines", "aaa\nbbb\nccc", 8, []string{"aaa\nbbb\n", "ccc"}},
		{"long line hard cut", "ab\n" + strings.Repeat("x", 7) + "\ncd", 3, []string{"ab\n", "xxx", "xxx", "x\n", "cd"}},
		{"runes not bytes", "глава\nглава", 6, []string{"глава\n", "глава"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := Split(tt.text, tt.limit)
			assert.Equal(t, tt.expected, parts)
			assert.Equal(t, tt.text, strings.Join(parts, ""))
		})
	}
}

func TestSplitDefaultLimit(t *testing.T) {
	line := strings.Repeat("a", 99) + "\n"
	text := strings.Repeat(line, 100)

	parts := Split(text, 0)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), DefaultMaxLen)
		assert.True(t, strings.HasSuffix(p, "\n"))
	}
}

func TestTelegramSend(t *testing.T) {
	var (
		mu       sync.Mutex
		received []sendMessageRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		received = append(received, req)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL+"/", "TOKEN", "42", 8, observability.NewNop())
	require.NoError(t, tg.Send(context.Background(), "aaa\nbbb\nccc"))

	require.Len(t, received, 2)
	assert.Equal(t, "aaa\nbbb\n", received[0].Text)
	assert.Equal(t, "ccc", received[1].Text)
	assert.Equal(t, "42", received[0].ChatID)
	assert.True(t, received[0].DisableWebPagePreview)
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL, "TOKEN", "42", 0, observability.NewNop())
	err := tg.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramRedactsToken(t *testing.T) {
	tg := NewTelegram("http://127.0.0.1:1", "SECRET", "42", 0, observability.NewNop())
	err := tg.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
}
