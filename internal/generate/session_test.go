package generate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/compress"
	"relay/internal/content"
)

func newTestSession(t *testing.T, baseURL string) *Session {
	t.Helper()
	client := newTestClient(t, baseURL)
	session, err := NewSession(client, SessionConfig{
		SystemInstruction: "be brief",
	})
	require.NoError(t, err)
	return session
}

func TestSession_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatResponseBody("echo")))
	}))
	defer server.Close()

	session := newTestSession(t, server.URL)
	resp, err := session.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo", resp.Turn.Text())

	// The exchange is recorded: user input followed by model output.
	history := session.History(false)
	require.Len(t, history, 2)
	assert.Equal(t, content.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Text())
	assert.Equal(t, content.RoleModel, history[1].Role)
	assert.Equal(t, "echo", history[1].Text())
}

func TestSession_SendAccumulatesHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatResponseBody("reply")))
	}))
	defer server.Close()

	session := newTestSession(t, server.URL)
	_, err := session.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, 4, len(session.History(false)))
}

func TestSession_SendInvalidInput(t *testing.T) {
	session := newTestSession(t, "http://localhost:1")
	_, err := session.Send(context.Background(), 42)
	assert.Error(t, err)
}

func TestSession_SendStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`data: {"choices":[{"delta":{"content":"str"}}]}`,
			`data: {"choices":[{"delta":{"content":"eamed"},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		} {
			_, _ = w.Write([]byte(line + "\n\n"))
			flusher.Flush()
		}
	}))
	defer server.Close()

	session := newTestSession(t, server.URL)
	events, err := session.SendStream(context.Background(), "go")
	require.NoError(t, err)

	var text string
	for ev := range events {
		if ev.Type == EventTypeContent {
			text += ev.Text
		}
	}
	assert.Equal(t, "streamed", text)

	history := session.History(false)
	require.Len(t, history, 2)
	assert.Equal(t, "streamed", history[1].Text())
}

func TestSession_CompressForced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatResponseBody("The user asked about Go and got answers.")))
	}))
	defer server.Close()

	session := newTestSession(t, server.URL)
	var seed []content.Turn
	for i := 0; i < 10; i++ {
		seed = append(seed, content.NewUserText("a question"), content.NewModelText("an answer"))
	}
	require.NoError(t, session.SetHistory(seed))

	res, err := session.Compress(context.Background(), compress.Options{Force: true})
	require.NoError(t, err)
	require.NotNil(t, res)

	history := session.History(false)
	assert.Less(t, len(history), 20)
	assert.Equal(t, "The user asked about Go and got answers.", history[0].Text())
	assert.Equal(t, 1, session.Stats().CompressionCount)
}

func TestSession_Stats(t *testing.T) {
	session := newTestSession(t, "http://localhost:1")
	require.NoError(t, session.SetHistory([]content.Turn{
		content.NewUserText("q"),
		content.NewModelText("a"),
	}))

	stats := session.Stats()
	assert.NotEmpty(t, stats.SessionID)
	assert.Equal(t, 2, stats.Turns)
	assert.Equal(t, 2, stats.CuratedTurns)
	assert.Greater(t, stats.EstimatedTokens, 0)
	assert.Equal(t, 128000, stats.ContextLimit)
	assert.Equal(t, 0, stats.CompressionCount)
}

func TestSession_ClearAndSetHistory(t *testing.T) {
	session := newTestSession(t, "http://localhost:1")
	require.NoError(t, session.SetHistory([]content.Turn{content.NewUserText("x")}))
	require.Len(t, session.History(false), 1)

	session.Clear()
	assert.Empty(t, session.History(false))

	err := session.SetHistory([]content.Turn{
		{Role: content.Role("system"), Fragments: []content.Fragment{content.TextFragment("no")}},
	})
	assert.Error(t, err)
}
