package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	sessions := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	ledger := memory.NewLedger()
	service := app.NewAttemptService(sessions, quizzes, ledger)
	verifier := auth.NewVerifier("test-secret")
	wsHandler := NewWSHandler(service, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, verifier
}

func dialWS(t *testing.T, server *httptest.Server, quizCode, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?quizCode=" + quizCode + "&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketAttemptFlow(t *testing.T) {
	server, verifier := newTestServer(t)
	token, err := verifier.Mint("u1", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	conn := dialWS(t, server, "QUIZ01", token)

	// Expect the resumable session frame first.
	msgType, payload := readNext(conn, t, "session")
	if msgType != "session" {
		t.Fatalf("expected session, got %s", msgType)
	}
	if payload["quizCode"] != "QUIZ01" {
		t.Fatalf("expected quiz code in session frame, got %v", payload)
	}
	if payload["startedAtMs"] == nil || payload["remainingMs"] == nil {
		t.Fatalf("session frame must carry the resumable timer state, got %v", payload)
	}

	// Answer the first question.
	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"index": 0, "option": "4"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	savedSeen := false
	for i := 0; i < 5 && !savedSeen; i++ {
		if typ, _ := readNext(conn, t, ""); typ == "answerSaved" {
			savedSeen = true
		}
	}
	if !savedSeen {
		t.Fatalf("expected an answerSaved frame")
	}

	// Submit and expect a result frame with the score.
	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	resultSeen := false
	for i := 0; i < 5 && !resultSeen; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "result" {
			resultSeen = true
			if payload["score"] != float64(1) {
				t.Fatalf("expected score 1, got %v", payload["score"])
			}
		}
	}
	if !resultSeen {
		t.Fatalf("expected a result frame after submit")
	}
}

func TestWebSocketReconnectAfterSubmitShowsSubmission(t *testing.T) {
	server, verifier := newTestServer(t)
	token, err := verifier.Mint("u1", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	conn := dialWS(t, server, "QUIZ01", token)
	readNext(conn, t, "session")
	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	for i := 0; i < 5; i++ {
		if typ, _ := readNext(conn, t, ""); typ == "result" {
			break
		}
	}
	conn.Close()

	// Re-fetching the quiz after submission returns the submission, never a
	// fresh session.
	again := dialWS(t, server, "QUIZ01", token)
	typ, payload := readNext(again, t, "submitted")
	if typ != "submitted" {
		t.Fatalf("expected submitted frame, got %s", typ)
	}
	if payload["quizCode"] != "QUIZ01" {
		t.Fatalf("expected the stored submission, got %v", payload)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	server, _ := newTestServer(t)
	u := "ws" + server.URL[len("http"):] + "/ws?quizCode=QUIZ01&token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"QUIZ01": {
			Code:            "QUIZ01",
			Title:           "Arithmetic",
			DurationMinutes: 10,
			Questions: []domain.Question{
				{
					Text:    "What is 2 + 2?",
					Options: []string{"3", "4", "5"},
					Correct: "4",
				},
			},
		},
	}
}
