package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"
)

type WSHandler struct {
	service  *app.AttemptService
	auth     *auth.Verifier
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, verifier *auth.Verifier) *WSHandler {
	return &WSHandler{
		service: service,
		auth:    verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Index  int    `json:"index"`
	Option string `json:"option"`
}

type answerSaved struct {
	Index int `json:"index"`
}

// sessionPayload is what a (re)connecting client needs to resume: startedAt
// is the value clients persist under attemptStart:<quizCode> and remainingMs
// is recomputed server-side so a reload never resets the countdown.
type sessionPayload struct {
	QuizCode    string             `json:"quizCode"`
	Title       string             `json:"title"`
	Questions   []app.QuestionView `json:"questions"`
	StartedAtMs int64              `json:"startedAtMs"`
	DeadlineMs  int64              `json:"deadlineMs"`
	RemainingMs int64              `json:"remainingMs"`
	Answers     map[int]string     `json:"answers"`
}

type tickPayload struct {
	RemainingMs int64 `json:"remainingMs"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// attempt use cases: start-or-resume on connect, then answer and submit
// frames inbound, tick and result frames outbound.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizCode := r.URL.Query().Get("quizCode")
	token := r.URL.Query().Get("token")
	if quizCode == "" {
		http.Error(w, "missing quizCode", http.StatusBadRequest)
		return
	}

	identity, err := h.auth.Identity(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	start, err := h.service.StartOrResume(r.Context(), quizCode, identity)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	if start.AlreadySubmitted {
		// One attempt only: show the recorded submission, never a fresh session.
		_ = conn.WriteJSON(outboundMessage[domain.Submission]{Type: "submitted", Payload: start.Submission})
		return
	}

	events, cancel, err := h.service.Subscribe(r.Context(), quizCode, identity)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				var msg outboundMessage[any]
				switch ev.Type {
				case app.EventTick:
					msg = outboundMessage[any]{Type: "tick", Payload: tickPayload{RemainingMs: ev.Remaining.Milliseconds()}}
				case app.EventFinalized:
					msg = outboundMessage[any]{Type: "result", Payload: ev.Submission}
				default:
					continue
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: sessionView(start.Session)}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			err := h.service.SetAnswer(r.Context(), quizCode, identity, payload.Index, payload.Option)
			if errors.Is(err, domain.ErrSessionFinalized) {
				// Expected once the deadline passes; dropped without an error frame.
				continue
			}
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "answerSaved", Payload: answerSaved{Index: payload.Index}}
		case "submit":
			sub, err := h.service.Finalize(r.Context(), quizCode, identity, domain.TriggerManual)
			if errors.Is(err, domain.ErrAlreadySubmitted) {
				send <- outboundMessage[any]{Type: "submitted", Payload: sub}
				continue
			}
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			// The result frame arrives through the event subscription.
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func sessionView(view app.SessionView) sessionPayload {
	return sessionPayload{
		QuizCode:    view.QuizCode,
		Title:       view.Title,
		Questions:   view.Questions,
		StartedAtMs: view.StartedAt.UnixMilli(),
		DeadlineMs:  view.Deadline.UnixMilli(),
		RemainingMs: view.Remaining.Milliseconds(),
		Answers:     view.Answers,
	}
}
