package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/howard-nolan/chemtutor/internal/analysis"
	"github.com/howard-nolan/chemtutor/internal/prompt"
	"github.com/howard-nolan/chemtutor/internal/provider"
	"github.com/howard-nolan/chemtutor/internal/rag"
	"github.com/howard-nolan/chemtutor/internal/stream"
)

// chatOptions favour fluent prose over determinism.
var chatOptions = provider.Options{Temperature: 0.7, TopP: 0.9, TopK: 40, MaxOutputTokens: 512}

const (
	wsReadLimit  = 64 << 10
	wsQueueSize  = 4
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// chatRequest is the body of POST /chat and of each /ws message.
type chatRequest struct {
	Message   string                 `json:"message"`
	Context   string                 `json:"context,omitempty"`
	Chemicals []string               `json:"chemicals,omitempty"`
	Equipment []string               `json:"equipment,omitempty"`
	History   []prompt.HistoryRecord `json:"history,omitempty"`

	// Mode "concise" selects the short tutoring style; anything else is
	// detailed.
	Mode string `json:"mode,omitempty"`
}

func (req *chatRequest) validate() error {
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: message is required", analysis.ErrValidation)
	}
	return nil
}

// buildChat turns a wire request into a provider request, pulling in
// retrieved knowledge when a retriever is configured.
func (s *Server) buildChat(ctx context.Context, req *chatRequest) *provider.Request {
	mode := prompt.ModeDetailedTutor
	if strings.EqualFold(req.Mode, "concise") {
		mode = prompt.ModeConciseTutor
	}

	system, user := prompt.Chat(mode, prompt.ChatInput{
		Query:      req.Message,
		LabContext: req.Context,
		Chemicals:  req.Chemicals,
		Equipment:  req.Equipment,
		History:    prompt.ConvertHistory(req.History),
		Knowledge:  rag.Context(ctx, s.deps.Retriever, req.Message, s.cfg.RAG.K, s.log),
	})
	return provider.UserPrompt(system, user, chatOptions)
}

// handleChat handles POST /chat. The response is NDJSON, one event per
// line, ending with {"done":true} or a single {"token":...,"error":true}.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	// r.Context() is cancelled when the client disconnects, which stops
	// the pipeline and releases the provider connection.
	events := s.deps.Chat.Run(r.Context(), s.buildChat(r.Context(), &req))
	if err := stream.Write(w, events); err != nil {
		s.log.Info("chat stream ended early", zap.Error(err))
	}
}

// handleWebSocket serves GET /ws. Each text message is a chatRequest;
// the reply is the same event sequence as /chat and always ends with
// {"done":true}. The connection stays open for further questions.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The hijacked connection outlives r.Context(), so cancellation is
	// tied to the socket instead. readPump cancels ctx as soon as the
	// client goes away, even in the middle of a turn.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan chatRequest, wsQueueSize)
	go s.readPump(ctx, cancel, conn, requests)
	go pingPump(ctx, conn)

	for req := range requests {
		if err := s.streamToSocket(ctx, conn, &req); err != nil {
			s.log.Info("websocket write failed", zap.Error(err))
			return
		}
	}
}

// readPump decodes client messages into requests until the socket fails,
// then cancels the connection context and closes requests.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, requests chan<- chatRequest) {
	defer close(requests)
	defer cancel()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("websocket read ended", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		select {
		case requests <- req:
		case <-ctx.Done():
			return
		}
	}
}

// pingPump keeps idle sockets alive. WriteControl may run alongside the
// event writes.
func pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) streamToSocket(ctx context.Context, conn *websocket.Conn, req *chatRequest) error {
	if err := req.validate(); err != nil {
		if err := conn.WriteJSON(stream.Event{Token: err.Error(), Error: true}); err != nil {
			return err
		}
		return conn.WriteJSON(stream.Event{Done: true})
	}

	// A per-turn context stops this turn's provider if the socket write
	// fails halfway through.
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for event := range s.deps.Chat.Run(turnCtx, s.buildChat(turnCtx, req)) {
		if err := conn.WriteJSON(event); err != nil {
			return err
		}
		if event.Done {
			return nil
		}
	}
	return conn.WriteJSON(stream.Event{Done: true})
}
