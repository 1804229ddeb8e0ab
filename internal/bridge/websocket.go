package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/engine/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Server exposes the controller over websocket at /ws and, when given a
// metrics handler, Prometheus metrics at /metrics.
type Server struct {
	ctrl     *Controller
	metrics  http.Handler
	log      engine.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a Server. metrics may be nil.
func NewServer(ctrl *Controller, metrics http.Handler, log engine.Logger) *Server {
	if log == nil {
		log = engine.NopLogger{}
	}
	return &Server{
		ctrl:    ctrl,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Editor webviews connect from vscode-webview:// origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info(fmt.Sprintf("listening on %s", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(fmt.Sprintf("websocket upgrade failed: %v", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	s.log.Debug(fmt.Sprintf("websocket client connected from %s", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sink := newQueueSink()
	unsubscribe := s.ctrl.Subscribe(sink)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, conn, sink)
	}()

	s.handle(ctx, protocol.SimpleCommand{Type: protocol.TypeRequestState}, sink)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug(fmt.Sprintf("websocket client disconnected: %v", err))
			break
		}
		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			_ = sink.Send(protocol.NewErrorEvent(err))
			continue
		}
		s.handle(ctx, cmd, sink)
	}
	cancel()
	<-done
}

func (s *Server) handle(ctx context.Context, cmd protocol.Command, sink Sink) {
	if err := s.ctrl.Handle(ctx, cmd, sink); err != nil {
		s.log.Warn(fmt.Sprintf("websocket: %s failed: %v", cmd.GetType(), err))
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sink *queueSink) {
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev := <-sink.events:
			payload, err := protocol.MarshalEvent(ev)
			if err != nil {
				s.log.Warn(fmt.Sprintf("marshal event: %v", err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Debug(fmt.Sprintf("websocket write failed: %v", err))
				return
			}
		}
	}
}
