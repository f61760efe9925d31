package relaykit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaykit/relaykit/dispatch"
	"github.com/relaykit/relaykit/protocol"
	"github.com/relaykit/relaykit/session"
	"github.com/relaykit/relaykit/transport"
)

const (
	serverShutdownGrace = 10 * time.Second
	maxHTTPBody         = 10 * MB
)

// sessionNotifier routes progress notifications through the session.
type sessionNotifier struct{ sess *session.Session }

func (n sessionNotifier) Notify(ctx context.Context, method string, params any) error {
	return n.sess.Notify(ctx, method, params)
}

// Serve runs the server over an already-connected transport until the
// peer disconnects or ctx is cancelled. This is the building block the
// transport-specific Serve functions share.
func Serve(ctx context.Context, srv *Server, tr transport.Transport) error {
	if err := srv.Err(); err != nil {
		return err
	}
	d := srv.Dispatcher()

	var sess *session.Session
	sess = session.New(tr,
		session.WithHandler(session.HandlerFunc(
			func(ctx context.Context, req *protocol.Request) *protocol.Response {
				ctx = dispatch.ContextWithNotifier(ctx, sessionNotifier{sess})
				return d.Handle(ctx, req)
			})),
		session.WithErrorHandler(func(err error) {
			srv.logger.Warn("session error", F("error", err.Error()))
		}),
	)

	if err := sess.Start(ctx); err != nil {
		return err
	}
	srv.logger.Info("session started",
		F("session_id", sess.ID()),
		F("transport", tr.Kind()))
	sess.Wait()
	d.Subscriptions().Drop(sessionNotifier{sess})
	srv.logger.Info("session ended", F("session_id", sess.ID()))

	if contextDone(ctx) {
		return ctx.Err()
	}
	return nil
}

// ServeStdio runs the server over the process's stdin and stdout. It
// blocks until the peer closes the stream or ctx is cancelled.
func ServeStdio(ctx context.Context, srv *Server) error {
	return Serve(ctx, srv, transport.NewStdio())
}

// ServeWebSocket accepts WebSocket connections on addr at path /ws, one
// session per connection. It blocks until ctx is cancelled or the
// listener fails.
func ServeWebSocket(ctx context.Context, srv *Server, addr string) error {
	if err := srv.Err(); err != nil {
		return err
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			srv.logger.Warn("websocket upgrade failed", F("error", err.Error()))
			return
		}
		// Sessions outlive the upgrade request, so they ride the server
		// context rather than r.Context().
		if err := Serve(ctx, srv, transport.NewWebSocketConn(conn)); err != nil &&
			!errors.Is(err, context.Canceled) {
			srv.logger.Warn("websocket session failed", F("error", err.Error()))
		}
	})

	return runHTTPServer(ctx, &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// ServeHTTP runs the request-per-exchange HTTP binding on addr. It
// blocks until ctx is cancelled or the listener fails.
func ServeHTTP(ctx context.Context, srv *Server, addr string) error {
	if err := srv.Err(); err != nil {
		return err
	}
	return runHTTPServer(ctx, &http.Server{
		Addr:              addr,
		Handler:           srv.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// HTTPHandler returns the HTTP binding as a plain http.Handler so it can
// be mounted into an existing server. POST /rpc carries one frame per
// exchange; this binding cannot push notifications to the client.
func (s *Server) HTTPHandler() http.Handler {
	d := s.Dispatcher()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodPost:
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		msg, err := protocol.ParseFrame(body)
		if err != nil {
			writeJSON(w, protocol.NewErrorResponse(nil, asProtocolError(err)))
			return
		}
		if msg.Response != nil {
			// This binding has no outstanding requests a response could
			// correlate with.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		req := msg.Request
		if req.IsNotification() {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ctx := protocol.ContextWithRequestMeta(r.Context(), metaFromHeaders(r))
		writeJSON(w, d.Handle(ctx, req))
	})
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// metaFromHeaders carries credential headers into request metadata so the
// auth middleware sees them on this binding too.
func metaFromHeaders(r *http.Request) protocol.RequestMeta {
	meta := protocol.RequestMeta{}
	for _, h := range []string{"Authorization", "X-API-Key"} {
		if v := r.Header.Get(h); v != "" {
			meta[h] = v
		}
	}
	return meta
}

func writeJSON(w http.ResponseWriter, resp *protocol.Response) {
	frame, err := protocol.EncodeFrame(resp)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(frame))
}

func asProtocolError(err error) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}
	return protocol.NewParseError(err.Error())
}

// runHTTPServer serves until ctx is cancelled, then shuts down with a
// bounded grace period.
func runHTTPServer(ctx context.Context, s *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer cancel()
		_ = s.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
