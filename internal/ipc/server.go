package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"notesync/internal/daemon"
	"notesync/internal/logging"
	"notesync/internal/logs"
	"notesync/internal/services"
)

// ServiceName is the JSON-RPC receiver name.
const ServiceName = "NoteSync"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server
	shutdown  func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithShutdown lets clients stop the daemon process through the Shutdown call.
func WithShutdown(fn func()) ServerOption {
	return func(s *Server) { s.shutdown = fn }
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	srv := &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.rpcServer = rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: serverCtx, shutdown: srv.shutdown}
	if err := srv.rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return srv, nil
}

// Serve starts accepting RPC connections until Close is called.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

// requestLogger tags one mutating call with a fresh correlation id.
func (s *service) requestLogger() *slog.Logger {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	return logging.WithContext(ctx, s.logger)
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	if s.shutdown == nil {
		resp.Message = "shutdown not supported by this server"
		return nil
	}
	s.requestLogger().Info("shutdown requested via IPC", logging.String(logging.FieldEventType, "daemon_shutdown"))
	resp.Accepted = true
	resp.Message = "daemon stopping"
	// Reply before the listener closes.
	go s.shutdown()
	return nil
}

func (s *service) SyncStart(req SyncStartRequest, resp *SyncStartResponse) error {
	logger := s.requestLogger()
	started, message, err := s.daemon.StartSync(s.ctx)
	resp.Started = started
	resp.Message = message
	if err != nil {
		logging.WarnWithContext(logger, "sync request rejected", "sync_request_rejected",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no sync session was started"),
			logging.String(logging.FieldErrorHint, "check that the daemon is running"),
		)
		return err
	}
	logger.Info("sync requested via IPC",
		logging.String(logging.FieldEventType, "sync_requested"),
		logging.Bool("started", started),
	)
	if started && req.Wait {
		s.daemon.WaitSync()
		resp.Result = FromResult(s.daemon.Status(s.ctx).Sync.LastResult)
	}
	return nil
}

func (s *service) SyncCancel(_ SyncCancelRequest, resp *SyncCancelResponse) error {
	resp.Cancelled, resp.Message = s.daemon.CancelSync(s.ctx)
	s.requestLogger().Info("sync cancel requested via IPC",
		logging.String(logging.FieldEventType, "sync_cancel_requested"),
		logging.Bool("cancelled", resp.Cancelled),
	)
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	fromStatus(s.daemon.Status(s.ctx), resp)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Match:  req.Match,
		Follow: req.Follow,
		Wait:   wait,
	})
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	*resp = DatabaseHealthResponse(health)
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
