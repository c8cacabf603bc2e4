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

	"vigil/internal/daemon"
	"vigil/internal/logging"
)

// Server answers daemon control calls as JSON-RPC on a Unix domain socket.
type Server struct {
	path    string
	logger  *slog.Logger
	ln      net.Listener
	handler *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the socket and registers the control service under the
// Vigil receiver name.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("daemon cannot be nil")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	ln, err := bindSocket(path)
	if err != nil {
		return nil, err
	}
	handler := rpc.NewServer()
	if err := handler.RegisterName("Vigil", &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		ln.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	srv := &Server{path: path, logger: logger, ln: ln, handler: handler}
	srv.ctx, srv.cancel = context.WithCancel(ctx)
	return srv, nil
}

// bindSocket removes any stale socket file left by a crashed daemon, then
// listens on a fresh one.
func bindSocket(path string) (net.Listener, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, nil
}

// Serve starts accepting RPC connections until Close or context cancel.
func (s *Server) Serve() {
	s.logger.Debug("control socket listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
			continue
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	s.handler.ServeCodec(jsonrpc.NewServerCodec(conn))
}

// Close stops accepting connections and waits for in-flight calls before
// removing the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun vigil stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("monitor start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "monitoring started"
	s.logger.Info("monitoring started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("monitor stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("monitoring stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	*resp = StatusResponse{
		Running:       status.Running,
		PID:           status.PID,
		StartedAt:     status.StartedAt,
		Stats:         status.Stats,
		Backlog:       status.Backlog,
		TrackedFiles:  status.Tracking.TrackedFiles,
		SeenGameDays:  status.Tracking.SeenGameDays,
		SignatureKeys: status.Tracking.SignatureKeys,
		SaveDir:       status.SaveDir,
		LockPath:      status.LockFilePath,
		HistoryDBPath: status.HistoryDBPath,
	}
	return nil
}

func (s *service) RecentOutcomes(req RecentOutcomesRequest, resp *RecentOutcomesResponse) error {
	rows, err := s.daemon.RecentOutcomes(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Rows = rows

	totals, err := s.daemon.HistoryStats(s.ctx)
	if err != nil {
		return err
	}
	resp.Totals = make(map[string]int, len(totals))
	for outcome, count := range totals {
		resp.Totals[string(outcome)] = count
	}
	return nil
}

func (s *service) Playthroughs(_ PlaythroughsRequest, resp *PlaythroughsResponse) error {
	summaries, err := s.daemon.PlaythroughSummaries(s.ctx)
	if err != nil {
		return err
	}
	resp.Playthroughs = summaries
	return nil
}

func (s *service) ResetTracking(_ ResetTrackingRequest, resp *ResetTrackingResponse) error {
	s.logger.Debug("tracking reset requested")
	if err := s.daemon.ResetTracking(); err != nil {
		return err
	}
	resp.Reset = true
	resp.Message = "tracking state cleared"
	s.logger.Info("tracking state reset via IPC",
		logging.String(logging.FieldEventType, "tracking_reset"))
	return nil
}

func (s *service) HistoryHealth(_ HistoryHealthRequest, resp *HistoryHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	*resp = health
	return err
}
