package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/austinkregel/local-media/musicd/internal/config"
	"github.com/austinkregel/local-media/musicd/internal/pipeline"
)

// Server handles IPC communication with local clients over a Unix domain
// socket: a request/response command channel (get/set the parameter
// bundle) plus the telemetry/beat-event push channel (spec.md §6).
type Server struct {
	socketPath string
	configMgr  *config.Manager
	pipeline   *pipeline.Pipeline

	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

// NewServer creates a new IPC server backed by the given config manager
// and analysis pipeline.
func NewServer(socketPath string, configMgr *config.Manager, p *pipeline.Pipeline) (*Server, error) {
	return &Server{
		socketPath: socketPath,
		configMgr:  configMgr,
		pipeline:   p,
		clients:    make(map[net.Conn]struct{}),
	}, nil
}

// Start starts the IPC server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	go s.acceptLoop(ctx)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		s.pipeline.Sink().Unsubscribe(conn)
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		remoteAddr := conn.RemoteAddr().String()
		log.Printf("[IPC] New client connection from %s", remoteAddr)

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		clientCount := len(s.clients)
		s.mu.Unlock()

		log.Printf("[IPC] Active clients: %d", clientCount)

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	defer func() {
		log.Printf("[IPC] Client disconnected: %s", remoteAddr)
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		s.pipeline.Sink().Unsubscribe(conn)
		log.Printf("[IPC] Active clients: %d", clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] Read error from %s: %v", remoteAddr, err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format from %s: %v", remoteAddr, err)
			s.sendError(conn, "invalid request format")
			continue
		}

		log.Printf("[IPC] Command: %s", req.Cmd)
		resp := s.handleRequest(conn, req)
		if resp.Success {
			log.Printf("[IPC] Response: success")
		} else {
			log.Printf("[IPC] Response: error=%q", resp.Error)
		}

		if err := s.sendResponse(conn, resp); err != nil {
			log.Printf("[IPC] Send error to %s: %v", remoteAddr, err)
			return
		}
	}
}

func (s *Server) handleRequest(conn net.Conn, req *Request) *Response {
	switch req.Cmd {
	case CmdGetParams:
		return s.handleGetParams()
	case CmdSetParams:
		return s.handleSetParams(req)
	case CmdSubscribeTelemetry:
		return s.handleSubscribeTelemetry(conn)
	case CmdUnsubscribeTelemetry:
		return s.handleUnsubscribeTelemetry(conn)
	default:
		return NewErrorResponse("unknown command")
	}
}

func (s *Server) handleGetParams() *Response {
	resp, err := NewSuccessResponse(GetParamsResponse{Params: s.pipeline.Bundle()})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// handleSetParams validates and, if valid, hot-reloads the parameter
// bundle (spec.md §7: whole bundle accepted or whole bundle rejected,
// with enumerated reasons via *params.ValidationError).
func (s *Server) handleSetParams(req *Request) *Response {
	var setReq SetParamsRequest
	if req.Data == nil {
		return NewErrorResponse("missing params payload")
	}
	if err := json.Unmarshal(req.Data, &setReq); err != nil {
		return NewErrorResponse("invalid setParams request: " + err.Error())
	}

	if err := s.pipeline.Reload(setReq.Params); err != nil {
		log.Printf("[IPC] setParams rejected: %v", err)
		return NewErrorResponse(err.Error())
	}
	if err := s.configMgr.ReloadParams(setReq.Params); err != nil {
		// Pipeline already accepted and is running with the new bundle;
		// a persistence failure here doesn't roll that back, it only
		// means the change won't survive a restart.
		log.Printf("[IPC] setParams accepted but failed to persist: %v", err)
	}

	resp, err := NewSuccessResponse(GetParamsResponse{Params: s.pipeline.Bundle()})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleSubscribeTelemetry(conn net.Conn) *Response {
	s.pipeline.Sink().Subscribe(conn)
	log.Printf("[IPC] Client subscribed to telemetry (total: %d)", s.pipeline.Sink().Count())
	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": true})
	return resp
}

func (s *Server) handleUnsubscribeTelemetry(conn net.Conn) *Response {
	s.pipeline.Sink().Unsubscribe(conn)
	log.Printf("[IPC] Client unsubscribed from telemetry (remaining: %d)", s.pipeline.Sink().Count())
	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": false})
	return resp
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func (s *Server) sendError(conn net.Conn, msg string) {
	s.sendResponse(conn, NewErrorResponse(msg))
}
