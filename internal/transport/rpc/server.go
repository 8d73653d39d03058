// Package rpc exposes the chat intents over JSON-RPC for scripts and other
// local clients.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/logger"
	"github.com/xiaot623/gogo/chatbot/internal/service"
)

// Server accepts JSON-RPC connections for the Chat service.
type Server struct {
	mu        sync.Mutex
	listener  net.Listener
	rpcServer *rpc.Server
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the chat service.
func NewServer(svc *service.Service) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("Chat", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown closes it.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			logger.Log.Errorf("RPC accept error: %v", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the Chat RPC methods.
type Handler struct {
	service *service.Service
}

// Empty is the argument of methods that take none.
type Empty struct{}

// SubmitArgs identifies the session and carries the utterance.
type SubmitArgs struct {
	SessionID int64  `json:"session_id"`
	Content   string `json:"content"`
	ModelID   string `json:"model_id,omitempty"`
}

// RetryArgs identifies the session whose last message needs a reply.
type RetryArgs struct {
	SessionID int64  `json:"session_id"`
	ModelID   string `json:"model_id,omitempty"`
}

// ExportArgs identifies the session to export.
type ExportArgs struct {
	SessionID int64 `json:"session_id"`
}

// State returns the UI snapshot.
func (h *Handler) State(req *Empty, resp *domain.StateResponse) error {
	if resp != nil {
		*resp = h.service.State()
	}
	return nil
}

// Submit runs one conversation turn. A failed turn is still returned, with
// the error in Turn.Error.
func (h *Handler) Submit(req *SubmitArgs, resp *domain.Turn) error {
	if req == nil {
		return errors.New("submit request is required")
	}
	if req.SessionID <= 0 {
		return errors.New("session_id is required")
	}

	turn, err := h.service.SubmitUtterance(context.Background(), req.SessionID, req.Content, req.ModelID)
	return fillTurn(turn, err, resp)
}

// Retry asks the model again for the last unanswered user message.
func (h *Handler) Retry(req *RetryArgs, resp *domain.Turn) error {
	if req == nil {
		return errors.New("retry request is required")
	}
	if req.SessionID <= 0 {
		return errors.New("session_id is required")
	}

	turn, err := h.service.RetryReply(context.Background(), req.SessionID, req.ModelID)
	return fillTurn(turn, err, resp)
}

// Export returns the export document of a session.
func (h *Handler) Export(req *ExportArgs, resp *domain.SessionExport) error {
	if req == nil {
		return errors.New("export request is required")
	}

	doc, err := h.service.ExportSession(context.Background(), req.SessionID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *doc
	}
	return nil
}

func fillTurn(turn *domain.Turn, err error, resp *domain.Turn) error {
	if turn == nil {
		return err
	}
	if resp != nil {
		*resp = *turn
	}
	return nil
}
