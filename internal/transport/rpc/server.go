package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/xiaot623/semitae/internal/domain"
	"github.com/xiaot623/semitae/internal/service"
)

// ServiceName is the JSON-RPC service name, so methods are "Encounter.Create" etc.
const ServiceName = "Encounter"

// Server exposes the encounter operations over JSON-RPC.
type Server struct {
	mu        sync.Mutex
	listener  net.Listener
	rpcServer *rpc.Server
	done      chan struct{}
	closeOnce sync.Once
}

const acceptRetryDelay = 50 * time.Millisecond

// NewServer creates a new RPC server bound to the encounter service.
func NewServer(svc *service.Service) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address. An empty
// address leaves the gateway disabled and returns immediately.
func (s *Server) Start(addr string) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.closeOnce.Do(func() { close(s.done) })
				return nil
			}
			log.Printf("WARN: RPC accept error: %v", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// ServeConn serves a single connection and blocks until it closes.
func (s *Server) ServeConn(conn net.Conn) {
	s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
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

// Handler implements the encounter RPC methods. Domain failures are
// returned in the reply's Error field; the call error is reserved for
// malformed requests.
type Handler struct {
	service *service.Service
}

// GetEncounterArgs identifies an encounter.
type GetEncounterArgs struct {
	EncounterID string `json:"encounter_id"`
}

// SubmitInstructionArgs carries one turn.
type SubmitInstructionArgs struct {
	EncounterID string `json:"encounter_id"`
	PlayerID    string `json:"player_id"`
	Payload     string `json:"payload"`
}

// EncounterReply is returned by Create and Get.
type EncounterReply struct {
	Encounter *domain.Encounter `json:"encounter,omitempty"`
	Error     *domain.ErrorBody `json:"error,omitempty"`
}

// SubmitInstructionReply is returned by SubmitInstruction.
type SubmitInstructionReply struct {
	Result *domain.InstructionResult `json:"result,omitempty"`
	Error  *domain.ErrorBody         `json:"error,omitempty"`
}

// Create starts a new encounter.
func (h *Handler) Create(req *domain.CreateEncounterRequest, resp *EncounterReply) error {
	if req == nil {
		return errors.New("create request is required")
	}

	enc, err := h.service.CreateEncounter(context.Background(), *req)
	if err != nil {
		resp.Error = domain.ToErrorBody(err)
		return nil
	}
	resp.Encounter = enc
	return nil
}

// Get returns an encounter.
func (h *Handler) Get(req *GetEncounterArgs, resp *EncounterReply) error {
	if req == nil {
		return errors.New("get request is required")
	}

	enc, err := h.service.GetEncounter(context.Background(), req.EncounterID)
	if err != nil {
		resp.Error = domain.ToErrorBody(err)
		return nil
	}
	resp.Encounter = enc
	return nil
}

// SubmitInstruction runs one turn of an encounter.
func (h *Handler) SubmitInstruction(req *SubmitInstructionArgs, resp *SubmitInstructionReply) error {
	if req == nil {
		return errors.New("submit request is required")
	}

	result, err := h.service.SubmitInstruction(context.Background(), req.EncounterID, domain.SubmitInstructionRequest{
		PlayerID: req.PlayerID,
		Payload:  req.Payload,
	})
	if err != nil {
		resp.Error = domain.ToErrorBody(err)
		return nil
	}
	resp.Result = result
	return nil
}
