package ingress

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/rpc/jsonrpc"
	"net/url"
	"strings"
	"time"
)

// Client pushes encounter events to the ingress over JSON-RPC.
// A client with no address is a no-op.
type Client struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration
}

func NewClient(baseURL string) *Client {
	return &Client{
		addr:        resolveRPCAddr(baseURL),
		dialTimeout: 2 * time.Second,
		callTimeout: 2 * time.Second,
	}
}

// TurnEvent announces that an encounter moved to a new active participant.
type TurnEvent struct {
	EncounterID       string `json:"encounter_id"`
	RunID             string `json:"run_id"`
	ActingParticipant string `json:"acting_participant"`
	ActiveParticipant string `json:"active_participant"`
	Message           string `json:"message"`
	Version           int64  `json:"version"`
}

// SendRequest represents the request body for internal event delivery.
type SendRequest struct {
	SessionID string                 `json:"session_id"`
	Event     map[string]interface{} `json:"event"`
}

// SendResponse represents the response for internal event delivery.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

// Enabled reports whether an ingress address is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.addr != ""
}

// NotifyTurn delivers a "turn" event keyed by the encounter id.
func (c *Client) NotifyTurn(ctx context.Context, evt TurnEvent) error {
	if !c.Enabled() {
		return nil
	}

	req := &SendRequest{
		SessionID: evt.EncounterID,
		Event: map[string]interface{}{
			"type":               "turn",
			"encounter_id":       evt.EncounterID,
			"run_id":             evt.RunID,
			"acting_participant": evt.ActingParticipant,
			"active_participant": evt.ActiveParticipant,
			"message":            evt.Message,
			"version":            evt.Version,
		},
	}

	var resp SendResponse
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.call(ctx, "Ingress.PushEvent", req, &resp); err != nil {
		return fmt.Errorf("failed to push turn event to ingress: %w", err)
	}
	if !resp.OK {
		log.Printf("WARN: ingress rpc returned ok=false (delivered=%v)", resp.Delivered)
		return fmt.Errorf("ingress rpc returned ok=false")
	}

	return nil
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.callTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.callTimeout))
	}

	client := jsonrpc.NewClient(conn)
	call := client.Go(method, args, reply, nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return call.Error
	}
}

func resolveRPCAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return raw
}
