package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/genstudio/server/internal/workflow"
)

// ─────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────

var (
	// ErrEngineUnreachable: transport-level failure reaching the engine.
	ErrEngineUnreachable = errors.New("engine unreachable")

	// ErrConnectionLost: the notification stream dropped before a
	// completion message arrived. Ambiguous — the job may have finished
	// server-side, so callers should try the result index once.
	ErrConnectionLost = errors.New("engine notification stream lost")

	// ErrTimedOut: the completion wait exceeded its budget.
	ErrTimedOut = errors.New("timed out waiting for engine completion")
)

// RejectedError reports a non-success status from the submission endpoint.
// The body is surfaced verbatim; a rejected job is usually a malformed
// template, not a transient fault.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("engine rejected job (HTTP %d): %s", e.Status, e.Body)
}

// ─────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────

// JobHandle identifies one in-flight submission: the engine-issued prompt
// id plus the client-minted correlation id scoping the notification
// subscription.
type JobHandle struct {
	PromptID string
	ClientID string
}

// ImageRef is one output file declared by the engine's history index.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ModelOptions lists the checkpoint/VAE names the engine has loaded.
type ModelOptions struct {
	Checkpoints []string `json:"checkpoints"`
	VAEs        []string `json:"vaes"`
}

// Client owns all network I/O to the generation engine: submission,
// completion wait and result-index queries. Pure protocol, no business
// rules.
type Client struct {
	addr   string
	http   *http.Client
	dialer *websocket.Dialer
}

// NewClient creates a client for the engine at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		addr:   addr,
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: websocket.DefaultDialer,
	}
}

// Submit POSTs the patched job with a freshly minted correlation id and
// returns the handle needed for the completion wait and history query.
func (c *Client) Submit(ctx context.Context, graph workflow.Graph) (JobHandle, error) {
	clientID := uuid.NewString()

	payload, err := json.Marshal(map[string]any{
		"prompt":    graph,
		"client_id": clientID,
	})
	if err != nil {
		return JobHandle{}, fmt.Errorf("marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"http://"+c.addr+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return JobHandle{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return JobHandle{}, fmt.Errorf("%w at %s: %v", ErrEngineUnreachable, c.addr, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return JobHandle{}, &RejectedError{Status: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.PromptID == "" {
		return JobHandle{}, &RejectedError{Status: resp.StatusCode, Body: string(body)}
	}

	log.Debug().Str("prompt_id", out.PromptID).Str("client_id", clientID).Msg("job submitted")
	return JobHandle{PromptID: out.PromptID, ClientID: clientID}, nil
}

// executing is the one push message this client acts on. node == nil with
// a matching prompt_id is the engine's "graph execution finished" signal.
type executing struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
	} `json:"data"`
}

// AwaitCompletion opens the notification stream scoped to the handle's
// correlation id and blocks until the completion message for this job
// arrives, the timeout elapses, the socket drops, or ctx is cancelled.
// The connection is released on every exit path.
func (c *Client) AwaitCompletion(ctx context.Context, h JobHandle, timeout time.Duration) error {
	u := url.URL{
		Scheme:   "ws",
		Host:     c.addr,
		Path:     "/ws",
		RawQuery: "clientId=" + url.QueryEscape(h.ClientID),
	}

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrEngineUnreachable, c.addr, err)
	}
	defer conn.Close()

	// Closing the connection is the only way to interrupt a blocked read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return fmt.Errorf("%w after %s (prompt %s)", ErrTimedOut, timeout, h.PromptID)
			}
			return fmt.Errorf("%w (prompt %s): %v", ErrConnectionLost, h.PromptID, err)
		}
		if msgType != websocket.TextMessage {
			// Binary preview frames are interleaved on the same socket.
			continue
		}

		var msg executing
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "executing" {
			continue
		}
		// Completion signals for other clients' jobs must never count,
		// even with node == null.
		if msg.Data.Node == nil && msg.Data.PromptID == h.PromptID {
			log.Debug().Str("prompt_id", h.PromptID).Msg("engine signalled completion")
			return nil
		}
	}
}

// History queries the structured result index for a finished prompt and
// returns its declared output files (empty if the engine knows nothing).
func (c *Client) History(ctx context.Context, promptID string) ([]ImageRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://"+c.addr+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrEngineUnreachable, c.addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("history query failed (HTTP %d): %s", resp.StatusCode, body)
	}

	var hist map[string]struct {
		Outputs map[string]struct {
			Images []ImageRef `json:"images"`
			Gifs   []ImageRef `json:"gifs"` // video save nodes report here
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	entry, ok := hist[promptID]
	if !ok {
		return nil, nil
	}
	var refs []ImageRef
	for _, out := range entry.Outputs {
		refs = append(refs, out.Images...)
		refs = append(refs, out.Gifs...)
	}
	return refs, nil
}

// ObjectInfo asks the engine which checkpoint/VAE names are available so
// callers can offer valid model selections.
func (c *Client) ObjectInfo(ctx context.Context) (*ModelOptions, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://"+c.addr+"/object_info", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrEngineUnreachable, c.addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("object_info query failed (HTTP %d)", resp.StatusCode)
	}

	var info map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode object_info: %w", err)
	}

	return &ModelOptions{
		Checkpoints: extractChoices(info, "CheckpointLoaderSimple", "ckpt_name"),
		VAEs:        extractChoices(info, "VAELoader", "vae_name"),
	}, nil
}

// extractChoices digs out the enum choices for one node input. The engine
// reports enum-style fields as [choices, extra].
func extractChoices(info map[string]json.RawMessage, nodeType, field string) []string {
	raw, ok := info[nodeType]
	if !ok {
		return nil
	}
	var node struct {
		Input struct {
			Required map[string][]json.RawMessage `json:"required"`
		} `json:"input"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}
	spec, ok := node.Input.Required[field]
	if !ok || len(spec) == 0 {
		return nil
	}
	var choices []string
	if err := json.Unmarshal(spec[0], &choices); err != nil {
		return nil
	}
	return choices
}
