package governor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// agentPatch is one agent's heartbeat change, keyed by the agent's
// workspace path the way the gateway's own agent registry addresses it.
type agentPatch struct {
	WorkspacePath string  `json:"workspace_path"`
	AgentID       string  `json:"agent_id"`
	Every         *string `json:"every,omitempty"`
}

type patchRequest struct {
	Patches []agentPatch `json:"patches"`
}

// GatewayClient pushes a batched heartbeat config change to a gateway's
// control-plane HTTP endpoint. Grounded on
// original_source/.../auto_heartbeat_governor.py's
// OpenClawGatewayControlPlane.patch_agent_heartbeats: one POST per gateway,
// patching is idempotent, failures are logged and never retried in-tick.
type GatewayClient struct {
	httpClient *http.Client
}

// NewGatewayClient creates a GatewayClient with a bounded per-request
// timeout, since a single slow or unreachable gateway must never stall the
// rest of the tick's dispatch fan-out.
func NewGatewayClient() *GatewayClient {
	return &GatewayClient{httpClient: &http.Client{Timeout: 5 * time.Second}}
}

// PatchHeartbeats POSTs the batched patch set to baseURL + "/control/heartbeats".
func (c *GatewayClient) PatchHeartbeats(ctx context.Context, baseURL string, patches []agentPatch) error {
	body, err := json.Marshal(patchRequest{Patches: patches})
	if err != nil {
		return fmt.Errorf("governor: marshal patch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/control/heartbeats", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("governor: build patch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("governor: dispatch patch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("governor: gateway returned status %d", resp.StatusCode)
	}
	return nil
}
