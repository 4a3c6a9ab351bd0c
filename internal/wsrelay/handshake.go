package wsrelay

import (
	"encoding/json"
	"time"
)

// authTimeout bounds how long the server waits for the single handshake
// message before giving up on a connection.
const authTimeout = 10 * time.Second

// AuthPayload is the expected shape of a client's auth frame payload. Every
// endpoint accepts Token; gateways additionally accept RelayToken so the
// gateway relay's opaque-secret credential fits the same envelope.
type AuthPayload struct {
	Token      string `json:"token,omitempty"`
	RelayToken string `json:"relay_token,omitempty"`
}

// Authenticator validates the credential carried in an auth frame's payload
// and returns the authenticated principal id plus an organization id when
// applicable (empty for principals that are not org-scoped).
type Authenticator func(payload AuthPayload) (principalID, orgID string, err error)

// Handshake performs the two-message handshake common to every relay
// endpoint: await exactly one "auth" frame, validate it via authenticate,
// and reply auth_ok/auth_error. It does not register the connection in any
// pool — callers do that after Handshake returns ok, once any
// endpoint-specific checks (e.g. "does this board exist") have also passed.
// config is optional and, when given, is echoed in the auth_ok payload's
// "config" field — used by the gateway endpoint to push heartbeat cadence.
func Handshake(c *Conn, authenticate Authenticator, config ...AuthOKConfig) (principalID, orgID string, ok bool) {
	env, err := c.ReadOne(time.Now().Add(authTimeout))
	if err != nil {
		c.CloseWithCode(CloseAuthFailed, "auth timeout or invalid frame")
		return "", "", false
	}

	if env.Type != TypeAuth {
		c.SendEnvelope(TypeAuthError, env.ID, ErrorPayload{Reason: "expected auth message"})
		c.CloseWithCode(CloseAuthFailed, "expected auth message")
		return "", "", false
	}

	var payload AuthPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.SendEnvelope(TypeAuthError, env.ID, ErrorPayload{Reason: "invalid auth payload"})
			c.CloseWithCode(CloseAuthFailed, "invalid auth payload")
			return "", "", false
		}
	}

	principalID, orgID, err = authenticate(payload)
	if err != nil {
		c.SendEnvelope(TypeAuthError, env.ID, ErrorPayload{Reason: err.Error()})
		c.CloseWithCode(CloseAuthFailed, "invalid credentials")
		return "", "", false
	}

	resp := AuthOKPayload{PrincipalID: principalID, OrgID: orgID}
	if len(config) > 0 {
		resp.Config = &config[0]
	}
	c.SendEnvelope(TypeAuthOK, env.ID, resp)
	return principalID, orgID, true
}
