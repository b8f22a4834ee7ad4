// Package gateway is the NATS request/reply client for on-demand member
// state. The gateway process that emits presence and voice events also
// answers these queries; startup reconciliation is the only caller.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Request/reply subjects served by the gateway.
const (
	SubjectPresenceState = "gateway.state.presence"
	SubjectVoiceState    = "gateway.state.voice"
)

type Client struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewClient(nc *nats.Conn, timeout time.Duration) *Client {
	return &Client{nc: nc, timeout: timeout}
}

type stateRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

type presenceReply struct {
	GuildKnown bool   `json:"guild_known"`
	Status     string `json:"status"`
}

type voiceReply struct {
	GuildKnown bool   `json:"guild_known"`
	ChannelID  string `json:"channel_id"`
}

// PresenceStatus asks the gateway for a member's current presence status.
// guildKnown is false when the gateway no longer serves the guild.
func (c *Client) PresenceStatus(ctx context.Context, guildID, userID string) (string, bool, error) {
	var reply presenceReply
	if err := c.request(ctx, SubjectPresenceState, guildID, userID, &reply); err != nil {
		return "", false, err
	}
	return reply.Status, reply.GuildKnown, nil
}

// VoiceChannel asks the gateway which voice channel a member currently
// occupies. An empty channel id means not connected.
func (c *Client) VoiceChannel(ctx context.Context, guildID, userID string) (string, bool, error) {
	var reply voiceReply
	if err := c.request(ctx, SubjectVoiceState, guildID, userID, &reply); err != nil {
		return "", false, err
	}
	return reply.ChannelID, reply.GuildKnown, nil
}

func (c *Client) request(ctx context.Context, subject, guildID, userID string, out any) error {
	payload, err := json.Marshal(stateRequest{GuildID: guildID, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal state request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return nil
}
