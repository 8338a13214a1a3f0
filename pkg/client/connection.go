package client

import (
	"context"
	"encoding/json"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
	"github.com/odvcencio/extbridge/pkg/messaging"
)

// Connection is a peer connection message as routed by the relay. FromToken
// is the requester's port name and ToToken the accepter's.
type Connection struct {
	What      string          `json:"what"`
	ID        string          `json:"id,omitempty"`
	From      string          `json:"from,omitempty"`
	FromToken string          `json:"fromToken,omitempty"`
	To        string          `json:"to,omitempty"`
	ToToken   string          `json:"toToken,omitempty"`
	TabID     int             `json:"tabId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DecodeConnection parses a message from Framework.
func DecodeConnection(raw json.RawMessage) (Connection, error) {
	var c Connection
	if err := json.Unmarshal(raw, &c); err != nil {
		return Connection{}, exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "decode connection message")
	}
	if c.What == "" {
		return Connection{}, exterrors.New(exterrors.ErrCodeInvalidInput, "connection message has no what")
	}
	return c, nil
}

// Peer returns the token of the other end of conn as seen from this client.
func (c *Client) Peer(conn Connection) string {
	if conn.FromToken == c.name {
		return conn.ToToken
	}
	return conn.FromToken
}

// RequestConnection asks every port for a connection. from names the
// requesting component and to the component it wants to reach.
func (c *Client) RequestConnection(ctx context.Context, id, from, to string, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return c.postConnection(ctx, Connection{
		What:      messaging.WhatConnectionRequested,
		ID:        id,
		From:      from,
		FromToken: c.name,
		To:        to,
		Payload:   raw,
	})
}

// AcceptConnection answers a connectionRequested message.
func (c *Client) AcceptConnection(ctx context.Context, req Connection) error {
	return c.answer(ctx, messaging.WhatConnectionAccepted, req)
}

// RefuseConnection declines a connectionRequested message.
func (c *Client) RefuseConnection(ctx context.Context, req Connection) error {
	return c.answer(ctx, messaging.WhatConnectionRefused, req)
}

func (c *Client) answer(ctx context.Context, what string, req Connection) error {
	return c.postConnection(ctx, Connection{
		What:      what,
		ID:        req.ID,
		From:      req.From,
		FromToken: req.FromToken,
		To:        req.To,
		ToToken:   c.name,
	})
}

// SendConnectionMessage delivers payload to the other end of conn.
func (c *Client) SendConnectionMessage(ctx context.Context, conn Connection, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return c.postConnection(ctx, Connection{
		What:      messaging.WhatConnectionMessage,
		ID:        conn.ID,
		FromToken: conn.FromToken,
		ToToken:   conn.ToToken,
		Payload:   raw,
	})
}

// CheckConnection pings the other end of conn. A vanished peer comes back
// as connectionBroken.
func (c *Client) CheckConnection(ctx context.Context, conn Connection) error {
	return c.postConnection(ctx, Connection{
		What:      messaging.WhatConnectionCheck,
		ID:        conn.ID,
		FromToken: conn.FromToken,
		ToToken:   conn.ToToken,
	})
}

// BreakConnection tells the other end of conn that it is over.
func (c *Client) BreakConnection(ctx context.Context, conn Connection) error {
	return c.postConnection(ctx, Connection{
		What:      messaging.WhatConnectionBroken,
		ID:        conn.ID,
		FromToken: conn.FromToken,
		ToToken:   conn.ToToken,
	})
}

func (c *Client) postConnection(ctx context.Context, msg Connection) error {
	return c.Post(ctx, messaging.VAPIChannel, msg)
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "encode connection payload")
	}
	return raw, nil
}
