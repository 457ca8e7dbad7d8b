package api

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/url"
)

// RevokeToken revokes the API token identified by the hex-encoded SHA-256
// digest of its raw bytes.
func (c *Client) RevokeToken(ctx context.Context, sha256Hex string) error {
	const op = "revoke token"
	if len(sha256Hex) != 64 {
		return NewValidationError(op, "token digest must be 64 hex characters")
	}
	if _, err := hex.DecodeString(sha256Hex); err != nil {
		return NewValidationError(op, "token digest must be 64 hex characters")
	}
	return c.do(ctx, op, http.MethodPost, "/revoke/"+url.PathEscape(sha256Hex), nil, nil, nil)
}

// PurgeTokens revokes every API token of the calling user, including the
// one used for this call.
func (c *Client) PurgeTokens(ctx context.Context) error {
	return c.do(ctx, "purge tokens", http.MethodPost, "/purge", nil, nil, nil)
}

type vpnPayload struct {
	VPNClient
	Success bool `json:"success"`
}

// CreateVPNClient issues new VPN client credentials for an instance that
// was provisioned with VPN support.
func (c *Client) CreateVPNClient(ctx context.Context, instanceID string) (*VPNClient, error) {
	const op = "create vpn client"
	if instanceID == "" {
		return nil, NewValidationError(op, "instance ID is required")
	}
	var payload vpnPayload
	if err := c.do(ctx, op, http.MethodPost, "/vpn/"+url.PathEscape(instanceID), nil, nil, &payload); err != nil {
		return nil, err
	}
	return &payload.VPNClient, nil
}

type reservationsPayload struct {
	Reservations []Reservation `json:"reservations"`
}

// ListReservations returns the caller's queued deployment reservations.
func (c *Client) ListReservations(ctx context.Context) ([]Reservation, error) {
	var payload reservationsPayload
	if err := c.do(ctx, "list reservations", http.MethodGet, "/reservations", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Reservations, nil
}

// CancelReservation removes one queued reservation.
func (c *Client) CancelReservation(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return NewValidationError("cancel reservation", "reservation ID is required")
	}
	return c.do(ctx, "cancel reservation", http.MethodDelete, "/reservation/"+url.PathEscape(reservationID), nil, nil, nil)
}
