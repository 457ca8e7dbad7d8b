package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) addonPath(addon AddOn, instanceID string) string {
	return "/addon/" + string(addon) + "/" + url.PathEscape(instanceID)
}

func (c *Client) activateAddOn(ctx context.Context, addon AddOn, instanceID string, body any) error {
	if instanceID == "" {
		return NewValidationError("activate "+string(addon), "instance ID is required")
	}
	return c.do(ctx, "activate "+string(addon), http.MethodPost, c.addonPath(addon, instanceID), nil, body, nil)
}

func (c *Client) addOnStatus(ctx context.Context, addon AddOn, instanceID string) (*AddOnStatus, error) {
	if instanceID == "" {
		return nil, NewValidationError("status "+string(addon), "instance ID is required")
	}
	var status AddOnStatus
	if err := c.do(ctx, "status "+string(addon), http.MethodGet, c.addonPath(addon, instanceID), nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) deactivateAddOn(ctx context.Context, addon AddOn, instanceID string) error {
	if instanceID == "" {
		return NewValidationError("deactivate "+string(addon), "instance ID is required")
	}
	return c.do(ctx, "deactivate "+string(addon), http.MethodDelete, c.addonPath(addon, instanceID), nil, nil, nil)
}

// ActivateCam starts the camera add-on on an instance.
func (c *Client) ActivateCam(ctx context.Context, instanceID string) error {
	return c.activateAddOn(ctx, AddOnCam, instanceID, nil)
}

// CamStatus returns the camera add-on state.
func (c *Client) CamStatus(ctx context.Context, instanceID string) (*AddOnStatus, error) {
	return c.addOnStatus(ctx, AddOnCam, instanceID)
}

// DeactivateCam stops the camera add-on.
func (c *Client) DeactivateCam(ctx context.Context, instanceID string) error {
	return c.deactivateAddOn(ctx, AddOnCam, instanceID)
}

type camSnapshotPayload struct {
	Success bool   `json:"success"`
	Format  string `json:"format"`
	Coding  string `json:"coding"`
	Data    string `json:"data"`
}

// CamSnapshot fetches one frame from camera index on an instance with the
// cam add-on active. It returns the raw image bytes and the format name as
// reported by the service; no image conversion happens here.
func (c *Client) CamSnapshot(ctx context.Context, instanceID string, camera int) ([]byte, string, error) {
	const op = "cam snapshot"
	if instanceID == "" {
		return nil, "", NewValidationError(op, "instance ID is required")
	}
	path := c.addonPath(AddOnCam, instanceID) + "/" + strconv.Itoa(camera) + "/img"
	var payload camSnapshotPayload
	if err := c.do(ctx, op, http.MethodGet, path, nil, nil, &payload); err != nil {
		return nil, "", err
	}
	if !payload.Success {
		return nil, "", &Error{Kind: KindRemote, Op: op, Message: "camera image not available"}
	}
	switch payload.Coding {
	case "", "base64":
	default:
		return nil, "", &Error{Kind: KindRemote, Op: op, Message: fmt.Sprintf("unknown image coding: %s", payload.Coding)}
	}
	img, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, "", &Error{Kind: KindRemote, Op: op, Message: "malformed image data", Err: err}
	}
	return img, payload.Format, nil
}

// ActivateMistyProxy starts the Misty HTTP proxy add-on.
func (c *Client) ActivateMistyProxy(ctx context.Context, instanceID string) error {
	return c.activateAddOn(ctx, AddOnMistyProxy, instanceID, nil)
}

// MistyProxyStatus returns the Misty proxy state. Once active, URLs holds
// the proxy endpoints, https first.
func (c *Client) MistyProxyStatus(ctx context.Context, instanceID string) (*AddOnStatus, error) {
	return c.addOnStatus(ctx, AddOnMistyProxy, instanceID)
}

// DeactivateMistyProxy stops the Misty proxy add-on.
func (c *Client) DeactivateMistyProxy(ctx context.Context, instanceID string) error {
	return c.deactivateAddOn(ctx, AddOnMistyProxy, instanceID)
}

// ActivateDrive starts the drive add-on.
func (c *Client) ActivateDrive(ctx context.Context, instanceID string) error {
	return c.activateAddOn(ctx, AddOnDrive, instanceID, nil)
}

// DriveStatus returns the drive add-on state.
func (c *Client) DriveStatus(ctx context.Context, instanceID string) (*AddOnStatus, error) {
	return c.addOnStatus(ctx, AddOnDrive, instanceID)
}

// DeactivateDrive stops the drive add-on.
func (c *Client) DeactivateDrive(ctx context.Context, instanceID string) error {
	return c.deactivateAddOn(ctx, AddOnDrive, instanceID)
}

// SendDriveCommand sends one movement command to an instance with the
// drive add-on active. The command string is passed through verbatim;
// the set of accepted commands depends on the workspace type.
func (c *Client) SendDriveCommand(ctx context.Context, instanceID, command string) error {
	const op = "drive command"
	if instanceID == "" {
		return NewValidationError(op, "instance ID is required")
	}
	if command == "" {
		return NewValidationError(op, "drive command is required")
	}
	body := struct {
		Command string `json:"command"`
	}{Command: command}
	return c.do(ctx, op, http.MethodPost, c.addonPath(AddOnDrive, instanceID)+"/tx", nil, body, nil)
}

// ActivateVNC starts the VNC add-on.
func (c *Client) ActivateVNC(ctx context.Context, instanceID string) error {
	return c.activateAddOn(ctx, AddOnVNC, instanceID, nil)
}

// VNCStatus returns the VNC add-on state.
func (c *Client) VNCStatus(ctx context.Context, instanceID string) (*AddOnStatus, error) {
	return c.addOnStatus(ctx, AddOnVNC, instanceID)
}

// DeactivateVNC stops the VNC add-on.
func (c *Client) DeactivateVNC(ctx context.Context, instanceID string) error {
	return c.deactivateAddOn(ctx, AddOnVNC, instanceID)
}
