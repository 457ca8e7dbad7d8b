package api

import (
	"context"
	"net/http"
	"net/url"
)

type instancesPayload struct {
	Instances []string `json:"workspace_instances"`
	PageCount int      `json:"page_count"`
}

// ListInstances returns the caller's instance IDs and the page count
// (1 when the list was not paginated). Terminated instances are omitted
// unless includeTerminated is set.
func (c *Client) ListInstances(ctx context.Context, includeTerminated bool, p Pagination) ([]string, int, error) {
	query := url.Values{}
	if includeTerminated {
		query.Set("include_terminated", "")
	}
	addPagination(query, p)

	var payload instancesPayload
	if err := c.do(ctx, "list instances", http.MethodGet, "/instances", query, nil, &payload); err != nil {
		return nil, 0, err
	}
	pageCount := payload.PageCount
	if pageCount < 1 {
		pageCount = 1
	}
	return payload.Instances, pageCount, nil
}

// GetInstanceInfo returns the detail record for one instance, including its
// status and, when connectable, the forwarding block and host keys.
func (c *Client) GetInstanceInfo(ctx context.Context, instanceID string) (*InstanceInfo, error) {
	if instanceID == "" {
		return nil, NewValidationError("get instance", "instance ID is required")
	}
	var info InstanceInfo
	if err := c.do(ctx, "get instance", http.MethodGet, "/instance/"+url.PathEscape(instanceID), nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type newInstanceRequest struct {
	SSHKey  string `json:"sshkey,omitempty"`
	VPN     bool   `json:"vpn,omitempty"`
	Reserve bool   `json:"reserve"`
	EURL    string `json:"eurl,omitempty"`
	ExpireD int    `json:"expire_d,omitempty"`
}

// RequestInstance provisions a new instance from a deployment ID or a
// workspace type name. Deployment contention surfaces as a busy-deployment
// error unless opts.Reserve is set, in which case the service queues the
// request and the outcome is observed through later status polling.
//
// No retry happens here.
func (c *Client) RequestInstance(ctx context.Context, deploymentOrType string, opts InstanceOptions) (*NewInstance, error) {
	if deploymentOrType == "" {
		return nil, NewValidationError("request instance", "deployment ID or workspace type is required")
	}
	body := newInstanceRequest{
		SSHKey:  opts.SSHPublicKey,
		VPN:     opts.VPN,
		Reserve: opts.Reserve,
		EURL:    opts.EventURL,
		ExpireD: opts.ExpireDuration,
	}
	var out NewInstance
	if err := c.do(ctx, "request instance", http.MethodPost, "/new/"+url.PathEscape(deploymentOrType), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TerminateInstance requests termination of an instance. A busy-instance
// error means the service is mid way through another state change; callers
// decide whether to retry.
func (c *Client) TerminateInstance(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return NewValidationError("terminate instance", "instance ID is required")
	}
	return c.do(ctx, "terminate instance", http.MethodPost, "/terminate/"+url.PathEscape(instanceID), nil, nil, nil)
}
