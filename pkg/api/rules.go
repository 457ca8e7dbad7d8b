package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

type accessRulesPayload struct {
	Rules []AccessRule `json:"rules"`
}

// ListAccessRules returns the access rules of a deployment.
func (c *Client) ListAccessRules(ctx context.Context, deploymentID string) ([]AccessRule, error) {
	if deploymentID == "" {
		return nil, NewValidationError("list access rules", "deployment ID is required")
	}
	var payload accessRulesPayload
	err := c.do(ctx, "list access rules", http.MethodGet, "/deployment/"+url.PathEscape(deploymentID)+"/rules", nil, nil, &payload)
	if err != nil {
		return nil, err
	}
	return payload.Rules, nil
}

// CreateAccessRule grants capability to user on a deployment. An empty user
// applies the rule to all users.
func (c *Client) CreateAccessRule(ctx context.Context, deploymentID string, capability Capability, user string) error {
	if deploymentID == "" {
		return NewValidationError("create access rule", "deployment ID is required")
	}
	switch capability {
	case CapInstantiate, CapNoInstantiate:
	default:
		return NewValidationError("create access rule", fmt.Sprintf("unknown capability: %s", capability))
	}
	body := struct {
		Capability Capability `json:"capability"`
		User       string     `json:"user,omitempty"`
	}{Capability: capability, User: user}
	return c.do(ctx, "create access rule", http.MethodPost, "/deployment/"+url.PathEscape(deploymentID)+"/rule", nil, body, nil)
}

// DeleteAccessRule removes one access rule from a deployment.
func (c *Client) DeleteAccessRule(ctx context.Context, deploymentID string, ruleID int) error {
	if deploymentID == "" {
		return NewValidationError("delete access rule", "deployment ID is required")
	}
	path := "/deployment/" + url.PathEscape(deploymentID) + "/rule/" + strconv.Itoa(ruleID)
	return c.do(ctx, "delete access rule", http.MethodDelete, path, nil, nil, nil)
}

type firewallRulesPayload struct {
	Rules [][]string `json:"rules"`
}

// AddFirewallRule appends a source-address filter to an instance. The action
// must be one of ACCEPT, DROP, REJECT; anything else is rejected locally
// without a network call. An empty source matches all addresses.
func (c *Client) AddFirewallRule(ctx context.Context, instanceID, source string, action FirewallAction) error {
	if instanceID == "" {
		return NewValidationError("add firewall rule", "instance ID is required")
	}
	switch action {
	case FirewallAccept, FirewallDrop, FirewallReject:
	default:
		return NewValidationError("add firewall rule", fmt.Sprintf("unknown firewall action: %s", action))
	}
	body := struct {
		Source string         `json:"src,omitempty"`
		Action FirewallAction `json:"action"`
	}{Source: source, Action: action}
	return c.do(ctx, "add firewall rule", http.MethodPost, "/firewall/"+url.PathEscape(instanceID), nil, body, nil)
}

// ListFirewallRules returns the firewall rules of an instance in order of
// application.
func (c *Client) ListFirewallRules(ctx context.Context, instanceID string) ([]FirewallRule, error) {
	if instanceID == "" {
		return nil, NewValidationError("list firewall rules", "instance ID is required")
	}
	var payload firewallRulesPayload
	err := c.do(ctx, "list firewall rules", http.MethodGet, "/firewall/"+url.PathEscape(instanceID), nil, nil, &payload)
	if err != nil {
		return nil, err
	}
	rules := make([]FirewallRule, 0, len(payload.Rules))
	for _, pair := range payload.Rules {
		if len(pair) != 2 {
			return nil, &Error{Kind: KindRemote, Op: "list firewall rules", Message: fmt.Sprintf("malformed rule entry: %v", pair)}
		}
		rules = append(rules, FirewallRule{Source: pair[0], Action: FirewallAction(pair[1])})
	}
	return rules, nil
}

// FlushFirewallRules removes all firewall rules from an instance.
func (c *Client) FlushFirewallRules(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return NewValidationError("flush firewall rules", "instance ID is required")
	}
	return c.do(ctx, "flush firewall rules", http.MethodDelete, "/firewall/"+url.PathEscape(instanceID), nil, nil, nil)
}
