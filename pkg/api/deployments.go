package api

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

type deploymentsPayload struct {
	Deployments map[string]Deployment `json:"workspace_deployments"`
	PageCount   int                   `json:"page_count"`
}

// ListDeployments returns deployments matching q, sorted by ID for stable
// iteration, and the page count (1 when the list was not paginated).
func (c *Client) ListDeployments(ctx context.Context, q DeploymentQuery) ([]Deployment, int, error) {
	query := url.Values{}
	if q.Query != "" {
		query.Set("q", q.Query)
	}
	if len(q.Types) > 0 {
		query.Set("types", strings.Join(q.Types, ","))
	}
	if q.MaxLen > 0 {
		query.Set("maxlen", strconv.Itoa(q.MaxLen))
	}
	addPagination(query, Pagination{Page: q.Page, MaxPerPage: q.MaxPerPage})

	var payload deploymentsPayload
	if err := c.do(ctx, "list deployments", http.MethodGet, "/deployments", query, nil, &payload); err != nil {
		return nil, 0, err
	}
	deployments := make([]Deployment, 0, len(payload.Deployments))
	for id, d := range payload.Deployments {
		d.ID = id
		deployments = append(deployments, d)
	}
	sort.Slice(deployments, func(i, j int) bool { return deployments[i].ID < deployments[j].ID })
	pageCount := payload.PageCount
	if pageCount < 1 {
		pageCount = 1
	}
	return deployments, pageCount, nil
}

// GetDeploymentInfo returns the detail record for one deployment.
func (c *Client) GetDeploymentInfo(ctx context.Context, deploymentID string) (*Deployment, error) {
	if deploymentID == "" {
		return nil, NewValidationError("get deployment", "deployment ID is required")
	}
	var d Deployment
	if err := c.do(ctx, "get deployment", http.MethodGet, "/deployment/"+url.PathEscape(deploymentID), nil, nil, &d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		// The detail payload does not always echo the identifier.
		d.ID = deploymentID
	}
	return &d, nil
}

// addPagination forwards pagination parameters verbatim. An absent
// MaxPerPage means the full, unpaginated list.
func addPagination(query url.Values, p Pagination) {
	if p.MaxPerPage <= 0 {
		return
	}
	query.Set("max_per_page", strconv.Itoa(p.MaxPerPage))
	if p.Page > 0 {
		query.Set("page", strconv.Itoa(p.Page))
	}
}
