package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
)

func TestAddFirewallRuleRejectsUnknownAction(t *testing.T) {
	client, cap := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": true}`))
		})

	err := client.AddFirewallRule(context.Background(), "inst-1", "", FirewallAction("ALLOW"))
	if !IsValidation(err) {
		t.Fatalf("expected validation error for ALLOW, got %v", err)
	}
	if cap.count() != 0 {
		t.Fatalf("invalid action must stay local, %d requests went out", cap.count())
	}

	for _, action := range []FirewallAction{FirewallAccept, FirewallDrop, FirewallReject} {
		if err := client.AddFirewallRule(context.Background(), "inst-1", "10.0.0.0/8", action); err != nil {
			t.Fatalf("AddFirewallRule(%s): %v", action, err)
		}
	}
	if cap.count() != 3 {
		t.Fatalf("expected 3 requests for valid actions, got %d", cap.count())
	}
}

func TestListFirewallRules(t *testing.T) {
	client, _ := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rules": [["10.0.0.1", "ACCEPT"], ["", "DROP"]]}`))
		})

	rules, err := client.ListFirewallRules(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("ListFirewallRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %+v", rules)
	}
	if rules[0].Source != "10.0.0.1" || rules[0].Action != FirewallAccept {
		t.Fatalf("first rule = %+v", rules[0])
	}
	if rules[1].Source != "" || rules[1].Action != FirewallDrop {
		t.Fatalf("second rule = %+v", rules[1])
	}
}

func TestCreateAccessRuleRejectsUnknownCapability(t *testing.T) {
	client, cap := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": true}`))
		})

	err := client.CreateAccessRule(context.Background(), "dep-1", Capability("CAP_ANYTHING"), "")
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if cap.count() != 0 {
		t.Fatalf("invalid capability must stay local, %d requests went out", cap.count())
	}
}

func TestListDeploymentsForwardsFilters(t *testing.T) {
	client, cap := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"workspace_deployments": {}, "page_count": 3}`))
		})

	_, pageCount, err := client.ListDeployments(context.Background(), DeploymentQuery{
		Query:      "misty",
		Types:      []string{"fixed_misty2", "basic_kobuki"},
		MaxLen:     1,
		Page:       2,
		MaxPerPage: 10,
	})
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if pageCount != 3 {
		t.Fatalf("page count = %d", pageCount)
	}

	cap.mu.Lock()
	query, err := url.ParseQuery(cap.query)
	cap.mu.Unlock()
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if got := query.Get("q"); got != "misty" {
		t.Errorf("q = %q", got)
	}
	if got := query.Get("types"); got != "fixed_misty2,basic_kobuki" {
		t.Errorf("types = %q", got)
	}
	if got := query.Get("maxlen"); got != "1" {
		t.Errorf("maxlen = %q", got)
	}
	if got := query.Get("page"); got != "2" {
		t.Errorf("page = %q", got)
	}
	if got := query.Get("max_per_page"); got != "10" {
		t.Errorf("max_per_page = %q", got)
	}
}

func TestListDeploymentsUnpaginatedByDefault(t *testing.T) {
	client, cap := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"workspace_deployments": {}, "page_count": 1}`))
		})

	if _, _, err := client.ListDeployments(context.Background(), DeploymentQuery{}); err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}

	cap.mu.Lock()
	defer cap.mu.Unlock()
	if cap.query != "" {
		t.Fatalf("expected no query parameters, got %q", cap.query)
	}
}

func TestCamSnapshotDecodesImage(t *testing.T) {
	img := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	client, _ := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/addon/cam/inst-1/0/img" {
				t.Errorf("path = %q", r.URL.Path)
			}
			w.Write([]byte(`{"success": true, "format": "JPEG", "coding": "base64", "data": "` +
				base64.StdEncoding.EncodeToString(img) + `"}`))
		})

	got, format, err := client.CamSnapshot(context.Background(), "inst-1", 0)
	if err != nil {
		t.Fatalf("CamSnapshot: %v", err)
	}
	if format != "JPEG" {
		t.Errorf("format = %q", format)
	}
	if string(got) != string(img) {
		t.Errorf("decoded bytes = %v, want %v", got, img)
	}
}

func TestCamSnapshotNotAvailable(t *testing.T) {
	client, _ := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": false}`))
		})

	_, _, err := client.CamSnapshot(context.Background(), "inst-1", 0)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestRevokeTokenValidatesDigestLocally(t *testing.T) {
	client, cap := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": true}`))
		})

	for _, digest := range []string{"", "deadbeef", "zz86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"} {
		if err := client.RevokeToken(context.Background(), digest); !IsValidation(err) {
			t.Fatalf("digest %q: expected validation error, got %v", digest, err)
		}
	}
	if cap.count() != 0 {
		t.Fatalf("invalid digests must stay local, %d requests went out", cap.count())
	}

	valid := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if err := client.RevokeToken(context.Background(), valid); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if cap.count() != 1 {
		t.Fatalf("expected one request, got %d", cap.count())
	}
}

func TestGetDeploymentInfoFillsRequestedID(t *testing.T) {
	// The detail endpoint does not echo an "id" field; the client must
	// carry the requested identifier into the result so that callers can
	// feed it straight into provisioning.
	client, _ := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/deployment/dep-known" {
				t.Errorf("path = %q", r.URL.Path)
			}
			w.Write([]byte(`{"type": "fixed_misty2", "region": "us:cali", "queuelen": 0}`))
		})

	dep, err := client.GetDeploymentInfo(context.Background(), "dep-known")
	if err != nil {
		t.Fatalf("GetDeploymentInfo: %v", err)
	}
	if dep.ID != "dep-known" {
		t.Fatalf("deployment ID = %q, want %q", dep.ID, "dep-known")
	}
	if dep.Type != "fixed_misty2" {
		t.Fatalf("deployment type = %q", dep.Type)
	}
}

func TestGetDeploymentInfoKeepsEchoedID(t *testing.T) {
	client, _ := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": "dep-canonical", "type": "basic_kobuki", "region": "us:ny"}`))
		})

	dep, err := client.GetDeploymentInfo(context.Background(), "dep-alias")
	if err != nil {
		t.Fatalf("GetDeploymentInfo: %v", err)
	}
	if dep.ID != "dep-canonical" {
		t.Fatalf("deployment ID = %q, want the echoed one", dep.ID)
	}
}

func TestSendDriveCommand(t *testing.T) {
	client, cap := newTestClient(t, Config{IgnoreEnvironment: true},
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %q", r.Method)
			}
			if r.URL.Path != "/addon/drive/inst-1/tx" {
				t.Errorf("path = %q", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"command":"forward"}` {
				t.Errorf("body = %s", body)
			}
			w.Write([]byte(`{"success": true}`))
		})

	if err := client.SendDriveCommand(context.Background(), "inst-1", "forward"); err != nil {
		t.Fatalf("SendDriveCommand: %v", err)
	}
	if cap.count() != 1 {
		t.Fatalf("expected one request, got %d", cap.count())
	}

	if err := client.SendDriveCommand(context.Background(), "inst-1", ""); !IsValidation(err) {
		t.Fatalf("expected validation error for empty command, got %v", err)
	}
	if err := client.SendDriveCommand(context.Background(), "", "forward"); !IsValidation(err) {
		t.Fatalf("expected validation error for empty instance ID, got %v", err)
	}
	if cap.count() != 1 {
		t.Fatalf("local validation must not reach the network, got %d requests", cap.count())
	}
}
