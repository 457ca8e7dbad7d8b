package api

// Status represents the lifecycle state of a workspace instance as reported
// by the service.
//
// Valid transitions: INIT -> READY or INIT_FAIL; READY -> TERMINATING ->
// TERMINATED. INIT_FAIL and TERMINATED are terminal.
type Status string

const (
	StatusInit        Status = "INIT"
	StatusInitFail    Status = "INIT_FAIL"
	StatusReady       Status = "READY"
	StatusTerminating Status = "TERMINATING"
	StatusTerminated  Status = "TERMINATED"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusInitFail || s == StatusTerminated
}

// Deployment describes a workspace deployment, a remote resource pool
// advertising a capability type, a region, and a queue length. Immutable
// once read.
type Deployment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	TypeVersion int    `json:"type_version,omitempty"`
	Region      string `json:"region"`
	QueueLen    int    `json:"queuelen"`
	Created     string `json:"created,omitempty"`
	Icounter    int    `json:"icounter,omitempty"`
}

// DeploymentQuery narrows and paginates ListDeployments. Zero values mean
// "no filter"; a zero MaxPerPage requests the full, unpaginated list.
type DeploymentQuery struct {
	Query      string
	Types      []string
	MaxLen     int
	Page       int
	MaxPerPage int
}

// Pagination is forwarded verbatim to list endpoints. A zero MaxPerPage
// requests the full list.
type Pagination struct {
	Page       int
	MaxPerPage int
}

// Fwd is the forwarding block of a connectable instance.
type Fwd struct {
	IPv4 string `json:"ipv4"`
	Port int    `json:"port"`
}

// InstanceInfo is the detail payload for one instance. Fwd and HostKeys are
// present only once the instance is connectable and may disappear and
// reappear across polls.
type InstanceInfo struct {
	ID         string   `json:"id"`
	Deployment string   `json:"wdeployment"`
	Type       string   `json:"type"`
	Region     string   `json:"region"`
	Starttime  string   `json:"starttime"`
	RootAccess bool     `json:"rootaccess,omitempty"`
	Status     Status   `json:"status"`
	Fwd        *Fwd     `json:"fwd,omitempty"`
	HostKeys   []string `json:"hostkeys,omitempty"`
	Expires    string   `json:"expires,omitempty"`
}

// InstanceOptions are the provisioning options for RequestInstance.
type InstanceOptions struct {
	// SSHPublicKey, when non-empty, is the caller-supplied public key
	// installed on the instance. When empty the service generates a key
	// pair and returns the secret half once, in NewInstance.SSHKey.
	SSHPublicKey string

	// VPN requests VPN support on the instance.
	VPN bool

	// Reserve queues the request instead of failing when the deployment is
	// busy. The queued request is observed through later status polling.
	Reserve bool

	// EventURL, when non-empty, is a callback URL notified on instance
	// lifecycle events.
	EventURL string

	// ExpireDuration, in seconds, requests automatic termination after
	// this long. Zero means no expiration.
	ExpireDuration int
}

// NewInstance is the provisioning result for a successful RequestInstance.
type NewInstance struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`

	// SSHKey is the generated secret key material, present only when no
	// public key was supplied in the request. It is returned exactly once
	// and never retrievable again.
	SSHKey string `json:"sshkey,omitempty"`
}

// Capability is an access rule capability grant.
type Capability string

const (
	CapInstantiate   Capability = "CAP_INSTANTIATE"
	CapNoInstantiate Capability = "CAP_NO_INSTANTIATE"
)

// AccessRule grants or denies a user the ability to instantiate from a
// deployment.
type AccessRule struct {
	ID          int        `json:"id"`
	DateCreated string     `json:"date_created"`
	User        string     `json:"user"`
	Capability  Capability `json:"capability"`
	Param       string     `json:"param,omitempty"`
}

// FirewallAction is the verdict of an instance firewall rule.
type FirewallAction string

const (
	FirewallAccept FirewallAction = "ACCEPT"
	FirewallDrop   FirewallAction = "DROP"
	FirewallReject FirewallAction = "REJECT"
)

// FirewallRule is a source-address filter on an instance.
type FirewallRule struct {
	Source string
	Action FirewallAction
}

// AddOn names an optional per-instance feature.
type AddOn string

const (
	AddOnCam        AddOn = "cam"
	AddOnMistyProxy AddOn = "mistyproxy"
	AddOnDrive      AddOn = "drive"
	AddOnVNC        AddOn = "vnc"
)

// AddOnStatus is the state of an add-on on an instance.
type AddOnStatus struct {
	Status string   `json:"status"`
	URLs   []string `json:"url,omitempty"`
}

// Active reports whether the add-on is up and usable.
func (s AddOnStatus) Active() bool {
	return s.Status == "active"
}

// VPNClient is one issued VPN client credential set.
type VPNClient struct {
	ClientID string `json:"client_id"`
	OVPN     string `json:"ovpn"`
}

// Reservation is a queued request for a busy deployment.
type Reservation struct {
	ID         string `json:"id"`
	Deployment string `json:"wdeployment"`
	Created    string `json:"created"`
	User       string `json:"user,omitempty"`
}
