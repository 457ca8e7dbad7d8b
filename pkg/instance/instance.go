// Package instance drives one workspace instance end to end: candidate
// selection or attachment, provisioning, status tracking, the remote
// session, and termination.
//
// Nothing here retries or polls. Provisioning contention and status
// waits are surfaced to the caller, which owns that policy (see
// pkg/poll for the loops the CLI uses).
package instance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/sshtun"
	"github.com/rerobots/client-go/pkg/telemetry"
)

// Options selects or provisions the instance an Instance will manage.
// Construction requires at least one of Types, DeploymentID and
// InstanceID. DeploymentID may be combined with Types (the deployment's
// type must then be in the set) or with InstanceID (the instance must
// then belong to that deployment). Types cannot be combined with
// InstanceID.
type Options struct {
	// Types is the workspace type candidate set. Selection among
	// matching deployments is deterministic: the first candidate in ID
	// order is taken. This is intentionally different from the launch
	// command of the CLI, which randomizes among candidates to spread
	// load across deployments.
	Types []string

	// DeploymentID names one workspace deployment to provision from.
	DeploymentID string

	// InstanceID attaches to an already-running instance instead of
	// provisioning a new one.
	InstanceID string

	// SSHPublicKey, when non-empty, is installed on the new instance;
	// the matching private key stays with the caller and must be named
	// in SecretKeyPath before StartSession. When empty, the service
	// generates a key pair and the returned secret half is held in
	// memory for the life of this Instance.
	SSHPublicKey string

	// SecretKeyPath is the private key for sessions when the caller
	// manages its own key material.
	SecretKeyPath string

	// VPN requests VPN support at provisioning time.
	VPN bool

	// Reserve queues the provisioning request when the deployment is
	// busy instead of failing.
	Reserve bool

	// EventURL, when non-empty, receives instance lifecycle event
	// notifications.
	EventURL string

	// ExpireDuration, in seconds, requests automatic termination.
	ExpireDuration int

	// Logger receives lifecycle events. The zero value is silent.
	Logger zerolog.Logger

	// Metrics, when non-nil, counts launches and live sessions.
	Metrics *telemetry.Metrics

	// Tracer, when non-nil, wraps lifecycle operations in spans.
	Tracer *telemetry.Tracer
}

// connInfo is the forwarded address plus the host keys pinned for it.
// It is replaced wholesale on every status refresh that reports one.
type connInfo struct {
	ipv4     string
	port     int
	hostKeys []string
}

func (ci *connInfo) complete() bool {
	return ci != nil && ci.ipv4 != "" && ci.port > 0 && len(ci.hostKeys) > 0
}

// Instance manages one workspace instance. An Instance has a single
// exclusive owner: the session handle and credential state are not
// synchronized, so concurrent calls on one Instance are undefined
// behavior. Independent Instances may be driven concurrently, sharing
// an api.Client.
type Instance struct {
	client *api.Client
	logger zerolog.Logger
	meter  *telemetry.Metrics
	tracer *telemetry.Tracer

	id         string
	deployment string

	// Descriptive fields, latched on the first successful status
	// refresh; the service may stop reporting them later.
	latched       bool
	workspaceType string
	region        string
	starttime     string

	status api.Status
	conn   *connInfo

	secretKey     []byte
	secretKeyPath string

	sess *sshtun.Session
}

// New creates an Instance per opts: attaching to InstanceID when given,
// otherwise provisioning from DeploymentID or from the first deployment
// matching Types. Validation failures are local and make no network
// calls. A busy deployment surfaces as a busy-kind error without any
// retry; callers that want retry wrap New with poll.RetryBusy.
func New(ctx context.Context, client *api.Client, opts Options) (*Instance, error) {
	if client == nil {
		return nil, api.NewValidationError("new instance", "nil API client")
	}
	if len(opts.Types) == 0 && opts.DeploymentID == "" && opts.InstanceID == "" {
		return nil, api.NewValidationError("new instance",
			"need at least one of workspace types, deployment ID, instance ID")
	}
	if opts.InstanceID != "" && len(opts.Types) > 0 {
		return nil, api.NewValidationError("new instance",
			"workspace types cannot be combined with an instance ID")
	}

	inst := &Instance{
		client:        client,
		logger:        opts.Logger,
		meter:         opts.Metrics,
		tracer:        opts.Tracer,
		secretKeyPath: opts.SecretKeyPath,
	}

	if opts.InstanceID != "" {
		if err := inst.attach(ctx, opts); err != nil {
			return nil, err
		}
		return inst, nil
	}

	if err := inst.provision(ctx, opts); err != nil {
		return nil, err
	}
	return inst, nil
}

// attach binds the Instance to an already-running instance.
func (inst *Instance) attach(ctx context.Context, opts Options) error {
	info, err := inst.client.GetInstanceInfo(ctx, opts.InstanceID)
	if err != nil {
		return err
	}
	if opts.DeploymentID != "" && info.Deployment != opts.DeploymentID {
		// A caller holding both identifiers that disagree has wired
		// them up wrong; nothing at runtime can recover that.
		return api.NewValidationError("new instance", fmt.Sprintf(
			"instance %s belongs to deployment %s, not %s",
			opts.InstanceID, info.Deployment, opts.DeploymentID))
	}

	inst.id = info.ID
	inst.deployment = info.Deployment
	inst.applyInfo(info)

	inst.logger.Info().
		Str("instance_id", inst.id).
		Str("wdeployment", inst.deployment).
		Str("status", string(inst.status)).
		Msg("attached to instance")
	return nil
}

// provision selects a deployment and requests a new instance on it.
func (inst *Instance) provision(ctx context.Context, opts Options) error {
	deploymentID := opts.DeploymentID

	if deploymentID != "" && len(opts.Types) > 0 {
		dep, err := inst.client.GetDeploymentInfo(ctx, deploymentID)
		if err != nil {
			return err
		}
		if !containsType(opts.Types, dep.Type) {
			return api.NewValidationError("new instance", fmt.Sprintf(
				"deployment %s has type %s, not one of the requested types",
				deploymentID, dep.Type))
		}
		inst.workspaceType = dep.Type
	}

	if deploymentID == "" {
		candidates, _, err := inst.client.ListDeployments(ctx, api.DeploymentQuery{Types: opts.Types})
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return api.NewValidationError("new instance",
				"no workspace deployments matching the requested types")
		}
		deploymentID = candidates[0].ID
		inst.workspaceType = candidates[0].Type
	}

	created, err := inst.client.RequestInstance(ctx, deploymentID, api.InstanceOptions{
		SSHPublicKey:   opts.SSHPublicKey,
		VPN:            opts.VPN,
		Reserve:        opts.Reserve,
		EventURL:       opts.EventURL,
		ExpireDuration: opts.ExpireDuration,
	})
	if err != nil {
		return err
	}

	inst.id = created.ID
	inst.deployment = deploymentID
	inst.status = api.StatusInit
	if created.SSHKey != "" {
		inst.secretKey = []byte(created.SSHKey)
	}

	if inst.meter != nil {
		inst.meter.RecordLaunch(inst.workspaceType)
	}
	inst.logger.Info().
		Str("instance_id", inst.id).
		Str("wdeployment", inst.deployment).
		Msg("instance requested")
	return nil
}

func containsType(types []string, t string) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// ID returns the instance identifier.
func (inst *Instance) ID() string { return inst.id }

// Deployment returns the workspace deployment the instance came from.
func (inst *Instance) Deployment() string { return inst.deployment }

// WorkspaceType returns the latched workspace type, empty until the
// first successful status refresh reports one.
func (inst *Instance) WorkspaceType() string { return inst.workspaceType }

// Region returns the latched region.
func (inst *Instance) Region() string { return inst.region }

// Starttime returns the latched start time string.
func (inst *Instance) Starttime() string { return inst.starttime }

// Status returns the last observed status without a network call.
func (inst *Instance) Status() api.Status { return inst.status }

// SecretKey returns the service-generated secret key material, nil when
// the caller supplied its own public key. The service returns this
// exactly once; callers that want it on disk must write it themselves.
func (inst *Instance) SecretKey() []byte {
	return append([]byte(nil), inst.secretKey...)
}

// GetStatus refreshes the instance state from the service and returns
// the current status.
func (inst *Instance) GetStatus(ctx context.Context) (status api.Status, err error) {
	ctx, finish := inst.startSpan(ctx, "get status")
	defer func() { finish(err) }()

	info, err := inst.client.GetInstanceInfo(ctx, inst.id)
	if err != nil {
		return "", err
	}
	inst.applyInfo(info)
	return inst.status, nil
}

// startSpan opens a lifecycle span when a tracer is wired; the returned
// finish records the outcome and ends the span.
func (inst *Instance) startSpan(ctx context.Context, op string) (context.Context, func(error)) {
	if inst.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := inst.tracer.StartLifecycleSpan(ctx, op, inst.id)
	return ctx, func(err error) {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
}

// applyInfo folds one instance detail response into local state:
// descriptive fields latch on first sight, connection info is replaced
// wholesale whenever a forwarding block is present, never merged with
// stale data.
func (inst *Instance) applyInfo(info *api.InstanceInfo) {
	if !inst.latched {
		inst.workspaceType = info.Type
		inst.region = info.Region
		inst.starttime = info.Starttime
		inst.latched = true
	}

	if info.Fwd != nil && info.Fwd.IPv4 != "" && info.Fwd.Port > 0 {
		inst.conn = &connInfo{
			ipv4:     info.Fwd.IPv4,
			port:     info.Fwd.Port,
			hostKeys: append([]string(nil), info.HostKeys...),
		}
	}

	inst.status = info.Status
}
