// Package api is the typed client for the rerobots web API.
//
// It wraps the REST endpoints with method calls on Client, manages the
// Authorization header, and maps non-success responses onto a small error
// taxonomy that callers inspect with predicates such as
// IsBusyWorkspaceDeployment and IsWrongAuthToken:
//
//	client, err := api.New(api.Config{Token: token})
//	if err != nil {
//	    return err
//	}
//	live, err := client.RequestInstance(ctx, "fixed_misty2", api.InstanceOptions{})
//	if api.IsBusyWorkspaceDeployment(err) {
//	    // contention: retry later or pick another deployment
//	}
//
// Client performs no retries and no polling. Retry and wait policy lives
// with callers: the instance package for lifecycle composition and the poll
// package for bounded waits.
package api
