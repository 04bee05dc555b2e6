// Package authz decides which roles may call the back-office routes.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// rolePrefix keeps role subjects apart from any user subjects added later.
const rolePrefix = "role_"

// DefaultPolicies grant moderators the review queues and admins everything moderators can do
// plus impersonation.
var DefaultPolicies = [][]string{
	{"role_moderator", "/admin/listings/pending", "GET"},
	{"role_moderator", "/admin/listings/:id/:action", "POST"},
	{"role_moderator", "/admin/verifications/pending", "GET"},
	{"role_moderator", "/admin/verifications/:id/:action", "POST"},
	{"role_moderator", "/admin/activity", "GET"},
	{"role_admin", "/admin/photos/scan", "POST"},
	{"role_admin", "/admin/impersonation", "POST"},
}

// DefaultGroupings make admin inherit moderator.
var DefaultGroupings = [][]string{
	{"role_admin", "role_moderator"},
}

// Authorizer wraps a casbin enforcer.
type Authorizer struct{ e *casbin.Enforcer }

// New builds an authorizer. With an empty policyPath the default policies are used; otherwise
// policies are read from that CSV file.
func New(policyPath string) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	var e *casbin.Enforcer
	if policyPath != "" {
		e, err = casbin.NewEnforcer(m, policyPath)
	} else {
		e, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}
	if policyPath == "" {
		if _, err := e.AddPolicies(DefaultPolicies); err != nil {
			return nil, err
		}
		if _, err := e.AddGroupingPolicies(DefaultGroupings); err != nil {
			return nil, err
		}
	}
	return &Authorizer{e: e}, nil
}

// Allowed reports whether role may call method on path. path is the route pattern or the
// concrete request path.
func (a *Authorizer) Allowed(role, path, method string) (bool, error) {
	ok, err := a.e.Enforce(rolePrefix+role, path, method)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}
	return ok, nil
}

// IsStaff reports whether role reaches the back office at all.
func (a *Authorizer) IsStaff(role string) bool {
	ok, err := a.Allowed(role, "/admin/activity", "GET")
	return err == nil && ok
}
