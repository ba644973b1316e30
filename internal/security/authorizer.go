// ABOUTME: Pluggable authorization strategies for the security manager
// ABOUTME: Role-based and attribute-based implementations behind one interface

package security

import (
	"context"

	"github.com/2389/nexus-gateway/internal/auth"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Allow  bool
	Reason string
}

// Authorizer decides whether an identity may perform an action on a
// resource. Strategies are swappable without changing callers; the
// manager audits every decision regardless of strategy.
type Authorizer interface {
	Authorize(ctx context.Context, identity *auth.AuthContext, resource, action string) Decision
}

// RBACAuthorizer grants actions by role. Grants map role -> resource
// prefix -> allowed actions; a "*" action entry allows everything.
type RBACAuthorizer struct {
	grants map[string]map[string][]string
}

// NewRBACAuthorizer creates an authorizer from role grants.
func NewRBACAuthorizer(grants map[string]map[string][]string) *RBACAuthorizer {
	return &RBACAuthorizer{grants: grants}
}

// Authorize allows the action if any of the identity's roles carries a
// grant matching the resource.
func (a *RBACAuthorizer) Authorize(ctx context.Context, identity *auth.AuthContext, resource, action string) Decision {
	if identity == nil {
		return Decision{Allow: false, Reason: "no identity"}
	}
	for _, role := range identity.Roles {
		resources, ok := a.grants[role]
		if !ok {
			continue
		}
		for granted, actions := range resources {
			if !resourceMatches(granted, resource) {
				continue
			}
			for _, act := range actions {
				if act == "*" || act == action {
					return Decision{Allow: true, Reason: "role " + role}
				}
			}
		}
	}
	return Decision{Allow: false, Reason: "no matching grant"}
}

// resourceMatches supports exact resources and trailing-* prefixes
// (e.g. "workflow/*" matches "workflow/echo").
func resourceMatches(granted, resource string) bool {
	if granted == "*" || granted == resource {
		return true
	}
	n := len(granted)
	if n > 0 && granted[n-1] == '*' {
		return len(resource) >= n-1 && resource[:n-1] == granted[:n-1]
	}
	return false
}

// Attribute is a predicate evaluated against an authorization request.
type Attribute func(identity *auth.AuthContext, resource, action string) bool

// AttributeAuthorizer allows an action when every registered predicate
// passes. Useful for policies that do not reduce to roles, such as
// "only the session's owner may cancel its runs".
type AttributeAuthorizer struct {
	attributes []Attribute
}

// NewAttributeAuthorizer creates an authorizer from predicates.
func NewAttributeAuthorizer(attributes ...Attribute) *AttributeAuthorizer {
	return &AttributeAuthorizer{attributes: attributes}
}

// Authorize allows only when all predicates pass.
func (a *AttributeAuthorizer) Authorize(ctx context.Context, identity *auth.AuthContext, resource, action string) Decision {
	if identity == nil {
		return Decision{Allow: false, Reason: "no identity"}
	}
	for _, attr := range a.attributes {
		if !attr(identity, resource, action) {
			return Decision{Allow: false, Reason: "attribute check failed"}
		}
	}
	return Decision{Allow: true, Reason: "attributes satisfied"}
}

// AllowAll authorizes everything. Intended for single-user deployments
// and tests; tenant isolation is still enforced separately.
type AllowAll struct{}

func (AllowAll) Authorize(ctx context.Context, identity *auth.AuthContext, resource, action string) Decision {
	return Decision{Allow: true, Reason: "allow-all policy"}
}
