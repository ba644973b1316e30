// ABOUTME: Workflow handle type and the in-memory registry
// ABOUTME: Handles describe what can run; the registry resolves name+version

package workflow

// Handle describes a registered workflow: what it is called, what inputs
// it accepts, and what permission executing it requires. The handle does
// not contain the workflow body; that lives behind the Runtime interface.
type Handle struct {
	ID                 string
	Version            int
	Name               string
	Description        string
	InputSchema        []byte  // JSON schema for the inputs map; nil means no validation
	RequiredPermission string  // action checked against the authorizer, defaults to "execute"
	TenantID           *string // nil handles are shared across tenants
}

// Permission returns the action string to authorize for this handle.
func (h *Handle) Permission() string {
	if h.RequiredPermission == "" {
		return "execute"
	}
	return h.RequiredPermission
}

// Resource returns the authorization resource name for this handle.
func (h *Handle) Resource() string {
	return "workflow/" + h.ID
}
