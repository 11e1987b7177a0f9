package gate

import "strings"

// Action is the verb half of a permission.
type Action string

const (
	ActionList     Action = "list"
	ActionView     Action = "view"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionFinalize Action = "finalize"
	ActionSend     Action = "send"
	ActionSeed     Action = "seed"
)

// Resource types guarded by the gate.
const (
	ResourceChantier     = "chantier"
	ResourceCommande     = "commande"
	ResourceEtat         = "etat"
	ResourceSousTraitant = "soustraitant"
	ResourceSAV          = "sav"
	ResourceNotification = "notification"
	ResourceDocument     = "document"
)

// Permission is "resource:action", e.g. "etat:finalize". "*" is a wildcard on either side.
type Permission string

const Wildcard = "*"

const PermissionSuperAdmin Permission = "*:*"

func NewPermission(resource string, action Action) Permission {
	return Permission(resource + ":" + string(action))
}

// Parse splits the permission; malformed values yield empty parts.
func (p Permission) Parse() (resource string, action Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", ""
	}
	return res, Action(act)
}

// Matches reports whether the granted permission p covers requested.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionSuperAdmin || p == requested {
		return true
	}
	res, act := p.Parse()
	reqRes, reqAct := requested.Parse()
	if res == "" || reqRes == "" {
		return false
	}
	return (res == Wildcard || res == reqRes) && (string(act) == Wildcard || act == reqAct)
}
