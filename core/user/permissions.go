package user

import "strings"

// Permission verbs. A permission string is "<resource>:<verb>", e.g. "course:approve".
const (
	VerbRead    = "read"
	VerbCreate  = "create"
	VerbUpdate  = "update"
	VerbDelete  = "delete"
	VerbSubmit  = "submit"
	VerbReview  = "review"
	VerbApprove = "approve"
	VerbReject  = "reject"
	VerbReturn  = "return"
	VerbPublish = "publish"
	VerbStatus  = "status" // administrative status override
)

const wildcard = "*"

// rolePermissions is the static role -> permission catalog. Wildcards match any resource or verb.
var rolePermissions = map[string][]string{
	RoleAdmin:      {"*:*"},
	RoleAdminOwner: {"*:*"},
	RoleAdminPrincipal: {
		"*:read", "*:create", "*:update", "*:delete",
		"*:submit", "*:review", "*:approve", "*:reject", "*:return", "*:publish",
	},
	RoleTeacherHead: {"*:read", "*:create", "*:update", "*:submit", "*:review", "*:reject", "*:return"},
	RoleTeacher:     {"*:read", "*:create", "*:update", "*:submit"},
	RoleStudent:     {"*:read"},
}

func Permission(resource, verb string) string {
	return resource + ":" + verb
}

type Permissions map[string]struct{}

func PermissionsFor(roles []string) Permissions {
	perms := make(Permissions)
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			perms[p] = struct{}{}
		}
	}
	return perms
}

func (p Permissions) Has(perm string) bool {
	resource, verb := splitPermission(perm)
	for _, candidate := range []string{
		perm,
		Permission(wildcard, verb),
		Permission(resource, wildcard),
		Permission(wildcard, wildcard),
	} {
		if _, ok := p[candidate]; ok {
			return true
		}
	}
	return false
}

func splitPermission(perm string) (string, string) {
	i := strings.LastIndex(perm, ":")
	if i < 0 {
		return perm, ""
	}
	return perm[:i], perm[i+1:]
}
