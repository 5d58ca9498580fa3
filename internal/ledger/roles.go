package ledger

// Principal is an opaque authenticated identity supplied by the execution
// environment per call. The core never derives or validates it.
type Principal string

// Role identifies one of the two independent capability roles.
type Role int

const (
	// RoleUnspecified represents an invalid role value.
	RoleUnspecified Role = iota
	// RoleAdmin gates role grants and revocations.
	RoleAdmin
	// RolePusher gates object saves, ref upserts, and config updates.
	RolePusher
)

// String returns a stable label for the role.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RolePusher:
		return "pusher"
	default:
		return "unspecified"
	}
}

// accessRegistry holds the two role sets. The sets are independent:
// holding admin does not imply pusher and vice versa.
type accessRegistry struct {
	admins  map[Principal]struct{}
	pushers map[Principal]struct{}
}

// newAccessRegistry bootstraps the registry with the deploying principal
// holding both roles. No other seeding occurs.
func newAccessRegistry(deployer Principal) accessRegistry {
	return accessRegistry{
		admins:  map[Principal]struct{}{deployer: {}},
		pushers: map[Principal]struct{}{deployer: {}},
	}
}

func (a accessRegistry) members(role Role) map[Principal]struct{} {
	switch role {
	case RoleAdmin:
		return a.admins
	case RolePusher:
		return a.pushers
	default:
		return nil
	}
}

// has reports whether the principal currently holds the role.
func (a accessRegistry) has(role Role, p Principal) bool {
	_, ok := a.members(role)[p]
	return ok
}

// set grants or revokes the role and reports whether the set changed.
// A no-op grant or revocation succeeds without a change.
func (a accessRegistry) set(role Role, p Principal, granted bool) bool {
	members := a.members(role)
	if members == nil {
		return false
	}
	_, held := members[p]
	if granted == held {
		return false
	}
	if granted {
		members[p] = struct{}{}
	} else {
		delete(members, p)
	}
	return true
}

// clone deep-copies both role sets.
func (a accessRegistry) clone() accessRegistry {
	copied := accessRegistry{
		admins:  make(map[Principal]struct{}, len(a.admins)),
		pushers: make(map[Principal]struct{}, len(a.pushers)),
	}
	for p := range a.admins {
		copied.admins[p] = struct{}{}
	}
	for p := range a.pushers {
		copied.pushers[p] = struct{}{}
	}
	return copied
}
