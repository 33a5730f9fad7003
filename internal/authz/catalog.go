package authz

import "strings"

// Core platform permissions. The catalog is fixed at bootstrap; referencing
// a name outside it is a configuration error, not a deny.
const (
	PermPitchCreate        = "pitch:create"
	PermPitchReadOwn       = "pitch:read_own"
	PermPitchReadProtected = "pitch:read_protected"
	PermPitchUpdateOwn     = "pitch:update_own"
	PermPitchDeleteOwn     = "pitch:delete_own"
	PermPitchListPublic    = "pitch:list_public"

	PermNdaRequest    = "nda:request"
	PermNdaApproveOwn = "nda:approve_own"
	PermNdaRevokeOwn  = "nda:revoke_own"
	PermNdaViewOwn    = "nda:view_own"

	PermInvestmentCreate  = "investment:create"
	PermInvestmentViewOwn = "investment:view_own"
	PermInvestmentTrack   = "investment:track"

	PermDocumentUploadOwn   = "document:upload_own"
	PermDocumentViewGranted = "document:view_granted"
	PermDocumentDeleteOwn   = "document:delete_own"

	PermMessageSend    = "message:send"
	PermMessageViewOwn = "message:view_own"

	PermUserViewOwn   = "user:view_own"
	PermUserUpdateOwn = "user:update_own"
	PermUserManage    = "user:manage"

	PermAnalyticsViewOwn = "analytics:view_own"
	PermAnalyticsViewAll = "analytics:view_all"

	PermAdminAccess      = "admin:access"
	PermAdminManageRoles = "admin:manage_roles"
	PermAdminManageUsers = "admin:manage_users"
	PermAdminViewAudit   = "admin:view_audit"
)

// BuiltinPermissions is the full catalog seeded at bootstrap.
var BuiltinPermissions = []Permission{
	{Name: PermPitchCreate, Category: CategoryPitch},
	{Name: PermPitchReadOwn, Category: CategoryPitch},
	{Name: PermPitchReadProtected, Category: CategoryPitch},
	{Name: PermPitchUpdateOwn, Category: CategoryPitch},
	{Name: PermPitchDeleteOwn, Category: CategoryPitch},
	{Name: PermPitchListPublic, Category: CategoryPitch},

	{Name: PermNdaRequest, Category: CategoryNda},
	{Name: PermNdaApproveOwn, Category: CategoryNda},
	{Name: PermNdaRevokeOwn, Category: CategoryNda},
	{Name: PermNdaViewOwn, Category: CategoryNda},

	{Name: PermInvestmentCreate, Category: CategoryInvestment},
	{Name: PermInvestmentViewOwn, Category: CategoryInvestment},
	{Name: PermInvestmentTrack, Category: CategoryInvestment},

	{Name: PermDocumentUploadOwn, Category: CategoryDocument},
	{Name: PermDocumentViewGranted, Category: CategoryDocument},
	{Name: PermDocumentDeleteOwn, Category: CategoryDocument},

	{Name: PermMessageSend, Category: CategoryMessaging},
	{Name: PermMessageViewOwn, Category: CategoryMessaging},

	{Name: PermUserViewOwn, Category: CategoryUser},
	{Name: PermUserUpdateOwn, Category: CategoryUser},
	{Name: PermUserManage, Category: CategoryUser},

	{Name: PermAnalyticsViewOwn, Category: CategoryAnalytics},
	{Name: PermAnalyticsViewAll, Category: CategoryAnalytics},

	{Name: PermAdminAccess, Category: CategoryAdmin},
	{Name: PermAdminManageRoles, Category: CategoryAdmin},
	{Name: PermAdminManageUsers, Category: CategoryAdmin},
	{Name: PermAdminViewAudit, Category: CategoryAdmin},
}

// System role names. These roles exist from bootstrap and cannot be deleted.
const (
	RoleCreator    = "creator"
	RoleInvestor   = "investor"
	RoleProduction = "production"
	RoleAdmin      = "admin"
)

// SystemRoles lists roles that must exist and may never be deleted or renamed.
var SystemRoles = []string{RoleCreator, RoleInvestor, RoleProduction, RoleAdmin}

// DefaultRolePermissions is the seeded permission set per system role.
var DefaultRolePermissions = map[string][]string{
	RoleCreator: {
		PermPitchCreate, PermPitchReadOwn, PermPitchUpdateOwn, PermPitchDeleteOwn,
		PermPitchListPublic, PermNdaApproveOwn, PermNdaRevokeOwn, PermNdaViewOwn,
		PermDocumentUploadOwn, PermDocumentDeleteOwn, PermMessageSend,
		PermMessageViewOwn, PermUserViewOwn, PermUserUpdateOwn, PermAnalyticsViewOwn,
	},
	RoleInvestor: {
		PermPitchListPublic, PermNdaRequest, PermNdaViewOwn, PermInvestmentCreate,
		PermInvestmentViewOwn, PermInvestmentTrack, PermDocumentViewGranted,
		PermMessageSend, PermMessageViewOwn, PermUserViewOwn, PermUserUpdateOwn,
	},
	RoleProduction: {
		PermPitchListPublic, PermNdaRequest, PermNdaViewOwn, PermDocumentViewGranted,
		PermMessageSend, PermMessageViewOwn, PermUserViewOwn, PermUserUpdateOwn,
		PermAnalyticsViewOwn,
	},
	RoleAdmin: permissionNames(BuiltinPermissions),
}

var catalogByName = func() map[string]Permission {
	m := make(map[string]Permission, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		m[p.Name] = p
	}
	return m
}()

// KnownPermission reports whether the name is part of the catalog.
func KnownPermission(name string) bool {
	_, ok := catalogByName[name]
	return ok
}

// LookupPermission returns the catalog entry for name.
func LookupPermission(name string) (Permission, bool) {
	p, ok := catalogByName[name]
	return p, ok
}

// ResourceScoped reports whether the permission requires a grant lookup
// against a concrete resource. The naming convention marks scoped
// permissions with an _own/_granted/_protected suffix.
func ResourceScoped(name string) bool {
	return strings.HasSuffix(name, "_own") ||
		strings.HasSuffix(name, "_granted") ||
		strings.HasSuffix(name, "_protected")
}

// MinLevelFor returns the minimum grant level a resource-scoped permission
// demands: reads need view, writes need edit, management needs admin.
func MinLevelFor(name string) AccessLevel {
	action := name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		action = name[i+1:]
	}
	verb := action
	if i := strings.IndexByte(action, '_'); i >= 0 {
		verb = action[:i]
	}
	switch verb {
	case "read", "view", "list", "track":
		return LevelView
	case "create", "update", "delete", "upload", "send", "request":
		return LevelEdit
	default:
		// manage, approve, revoke, access and anything unclassified.
		return LevelAdmin
	}
}

func permissionNames(perms []Permission) []string {
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names
}
