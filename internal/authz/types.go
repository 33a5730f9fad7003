package authz

import "time"

// Category groups catalog permissions by the domain they protect.
type Category string

const (
	CategoryPitch      Category = "pitch"
	CategoryNda        Category = "nda"
	CategoryInvestment Category = "investment"
	CategoryDocument   Category = "document"
	CategoryMessaging  Category = "messaging"
	CategoryUser       Category = "user"
	CategoryAnalytics  Category = "analytics"
	CategoryAdmin      Category = "admin"
)

// Permission is an atomic named capability, immutable after bootstrap.
type Permission struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

// AccessLevel orders per-resource access strictly: view < edit < admin.
// A higher level subsumes everything a lower level allows.
type AccessLevel int

const (
	LevelView AccessLevel = iota + 1
	LevelEdit
	LevelAdmin
)

// Covers reports whether the level satisfies the given minimum.
func (l AccessLevel) Covers(min AccessLevel) bool { return l >= min }

func (l AccessLevel) String() string {
	switch l {
	case LevelView:
		return "view"
	case LevelEdit:
		return "edit"
	case LevelAdmin:
		return "admin"
	}
	return "unknown"
}

// ParseAccessLevel maps the stored text form back to an AccessLevel.
func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch s {
	case "view":
		return LevelView, true
	case "edit":
		return LevelEdit, true
	case "admin":
		return LevelAdmin, true
	}
	return 0, false
}

// Provenance explains why a grant exists.
type Provenance string

const (
	ProvenanceOwnership Provenance = "ownership"
	ProvenanceTeam      Provenance = "team"
	ProvenanceNda       Provenance = "nda"
	ProvenancePublic    Provenance = "public"
)

// Valid reports whether the provenance is one of the known origins.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceOwnership, ProvenanceTeam, ProvenanceNda, ProvenancePublic:
		return true
	}
	return false
}

// Role is a named bundle of permissions. System roles cannot be deleted
// or renamed.
type Role struct {
	Name      string    `json:"name"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleAssignment links a user to a role, with optional expiry. Expired
// assignments are inert but never deleted; expiry is a read-time filter.
type RoleAssignment struct {
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	GrantedBy string     `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Live reports whether the assignment participates in resolution at now.
func (a RoleAssignment) Live(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// ContentAccessGrant is a per-resource, per-user access level with a
// provenance. At most one row exists per (user, resource type, resource id).
type ContentAccessGrant struct {
	UserID       string      `json:"user_id"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id"`
	Level        AccessLevel `json:"access_level"`
	Provenance   Provenance  `json:"provenance"`
	NdaID        string      `json:"nda_id,omitempty"`
	GrantedAt    time.Time   `json:"granted_at"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
}

// Live reports whether the grant participates in resolution at now.
func (g ContentAccessGrant) Live(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// NdaStatus enumerates NDA request lifecycle states.
type NdaStatus string

const (
	NdaPending  NdaStatus = "pending"
	NdaApproved NdaStatus = "approved"
	NdaRejected NdaStatus = "rejected"
	NdaRevoked  NdaStatus = "revoked"
	NdaExpired  NdaStatus = "expired"
)

// Terminal reports whether no further transition is permitted.
func (s NdaStatus) Terminal() bool {
	return s == NdaRejected || s == NdaRevoked || s == NdaExpired
}

// NdaRequest tracks one requester's NDA approval workflow on a resource.
type NdaRequest struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requester_id"`
	ResourceID  string     `json:"resource_id"`
	Status      NdaStatus  `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Reason explains a resolver verdict.
type Reason string

const (
	ReasonRole    Reason = "role"
	ReasonGrant   Reason = "grant"
	ReasonNoMatch Reason = "no_matching_role_or_grant"
	ReasonError   Reason = "error"
)

// Verdict is the outcome of one permission resolution. Deny is a value,
// never an error.
type Verdict struct {
	Granted    bool       `json:"granted"`
	Reason     Reason     `json:"reason"`
	Role       string     `json:"role,omitempty"`
	Provenance Provenance `json:"provenance,omitempty"`
}

// Check is one resolver invocation: can the actor perform the permission,
// optionally scoped to a resource.
type Check struct {
	ActorID      string `json:"actor_id"`
	Permission   string `json:"permission"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
}

// AuditMetadata carries the structured detail of an audit record. Known
// event shapes use the typed fields; Extra is the opaque bucket for
// forward-compatible detail.
type AuditMetadata struct {
	Kind        string         `json:"kind"`
	Reason      string         `json:"reason,omitempty"`
	MatchedRole string         `json:"matched_role,omitempty"`
	Provenance  string         `json:"provenance,omitempty"`
	AccessLevel string         `json:"access_level,omitempty"`
	NdaID       string         `json:"nda_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Audit metadata kinds.
const (
	AuditKindDecision      = "decision"
	AuditKindGrantMutation = "grant_mutation"
	AuditKindNdaTransition = "nda_transition"
	AuditKindFailure       = "failure"
)

// AuditRecord is one append-only row in the audit log. ActorID is empty
// for system-initiated events.
type AuditRecord struct {
	ID           string        `json:"id"`
	ActorID      string        `json:"actor_id,omitempty"`
	Action       string        `json:"action"`
	ResourceType string        `json:"resource_type,omitempty"`
	ResourceID   string        `json:"resource_id,omitempty"`
	Permission   string        `json:"permission,omitempty"`
	Granted      bool          `json:"granted"`
	At           time.Time     `json:"at"`
	Metadata     AuditMetadata `json:"metadata"`
}
