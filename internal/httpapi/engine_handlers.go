package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pitchvault.io/internal/authz"
)

type checkRequest struct {
	ActorID      string `json:"actor_id"`
	Permission   string `json:"permission"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
}

type upsertGrantRequest struct {
	UserID       string     `json:"user_id"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	AccessLevel  string     `json:"access_level"`
	Provenance   string     `json:"provenance"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type createResourceRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	OwnerID      string `json:"owner_id"`
}

type createNdaRequest struct {
	ResourceID string `json:"resource_id"`
}

type rejectNdaRequest struct {
	Reason string `json:"reason"`
}

type createRoleRequest struct {
	Name string `json:"name"`
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	verdict, err := a.resolver.Resolve(r.Context(), authz.Check{
		ActorID:      req.ActorID,
		Permission:   req.Permission,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
	})
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (a *API) handleGrants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, authz.PermAdminManageUsers) {
		return
	}
	var req upsertGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := authz.ParseAccessLevel(req.AccessLevel)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "access_level must be view, edit or admin")
		return
	}
	grant, err := a.grants.Upsert(r.Context(), a.actorID(r), authz.ContentAccessGrant{
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Level:        level,
		Provenance:   authz.Provenance(req.Provenance),
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

// handleGrantResource serves /v1/grants/{user}/{resource_type}/{resource_id}.
func (a *API) handleGrantResource(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/grants/")
	if len(parts) != 3 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID, resourceType, resourceID := parts[0], parts[1], parts[2]

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, authz.PermAdminManageUsers) {
			return
		}
		grant, err := a.grants.Get(r.Context(), userID, resourceType, resourceID)
		if err != nil {
			handleEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, authz.PermAdminManageUsers) {
			return
		}
		provenance := authz.Provenance(r.URL.Query().Get("provenance"))
		if err := a.grants.Revoke(r.Context(), a.actorID(r), userID, resourceType, resourceID, provenance); err != nil {
			handleEngineError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleResources installs the owner grant when a resource is registered.
func (a *API) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, authz.PermAdminManageUsers) {
		return
	}
	var req createResourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := a.grants.OnResourceCreated(r.Context(), req.ResourceType, req.ResourceID, req.OwnerID)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

// handleResourceScoped serves DELETE /v1/resources/{type}/{id}, cascading
// every grant on the resource.
func (a *API) handleResourceScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/resources/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, authz.PermAdminManageUsers) {
		return
	}
	removed, err := a.grants.OnResourceDeleted(r.Context(), parts[0], parts[1])
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (a *API) handleNdaRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createNdaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.nda.Request(r.Context(), a.actorID(r), req.ResourceID)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/nda/requests/"+url.PathEscape(created.ID))
	writeJSON(w, http.StatusCreated, created)
}

// handleNdaRequestScoped serves /v1/nda/requests/{id} and the transition
// subresources approve, reject and revoke.
func (a *API) handleNdaRequestScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/nda/requests/")
	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		req, err := a.nda.Get(r.Context(), parts[0])
		if err != nil {
			handleEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	case 2:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.handleNdaTransition(w, r, parts[0], parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleNdaTransition(w http.ResponseWriter, r *http.Request, requestID, action string) {
	actor := a.actorID(r)
	var (
		req authz.NdaRequest
		err error
	)
	switch action {
	case "approve":
		req, err = a.nda.Approve(r.Context(), requestID, actor)
	case "reject":
		var body rejectNdaRequest
		if decodeErr := decodeJSON(w, r, &body); decodeErr != nil {
			writeError(w, r, http.StatusBadRequest, decodeErr.Error())
			return
		}
		req, err = a.nda.Reject(r.Context(), requestID, actor, body.Reason)
	case "revoke":
		req, err = a.nda.Revoke(r.Context(), requestID, actor)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.roles.ListRoles(r.Context())
		if err != nil {
			handleEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.ensurePermission(w, r, authz.PermAdminManageRoles) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.roles.CreateRole(r.Context(), a.actorID(r), req.Name)
		if err != nil {
			handleEngineError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/roles/"+url.PathEscape(role.Name))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleScoped serves /v1/roles/{name} and /v1/roles/{name}/permissions.
func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/roles/")
	switch len(parts) {
	case 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if !a.ensurePermission(w, r, authz.PermAdminManageRoles) {
			return
		}
		if err := a.roles.DeleteRole(r.Context(), a.actorID(r), parts[0]); err != nil {
			handleEngineError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case 2:
		if parts[1] != "permissions" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.ensurePermission(w, r, authz.PermAdminManageRoles) {
			return
		}
		var req setRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.roles.SetPermissions(r.Context(), a.actorID(r), parts[0], req.Permissions); err != nil {
			handleEngineError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// handleUserScoped serves /v1/users/{id}/roles, /v1/users/{id}/roles/{role}
// and /v1/users/{id}/permissions.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/users/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]
	switch parts[1] {
	case "roles":
		switch len(parts) {
		case 2:
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, http.MethodPost)
				return
			}
			if !a.ensurePermission(w, r, authz.PermAdminManageUsers) {
				return
			}
			var req assignRoleRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			assignment, err := a.roles.Assign(r.Context(), a.actorID(r), userID, req.Role, req.ExpiresAt)
			if err != nil {
				handleEngineError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, assignment)
		case 3:
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, r, http.MethodDelete)
				return
			}
			if !a.ensurePermission(w, r, authz.PermAdminManageUsers) {
				return
			}
			if err := a.roles.Unassign(r.Context(), a.actorID(r), userID, parts[2]); err != nil {
				handleEngineError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "permissions":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		perms, err := a.roles.PermissionsForUser(r.Context(), userID)
		if err != nil {
			handleEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":     userID,
			"permissions": perms,
		})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAuditTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, authz.PermAdminViewAudit) {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	records, err := a.audit.Tail(r.Context(), limit)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func splitPath(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
