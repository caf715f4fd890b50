package model

// AdminScope grants every operation on every entity. Group mappings that
// resolve to it make the caller an administrator.
const AdminScope = "mcp-registry-admin"

// AccessAll is the wildcard entry in accessible-server / accessible-agent
// lists and in per-action UI permission lists.
const AccessAll = "all"

// ServerAccess grants a scope's holders the listed methods and tools on one
// server. Methods and Tools may each be ["*"].
type ServerAccess struct {
	Server  string   `json:"server"            bson:"server"`
	Methods []string `json:"methods,omitempty" bson:"methods,omitempty"`
	Tools   []string `json:"tools,omitempty"   bson:"tools,omitempty"`
}

// Scope is a named permission bundle. Callers hold the union of all scopes
// whose group mappings intersect the groups in their token.
type Scope struct {
	Name          string         `json:"name"                     bson:"_id"`
	Description   string         `json:"description,omitempty"    bson:"description,omitempty"`
	GroupMappings []string       `json:"group_mappings"           bson:"group_mappings"`
	ServerAccess  []ServerAccess `json:"server_access"            bson:"server_access"`
	// UIPermissions maps a UI action (list_service, modify, toggle_service,
	// …) to the server names it covers, or ["all"].
	UIPermissions map[string][]string `json:"ui_permissions,omitempty" bson:"ui_permissions,omitempty"`
	AgentAccess   []string            `json:"agent_access,omitempty"   bson:"agent_access,omitempty"`
}
