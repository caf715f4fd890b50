package client

import "time"

// Server is a registered MCP server entry as returned by the API.
type Server struct {
	Path          string    `json:"path"`
	ServerName    string    `json:"server_name"`
	Description   string    `json:"description"`
	Version       string    `json:"version,omitempty"`
	Tags          []string  `json:"tags"`
	License       string    `json:"license,omitempty"`
	ProxyPassURL  string    `json:"proxy_pass_url"`
	TransportType string    `json:"transport_type"`
	Tools         []Tool    `json:"tool_list"`
	NumTools      int       `json:"num_tools"`
	IsEnabled     bool      `json:"is_enabled"`
	HealthStatus  string    `json:"health_status,omitempty"`
	NumStars      float64   `json:"num_stars"`
	Source        string    `json:"source,omitempty"`
	IsReadOnly    bool      `json:"is_read_only,omitempty"`
	RegisteredAt  time.Time `json:"registered_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tool is one tool exposed by an MCP server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// RegisterServerRequest creates a server entry.
type RegisterServerRequest struct {
	Path          string   `json:"path,omitempty"`
	ServerName    string   `json:"server_name"`
	Description   string   `json:"description,omitempty"`
	Version       string   `json:"version,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	License       string   `json:"license,omitempty"`
	ProxyPassURL  string   `json:"proxy_pass_url,omitempty"`
	TransportType string   `json:"transport_type,omitempty"`
	Tools         []Tool   `json:"tool_list,omitempty"`
}

// UpdateServerRequest updates a server entry; zero-value fields are left
// unchanged.
type UpdateServerRequest struct {
	ServerName    string   `json:"server_name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Version       string   `json:"version,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	License       string   `json:"license,omitempty"`
	ProxyPassURL  string   `json:"proxy_pass_url,omitempty"`
	TransportType string   `json:"transport_type,omitempty"`
	Tools         []Tool   `json:"tool_list,omitempty"`
}

// Agent is a registered A2A agent entry as returned by the API.
type Agent struct {
	Path            string   `json:"path"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	URL             string   `json:"url"`
	Version         string   `json:"version,omitempty"`
	ProtocolVersion string   `json:"protocol_version"`
	Tags            []string `json:"tags"`
	Skills          []Skill  `json:"skills,omitempty"`
	Visibility      string   `json:"visibility"`
	TrustLevel      string   `json:"trust_level"`
	IsEnabled       bool     `json:"is_enabled"`
	HealthStatus    string   `json:"health_status,omitempty"`
	NumStars        float64  `json:"num_stars"`
	RegisteredBy    string   `json:"registered_by,omitempty"`
}

// Skill is one capability advertised on an agent card.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// RegisterAgentRequest creates an agent entry.
type RegisterAgentRequest struct {
	Path            string   `json:"path,omitempty"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	URL             string   `json:"url,omitempty"`
	Version         string   `json:"version,omitempty"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Skills          []Skill  `json:"skills,omitempty"`
	Visibility      string   `json:"visibility,omitempty"`
	AllowedGroups   []string `json:"allowed_groups,omitempty"`
	TrustLevel      string   `json:"trust_level,omitempty"`
}

// SearchRequest is the hybrid search query.
type SearchRequest struct {
	Query       string   `json:"query"`
	EntityTypes []string `json:"entity_types,omitempty"`
	MaxResults  int      `json:"max_results,omitempty"`
}

// SearchResponse groups hits by entity family.
type SearchResponse struct {
	Servers []ServerHit `json:"servers"`
	Agents  []AgentHit  `json:"agents"`
	Tools   []ToolHit   `json:"tools"`
}

// ServerHit is one server search result.
type ServerHit struct {
	Path           string   `json:"path"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	NumTools       int      `json:"num_tools"`
	IsEnabled      bool     `json:"is_enabled"`
	RelevanceScore float64  `json:"relevance_score"`
}

// AgentHit is one agent search result.
type AgentHit struct {
	Path           string  `json:"path"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	URL            string  `json:"url,omitempty"`
	IsEnabled      bool    `json:"is_enabled"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ToolHit is one matching tool fanned out from its owning server.
type ToolHit struct {
	ServerPath     string         `json:"server_path"`
	ServerName     string         `json:"server_name"`
	ToolName       string         `json:"tool_name"`
	Description    string         `json:"description,omitempty"`
	InputSchema    map[string]any `json:"inputSchema,omitempty"`
	RelevanceScore float64        `json:"relevance_score"`
}

// Identity is the caller's resolved identity and grants.
type Identity struct {
	Username          string              `json:"username"`
	Groups            []string            `json:"groups"`
	Scopes            []string            `json:"scopes"`
	IsAdmin           bool                `json:"is_admin"`
	AccessibleServers []string            `json:"accessible_servers"`
	AccessibleAgents  []string            `json:"accessible_agents"`
	UIPermissions     map[string][]string `json:"ui_permissions"`
}

// HealthStatus is one probe outcome.
type HealthStatus struct {
	Path        string    `json:"path"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
}

// FederationSource is one configured upstream registry.
type FederationSource struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Enabled         bool       `json:"enabled"`
	Endpoint        string     `json:"endpoint"`
	SyncOnStartup   bool       `json:"sync_on_startup"`
	SelectedServers []string   `json:"selected_servers"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
}

// SyncOutcome reports what one federation sync did.
type SyncOutcome struct {
	Source   string    `json:"source"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Failed   int       `json:"failed"`
	Errors   []string  `json:"errors,omitempty"`
	SyncedAt time.Time `json:"synced_at"`
}

// ScanResult is one stored security scan outcome.
type ScanResult struct {
	ServerPath string    `json:"server_path"`
	IsSafe     bool      `json:"is_safe"`
	Critical   int       `json:"critical"`
	High       int       `json:"high"`
	Medium     int       `json:"medium"`
	Low        int       `json:"low"`
	Analyzers  []string  `json:"analyzers,omitempty"`
	ScanFailed bool      `json:"scan_failed"`
	Error      string    `json:"error,omitempty"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// ScanReport is the latest scan plus the full history for one entity.
type ScanReport struct {
	Path    string       `json:"path"`
	Latest  *ScanResult  `json:"latest"`
	History []ScanResult `json:"history"`
}
