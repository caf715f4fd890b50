package model

import "time"

// TransportType identifies how clients speak to an MCP server.
type TransportType string

const (
	TransportStdio          TransportType = "stdio"
	TransportStreamableHTTP TransportType = "streamable-http"
	TransportSSE            TransportType = "sse"
)

// ValidTransport reports whether t is one of the supported transports.
func ValidTransport(t TransportType) bool {
	switch t {
	case TransportStdio, TransportStreamableHTTP, TransportSSE:
		return true
	}
	return false
}

// ToolDef describes a single tool exposed by an MCP server. InputSchema is
// carried opaquely and copied through to search results untouched.
type ToolDef struct {
	Name        string                 `json:"name"                  bson:"name"`
	Description string                 `json:"description,omitempty" bson:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty" bson:"input_schema,omitempty"`
}

// Rating is one user's star vote for an entity.
type Rating struct {
	Username string `json:"username" bson:"username"`
	Rating   int    `json:"rating"   bson:"rating"`
}

// Server is the core catalog entry for a registered MCP endpoint. Path is
// the primary key and doubles as the gateway routing prefix.
type Server struct {
	Path          string        `json:"path"                     bson:"_id"`
	ServerName    string        `json:"server_name"              bson:"server_name"`
	Description   string        `json:"description"              bson:"description"`
	Version       string        `json:"version,omitempty"        bson:"version,omitempty"`
	Tags          []string      `json:"tags"                     bson:"tags"`
	License       string        `json:"license,omitempty"        bson:"license,omitempty"`
	ProxyPassURL  string        `json:"proxy_pass_url"           bson:"proxy_pass_url"`
	TransportType TransportType `json:"transport_type"           bson:"transport_type"`
	ToolList      []ToolDef     `json:"tool_list"                bson:"tool_list"`
	NumTools      int           `json:"num_tools"                bson:"num_tools"`
	IsEnabled     bool          `json:"is_enabled"               bson:"is_enabled"`
	HealthStatus  string        `json:"health_status,omitempty"  bson:"health_status,omitempty"`
	LastChecked   *time.Time    `json:"last_checked,omitempty"   bson:"last_checked,omitempty"`
	NumStars      float64       `json:"num_stars"                bson:"num_stars"`
	RatingDetails []Rating      `json:"rating_details,omitempty" bson:"rating_details,omitempty"`
	// Source and IsReadOnly are set on entries pulled from an upstream
	// registry; read-only entries are recreated idempotently on sync.
	Source       string    `json:"source,omitempty"       bson:"source,omitempty"`
	IsReadOnly   bool      `json:"is_read_only,omitempty" bson:"is_read_only,omitempty"`
	RegisteredAt time.Time `json:"registered_at"          bson:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"             bson:"updated_at"`
}

// RecomputeStars refreshes NumTools and NumStars from their source-of-truth
// fields. NumStars is the arithmetic mean of all votes, 0 with no votes.
func (s *Server) RecomputeStars() {
	s.NumTools = len(s.ToolList)
	if len(s.RatingDetails) == 0 {
		s.NumStars = 0
		return
	}
	sum := 0
	for _, r := range s.RatingDetails {
		sum += r.Rating
	}
	s.NumStars = float64(sum) / float64(len(s.RatingDetails))
}

// ApplyRating records one user's vote, replacing any earlier vote by the
// same user, and recomputes the mean.
func (s *Server) ApplyRating(username string, rating int) {
	for i := range s.RatingDetails {
		if s.RatingDetails[i].Username == username {
			s.RatingDetails[i].Rating = rating
			s.RecomputeStars()
			return
		}
	}
	s.RatingDetails = append(s.RatingDetails, Rating{Username: username, Rating: rating})
	s.RecomputeStars()
}

// RegisterServerRequest is the payload for creating a server entry.
type RegisterServerRequest struct {
	Path          string        `json:"path"`
	ServerName    string        `json:"server_name" binding:"required"`
	Description   string        `json:"description"`
	Version       string        `json:"version"`
	Tags          []string      `json:"tags"`
	License       string        `json:"license"`
	ProxyPassURL  string        `json:"proxy_pass_url"`
	TransportType TransportType `json:"transport_type"`
	ToolList      []ToolDef     `json:"tool_list"`
	// Username is set by the handler from the caller's token, never from
	// the client body.
	Username string `json:"-"`
}

// UpdateServerRequest is the payload for updating a server entry. Zero-value
// fields are left unchanged; Tags and ToolList replace wholesale when non-nil.
type UpdateServerRequest struct {
	ServerName    string        `json:"server_name"`
	Description   string        `json:"description"`
	Version       string        `json:"version"`
	Tags          []string      `json:"tags"`
	License       string        `json:"license"`
	ProxyPassURL  string        `json:"proxy_pass_url"`
	TransportType TransportType `json:"transport_type"`
	ToolList      []ToolDef     `json:"tool_list"`
}

// ToggleRequest flips an entity's enabled state.
type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// RateRequest records a star vote.
type RateRequest struct {
	Rating int `json:"rating" binding:"required"`
}
