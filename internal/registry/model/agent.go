package model

import "time"

// Visibility controls who can discover an agent.
type Visibility string

const (
	VisibilityPublic          Visibility = "public"
	VisibilityPrivate         Visibility = "private"
	VisibilityGroupRestricted Visibility = "group-restricted"
)

// TrustLevel is an operator-assigned credibility label for an agent.
type TrustLevel string

const (
	TrustUnverified TrustLevel = "unverified"
	TrustCommunity  TrustLevel = "community"
	TrustVerified   TrustLevel = "verified"
	TrustTrusted    TrustLevel = "trusted"
)

// Skill is one capability advertised on an agent's card. IDs are unique
// within the owning agent.
type Skill struct {
	ID          string     `json:"id"                    bson:"id"`
	Name        string     `json:"name"                  bson:"name"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"        bson:"tags,omitempty"`
	Examples    []string   `json:"examples,omitempty"    bson:"examples,omitempty"`
	InputModes  []string   `json:"input_modes,omitempty" bson:"input_modes,omitempty"`
	OutputModes []string   `json:"output_modes,omitempty" bson:"output_modes,omitempty"`
	Security    []SecurityRequirement `json:"security,omitempty" bson:"security,omitempty"`
}

// SecurityScheme describes one way to authenticate against an agent.
// Only the fields relevant to its Type are populated.
type SecurityScheme struct {
	Type        string `json:"type"                  bson:"type"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	// apiKey
	Name string `json:"name,omitempty" bson:"name,omitempty"`
	In   string `json:"in,omitempty"   bson:"in,omitempty"`
	// http
	Scheme       string `json:"scheme,omitempty"        bson:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"  bson:"bearer_format,omitempty"`
	// openIdConnect
	OpenIDConnectURL string `json:"openIdConnectUrl,omitempty" bson:"open_id_connect_url,omitempty"`
	// oauth2
	Flows map[string]interface{} `json:"flows,omitempty" bson:"flows,omitempty"`
}

// ValidSecuritySchemeType reports whether t is a recognized scheme type.
func ValidSecuritySchemeType(t string) bool {
	switch t {
	case "apiKey", "http", "oauth2", "openIdConnect":
		return true
	}
	return false
}

// SecurityRequirement maps scheme names (which must exist in the agent's
// SecuritySchemes) to the scopes required of each.
type SecurityRequirement map[string][]string

// Agent is the catalog entry for a registered A2A endpoint.
type Agent struct {
	Path            string     `json:"path"                       bson:"_id"`
	Name            string     `json:"name"                       bson:"name"`
	Description     string     `json:"description"                bson:"description"`
	URL             string     `json:"url"                        bson:"url"`
	Version         string     `json:"version,omitempty"          bson:"version,omitempty"`
	ProtocolVersion string     `json:"protocol_version"           bson:"protocol_version"`
	Tags            []string   `json:"tags"                       bson:"tags"`
	License         string     `json:"license,omitempty"          bson:"license,omitempty"`
	Skills          []Skill    `json:"skills"                     bson:"skills"`
	Capabilities    map[string]bool `json:"capabilities,omitempty" bson:"capabilities,omitempty"`
	DefaultInputModes  []string `json:"default_input_modes"       bson:"default_input_modes"`
	DefaultOutputModes []string `json:"default_output_modes"      bson:"default_output_modes"`
	PreferredTransport string   `json:"preferred_transport"       bson:"preferred_transport"`
	SecuritySchemes map[string]SecurityScheme `json:"security_schemes,omitempty" bson:"security_schemes,omitempty"`
	Security        []SecurityRequirement     `json:"security,omitempty"         bson:"security,omitempty"`
	Visibility      Visibility `json:"visibility"                 bson:"visibility"`
	AllowedGroups   []string   `json:"allowed_groups,omitempty"   bson:"allowed_groups,omitempty"`
	TrustLevel      TrustLevel `json:"trust_level"                bson:"trust_level"`
	RegisteredBy    string     `json:"registered_by,omitempty"    bson:"registered_by,omitempty"`
	IsEnabled       bool       `json:"is_enabled"                 bson:"is_enabled"`
	HealthStatus    string     `json:"health_status,omitempty"    bson:"health_status,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"     bson:"last_checked,omitempty"`
	NumStars        float64    `json:"num_stars"                  bson:"num_stars"`
	RatingDetails   []Rating   `json:"rating_details,omitempty"   bson:"rating_details,omitempty"`
	Source          string     `json:"source,omitempty"           bson:"source,omitempty"`
	IsReadOnly      bool       `json:"is_read_only,omitempty"     bson:"is_read_only,omitempty"`
	RegisteredAt    time.Time  `json:"registered_at"              bson:"registered_at"`
	UpdatedAt       time.Time  `json:"updated_at"                 bson:"updated_at"`
}

// DefaultProtocolVersion is assumed when a registration omits one.
const DefaultProtocolVersion = "0.3.0"

// RecomputeStars refreshes NumStars from RatingDetails.
func (a *Agent) RecomputeStars() {
	if len(a.RatingDetails) == 0 {
		a.NumStars = 0
		return
	}
	sum := 0
	for _, r := range a.RatingDetails {
		sum += r.Rating
	}
	a.NumStars = float64(sum) / float64(len(a.RatingDetails))
}

// ApplyRating records one user's vote, replacing any earlier vote by the
// same user.
func (a *Agent) ApplyRating(username string, rating int) {
	for i := range a.RatingDetails {
		if a.RatingDetails[i].Username == username {
			a.RatingDetails[i].Rating = rating
			a.RecomputeStars()
			return
		}
	}
	a.RatingDetails = append(a.RatingDetails, Rating{Username: username, Rating: rating})
	a.RecomputeStars()
}

// RegisterAgentRequest is the payload for creating an agent entry. Path is
// derived from Name when absent.
type RegisterAgentRequest struct {
	Path            string     `json:"path"`
	Name            string     `json:"name" binding:"required"`
	Description     string     `json:"description"`
	URL             string     `json:"url"`
	Version         string     `json:"version"`
	ProtocolVersion string     `json:"protocol_version"`
	Tags            []string   `json:"tags"`
	License         string     `json:"license"`
	Skills          []Skill    `json:"skills"`
	Capabilities    map[string]bool `json:"capabilities"`
	DefaultInputModes  []string `json:"default_input_modes"`
	DefaultOutputModes []string `json:"default_output_modes"`
	PreferredTransport string   `json:"preferred_transport"`
	SecuritySchemes map[string]SecurityScheme `json:"security_schemes"`
	Security        []SecurityRequirement     `json:"security"`
	Visibility      Visibility `json:"visibility"`
	AllowedGroups   []string   `json:"allowed_groups"`
	TrustLevel      TrustLevel `json:"trust_level"`
	// Username is set by the handler from the caller's token.
	Username string `json:"-"`
}

// UpdateAgentRequest is the payload for updating an agent entry.
type UpdateAgentRequest struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	URL             string     `json:"url"`
	Version         string     `json:"version"`
	ProtocolVersion string     `json:"protocol_version"`
	Tags            []string   `json:"tags"`
	License         string     `json:"license"`
	Skills          []Skill    `json:"skills"`
	Capabilities    map[string]bool `json:"capabilities"`
	DefaultInputModes  []string `json:"default_input_modes"`
	DefaultOutputModes []string `json:"default_output_modes"`
	PreferredTransport string   `json:"preferred_transport"`
	SecuritySchemes map[string]SecurityScheme `json:"security_schemes"`
	Security        []SecurityRequirement     `json:"security"`
	Visibility      Visibility `json:"visibility"`
	AllowedGroups   []string   `json:"allowed_groups"`
	TrustLevel      TrustLevel `json:"trust_level"`
}
