package model

// EntityType tags a search document with the kind of entity it indexes.
type EntityType string

const (
	EntityMCPServer EntityType = "mcp_server"
	EntityA2AAgent  EntityType = "a2a_agent"
	EntityMCPTool   EntityType = "mcp_tool"
)

// SearchDocument is one indexed entity: flattened text, its embedding, and
// enough metadata to render a hit without a second repository lookup.
type SearchDocument struct {
	Path       string     `json:"path"        bson:"_id"`
	EntityType EntityType `json:"entity_type" bson:"entity_type"`
	Text       string     `json:"text"        bson:"text"`
	Embedding  []float32  `json:"embedding"   bson:"embedding"`
	Metadata   SearchMeta `json:"metadata"    bson:"metadata"`
}

// SearchMeta is the render snapshot carried on every search document.
type SearchMeta struct {
	Name        string    `json:"name"                  bson:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"        bson:"tags,omitempty"`
	NumTools    int       `json:"num_tools,omitempty"   bson:"num_tools,omitempty"`
	IsEnabled   bool      `json:"is_enabled"            bson:"is_enabled"`
	URL         string    `json:"url,omitempty"         bson:"url,omitempty"`
	Transport   string    `json:"transport,omitempty"   bson:"transport,omitempty"`
	Tools       []ToolDef `json:"tools,omitempty"       bson:"tools,omitempty"`
}

// ScoredDocument pairs an index document with its raw vector similarity,
// before lexical boosting.
type ScoredDocument struct {
	Doc         SearchDocument
	VectorScore float64
}

// SemanticSearchRequest is the query payload for hybrid search.
type SemanticSearchRequest struct {
	Query       string       `json:"query" binding:"required"`
	EntityTypes []EntityType `json:"entity_types,omitempty"`
	MaxResults  int          `json:"max_results,omitempty"`
}

// ServerHit is one server result with its relevance score.
type ServerHit struct {
	Path           string   `json:"path"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	NumTools       int      `json:"num_tools"`
	IsEnabled      bool     `json:"is_enabled"`
	Transport      string   `json:"transport,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
}

// AgentHit is one agent result with its relevance score.
type AgentHit struct {
	Path           string   `json:"path"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	URL            string   `json:"url,omitempty"`
	IsEnabled      bool     `json:"is_enabled"`
	RelevanceScore float64  `json:"relevance_score"`
}

// ToolHit is one matching tool, fanned out from its owning server with the
// registered input schema copied through.
type ToolHit struct {
	ServerPath     string                 `json:"server_path"`
	ServerName     string                 `json:"server_name"`
	ToolName       string                 `json:"tool_name"`
	Description    string                 `json:"description,omitempty"`
	InputSchema    map[string]interface{} `json:"inputSchema,omitempty"`
	RelevanceScore float64                `json:"relevance_score"`
}

// SemanticSearchResponse groups hits by entity family.
type SemanticSearchResponse struct {
	Servers []ServerHit `json:"servers"`
	Agents  []AgentHit  `json:"agents"`
	Tools   []ToolHit   `json:"tools"`
}
