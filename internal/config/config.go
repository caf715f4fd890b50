package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Storage backend names accepted in storage_backend.
const (
	BackendFile       = "file"
	BackendDocumentDB = "documentdb"
	BackendMongoCE    = "mongodb-ce"
	BackendMongo      = "mongodb"
)

// Embedding provider names accepted in embeddings_provider.
// "sentence-transformers" is accepted as a legacy alias for "local".
const (
	ProviderLocal   = "local"
	ProviderLiteLLM = "litellm"
)

// Settings is the immutable runtime configuration. It is constructed exactly
// once at startup from defaults, an optional beacon.yaml, and environment
// variables; everything derived from it (URIs, collection names, directory
// paths, timeouts) is a method so callers never re-read viper.
type Settings struct {
	// Storage
	StorageBackend string
	FileDataDir    string

	DocDBHost             string
	DocDBPort             int
	DocDBDatabase         string
	DocDBUsername         string
	DocDBPassword         string
	DocDBUseTLS           bool
	DocDBTLSCAFile        string
	DocDBUseIAM           bool
	DocDBDirectConnection bool
	Namespace             string

	VectorIndexName         string
	VectorSimilarity        string
	NumCandidatesMultiplier int

	// Embeddings
	EmbeddingsProvider   string
	EmbeddingsModelName  string
	EmbeddingsDimensions int
	EmbeddingsBaseURL    string
	EmbeddingsAPIKey     string
	EmbeddingsAWSRegion  string

	// Health monitor
	HealthIntervalSeconds int
	HealthTimeoutSeconds  int

	// Security scanning
	ScanEnabled           bool
	ScanCommand           string
	ScanTimeoutSeconds    int
	BlockUnsafeServers    bool
	AgentScanEnabled      bool
	BlockUnsafeAgents     bool

	// Reverse proxy emission
	ProxyConfigPath    string
	ProxyReloadCommand string
	ProxyPIDFile       string

	// HTTP edge
	Port         int
	CORSOrigins  []string
	RateLimitRPS int

	// Auth
	JWTSecret   string
	AuthDevMode bool

	// Search
	SearchMaxPerType int
}

// Load reads configuration once and returns the frozen Settings. A missing
// config file is fine; a malformed one is not.
func Load(logger *zap.Logger) (Settings, error) {
	viper.SetConfigName("beacon")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("storage_backend", BackendFile)
	viper.SetDefault("file_data_dir", "data")

	viper.SetDefault("documentdb_host", "localhost")
	viper.SetDefault("documentdb_port", 27017)
	viper.SetDefault("documentdb_database", "beacon")
	viper.SetDefault("documentdb_username", "")
	viper.SetDefault("documentdb_password", "")
	viper.SetDefault("documentdb_use_tls", false)
	viper.SetDefault("documentdb_tls_ca_file", "")
	viper.SetDefault("documentdb_use_iam", false)
	viper.SetDefault("documentdb_direct_connection", false)
	viper.SetDefault("documentdb_namespace", "default")

	viper.SetDefault("mongodb_vector_index_name", "embedding_vector_index")
	viper.SetDefault("mongodb_vector_similarity_metric", "cosine")
	viper.SetDefault("mongodb_vector_num_candidates_multiplier", 10)

	viper.SetDefault("embeddings_provider", ProviderLocal)
	viper.SetDefault("embeddings_model_name", "all-minilm")
	viper.SetDefault("embeddings_model_dimensions", 384)
	viper.SetDefault("embeddings_base_url", "http://localhost:11434")
	viper.SetDefault("embeddings_api_key", "")
	viper.SetDefault("embeddings_aws_region", "")

	viper.SetDefault("health_check_interval_seconds", 300)
	viper.SetDefault("health_check_timeout_seconds", 2)

	viper.SetDefault("security_scan_enabled", false)
	viper.SetDefault("security_scan_command", "")
	viper.SetDefault("security_scan_timeout", 60)
	viper.SetDefault("security_block_unsafe_servers", false)
	viper.SetDefault("agent_security_scan_enabled", false)
	viper.SetDefault("agent_security_block_unsafe", false)

	viper.SetDefault("proxy_config_path", "")
	viper.SetDefault("proxy_reload_command", "")
	viper.SetDefault("proxy_pid_file", "")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)

	viper.SetDefault("auth_jwt_secret", "")
	viper.SetDefault("auth_dev_mode", false)

	viper.SetDefault("search_max_per_type", 3)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	s := Settings{
		StorageBackend: viper.GetString("storage_backend"),
		FileDataDir:    viper.GetString("file_data_dir"),

		DocDBHost:             viper.GetString("documentdb_host"),
		DocDBPort:             viper.GetInt("documentdb_port"),
		DocDBDatabase:         viper.GetString("documentdb_database"),
		DocDBUsername:         viper.GetString("documentdb_username"),
		DocDBPassword:         viper.GetString("documentdb_password"),
		DocDBUseTLS:           viper.GetBool("documentdb_use_tls"),
		DocDBTLSCAFile:        viper.GetString("documentdb_tls_ca_file"),
		DocDBUseIAM:           viper.GetBool("documentdb_use_iam"),
		DocDBDirectConnection: viper.GetBool("documentdb_direct_connection"),
		Namespace:             viper.GetString("documentdb_namespace"),

		VectorIndexName:         viper.GetString("mongodb_vector_index_name"),
		VectorSimilarity:        viper.GetString("mongodb_vector_similarity_metric"),
		NumCandidatesMultiplier: viper.GetInt("mongodb_vector_num_candidates_multiplier"),

		EmbeddingsProvider:   normalizeProvider(viper.GetString("embeddings_provider")),
		EmbeddingsModelName:  viper.GetString("embeddings_model_name"),
		EmbeddingsDimensions: viper.GetInt("embeddings_model_dimensions"),
		EmbeddingsBaseURL:    viper.GetString("embeddings_base_url"),
		EmbeddingsAPIKey:     viper.GetString("embeddings_api_key"),
		EmbeddingsAWSRegion:  viper.GetString("embeddings_aws_region"),

		HealthIntervalSeconds: viper.GetInt("health_check_interval_seconds"),
		HealthTimeoutSeconds:  viper.GetInt("health_check_timeout_seconds"),

		ScanEnabled:        viper.GetBool("security_scan_enabled"),
		ScanCommand:        viper.GetString("security_scan_command"),
		ScanTimeoutSeconds: viper.GetInt("security_scan_timeout"),
		BlockUnsafeServers: viper.GetBool("security_block_unsafe_servers"),
		AgentScanEnabled:   viper.GetBool("agent_security_scan_enabled"),
		BlockUnsafeAgents:  viper.GetBool("agent_security_block_unsafe"),

		ProxyConfigPath:    viper.GetString("proxy_config_path"),
		ProxyReloadCommand: viper.GetString("proxy_reload_command"),
		ProxyPIDFile:       viper.GetString("proxy_pid_file"),

		Port:         viper.GetInt("server.port"),
		CORSOrigins:  viper.GetStringSlice("server.cors_origins"),
		RateLimitRPS: viper.GetInt("server.rate_limit_rps"),

		JWTSecret:   viper.GetString("auth_jwt_secret"),
		AuthDevMode: viper.GetBool("auth_dev_mode"),

		SearchMaxPerType: viper.GetInt("search_max_per_type"),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func normalizeProvider(p string) string {
	if p == "sentence-transformers" {
		return ProviderLocal
	}
	return p
}

// Validate rejects settings the rest of the system cannot act on.
func (s Settings) Validate() error {
	switch s.StorageBackend {
	case BackendFile, BackendDocumentDB, BackendMongoCE, BackendMongo:
	default:
		return fmt.Errorf("unknown storage_backend %q", s.StorageBackend)
	}
	switch s.VectorSimilarity {
	case "cosine", "euclidean", "dotProduct":
	default:
		return fmt.Errorf("unknown mongodb_vector_similarity_metric %q", s.VectorSimilarity)
	}
	switch s.EmbeddingsProvider {
	case ProviderLocal, ProviderLiteLLM:
	default:
		return fmt.Errorf("unknown embeddings_provider %q", s.EmbeddingsProvider)
	}
	if s.EmbeddingsDimensions <= 0 {
		return fmt.Errorf("embeddings_model_dimensions must be positive, got %d", s.EmbeddingsDimensions)
	}
	if s.NumCandidatesMultiplier <= 0 {
		return fmt.Errorf("mongodb_vector_num_candidates_multiplier must be positive, got %d", s.NumCandidatesMultiplier)
	}
	return nil
}

// MongoURI assembles the connection string for the document backends.
// Credentials are included only for password auth; IAM auth passes them
// through the MONGODB-AWS mechanism instead.
func (s Settings) MongoURI() string {
	host := fmt.Sprintf("%s:%d", s.DocDBHost, s.DocDBPort)
	var userinfo string
	if !s.DocDBUseIAM && s.DocDBUsername != "" {
		userinfo = url.QueryEscape(s.DocDBUsername) + ":" + url.QueryEscape(s.DocDBPassword) + "@"
	}
	params := url.Values{}
	if s.DocDBUseTLS {
		params.Set("tls", "true")
	}
	if s.DocDBDirectConnection {
		params.Set("directConnection", "true")
	}
	uri := fmt.Sprintf("mongodb://%s%s/%s", userinfo, host, s.DocDBDatabase)
	if enc := params.Encode(); enc != "" {
		uri += "?" + enc
	}
	return uri
}

// Collection names, namespaced per deployment. The embeddings collection also
// carries the vector dimension so a model change never reuses stale vectors.

func (s Settings) ServersCollection() string    { return "mcp_servers_" + s.Namespace }
func (s Settings) AgentsCollection() string     { return "mcp_agents_" + s.Namespace }
func (s Settings) ScopesCollection() string     { return "mcp_scopes_" + s.Namespace }
func (s Settings) ScansCollection() string      { return "mcp_security_scans_" + s.Namespace }
func (s Settings) FederationCollection() string { return "mcp_federation_config_" + s.Namespace }

func (s Settings) EmbeddingsCollection() string {
	return fmt.Sprintf("mcp_embeddings_%d_%s", s.EmbeddingsDimensions, s.Namespace)
}

// File-backend directory layout.

func (s Settings) ServersDir() string    { return filepath.Join(s.FileDataDir, "servers") }
func (s Settings) AgentsDir() string     { return filepath.Join(s.FileDataDir, "agents") }
func (s Settings) ScopesDir() string     { return filepath.Join(s.FileDataDir, "scopes") }
func (s Settings) ScansDir() string      { return filepath.Join(s.FileDataDir, "security_scans") }
func (s Settings) FederationDir() string { return filepath.Join(s.FileDataDir, "federation") }
func (s Settings) SearchIndexDir() string {
	return filepath.Join(s.FileDataDir, "search_index")
}

// Effective timeouts.

func (s Settings) HealthInterval() time.Duration {
	return time.Duration(s.HealthIntervalSeconds) * time.Second
}

func (s Settings) HealthTimeout() time.Duration {
	return time.Duration(s.HealthTimeoutSeconds) * time.Second
}

func (s Settings) ScanTimeout() time.Duration {
	return time.Duration(s.ScanTimeoutSeconds) * time.Second
}

// EffectiveEmbeddingsAPIKey resolves the key for remote embedding providers:
// the explicit setting wins, then the conventional environment variable for
// the model's provider prefix.
func (s Settings) EffectiveEmbeddingsAPIKey() string {
	if s.EmbeddingsAPIKey != "" {
		return s.EmbeddingsAPIKey
	}
	switch {
	case strings.HasPrefix(s.EmbeddingsModelName, "openai/"):
		return os.Getenv("OPENAI_API_KEY")
	case strings.HasPrefix(s.EmbeddingsModelName, "cohere/"):
		return os.Getenv("COHERE_API_KEY")
	}
	return ""
}
