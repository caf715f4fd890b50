package config

import (
	"strings"
	"testing"
)

func base() Settings {
	return Settings{
		StorageBackend:          BackendFile,
		FileDataDir:             "data",
		DocDBHost:               "db.example.com",
		DocDBPort:               27017,
		DocDBDatabase:           "beacon",
		Namespace:               "prod",
		VectorSimilarity:        "cosine",
		NumCandidatesMultiplier: 10,
		EmbeddingsProvider:      ProviderLocal,
		EmbeddingsDimensions:    384,
	}
}

func TestValidate(t *testing.T) {
	s := base()
	if err := s.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	bad := base()
	bad.StorageBackend = "dynamodb"
	if err := bad.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}

	bad = base()
	bad.VectorSimilarity = "manhattan"
	if err := bad.Validate(); err == nil {
		t.Error("unknown similarity metric accepted")
	}

	bad = base()
	bad.EmbeddingsDimensions = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero dimensions accepted")
	}
}

func TestNormalizeProvider(t *testing.T) {
	if got := normalizeProvider("sentence-transformers"); got != ProviderLocal {
		t.Errorf("sentence-transformers normalized to %q, want %q", got, ProviderLocal)
	}
	if got := normalizeProvider(ProviderLiteLLM); got != ProviderLiteLLM {
		t.Errorf("litellm normalized to %q", got)
	}
}

func TestMongoURI(t *testing.T) {
	s := base()
	s.DocDBUsername = "svc"
	s.DocDBPassword = "p@ss"
	s.DocDBUseTLS = true
	s.DocDBDirectConnection = true

	uri := s.MongoURI()
	for _, want := range []string{"mongodb://", "svc:p%40ss@", "db.example.com:27017", "/beacon", "tls=true", "directConnection=true"} {
		if !strings.Contains(uri, want) {
			t.Errorf("MongoURI() = %q, missing %q", uri, want)
		}
	}

	// IAM auth never embeds credentials in the URI.
	s.DocDBUseIAM = true
	if strings.Contains(s.MongoURI(), "svc") {
		t.Errorf("IAM URI leaked username: %q", s.MongoURI())
	}
}

func TestCollectionNames(t *testing.T) {
	s := base()
	if got := s.ServersCollection(); got != "mcp_servers_prod" {
		t.Errorf("ServersCollection() = %q", got)
	}
	if got := s.EmbeddingsCollection(); got != "mcp_embeddings_384_prod" {
		t.Errorf("EmbeddingsCollection() = %q", got)
	}
	if got := s.FederationCollection(); got != "mcp_federation_config_prod" {
		t.Errorf("FederationCollection() = %q", got)
	}
}

func TestEffectiveEmbeddingsAPIKey(t *testing.T) {
	s := base()
	s.EmbeddingsAPIKey = "explicit"
	s.EmbeddingsModelName = "openai/text-embedding-3-small"
	if got := s.EffectiveEmbeddingsAPIKey(); got != "explicit" {
		t.Errorf("explicit key not preferred, got %q", got)
	}

	s.EmbeddingsAPIKey = ""
	t.Setenv("OPENAI_API_KEY", "from-env")
	if got := s.EffectiveEmbeddingsAPIKey(); got != "from-env" {
		t.Errorf("env fallback = %q, want from-env", got)
	}

	s.EmbeddingsModelName = "bedrock/amazon.titan-embed-text-v2:0"
	if got := s.EffectiveEmbeddingsAPIKey(); got != "" {
		t.Errorf("bedrock should not resolve a key, got %q", got)
	}
}
