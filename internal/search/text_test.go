package search

import (
	"strings"
	"testing"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"what is the current time", []string{"current", "time"}},
		{"convert-currency, please!", []string{"convert", "currency", "please"}},
		{"a an it", nil},
		{"GPU", []string{"gpu"}},
	}
	for _, c := range cases {
		got := Tokenize(c.in)
		if len(got) != len(c.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestTokenPattern(t *testing.T) {
	p := TokenPattern([]string{"time", "clock"})
	if !p.MatchString("CurrentTime") {
		t.Error("pattern should match case-insensitively inside words")
	}
	if p.MatchString("calendar") {
		t.Error("pattern matched unrelated text")
	}
	if TokenPattern(nil) != nil {
		t.Error("empty token list should produce nil pattern")
	}
}

func TestServerText(t *testing.T) {
	s := &model.Server{
		ServerName:  "currenttime",
		Description: "Time utilities",
		Tags:        []string{"time", "utils"},
		ToolList: []model.ToolDef{
			{Name: "get_time", Description: "return the current UTC time"},
		},
	}
	text := ServerText(s)
	for _, want := range []string{"currenttime", "Time utilities", "Tags: time, utils", "get_time", "return the current UTC time"} {
		if !strings.Contains(text, want) {
			t.Errorf("ServerText missing %q: %s", want, text)
		}
	}
}

func TestAgentText_stableCapabilityOrder(t *testing.T) {
	a := &model.Agent{
		Name:         "weather-agent",
		Capabilities: map[string]bool{"streaming": true, "batch": true, "alerts": true},
		Skills:       []model.Skill{{Name: "forecast", Description: "7 day forecast"}},
	}
	first := AgentText(a)
	for i := 0; i < 10; i++ {
		if AgentText(a) != first {
			t.Fatal("AgentText is not deterministic across calls")
		}
	}
	if !strings.Contains(first, "forecast") {
		t.Errorf("AgentText missing skill text: %s", first)
	}
}

func TestServerDocument_metadataSnapshot(t *testing.T) {
	s := &model.Server{
		Path:       "/currenttime",
		ServerName: "currenttime",
		IsEnabled:  true,
		ToolList:   []model.ToolDef{{Name: "get_time"}},
	}
	doc := ServerDocument(s, []float32{0.1, 0.2})
	if doc.EntityType != model.EntityMCPServer {
		t.Errorf("EntityType = %q", doc.EntityType)
	}
	if doc.Metadata.NumTools != 1 || !doc.Metadata.IsEnabled {
		t.Errorf("metadata snapshot wrong: %+v", doc.Metadata)
	}
	if len(doc.Embedding) != 2 {
		t.Errorf("embedding not carried: %v", doc.Embedding)
	}
}
