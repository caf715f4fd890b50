// Package search implements the hybrid semantic+keyword index over registry
// entities: flattened-text ingestion, query tokenization, lexical boosting,
// and hybrid re-ranking of vector hits.
package search

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// stopwords are dropped from queries before matching; they carry no
// discriminating signal for catalog entities.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "will": true,
	"can": true, "has": true, "have": true, "how": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "you": true,
	"your": true, "all": true, "any": true, "get": true, "use": true,
	"using": true, "via": true, "into": true, "about": true, "does": true,
}

var nonWord = regexp.MustCompile(`\W+`)

// Tokenize splits q on non-word characters, lowercases, and drops short
// tokens and stopwords.
func Tokenize(q string) []string {
	var out []string
	for _, tok := range nonWord.Split(strings.ToLower(q), -1) {
		if len(tok) <= 2 || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TokenPattern compiles the case-insensitive alternation used for lexical
// matching. Returns nil when no usable tokens remain.
func TokenPattern(tokens []string) *regexp.Regexp {
	if len(tokens) == 0 {
		return nil
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
}

// ServerText flattens a server into its embedding text: name, description,
// tags, then every tool's name and description.
func ServerText(s *model.Server) string {
	var b strings.Builder
	b.WriteString(s.ServerName)
	if s.Description != "" {
		b.WriteString(" ")
		b.WriteString(s.Description)
	}
	if len(s.Tags) > 0 {
		fmt.Fprintf(&b, " Tags: %s", strings.Join(s.Tags, ", "))
	}
	for _, t := range s.ToolList {
		b.WriteString(" ")
		b.WriteString(t.Name)
		if t.Description != "" {
			b.WriteString(" ")
			b.WriteString(t.Description)
		}
	}
	return b.String()
}

// AgentText flattens an agent into its embedding text: name, description,
// tags, capability names, then every skill's name and description.
func AgentText(a *model.Agent) string {
	var b strings.Builder
	b.WriteString(a.Name)
	if a.Description != "" {
		b.WriteString(" ")
		b.WriteString(a.Description)
	}
	if len(a.Tags) > 0 {
		fmt.Fprintf(&b, " Tags: %s", strings.Join(a.Tags, ", "))
	}
	// Sorted so the same agent always flattens to the same text.
	capabilities := make([]string, 0, len(a.Capabilities))
	for capability := range a.Capabilities {
		capabilities = append(capabilities, capability)
	}
	sort.Strings(capabilities)
	for _, capability := range capabilities {
		b.WriteString(" ")
		b.WriteString(capability)
	}
	for _, sk := range a.Skills {
		b.WriteString(" ")
		b.WriteString(sk.Name)
		if sk.Description != "" {
			b.WriteString(" ")
			b.WriteString(sk.Description)
		}
	}
	return b.String()
}

// ServerDocument builds the index document for a server.
func ServerDocument(s *model.Server, embedding []float32) model.SearchDocument {
	return model.SearchDocument{
		Path:       s.Path,
		EntityType: model.EntityMCPServer,
		Text:       ServerText(s),
		Embedding:  embedding,
		Metadata: model.SearchMeta{
			Name:        s.ServerName,
			Description: s.Description,
			Tags:        s.Tags,
			NumTools:    len(s.ToolList),
			IsEnabled:   s.IsEnabled,
			Transport:   string(s.TransportType),
			Tools:       s.ToolList,
		},
	}
}

// AgentDocument builds the index document for an agent.
func AgentDocument(a *model.Agent, embedding []float32) model.SearchDocument {
	return model.SearchDocument{
		Path:       a.Path,
		EntityType: model.EntityA2AAgent,
		Text:       AgentText(a),
		Embedding:  embedding,
		Metadata: model.SearchMeta{
			Name:        a.Name,
			Description: a.Description,
			Tags:        a.Tags,
			IsEnabled:   a.IsEnabled,
			URL:         a.URL,
		},
	}
}
