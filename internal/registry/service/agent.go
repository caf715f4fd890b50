package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
)

// AgentIndexer keeps the search index in step with agent writes.
type AgentIndexer interface {
	IndexAgent(ctx context.Context, a *model.Agent) error
	RemoveAgent(ctx context.Context, path string) error
}

// AgentService owns the A2A agent lifecycle.
type AgentService struct {
	repo   repository.AgentRepository
	scans  repository.SecurityScanRepository
	index  AgentIndexer
	logger *zap.Logger

	scanner     AdmissionScanner
	blockUnsafe bool
}

// NewAgentService wires an AgentService.
func NewAgentService(repo repository.AgentRepository, scans repository.SecurityScanRepository, index AgentIndexer, logger *zap.Logger) *AgentService {
	return &AgentService{repo: repo, scans: scans, index: index, logger: logger}
}

// SetScanner enables admission scanning for agents.
func (s *AgentService) SetScanner(sc AdmissionScanner, blockUnsafe bool) {
	s.scanner = sc
	s.blockUnsafe = blockUnsafe
}

var protocolVersionPattern = regexp.MustCompile(`^\d+(\.\d+)*$`)

// Register validates, optionally scans, persists, and indexes a new agent.
func (s *AgentService) Register(ctx context.Context, req *model.RegisterAgentRequest) (*model.Agent, error) {
	path := req.Path
	if path == "" {
		path = model.Slugify(req.Name)
	}
	path = model.NormalizePath(path)
	if err := model.ValidatePath(path); err != nil {
		return nil, err
	}

	agent := &model.Agent{
		Path:               path,
		Name:               req.Name,
		Description:        req.Description,
		URL:                req.URL,
		Version:            req.Version,
		ProtocolVersion:    req.ProtocolVersion,
		Tags:               req.Tags,
		License:            req.License,
		Skills:             req.Skills,
		Capabilities:       req.Capabilities,
		DefaultInputModes:  req.DefaultInputModes,
		DefaultOutputModes: req.DefaultOutputModes,
		PreferredTransport: req.PreferredTransport,
		SecuritySchemes:    req.SecuritySchemes,
		Security:           req.Security,
		Visibility:         req.Visibility,
		AllowedGroups:      req.AllowedGroups,
		TrustLevel:         req.TrustLevel,
		RegisteredBy:       req.Username,
	}
	applyAgentDefaults(agent)
	if err := validateAgent(agent); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	agent.RegisteredAt = now
	agent.UpdatedAt = now
	agent.IsEnabled = false

	if err := s.admit(ctx, agent); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, err
	}
	s.reindex(ctx, agent)
	return agent, nil
}

func applyAgentDefaults(a *model.Agent) {
	if a.ProtocolVersion == "" {
		a.ProtocolVersion = model.DefaultProtocolVersion
	}
	if len(a.DefaultInputModes) == 0 {
		a.DefaultInputModes = []string{"text/plain"}
	}
	if len(a.DefaultOutputModes) == 0 {
		a.DefaultOutputModes = []string{"text/plain"}
	}
	if a.PreferredTransport == "" {
		a.PreferredTransport = "JSONRPC"
	}
	if a.Visibility == "" {
		a.Visibility = model.VisibilityPublic
	}
	if a.TrustLevel == "" {
		a.TrustLevel = model.TrustUnverified
	}
}

// validateAgent enforces the agent card invariants: URL scheme, protocol
// version shape, visibility and trust enums, unique skill IDs, and that
// every security requirement references a defined scheme.
func validateAgent(a *model.Agent) error {
	if a.URL != "" {
		u, err := url.Parse(a.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &model.ErrValidation{Msg: "url must be http or https"}
		}
	}
	if !protocolVersionPattern.MatchString(a.ProtocolVersion) {
		return &model.ErrValidation{Msg: fmt.Sprintf("protocol_version %q is not dotted numeric", a.ProtocolVersion)}
	}
	switch a.Visibility {
	case model.VisibilityPublic, model.VisibilityPrivate, model.VisibilityGroupRestricted:
	default:
		return &model.ErrValidation{Msg: "unknown visibility " + string(a.Visibility)}
	}
	if a.Visibility == model.VisibilityGroupRestricted && len(a.AllowedGroups) == 0 {
		return &model.ErrValidation{Msg: "group-restricted agents require allowed_groups"}
	}
	switch a.TrustLevel {
	case model.TrustUnverified, model.TrustCommunity, model.TrustVerified, model.TrustTrusted:
	default:
		return &model.ErrValidation{Msg: "unknown trust_level " + string(a.TrustLevel)}
	}

	skillIDs := map[string]bool{}
	for _, sk := range a.Skills {
		if sk.ID == "" {
			return &model.ErrValidation{Msg: "skill id is required"}
		}
		if skillIDs[sk.ID] {
			return &model.ErrValidation{Msg: "duplicate skill id " + sk.ID}
		}
		skillIDs[sk.ID] = true
	}

	for name, scheme := range a.SecuritySchemes {
		if !model.ValidSecuritySchemeType(scheme.Type) {
			return &model.ErrValidation{Msg: fmt.Sprintf("security scheme %q has unknown type %q", name, scheme.Type)}
		}
	}
	check := func(reqs []model.SecurityRequirement, where string) error {
		for _, req := range reqs {
			for name := range req {
				if _, ok := a.SecuritySchemes[name]; !ok {
					return &model.ErrValidation{Msg: fmt.Sprintf("%s references undefined security scheme %q", where, name)}
				}
			}
		}
		return nil
	}
	if err := check(a.Security, "security"); err != nil {
		return err
	}
	for _, sk := range a.Skills {
		if err := check(sk.Security, "skill "+sk.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *AgentService) admit(ctx context.Context, a *model.Agent) error {
	if s.scanner == nil {
		return nil
	}
	payload, _ := json.Marshal(a)
	res := s.scanner.Scan(ctx, a.Path, payload)
	scan := model.SecurityScanResult{
		ServerPath: a.Path,
		ScannedAt:  time.Now().UTC(),
		IsSafe:     res.IsSafe,
		Critical:   res.Critical,
		High:       res.High,
		Medium:     res.Medium,
		Low:        res.Low,
		Analyzers:  res.Analyzers,
		Raw:        res.Raw,
		ScanFailed: res.ScanFailed,
		Error:      res.Error,
	}
	if err := s.scans.Append(ctx, scan); err != nil {
		s.logger.Error("persisting scan result failed", zap.String("path", a.Path), zap.Error(err))
	}
	if s.blockUnsafe && (!scan.IsSafe || scan.ScanFailed) {
		return &model.ErrUnsafe{Path: a.Path, Scan: &scan}
	}
	return nil
}

// List returns every agent; access filtering is the handler's job.
func (s *AgentService) List(ctx context.Context) ([]model.Agent, error) {
	return s.repo.ListAll(ctx)
}

// Get returns one agent by path.
func (s *AgentService) Get(ctx context.Context, path string) (*model.Agent, error) {
	return s.repo.Get(ctx, path)
}

// Update applies the non-zero fields of req to an existing agent and
// revalidates the card.
func (s *AgentService) Update(ctx context.Context, path string, req *model.UpdateAgentRequest) (*model.Agent, error) {
	a, err := s.repo.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if a.IsReadOnly {
		return nil, &model.ErrValidation{Msg: "agent " + path + " is read-only (federated)"}
	}

	if req.Name != "" {
		a.Name = req.Name
	}
	if req.Description != "" {
		a.Description = req.Description
	}
	if req.URL != "" {
		a.URL = req.URL
	}
	if req.Version != "" {
		a.Version = req.Version
	}
	if req.ProtocolVersion != "" {
		a.ProtocolVersion = req.ProtocolVersion
	}
	if req.Tags != nil {
		a.Tags = req.Tags
	}
	if req.License != "" {
		a.License = req.License
	}
	if req.Skills != nil {
		a.Skills = req.Skills
	}
	if req.Capabilities != nil {
		a.Capabilities = req.Capabilities
	}
	if req.DefaultInputModes != nil {
		a.DefaultInputModes = req.DefaultInputModes
	}
	if req.DefaultOutputModes != nil {
		a.DefaultOutputModes = req.DefaultOutputModes
	}
	if req.PreferredTransport != "" {
		a.PreferredTransport = req.PreferredTransport
	}
	if req.SecuritySchemes != nil {
		a.SecuritySchemes = req.SecuritySchemes
	}
	if req.Security != nil {
		a.Security = req.Security
	}
	if req.Visibility != "" {
		a.Visibility = req.Visibility
	}
	if req.AllowedGroups != nil {
		a.AllowedGroups = req.AllowedGroups
	}
	if req.TrustLevel != "" {
		a.TrustLevel = req.TrustLevel
	}

	if err := validateAgent(a); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.reindex(ctx, a)
	return a, nil
}

// Delete removes an agent and its index entry.
func (s *AgentService) Delete(ctx context.Context, path string) error {
	deleted, err := s.repo.Delete(ctx, path)
	if err != nil {
		return err
	}
	if !deleted {
		return repository.ErrNotFound
	}
	if s.index != nil {
		if err := s.index.RemoveAgent(ctx, model.NormalizePath(path)); err != nil {
			s.logger.Error("removing agent from index failed", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// Toggle flips the enabled state and refreshes the index snapshot.
func (s *AgentService) Toggle(ctx context.Context, path string, enabled bool) (*model.Agent, error) {
	if err := s.repo.SaveState(ctx, path, enabled); err != nil {
		return nil, err
	}
	a, err := s.repo.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, a)
	return a, nil
}

// Rate records a 1..5 star vote.
func (s *AgentService) Rate(ctx context.Context, path, username string, rating int) (*model.Agent, error) {
	if rating < 1 || rating > 5 {
		return nil, &model.ErrValidation{Msg: "rating must be an integer between 1 and 5"}
	}
	if username == "" {
		return nil, &model.ErrValidation{Msg: "rating requires an authenticated username"}
	}
	a, err := s.repo.UpdateRating(ctx, path, username, rating)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, a)
	return a, nil
}

func (s *AgentService) reindex(ctx context.Context, a *model.Agent) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexAgent(ctx, a); err != nil {
		s.logger.Error("indexing agent failed", zap.String("path", a.Path), zap.Error(err))
	}
}
