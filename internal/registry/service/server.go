// Package service implements the business logic between the HTTP handlers
// and the repositories: validation, the registration admission flow, rating
// aggregation, enablement, federated upserts, and search-index sync. All
// errors leaving this package are domain kinds; handlers translate them.
package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
	"github.com/openharbor-io/beacon/internal/scanner"
)

// ProxyEmitter is the slice of the proxy package the services need.
type ProxyEmitter interface {
	Emit(servers []model.Server) error
}

// ServerIndexer keeps the search index in step with server writes.
type ServerIndexer interface {
	IndexServer(ctx context.Context, s *model.Server) error
	RemoveServer(ctx context.Context, path string) error
}

// AdmissionScanner runs the pre-registration security scan.
type AdmissionScanner interface {
	Scan(ctx context.Context, path string, payload []byte) scanner.Result
}

// ServerService owns the MCP server lifecycle.
type ServerService struct {
	repo   repository.ServerRepository
	scans  repository.SecurityScanRepository
	index  ServerIndexer
	proxy  ProxyEmitter
	logger *zap.Logger

	scanner     AdmissionScanner // nil = scanning disabled
	blockUnsafe bool
}

// NewServerService wires a ServerService. index and proxy may be nil in
// tests; scanning is off until SetScanner.
func NewServerService(repo repository.ServerRepository, scans repository.SecurityScanRepository, index ServerIndexer, proxy ProxyEmitter, logger *zap.Logger) *ServerService {
	return &ServerService{repo: repo, scans: scans, index: index, proxy: proxy, logger: logger}
}

// SetScanner enables admission scanning. With blockUnsafe, a scan that is
// unsafe or failed rejects the registration; otherwise the verdict is
// recorded and registration proceeds.
func (s *ServerService) SetScanner(sc AdmissionScanner, blockUnsafe bool) {
	s.scanner = sc
	s.blockUnsafe = blockUnsafe
}

// Register validates, optionally scans, persists, and indexes a new server.
// New servers always start disabled.
func (s *ServerService) Register(ctx context.Context, req *model.RegisterServerRequest) (*model.Server, error) {
	path := req.Path
	if path == "" {
		path = model.Slugify(req.ServerName)
	}
	path = model.NormalizePath(path)
	if err := model.ValidatePath(path); err != nil {
		return nil, err
	}

	transport := req.TransportType
	if transport == "" {
		transport = model.TransportStreamableHTTP
	}
	if !model.ValidTransport(transport) {
		return nil, &model.ErrValidation{Msg: "unknown transport_type " + string(transport)}
	}

	now := time.Now().UTC()
	srv := &model.Server{
		Path:          path,
		ServerName:    req.ServerName,
		Description:   req.Description,
		Version:       req.Version,
		Tags:          req.Tags,
		License:       req.License,
		ProxyPassURL:  req.ProxyPassURL,
		TransportType: transport,
		ToolList:      req.ToolList,
		NumTools:      len(req.ToolList),
		IsEnabled:     false,
		RegisteredAt:  now,
		UpdatedAt:     now,
	}

	if err := s.admit(ctx, srv); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, srv); err != nil {
		return nil, err
	}
	s.reindex(ctx, srv)
	return srv, nil
}

// admit runs the security scan gate when configured. Every scan result is
// persisted regardless of the verdict.
func (s *ServerService) admit(ctx context.Context, srv *model.Server) error {
	if s.scanner == nil {
		return nil
	}
	payload, _ := json.Marshal(srv)
	res := s.scanner.Scan(ctx, srv.Path, payload)
	scan := model.SecurityScanResult{
		ServerPath: srv.Path,
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
		s.logger.Error("persisting scan result failed", zap.String("path", srv.Path), zap.Error(err))
	}
	if s.blockUnsafe && (!scan.IsSafe || scan.ScanFailed) {
		return &model.ErrUnsafe{Path: srv.Path, Scan: &scan}
	}
	return nil
}

// List returns every server. Access filtering is the handler's job.
func (s *ServerService) List(ctx context.Context) ([]model.Server, error) {
	return s.repo.ListAll(ctx)
}

// Get returns one server by path.
func (s *ServerService) Get(ctx context.Context, path string) (*model.Server, error) {
	return s.repo.Get(ctx, path)
}

// Update applies the non-zero fields of req to an existing server.
// Read-only federated entries reject updates.
func (s *ServerService) Update(ctx context.Context, path string, req *model.UpdateServerRequest) (*model.Server, error) {
	srv, err := s.repo.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if srv.IsReadOnly {
		return nil, &model.ErrValidation{Msg: "server " + path + " is read-only (federated)"}
	}
	if req.TransportType != "" && !model.ValidTransport(req.TransportType) {
		return nil, &model.ErrValidation{Msg: "unknown transport_type " + string(req.TransportType)}
	}

	if req.ServerName != "" {
		srv.ServerName = req.ServerName
	}
	if req.Description != "" {
		srv.Description = req.Description
	}
	if req.Version != "" {
		srv.Version = req.Version
	}
	if req.Tags != nil {
		srv.Tags = req.Tags
	}
	if req.License != "" {
		srv.License = req.License
	}
	if req.ProxyPassURL != "" {
		srv.ProxyPassURL = req.ProxyPassURL
	}
	if req.TransportType != "" {
		srv.TransportType = req.TransportType
	}
	if req.ToolList != nil {
		srv.ToolList = req.ToolList
		srv.NumTools = len(req.ToolList)
	}

	if err := s.repo.Update(ctx, srv); err != nil {
		return nil, err
	}
	s.reindex(ctx, srv)
	return srv, nil
}

// Delete removes a server, its index entry, and its proxy route.
func (s *ServerService) Delete(ctx context.Context, path string) error {
	srv, err := s.repo.Get(ctx, path)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, path)
	if err != nil {
		return err
	}
	if !deleted {
		return repository.ErrNotFound
	}
	if s.index != nil {
		if err := s.index.RemoveServer(ctx, srv.Path); err != nil {
			s.logger.Error("removing server from index failed", zap.String("path", path), zap.Error(err))
		}
	}
	if srv.IsEnabled {
		s.emitProxy(ctx)
	}
	return nil
}

// Toggle flips the enabled state, refreshes the index snapshot, and emits
// the proxy config.
func (s *ServerService) Toggle(ctx context.Context, path string, enabled bool) (*model.Server, error) {
	if err := s.repo.SaveState(ctx, path, enabled); err != nil {
		return nil, err
	}
	srv, err := s.repo.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, srv)
	s.emitProxy(ctx)
	return srv, nil
}

// Rate records a 1..5 star vote and returns the server with the recomputed
// mean.
func (s *ServerService) Rate(ctx context.Context, path, username string, rating int) (*model.Server, error) {
	if rating < 1 || rating > 5 {
		return nil, &model.ErrValidation{Msg: "rating must be an integer between 1 and 5"}
	}
	if username == "" {
		return nil, &model.ErrValidation{Msg: "rating requires an authenticated username"}
	}
	srv, err := s.repo.UpdateRating(ctx, path, username, rating)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, srv)
	return srv, nil
}

// FederatedUpsert creates or overwrites a server pulled from an upstream
// registry, enables it, and reindexes. It reports whether the entry was
// newly created. Local edits to federated entries do not survive a sync.
func (s *ServerService) FederatedUpsert(ctx context.Context, srv *model.Server) (bool, error) {
	srv.IsReadOnly = true
	srv.IsEnabled = true
	now := time.Now().UTC()
	srv.UpdatedAt = now

	created := false
	existing, err := s.repo.Get(ctx, srv.Path)
	switch err {
	case nil:
		srv.RegisteredAt = existing.RegisteredAt
		srv.NumStars = existing.NumStars
		srv.RatingDetails = existing.RatingDetails
		if err := s.repo.Update(ctx, srv); err != nil {
			return false, err
		}
	case repository.ErrNotFound:
		srv.RegisteredAt = now
		if err := s.repo.Create(ctx, srv); err != nil {
			return false, err
		}
		created = true
	default:
		return false, err
	}

	if err := s.repo.SaveState(ctx, srv.Path, true); err != nil {
		return created, err
	}
	s.reindex(ctx, srv)
	return created, nil
}

// EmitProxy rewrites the reverse-proxy config from the current catalog.
func (s *ServerService) EmitProxy(ctx context.Context) {
	s.emitProxy(ctx)
}

func (s *ServerService) emitProxy(ctx context.Context) {
	if s.proxy == nil {
		return
	}
	servers, err := s.repo.ListAll(ctx)
	if err != nil {
		s.logger.Error("listing servers for proxy emission failed", zap.Error(err))
		return
	}
	if err := s.proxy.Emit(servers); err != nil {
		s.logger.Error("proxy emission failed", zap.Error(err))
	}
}

// reindex pushes the current entity into the search index; index failures
// never fail the write that triggered them.
func (s *ServerService) reindex(ctx context.Context, srv *model.Server) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexServer(ctx, srv); err != nil {
		s.logger.Error("indexing server failed", zap.String("path", srv.Path), zap.Error(err))
	}
}
