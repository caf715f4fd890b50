package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/config"
	"github.com/openharbor-io/beacon/internal/registry/model"
)

// The file backend keeps one JSON document per entity under well-known
// directories, with a separate *_state.json per kind enumerating the
// enabled paths. Writes go through a temp file and rename so readers never
// observe a torn document. A missing state file means everything disabled.

// entityFileName maps a routing path to its on-disk name: strip the leading
// slash, flatten the remaining slashes, append the kind suffix.
func entityFileName(path, suffix string) string {
	return strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "_") + suffix
}

// stateFile is the enabled/disabled ledger for one entity kind.
type stateFile struct {
	Enabled []string `json:"enabled"`
}

func (sf stateFile) has(path string) bool {
	path = "/" + strings.Trim(path, "/")
	for _, p := range sf.Enabled {
		if p == path {
			return true
		}
	}
	return false
}

func (sf *stateFile) set(path string, enabled bool) {
	path = "/" + strings.Trim(path, "/")
	out := sf.Enabled[:0]
	for _, p := range sf.Enabled {
		if p != path {
			out = append(out, p)
		}
	}
	sf.Enabled = out
	if enabled {
		sf.Enabled = append(sf.Enabled, path)
		sort.Strings(sf.Enabled)
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// fileStore is the shared core of the per-kind file repositories: a
// directory of documents plus an optional state ledger, guarded by one
// mutex since the files themselves are not concurrency-safe.
type fileStore struct {
	dir       string
	suffix    string
	statePath string // empty for kinds without enablement
	mu        sync.Mutex
}

func newFileStore(dir, suffix, stateName string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	fs := &fileStore{dir: dir, suffix: suffix}
	if stateName != "" {
		fs.statePath = filepath.Join(dir, stateName)
	}
	return fs, nil
}

func (fs *fileStore) docPath(key string) string {
	return filepath.Join(fs.dir, entityFileName(key, fs.suffix))
}

func (fs *fileStore) readState() stateFile {
	var sf stateFile
	if fs.statePath == "" {
		return sf
	}
	if err := readJSONFile(fs.statePath, &sf); err != nil {
		// Absent or unreadable state defaults to everything disabled.
		return stateFile{}
	}
	return sf
}

func (fs *fileStore) writeState(sf stateFile) error {
	return writeJSONFile(fs.statePath, &sf)
}

// create writes a new document, failing when the mapped filename exists.
// Distinct paths that flatten to the same filename collide on purpose.
func (fs *fileStore) create(key string, v any) error {
	p := fs.docPath(key)
	if _, err := os.Stat(p); err == nil {
		return ErrAlreadyExists
	}
	return writeJSONFile(p, v)
}

func (fs *fileStore) update(key string, v any) error {
	p := fs.docPath(key)
	if _, err := os.Stat(p); err != nil {
		return ErrNotFound
	}
	return writeJSONFile(p, v)
}

func (fs *fileStore) get(key string, v any) error {
	if err := readJSONFile(fs.docPath(key), v); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (fs *fileStore) delete(key string) (bool, error) {
	err := os.Remove(fs.docPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if fs.statePath != "" {
		sf := fs.readState()
		sf.set(key, false)
		if err := fs.writeState(sf); err != nil {
			return true, err
		}
	}
	return true, nil
}

// listDocs reads every document in the directory, skipping the state file
// and anything that is not a JSON document of this kind.
func (fs *fileStore) listDocs(each func(data []byte) error) error {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", fs.dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fs.suffix) || strings.HasSuffix(name, "_state.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, name))
		if err != nil {
			return err
		}
		if err := each(data); err != nil {
			return err
		}
	}
	return nil
}

// fileServerRepo implements ServerRepository over a directory of JSON files.
type fileServerRepo struct {
	store  *fileStore
	logger *zap.Logger
}

func newFileServerRepo(dir string, logger *zap.Logger) (*fileServerRepo, error) {
	store, err := newFileStore(dir, ".json", "server_state.json")
	if err != nil {
		return nil, err
	}
	return &fileServerRepo{store: store, logger: logger}, nil
}

func (r *fileServerRepo) LoadAll(ctx context.Context) (map[string]model.Server, error) {
	list, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Server, len(list))
	for _, s := range list {
		out[s.Path] = s
	}
	return out, nil
}

func (r *fileServerRepo) ListAll(_ context.Context) ([]model.Server, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	state := r.store.readState()
	var out []model.Server
	err := r.store.listDocs(func(data []byte) error {
		var s model.Server
		if err := json.Unmarshal(data, &s); err != nil {
			r.logger.Warn("skipping unreadable server document", zap.Error(err))
			return nil
		}
		s.IsEnabled = state.has(s.Path)
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *fileServerRepo) Get(_ context.Context, path string) (*model.Server, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var s model.Server
	if err := r.store.get(path, &s); err != nil {
		return nil, err
	}
	s.IsEnabled = r.store.readState().has(path)
	return &s, nil
}

func (r *fileServerRepo) Create(_ context.Context, s *model.Server) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.create(s.Path, s)
}

func (r *fileServerRepo) Update(_ context.Context, s *model.Server) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s.UpdatedAt = time.Now().UTC()
	return r.store.update(s.Path, s)
}

func (r *fileServerRepo) Delete(_ context.Context, path string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.delete(path)
}

func (r *fileServerRepo) SaveState(_ context.Context, path string, enabled bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := os.Stat(r.store.docPath(path)); err != nil {
		return ErrNotFound
	}
	sf := r.store.readState()
	sf.set(path, enabled)
	return r.store.writeState(sf)
}

func (r *fileServerRepo) GetState(_ context.Context, path string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.readState().has(path), nil
}

func (r *fileServerRepo) UpdateRating(ctx context.Context, path, username string, rating int) (*model.Server, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var s model.Server
	if err := r.store.get(path, &s); err != nil {
		return nil, err
	}
	s.ApplyRating(username, rating)
	s.UpdatedAt = time.Now().UTC()
	if err := r.store.update(path, &s); err != nil {
		return nil, err
	}
	s.IsEnabled = r.store.readState().has(path)
	return &s, nil
}

func (r *fileServerRepo) UpdateHealth(_ context.Context, path, status string, checkedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var s model.Server
	if err := r.store.get(path, &s); err != nil {
		return err
	}
	s.HealthStatus = status
	s.LastChecked = &checkedAt
	return r.store.update(path, &s)
}

// fileAgentRepo implements AgentRepository; agent documents carry the
// _agent.json suffix so the two kinds can never collide in one directory.
type fileAgentRepo struct {
	store  *fileStore
	logger *zap.Logger
}

func newFileAgentRepo(dir string, logger *zap.Logger) (*fileAgentRepo, error) {
	store, err := newFileStore(dir, "_agent.json", "agent_state.json")
	if err != nil {
		return nil, err
	}
	return &fileAgentRepo{store: store, logger: logger}, nil
}

func (r *fileAgentRepo) LoadAll(ctx context.Context) (map[string]model.Agent, error) {
	list, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Agent, len(list))
	for _, a := range list {
		out[a.Path] = a
	}
	return out, nil
}

func (r *fileAgentRepo) ListAll(_ context.Context) ([]model.Agent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	state := r.store.readState()
	var out []model.Agent
	err := r.store.listDocs(func(data []byte) error {
		var a model.Agent
		if err := json.Unmarshal(data, &a); err != nil {
			r.logger.Warn("skipping unreadable agent document", zap.Error(err))
			return nil
		}
		a.IsEnabled = state.has(a.Path)
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *fileAgentRepo) Get(_ context.Context, path string) (*model.Agent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var a model.Agent
	if err := r.store.get(path, &a); err != nil {
		return nil, err
	}
	a.IsEnabled = r.store.readState().has(path)
	return &a, nil
}

func (r *fileAgentRepo) Create(_ context.Context, a *model.Agent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.create(a.Path, a)
}

func (r *fileAgentRepo) Update(_ context.Context, a *model.Agent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a.UpdatedAt = time.Now().UTC()
	return r.store.update(a.Path, a)
}

func (r *fileAgentRepo) Delete(_ context.Context, path string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.delete(path)
}

func (r *fileAgentRepo) SaveState(_ context.Context, path string, enabled bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := os.Stat(r.store.docPath(path)); err != nil {
		return ErrNotFound
	}
	sf := r.store.readState()
	sf.set(path, enabled)
	return r.store.writeState(sf)
}

func (r *fileAgentRepo) GetState(_ context.Context, path string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.readState().has(path), nil
}

func (r *fileAgentRepo) UpdateRating(_ context.Context, path, username string, rating int) (*model.Agent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var a model.Agent
	if err := r.store.get(path, &a); err != nil {
		return nil, err
	}
	a.ApplyRating(username, rating)
	a.UpdatedAt = time.Now().UTC()
	if err := r.store.update(path, &a); err != nil {
		return nil, err
	}
	a.IsEnabled = r.store.readState().has(path)
	return &a, nil
}

func (r *fileAgentRepo) UpdateHealth(_ context.Context, path, status string, checkedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var a model.Agent
	if err := r.store.get(path, &a); err != nil {
		return err
	}
	a.HealthStatus = status
	a.LastChecked = &checkedAt
	return r.store.update(path, &a)
}

// fileScopeRepo implements ScopeRepository. Scope names contain slashes
// (mcp-servers-unrestricted/read), which the filename mapping flattens.
type fileScopeRepo struct {
	store *fileStore
}

func newFileScopeRepo(dir string) (*fileScopeRepo, error) {
	store, err := newFileStore(dir, ".json", "")
	if err != nil {
		return nil, err
	}
	return &fileScopeRepo{store: store}, nil
}

func (r *fileScopeRepo) ListAll(_ context.Context) ([]model.Scope, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []model.Scope
	err := r.store.listDocs(func(data []byte) error {
		var s model.Scope
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fileScopeRepo) Get(_ context.Context, name string) (*model.Scope, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var s model.Scope
	if err := r.store.get(name, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *fileScopeRepo) Create(_ context.Context, s *model.Scope) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.create(s.Name, s)
}

func (r *fileScopeRepo) Update(_ context.Context, s *model.Scope) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.update(s.Name, s)
}

func (r *fileScopeRepo) Delete(_ context.Context, name string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.delete(name)
}

// fileScanRepo implements SecurityScanRepository: one JSON per entity
// holding the full scan history, newest first.
type fileScanRepo struct {
	store *fileStore
}

func newFileScanRepo(dir string) (*fileScanRepo, error) {
	store, err := newFileStore(dir, ".json", "")
	if err != nil {
		return nil, err
	}
	return &fileScanRepo{store: store}, nil
}

func (r *fileScanRepo) Append(_ context.Context, result model.SecurityScanResult) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var history []model.SecurityScanResult
	if err := r.store.get(result.ServerPath, &history); err != nil && err != ErrNotFound {
		return err
	}
	history = append(history, result)
	sort.Slice(history, func(i, j int) bool {
		return history[i].ScannedAt.After(history[j].ScannedAt)
	})
	return writeJSONFile(r.store.docPath(result.ServerPath), history)
}

func (r *fileScanRepo) Latest(ctx context.Context, path string) (*model.SecurityScanResult, error) {
	history, err := r.History(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	return &history[0], nil
}

func (r *fileScanRepo) History(_ context.Context, path string) ([]model.SecurityScanResult, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var history []model.SecurityScanResult
	if err := r.store.get(path, &history); err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return history, nil
}

// fileFederationRepo implements FederationConfigRepository.
type fileFederationRepo struct {
	store *fileStore
}

func newFileFederationRepo(dir string) (*fileFederationRepo, error) {
	store, err := newFileStore(dir, ".json", "")
	if err != nil {
		return nil, err
	}
	return &fileFederationRepo{store: store}, nil
}

func (r *fileFederationRepo) ListAll(_ context.Context) ([]model.FederationConfig, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []model.FederationConfig
	err := r.store.listDocs(func(data []byte) error {
		var c model.FederationConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fileFederationRepo) Get(_ context.Context, id string) (*model.FederationConfig, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var c model.FederationConfig
	if err := r.store.get(id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *fileFederationRepo) Create(_ context.Context, c *model.FederationConfig) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.create(c.ID, c)
}

func (r *fileFederationRepo) Update(_ context.Context, c *model.FederationConfig) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c.UpdatedAt = time.Now().UTC()
	return r.store.update(c.ID, c)
}

func (r *fileFederationRepo) Delete(_ context.Context, id string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.delete(id)
}

// newFileBackend wires the file repositories plus the embedded vector index.
func newFileBackend(cfg config.Settings, logger *zap.Logger) (*Backend, error) {
	servers, err := newFileServerRepo(cfg.ServersDir(), logger)
	if err != nil {
		return nil, err
	}
	agents, err := newFileAgentRepo(cfg.AgentsDir(), logger)
	if err != nil {
		return nil, err
	}
	scopes, err := newFileScopeRepo(cfg.ScopesDir())
	if err != nil {
		return nil, err
	}
	scans, err := newFileScanRepo(cfg.ScansDir())
	if err != nil {
		return nil, err
	}
	federation, err := newFileFederationRepo(cfg.FederationDir())
	if err != nil {
		return nil, err
	}
	search, err := newChromemSearchRepo(cfg.SearchIndexDir(), logger)
	if err != nil {
		return nil, err
	}

	logger.Info("file storage backend ready", zap.String("dir", cfg.FileDataDir))
	return &Backend{
		Servers:    servers,
		Agents:     agents,
		Scopes:     scopes,
		Scans:      scans,
		Federation: federation,
		Search:     search,
	}, nil
}
