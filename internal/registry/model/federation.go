package model

import "time"

// FederationConfig describes one upstream registry to pull servers from.
type FederationConfig struct {
	ID       string `json:"id"       bson:"_id"`
	Name     string `json:"name"     bson:"name"`
	Enabled  bool   `json:"enabled"  bson:"enabled"`
	Endpoint string `json:"endpoint" bson:"endpoint"`
	// AuthEnvVar names an environment variable holding a bearer token for
	// the upstream; empty means unauthenticated.
	AuthEnvVar    string `json:"auth_env_var,omitempty" bson:"auth_env_var,omitempty"`
	SyncOnStartup bool   `json:"sync_on_startup"        bson:"sync_on_startup"`
	// SelectedServers lists upstream server names to import; empty imports
	// nothing (federation is always an explicit opt-in per server).
	SelectedServers []string   `json:"selected_servers"         bson:"selected_servers"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty" bson:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"               bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"               bson:"updated_at"`
}

// SyncOutcome reports what one federation sync run did.
type SyncOutcome struct {
	Source   string    `json:"source"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Failed   int       `json:"failed"`
	Errors   []string  `json:"errors,omitempty"`
	SyncedAt time.Time `json:"synced_at"`
}
