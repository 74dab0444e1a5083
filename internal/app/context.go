package app

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/infra/config"
	"github.com/kvantos/patchbay/internal/store"
	"github.com/kvantos/patchbay/internal/tracker"
)

// Context holds the daemon's shared resources. It acts as the single
// source of truth for controllers and the background update run.
type Context struct {
	ConfigPath string
	Config     *config.Config
	Logger     zerolog.Logger
	Tracker    *tracker.Tracker
	Store      *store.Store
	HTTP       *http.Client

	// cfgMu serializes config mutation from POST /config and POST /update.
	cfgMu sync.Mutex
}

func NewContext(cfgPath string, cfg *config.Config, log zerolog.Logger) *Context {
	return &Context{
		ConfigPath: cfgPath,
		Config:     cfg,
		Logger:     log,
		Tracker:    tracker.New(),
		HTTP:       &http.Client{},
	}
}

// SaveWireConfig folds a wire-shaped config into the daemon config and
// persists it.
func (c *Context) SaveWireConfig(w domain.AppConfig) error {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.Config.ApplyWire(w)
	return config.Save(c.ConfigPath, c.Config)
}

// PatchConfig returns a copy of the current patch section.
func (c *Context) PatchConfig() config.PatchConfig {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.Config.Patch
}

// WireConfig returns the current config in its external shape.
func (c *Context) WireConfig() domain.AppConfig {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.Config.Wire()
}
