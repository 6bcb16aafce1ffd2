// Package container wires the generation layer services using go.uber.org/dig.
package container

import (
	"net/http"

	"go.uber.org/dig"

	"github.com/crystaldolphin/genlayer/internal/artifacts"
	"github.com/crystaldolphin/genlayer/internal/config"
	"github.com/crystaldolphin/genlayer/internal/dialog"
	"github.com/crystaldolphin/genlayer/internal/providers"
	"github.com/crystaldolphin/genlayer/internal/schema"
)

// Container holds the resolved process-lifetime singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg       *config.Config
	registry  *providers.Registry
	artifacts *artifacts.Store
	mutexes   *dialog.Mutexes
}

func (c *Container) Config() *config.Config         { return c.cfg }
func (c *Container) Registry() *providers.Registry  { return c.registry }
func (c *Container) Artifacts() *artifacts.Store    { return c.artifacts }
func (c *Container) DialogMutexes() *dialog.Mutexes { return c.mutexes }

// workspaceRoot is a named string type so dig can distinguish the runtime
// workspace directory from plain strings.
type workspaceRoot string

// New builds and wires all services for the runtime workspace rtws.
func New(rtws string, cfg *config.Config) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() workspaceRoot { return workspaceRoot(rtws) }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(newHTTPClient); err != nil {
		return nil, err
	}
	if err := d.Provide(newArtifactStore); err != nil {
		return nil, err
	}
	if err := d.Provide(newRegistry); err != nil {
		return nil, err
	}
	if err := d.Provide(dialog.NewMutexes); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		cfg *config.Config,
		registry *providers.Registry,
		store *artifacts.Store,
		mutexes *dialog.Mutexes,
	) {
		result = &Container{
			cfg:       cfg,
			registry:  registry,
			artifacts: store,
			mutexes:   mutexes,
		}
	})
	return result, err
}

// newHTTPClient has no overall timeout; cancellation comes from the caller's
// context.
func newHTTPClient() *http.Client {
	return &http.Client{}
}

func newArtifactStore(rtws workspaceRoot) *artifacts.Store {
	return artifacts.NewStore(string(rtws))
}

func newRegistry(client *http.Client, store *artifacts.Store) *providers.Registry {
	var resolver schema.ArtifactResolver = store
	return providers.NewRegistry(client, resolver)
}
