// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Reload hooks fired when the watched configuration file changes.

package control

import (
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Reloader dispatches configuration changes to registered hooks.
type Reloader struct {
	mu    sync.Mutex
	hooks []func(Config)
}

// RegisterReloadHook adds a component reload listener.
func (r *Reloader) RegisterReloadHook(fn func(Config)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// TriggerHotReloadSync invokes all hooks synchronously.
func (r *Reloader) TriggerHotReloadSync(cfg Config) {
	r.mu.Lock()
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
}

// Watch re-reads path on every change and triggers the hooks with the new
// configuration. Invalid revisions are passed to onError and skipped.
func (r *Reloader) Watch(path string, onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		r.TriggerHotReloadSync(cfg)
	})
	v.WatchConfig()
	return nil
}

