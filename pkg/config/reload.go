package config

import (
	"context"
	"os"
	"sync"
	"time"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/log"
)

// ReloadManager keeps a machine profile current while the viewer runs. A
// profile that fails to load leaves the previous one in place.
type ReloadManager struct {
	mu sync.RWMutex

	path    string
	config  *Config
	machine *MachineConfig
	modTime time.Time

	debounceTime time.Duration
	lastReload   time.Time

	onReload func(mc *MachineConfig, changed []string)
	logger   *log.Logger
}

// NewReloadManager loads the profile at path.
func NewReloadManager(path string) (*ReloadManager, error) {
	rm := &ReloadManager{
		path:         path,
		debounceTime: 100 * time.Millisecond,
		logger:       log.GetLogger("config"),
	}
	cfg, mc, modTime, err := rm.load()
	if err != nil {
		return nil, err
	}
	rm.config, rm.machine, rm.modTime = cfg, mc, modTime
	return rm, nil
}

func (rm *ReloadManager) load() (*Config, *MachineConfig, time.Time, error) {
	fi, err := os.Stat(rm.path)
	if err != nil {
		return nil, nil, time.Time{}, errors.Wrap(err, errors.ErrConfigSection, "unable to stat "+rm.path)
	}
	cfg, err := Load(rm.path)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	mc, err := ParseMachineConfig(cfg)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	return cfg, mc, fi.ModTime(), nil
}

// SetDebounceTime sets the minimum time between two reloads.
func (rm *ReloadManager) SetDebounceTime(d time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debounceTime = d
}

// OnReload sets a callback run after every reload that changed something.
func (rm *ReloadManager) OnReload(fn func(mc *MachineConfig, changed []string)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.onReload = fn
}

// Current returns the active profile. Callers must not modify it.
func (rm *ReloadManager) Current() *MachineConfig {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.machine
}

// Path returns the watched file.
func (rm *ReloadManager) Path() string { return rm.path }

// DetectChanges lists sections added, removed or modified in next.
func (rm *ReloadManager) DetectChanges(next *Config) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return changedSections(rm.config, next)
}

func changedSections(prev, next *Config) []string {
	var changed []string
	for _, name := range next.SectionNames() {
		if !prev.HasSection(name) || !sectionsEqual(prev.sections[name], next.sections[name]) {
			changed = append(changed, name)
		}
	}
	for _, name := range prev.SectionNames() {
		if !next.HasSection(name) {
			changed = append(changed, name)
		}
	}
	return changed
}

func sectionsEqual(a, b *Section) bool {
	if len(a.options) != len(b.options) {
		return false
	}
	for k, v := range a.options {
		if w, ok := b.options[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Reload rereads the profile and returns the changed sections.
func (rm *ReloadManager) Reload() ([]string, error) {
	cfg, mc, modTime, err := rm.load()
	if err != nil {
		return nil, err
	}

	rm.mu.Lock()
	changed := changedSections(rm.config, cfg)
	rm.config, rm.machine, rm.modTime = cfg, mc, modTime
	rm.lastReload = time.Now()
	cb := rm.onReload
	rm.mu.Unlock()

	if len(changed) > 0 {
		rm.logger.WithFields(log.Fields{"path": rm.path, "sections": changed}).Info("machine profile reloaded")
		if cb != nil {
			cb(mc, changed)
		}
	}
	return changed, nil
}

// CheckFile reloads when the file's modification time moved and the
// debounce interval has passed.
func (rm *ReloadManager) CheckFile() ([]string, error) {
	fi, err := os.Stat(rm.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigSection, "unable to stat "+rm.path)
	}

	rm.mu.RLock()
	stale := !fi.ModTime().Equal(rm.modTime) && time.Since(rm.lastReload) >= rm.debounceTime
	rm.mu.RUnlock()
	if !stale {
		return nil, nil
	}
	return rm.Reload()
}

// Watch polls the file every interval until ctx is done.
func (rm *ReloadManager) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rm.CheckFile(); err != nil {
				rm.logger.WithError(err).Warn("machine profile reload failed, keeping previous")
			}
		}
	}
}
