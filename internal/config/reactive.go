package config

import (
	"sync"
	"time"
)

// Reactive holds the small set of settings spec §4.5 requires callers to be
// able to observe change: pause state, storage cap class, default scope,
// sanitizer behavior and remote endpoint credentials. Set publishes a
// Change to every active Subscribe channel, the same fan-out shape the
// teacher's relay broker uses for SSE delivery.
type Reactive struct {
	mu sync.RWMutex

	paused               bool
	storageCapClass      CapClass
	defaultScope         Scope
	sanitizeURLParams    bool
	customHeaderPatterns []string
	endpointURL          string
	endpointKey          string

	subs map[int]chan Change
	next int
}

// Change describes a single reactive key transition.
type Change struct {
	Key   string
	At    time.Time
	Value any
}

// NewReactive builds a Reactive store seeded with spec defaults, optionally
// overridden by a config.yaml and then by environment variables.
func NewReactive(yamlPath string) (*Reactive, error) {
	r := &Reactive{
		paused:            false,
		storageCapClass:   Cap500MB,
		defaultScope:      ScopeCurrentTab,
		sanitizeURLParams: true,
		subs:              make(map[int]chan Change),
	}

	y, err := loadYAMLOverrides(yamlPath)
	if err != nil {
		return nil, err
	}
	if y.StorageCapClass != "" {
		r.storageCapClass = CapClass(y.StorageCapClass)
	}
	if y.DefaultScope != "" {
		r.defaultScope = Scope(y.DefaultScope)
	}
	if len(y.CustomHeaderPatterns) > 0 {
		r.customHeaderPatterns = append([]string(nil), y.CustomHeaderPatterns...)
	}

	if v := getEnvOrDefault("CLIPENGINE_STORAGE_CAP_CLASS", ""); v != "" {
		r.storageCapClass = CapClass(v)
	}
	if v := getEnvOrDefault("CLIPENGINE_DEFAULT_SCOPE", ""); v != "" {
		r.defaultScope = Scope(v)
	}
	r.sanitizeURLParams = getEnvBoolOrDefault("CLIPENGINE_SANITIZE_URL_PARAMS", r.sanitizeURLParams)
	r.endpointURL = getEnvOrDefault("CLIPENGINE_ENDPOINT_URL", "")
	r.endpointKey = getEnvOrDefault("CLIPENGINE_ENDPOINT_KEY", "")

	return r, nil
}

// Subscribe registers a new change listener. The returned func unregisters
// it; callers must call it to avoid leaking the channel.
func (r *Reactive) Subscribe() (<-chan Change, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	ch := make(chan Change, 16)
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Reactive) publish(key string, value any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	change := Change{Key: key, At: time.Now(), Value: value}
	for _, ch := range r.subs {
		select {
		case ch <- change:
		default:
			// slow subscriber misses a tick rather than blocking the setter
		}
	}
}

func (r *Reactive) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// SetPaused updates the pause flag and, when it actually changes, notifies
// subscribers so Capture can run its attach/detach cycle.
func (r *Reactive) SetPaused(v bool) {
	r.mu.Lock()
	changed := r.paused != v
	r.paused = v
	r.mu.Unlock()
	if changed {
		r.publish("paused", v)
	}
}

func (r *Reactive) StorageCapClass() CapClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.storageCapClass
}

// SetStorageCapClass updates the cap class and, when it changes, notifies
// subscribers so the Buffer Manager can run an immediate pass.
func (r *Reactive) SetStorageCapClass(v CapClass) {
	r.mu.Lock()
	changed := r.storageCapClass != v
	r.storageCapClass = v
	r.mu.Unlock()
	if changed {
		r.publish("storage_cap_class", v)
	}
}

func (r *Reactive) DefaultScope() Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultScope
}

func (r *Reactive) SetDefaultScope(v Scope) {
	r.mu.Lock()
	r.defaultScope = v
	r.mu.Unlock()
	r.publish("default_scope", v)
}

func (r *Reactive) SanitizeURLParams() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sanitizeURLParams
}

func (r *Reactive) SetSanitizeURLParams(v bool) {
	r.mu.Lock()
	r.sanitizeURLParams = v
	r.mu.Unlock()
	r.publish("sanitize_url_params", v)
}

func (r *Reactive) CustomHeaderPatterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.customHeaderPatterns...)
}

func (r *Reactive) SetCustomHeaderPatterns(v []string) {
	r.mu.Lock()
	r.customHeaderPatterns = append([]string(nil), v...)
	r.mu.Unlock()
	r.publish("custom_header_patterns", v)
}

func (r *Reactive) Endpoint() (url, key string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpointURL, r.endpointKey
}

func (r *Reactive) SetEndpoint(url, key string) {
	r.mu.Lock()
	r.endpointURL = url
	r.endpointKey = key
	r.mu.Unlock()
	r.publish("endpoint", url)
}
