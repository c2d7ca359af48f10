package remote

import "sort"

// Entry is one configured upstream source with its derived mirror key.
type Entry struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	BaseURL string `json:"url"`

	Client Client `json:"-"`
}

// Registry maps derived source keys to configured clients. It is built
// once at startup and read-only afterwards, so no locking is needed.
type Registry struct {
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]*Entry{}}
}

// Add registers a source under the given key. A second source deriving the
// same key (two accounts pointing at the same server) shares the first
// entry's client and mirror.
func (r *Registry) Add(key, name, baseURL string, client Client) *Entry {
	if existing, ok := r.entries[key]; ok {
		return existing
	}
	entry := &Entry{
		Key:     key,
		Name:    name,
		BaseURL: baseURL,
		Client:  client,
	}
	r.entries[key] = entry
	return entry
}

func (r *Registry) Lookup(key string) (*Entry, bool) {
	entry, ok := r.entries[key]
	return entry, ok
}

// Keys returns all registered source keys, sorted for stable iteration.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns all registered sources sorted by name.
func (r *Registry) Entries() []*Entry {
	entries := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}
