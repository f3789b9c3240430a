package tunnelflight

import "sync"

type etagEntry struct {
	etag string
	body []byte
}

// etagCache remembers the last validated response per url, a 304 answer is
// served from here.
type etagCache struct {
	mutex   sync.Mutex
	entries map[string]etagEntry
}

func newEtagCache() *etagCache {
	return &etagCache{entries: make(map[string]etagEntry)}
}

func (c *etagCache) get(url string) (etagEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry, ok := c.entries[url]
	return entry, ok
}

func (c *etagCache) put(url, etag string, body []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[url] = etagEntry{etag: etag, body: body}
}

func (c *etagCache) clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	clear(c.entries)
}
