package tunnelflight

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"tunnelflight/pkg/textutil"

	"github.com/antzucaro/matchr"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const report_tunnels_fetch = "tunnels.fetch"

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy title match.
const fuzzyThreshold = 0.85

type Tunnel struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Country      string `json:"country"`
	Size         string `json:"size"`
	Manufacturer string `json:"manufacturer"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Status       string `json:"status"`
}

// knownTunnels names a few tunnels when the tunnel list is unavailable.
var knownTunnels = map[int]string{
	225: "Milton Keynes iFLY",
	228: "SF Bay iFLY",
	230: "Paraclete XP SkyVenture",
	242: "Manchester iFLY",
	248: "Basingstoke iFLY",
	249: "InFlight Dubai",
	250: "Toronto - Oakville iFLY",
	264: "Downunder iFLY",
}

type rawTunnel struct {
	EntryId      *flexInt    `json:"entry_id"`
	Title        *flexString `json:"title"`
	Country      *flexString `json:"country"`
	Size         *flexString `json:"size"`
	Manufacturer *flexString `json:"manufacturer"`
	Address      *flexString `json:"address"`
	City         *flexString `json:"address_city"`
	Status       *flexString `json:"status"`
}

func orDefault(value *flexString, fallback string) string {
	if value == nil {
		return fallback
	}
	return string(*value)
}

// parseTunnels reads the tunnel list, entries without a positive entry_id
// are dropped.
func parseTunnels(data []byte) (map[int]Tunnel, error) {
	var elements []json.RawMessage
	err := json.Unmarshal(data, &elements)
	if err != nil {
		return nil, fmt.Errorf("tunnels: %w", err)
	}

	tunnels := make(map[int]Tunnel, len(elements))
	for _, element := range elements {
		var raw rawTunnel
		if json.Unmarshal(element, &raw) != nil {
			continue
		}
		id := int(intOf(raw.EntryId))
		if id <= 0 {
			continue
		}
		tunnels[id] = Tunnel{
			ID:           id,
			Title:        orDefault(raw.Title, "Unknown"),
			Country:      orDefault(raw.Country, "Unknown"),
			Size:         orDefault(raw.Size, "Unknown"),
			Manufacturer: orDefault(raw.Manufacturer, "Unknown"),
			Address:      orDefault(raw.Address, ""),
			City:         orDefault(raw.City, ""),
			Status:       orDefault(raw.Status, "Unknown"),
		}
	}
	return tunnels, nil
}

const tunnelCacheKey = "tunnels"

// expirable.LRU runs a cleanup goroutine that can never be stopped when it has
// a ttl, so clients with the same ttl share one lru, each under its own key.
var (
	sharedTunnelMutex sync.Mutex
	sharedTunnelLRUs  = map[time.Duration]*expirable.LRU[uint64, map[int]Tunnel]{}
	tunnelCacheIds    atomic.Uint64
)

func sharedTunnelLRU(ttl time.Duration) *expirable.LRU[uint64, map[int]Tunnel] {
	sharedTunnelMutex.Lock()
	defer sharedTunnelMutex.Unlock()
	lru, ok := sharedTunnelLRUs[ttl]
	if !ok {
		// a size of 0 is unbounded
		lru = expirable.NewLRU[uint64, map[int]Tunnel](0, nil, ttl)
		sharedTunnelLRUs[ttl] = lru
	}
	return lru
}

// tunnelCache holds the tunnel list of one client. Without a ttl it is only
// dropped by purge.
type tunnelCache struct {
	id    uint64
	lru   *expirable.LRU[uint64, map[int]Tunnel]
	group singleflight.Group
}

func newTunnelCache(ttl time.Duration) *tunnelCache {
	cache := &tunnelCache{id: tunnelCacheIds.Add(1)}
	if ttl > 0 {
		cache.lru = sharedTunnelLRU(ttl)
	} else {
		// no ttl, no cleanup goroutine
		cache.lru = expirable.NewLRU[uint64, map[int]Tunnel](1, nil, 0)
	}
	return cache
}

func (c *tunnelCache) get() (map[int]Tunnel, bool) {
	return c.lru.Get(c.id)
}

func (c *tunnelCache) set(tunnels map[int]Tunnel) {
	c.lru.Add(c.id, tunnels)
}

func (c *tunnelCache) purge() {
	c.lru.Remove(c.id)
}

// Tunnels returns every known tunnel keyed by id, fetching the list on first use.
func (c *Client) Tunnels(ctx context.Context) (map[int]Tunnel, error) {
	ctx, span := tracer.Start(ctx, "client:Tunnels")
	defer span.End()

	tunnels, err := c.tunnelList(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch tunnels")
		return nil, err
	}
	span.SetAttributes(attribute.Int("tunnels", len(tunnels)))
	return maps.Clone(tunnels), nil
}

// RefreshTunnels drops the cached tunnel list and fetches it again.
func (c *Client) RefreshTunnels(ctx context.Context) (map[int]Tunnel, error) {
	c.tunnels.purge()
	return c.Tunnels(ctx)
}

func (c *Client) tunnelList(ctx context.Context) (map[int]Tunnel, error) {
	tunnels, ok := c.tunnels.get()
	if ok {
		return tunnels, nil
	}

	result, err, _ := c.tunnels.group.Do(tunnelCacheKey, func() (any, error) {
		body, err := c.fetcher.getJSON(ctx, endpointTunnels)
		if err != nil {
			return nil, err
		}
		tunnels, err := parseTunnels(body)
		if err != nil {
			return nil, &ParseError{Endpoint: endpointTunnels, Err: err}
		}
		c.tunnels.set(tunnels)
		c.tel.ReportCount(report_tunnels_fetch, int64(len(tunnels)))
		return tunnels, nil
	})
	if err != nil {
		c.tel.ReportWarning(report_tunnels_fetch, err)
		return nil, err
	}
	return result.(map[int]Tunnel), nil
}

// TunnelName resolves a tunnel id to a display name. It never fails: an id
// missing from the tunnel list falls back to a few well known tunnels and
// then to a generic label.
func (c *Client) TunnelName(ctx context.Context, id int) string {
	tunnels, err := c.tunnelList(ctx)
	if err == nil {
		tunnel, ok := tunnels[id]
		if ok && tunnel.Title != "" {
			return tunnel.Title
		}
	}
	return fallbackTunnelName(id)
}

func fallbackTunnelName(id int) string {
	name, ok := knownTunnels[id]
	if ok {
		return name
	}
	return fmt.Sprintf("Tunnel ID %d", id)
}

type TunnelQuery struct {
	// Search matches the title or city, case-insensitively.
	Search string
	// Country matches part of the country name, case-insensitively.
	Country string
	// Fuzzy also accepts titles that are close to Search but not containing it.
	Fuzzy bool
}

func (q TunnelQuery) matches(tunnel Tunnel) bool {
	if q.Country != "" && !textutil.ContainsFold(tunnel.Country, q.Country) {
		return false
	}
	if q.Search == "" {
		return true
	}
	if textutil.ContainsFold(tunnel.Title, q.Search) || textutil.ContainsFold(tunnel.City, q.Search) {
		return true
	}
	if !q.Fuzzy {
		return false
	}
	similarity := matchr.JaroWinkler(strings.ToLower(tunnel.Title), strings.ToLower(q.Search), false)
	return similarity >= fuzzyThreshold
}

// FindTunnels returns the tunnels matching query sorted by title.
func (c *Client) FindTunnels(ctx context.Context, query TunnelQuery) ([]Tunnel, error) {
	tunnels, err := c.Tunnels(ctx)
	if err != nil {
		return nil, err
	}
	var out []Tunnel
	for _, tunnel := range tunnels {
		if query.matches(tunnel) {
			out = append(out, tunnel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

// TunnelCountries lists every country that has a tunnel, sorted.
func (c *Client) TunnelCountries(ctx context.Context) ([]string, error) {
	tunnels, err := c.Tunnels(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, tunnel := range tunnels {
		if tunnel.Country != "" {
			seen[tunnel.Country] = struct{}{}
		}
	}
	countries := make([]string, 0, len(seen))
	for country := range seen {
		countries = append(countries, country)
	}
	sort.Strings(countries)
	return countries, nil
}
