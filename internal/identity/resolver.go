// Package identity maps raw VCS author identities onto roster members.
//
// Resolution is a cascade: exact key lookups, then fuzzy handle and display-name
// similarity, then handle pattern rewrites and organisation e-mail domains. The
// lookup tables are rebuilt wholesale by Initialize and published with an atomic
// swap, so Resolve never observes a half-built cache.
package identity

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
)

const (
	handleSimilarityThreshold = 0.8
	handleMaxLengthDiff       = 2
	nameSimilarityThreshold   = 0.7
)

// Method names the cascade stage that produced a match.
type Method string

const (
	MethodNone    Method = ""
	MethodExact   Method = "exact"
	MethodFuzzy   Method = "fuzzy"
	MethodPattern Method = "pattern"
)

type nameEntry struct {
	normalized string
	member     *roster.TeamMember
}

type cache struct {
	forward      map[string]*roster.TeamMember
	reverse      map[string]*roster.TeamMember
	names        []nameEntry
	handles      []nameEntry
	keysByMember map[string][]string
	members      int
}

func emptyCache() *cache {
	return &cache{
		forward:      map[string]*roster.TeamMember{},
		reverse:      map[string]*roster.TeamMember{},
		keysByMember: map[string][]string{},
	}
}

// Resolver resolves author identities against the most recently initialised roster.
// It is safe for concurrent use.
type Resolver struct {
	orgDomains map[string]struct{}
	current    atomic.Pointer[cache]
}

// NewResolver creates an empty resolver. orgDomains lists e-mail domains that belong to
// the organisation; addresses in those domains resolve by their local part.
func NewResolver(orgDomains ...string) *Resolver {
	r := &Resolver{orgDomains: make(map[string]struct{}, len(orgDomains))}
	for _, d := range orgDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			r.orgDomains[d] = struct{}{}
		}
	}
	r.current.Store(emptyCache())
	return r
}

// Initialize rebuilds the lookup tables from members and swaps them in.
//
// Primary keys (id, handle, e-mail, e-mail local part, display name) are registered for
// every member before any generated name variant, and the first member to claim a key
// keeps it. Roster order therefore decides collisions.
func (r *Resolver) Initialize(members []roster.TeamMember) {
	c := emptyCache()
	c.members = len(members)

	owned := make([]*roster.TeamMember, len(members))
	for i := range members {
		m := members[i]
		owned[i] = &m
	}

	register := func(key string, m *roster.TeamMember) {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		if _, taken := c.forward[key]; taken {
			return
		}
		c.forward[key] = m
		c.keysByMember[m.ID] = append(c.keysByMember[m.ID], key)
	}

	for _, m := range owned {
		register(m.ID, m)
		register(m.VCSHandle, m)
		if m.Email != "" {
			register(m.Email, m)
			local, _ := splitEmail(m.Email)
			register(local, m)
		}
		register(m.DisplayName, m)

		c.reverse[strings.ToLower(m.ID)] = m
		if m.VCSHandle != "" {
			c.reverse[strings.ToLower(m.VCSHandle)] = m
		}
		if n := normalizeName(m.DisplayName); n != "" {
			c.names = append(c.names, nameEntry{normalized: n, member: m})
		}
		if h := strings.ToLower(strings.TrimSpace(m.VCSHandle)); h != "" {
			c.handles = append(c.handles, nameEntry{normalized: h, member: m})
		}
		if m.Email != "" {
			local, _ := splitEmail(m.Email)
			if local != "" {
				c.handles = append(c.handles, nameEntry{normalized: local, member: m})
			}
		}
	}
	for _, m := range owned {
		for _, v := range nameVariants(m.DisplayName) {
			register(v, m)
		}
	}
	for id := range c.keysByMember {
		sort.Strings(c.keysByMember[id])
	}

	r.current.Store(c)
}

// Resolve returns the roster member for the identity, or nil when nothing matches.
// The returned member must be treated as read-only.
func (r *Resolver) Resolve(handle, displayName, email string) *roster.TeamMember {
	m, _ := r.ResolveWithMethod(handle, displayName, email)
	return m
}

// ResolveWithMethod is Resolve that also reports which cascade stage matched.
func (r *Resolver) ResolveWithMethod(handle, displayName, email string) (*roster.TeamMember, Method) {
	c := r.current.Load()

	handle = strings.ToLower(strings.TrimSpace(handle))
	displayName = strings.TrimSpace(displayName)
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain := "", ""
	if email != "" {
		local, domain = splitEmail(email)
	}

	if m := c.exact(handle, displayName, email, local); m != nil {
		return m, MethodExact
	}
	if m := c.fuzzy(handle, displayName, local); m != nil {
		return m, MethodFuzzy
	}
	if m := r.pattern(c, handle, local, domain); m != nil {
		return m, MethodPattern
	}
	return nil, MethodNone
}

func (c *cache) get(key string) *roster.TeamMember {
	if key == "" {
		return nil
	}
	return c.forward[key]
}

func (c *cache) exact(handle, displayName, email, local string) *roster.TeamMember {
	for _, key := range []string{handle, email, local, strings.ToLower(displayName)} {
		if m := c.get(key); m != nil {
			return m
		}
	}
	return nil
}

func (c *cache) fuzzy(handle, displayName, local string) *roster.TeamMember {
	if handle != "" && local != "" {
		near := handle == local ||
			(Similarity(handle, local) > handleSimilarityThreshold && runeLenDiff(handle, local) <= handleMaxLengthDiff)
		if near {
			if m := c.get(local); m != nil {
				return m
			}
			if m := c.nearestHandle(local); m != nil {
				return m
			}
		}
	}

	needle := normalizeName(displayName)
	if needle == "" {
		return nil
	}
	var best *roster.TeamMember
	bestScore := 0.0
	for _, e := range c.names {
		score := Similarity(needle, e.normalized)
		if strings.Contains(e.normalized, needle) || strings.Contains(needle, e.normalized) {
			// containment always qualifies; rank it above any plain similarity hit
			score += 1
		}
		if score <= nameSimilarityThreshold {
			continue
		}
		if best == nil || score > bestScore {
			best, bestScore = e.member, score
		}
	}
	return best
}

// nearestHandle finds the known handle or e-mail local part most similar to key.
func (c *cache) nearestHandle(key string) *roster.TeamMember {
	var best *roster.TeamMember
	bestScore := 0.0
	for _, e := range c.handles {
		if runeLenDiff(key, e.normalized) > handleMaxLengthDiff {
			continue
		}
		score := Similarity(key, e.normalized)
		if score > handleSimilarityThreshold && score > bestScore {
			best, bestScore = e.member, score
		}
	}
	return best
}

func (r *Resolver) pattern(c *cache, handle, local, domain string) *roster.TeamMember {
	for _, key := range patternCandidates(handle) {
		if m := c.get(key); m != nil {
			return m
		}
	}
	if local == "" || domain == "" {
		return nil
	}
	if _, ok := r.orgDomains[domain]; !ok {
		return nil
	}
	if m := c.get(local); m != nil {
		return m
	}
	for _, key := range patternCandidates(local) {
		if m := c.get(key); m != nil {
			return m
		}
	}
	return nil
}

// Lookup finds a member by handle or member id using the reverse table.
func (r *Resolver) Lookup(key string) *roster.TeamMember {
	return r.current.Load().reverse[strings.ToLower(strings.TrimSpace(key))]
}

// Snapshot describes the current lookup tables.
type Snapshot struct {
	Members      int                 `json:"members"`
	ForwardKeys  int                 `json:"forward_keys"`
	ReverseKeys  int                 `json:"reverse_keys"`
	KeysByMember map[string][]string `json:"keys_by_member"`
}

// Snapshot returns a copy of the current cache contents for diagnostics.
func (r *Resolver) Snapshot() Snapshot {
	c := r.current.Load()
	keys := make(map[string][]string, len(c.keysByMember))
	for id, k := range c.keysByMember {
		keys[id] = append([]string(nil), k...)
	}
	return Snapshot{
		Members:      c.members,
		ForwardKeys:  len(c.forward),
		ReverseKeys:  len(c.reverse),
		KeysByMember: keys,
	}
}
