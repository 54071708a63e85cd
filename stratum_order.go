package strata

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// StratumRole tags the source of truth a stratum represents.
type StratumRole int

const (
	RoleUnknown StratumRole = iota
	RoleDefault
	RoleLoad
	RoleUnderride
	RoleDefinition
	RoleOverride
	RoleUser
)

func (r StratumRole) String() string {
	switch r {
	case RoleDefault:
		return "default"
	case RoleLoad:
		return "load"
	case RoleUnderride:
		return "underride"
	case RoleDefinition:
		return "definition"
	case RoleOverride:
		return "override"
	case RoleUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseStratumRole converts a string representation into a StratumRole.
// Returns RoleUnknown for unrecognised values.
func ParseStratumRole(value string) StratumRole {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "default", "defaults":
		return RoleDefault
	case "load":
		return RoleLoad
	case "underride":
		return RoleUnderride
	case "definition":
		return RoleDefinition
	case "override":
		return RoleOverride
	case "user":
		return RoleUser
	default:
		return RoleUnknown
	}
}

// Priority bands per role. Higher numbers win. Strata registered inside a
// band take increasing priorities in registration order.
const (
	PriorityDefaultBand    = 1000
	PriorityLoadBand       = 2000
	PriorityDefinitionBand = 3000
	PriorityUserBand       = 4000

	priorityBandWidth = 1000
)

var (
	// ErrStratumNameRequired indicates a missing stratum name.
	ErrStratumNameRequired = errors.New("strata: stratum name must be provided")
	// ErrDuplicateStratumName indicates a stratum name registered twice with a
	// different role or priority.
	ErrDuplicateStratumName = errors.New("strata: stratum names must be unique")
	// ErrStratumBandFull indicates a role band has no priorities left.
	ErrStratumBandFull = errors.New("strata: stratum priority band exhausted")
)

// StratumEntry records the priority of one stratum name.
type StratumEntry struct {
	Name     string
	Role     StratumRole
	Priority int
	// Seq is the registration sequence; it breaks ties between equal
	// priorities in favour of the most recently registered name.
	Seq int
}

// StratumOrder is the append-only registry of stratum priorities shared by
// every model of a catalog.
type StratumOrder struct {
	mu      sync.RWMutex
	entries map[string]StratumEntry
	next    map[StratumRole]int
	seq     int
}

// NewStratumOrder builds an order pre-populated with the common strata.
func NewStratumOrder() *StratumOrder {
	o := &StratumOrder{
		entries: map[string]StratumEntry{},
		next:    map[StratumRole]int{},
	}
	for _, common := range commonStrata {
		// Common names are distinct and their bands are empty, so Add
		// cannot fail here.
		_, _ = o.Add(common.name, common.role)
	}
	return o
}

// AddDefaultStratum registers name in the default band.
func (o *StratumOrder) AddDefaultStratum(name string) (StratumEntry, error) {
	return o.Add(name, RoleDefault)
}

// AddLoadStratum registers name in the load band. Load strata registered
// later outrank earlier ones.
func (o *StratumOrder) AddLoadStratum(name string) (StratumEntry, error) {
	return o.Add(name, RoleLoad)
}

// AddDefinitionStratum registers name in the definition band.
func (o *StratumOrder) AddDefinitionStratum(name string) (StratumEntry, error) {
	return o.Add(name, RoleDefinition)
}

// AddUserStratum registers name in the user band.
func (o *StratumOrder) AddUserStratum(name string) (StratumEntry, error) {
	return o.Add(name, RoleUser)
}

// Add registers name with role, assigning the next priority in the role's
// band. Registering an existing name with the same role is a no-op.
func (o *StratumOrder) Add(name string, role StratumRole) (StratumEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StratumEntry{}, ErrStratumNameRequired
	}
	band, ok := bandFor(role)
	if !ok {
		return StratumEntry{}, fmt.Errorf("strata: stratum %q: unknown role", name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.entries[name]; ok {
		if existing.Role == role {
			return existing, nil
		}
		return StratumEntry{}, fmt.Errorf("%w: %s (%s)", ErrDuplicateStratumName, name, existing.Role)
	}

	offset := o.next[bandRole(role)]
	if offset >= priorityBandWidth {
		return StratumEntry{}, fmt.Errorf("%w: %s", ErrStratumBandFull, role)
	}
	o.next[bandRole(role)] = offset + 1
	return o.insertLocked(name, role, band+offset), nil
}

// AddWithPriority registers name at an explicit priority. Ties with other
// names are broken in favour of the most recent registration.
func (o *StratumOrder) AddWithPriority(name string, role StratumRole, priority int) (StratumEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StratumEntry{}, ErrStratumNameRequired
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.entries[name]; ok {
		if existing.Role == role && existing.Priority == priority {
			return existing, nil
		}
		return StratumEntry{}, fmt.Errorf("%w: %s", ErrDuplicateStratumName, name)
	}
	return o.insertLocked(name, role, priority), nil
}

func (o *StratumOrder) insertLocked(name string, role StratumRole, priority int) StratumEntry {
	o.seq++
	entry := StratumEntry{Name: name, Role: role, Priority: priority, Seq: o.seq}
	o.entries[name] = entry
	return entry
}

// Lookup returns the entry registered for name.
func (o *StratumOrder) Lookup(name string) (StratumEntry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.entries[name]
	return entry, ok
}

// Entries returns every registered stratum ordered from strongest to weakest.
func (o *StratumOrder) Entries() []StratumEntry {
	o.mu.RLock()
	out := make([]StratumEntry, 0, len(o.entries))
	for _, entry := range o.entries {
		out = append(out, entry)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return stronger(out[i], out[j]) })
	return out
}

// SortNames orders names from strongest to weakest. Unknown names sort last,
// alphabetically.
func (o *StratumOrder) SortNames(names []string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(names))
	copy(out, names)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := o.entries[out[i]]
		b, bok := o.entries[out[j]]
		switch {
		case aok && bok:
			return stronger(a, b)
		case aok != bok:
			return aok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func stronger(a, b StratumEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Seq > b.Seq
}

func bandFor(role StratumRole) (int, bool) {
	switch role {
	case RoleDefault:
		return PriorityDefaultBand, true
	case RoleLoad:
		return PriorityLoadBand, true
	case RoleUnderride, RoleDefinition, RoleOverride:
		return PriorityDefinitionBand, true
	case RoleUser:
		return PriorityUserBand, true
	default:
		return 0, false
	}
}

// bandRole collapses roles sharing a band so their priorities never collide.
func bandRole(role StratumRole) StratumRole {
	switch role {
	case RoleUnderride, RoleOverride:
		return RoleDefinition
	default:
		return role
	}
}
