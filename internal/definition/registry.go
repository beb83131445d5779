package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/callwire/model"
)

// snapshot is an immutable collection of descriptors indexed by interface.
type snapshot struct {
	interfaces map[string]model.InterfaceDescriptor
	checksum   string
}

// Registry is a read-optimized, thread-safe store of loaded descriptors.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given descriptors.
func NewRegistry(descs []model.InterfaceDescriptor) *Registry {
	r := &Registry{}
	r.Replace(descs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given descriptors. Later descriptors win on name collisions.
func (r *Registry) Replace(descs []model.InterfaceDescriptor) {
	s := &snapshot{
		interfaces: make(map[string]model.InterfaceDescriptor, len(descs)),
	}

	var checksumParts []string
	for _, d := range descs {
		s.interfaces[d.Name] = d
		checksumParts = append(checksumParts, d.Name+"="+d.Checksum)
	}

	sort.Strings(checksumParts)
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(checksumParts, ":"))))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the descriptor of the named interface.
func (r *Registry) Get(name string) (model.InterfaceDescriptor, bool) {
	d, ok := r.current().interfaces[name]
	return d, ok
}

// All returns every descriptor, sorted by interface name.
func (r *Registry) All() []model.InterfaceDescriptor {
	s := r.current()
	descs := make([]model.InterfaceDescriptor, 0, len(s.interfaces))
	for _, d := range s.interfaces {
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Len returns the number of interfaces.
func (r *Registry) Len() int {
	return len(r.current().interfaces)
}

// Checksum returns the combined checksum of all loaded descriptors.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
