package imc

import (
	"fmt"
	"log"
	"sync"

	"github.com/mscrnt/mchconfig/pkg/cpuident"
	"github.com/mscrnt/mchconfig/pkg/pciconf"
	"github.com/mscrnt/mchconfig/pkg/physmem"
)

// Introspector takes point-in-time snapshots of the memory controller
type Introspector struct {
	port     pciconf.ConfigSpacePort
	mapper   physmem.Mapper
	identity cpuident.Identity
	registry *Registry
	logger   *log.Logger
	debug    *log.Logger

	once       sync.Once
	generation Generation
}

// Option configures an Introspector
type Option func(*Introspector)

// WithRegistry replaces the default registry
func WithRegistry(r *Registry) Option {
	return func(i *Introspector) {
		i.registry = r
	}
}

// WithLogger sets the logger for warnings
func WithLogger(l *log.Logger) Option {
	return func(i *Introspector) {
		i.logger = l
	}
}

// WithDebugLogger sets the logger that traces every register read
func WithDebugLogger(l *log.Logger) Option {
	return func(i *Introspector) {
		i.debug = l
	}
}

// NewIntrospector creates an introspector. The port is shared with any
// other user and must serialize its own transactions.
func NewIntrospector(port pciconf.ConfigSpacePort, mapper physmem.Mapper, identity cpuident.Identity, opts ...Option) *Introspector {
	i := &Introspector{
		port:     port,
		mapper:   mapper,
		identity: identity,
		registry: defaultRegistry,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Generation resolves the processor generation on first use
func (i *Introspector) Generation() Generation {
	i.once.Do(func() {
		i.generation = NewResolver(i.identity).Resolve()
	})
	return i.generation
}

// Snapshot decodes the current memory controller configuration. An
// unsupported processor fails before any register is read.
func (i *Introspector) Snapshot() (*Config, error) {
	g := i.Generation()
	if g == Unsupported {
		err := &UnsupportedPlatformError{}
		if i.identity != nil {
			err.Vendor = i.identity.Vendor()
			err.Family = i.identity.Family()
			err.Model = i.identity.Model()
		}
		return nil, err
	}

	m, err := i.registry.Lookup(g)
	if err != nil {
		return nil, fmt.Errorf("failed to get register map: %w", err)
	}

	return NewDecoder(i.logger, i.debug).Decode(m, i.port, i.mapper)
}
