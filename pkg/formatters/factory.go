package formatters

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory creates formatter instances by name
type Factory struct {
	mu         sync.RWMutex
	formatters map[string]FormatterConstructor
}

// FormatterConstructor is a function that creates a formatter
type FormatterConstructor func(opts FormatOptions) (Formatter, error)

// Built-in formatter names.
const (
	FormatWire     = "wire"
	FormatFilebeat = "filebeat"
)

// NewFactory creates a new formatter factory with the built-in formatters registered
func NewFactory() *Factory {
	f := &Factory{
		formatters: make(map[string]FormatterConstructor),
	}

	_ = f.Register(FormatWire, func(opts FormatOptions) (Formatter, error) {
		return NewWireFormatter(opts), nil
	})

	_ = f.Register(FormatFilebeat, func(opts FormatOptions) (Formatter, error) {
		return NewFilebeatFormatter(opts), nil
	})

	return f
}

// Register registers a new formatter constructor
func (f *Factory) Register(name string, constructor FormatterConstructor) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("formatter name cannot be empty")
	}
	if constructor == nil {
		return fmt.Errorf("formatter constructor cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.formatters[name] = constructor
	return nil
}

// CreateFormatter creates a formatter by name
func (f *Factory) CreateFormatter(name string, opts FormatOptions) (Formatter, error) {
	f.mu.RLock()
	constructor, exists := f.formatters[strings.ToLower(strings.TrimSpace(name))]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("formatter %q not registered", name)
	}

	return constructor(opts)
}

// ListFormatters returns the sorted names of all registered formatters
func (f *Factory) ListFormatters() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.formatters))
	for name := range f.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFactory is the global formatter factory
var DefaultFactory = NewFactory()

// Register registers a formatter with the default factory
func Register(name string, constructor FormatterConstructor) error {
	return DefaultFactory.Register(name, constructor)
}

// CreateFormatter creates a formatter using the default factory
func CreateFormatter(name string, opts FormatOptions) (Formatter, error) {
	return DefaultFactory.CreateFormatter(name, opts)
}
