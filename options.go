package saw

import (
	"crypto/x509"
	"fmt"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-rootcerts"
	"github.com/mitchellh/mapstructure"
)

// optionsConfig holds every tunable the functional options below can set on
// a [Loop], decoded either via direct With* calls or via [OptionsFromMap].
type optionsConfig struct {
	BufferLimit    int `mapstructure:"buffer_limit"`
	ReadBufferSize int `mapstructure:"read_buffer_size"`
}

// WithBufferLimit sets the default limit, in item count, that [Buffer]
// uses when it is called with a limit <= 0.
func WithBufferLimit(limit int) LoopOption {
	return loopOptionFunc(func(l *Loop) { l.defaultBufferLimit = limit })
}

// WithReadBufferSize sets the default size of buffers allocated through
// [Loop.NewReadBuffer], in bytes.
func WithReadBufferSize(n int) LoopOption {
	return loopOptionFunc(func(l *Loop) { l.defaultReadBufferSize = n })
}

// NewReadBuffer allocates an [ArrayBuffer] sized by [WithReadBufferSize],
// the standard scratch buffer for [Stream.ReadAsyncBuffer].
func (l *Loop) NewReadBuffer() *ArrayBuffer {
	return NewArrayBuffer(l.defaultReadBufferSize)
}

// WithSystemRootsFrom loads a certificate pool the same way Vault/Consul/
// Nomad agents do (CA file, CA directory, or inline PEM) and installs it as
// the loop's default TLS root of trust for outbound connections.
func WithSystemRootsFrom(cfg *rootcerts.Config) LoopOption {
	return loopOptionFunc(func(l *Loop) {
		pool, err := rootcerts.LoadCACerts(cfg)
		if err != nil {
			l.rootsErr = fmt.Errorf("saw: loading system roots: %w", err)
			return
		}
		l.roots = pool
	})
}

// ParseBufferSize accepts a human-readable size ("64KiB", "2MB") and
// returns it as a byte count, for byte-sized settings such as
// WithReadBufferSize, instead of requiring callers to pre-compute it.
func ParseBufferSize(s string) (int, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("saw: parsing buffer size %q: %w", s, err)
	}
	return int(n), nil
}

// OptionsFromMap decodes a generic configuration map (as parsed from JSON
// or YAML by a caller) into loop tuning options, using mapstructure so the
// keys can come straight from a config file's "loop:" section.
func OptionsFromMap(m map[string]any) ([]LoopOption, error) {
	var cfg optionsConfig
	if err := mapstructure.Decode(m, &cfg); err != nil {
		return nil, fmt.Errorf("saw: decoding loop options: %w", err)
	}
	var opts []LoopOption
	if cfg.BufferLimit > 0 {
		opts = append(opts, WithBufferLimit(cfg.BufferLimit))
	}
	if cfg.ReadBufferSize > 0 {
		opts = append(opts, WithReadBufferSize(cfg.ReadBufferSize))
	}
	return opts, nil
}

// SystemRoots returns the loop's configured TLS root pool (nil if none was
// installed via WithSystemRootsFrom), and any error encountered loading it.
func (l *Loop) SystemRoots() (*x509.CertPool, error) {
	return l.roots, l.rootsErr
}
