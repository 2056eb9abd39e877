package ovs

import (
	"github.com/goccy/go-yaml"
)

type Config struct {
	// Symbol is the traced kernel lookup function.
	Symbol string `yaml:"symbol"`

	// SinkCapacity bounds the event buffer between the hook and the
	// backends; exhaustion drops, it never blocks the traced path.
	SinkCapacity int `yaml:"sinkCapacity"`

	// BufferBytes sizes the kernel-side ring buffer carrying raw
	// observations out of the probes. Must be a power of two.
	BufferBytes uint32 `yaml:"bufferBytes"`
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{
		Symbol:       "ovs_flow_tbl_lookup_stats",
		SinkCapacity: 2048,
		BufferBytes:  1 << 17,
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	*c = Config(*def)

	return nil
}
