package packet

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/flowtap/flowtap/filter"
)

type Config struct {
	TargetInterfaces   []string `yaml:"targetInterfaces"`
	DiscoverInterfaces bool     `yaml:"discoverInterfaces"`

	RemoveQdisc bool `yaml:"removeQdisc"`
	Egress      bool `yaml:"egress"`

	// RawVariant picks the framing the installed filter operates on:
	// l2 filters see the whole frame, l3 filters see the network header
	// onwards.
	RawVariant string             `yaml:"variant"`
	Variant    filter.Placeholder `yaml:"-"` // Parsed variant

	// Expression is a pcap-style filter expression. When empty the
	// probe runs with the built-in stub, which flags every packet.
	Expression string `yaml:"expression"`

	SinkCapacity int    `yaml:"sinkCapacity"`
	BufferBytes  uint32 `yaml:"bufferBytes"`
}

var variantMap = map[string]filter.Placeholder{
	"l2": filter.L2,
	"l3": filter.L3,
}

func ParseVariant(v string) (filter.Placeholder, bool) {
	p, ok := variantMap[strings.ToLower(v)]
	return p, ok
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{
		TargetInterfaces:   []string{"lo"},
		DiscoverInterfaces: false,

		RemoveQdisc: true,
		Egress:      false,

		RawVariant: "l2",
		Expression: "",

		SinkCapacity: 2048,
		BufferBytes:  1 << 17,
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	v, ok := ParseVariant(def.RawVariant)
	if !ok {
		return fmt.Errorf("wrong filter variant %q", def.RawVariant)
	}
	def.Variant = v

	*c = Config(*def)

	return nil
}
