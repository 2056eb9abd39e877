package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowtap/flowtap/backends/api"
	"github.com/flowtap/flowtap/backends/export"
	"github.com/flowtap/flowtap/backends/prometheus"
	"github.com/flowtap/flowtap/probes/ovs"
	"github.com/flowtap/flowtap/probes/packet"
	"github.com/flowtap/flowtap/probes/replay"
)

//go:embed conf.schema.json
var confSchema []byte

// Config aggregates the per-probe and per-backend configurations. A nil
// section simply means that probe or backend won't be started.
type Config struct {
	PidPath string `yaml:"pidPath"`
	WorkDir string `yaml:"workDir"`

	Probes *struct {
		Ovs    *ovs.Config    `yaml:"ovs"`
		Packet *packet.Config `yaml:"packet"`
		Replay *replay.Config `yaml:"replay"`
	} `yaml:"probes"`

	Backends *struct {
		Export     *export.Config     `yaml:"export"`
		Prometheus *prometheus.Config `yaml:"prometheus"`
		Api        *api.Config        `yaml:"api"`
	} `yaml:"backends"`
}

func (c Config) String() string {
	m, err := yaml.MarshalWithOptions(c, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return "marshalling error..."
	}
	return string(m)
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{
		PidPath: "/var/run/flowtap.pid",
		WorkDir: "/var/cache/flowtap",
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	*c = Config(*def)

	return nil
}

// validateConf runs the raw configuration through the embedded JSON
// schema so that typos in section names surface as errors instead of
// silently falling back to defaults.
func validateConf(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(confSchema))
	if err != nil {
		return fmt.Errorf("error parsing the embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("conf.schema.json", doc); err != nil {
		return fmt.Errorf("error adding the schema resource: %w", err)
	}
	schema, err := compiler.Compile("conf.schema.json")
	if err != nil {
		return fmt.Errorf("error compiling the schema: %w", err)
	}

	// The validator wants plain JSON values, so take the YAML through a
	// JSON roundtrip first.
	j, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return fmt.Errorf("error converting the configuration to JSON: %w", err)
	}

	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(j))
	if err != nil {
		return fmt.Errorf("error unmarshaling the configuration: %w", err)
	}

	// An empty file is a valid (i.e. all-defaults) configuration.
	if v == nil {
		return nil
	}

	return schema.Validate(v)
}

func ReadConf(path string) (*Config, error) {
	r, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the configuration file: %w", err)
	}

	if err := validateConf(r); err != nil {
		return nil, fmt.Errorf("the configuration is invalid: %w", err)
	}

	conf := Config{}
	if err := yaml.Unmarshal(r, &conf); err != nil {
		return nil, fmt.Errorf("error unmarshaling the configuration: %w", err)
	}

	return &conf, nil
}
