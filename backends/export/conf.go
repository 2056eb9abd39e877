package export

import (
	"github.com/goccy/go-yaml"

	"github.com/flowtap/flowtap/internal/stun"
)

type Config struct {
	SendToCollector  bool   `yaml:"sendToCollector"`
	CollectorAddress string `yaml:"collectorAddress"`
	CollectorPort    int    `yaml:"collectorPort"`

	PrependSyslog bool `yaml:"prependSyslog"`

	// FilePath appends records to a file when non-empty; "-" means
	// standard output.
	FilePath string `yaml:"filePath"`

	// AddPublicAddresses stamps the exporter's public addresses into
	// each record, resolving them through STUN and friends at startup.
	AddPublicAddresses bool `yaml:"addPublicAddresses"`

	Stun *stun.Config `yaml:"stun"`
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{
		SendToCollector:  false,
		CollectorAddress: "127.0.0.1",
		CollectorPort:    10514,

		PrependSyslog: false,

		FilePath: "",

		AddPublicAddresses: false,
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	*c = Config(*def)

	return nil
}
