package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverlay is the subset of Config an operator may override via a YAML
// file. WithFile is an ordinary Option, so it is applied on top of the
// defaults and environment variables in the position it is given to New,
// before any later options and after any earlier ones.
type fileOverlay struct {
	Broker      *BrokerConfig      `yaml:"broker"`
	ObjectStore *ObjectStoreConfig `yaml:"object_store"`
	Dedup       *DedupConfig       `yaml:"dedup"`
	Processing  *ProcessingConfig  `yaml:"processing"`
	Training    *TrainingConfig    `yaml:"training"`
}

// WithFile loads a YAML overlay from path and merges present fields into
// the Config under construction. A missing file is not an error; an
// unreadable or malformed one panics-free by returning via New's error path
// (WithFile records the error on the Config's hidden loadErr field).
func WithFile(path string) Option {
	return func(c *Config) {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return
		}
		if err != nil {
			c.loadErr = fmt.Errorf("config: reading %s: %w", path, err)
			return
		}

		// Decode into copies of the current sections so keys absent from the
		// file keep their existing values.
		broker, objectStore, dedup, processing, training := c.Broker, c.ObjectStore, c.Dedup, c.Processing, c.Training
		overlay := fileOverlay{Broker: &broker, ObjectStore: &objectStore, Dedup: &dedup, Processing: &processing, Training: &training}
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			c.loadErr = fmt.Errorf("config: parsing %s: %w", path, err)
			return
		}

		if overlay.Broker != nil {
			c.Broker = *overlay.Broker
		}
		if overlay.ObjectStore != nil {
			c.ObjectStore = *overlay.ObjectStore
		}
		if overlay.Dedup != nil {
			c.Dedup = *overlay.Dedup
		}
		if overlay.Processing != nil {
			c.Processing = *overlay.Processing
		}
		if overlay.Training != nil {
			c.Training = *overlay.Training
		}
	}
}
