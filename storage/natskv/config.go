package natskv

import (
	"fmt"
	"time"

	"github.com/wuchunfu/nessie/storage"
)

// Config carries the NATS-backed store configuration on top of the
// shared store configuration.
type Config struct {
	// Store is the backend-independent store configuration.
	Store storage.StoreConfig `json:"store"`
	// ObjectsBucket is the KV bucket holding serialized objects. Empty
	// derives "nessie-objects-<repositoryId>".
	ObjectsBucket string `json:"objectsBucket"`
	// ReferencesBucket is the KV bucket holding reference records. Empty
	// derives "nessie-references-<repositoryId>".
	ReferencesBucket string `json:"referencesBucket"`
	// Replicas is the JetStream replication factor for both buckets.
	Replicas int `json:"replicas"`
	// OperationTimeout bounds individual KV operations.
	OperationTimeout time.Duration `json:"operationTimeout"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Store:            storage.DefaultStoreConfig(),
		Replicas:         1,
		OperationTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Replicas < 1 {
		return fmt.Errorf("replicas must be at least 1")
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("operation timeout cannot be negative")
	}
	return nil
}

func (c Config) objectsBucket() string {
	if c.ObjectsBucket != "" {
		return c.ObjectsBucket
	}
	return "nessie-objects-" + c.Store.RepositoryID
}

func (c Config) referencesBucket() string {
	if c.ReferencesBucket != "" {
		return c.ReferencesBucket
	}
	return "nessie-references-" + c.Store.RepositoryID
}
