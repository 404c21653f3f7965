package items

// Config holds configuration for the Store.
type Config struct {
	// TableName is the name of the item table.
	// Default: "arbor_items"
	TableName string

	// IdentityIndex is the GSI keyed on (sk, pk), used to resolve an item
	// by type+id without knowing its parent.
	// Default: "SKPK"
	IdentityIndex string

	// OwnerIndex is the GSI keyed on (user, sk), used to list items by
	// owner with an optional type prefix.
	// Default: "USER"
	OwnerIndex string

	// DefaultLimit is the page size used when a list call passes no limit.
	// Default: 50
	DefaultLimit int32
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName:     "arbor_items",
		IdentityIndex: "SKPK",
		OwnerIndex:    "USER",
		DefaultLimit:  50,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "arbor_items"
	}
	if c.IdentityIndex == "" {
		c.IdentityIndex = "SKPK"
	}
	if c.OwnerIndex == "" {
		c.OwnerIndex = "USER"
	}
	if c.DefaultLimit < 1 {
		c.DefaultLimit = 50
	}
}
