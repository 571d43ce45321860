package config

// Journal drivers.
const (
	JournalFile     = "file"
	JournalSQLite   = "sqlite3"
	JournalPostgres = "postgres"
	JournalMySQL    = "mysql"
)

// JournalConfig selects where terminal queue records are archived. An empty
// Driver disables the journal.
type JournalConfig struct {
	Driver string `json:"driver" yaml:"driver"`

	// Path is the directory used by the file driver.
	Path string `json:"path" yaml:"path"`

	// DSN is the data source name used by the SQL drivers. MySQL DSNs are
	// opened with parseTime=true whatever they specify.
	DSN string `json:"dsn" yaml:"dsn"`

	Table string `json:"table" yaml:"table"`
}

func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Path:  ".relay/journal",
		Table: "relay_journal",
	}
}

func (c *JournalConfig) Merge(source *JournalConfig) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}

	if source.Path != "" {
		c.Path = source.Path
	}

	if source.DSN != "" {
		c.DSN = source.DSN
	}

	if source.Table != "" {
		c.Table = source.Table
	}
}

func (c JournalConfig) Enabled() bool {
	return c.Driver != ""
}
