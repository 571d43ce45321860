// Package config holds the configuration structures for every relay
// subsystem.
//
// Each structure has a DefaultXConfig constructor and a Merge method that
// copies non-zero values from a source, so a partially specified file only
// overrides what it names. Load reads a YAML or JSON file, expands ${VAR} and
// ${VAR:-default} references, and merges the result over DefaultConfig.
//
// Example YAML:
//
//	queue:
//	  max_concurrent: 4
//	  retry_delay: 1s
//	  dispatch_rate: 20
//	routing:
//	  routes:
//	    - name: primary
//	      kind: direct
//	journal:
//	  driver: sqlite3
//	  dsn: ${RELAY_JOURNAL:-relay.db}
//	server:
//	  addr: :8080
package config
