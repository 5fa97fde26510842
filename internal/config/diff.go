package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only log level and session tunables can be applied without a restart;
// provider and database changes are surfaced so the server can log that a
// restart is required.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true if any session tunable changed. New live
	// sessions pick up the new values; running ones keep their old ones.
	SessionChanged bool
	NewSession     SessionConfig

	// ProvidersChanged and DatabaseChanged require a restart to take effect.
	ProvidersChanged bool
	DatabaseChanged  bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session != new.Session {
		d.SessionChanged = true
		d.NewSession = new.Session
	}

	// ProviderEntry carries an options map, so compare deeply.
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}

	if old.Database != new.Database {
		d.DatabaseChanged = true
	}

	return d
}
