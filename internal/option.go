package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	force  bool
	watch  bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithForce disables the journal-based unchanged-file skip for this run.
func WithForce(force bool) Option {
	return func(a *application) {
		a.force = force
	}
}

// WithWatch keeps the process running after the initial sync, re-syncing
// documents as they change on disk.
func WithWatch(watch bool) Option {
	return func(a *application) {
		a.watch = watch
	}
}
