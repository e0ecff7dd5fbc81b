package hast

// Config names the fixed, construction-time behavior of a Server. Token
// and Scenario are overridable per-connection through the setup phase
// (HAVersion is not), unless Scenario is set here — a non-empty Scenario
// skips setup entirely, per §4.E.
type Config struct {
	// Port the server listens on. 0 binds an ephemeral port, useful for
	// tests that need to discover the port after Listen.
	Port int

	// Token is the access token a client must present during auth.
	Token string

	// HAVersion is reported in auth_required and auth_ok.
	HAVersion string

	// YAMLDir is the directory scenario files are resolved against.
	YAMLDir string

	// Scenario, if set, fixes the connection's scenario file and skips
	// the pre-session setup phase.
	Scenario string
}

// connConfig is one connection's working copy of the server's
// configuration: a plain value, not a pointer, because only the setup
// phase ever mutates it, and only from the single goroutine handling that
// connection. Once setup finishes (or is skipped), the value is never
// written again, so handler goroutines spawned in the operational phase
// can read it by copy with no synchronization.
type connConfig struct {
	name      string
	token     string
	haVersion string
	yamlDir   string
	scenario  string
}
