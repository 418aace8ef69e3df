package audit

type Config struct {
	// Enabled determines if event capture is active at all.
	Enabled bool `envconfig:"AUDIT_ENABLED" default:"true" yaml:"enabled"`

	// Per-family switches. A disabled family records nothing even
	// when capture as a whole is enabled.
	WatchCRUD     bool `envconfig:"AUDIT_WATCH_CRUD" default:"true" yaml:"watch_crud"`
	WatchLogin    bool `envconfig:"AUDIT_WATCH_LOGIN" default:"true" yaml:"watch_login"`
	WatchRequests bool `envconfig:"AUDIT_WATCH_REQUESTS" default:"true" yaml:"watch_requests"`

	// PropagateErrors surfaces backend failures to the caller.
	// FALSE (default): a broken audit path logs and the host action proceeds.
	// TRUE: capture errors return to the caller. Development only; a
	// full audit buffer taking down order placement is not a trade
	// anyone signed up for.
	PropagateErrors bool `envconfig:"AUDIT_PROPAGATE_ERRORS" default:"false" yaml:"propagate_errors"`

	// SkipUnchanged suppresses update events whose diff came out empty
	// (a save that changed nothing). Default records them.
	SkipUnchanged bool `envconfig:"AUDIT_SKIP_UNCHANGED" default:"false" yaml:"skip_unchanged"`

	// ExcludeObjectTypes drops CRUD events for the named object types
	// before any custom filter runs.
	ExcludeObjectTypes []string `envconfig:"AUDIT_EXCLUDE_OBJECT_TYPES" yaml:"exclude_object_types"`

	// ExcludeActors drops CRUD events recorded for the named actor ids.
	ExcludeActors []string `envconfig:"AUDIT_EXCLUDE_ACTORS" yaml:"exclude_actors"`

	// IncludeURLs / ExcludeURLs are regular expressions deciding which
	// request paths produce RequestEvents. Empty IncludeURLs means all
	// paths; ExcludeURLs wins over IncludeURLs.
	IncludeURLs []string `envconfig:"AUDIT_INCLUDE_URLS" yaml:"include_urls"`
	ExcludeURLs []string `envconfig:"AUDIT_EXCLUDE_URLS" default:"^/healthz,^/readyz,^/metrics" yaml:"exclude_urls"`

	// RemoteAddrHeader names the header carrying the client IP when the
	// service sits behind a proxy (X-Forwarded-For, X-Real-IP). Empty
	// means the connection's RemoteAddr.
	RemoteAddrHeader string `envconfig:"AUDIT_REMOTE_ADDR_HEADER" yaml:"remote_addr_header"`

	// BufferSize is the channel capacity of the async backend.
	BufferSize int `envconfig:"AUDIT_BUFFER_SIZE" default:"1024" yaml:"buffer_size"`

	// BlockOnFull determines the strategy when the async buffer is full.
	// TRUE (Paranoid): blocks the caller until there is room. Guarantees data.
	// FALSE (Availability First): drops the event and counts it.
	BlockOnFull bool `envconfig:"AUDIT_BLOCK_ON_FULL" default:"false" yaml:"block_on_full"`

	// Async decouples capture from the caller: events are handed to a
	// background worker and persisted off the hot path.
	Async bool `envconfig:"AUDIT_ASYNC" default:"false" yaml:"async"`

	// KafkaBrokers, when non-empty, mirrors every captured event to
	// KafkaTopic after local persistence.
	KafkaBrokers []string `envconfig:"AUDIT_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaTopic   string   `envconfig:"AUDIT_KAFKA_TOPIC" default:"helix.audit.events" yaml:"kafka_topic"`

	// DatabaseAlias is reserved. Accepted and ignored.
	DatabaseAlias string `envconfig:"AUDIT_DATABASE_ALIAS" yaml:"database_alias"`

	// UserDBConstraint is reserved. Accepted and ignored.
	UserDBConstraint bool `envconfig:"AUDIT_USER_DB_CONSTRAINT" default:"true" yaml:"user_db_constraint"`
}
