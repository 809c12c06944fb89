package aggregate

import (
	"time"

	"github.com/GeorGeWzw/aggregates-go/core/cache"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// valueOption wraps a single value so one option type can apply itself to
// several option structs.
type valueOption[T any] struct {
	v T
}

// IDGenerator produces envelope IDs.
type IDGenerator func() string

// nanoID is the stock envelope ID generator.
func nanoID() string { return gonanoid.Must() }

// repoConfig is the resolved construction state of a repository.
type repoConfig struct {
	bucket    string
	snapshots SnapshotStore
	policy    SnapshotPolicy
	cache     cache.Cache
	cacheTTL  time.Duration
	idGen     IDGenerator
	metrics   RepoMetrics
}

// RepositoryOption configures a repository at construction.
type RepositoryOption interface {
	applyToRepository(r *repoConfig)
}

type loadOptions struct {
	memento bool
}

// LoadOption configures a single Load call.
type LoadOption interface {
	applyToLoadOptions(o *loadOptions)
}

type saveOptions struct {
	memento bool
}

// SaveOption configures a single Save call.
type SaveOption interface {
	applyToSaveOptions(o *saveOptions)
}

type txOptions struct {
	create   bool
	attempts int
	load     []LoadOption
	save     []SaveOption
}

// TxOption configures a single WithTransaction call.
type TxOption interface {
	applyToTxOptions(o *txOptions)
}

func newRepoConfig(opts ...RepositoryOption) repoConfig {
	cfg := repoConfig{
		bucket:  DefaultBucket,
		policy:  NeverSnapshot{},
		cache:   cache.NewNop(),
		idGen:   nanoID,
		metrics: NopRepoMetrics(),
	}
	for _, opt := range opts {
		opt.applyToRepository(&cfg)
	}
	return cfg
}

func newLoadOptions(opts ...LoadOption) (o loadOptions) {
	for _, opt := range opts {
		opt.applyToLoadOptions(&o)
	}
	return o
}

func newSaveOptions(opts ...SaveOption) (o saveOptions) {
	for _, opt := range opts {
		opt.applyToSaveOptions(&o)
	}
	return o
}

func newTxOptions(opts ...TxOption) txOptions {
	o := txOptions{attempts: 3}
	for _, opt := range opts {
		opt.applyToTxOptions(&o)
	}
	return o
}

type (
	// BucketOption sets the stream bucket, DefaultBucket when absent.
	BucketOption valueOption[string]
	// SnapshotStoreOption plugs a SnapshotStore into the repository.
	SnapshotStoreOption valueOption[SnapshotStore]
	// SnapshotPolicyOption sets the after-commit memento policy.
	SnapshotPolicyOption valueOption[SnapshotPolicy]
	// RepoCacheOption sets the memento cache.
	RepoCacheOption valueOption[cache.Cache]
	// CacheTTLOption bounds how long cached mementos are trusted.
	CacheTTLOption valueOption[time.Duration]
	// IDGeneratorOption overrides envelope ID generation.
	IDGeneratorOption valueOption[IDGenerator]
	// SnapshotOption toggles memento use for one Load, or forces a memento
	// after one Save. It applies to transactions too.
	SnapshotOption valueOption[bool]
	// CreateOption lets WithTransaction start streams that do not exist yet.
	CreateOption valueOption[bool]
	// AttemptsOption caps conflict retries in WithTransaction.
	AttemptsOption valueOption[int]
)

func WithBucket(bucket string) BucketOption { return BucketOption{v: bucket} }

func WithSnapshotStore(s SnapshotStore) SnapshotStoreOption { return SnapshotStoreOption{v: s} }

func WithSnapshotPolicy(p SnapshotPolicy) SnapshotPolicyOption { return SnapshotPolicyOption{v: p} }

func WithRepoCache(c cache.Cache) RepoCacheOption { return RepoCacheOption{v: c} }

// WithRepoCacheLRU is shorthand for an owned LRU memento cache of the given
// size. The repository never closes it; long-lived processes should prefer
// WithRepoCache with a cache they manage.
func WithRepoCacheLRU(size int) RepoCacheOption {
	return RepoCacheOption{v: cache.NewLRU(cache.LRUOpts{Size: size})}
}

func WithCacheTTL(ttl time.Duration) CacheTTLOption { return CacheTTLOption{v: ttl} }

func WithIDGenerator(g IDGenerator) IDGeneratorOption { return IDGeneratorOption{v: g} }

// WithSnapshot opts a Load into memento seeding, or forces a memento after a
// Save.
func WithSnapshot(enabled bool) SnapshotOption { return SnapshotOption{v: enabled} }

// WithCreate makes WithTransaction hand a fresh aggregate to the callback
// when the stream does not exist yet.
func WithCreate() CreateOption { return CreateOption{v: true} }

func WithAttempts(n int) AttemptsOption { return AttemptsOption{v: n} }

func (o BucketOption) applyToRepository(r *repoConfig)         { r.bucket = o.v }
func (o SnapshotStoreOption) applyToRepository(r *repoConfig)  { r.snapshots = o.v }
func (o SnapshotPolicyOption) applyToRepository(r *repoConfig) { r.policy = o.v }
func (o RepoCacheOption) applyToRepository(r *repoConfig)      { r.cache = o.v }
func (o CacheTTLOption) applyToRepository(r *repoConfig)       { r.cacheTTL = o.v }
func (o IDGeneratorOption) applyToRepository(r *repoConfig)    { r.idGen = o.v }

func (o SnapshotOption) applyToLoadOptions(l *loadOptions) { l.memento = o.v }
func (o SnapshotOption) applyToSaveOptions(s *saveOptions) { s.memento = o.v }
func (o SnapshotOption) applyToTxOptions(t *txOptions) {
	t.load = append(t.load, o)
	t.save = append(t.save, o)
}

func (o CreateOption) applyToTxOptions(t *txOptions)   { t.create = o.v }
func (o AttemptsOption) applyToTxOptions(t *txOptions) { t.attempts = o.v }
