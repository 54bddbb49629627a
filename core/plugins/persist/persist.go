// Package persist stores module state in a key/value storage.
//
// On module creation the stored state is deep-merged over the declared
// defaults, so fields added to a module since the last run keep their
// defaults while stored values win. After each transition the latest state
// of the namespace is written once the module has been quiet for the
// debounce interval. Flush writes whatever is still pending.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/statekit/adapters/clock"
	"github.com/artpar/statekit/core/state"
	"github.com/artpar/statekit/core/store"
	"github.com/artpar/statekit/ports"
	"github.com/rs/zerolog"
)

const (
	// DefaultStorageKey is the storage key of the shared state blob.
	DefaultStorageKey = "persistStore"

	// DefaultDebounce is the quiet period before a namespace is written.
	DefaultDebounce = 160 * time.Millisecond
)

// ErrNoKeyListing is returned by Load in per-namespace mode when the storage
// cannot enumerate its keys.
var ErrNoKeyListing = errors.New("storage cannot list keys")

// Option configures a Plugin.
type Option func(*Plugin)

// WithStorageKey sets the storage key (or key prefix in per-namespace mode).
func WithStorageKey(key string) Option {
	return func(p *Plugin) {
		if key != "" {
			p.key = key
		}
	}
}

// WithDebounce sets the trailing debounce interval. Zero or negative values
// keep the default.
func WithDebounce(d time.Duration) Option {
	return func(p *Plugin) {
		if d > 0 {
			p.debounce = d
		}
	}
}

// WithClock sets the scheduler used for debounce timers.
func WithClock(c ports.Clock) Option {
	return func(p *Plugin) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Plugin) {
		p.logger = l
	}
}

// WithPerNamespaceKeys stores each namespace under "<key>/<namespace>"
// instead of one shared blob.
func WithPerNamespaceKeys() Option {
	return func(p *Plugin) {
		p.perNamespace = true
	}
}

// Plugin is the persistence plugin.
type Plugin struct {
	storage      ports.Storage
	key          string
	debounce     time.Duration
	clock        ports.Clock
	logger       zerolog.Logger
	perNamespace bool

	// writeMu serializes storage writes. written is the newest generation
	// stored per namespace; older writes arriving later are dropped.
	writeMu sync.Mutex
	written map[string]uint64

	mu       sync.Mutex
	pending  map[string]pendingState
	timers   map[string]debounceTimer
	seen     map[string]uint64 // newest transition Seq per namespace
	gen      uint64
	inflight int
	idle     *sync.Cond // signalled when inflight drops to zero
}

type pendingState struct {
	state state.State
	gen   uint64
}

type debounceTimer struct {
	timer ports.Timer
	gen   uint64
}

// New creates a persistence plugin writing to storage.
func New(storage ports.Storage, opts ...Option) *Plugin {
	p := &Plugin{
		storage:  storage,
		key:      DefaultStorageKey,
		debounce: DefaultDebounce,
		clock:    clock.Real{},
		logger:   zerolog.Nop(),
		written:  make(map[string]uint64),
		pending:  make(map[string]pendingState),
		timers:   make(map[string]debounceTimer),
		seen:     make(map[string]uint64),
	}
	p.idle = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements store.Plugin.
func (p *Plugin) Name() string {
	return "persist"
}

// InitStore hydrates the module from storage. When the merged state differs
// from what was stored it is written back immediately.
func (p *Plugin) InitStore(ctx context.Context, s *store.Snapshot) error {
	if !s.Persist {
		return nil
	}

	stored, found := p.loadNamespace(ctx, s.Namespace)
	if found {
		state.MergeInto(s.State, stored)
	}

	var raw any
	if found {
		raw = stored
	}
	if state.Equal(s.State, raw) {
		return nil
	}

	healed := pendingState{state: s.State, gen: p.nextGen()}
	if err := p.write(ctx, map[string]pendingState{s.Namespace: healed}); err != nil {
		p.logger.Warn().
			Err(err).
			Str("module", s.Namespace).
			Msg("failed to write hydrated state")
	}
	return nil
}

// SetStore records the new state and (re)arms the namespace's debounce timer.
// A transition older than one already recorded is ignored.
func (p *Plugin) SetStore(_ context.Context, t store.Transition) {
	if !t.Persist {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t.Seq != 0 {
		if t.Seq <= p.seen[t.Namespace] {
			return
		}
		p.seen[t.Namespace] = t.Seq
	}

	if prev, ok := p.timers[t.Namespace]; ok {
		prev.timer.Stop()
	}

	p.gen++
	gen := p.gen
	ns := t.Namespace
	p.pending[ns] = pendingState{state: t.NextState, gen: gen}
	p.timers[ns] = debounceTimer{
		timer: p.clock.AfterFunc(p.debounce, func() { p.fire(ns, gen) }),
		gen:   gen,
	}
}

// fire writes the namespace's pending state unless a newer timer replaced gen.
func (p *Plugin) fire(ns string, gen uint64) {
	p.mu.Lock()
	if cur, ok := p.timers[ns]; !ok || cur.gen != gen {
		p.mu.Unlock()
		return
	}
	delete(p.timers, ns)
	ps, ok := p.pending[ns]
	delete(p.pending, ns)
	if !ok {
		p.mu.Unlock()
		return
	}
	p.inflight++
	p.mu.Unlock()
	defer p.writeDone()

	if err := p.write(context.Background(), map[string]pendingState{ns: ps}); err != nil {
		p.logger.Error().
			Err(err).
			Str("module", ns).
			Msg("failed to persist state")
	}
}

func (p *Plugin) writeDone() {
	p.mu.Lock()
	p.inflight--
	if p.inflight == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

func (p *Plugin) nextGen() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	return p.gen
}

// Flush stops every debounce timer, writes all pending states now and waits
// for writes started by timers that already fired.
func (p *Plugin) Flush(ctx context.Context) error {
	p.mu.Lock()
	for ns, t := range p.timers {
		t.timer.Stop()
		delete(p.timers, ns)
	}
	pending := p.pending
	p.pending = make(map[string]pendingState)
	p.mu.Unlock()

	var err error
	if len(pending) > 0 {
		p.logger.Debug().Int("modules", len(pending)).Msg("flushing pending state")
		err = p.write(ctx, pending)
	}

	p.mu.Lock()
	for p.inflight > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
	return err
}

// Pending returns the namespaces with a write waiting for its debounce timer.
func (p *Plugin) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.pending))
	for ns := range p.pending {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Load returns every stored namespace state.
func (p *Plugin) Load(ctx context.Context) (map[string]state.State, error) {
	if !p.perNamespace {
		return p.readBlob(ctx)
	}

	lister, ok := p.storage.(ports.KeyLister)
	if !ok {
		return nil, ErrNoKeyListing
	}
	keys, err := lister.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	prefix := p.key + "/"
	out := make(map[string]state.State)
	for _, key := range keys {
		ns, ok := strings.CutPrefix(key, prefix)
		if !ok || ns == "" {
			continue
		}
		s, found, err := p.readNamespaceKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", ns, err)
		}
		if found {
			out[ns] = s
		}
	}
	return out, nil
}

// loadNamespace reads one namespace's stored state. Read failures and
// corrupt data count as nothing stored.
func (p *Plugin) loadNamespace(ctx context.Context, ns string) (state.State, bool) {
	if p.perNamespace {
		s, found, err := p.readNamespaceKey(ctx, p.namespaceKey(ns))
		if err != nil {
			p.logger.Warn().Err(err).Str("module", ns).Msg("ignoring unreadable stored state")
			return nil, false
		}
		return s, found
	}

	blob, err := p.readBlob(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Str("module", ns).Msg("ignoring unreadable stored state")
		return nil, false
	}
	s, found := blob[ns]
	return s, found
}

func (p *Plugin) namespaceKey(ns string) string {
	return p.key + "/" + ns
}

func (p *Plugin) readNamespaceKey(ctx context.Context, key string) (state.State, bool, error) {
	raw, found, err := p.storage.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	var s state.State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", key, err)
	}
	if s == nil {
		return nil, false, nil
	}
	return s, true, nil
}

// readBlob decodes the shared blob. A missing key yields an empty blob.
// Entries that are not objects are dropped.
func (p *Plugin) readBlob(ctx context.Context) (map[string]state.State, error) {
	raw, found, err := p.storage.Get(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", p.key, err)
	}
	out := make(map[string]state.State)
	if !found || raw == "" {
		return out, nil
	}

	var entries map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode %q: %w", p.key, err)
	}
	for ns, v := range entries {
		if m, ok := state.AsMap(v); ok {
			out[ns] = state.State(m)
		}
	}
	return out, nil
}

// write stores the given namespace states, skipping any whose generation is
// not newer than what is already stored. In blob mode the blob is read,
// updated and written back as one serialized step.
func (p *Plugin) write(ctx context.Context, entries map[string]pendingState) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	states := make(map[string]state.State, len(entries))
	for ns, e := range entries {
		if e.gen <= p.written[ns] {
			p.logger.Debug().Str("module", ns).Msg("dropping stale write")
			continue
		}
		states[ns] = e.state
	}
	if len(states) == 0 {
		return nil
	}

	if p.perNamespace {
		var errs []error
		for _, ns := range sortedNamespaces(states) {
			data, err := json.Marshal(states[ns])
			if err != nil {
				errs = append(errs, fmt.Errorf("encode %q: %w", ns, err))
				continue
			}
			if err := p.storage.Set(ctx, p.namespaceKey(ns), string(data)); err != nil {
				errs = append(errs, fmt.Errorf("write %q: %w", ns, err))
				continue
			}
			p.written[ns] = entries[ns].gen
		}
		return errors.Join(errs...)
	}

	blob, err := p.readBlob(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("replacing unreadable state blob")
		blob = make(map[string]state.State)
	}
	for ns, s := range states {
		blob[ns] = s
	}

	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode %q: %w", p.key, err)
	}
	if err := p.storage.Set(ctx, p.key, string(data)); err != nil {
		return fmt.Errorf("write %q: %w", p.key, err)
	}
	for ns := range states {
		p.written[ns] = entries[ns].gen
	}
	return nil
}

func sortedNamespaces(states map[string]state.State) []string {
	names := make([]string, 0, len(states))
	for ns := range states {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

var (
	_ store.Initializer = (*Plugin)(nil)
	_ store.Observer    = (*Plugin)(nil)
	_ store.Flusher     = (*Plugin)(nil)
)
