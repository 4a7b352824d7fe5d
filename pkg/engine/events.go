package engine

import "sync"

// Kind names one engine event. The names mirror the engine's wire-level
// event stream one to one.
type Kind string

// Lifecycle, security and activity events emitted by the engine.
const (
	KindFlushError                Kind = "flush-error"
	KindMuxerPaired               Kind = "muxer-paired"
	KindMuxerError                Kind = "muxer-error"
	KindAddCoresReceived          Kind = "add-cores-received"
	KindAddCoresDone              Kind = "add-cores-done"
	KindAddNewCore                Kind = "add-new-core"
	KindDeleteBlocked             Kind = "delete-blocked"
	KindDeleteCore                Kind = "delete-core"
	KindDeleteCoreEnd             Kind = "delete-core-end"
	KindDowngradeAnnounce         Kind = "downgrade-announce"
	KindAddCoresDowngradeAnnounce Kind = "add-cores-downgrade-announce"
	KindAnnounceCore              Kind = "announce-core"
	KindAnnouncedInitialCores     Kind = "announced-initial-cores"
	KindCoreDownloaded            Kind = "core-downloaded"
	KindCoreAppend                Kind = "core-append"
	KindCoreClientModeChanged     Kind = "core-client-mode-changed"
	KindGCStart                   Kind = "gc-start"
	KindGCDone                    Kind = "gc-done"
	KindCoreActivity              Kind = "core-activity"
	KindInvalidRequest            Kind = "invalid-request"
	KindBan                       Kind = "ban"
	KindConnection                Kind = "connection"
)

// Kinds lists every event kind the engine can emit.
var Kinds = []Kind{
	KindFlushError, KindMuxerPaired, KindMuxerError,
	KindAddCoresReceived, KindAddCoresDone, KindAddNewCore,
	KindDeleteBlocked, KindDeleteCore, KindDeleteCoreEnd,
	KindDowngradeAnnounce, KindAddCoresDowngradeAnnounce,
	KindAnnounceCore, KindAnnouncedInitialCores,
	KindCoreDownloaded, KindCoreAppend, KindCoreClientModeChanged,
	KindGCStart, KindGCDone, KindCoreActivity,
	KindInvalidRequest, KindBan, KindConnection,
}

// Event is one delivered engine event. Payload holds the kind-specific
// struct below; consumers must type-assert defensively since the engine
// gives no guarantee about payload integrity.
type Event struct {
	Kind    Kind
	Payload any
}

// Handler consumes one event. A non-nil error reports a problem handling
// the event (for example a malformed payload); the emitter ignores it, but
// subscribers such as the event log bridge record it.
type Handler func(Event) error

// CoreInfo describes one replicated core as carried in event payloads.
type CoreInfo struct {
	PublicKey    []byte
	DiscoveryKey []byte
	Length       uint64
}

// CoreRecord is one requested core record as carried in add/announce
// request payloads.
type CoreRecord struct {
	Key      []byte
	Announce bool
}

// PeerInfo identifies a remote peer at the swarm level.
type PeerInfo struct {
	PublicKey []byte
	Addr      string
}

// Event payloads, one struct per Kind.

type FlushError struct{ Err error }

type MuxerPaired struct{ Stream Stream }

type MuxerError struct{ Err error }

type AddCoresReceived struct{ Stream Stream }

type AddCoresDone struct{ Stream Stream }

type AddNewCore struct {
	Record CoreRecord
	Stream Stream
}

type DeleteBlocked struct {
	Stream Stream
	Key    []byte
}

type DeleteCore struct {
	Stream   Stream
	Key      []byte
	Existing bool
}

type DeleteCoreEnd struct {
	Stream    Stream
	Key       []byte
	Announced bool
}

type DowngradeAnnounce struct {
	Record          CoreRecord
	RemotePublicKey []byte
}

type AddCoresDowngradeAnnounce struct{ RemotePublicKey []byte }

type AnnounceCore struct{ Core *CoreInfo }

type AnnouncedInitialCores struct{}

type CoreDownloaded struct{ Core *CoreInfo }

type CoreAppend struct{ Core *CoreInfo }

type CoreClientModeChanged struct {
	Core     *CoreInfo
	IsClient bool
}

type GCStart struct{ BytesToClear uint64 }

type GCDone struct{ BytesCleared uint64 }

type CoreActivity struct{ Core *CoreInfo }

type InvalidRequest struct {
	Core    *CoreInfo
	Err     error
	Request string
	From    []byte
}

type Ban struct {
	Peer PeerInfo
	Err  error
}

type Connection struct{ Peer PeerInfo }

// Emitter is a small subscription registry engine implementations can embed
// to satisfy Subscribe. Emit is fire and forget: handler errors are
// discarded here, matching the contract that the engine never reacts to its
// observers.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind]map[int]Handler
}

// Subscribe registers h for events of the given kind.
func (e *Emitter) Subscribe(kind Kind, h Handler) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[Kind]map[int]Handler)
	}
	if e.subs[kind] == nil {
		e.subs[kind] = make(map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	e.subs[kind][id] = h

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[kind], id)
	}
}

// Emit delivers one event to all subscribers of its kind.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.subs[ev.Kind]))
	for _, h := range e.subs[ev.Kind] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		_ = h(ev)
	}
}
