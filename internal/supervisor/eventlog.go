package supervisor

import (
	"fmt"
	"log/slog"

	"github.com/holepunchto/blind-peer-cli/internal/bytesize"
	"github.com/holepunchto/blind-peer-cli/internal/logger"
	"github.com/holepunchto/blind-peer-cli/pkg/engine"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
)

// EventLogBridge subscribes to every engine event and renders each into
// exactly one structured log record.
//
// The bridge is the only consumer of the engine's event stream. It must
// never bring the process down: a malformed payload or a panicking renderer
// becomes an error-level log line, nothing more.
type EventLogBridge struct {
	log     *slog.Logger
	eng     engine.Engine
	cancels []func()
}

// AttachEventLog subscribes a new bridge to all event kinds of eng.
func AttachEventLog(eng engine.Engine, log *slog.Logger) *EventLogBridge {
	b := &EventLogBridge{
		log: log.With(logger.KeyComponent, "eventlog"),
		eng: eng,
	}
	for _, kind := range engine.Kinds {
		b.cancels = append(b.cancels, eng.Subscribe(kind, b.handler(kind)))
	}
	return b
}

// Close cancels all subscriptions.
func (b *EventLogBridge) Close() {
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// handler wraps the render rule for kind with the catch-all guard: render
// failures and panics are logged and returned, never propagated.
func (b *EventLogBridge) handler(kind engine.Kind) engine.Handler {
	return func(ev engine.Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("event renderer panicked: %v", r)
				b.log.Error("failed to log engine event",
					logger.KeyEvent, string(kind), logger.KeyError, err.Error())
			}
		}()
		if err := b.render(ev); err != nil {
			b.log.Error("failed to log engine event",
				logger.KeyEvent, string(kind), logger.KeyError, err.Error())
			return err
		}
		return nil
	}
}

// render holds the single log-emission rule for each event kind.
func (b *EventLogBridge) render(ev engine.Event) error {
	log := b.log.With(logger.KeyEvent, string(ev.Kind))

	switch ev.Kind {
	case engine.KindFlushError:
		p, ok := ev.Payload.(engine.FlushError)
		if !ok {
			return malformed(ev)
		}
		log.Warn("engine flush failed", logger.KeyError, errText(p.Err))

	case engine.KindMuxerPaired:
		p, ok := ev.Payload.(engine.MuxerPaired)
		if !ok {
			return malformed(ev)
		}
		log.Debug("muxer paired", logger.KeyStream, streamID(p.Stream))

	case engine.KindMuxerError:
		p, ok := ev.Payload.(engine.MuxerError)
		if !ok {
			return malformed(ev)
		}
		log.Warn("muxer error", logger.KeyError, errText(p.Err))

	case engine.KindAddCoresReceived:
		p, ok := ev.Payload.(engine.AddCoresReceived)
		if !ok {
			return malformed(ev)
		}
		log.Debug("add-cores request received", logger.KeyStream, streamID(p.Stream))

	case engine.KindAddCoresDone:
		p, ok := ev.Payload.(engine.AddCoresDone)
		if !ok {
			return malformed(ev)
		}
		log.Debug("add-cores request done", logger.KeyStream, streamID(p.Stream))

	case engine.KindAddNewCore:
		p, ok := ev.Payload.(engine.AddNewCore)
		if !ok {
			return malformed(ev)
		}
		log.Debug("new core added",
			logger.KeyCore, keys.Format(p.Record.Key),
			"announce", p.Record.Announce,
			logger.KeyStream, streamID(p.Stream))

	case engine.KindDeleteBlocked:
		p, ok := ev.Payload.(engine.DeleteBlocked)
		if !ok {
			return malformed(ev)
		}
		log.Warn("delete request blocked, requester untrusted",
			logger.KeyCore, keys.Format(p.Key),
			logger.KeyStream, streamID(p.Stream))

	case engine.KindDeleteCore:
		p, ok := ev.Payload.(engine.DeleteCore)
		if !ok {
			return malformed(ev)
		}
		log.Info("delete request accepted from trusted peer",
			logger.KeyCore, keys.Format(p.Key),
			"existing", p.Existing,
			logger.KeyStream, streamID(p.Stream))

	case engine.KindDeleteCoreEnd:
		p, ok := ev.Payload.(engine.DeleteCoreEnd)
		if !ok {
			return malformed(ev)
		}
		log.Info("core deleted",
			logger.KeyCore, keys.Format(p.Key),
			"was_announced", p.Announced,
			logger.KeyStream, streamID(p.Stream))

	case engine.KindDowngradeAnnounce:
		p, ok := ev.Payload.(engine.DowngradeAnnounce)
		if !ok {
			return malformed(ev)
		}
		// The request is still accepted, just without announcing. That
		// policy must stay observable, so this is not a debug line.
		log.Info("announce downgraded, requester untrusted",
			logger.KeyCore, keys.Format(p.Record.Key),
			logger.KeyPeer, keys.Format(p.RemotePublicKey))

	case engine.KindAddCoresDowngradeAnnounce:
		p, ok := ev.Payload.(engine.AddCoresDowngradeAnnounce)
		if !ok {
			return malformed(ev)
		}
		log.Info("announce downgraded for add-cores request, requester untrusted",
			logger.KeyPeer, keys.Format(p.RemotePublicKey))

	case engine.KindAnnounceCore:
		p, ok := ev.Payload.(engine.AnnounceCore)
		if !ok || p.Core == nil {
			return malformed(ev)
		}
		log.Info("announcing core",
			logger.KeyCore, keys.Format(p.Core.PublicKey),
			logger.KeyDiscovery, keys.Format(p.Core.DiscoveryKey))

	case engine.KindAnnouncedInitialCores:
		log.Info("announced initial cores")

	case engine.KindCoreDownloaded:
		p, ok := ev.Payload.(engine.CoreDownloaded)
		if !ok || p.Core == nil {
			return malformed(ev)
		}
		log.Info("core fully downloaded",
			logger.KeyCore, keys.Format(p.Core.PublicKey),
			"length", p.Core.Length)

	case engine.KindCoreAppend:
		p, ok := ev.Payload.(engine.CoreAppend)
		if !ok || p.Core == nil {
			return malformed(ev)
		}
		log.Debug("core append",
			logger.KeyCore, keys.Format(p.Core.PublicKey),
			"length", p.Core.Length)

	case engine.KindCoreClientModeChanged:
		p, ok := ev.Payload.(engine.CoreClientModeChanged)
		if !ok || p.Core == nil {
			return malformed(ev)
		}
		log.Debug("core client mode changed",
			logger.KeyCore, keys.Format(p.Core.PublicKey),
			"is_client", p.IsClient)

	case engine.KindGCStart:
		p, ok := ev.Payload.(engine.GCStart)
		if !ok {
			return malformed(ev)
		}
		digest := b.eng.Digest()
		log.Info("gc started",
			"bytes_to_clear", p.BytesToClear,
			logger.KeyAllocated, digest.BytesAllocated,
			logger.KeyBudget, digest.MaxBytes,
			"allocated_human", bytesize.Format(digest.BytesAllocated))

	case engine.KindGCDone:
		p, ok := ev.Payload.(engine.GCDone)
		if !ok {
			return malformed(ev)
		}
		digest := b.eng.Digest()
		log.Info("gc done",
			"bytes_cleared", p.BytesCleared,
			logger.KeyAllocated, digest.BytesAllocated,
			logger.KeyBudget, digest.MaxBytes,
			"allocated_human", bytesize.Format(digest.BytesAllocated))

	case engine.KindCoreActivity:
		p, ok := ev.Payload.(engine.CoreActivity)
		if !ok || p.Core == nil {
			return malformed(ev)
		}
		log.Debug("core activity", logger.KeyCore, keys.Format(p.Core.PublicKey))

	case engine.KindInvalidRequest:
		p, ok := ev.Payload.(engine.InvalidRequest)
		if !ok {
			return malformed(ev)
		}
		attrs := []any{
			logger.KeyError, errText(p.Err),
			logger.KeyPeer, keys.Format(p.From),
			"request", p.Request,
		}
		if p.Core != nil {
			attrs = append(attrs, logger.KeyCore, keys.Format(p.Core.PublicKey))
		}
		log.Warn("invalid request received", attrs...)

	case engine.KindBan:
		p, ok := ev.Payload.(engine.Ban)
		if !ok {
			return malformed(ev)
		}
		log.Warn("peer banned",
			logger.KeyPeer, keys.Format(p.Peer.PublicKey),
			"addr", p.Peer.Addr,
			logger.KeyError, errText(p.Err))

	case engine.KindConnection:
		p, ok := ev.Payload.(engine.Connection)
		if !ok {
			return malformed(ev)
		}
		log.Debug("connection",
			logger.KeyPeer, keys.Format(p.Peer.PublicKey),
			"addr", p.Peer.Addr)

	default:
		return fmt.Errorf("no log rule for event kind %q", ev.Kind)
	}
	return nil
}

func malformed(ev engine.Event) error {
	return fmt.Errorf("malformed %s payload %T", ev.Kind, ev.Payload)
}

func errText(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func streamID(s engine.Stream) string {
	if s == nil {
		return "<none>"
	}
	return s.ID()
}
