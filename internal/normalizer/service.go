package normalizer

import (
	"context"
	"hash/fnv"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rackbridge/rackbridge-core/internal/bus"
	"github.com/rackbridge/rackbridge-core/internal/model"
	"github.com/rackbridge/rackbridge-core/internal/shadow"
)

// Options configures the normalizer.
type Options struct {
	// Workers is the number of shard workers. Frames are sharded by
	// device id, so processing is strictly serial per device (and
	// therefore per module).
	Workers int

	// InboxSize is the buffer per worker and for the bus subscription.
	InboxSize int

	// WarmupEnabled gates warmup queries. Self-healing queries are
	// always on.
	WarmupEnabled bool

	// StaggerDelay is the pause between commands of one heartbeat's
	// plan, protecting the downstream serial fieldbus.
	StaggerDelay time.Duration

	// TempHumStaleness and RFIDStaleness are the shadow ages beyond
	// which warmup re-queries a module.
	TempHumStaleness time.Duration
	RFIDStaleness    time.Duration

	// LogNormalized logs every emitted event at debug level.
	LogNormalized bool
}

// Service consumes intermediate frames, maintains the shadow, emits
// normalized events, and plans outbound queries.
type Service struct {
	bus    *bus.Bus
	cache  *shadow.Cache
	opts   Options
	logger *slog.Logger

	// now and sleep are clock hooks for tests. sleep returns false
	// when the wait was cancelled.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	wg sync.WaitGroup
}

// New creates a normalizer.
//
// Parameters:
//   - b: In-process bus for frames in, events and commands out
//   - cache: The device shadow
//   - opts: Tuning knobs; zero workers defaults to 1
//   - logger: Structured logger; nil discards output
func New(b *bus.Bus, cache *shadow.Cache, opts Options, logger *slog.Logger) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.InboxSize < 1 {
		opts.InboxSize = 64
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		bus:    b,
		cache:  cache,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		sleep: func(ctx context.Context, d time.Duration) bool {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(d):
				return true
			}
		},
	}
}

// Run consumes decoded frames until the context is cancelled. It
// blocks; run it in its own goroutine. Pending staggered command
// dispatches are aborted on cancellation.
func (s *Service) Run(ctx context.Context) {
	sub := s.bus.Subscribe("normalizer", bus.TopicFrameDecoded, s.opts.InboxSize)

	inboxes := make([]chan *model.Frame, s.opts.Workers)
	for i := range inboxes {
		inboxes[i] = make(chan *model.Frame, s.opts.InboxSize)
		s.wg.Add(1)
		go s.worker(ctx, inboxes[i])
	}

	for {
		select {
		case <-ctx.Done():
			for _, inbox := range inboxes {
				close(inbox)
			}
			s.wg.Wait()
			return
		case msg, ok := <-sub.C:
			if !ok {
				for _, inbox := range inboxes {
					close(inbox)
				}
				s.wg.Wait()
				return
			}
			frame, ok := msg.Payload.(*model.Frame)
			if !ok {
				continue
			}
			inbox := inboxes[shard(frame.DeviceID, len(inboxes))]
			select {
			case inbox <- frame:
			default:
				s.logger.Warn("normalizer inbox full, frame dropped",
					"device_id", frame.DeviceID, "kind", frame.Kind)
				s.bus.Publish(bus.TopicError, bus.ErrorEvent{
					Source:   "normalizer",
					DeviceID: frame.DeviceID,
					Detail:   "inbox full, frame dropped",
				})
			}
		}
	}
}

func (s *Service) worker(ctx context.Context, inbox <-chan *model.Frame) {
	defer s.wg.Done()
	for frame := range inbox {
		s.handle(ctx, frame)
	}
}

// shard maps a device id onto a worker index. Per-device ordering
// follows from the stable mapping.
func shard(deviceID string, n int) int {
	if n == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	return int(h.Sum32() % uint32(n))
}

// handle routes one frame by kind.
func (s *Service) handle(ctx context.Context, f *model.Frame) {
	switch f.Kind {
	case model.KindHeartbeat:
		s.handleHeartbeat(ctx, f)
	case model.KindRFIDSnapshot:
		s.handleSnapshot(f)
	case model.KindRFIDEvent:
		s.handleRFIDEvent(f)
	case model.KindTempHum:
		s.handleTempHum(f)
	case model.KindNoiseLevel:
		s.handleNoise(f)
	case model.KindDoorState:
		s.handleDoor(f)
	case model.KindDeviceInfo, model.KindModuleInfo, model.KindDevModInfo, model.KindUTotalChanged:
		s.handleInfo(f)
	case model.KindQryColorResp, model.KindSetColorResp, model.KindClearAlarmResp:
		s.handleResponse(f)
	case model.KindUnknown:
		s.handleUnknown(f)
	default:
		s.logger.Warn("unhandled frame kind", "kind", f.Kind, "device_id", f.DeviceID)
	}
}

// emit publishes a normalized event. Every event leaves with a
// non-empty message id; events without a source id get a generated one.
func (s *Service) emit(ev model.Event) {
	if ev.MessageID == "" {
		ev.MessageID = uuid.NewString()
	}
	if ev.ModuleID == "" {
		ev.ModuleID = "0"
	}
	if ev.Payload == nil {
		ev.Payload = []any{}
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	if s.opts.LogNormalized {
		s.logger.Debug("normalized event",
			"kind", ev.Kind, "device_id", ev.DeviceID,
			"module_index", ev.ModuleIndex, "records", len(ev.Payload))
	}
	s.bus.Publish(bus.TopicEventNormalized, ev)
}

// requestCommand publishes one outbound command request.
func (s *Service) requestCommand(cmd model.CommandRequest) {
	if cmd.CommandID == "" {
		cmd.CommandID = uuid.NewString()
	}
	s.bus.Publish(bus.TopicCommandRequest, cmd)
}

// dispatchStaggered emits a heartbeat's command plan in order with a
// fixed delay between commands. Cancellation aborts the remainder.
func (s *Service) dispatchStaggered(ctx context.Context, cmds []model.CommandRequest) {
	defer s.wg.Done()
	for i, cmd := range cmds {
		if i > 0 && s.opts.StaggerDelay > 0 {
			if !s.sleep(ctx, s.opts.StaggerDelay) {
				return
			}
		}
		s.requestCommand(cmd)
	}
}

// validModule checks the module identity rules shared by telemetry
// kinds: an in-range index and a real module id.
func (s *Service) validModule(family model.Family, moduleIndex int, moduleID string) bool {
	if moduleIndex < 1 || moduleIndex > model.MaxModuleIndex(family) {
		return false
	}
	return moduleID != "" && moduleID != "0"
}
