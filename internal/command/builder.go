package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rackbridge/rackbridge-core/internal/bus"
	"github.com/rackbridge/rackbridge-core/internal/model"
)

// Publisher sends a built frame to one device's downlink topic.
// Implemented by the broker client.
type Publisher interface {
	PublishDownlink(downloadRoot, deviceID string, payload []byte) error
}

// Builder consumes command requests from the bus, translates them into
// protocol frames, and publishes them on the device's downlink topic.
type Builder struct {
	bus    *bus.Bus
	pub    Publisher
	rootB  string
	rootJ  string
	logger *slog.Logger
}

// New creates a command builder.
//
// Parameters:
//   - b: In-process bus carrying command requests
//   - pub: Broker publisher for downlink frames
//   - rootB, rootJ: Download topic roots per family
//   - logger: Structured logger; nil discards output
func New(b *bus.Bus, pub Publisher, rootB, rootJ string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{bus: b, pub: pub, rootB: rootB, rootJ: rootJ, logger: logger}
}

// Run consumes command requests until the context is cancelled.
func (b *Builder) Run(ctx context.Context) {
	sub := b.bus.Subscribe("command-builder", bus.TopicCommandRequest, 128)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			cmd, ok := msg.Payload.(model.CommandRequest)
			if !ok {
				continue
			}
			if err := b.Send(cmd); err != nil {
				b.logger.Error("command failed",
					"kind", cmd.Kind, "device_id", cmd.DeviceID, "error", err)
				b.bus.Publish(bus.TopicError, bus.ErrorEvent{
					Source:   "command",
					DeviceID: cmd.DeviceID,
					Detail:   err.Error(),
				})
			}
		}
	}
}

// Send builds and publishes one command frame synchronously. The API
// server calls this directly so validation failures surface to the
// requester.
func (b *Builder) Send(cmd model.CommandRequest) error {
	payload, err := Build(cmd)
	if err != nil {
		return err
	}

	root := b.rootB
	if cmd.Family == model.FamilyJ {
		root = b.rootJ
	}
	if err := b.pub.PublishDownlink(root, cmd.DeviceID, payload); err != nil {
		return fmt.Errorf("publish %s to %s: %w", cmd.Kind, cmd.DeviceID, err)
	}

	b.logger.Debug("command sent",
		"kind", cmd.Kind, "device_id", cmd.DeviceID,
		"module_index", cmd.ModuleIndex, "command_id", cmd.CommandID)
	return nil
}

// Build translates one request into its protocol frame: raw bytes for
// FamilyB, a JSON envelope for FamilyJ.
func Build(cmd model.CommandRequest) ([]byte, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}

	switch cmd.Family {
	case model.FamilyB:
		return buildFamilyB(cmd)
	case model.FamilyJ:
		return buildFamilyJ(cmd)
	}
	return nil, fmt.Errorf("%w: family %q", ErrUnsupported, cmd.Family)
}

// validate checks the required fields per command shape.
func validate(cmd model.CommandRequest) error {
	if cmd.DeviceID == "" {
		return fmt.Errorf("%w: deviceId", ErrMissingField)
	}
	if model.ModuleScoped(cmd.Kind) {
		if cmd.ModuleIndex < 1 || cmd.ModuleIndex > model.MaxModuleIndex(cmd.Family) {
			return fmt.Errorf("%w: moduleIndex %d for %s", ErrMissingField, cmd.ModuleIndex, cmd.Kind)
		}
	}
	if cmd.Family == model.FamilyJ && cmd.Kind == model.KindQryRFIDSnapshot && cmd.ModuleID == "" {
		return fmt.Errorf("%w: moduleId for FamilyJ %s", ErrMissingField, cmd.Kind)
	}
	if cmd.Kind == model.KindSetColor {
		if len(cmd.Colors) == 0 {
			return fmt.Errorf("%w: colors for %s", ErrMissingField, cmd.Kind)
		}
		for _, c := range cmd.Colors {
			if c.SensorIndex < 1 {
				return fmt.Errorf("%w: sensorIndex in colors", ErrMissingField)
			}
		}
	}
	if cmd.Kind == model.KindClearAlarm && cmd.SensorIndex < 1 {
		return fmt.Errorf("%w: sensorIndex for %s", ErrMissingField, cmd.Kind)
	}
	return nil
}
