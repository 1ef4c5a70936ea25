package ingest

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rackbridge/rackbridge-core/internal/bus"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/config"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/mqtt"
	"github.com/rackbridge/rackbridge-core/internal/model"
)

// RawFrame is the frame.raw payload, published for every uplink before
// decoding so taps can observe traffic that later fails to decode.
type RawFrame struct {
	Family  model.Family
	Topic   string
	Payload []byte
}

// Decoder turns one uplink payload into a frame. Implemented by the
// familyb and familyj decoders.
type Decoder interface {
	Family() model.Family
	Decode(topic string, payload []byte) (*model.Frame, error)
}

// Service owns the uplink subscriptions for both families.
type Service struct {
	client *mqtt.Client
	bus    *bus.Bus
	cfg    config.BrokerConfig
	debug  config.DebugConfig
	logger *slog.Logger
}

// New creates the ingest service.
func New(client *mqtt.Client, b *bus.Bus, cfg config.BrokerConfig, debug config.DebugConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		client: client,
		bus:    b,
		cfg:    cfg,
		debug:  debug,
		logger: logger,
	}
}

// Start subscribes both family uplink roots. Subscriptions are restored
// by the MQTT client on reconnect.
func (s *Service) Start(decoderB, decoderJ Decoder) error {
	qos := byte(s.cfg.QoS)

	patternB := mqtt.UplinkPattern(s.cfg.Topics.FamilyBUpload)
	if err := s.client.Subscribe(patternB, qos, s.handlerFor(decoderB)); err != nil {
		return fmt.Errorf("subscribing %s: %w", patternB, err)
	}

	patternJ := mqtt.UplinkPattern(s.cfg.Topics.FamilyJUpload)
	if err := s.client.Subscribe(patternJ, qos, s.handlerFor(decoderJ)); err != nil {
		return fmt.Errorf("subscribing %s: %w", patternJ, err)
	}

	s.logger.Info("ingest subscribed", "family_b", patternB, "family_j", patternJ)
	return nil
}

// handlerFor builds the broker callback for one family.
func (s *Service) handlerFor(dec Decoder) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		if s.debug.LogRawFrame {
			s.logger.Debug("raw frame",
				"family", dec.Family(), "topic", topic, "bytes", len(payload))
		}
		s.bus.Publish(bus.TopicFrameRaw, RawFrame{
			Family:  dec.Family(),
			Topic:   topic,
			Payload: payload,
		})

		frame, err := dec.Decode(topic, payload)
		if err != nil {
			s.logger.Warn("decode failed",
				"family", dec.Family(), "topic", topic, "error", err)
			s.bus.Publish(bus.TopicError, bus.ErrorEvent{
				Source:   "ingest",
				DeviceID: mqtt.TopicDeviceID(topic),
				Topic:    topic,
				Detail:   err.Error(),
			})
			return nil
		}

		if s.debug.LogDecoded {
			s.logger.Debug("decoded frame",
				"family", frame.Family, "kind", frame.Kind,
				"device_id", frame.DeviceID, "message_id", frame.MessageID)
		}

		s.bus.Publish(bus.TopicFrameDecoded, frame)
		return nil
	}
}
