package command

import (
	"fmt"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// FamilyB command opcodes.
const (
	opSetColor   = 0xE1
	opClearAlarm = 0xE2
	opQryColor   = 0xE4
	opQuery      = 0xE9
	opInfo       = 0xEF

	queryRFID    = 0x01
	queryTempHum = 0x02
	queryDoor    = 0x03
	queryNoise   = 0x04
)

// buildFamilyB renders the compact binary frame for one command.
func buildFamilyB(cmd model.CommandRequest) ([]byte, error) {
	idx := byte(cmd.ModuleIndex)

	switch cmd.Kind {
	case model.KindQryRFIDSnapshot:
		return []byte{opQuery, queryRFID, idx}, nil
	case model.KindQryTempHum:
		return []byte{opQuery, queryTempHum, idx}, nil
	case model.KindQryDoorState:
		return []byte{opQuery, queryDoor, idx}, nil
	case model.KindQryNoiseLevel:
		return []byte{opQuery, queryNoise, idx}, nil
	case model.KindQryDeviceInfo:
		return []byte{opInfo, 0x01, 0x00}, nil
	case model.KindQryModuleInfo:
		return []byte{opInfo, 0x02, 0x00}, nil
	case model.KindQryColor:
		return []byte{opQryColor, idx}, nil
	case model.KindClearAlarm:
		return []byte{opClearAlarm, idx, byte(cmd.SensorIndex)}, nil
	case model.KindSetColor:
		frame := []byte{opSetColor, idx}
		for _, c := range cmd.Colors {
			frame = append(frame, byte(c.SensorIndex), byte(c.ColorCode))
		}
		return frame, nil
	}
	return nil, fmt.Errorf("%w: %s for FamilyB", ErrUnsupported, cmd.Kind)
}
