package command

import (
	"encoding/json"
	"fmt"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// setPropertyColor is the set_property_type selecting U-position color.
const setPropertyColor = 8001

// buildFamilyJ renders the JSON envelope for one command.
func buildFamilyJ(cmd model.CommandRequest) ([]byte, error) {
	env := map[string]any{}
	if cmd.CommandID != "" {
		env["uuid_number"] = cmd.CommandID
	}

	switch cmd.Kind {
	case model.KindSetColor:
		colors := make([]map[string]any, 0, len(cmd.Colors))
		for _, c := range cmd.Colors {
			colors = append(colors, map[string]any{
				"u_index":    c.SensorIndex,
				"color_code": c.ColorCode,
			})
		}
		env["msg_type"] = "set_module_property_req"
		env["set_property_type"] = setPropertyColor
		env["data"] = []map[string]any{{
			"host_gateway_port_index": cmd.ModuleIndex,
			"u_color_data":            colors,
		}}

	case model.KindClearAlarm:
		env["msg_type"] = "clear_u_warning"
		env["data"] = []map[string]any{{
			"index":        cmd.ModuleIndex,
			"warning_data": []int{cmd.SensorIndex},
		}}

	case model.KindQryRFIDSnapshot:
		env["msg_type"] = "u_state_req"
		env["data"] = []map[string]any{{
			"host_gateway_port_index": cmd.ModuleIndex,
			"extend_module_sn":        cmd.ModuleID,
			"u_index_list":            nil,
		}}

	case model.KindQryTempHum:
		env["msg_type"] = "temper_humidity_req"
		env["data"] = []map[string]any{{
			"host_gateway_port_index": cmd.ModuleIndex,
		}}

	case model.KindQryDoorState:
		env["msg_type"] = "door_state_req"
		env["data"] = []map[string]any{{
			"host_gateway_port_index": cmd.ModuleIndex,
		}}

	case model.KindQryColor:
		env["msg_type"] = "u_color_req"
		env["data"] = []map[string]any{{
			"host_gateway_port_index": cmd.ModuleIndex,
		}}

	case model.KindQryDevModInfo:
		env["msg_type"] = "device_info_req"

	default:
		return nil, fmt.Errorf("%w: %s for FamilyJ", ErrUnsupported, cmd.Kind)
	}

	return json.Marshal(env)
}
