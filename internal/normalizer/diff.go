package normalizer

import (
	"sort"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// diffSnapshots derives RFID change records from two full snapshots.
//
// Changes are reported in ascending sensor index order. At one index a
// detach always precedes an attach, so a tag swap reads as the old tag
// leaving before the new one arrives. Applying the same snapshot twice
// yields no changes.
func diffSnapshots(prior, next []model.RFIDReading) []model.RFIDEventRecord {
	priorByIndex := make(map[int]model.RFIDReading, len(prior))
	for _, r := range prior {
		priorByIndex[r.SensorIndex] = r
	}
	nextByIndex := make(map[int]model.RFIDReading, len(next))
	for _, r := range next {
		nextByIndex[r.SensorIndex] = r
	}

	indices := make([]int, 0, len(priorByIndex)+len(nextByIndex))
	seen := make(map[int]bool)
	for idx := range priorByIndex {
		indices = append(indices, idx)
		seen[idx] = true
	}
	for idx := range nextByIndex {
		if !seen[idx] {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	var changes []model.RFIDEventRecord
	for _, idx := range indices {
		old, hadOld := priorByIndex[idx]
		cur, hasNew := nextByIndex[idx]

		switch {
		case hadOld && !hasNew:
			changes = append(changes, model.RFIDEventRecord{
				SensorIndex: idx,
				TagID:       old.TagID,
				Action:      model.ActionDetached,
				IsAlarm:     old.IsAlarm,
			})
		case !hadOld && hasNew:
			changes = append(changes, model.RFIDEventRecord{
				SensorIndex: idx,
				TagID:       cur.TagID,
				Action:      model.ActionAttached,
				IsAlarm:     cur.IsAlarm,
			})
		case old.TagID != cur.TagID:
			changes = append(changes,
				model.RFIDEventRecord{
					SensorIndex: idx,
					TagID:       old.TagID,
					Action:      model.ActionDetached,
					IsAlarm:     old.IsAlarm,
				},
				model.RFIDEventRecord{
					SensorIndex: idx,
					TagID:       cur.TagID,
					Action:      model.ActionAttached,
					IsAlarm:     cur.IsAlarm,
				})
		case old.IsAlarm != cur.IsAlarm:
			action := model.ActionAlarmOff
			if cur.IsAlarm {
				action = model.ActionAlarmOn
			}
			changes = append(changes, model.RFIDEventRecord{
				SensorIndex: idx,
				TagID:       cur.TagID,
				Action:      action,
				IsAlarm:     cur.IsAlarm,
			})
		}
	}
	return changes
}
