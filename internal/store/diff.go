package store

import (
	"github.com/google/uuid"

	"cleaning-schedule-backend/internal/model"
)

// Change is one difference between two consecutive versions of a date.
type Change struct {
	Type        model.ChangeType
	BusinessKey string
	VehicleID   uuid.UUID
	Old         *model.EventSnapshot
	New         *model.EventSnapshot
}

// Diff compares the events of the previous active version with the events
// just inserted into the new one. It returns the change log entries and the
// previous events that must be carried forward as CANCELADO.
//
// Only service number, driver and client observation make a CHANGED entry;
// status and departure time never do. Previous events that were already
// cancelled are carried again without a new REMOVED entry, and a key that
// comes back after being cancelled is NEW.
func Diff(prev, next []model.CleaningEvent) (changes []Change, carried []model.CleaningEvent) {
	prevByKey := make(map[string]*model.CleaningEvent, len(prev))
	for i := range prev {
		prevByKey[prev[i].BusinessKey] = &prev[i]
	}
	nextKeys := make(map[string]struct{}, len(next))

	for i := range next {
		cur := &next[i]
		nextKeys[cur.BusinessKey] = struct{}{}
		newSnap := cur.Snapshot()

		old, ok := prevByKey[cur.BusinessKey]
		if !ok || old.Status == model.StatusCancelled {
			changes = append(changes, Change{
				Type:        model.ChangeNew,
				BusinessKey: cur.BusinessKey,
				VehicleID:   cur.VehicleID,
				New:         &newSnap,
			})
			continue
		}
		if informationChanged(old, cur) {
			oldSnap := old.Snapshot()
			changes = append(changes, Change{
				Type:        model.ChangeChanged,
				BusinessKey: cur.BusinessKey,
				VehicleID:   cur.VehicleID,
				Old:         &oldSnap,
				New:         &newSnap,
			})
		}
	}

	for i := range prev {
		old := &prev[i]
		if _, ok := nextKeys[old.BusinessKey]; ok {
			continue
		}
		carried = append(carried, *old)
		if old.Status == model.StatusCancelled {
			continue
		}
		oldSnap := old.Snapshot()
		changes = append(changes, Change{
			Type:        model.ChangeRemoved,
			BusinessKey: old.BusinessKey,
			VehicleID:   old.VehicleID,
			Old:         &oldSnap,
		})
	}
	return changes, carried
}

func informationChanged(a, b *model.CleaningEvent) bool {
	return a.ServiceNumber != b.ServiceNumber ||
		a.Driver != b.Driver ||
		a.ClientObservation != b.ClientObservation
}

// Dedup keeps the first event of each business key, preserving order.
func Dedup[T any](items []T, key func(T) string) (unique []T, duplicates int) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			duplicates++
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, it)
	}
	return unique, duplicates
}
