package service

import "github.com/medlink/notify-delivery-service/internal/domain/model"

// Allow decides whether a notification may be pushed to its recipient
// under the given preferences. Pure function; the dispatcher resolves
// the preferences record before calling.
//
// Rules, in order:
//   - critical priority always pushes, preferences are not consulted;
//   - no preferences record (new or unreachable user): push for
//     critical/high, deny medium/low, so urgent messages are never
//     dropped and users with unknown settings are not spammed;
//   - a type without a mapped preference flag defaults to allowed;
//   - otherwise the mapped flag decides.
func Allow(n *model.Notification, prefs *model.Preferences) bool {
	if n.Priority == model.PriorityCritical {
		return true
	}

	if prefs == nil {
		return n.Priority == model.PriorityHigh
	}

	allowed, mapped := prefs.FlagFor(n.Type)
	if !mapped {
		return true
	}
	return allowed
}
