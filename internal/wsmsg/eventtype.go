package wsmsg

import "encoding/json"

// EventType is the closed set of Home Assistant event types this module
// knows about, plus the two mock-only types used by the surrogate's
// control-event feature and a catch-all for forward compatibility.
type EventType string

const (
	EventCallService             EventType = "call_service"
	EventComponentLoaded         EventType = "component_loaded"
	EventCoreConfigUpdated       EventType = "core_config_updated"
	EventDataEntryFlowProgressed EventType = "data_entry_flow_progressed"
	EventHomeassistantStart      EventType = "homeassistant_start"
	EventHomeassistantStarted    EventType = "homeassistant_started"
	EventHomeassistantStop       EventType = "homeassistant_stop"
	EventHomeassistantFinalWrite EventType = "homeassistant_final_write"
	EventHomeassistantClose      EventType = "homeassistant_close"
	EventLogbookEntry            EventType = "logbook_entry"
	EventServiceRegistered       EventType = "service_registered"
	EventServiceRemoved          EventType = "service_removed"
	EventStateChanged            EventType = "state_changed"
	EventThemesUpdated           EventType = "themes_updated"
	EventTimerOutOfSync          EventType = "timer_out_of_sync"
	EventTimeChanged             EventType = "time_changed"
	EventUserAdded               EventType = "user_added"
	EventUserRemoved             EventType = "user_removed"
	EventAutomationReloaded      EventType = "automation_reloaded"
	EventAutomationTriggered     EventType = "automation_triggered"
	EventSceneReloaded           EventType = "scene_reloaded"
	EventScriptStarted           EventType = "script_started"

	// EventHaevloStart and EventHaevloStop are mock-only control events
	// used by cmd/haevlo to toggle recording remotely; the surrogate
	// server plays them back like any other event but a real HA
	// instance never emits them.
	EventHaevloStart EventType = "haevlo_start"
	EventHaevloStop  EventType = "haevlo_stop"

	// EventUnknown is the catch-all for any event_type string this
	// module doesn't recognize. Decoding never fails on an unrecognized
	// event_type; it is normalized to EventUnknown instead.
	EventUnknown EventType = "unknown"
)

var knownEventTypes = map[EventType]bool{
	EventCallService:             true,
	EventComponentLoaded:         true,
	EventCoreConfigUpdated:       true,
	EventDataEntryFlowProgressed: true,
	EventHomeassistantStart:      true,
	EventHomeassistantStarted:    true,
	EventHomeassistantStop:       true,
	EventHomeassistantFinalWrite: true,
	EventHomeassistantClose:      true,
	EventLogbookEntry:            true,
	EventServiceRegistered:       true,
	EventServiceRemoved:          true,
	EventStateChanged:            true,
	EventThemesUpdated:           true,
	EventTimerOutOfSync:          true,
	EventTimeChanged:             true,
	EventUserAdded:               true,
	EventUserRemoved:             true,
	EventAutomationReloaded:      true,
	EventAutomationTriggered:     true,
	EventSceneReloaded:           true,
	EventScriptStarted:           true,
	EventHaevloStart:             true,
	EventHaevloStop:              true,
	EventUnknown:                 true,
}

// Known reports whether e is one of the recognized event types (EventUnknown
// counts as known: it is the valid wire representation of "unrecognized").
func (e EventType) Known() bool {
	return knownEventTypes[e]
}

// UnmarshalJSON normalizes any event_type string this module doesn't
// recognize to EventUnknown, so the closed variant list in §3 of the
// protocol holds for every decoded message.
func (e *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if et := EventType(s); knownEventTypes[et] {
		*e = et
	} else {
		*e = EventUnknown
	}
	return nil
}
