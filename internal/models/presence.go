package models

// Presence and call-state values held in the shared TTL store.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"

	CallBusy = "busy"
	CallIdle = "idle"
)
