package appevents

// AppEvent is a marker interface for events sent from the TUI to the app's
// logic controller. It uses an unexported method so only types from this
// package (by embedding Event) can satisfy the interface, providing
// compile-time safety.
type AppEvent interface {
	isAppEvent()
}

// Event is a struct that can be embedded in other event types to satisfy the
// AppEvent interface.
type Event struct{}

// isAppEvent is the marker method that makes a struct an AppEvent.
func (Event) isAppEvent() {}

// --- App Events (from TUI to App) ---

// UIErrorEvent reports an error originating inside the TUI itself.
type UIErrorEvent struct {
	Event
	Err error
}

// QuitEvent asks the controller to shut everything down.
type QuitEvent struct {
	Event
}

// --- UI Messages (from App to TUI) ---

// Error carries a controller failure to the TUI.
type Error struct {
	Err error
}
