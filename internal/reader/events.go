package reader

// Event names carried on the bus. The strings are part of the wire contract
// with collaborators and must not change.
const (
	EventRouteChanged    = "route-changed"
	EventChapterChanged  = "chapter-changed"
	EventPageTurn        = "page-turn-direction"
	EventProgressUpdated = "progress-updated"
	EventSettingsUpdated = "settings-updated"
)

// RouteChanged reports surface-level navigation. IsReader marks whether the
// destination is a reading surface.
type RouteChanged struct {
	IsReader bool
	URL      string
	Pathname string
	BookID   string
}

// ChapterChanged reports a chapter boundary crossing within the surface.
type ChapterChanged struct {
	URL      string
	Pathname string
}

// PageTurn reports one directional paging gesture.
type PageTurn struct {
	Direction Direction
}

// ProgressUpdated is emitted by the tracker after every recomputation. The
// percentage is deliberately unclamped; transient values below 0 or above 100
// are valid while the reader backs out of a chapter.
type ProgressUpdated struct {
	BookID       string
	ChapterIndex int
	Progress     int
}

// SettingsUpdated is published after an external settings snapshot is
// accepted, so open views re-pull the shared record.
type SettingsUpdated struct {
	Version uint64
}
