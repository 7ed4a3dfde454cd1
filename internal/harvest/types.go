package harvest

import "time"

// JobState represents the lifecycle state of the (at most one) scrape job.
type JobState string

// Job states reported through the status feed.
const (
	StateIdle       JobState = "IDLE"
	StateRunning    JobState = "RUNNING"
	StateWaitingOTP JobState = "WAITING_FOR_OTP"
	StateCompleted  JobState = "COMPLETED"
	StateError      JobState = "ERROR"
)

// Terminal reports whether the state ends a run. Terminal states persist
// until the next Start, which implicitly acknowledges them.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// StatusSnapshot is a consistent point-in-time read of the live job status.
type StatusSnapshot struct {
	State   JobState `json:"state"`
	Message string   `json:"message"`
	Logs    []string `json:"logs"`
}

// Session is one completed harvest run with aggregate stats. Immutable once
// created; Timestamp (unix seconds) is its unique key, assigned by the
// registry at commit time.
type Session struct {
	Timestamp int64   `json:"timestamp"`
	Label     string  `json:"label"`
	PostCount int     `json:"count"`
	AvgLikes  float64 `json:"avg_likes"`
}

// AllSessionsTimestamp is the wire value for the synthetic "General / all
// data" entry. It never corresponds to a stored session.
const AllSessionsTimestamp int64 = 0

// GeneralSession is the synthetic catalog entry meaning "no session filter".
func GeneralSession() Session {
	return Session{Timestamp: AllSessionsTimestamp, Label: "General (All Data)"}
}

// Post is a single captured feed post. Each post belongs to exactly one
// session, referenced by its timestamp.
type Post struct {
	ID               string `json:"id"`
	Author           string `json:"author"`
	Content          string `json:"content"`
	Likes            int    `json:"likes"`
	SessionTimestamp int64  `json:"session_timestamp"`
}

// SessionFilter scopes post queries to one session or to all captured data.
// The zero value means "all sessions"; on the wire it is timestamp 0.
type SessionFilter struct {
	timestamp int64
}

// AllSessions returns the unscoped filter.
func AllSessions() SessionFilter {
	return SessionFilter{}
}

// OneSession scopes the filter to the session with the given timestamp.
func OneSession(timestamp int64) SessionFilter {
	return SessionFilter{timestamp: timestamp}
}

// FilterFromWire maps the external timestamp value (0 = all) to a filter.
func FilterFromWire(timestamp int64) SessionFilter {
	if timestamp == AllSessionsTimestamp {
		return AllSessions()
	}
	return OneSession(timestamp)
}

// All reports whether the filter spans every session.
func (f SessionFilter) All() bool {
	return f.timestamp == AllSessionsTimestamp
}

// Timestamp returns the selected session timestamp; only meaningful when
// All() is false.
func (f SessionFilter) Timestamp() int64 {
	return f.timestamp
}

// GenerationMode selects the content-generation strategy.
type GenerationMode string

// Supported generation modes.
const (
	ModeTrend GenerationMode = "trend"
	ModeRemix GenerationMode = "remix"
)

// GenerationRequest scopes one content-generation call.
type GenerationRequest struct {
	Mode             GenerationMode
	Session          SessionFilter
	Topic            string
	Tone             string
	ReferenceCaption string
	ReferenceImage   []byte
}

// GenerationResult is the engine output split into its two sections.
type GenerationResult struct {
	Content     string `json:"content"`
	ImagePrompt string `json:"image_prompt"`
}

// HistoryEntry records one generated post.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	ImageURI  string    `json:"image_uri,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats is the dashboard rollup over the registry and the generation log.
type Stats struct {
	TotalScraped   int64      `json:"total_scraped"`
	TotalGenerated int64      `json:"total_generated"`
	RecentActivity []Activity `json:"recent_activity"`
}

// Activity is one line of the recent-activity feed.
type Activity struct {
	Action  string    `json:"action"`
	Details string    `json:"details"`
	Time    time.Time `json:"time"`
}

// HarvestResult is what a successful engine run hands back to the controller.
type HarvestResult struct {
	Label string
	Posts []Post
}
