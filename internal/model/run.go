package model

const (
	RunStatusOK    = "ok"
	RunStatusError = "error"
)

type RunCounters struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
	Error   int `json:"error"`
	Count   int `json:"count"`
}

type RunState struct {
	RunCounters
	Status  string `json:"status"`
	Message string `json:"message"`
	LastRun int64  `json:"last_run"`
}

type ItemErrorKind string

const (
	ItemErrorMissingID ItemErrorKind = "missing_id"
	ItemErrorMapping   ItemErrorKind = "mapping"
	ItemErrorSave      ItemErrorKind = "save"
	ItemErrorDelete    ItemErrorKind = "delete"
)

type ItemError struct {
	Kind    ItemErrorKind `json:"kind"`
	JobID   string        `json:"job_id"`
	ItemID  string        `json:"item_id"`
	SyncKey string        `json:"sync_key"`
	Field   string        `json:"field,omitempty"`
	Message string        `json:"message"`
}

func (e ItemError) Error() string {
	if e.Field != "" {
		return string(e.Kind) + " " + e.SyncKey + " field " + e.Field + ": " + e.Message
	}
	return string(e.Kind) + " " + e.SyncKey + ": " + e.Message
}

type RunReport struct {
	JobID     string      `json:"job_id"`
	Counters  RunCounters `json:"counters"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Errors    []ItemError `json:"errors"`
	Cancelled bool        `json:"cancelled"`
	StartedAt int64       `json:"started_at"`
	EndedAt   int64       `json:"ended_at"`
}

type JobStatus struct {
	Job         Job      `json:"job"`
	State       RunState `json:"state"`
	ItemsInSync int      `json:"items_in_sync"`
}
