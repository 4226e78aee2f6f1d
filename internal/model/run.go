package model

import "time"

// RunState is the lifecycle state of a batch run.
type RunState string

const (
	RunPending       RunState = "pending"
	RunRunning       RunState = "running"
	RunStopping      RunState = "stopping"
	RunCompleted     RunState = "completed"
	RunStoppedByUser RunState = "stopped_by_user"
	RunFailed        RunState = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunStoppedByUser || s == RunFailed
}

// CompanyState is the per-company progress state reported while a run executes.
type CompanyState string

const (
	CompanyPending    CompanyState = "pending"
	CompanySearching  CompanyState = "searching"
	CompanyFound      CompanyState = "found"
	CompanyNotFound   CompanyState = "not_found"
	CompanyFetching   CompanyState = "fetching"
	CompanyOK         CompanyState = "ok"
	CompanyNoContacts CompanyState = "no_contacts"
	CompanyBlocked    CompanyState = "blocked"
	CompanyError      CompanyState = "error"
	CompanySkipped    CompanyState = "skipped"
	CompanyDone       CompanyState = "done"
)

// StateForStatus maps a final status onto its terminal company state.
func StateForStatus(s Status) CompanyState {
	switch s {
	case StatusOK:
		return CompanyOK
	case StatusNoContacts:
		return CompanyNoContacts
	case StatusNotFound:
		return CompanyNotFound
	case StatusBlocked:
		return CompanyBlocked
	case StatusSkipped:
		return CompanySkipped
	default:
		return CompanyError
	}
}

// Run is the persisted summary of one batch run.
type Run struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	State      RunState       `json:"state"`
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Counts     map[Status]int `json:"counts,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
