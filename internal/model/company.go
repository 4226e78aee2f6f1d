package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// NotFoundWebsite is written to the Website column when no site was resolved.
const NotFoundWebsite = "Not Found"

// Status is the per-company outcome written to the Status column.
type Status string

const (
	StatusOK         Status = "OK"
	StatusNotFound   Status = "NotFound"
	StatusNoContacts Status = "NoContacts"
	StatusBlocked    Status = "Blocked"
	StatusError      Status = "Error"
	StatusSkipped    Status = "Skipped"
)

// AllStatuses lists every status in report order.
var AllStatuses = []Status{
	StatusOK,
	StatusNoContacts,
	StatusNotFound,
	StatusBlocked,
	StatusError,
	StatusSkipped,
}

// CompanyRecord is one input row.
type CompanyRecord struct {
	Row     int    `json:"row"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
}

// Query returns the trimmed company name. An empty result means the row
// should be skipped.
func (c CompanyRecord) Query() string {
	return strings.TrimSpace(c.Name)
}

// ContactResult is one output row.
type ContactResult struct {
	Company      string   `json:"company"`
	Website      string   `json:"website"`
	Emails       []string `json:"emails"`
	Phones       []string `json:"phones"`
	Status       Status   `json:"status"`
	Error        string   `json:"error,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	PagesFetched int      `json:"pages_fetched,omitempty"`
}

// HasContacts reports whether at least one email or phone was found.
func (r ContactResult) HasContacts() bool {
	return len(r.Emails) > 0 || len(r.Phones) > 0
}

// Validate checks the status/field invariants of a result row.
func (r ContactResult) Validate() error {
	switch r.Status {
	case StatusOK:
		if r.Website == "" || r.Website == NotFoundWebsite {
			return eris.Errorf("model: %s result without website", r.Status)
		}
		if !r.HasContacts() {
			return eris.Errorf("model: %s result without contacts", r.Status)
		}
	case StatusNoContacts:
		if r.Website == "" || r.Website == NotFoundWebsite {
			return eris.Errorf("model: %s result without website", r.Status)
		}
		if r.HasContacts() {
			return eris.Errorf("model: %s result carries contacts", r.Status)
		}
	case StatusNotFound:
		if r.Website != NotFoundWebsite {
			return eris.Errorf("model: %s result has website %q", r.Status, r.Website)
		}
		if r.HasContacts() {
			return eris.Errorf("model: %s result carries contacts", r.Status)
		}
	case StatusSkipped:
		if r.Website != "" || r.HasContacts() {
			return eris.Errorf("model: %s result is not empty", r.Status)
		}
	case StatusBlocked:
		if r.HasContacts() {
			return eris.Errorf("model: %s result carries contacts", r.Status)
		}
	case StatusError:
	default:
		return eris.Errorf("model: unknown status %q", r.Status)
	}
	return nil
}

// SkippedResult builds the result for a row with an empty company name.
func SkippedResult(rec CompanyRecord) ContactResult {
	return ContactResult{
		Company: rec.Name,
		Emails:  []string{},
		Phones:  []string{},
		Status:  StatusSkipped,
	}
}

// NotFoundResult builds the result for a company whose site was not resolved.
func NotFoundResult(rec CompanyRecord) ContactResult {
	return ContactResult{
		Company: rec.Name,
		Website: NotFoundWebsite,
		Emails:  []string{},
		Phones:  []string{},
		Status:  StatusNotFound,
	}
}

// ErrorResult builds an Error row. website may be empty or the sentinel.
func ErrorResult(rec CompanyRecord, website string, err error) ContactResult {
	r := ContactResult{
		Company: rec.Name,
		Website: website,
		Emails:  []string{},
		Phones:  []string{},
		Status:  StatusError,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
