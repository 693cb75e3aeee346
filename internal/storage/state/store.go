// -----------------------------------------------------------------------
// State Store - Durable per-spreadsheet job status file
// -----------------------------------------------------------------------

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
)

// CurrentVersion is the state file format version this build writes.
const CurrentVersion = 1

var (
	// ErrCorruptState marks a state file that exists but cannot be
	// trusted. It is never swallowed: resumability depends on this file,
	// so a corrupt store aborts the run instead of silently starting over.
	ErrCorruptState = errors.New("state file is corrupt")

	// ErrUnsupportedVersion marks a state file written by a newer build.
	ErrUnsupportedVersion = errors.New("state file version not supported")
)

// record mirrors one job in the state file. TicketID and Error are pointers
// so an unset value round-trips as JSON null rather than "".
type record struct {
	RowID    int     `json:"row_id"`
	Status   string  `json:"status"`
	TicketID *string `json:"ticket_id"`
	Error    *string `json:"error"`

	// extra retains fields a future format version may add, so that
	// rewriting the file does not strip them.
	extra map[string]json.RawMessage
}

var recordKnownKeys = map[string]bool{
	"row_id": true, "status": true, "ticket_id": true, "error": true,
}

func (r *record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["row_id"]; ok {
		if err := json.Unmarshal(v, &r.RowID); err != nil {
			return err
		}
	}
	if v, ok := raw["status"]; ok {
		if err := json.Unmarshal(v, &r.Status); err != nil {
			return err
		}
	}
	if v, ok := raw["ticket_id"]; ok {
		if err := json.Unmarshal(v, &r.TicketID); err != nil {
			return err
		}
	}
	if v, ok := raw["error"]; ok {
		if err := json.Unmarshal(v, &r.Error); err != nil {
			return err
		}
	}
	for k, v := range raw {
		if !recordKnownKeys[k] {
			if r.extra == nil {
				r.extra = make(map[string]json.RawMessage)
			}
			r.extra[k] = v
		}
	}
	return nil
}

func (r record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 4+len(r.extra))
	out["row_id"] = r.RowID
	out["status"] = r.Status
	out["ticket_id"] = r.TicketID
	out["error"] = r.Error
	for k, v := range r.extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// Store is the durable row_id -> status mapping for one spreadsheet.
// Every Put rewrites and flushes the whole file; there are no partial
// appends, so a crash mid-write can never leave a corrupt tail behind.
type Store struct {
	path    string
	version int
	jobs    []record
	extra   map[string]json.RawMessage // unknown top-level fields, passed through
	logger  arbor.ILogger
}

var _ interfaces.StateStore = (*Store)(nil)

// StatePath derives the state file path for a spreadsheet. The file is
// scoped by the sheet's base name so distinct spreadsheets never share
// resume state.
func StatePath(stateDir, sheetPath string) string {
	base := filepath.Base(sheetPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(stateDir, stem+".state.json")
}

// Open loads the state file for sheetPath, creating the state directory if
// needed. A missing file is an empty store; an unreadable or unparsable one
// is an error the caller must surface.
func Open(stateDir, sheetPath string, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	s := &Store{
		path:    StatePath(stateDir, sheetPath),
		version: CurrentVersion,
		logger:  logger,
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug().Str("path", s.path).Msg("No prior state file, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: cannot read %s: %v", ErrCorruptState, s.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}

	version := 0
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return fmt.Errorf("%w: %s: bad version field: %v", ErrCorruptState, s.path, err)
		}
	}
	if version > CurrentVersion {
		return fmt.Errorf("%w: %s has version %d, this build supports up to %d",
			ErrUnsupportedVersion, s.path, version, CurrentVersion)
	}
	if version > 0 {
		s.version = version
	}

	if v, ok := raw["jobs"]; ok {
		if err := json.Unmarshal(v, &s.jobs); err != nil {
			return fmt.Errorf("%w: %s: bad jobs field: %v", ErrCorruptState, s.path, err)
		}
	}

	for k, v := range raw {
		if k == "version" || k == "jobs" {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]json.RawMessage)
		}
		s.extra[k] = v
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("records", len(s.jobs)).
		Msg("Loaded state file")
	return nil
}

// Get returns the stored record for rowID.
func (s *Store) Get(rowID int) (interfaces.StateRecord, bool) {
	for _, r := range s.jobs {
		if r.RowID == rowID {
			return interfaces.StateRecord{
				RowID:    r.RowID,
				Status:   models.JobStatus(r.Status),
				TicketID: deref(r.TicketID),
				Error:    deref(r.Error),
			}, true
		}
	}
	return interfaces.StateRecord{}, false
}

// Put upserts the record for rowID and synchronously rewrites the file.
// An empty ticketID or errText overwrites any prior value with null, so a
// new attempt never inherits stale fields from an old one.
func (s *Store) Put(rowID int, status models.JobStatus, ticketID, errText string) error {
	found := false
	for i := range s.jobs {
		if s.jobs[i].RowID == rowID {
			s.jobs[i].Status = string(status)
			s.jobs[i].TicketID = optional(ticketID)
			s.jobs[i].Error = optional(errText)
			found = true
			break
		}
	}
	if !found {
		s.jobs = append(s.jobs, record{
			RowID:    rowID,
			Status:   string(status),
			TicketID: optional(ticketID),
			Error:    optional(errText),
		})
	}

	return s.save()
}

// save rewrites the whole file through a temp-file-and-rename so a crash at
// any point leaves either the old file or the new one, never a torn mix.
func (s *Store) save() error {
	out := make(map[string]interface{}, 2+len(s.extra))
	out["version"] = s.version
	out["jobs"] = s.jobs
	for k, v := range s.extra {
		out[k] = v
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	// Flush the directory entry as well, best effort.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}

	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
