package fingerprint

import (
	"fmt"

	"github.com/emirpasic/gods/sets/hashset"
)

// RosterEntry is one enrolled person eligible for an identification call.
type RosterEntry struct {
	PersonID string
	Template *Template
}

// Roster is the ordered candidate list of a single Identify call.
type Roster []RosterEntry

// Validate rejects rosters the selector cannot rank unambiguously: empty or
// repeated person ids, missing templates and templates that break their
// structural invariants.
func (r Roster) Validate() error {
	seen := hashset.New()
	for i, e := range r {
		if e.PersonID == "" {
			return fmt.Errorf("roster entry %d: %w", i, ErrEmptyPersonID)
		}
		if e.Template == nil {
			return fmt.Errorf("roster entry %d (%s): %w", i, e.PersonID, ErrNilTemplate)
		}
		if err := e.Template.Validate(); err != nil {
			return fmt.Errorf("roster entry %d (%s): %w", i, e.PersonID, err)
		}
		if seen.Contains(e.PersonID) {
			return &DuplicatePersonError{PersonID: e.PersonID}
		}
		seen.Add(e.PersonID)
	}
	return nil
}
