package tunnelflight

import (
	"encoding/json"
	"fmt"
)

type LogbookEntry struct {
	ID           int64  `json:"id"`
	Category     string `json:"category"`
	Skill        string `json:"skill"`
	Status       string `json:"status"`
	EntryDate    int64  `json:"entry_date"`
	ApprovalDate *int64 `json:"approval_date,omitempty"`
	Instructor   string `json:"instructor"`
}

type rawLogbookEntry struct {
	ID           flexInt    `json:"id"`
	CatName      flexString `json:"cat_name"`
	SkillName    flexString `json:"skill_name"`
	Status       flexString `json:"status"`
	EntryDate    flexInt    `json:"entry_date"`
	ApprovalDate *flexInt   `json:"approval_date"`
	Instructor   flexString `json:"instructor_name"`
}

func (r rawLogbookEntry) entry() LogbookEntry {
	category := string(r.CatName)
	if category == "" {
		category = "Unknown"
	}
	entry := LogbookEntry{
		ID:         int64(r.ID),
		Category:   category,
		Skill:      string(r.SkillName),
		Status:     string(r.Status),
		EntryDate:  int64(r.EntryDate),
		Instructor: string(r.Instructor),
	}
	if r.ApprovalDate != nil && *r.ApprovalDate > 0 {
		approval := int64(*r.ApprovalDate)
		entry.ApprovalDate = &approval
	}
	return entry
}

// parseLogbook reads the logbook list. Elements that are not objects are skipped.
func parseLogbook(data []byte) ([]LogbookEntry, error) {
	var elements []json.RawMessage
	err := json.Unmarshal(data, &elements)
	if err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	entries := make([]LogbookEntry, 0, len(elements))
	for _, element := range elements {
		var raw rawLogbookEntry
		if string(element) == "null" || json.Unmarshal(element, &raw) != nil {
			continue
		}
		entries = append(entries, raw.entry())
	}
	return entries, nil
}

// groupByCategory keeps the order entries arrived in within each category.
func groupByCategory(entries []LogbookEntry) map[string][]LogbookEntry {
	out := make(map[string][]LogbookEntry)
	for _, entry := range entries {
		out[entry.Category] = append(out[entry.Category], entry)
	}
	return out
}
