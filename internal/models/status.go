package models

// statuses is the closed set of compliance tags, in display order.
var statuses = [...]Status{
	{ID: "1", Name: StatusWhitelisted, DisplayName: "Whitelisted", Color: "#00ff88", Description: "Approved and safe applications"},
	{ID: "2", Name: StatusUnidentified, DisplayName: "Unidentified", Color: "#ff0055", Description: "Unknown or unverified applications"},
	{ID: "3", Name: StatusFlagged, DisplayName: "Flagged", Color: "#ffaa00", Description: "Applications requiring attention"},
	{ID: "4", Name: StatusPending, DisplayName: "Pending Review", Color: "#00d9ff", Description: "Awaiting security review"},
	{ID: "5", Name: StatusBlocked, DisplayName: "Blocked", Color: "#ff0000", Description: "Prohibited applications"},
}

// Statuses returns a copy of the fixed status set.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses[:])
	return out
}

// StatusTypes returns the tags in display order.
func StatusTypes() []StatusType {
	out := make([]StatusType, len(statuses))
	for i, s := range statuses {
		out[i] = s.Name
	}
	return out
}

// Valid reports whether s is one of the five known tags.
func (s StatusType) Valid() bool {
	_, ok := LookupStatus(s)
	return ok
}

// Info returns the display metadata for s. Unknown tags get a grey
// placeholder so templates never fail on bad data.
func (s StatusType) Info() Status {
	if st, ok := LookupStatus(s); ok {
		return st
	}
	return Status{Name: s, DisplayName: string(s), Color: "#888888"}
}

// LookupStatus finds the metadata for a tag.
func LookupStatus(s StatusType) (Status, bool) {
	for _, st := range statuses {
		if st.Name == s {
			return st, true
		}
	}
	return Status{}, false
}
