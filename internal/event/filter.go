package event

// Filter is the criteria of a subscription or a historical query.
// Absence of both User and Tags means "match everything".
type Filter struct {
	User    string  `json:"user,omitempty"`
	Tags    Tags    `json:"tags,omitempty"`
	EventID string  `json:"eventid,omitempty"`
	Code    *int    `json:"code,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Matches is the live-subscription predicate: the filter's user must
// equal the event's author when set, and every filter tag pair must be
// present among the event's tags. EventID, Code, and Status refinements
// apply only to stored queries, not to live matching.
func (f Filter) Matches(e *Event) bool {
	userOK := f.User == "" || f.User == e.User
	tagsOK := len(f.Tags) == 0 || e.Tags.ContainsAll(f.Tags)
	return userOK && tagsOK
}

// WithDefaults returns a copy of the filter with the code defaulted to
// the request's domain and the status defaulted to active.
func (f Filter) WithDefaults(domain int) Filter {
	out := f
	if out.Code == nil && domain >= 0 {
		d := domain
		out.Code = &d
	}
	if out.Status == nil {
		active := StatusActive
		out.Status = &active
	}
	return out
}
