package admission

import (
	"context"

	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/keys"
)

// QueryRequest is the read-path form of an inbound event: the filter the
// store runs plus paging extracted from the data bag. CountOnly requests
// want the matching total instead of the rows.
type QueryRequest struct {
	Filter    event.Filter
	Limit     int
	Offset    int
	Sort      event.Sort
	CountOnly bool
}

// BuildQuery derives the historical query from a read-request event.
// The subscription filter uses the request's own tags; "eventuser",
// "eventid", "code", "status", "limit", and "offset" come from the data
// bag. Code defaults to the request's domain and status to active. An
// explicit status value is honored only for admin-signed requests,
// since only the admin may see soft-deleted or status-filtered sets.
func (p *Pipeline) BuildQuery(e *event.Event) (QueryRequest, *Error) {
	const op = "admission.event_query"

	filter := event.Filter{
		User:    e.DataString("eventuser"),
		Tags:    e.Tags,
		EventID: e.DataString("eventid"),
	}
	if code := dataInt(e.Data, "code", -1); code >= 0 {
		filter.Code = &code
	}
	if rawStatus := dataInt(e.Data, "status", -1); rawStatus >= 0 {
		if !p.IsAdmin(e.User) || !keys.Verify(e, p.adminPubkey) {
			return QueryRequest{}, permissionError(op)
		}
		status := event.Status(rawStatus)
		filter.Status = &status
	}
	filter = filter.WithDefaults(event.Domain(e.Code))

	req := QueryRequest{
		Filter: filter,
		Limit:  dataInt(e.Data, "limit", 1000),
		Offset: dataInt(e.Data, "offset", 0),
		Sort:   event.SortServerTimeDesc,
	}
	if e.DataString("sort") == "created_at" {
		req.Sort = event.SortCreatedAtDesc
	}
	req.CountOnly, _ = e.Data["count"].(bool)
	return req, nil
}

// QueryEvents runs a historical event query.
func (p *Pipeline) QueryEvents(ctx context.Context, req QueryRequest) ([]event.Event, *Error) {
	const op = "admission.event_query"
	rows, err := p.events.FindByFilter(ctx, req.Filter, req.Limit, req.Offset, req.Sort)
	if err != nil {
		p.logError(op, "query_failed", err)
		return nil, storageError(op, err)
	}
	return rows, nil
}

// CountEvents reports how many stored events satisfy the request.
func (p *Pipeline) CountEvents(ctx context.Context, req QueryRequest) (int64, *Error) {
	const op = "admission.event_count"
	total, err := p.events.Count(ctx, req.Filter)
	if err != nil {
		p.logError(op, "count_failed", err)
		return 0, storageError(op, err)
	}
	return total, nil
}
