package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// The retrieval stage is bounded by SearchResultsLimit; MaxResultsPerQuery
// caps the final set handed back to callers.
func TestExecuteQuery_LimitStages(t *testing.T) {
	_, a := newTestServer(t, "")
	ctx := context.Background()

	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}

	// Final cap: plenty of retrieval headroom, tight per-query cap.
	settings.SearchResultsLimit = 20
	settings.MaxResultsPerQuery = 2
	if err := a.Store.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("update: %v", err)
	}
	out, err := a.executeQuery(ctx, "Example Health Center - Springfield, IL", nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want the per-query cap of 2", len(out.Results))
	}

	// Retrieval cap: the aggregation stage itself is cut to one result even
	// though the per-query cap would allow more.
	settings.SearchResultsLimit = 1
	settings.MaxResultsPerQuery = 10
	if err := a.Store.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("update: %v", err)
	}
	out, err = a.executeQuery(ctx, "Example Health Center - Springfield, IL", nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results = %d, want the retrieval cap of 1", len(out.Results))
	}
}

// Bulk runs journal only through the parent and its children; no standalone
// top-level row per query.
func TestBulkSearch_NoStandaloneJournalRows(t *testing.T) {
	s, a := newTestServer(t, "")

	body := `{"queries":[{"query":"Example Health Center - Springfield, IL"},{"query":"Somewhere Org - Chicago, IL"}]}`
	req := httptest.NewRequest(http.MethodPost, "/bulk-search", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("bulk start: status %d body %s", rr.Code, rr.Body)
	}
	a.Batch.Wait()

	logs, total, err := a.Store.ListSearchLogs(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Fatalf("top-level rows = %d, want only the bulk parent", total)
	}
	if logs[0].ParentID != "" || logs[0].TotalQueries != 2 {
		t.Fatalf("unexpected parent row: %+v", logs[0])
	}

	children, err := a.Store.GetChildLogs(context.Background(), logs[0].ProcessID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
}
