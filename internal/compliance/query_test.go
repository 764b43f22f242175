package compliance

import (
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/SkoposLabs/csm/internal/models"
	"github.com/SkoposLabs/csm/internal/store"
)

func names(apps []models.Application) []string {
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = a.Name
	}
	return out
}

func TestListApplications(t *testing.T) {
	apps := store.SampleSnapshot().Applications

	tests := []struct {
		name   string
		filter models.ApplicationFilter
		want   []string
	}{
		{
			name:   "search is case-insensitive",
			filter: models.ApplicationFilter{Search: "CHROME"},
			want:   []string{"Google Chrome"},
		},
		{
			name:   "status filter",
			filter: models.ApplicationFilter{Status: models.StatusUnidentified},
			want:   []string{"SuspiciousApp.exe", "Unknown Crypto Miner"},
		},
		{
			name:   "search and status combine",
			filter: models.ApplicationFilter{Search: "o", Status: models.StatusWhitelisted},
			want:   []string{"Docker Desktop", "Google Chrome", "Postman", "Visual Studio Code"},
		},
		{
			name:   "no match",
			filter: models.ApplicationFilter{Search: "emacs"},
			want:   []string{},
		},
		{
			name:   "sort by status is stable",
			filter: models.ApplicationFilter{Sort: models.SortByStatus},
			want: []string{
				"TorBrowser",
				"Outdated Java Runtime",
				"TeamViewer",
				"Unknown Crypto Miner", "SuspiciousApp.exe",
				"Google Chrome", "Visual Studio Code", "Slack", "Docker Desktop", "Postman",
			},
		},
		{
			name:   "unknown sort key falls back to name",
			filter: models.ApplicationFilter{Search: "s", Sort: "size"},
			want:   []string{"Docker Desktop", "Postman", "Slack", "SuspiciousApp.exe", "TorBrowser", "Visual Studio Code"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(ListApplications(apps, tt.filter))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ListApplications() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListApplications_StableSubsequence(t *testing.T) {
	apps := []models.Application{
		{UUID: "a", Name: "Same", Status: models.StatusFlagged},
		{UUID: "b", Name: "Alpha", Status: models.StatusBlocked},
		{UUID: "c", Name: "Same", Status: models.StatusBlocked},
		{UUID: "d", Name: "Same", Status: models.StatusFlagged},
	}

	byName := ListApplications(apps, models.ApplicationFilter{Sort: models.SortByName})
	if got := uuids(byName); !reflect.DeepEqual(got, []string{"b", "a", "c", "d"}) {
		t.Errorf("by name = %v, want [b a c d]", got)
	}

	byStatus := ListApplications(apps, models.ApplicationFilter{Sort: models.SortByStatus})
	if got := uuids(byStatus); !reflect.DeepEqual(got, []string{"b", "c", "a", "d"}) {
		t.Errorf("by status = %v, want [b c a d]", got)
	}

	unsorted := ListApplications(apps, models.ApplicationFilter{Sort: models.SortNone, Status: models.StatusFlagged})
	if got := uuids(unsorted); !reflect.DeepEqual(got, []string{"a", "d"}) {
		t.Errorf("unsorted = %v, want [a d]", got)
	}

	// Input is untouched.
	if got := uuids(apps); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("input reordered: %v", got)
	}
}

func TestListApplications_Empty(t *testing.T) {
	got := ListApplications(nil, models.ApplicationFilter{Search: "x"})
	if got == nil || len(got) != 0 {
		t.Errorf("ListApplications(nil) = %#v, want empty non-nil slice", got)
	}
}

func uuids(apps []models.Application) []string {
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = a.UUID
	}
	return out
}

func TestParseSortKey(t *testing.T) {
	for in, want := range map[string]models.SortKey{
		"":       models.SortByName,
		"name":   models.SortByName,
		"status": models.SortByStatus,
		"STATUS": models.SortByName,
		"date":   models.SortByName,
		"none":   models.SortNone,
	} {
		if got := ParseSortKey(in); got != want {
			t.Errorf("ParseSortKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnidentifiedInstallations_Sample(t *testing.T) {
	snap := store.SampleSnapshot()
	rows := UnidentifiedInstallations(snap.Applications, snap.Devices)

	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	want := []struct{ app, version, serial, owner string }{
		{"Unknown Crypto Miner", "2.1.0", "SN-2024-002-ABC", "Jane Smith"},
		{"SuspiciousApp.exe", "1.0.0", "SN-2024-002-ABC", "Jane Smith"},
	}
	for i, w := range want {
		r := rows[i]
		if r.Application.Name != w.app || r.Version != w.version || r.DeviceSerial != w.serial || r.DeviceOwner != w.owner {
			t.Errorf("row %d = %+v, want %+v", i, r, w)
		}
		if r.DeviceUUID != "device-2" || r.InstalledAt == nil {
			t.Errorf("row %d device/installedAt = %q/%v", i, r.DeviceUUID, r.InstalledAt)
		}
	}
}

func TestUnidentifiedInstallations_JoinCount(t *testing.T) {
	apps := []models.Application{
		{UUID: "u1", Name: "One", Status: models.StatusUnidentified},
		{UUID: "w1", Name: "Known", Status: models.StatusWhitelisted},
		{UUID: "u2", Name: "Two", Status: models.StatusUnidentified},
		{UUID: "u3", Name: "Nowhere", Status: models.StatusUnidentified},
	}
	devices := []models.Device{
		{UUID: "d1", Installations: []models.Installation{{ApplicationUUID: "u1", Version: "1"}, {ApplicationUUID: "u2", Version: "2"}}},
		{UUID: "d2", Installations: []models.Installation{{ApplicationUUID: "w1", Version: "1"}}},
		{UUID: "d3", Installations: []models.Installation{{ApplicationUUID: "u1", Version: "1.1"}}},
	}

	rows := UnidentifiedInstallations(apps, devices)

	// u1 on d1 and d3, u2 on d1, u3 nowhere.
	var got []string
	for _, r := range rows {
		got = append(got, r.Application.UUID+"@"+r.DeviceUUID)
	}
	want := []string{"u1@d1", "u1@d3", "u2@d1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
	if rows[1].Version != "1.1" {
		t.Errorf("rows[1].Version = %q, want 1.1", rows[1].Version)
	}
}

func TestPaginate(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	tests := []struct {
		name       string
		size, page int
		want       []int
	}{
		{"first page", 5, 1, []int{1, 2, 3, 4, 5}},
		{"second page", 5, 2, []int{6, 7, 8, 9, 10}},
		{"partial last page", 5, 3, []int{11, 12}},
		{"past the end", 5, 4, []int{}},
		{"page zero", 5, 0, []int{}},
		{"negative page", 5, -2, []int{}},
		{"zero size", 0, 1, []int{}},
		{"size larger than rows", 50, 1, rows},
		{"page large enough to overflow", 4, math.MaxInt/4 + 2, []int{}},
		{"max page", 1, math.MaxInt, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(rows, tt.size, tt.page)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Paginate(%d, %d) = %v, want %v", tt.size, tt.page, got, tt.want)
			}
		})
	}
}

func TestPaginate_ConcatenationRestoresRows(t *testing.T) {
	for n := 0; n <= 13; n++ {
		rows := make([]string, n)
		for i := range rows {
			rows[i] = fmt.Sprintf("r%d", i)
		}
		for size := 1; size <= 6; size++ {
			var all []string
			for p := 1; p <= PageCount(n, size); p++ {
				all = append(all, Paginate(rows, size, p)...)
			}
			if len(all) != n || (n > 0 && !reflect.DeepEqual(all, rows)) {
				t.Errorf("n=%d size=%d: concat = %v", n, size, all)
			}
		}
	}
}

func TestPaginate_AppendDoesNotClobberSource(t *testing.T) {
	rows := []int{1, 2, 3, 4}
	page := Paginate(rows, 2, 1)
	_ = append(page, 99)
	if rows[2] != 3 {
		t.Errorf("append on a page overwrote the source: %v", rows)
	}
}

func TestPageCountAndClamp(t *testing.T) {
	if got := PageCount(12, 5); got != 3 {
		t.Errorf("PageCount(12, 5) = %d, want 3", got)
	}
	if got := PageCount(10, 5); got != 2 {
		t.Errorf("PageCount(10, 5) = %d, want 2", got)
	}
	if got := PageCount(0, 5); got != 0 {
		t.Errorf("PageCount(0, 5) = %d, want 0", got)
	}

	tests := []struct{ page, pages, want int }{
		{1, 3, 1}, {3, 3, 3}, {4, 3, 3}, {0, 3, 1}, {-1, 3, 1}, {5, 0, 1},
	}
	for _, tt := range tests {
		if got := ClampPage(tt.page, tt.pages); got != tt.want {
			t.Errorf("ClampPage(%d, %d) = %d, want %d", tt.page, tt.pages, got, tt.want)
		}
	}
}

func TestComputeStats_Sample(t *testing.T) {
	snap := store.SampleSnapshot()
	s := ComputeStats(snap.Applications, snap.Devices, snap.Files)

	if s.TotalApplications != 10 || s.TotalDevices != 3 || s.UnidentifiedCount != 2 {
		t.Errorf("totals = %d apps / %d devices / %d unidentified, want 10/3/2",
			s.TotalApplications, s.TotalDevices, s.UnidentifiedCount)
	}
	if s.WhitelistedCount != 5 || s.FlaggedCount != 1 {
		t.Errorf("whitelisted/flagged = %d/%d, want 5/1", s.WhitelistedCount, s.FlaggedCount)
	}
	if s.StatusCounts[models.StatusPending] != 1 || s.StatusCounts[models.StatusBlocked] != 1 {
		t.Errorf("StatusCounts = %v", s.StatusCounts)
	}
	if s.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", s.TotalFiles)
	}
	if s.MostRecentFile == nil || s.MostRecentFile.UUID != "file-1" {
		t.Fatalf("MostRecentFile = %+v, want file-1", s.MostRecentFile)
	}
	if s.LastUploadDate == nil || !s.LastUploadDate.Equal(s.MostRecentFile.UploadDate) {
		t.Errorf("LastUploadDate = %v", s.LastUploadDate)
	}
}

func TestComputeStats_MostRecentFile(t *testing.T) {
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	files := []models.File{
		{UUID: "newest-insert", UploadDate: base},
		{UUID: "later-time", UploadDate: base.Add(time.Hour)},
		{UUID: "tie", UploadDate: base.Add(time.Hour)},
	}
	s := ComputeStats(nil, nil, files)
	if s.MostRecentFile.UUID != "later-time" {
		t.Errorf("MostRecentFile = %q, want later-time (max time, earliest position on tie)", s.MostRecentFile.UUID)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, nil, nil)
	if s.MostRecentFile != nil || s.LastUploadDate != nil {
		t.Error("empty stats should have no most recent file")
	}
	if len(s.StatusCounts) != 5 {
		t.Errorf("StatusCounts should list all five tags, got %v", s.StatusCounts)
	}
}

func TestInstallationReports(t *testing.T) {
	snap := store.SampleSnapshot()
	reports := InstallationReports(snap.Applications, snap.Devices)

	if len(reports) != 9 {
		t.Fatalf("len(reports) = %d, want 9", len(reports))
	}
	first := reports[0]
	if first.Device != "device-1" || first.ApplicationName != "Google Chrome" || first.Status != models.StatusWhitelisted {
		t.Errorf("reports[0] = %+v", first)
	}
	last := reports[8]
	if last.ApplicationName != "Outdated Java Runtime" || last.Status != models.StatusFlagged || last.Owner != "Bob Johnson" {
		t.Errorf("reports[8] = %+v", last)
	}
}

func TestInstallationReports_UnknownApplication(t *testing.T) {
	devices := []models.Device{{UUID: "d", Installations: []models.Installation{{ApplicationUUID: "ghost", Version: "0.1"}}}}
	reports := InstallationReports(nil, devices)
	if len(reports) != 1 || reports[0].ApplicationName != "ghost" || reports[0].Status != "" {
		t.Errorf("reports = %+v", reports)
	}
}

func TestFileReports(t *testing.T) {
	snap := store.SampleSnapshot()

	reports := FileReports(snap.Files[0], snap.Applications, snap.Devices)
	if len(reports) != 3 {
		t.Fatalf("len(reports) = %d, want 3", len(reports))
	}
	for _, r := range reports {
		if r.Device != "device-2" || r.Owner != "Jane Smith" {
			t.Errorf("report %+v not for device-2", r)
		}
	}

	orphan := models.File{UUID: "x", DeviceUUID: "gone"}
	if got := FileReports(orphan, snap.Applications, snap.Devices); len(got) != 0 {
		t.Errorf("orphan file reports = %v, want none", got)
	}
}

func TestApplicationDevices(t *testing.T) {
	snap := store.SampleSnapshot()

	var got []string
	for _, d := range ApplicationDevices("app-1", snap.Devices) {
		got = append(got, d.UUID)
	}
	if !reflect.DeepEqual(got, []string{"device-1", "device-2"}) {
		t.Errorf("ApplicationDevices(app-1) = %v", got)
	}
	if n := len(ApplicationDevices("app-9", snap.Devices)); n != 0 {
		t.Errorf("ApplicationDevices(app-9) returned %d devices, want 0", n)
	}
}
