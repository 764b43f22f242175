// Package compliance derives dashboard views from the stored collections and
// coordinates mutations on them.
//
// The functions in this file are pure: they never modify their inputs and
// return fresh slices. Service (service.go) adds caching, per-entity
// mutation ordering, event publishing and metrics on top of a store.DataStore.
package compliance

import (
	"slices"
	"strings"

	"github.com/SkoposLabs/csm/internal/models"
)

// ListApplications filters apps by f and sorts them by f.Sort. The sort is
// stable, so applications with equal keys keep their input order. SortNone
// leaves them in input order; an empty or unknown sort key sorts by name.
func ListApplications(apps []models.Application, f models.ApplicationFilter) []models.Application {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]models.Application, 0, len(apps))
	for _, a := range apps {
		if search != "" && !strings.Contains(strings.ToLower(a.Name), search) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	if f.Sort == models.SortNone {
		return out
	}

	key := func(a models.Application) string { return a.Name }
	if f.Sort == models.SortByStatus {
		key = func(a models.Application) string { return string(a.Status) }
	}
	slices.SortStableFunc(out, func(a, b models.Application) int {
		return strings.Compare(key(a), key(b))
	})
	return out
}

// ParseSortKey maps a query value onto a SortKey, defaulting to name.
func ParseSortKey(s string) models.SortKey {
	switch k := models.SortKey(s); k {
	case models.SortByStatus, models.SortNone:
		return k
	}
	return models.SortByName
}

// UnidentifiedInstallations joins unidentified applications to the devices
// that have them installed. Rows are ordered by application, then by device,
// both in collection order. A device contributes one row per application.
func UnidentifiedInstallations(apps []models.Application, devices []models.Device) []models.UnidentifiedRow {
	rows := []models.UnidentifiedRow{}
	for _, a := range apps {
		if a.Status != models.StatusUnidentified {
			continue
		}
		for _, d := range devices {
			in, ok := findInstallation(d, a.UUID)
			if !ok {
				continue
			}
			rows = append(rows, models.UnidentifiedRow{
				Application:  a,
				Version:      in.Version,
				DeviceUUID:   d.UUID,
				DeviceSerial: d.SerialNumber,
				DeviceOwner:  d.OwnerName,
				InstalledAt:  in.InstalledAt,
			})
		}
	}
	return rows
}

// ApplicationDevices returns the devices that have appUUID installed, in
// collection order.
func ApplicationDevices(appUUID string, devices []models.Device) []models.Device {
	out := []models.Device{}
	for _, d := range devices {
		if _, ok := findInstallation(d, appUUID); ok {
			out = append(out, d)
		}
	}
	return out
}

func findInstallation(d models.Device, appUUID string) (models.Installation, bool) {
	for _, in := range d.Installations {
		if in.ApplicationUUID == appUUID {
			return in, true
		}
	}
	return models.Installation{}, false
}

// Paginate returns the 1-indexed page of rows: [(page-1)*size, page*size)
// clipped to len(rows). Pages outside the range give an empty or partial
// slice; callers clamp with ClampPage first when they need a valid page.
func Paginate[T any](rows []T, pageSize, page int) []T {
	if pageSize <= 0 || page < 1 || page-1 > len(rows)/pageSize {
		return []T{}
	}
	start := (page - 1) * pageSize
	end := min(page*pageSize, len(rows))
	if start >= end {
		return []T{}
	}
	return rows[start:end:end]
}

// PageCount returns how many pages of pageSize are needed for total rows.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ClampPage forces page into [1, pages]. With zero pages it returns 1.
func ClampPage(page, pages int) int {
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// ComputeStats aggregates the collections. The most recent file is the one
// with the latest upload time; on ties the earlier position wins, which is
// the later insertion since files are kept most recent first.
func ComputeStats(apps []models.Application, devices []models.Device, files []models.File) models.Stats {
	s := models.Stats{
		TotalApplications: len(apps),
		TotalDevices:      len(devices),
		TotalFiles:        len(files),
		StatusCounts:      make(map[models.StatusType]int, 5),
	}
	for _, st := range models.StatusTypes() {
		s.StatusCounts[st] = 0
	}
	for _, a := range apps {
		s.StatusCounts[a.Status]++
	}
	s.UnidentifiedCount = s.StatusCounts[models.StatusUnidentified]
	s.WhitelistedCount = s.StatusCounts[models.StatusWhitelisted]
	s.FlaggedCount = s.StatusCounts[models.StatusFlagged]

	for i := range files {
		if s.MostRecentFile == nil || files[i].UploadDate.After(s.MostRecentFile.UploadDate) {
			f := files[i]
			s.MostRecentFile = &f
		}
	}
	if s.MostRecentFile != nil {
		t := s.MostRecentFile.UploadDate
		s.LastUploadDate = &t
	}
	return s
}

// InstallationReports flattens every installation on every device into a
// report row. Installations of unknown applications use the raw UUID as the
// name and carry no status.
func InstallationReports(apps []models.Application, devices []models.Device) []models.InstallationReport {
	byID := indexApplications(apps)
	out := []models.InstallationReport{}
	for _, d := range devices {
		out = append(out, deviceReports(d, byID)...)
	}
	return out
}

// FileReports returns the report rows for the device a file was uploaded
// for. A file whose device no longer exists yields no rows.
func FileReports(f models.File, apps []models.Application, devices []models.Device) []models.InstallationReport {
	for _, d := range devices {
		if d.UUID == f.DeviceUUID {
			return deviceReports(d, indexApplications(apps))
		}
	}
	return []models.InstallationReport{}
}

func deviceReports(d models.Device, apps map[string]models.Application) []models.InstallationReport {
	out := make([]models.InstallationReport, 0, len(d.Installations))
	for _, in := range d.Installations {
		r := models.InstallationReport{
			Device:             d.UUID,
			Owner:              d.OwnerName,
			SerialNumber:       d.SerialNumber,
			ApplicationName:    in.ApplicationUUID,
			ApplicationVersion: in.Version,
		}
		if a, ok := apps[in.ApplicationUUID]; ok {
			r.ApplicationName = a.Name
			r.Status = a.Status
		}
		out = append(out, r)
	}
	return out
}

func indexApplications(apps []models.Application) map[string]models.Application {
	m := make(map[string]models.Application, len(apps))
	for _, a := range apps {
		m[a.UUID] = a
	}
	return m
}
