package store

import (
	"time"

	"github.com/SkoposLabs/csm/internal/models"
)

// SampleSnapshot returns the demo fleet: ten applications, three devices and
// four uploaded reports. A fresh copy is built on every call.
func SampleSnapshot() Snapshot {
	apps := []models.Application{
		{UUID: "app-1", Name: "Google Chrome", Status: models.StatusWhitelisted, Versions: []models.ApplicationVersion{
			{Version: "120.0.6099.109", CreatedAt: ts("2024-01-15T10:30:00Z")},
			{Version: "119.0.6045.159", CreatedAt: ts("2023-12-20T14:20:00Z")},
		}},
		{UUID: "app-2", Name: "Visual Studio Code", Status: models.StatusWhitelisted, Versions: []models.ApplicationVersion{
			{Version: "1.85.2", CreatedAt: ts("2024-01-10T09:15:00Z")},
			{Version: "1.85.1", CreatedAt: ts("2023-12-28T16:45:00Z")},
		}},
		{UUID: "app-3", Name: "Slack", Status: models.StatusWhitelisted, Versions: []models.ApplicationVersion{
			{Version: "4.36.140", CreatedAt: ts("2024-01-18T11:00:00Z")},
		}},
		{UUID: "app-4", Name: "Unknown Crypto Miner", Status: models.StatusUnidentified, Versions: []models.ApplicationVersion{
			{Version: "2.1.0", CreatedAt: ts("2024-01-20T08:30:00Z")},
		}},
		{UUID: "app-5", Name: "SuspiciousApp.exe", Status: models.StatusUnidentified, Versions: []models.ApplicationVersion{
			{Version: "1.0.0", CreatedAt: ts("2024-01-21T15:20:00Z")},
		}},
		{UUID: "app-6", Name: "Docker Desktop", Status: models.StatusWhitelisted, Versions: []models.ApplicationVersion{
			{Version: "4.27.1", CreatedAt: ts("2024-01-12T13:30:00Z")},
			{Version: "4.27.0", CreatedAt: ts("2024-01-05T10:00:00Z")},
		}},
		{UUID: "app-7", Name: "Postman", Status: models.StatusWhitelisted, Versions: []models.ApplicationVersion{
			{Version: "10.21.0", CreatedAt: ts("2024-01-14T12:00:00Z")},
		}},
		{UUID: "app-8", Name: "Outdated Java Runtime", Status: models.StatusFlagged, Versions: []models.ApplicationVersion{
			{Version: "8u201", CreatedAt: ts("2019-01-15T10:00:00Z")},
		}},
		{UUID: "app-9", Name: "TeamViewer", Status: models.StatusPending, Versions: []models.ApplicationVersion{
			{Version: "15.49.5", CreatedAt: ts("2024-01-16T14:30:00Z")},
		}},
		{UUID: "app-10", Name: "TorBrowser", Status: models.StatusBlocked, Versions: []models.ApplicationVersion{
			{Version: "13.0.8", CreatedAt: ts("2024-01-19T09:45:00Z")},
		}},
	}

	devices := []models.Device{
		{UUID: "device-1", OwnerName: "John Doe", SerialNumber: "SN-2024-001-XYZ", Installations: []models.Installation{
			install("app-1", "120.0.6099.109", "2024-01-15T10:30:00Z"),
			install("app-2", "1.85.2", "2024-01-10T09:15:00Z"),
			install("app-3", "4.36.140", "2024-01-18T11:00:00Z"),
		}},
		{UUID: "device-2", OwnerName: "Jane Smith", SerialNumber: "SN-2024-002-ABC", Installations: []models.Installation{
			install("app-1", "119.0.6045.159", "2023-12-20T14:20:00Z"),
			install("app-4", "2.1.0", "2024-01-20T08:30:00Z"),
			install("app-5", "1.0.0", "2024-01-21T15:20:00Z"),
		}},
		{UUID: "device-3", OwnerName: "Bob Johnson", SerialNumber: "SN-2024-003-DEF", Installations: []models.Installation{
			install("app-6", "4.27.1", "2024-01-12T13:30:00Z"),
			install("app-7", "10.21.0", "2024-01-14T12:00:00Z"),
			install("app-8", "8u201", "2019-01-15T10:00:00Z"),
		}},
	}

	files := []models.File{
		{UUID: "file-1", UploadDate: ts("2024-01-21T16:30:00Z"), DeviceUUID: "device-2", Name: "device-2-report.json"},
		{UUID: "file-2", UploadDate: ts("2024-01-20T10:15:00Z"), DeviceUUID: "device-1", Name: "device-1-report.json"},
		{UUID: "file-3", UploadDate: ts("2024-01-19T14:45:00Z"), DeviceUUID: "device-3", Name: "device-3-report.json"},
		{UUID: "file-4", UploadDate: ts("2024-01-18T09:00:00Z"), DeviceUUID: "device-1", Name: "device-1-report-old.json"},
	}

	return Snapshot{Applications: apps, Devices: devices, Files: files}
}

func install(appUUID, version, at string) models.Installation {
	t := ts(at)
	return models.Installation{ApplicationUUID: appUUID, Version: version, InstalledAt: &t}
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic("store: bad sample timestamp " + s)
	}
	return t
}
