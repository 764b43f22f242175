package models

import "time"

// StatusType is the compliance classification applied to an application.
type StatusType string

const (
	StatusWhitelisted  StatusType = "whitelisted"
	StatusUnidentified StatusType = "unidentified"
	StatusFlagged      StatusType = "flagged"
	StatusPending      StatusType = "pending"
	StatusBlocked      StatusType = "blocked"
)

// Status describes one of the fixed compliance tags for display.
type Status struct {
	ID          string     `json:"id"`
	Name        StatusType `json:"name"`
	DisplayName string     `json:"displayName"`
	Color       string     `json:"color"` // hex, e.g. "#00ff88"
	Description string     `json:"description,omitempty"`
}

// Application is a piece of software seen on one or more devices. The status
// applies to the application as a whole, not to individual versions.
type Application struct {
	UUID     string               `json:"uuid"`
	Name     string               `json:"name"`
	Versions []ApplicationVersion `json:"versions"`
	Status   StatusType           `json:"status"`
}

// ApplicationVersion is a single known version of an application.
type ApplicationVersion struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

// Device is a managed machine and the software installed on it.
type Device struct {
	UUID          string         `json:"uuid"`
	OwnerName     string         `json:"ownerName"`
	SerialNumber  string         `json:"serialNumber"`
	Installations []Installation `json:"applications"`
}

// Installation joins a device to an application at a specific version.
type Installation struct {
	ApplicationUUID string     `json:"applicationUuid"`
	Version         string     `json:"version"`
	InstalledAt     *time.Time `json:"installedAt,omitempty"`
}

// File is an uploaded report. Each file is a snapshot of one device.
type File struct {
	UUID       string    `json:"uuid"`
	UploadDate time.Time `json:"uploadDate"`
	DeviceUUID string    `json:"deviceUuid"`
	Name       string    `json:"name,omitempty"` // original upload filename
	Size       int64     `json:"size,omitempty"` // bytes
}

// FileUpload carries the caller-supplied part of a new File record. The
// store assigns the UUID and upload time.
type FileUpload struct {
	DeviceUUID string `json:"deviceUuid"`
	Name       string `json:"name,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// InstallationReport is one flattened device/application row.
type InstallationReport struct {
	Device             string     `json:"device"`
	Owner              string     `json:"owner"`
	SerialNumber       string     `json:"serialNumber"`
	ApplicationName    string     `json:"applicationName"`
	ApplicationVersion string     `json:"applicationVersion"`
	Status             StatusType `json:"status"`
}

// UnidentifiedRow is one (unidentified application, installing device) pair.
type UnidentifiedRow struct {
	Application  Application `json:"application"`
	Version      string      `json:"version"`
	DeviceUUID   string      `json:"deviceUuid"`
	DeviceSerial string      `json:"deviceSerial"`
	DeviceOwner  string      `json:"deviceOwner"`
	InstalledAt  *time.Time  `json:"installedAt,omitempty"`
}

// Stats holds the dashboard aggregate counts.
type Stats struct {
	TotalApplications int                `json:"totalApplications"`
	TotalDevices      int                `json:"totalDevices"`
	TotalFiles        int                `json:"totalFiles"`
	StatusCounts      map[StatusType]int `json:"statusCounts"`
	UnidentifiedCount int                `json:"unidentifiedCount"`
	WhitelistedCount  int                `json:"whitelistedCount"`
	FlaggedCount      int                `json:"flaggedCount"`
	MostRecentFile    *File              `json:"mostRecentFile"`
	LastUploadDate    *time.Time         `json:"lastUploadDate"`
}

// SortKey selects the ordering for application listings.
type SortKey string

const (
	SortByName   SortKey = "name"
	SortByStatus SortKey = "status"
	// SortNone keeps collection order.
	SortNone SortKey = "none"
)

// ApplicationFilter contains optional filter criteria for listing applications.
type ApplicationFilter struct {
	Search string     // case-insensitive substring of the name
	Status StatusType // exact match; empty means any
	Sort   SortKey
}
