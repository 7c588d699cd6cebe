package model

import (
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Staff is a security staff member who can log in and capture entry records.
type Staff struct {
	BaseModel
	FileID    string      `json:"fileId"` // External employee identifier (HR file number)
	Name      string      `json:"name"`
	Password  string      `json:"-" gorm:"default:null"` // pwdhash.HashPasswordBase64
	CreatedAt dbh.IntTime `json:"createdAt"`
}

// Project is a construction project that entry records are partitioned by.
type Project struct {
	BaseModel
	Name      string      `json:"name"`
	CreatedAt dbh.IntTime `json:"createdAt"`
}

// ProjectAssignment binds a staff member to their one active project.
// Assigning a new project replaces the previous assignment.
type ProjectAssignment struct {
	StaffID     int64       `gorm:"primaryKey" json:"staffId"`
	ProjectName string      `json:"projectName"`
	AssignedAt  dbh.IntTime `json:"assignedAt"`
}

// Principal kinds stored in AuthSession.Kind
const (
	SessionKindAdmin = "admin"
	SessionKindStaff = "staff"
)

// AuthSession is a login session. Key is the SHA-256 of the token that the
// client holds; the plaintext token never touches the database.
type AuthSession struct {
	Key       string `gorm:"primaryKey"`
	Kind      string
	StaffID   int64 `gorm:"default:null"` // zero for admin sessions
	CreatedAt dbh.IntTime
	ExpiresAt dbh.IntTime
}

// LoginAttempt tracks failed logins per identity (IP address or account),
// for the sliding-window lockout.
type LoginAttempt struct {
	Identity      string `gorm:"primaryKey"`
	AttemptCount  int
	LastAttemptAt dbh.IntTime
	LockedUntil   dbh.IntTime `gorm:"default:null"`
}

// Entry record status
const (
	StatusInside = "inside"
	StatusExited = "exited"
)

// Entry record categories
var Categories = []string{"staff", "clients", "subcontractors", "suppliers", "visitors", "contractors"}

func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// EntryRecord is one person (or party) entering a site.
type EntryRecord struct {
	BaseModel
	Category        string      `json:"category"`
	Name            string      `json:"name"`
	Company         string      `json:"company" gorm:"default:null"`
	ContactNumber   string      `json:"contactNumber"`
	Email           string      `json:"email" gorm:"default:null"`
	VehicleNumber   string      `json:"vehicleNumber" gorm:"default:null"`
	NumberOfPersons int         `json:"numberOfPersons" gorm:"default:null"`
	Purpose         string      `json:"purpose" gorm:"default:null"`
	Host            string      `json:"host" gorm:"default:null"`
	Photo           string      `json:"photo" gorm:"default:null"` // Reference into blob storage
	EntryTime       dbh.IntTime `json:"entryTime"`
	ExitTime        dbh.IntTime `json:"exitTime" gorm:"default:null"`
	DurationText    string      `json:"durationText" gorm:"default:null"`
	ProjectName     string      `json:"projectName" gorm:"default:null"`
	Status          string      `json:"status"`
	CreatedBy       string      `json:"createdBy" gorm:"default:null"` // Display name of the staff member who captured the record
}

// OnSite returns how long the person has been (or was) on site.
// For records still inside, the duration is measured up to 'now'.
func (e *EntryRecord) OnSite(now time.Time) time.Duration {
	end := now
	if !e.ExitTime.IsZero() {
		end = e.ExitTime.Get()
	}
	d := end.Sub(e.EntryTime.Get())
	if d < 0 {
		return 0
	}
	return d
}

func NormalizeFileID(fileID string) string {
	return strings.ToLower(strings.TrimSpace(fileID))
}
