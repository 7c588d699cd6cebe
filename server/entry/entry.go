package entry

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/gatelog/gatelog/pkg/rando"
	"github.com/gatelog/gatelog/server/auth"
	"github.com/gatelog/gatelog/server/model"
	"github.com/gatelog/gatelog/server/storage"
	"gorm.io/gorm"
)

// Records older than this are deleted (retention policy)
const RetentionMonths = 1

// A person on site for longer than this gets the overtime flag in listings
const OvertimeThreshold = 10 * time.Hour

// Upper bound on a create/update payload. This also bounds the embedded photo.
const MaxPayloadBytes = 500 * 1024

// Field length limits
const (
	MaxNameLen    = 100
	MaxContactLen = 20
)

const retentionSweepInterval = time.Hour

// EntryServer owns entry records: creation, checkout, listing, retention.
type EntryServer struct {
	log     logs.Log
	db      *gorm.DB
	storage storage.Storage

	shutdown  chan bool
	sweepDone chan bool
}

func NewEntryServer(log logs.Log, db *gorm.DB, store storage.Storage) *EntryServer {
	s := &EntryServer{
		log:       log,
		db:        db,
		storage:   store,
		shutdown:  make(chan bool),
		sweepDone: make(chan bool),
	}
	go s.retentionSweeper()
	return s
}

func (s *EntryServer) Close() {
	close(s.shutdown)
	<-s.sweepDone
}

// CreateRequest is the payload for creating an entry record.
type CreateRequest struct {
	Category        string `json:"category"`
	Name            string `json:"name"`
	Company         string `json:"company"`
	ContactNumber   string `json:"contactNumber"`
	Email           string `json:"email"`
	VehicleNumber   string `json:"vehicleNumber"`
	NumberOfPersons int    `json:"numberOfPersons"`
	Purpose         string `json:"purpose"`
	Host            string `json:"host"`
	Photo           string `json:"photo"` // base64-encoded image, optional
	ProjectName     string `json:"projectName"`
	EntryTime       int64  `json:"entryTime"` // unix milliseconds, optional
}

// Create validates and stores a new entry record.
// A staff principal's record is always filed under their assigned project,
// regardless of what the client sent; a staff member with no assignment
// cannot create records at all.
func (s *EntryServer) Create(cred *auth.Credentials, req *CreateRequest) (*model.EntryRecord, error) {
	if cred == nil {
		return nil, www.Unauthorized()
	}
	rec := &model.EntryRecord{
		Category:        req.Category,
		Name:            req.Name,
		Company:         req.Company,
		ContactNumber:   req.ContactNumber,
		Email:           req.Email,
		VehicleNumber:   req.VehicleNumber,
		NumberOfPersons: req.NumberOfPersons,
		Purpose:         req.Purpose,
		Host:            req.Host,
		ProjectName:     req.ProjectName,
		Status:          model.StatusInside,
	}
	if !cred.IsAdmin {
		if cred.AssignedProject == "" {
			return nil, www.Forbiddenf("You have no project assigned, so you cannot create entry records")
		}
		rec.ProjectName = cred.AssignedProject
		rec.CreatedBy = cred.DisplayName
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if req.EntryTime != 0 {
		rec.EntryTime = dbh.MakeIntTime(time.UnixMilli(req.EntryTime))
	} else {
		rec.EntryTime = dbh.MakeIntTime(now)
	}

	photoRef := ""
	if req.Photo != "" {
		photo, err := base64.StdEncoding.DecodeString(req.Photo)
		if err != nil {
			return nil, www.BadRequestf("Invalid photo: not valid base64")
		}
		photoRef = "photos/" + rando.StrongRandomHex(16) + ".jpg"
		if err := storage.WriteFile(s.storage, photoRef, bytes.NewReader(photo)); err != nil {
			return nil, err
		}
		rec.Photo = photoRef
	}

	if err := s.db.Create(rec).Error; err != nil {
		if photoRef != "" {
			s.storage.DeleteFile(photoRef)
		}
		return nil, err
	}
	s.log.Infof("New %v entry %v (%v) on project '%v' by '%v'", rec.Category, rec.ID, rec.Name, rec.ProjectName, rec.CreatedBy)
	return rec, nil
}

// Checkout marks the person as exited and computes the stored duration.
// It requires no principal: checkouts are commonly triggered from a shared
// front-desk terminal.
func (s *EntryServer) Checkout(id int64, exitTime time.Time) (*model.EntryRecord, error) {
	rec := model.EntryRecord{}
	if err := s.db.Find(&rec, id).Error; err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, www.NotFound()
	}
	if exitTime.IsZero() {
		exitTime = time.Now().UTC()
	}
	if exitTime.Before(rec.EntryTime.Get()) {
		return nil, www.BadRequestf("Exit time is before entry time")
	}
	rec.ExitTime = dbh.MakeIntTime(exitTime)
	rec.Status = model.StatusExited
	rec.DurationText = FormatDuration(exitTime.Sub(rec.EntryTime.Get()))
	if err := s.db.Save(&rec).Error; err != nil {
		return nil, err
	}
	s.log.Infof("Entry %v checked out after %v", rec.ID, rec.DurationText)
	return &rec, nil
}

// UpdateRequest carries a partial update of a record. Nil fields are left
// unchanged. ExitTime and Status are the checkout fields; a request that
// sets only those is a pure checkout.
type UpdateRequest struct {
	Category        *string `json:"category"`
	Name            *string `json:"name"`
	Company         *string `json:"company"`
	ContactNumber   *string `json:"contactNumber"`
	Email           *string `json:"email"`
	VehicleNumber   *string `json:"vehicleNumber"`
	NumberOfPersons *int    `json:"numberOfPersons"`
	Purpose         *string `json:"purpose"`
	Host            *string `json:"host"`
	ProjectName     *string `json:"projectName"`
	EntryTime       *int64  `json:"entryTime"` // unix milliseconds
	ExitTime        *int64  `json:"exitTime"`  // unix milliseconds
	Status          *string `json:"status"`
}

// IsCheckoutOnly is true when the request changes nothing besides the
// checkout fields.
func (r *UpdateRequest) IsCheckoutOnly() bool {
	touchesOther := r.Category != nil || r.Name != nil || r.Company != nil ||
		r.ContactNumber != nil || r.Email != nil || r.VehicleNumber != nil ||
		r.NumberOfPersons != nil || r.Purpose != nil || r.Host != nil ||
		r.ProjectName != nil || r.EntryTime != nil
	if touchesOther {
		return false
	}
	return r.ExitTime != nil || (r.Status != nil && *r.Status == model.StatusExited)
}

// Update applies a partial edit. Pure checkouts need no principal. Any other
// edit requires one, and a staff principal may only edit records that belong
// to their assigned project.
func (s *EntryServer) Update(cred *auth.Credentials, id int64, req *UpdateRequest) (*model.EntryRecord, error) {
	if req.IsCheckoutOnly() {
		exitTime := time.Time{}
		if req.ExitTime != nil {
			exitTime = time.UnixMilli(*req.ExitTime)
		}
		return s.Checkout(id, exitTime)
	}

	if cred == nil {
		return nil, www.Unauthorized()
	}
	rec := model.EntryRecord{}
	if err := s.db.Find(&rec, id).Error; err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, www.NotFound()
	}
	if !cred.IsAdmin {
		if cred.AssignedProject == "" {
			return nil, www.Forbiddenf("You have no project assigned, so you cannot edit entry records")
		}
		if rec.ProjectName != cred.AssignedProject {
			return nil, www.Forbiddenf("You may only edit records of your own project")
		}
		// Staff cannot move a record to another project
		req.ProjectName = nil
	}

	if req.Category != nil {
		rec.Category = *req.Category
	}
	if req.Name != nil {
		rec.Name = *req.Name
	}
	if req.Company != nil {
		rec.Company = *req.Company
	}
	if req.ContactNumber != nil {
		rec.ContactNumber = *req.ContactNumber
	}
	if req.Email != nil {
		rec.Email = *req.Email
	}
	if req.VehicleNumber != nil {
		rec.VehicleNumber = *req.VehicleNumber
	}
	if req.NumberOfPersons != nil {
		rec.NumberOfPersons = *req.NumberOfPersons
	}
	if req.Purpose != nil {
		rec.Purpose = *req.Purpose
	}
	if req.Host != nil {
		rec.Host = *req.Host
	}
	if req.ProjectName != nil {
		rec.ProjectName = *req.ProjectName
	}
	if req.EntryTime != nil {
		rec.EntryTime = dbh.MakeIntTime(time.UnixMilli(*req.EntryTime))
	}
	if err := validateRecord(&rec); err != nil {
		return nil, err
	}

	if req.ExitTime != nil || (req.Status != nil && *req.Status == model.StatusExited) {
		exitTime := time.Now().UTC()
		if req.ExitTime != nil {
			exitTime = time.UnixMilli(*req.ExitTime)
		}
		if exitTime.Before(rec.EntryTime.Get()) {
			return nil, www.BadRequestf("Exit time is before entry time")
		}
		rec.ExitTime = dbh.MakeIntTime(exitTime)
		rec.Status = model.StatusExited
		rec.DurationText = FormatDuration(exitTime.Sub(rec.EntryTime.Get()))
	}

	if err := s.db.Save(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListFilter selects the listing mode.
type ListFilter struct {
	Mine  bool // "my records": scope by creator instead of by project
	Today bool // only records from the current calendar day
}

// ListItem is an entry record plus the live on-site figures.
type ListItem struct {
	model.EntryRecord
	OnSiteText string `json:"onSiteText"`
	Overtime   bool   `json:"overtime"`
}

// List returns the records visible to the principal, newest first.
// Retention cleanup runs first, so expired records never appear, even when
// asked for explicitly.
func (s *EntryServer) List(cred *auth.Credentials, filter ListFilter) ([]ListItem, error) {
	if cred == nil {
		return nil, www.Unauthorized()
	}
	s.PurgeExpiredRecords()

	q := s.db.Model(&model.EntryRecord{})
	if !cred.IsAdmin {
		if filter.Mine {
			q = q.Where("created_by = ?", cred.DisplayName)
		} else {
			if cred.AssignedProject == "" {
				// No project, no project-scoped records
				return []ListItem{}, nil
			}
			q = q.Where("project_name = ?", cred.AssignedProject)
		}
	}
	if filter.Today {
		q = q.Where("entry_time >= ?", startOfToday().UnixMilli())
	}

	var records []model.EntryRecord
	if err := q.Order("entry_time DESC").Find(&records).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]ListItem, 0, len(records))
	for _, rec := range records {
		onSite := rec.OnSite(now)
		items = append(items, ListItem{
			EntryRecord: rec,
			OnSiteText:  FormatDuration(onSite),
			Overtime:    onSite > OvertimeThreshold,
		})
	}
	return items, nil
}

// PurgeExpiredRecords deletes records whose entry time is older than the
// retention period, along with their photos.
func (s *EntryServer) PurgeExpiredRecords() {
	cutoff := time.Now().AddDate(0, -RetentionMonths, 0).UnixMilli()
	var expired []model.EntryRecord
	if err := s.db.Select("id", "photo").Where("entry_time < ?", cutoff).Find(&expired).Error; err != nil {
		s.log.Warnf("Retention query failed: %v", err)
		return
	}
	if len(expired) == 0 {
		return
	}
	for _, rec := range expired {
		if rec.Photo != "" {
			if err := s.storage.DeleteFile(rec.Photo); err != nil {
				s.log.Warnf("Failed to delete photo %v of expired record %v: %v", rec.Photo, rec.ID, err)
			}
		}
	}
	if err := s.db.Delete(&model.EntryRecord{}, "entry_time < ?", cutoff).Error; err != nil {
		s.log.Warnf("Retention delete failed: %v", err)
		return
	}
	s.log.Infof("Retention cleanup removed %v records", len(expired))
}

func (s *EntryServer) retentionSweeper() {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.PurgeExpiredRecords()
		case <-s.shutdown:
			close(s.sweepDone)
			return
		}
	}
}

// FormatDuration renders a duration as "Xh Ym". The hours component is kept
// even when zero, so downstream parsing sees one canonical form.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	return fmt.Sprintf("%vh %vm", hours, minutes)
}

func validateRecord(rec *model.EntryRecord) error {
	if rec.Name == "" {
		return www.BadRequestf("Name is required")
	}
	if len(rec.Name) > MaxNameLen {
		return www.BadRequestf("Name may not exceed %v characters", MaxNameLen)
	}
	if rec.ContactNumber == "" {
		return www.BadRequestf("Contact number is required")
	}
	if len(rec.ContactNumber) > MaxContactLen {
		return www.BadRequestf("Contact number may not exceed %v characters", MaxContactLen)
	}
	if !model.IsValidCategory(rec.Category) {
		return www.BadRequestf("Invalid category '%v'", rec.Category)
	}
	return nil
}

func startOfToday() time.Time {
	now := time.Now()
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
