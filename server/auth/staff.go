package auth

import (
	"errors"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/gatelog/gatelog/pkg/pwdhash"
	"github.com/gatelog/gatelog/server/model"
)

func (a *AuthServer) CreateStaff(fileID, name, password string) (*model.Staff, error) {
	fileID = model.NormalizeFileID(fileID)
	if fileID == "" {
		return nil, errors.New("file ID cannot be empty")
	}
	if name == "" {
		return nil, errors.New("name cannot be empty")
	}
	if err := IsPasswordOK(password); err != nil {
		return nil, err
	}
	existing := model.Staff{}
	a.db.Where("file_id = ?", fileID).Find(&existing)
	if existing.ID != 0 {
		return nil, errors.New("a staff member with this file ID already exists")
	}
	staff := model.Staff{
		FileID:    fileID,
		Name:      name,
		Password:  pwdhash.HashPasswordBase64(password),
		CreatedAt: dbh.MakeIntTime(time.Now().UTC()),
	}
	if err := a.db.Create(&staff).Error; err != nil {
		return nil, err
	}
	return &staff, nil
}

func (a *AuthServer) SetStaffPassword(staffID int64, password string) error {
	if err := IsPasswordOK(password); err != nil {
		return err
	}
	res := a.db.Model(&model.Staff{}).Where("id = ?", staffID).Update("password", pwdhash.HashPasswordBase64(password))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("staff member not found")
	}
	// A password change revokes every existing session of this staff member
	return a.EraseStaffSessions(staffID)
}

// AssignProject sets the staff member's one active project, replacing any
// previous assignment. An empty project name clears the assignment.
func (a *AuthServer) AssignProject(staffID int64, projectName string) error {
	staff := model.Staff{}
	a.db.Find(&staff, staffID)
	if staff.ID == 0 {
		return errors.New("staff member not found")
	}
	if projectName == "" {
		return a.db.Delete(&model.ProjectAssignment{}, "staff_id = ?", staffID).Error
	}
	res := a.db.Model(&model.ProjectAssignment{}).Where("staff_id = ?", staffID).
		Updates(map[string]any{
			"project_name": projectName,
			"assigned_at":  time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		assignment := model.ProjectAssignment{
			StaffID:     staffID,
			ProjectName: projectName,
			AssignedAt:  dbh.MakeIntTime(time.Now().UTC()),
		}
		return a.db.Create(&assignment).Error
	}
	return nil
}

func (a *AuthServer) AllStaff() ([]model.Staff, error) {
	var staff []model.Staff
	return staff, a.db.Order("file_id").Find(&staff).Error
}

func (a *AuthServer) StaffAssignment(staffID int64) (string, error) {
	assignment := model.ProjectAssignment{}
	if err := a.db.Where("staff_id = ?", staffID).Find(&assignment).Error; err != nil {
		return "", err
	}
	return assignment.ProjectName, nil
}
