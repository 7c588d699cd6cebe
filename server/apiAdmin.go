package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/www"
	"github.com/gatelog/gatelog/server/auth"
	"github.com/gatelog/gatelog/server/model"
	"github.com/julienschmidt/httprouter"
)

type createStaffJSON struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Project  string `json:"project"`
}

type staffJSON struct {
	ID              int64  `json:"id"`
	FileID          string `json:"fileId"`
	Name            string `json:"name"`
	AssignedProject string `json:"assignedProject,omitempty"`
}

func (s *Server) httpAdminCreateStaff(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	body := createStaffJSON{}
	www.ReadJSON(w, r, &body, 1024*1024)
	if body.Name == "" && s.hr != nil {
		// Prefill the display name from the HR directory
		if emp, err := s.hr.LookupEmployee(r.Context(), body.FileID); err == nil {
			body.Name = emp.Name
		} else {
			s.Log.Warnf("HR lookup of %v failed: %v", body.FileID, err)
		}
	}
	staff, err := s.auth.CreateStaff(body.FileID, body.Name, body.Password)
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	if body.Project != "" {
		s.validateProject(body.Project)
		www.Check(s.auth.AssignProject(staff.ID, body.Project))
	}
	www.SendJSON(w, staffJSON{
		ID:              staff.ID,
		FileID:          staff.FileID,
		Name:            staff.Name,
		AssignedProject: body.Project,
	})
}

func (s *Server) httpAdminListStaff(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	staff, err := s.auth.AllStaff()
	www.Check(err)
	var assignments []model.ProjectAssignment
	www.Check(s.DB.Find(&assignments).Error)
	projectOf := map[int64]string{}
	for _, a := range assignments {
		projectOf[a.StaffID] = a.ProjectName
	}
	out := make([]staffJSON, 0, len(staff))
	for _, st := range staff {
		out = append(out, staffJSON{
			ID:              st.ID,
			FileID:          st.FileID,
			Name:            st.Name,
			AssignedProject: projectOf[st.ID],
		})
	}
	www.SendJSON(w, out)
}

func (s *Server) httpAdminSetStaffPassword(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	staffID := www.ParseID(params.ByName("id"))
	body := struct {
		Password string `json:"password"`
	}{}
	www.ReadJSON(w, r, &body, 1024*1024)
	if err := s.auth.SetStaffPassword(staffID, body.Password); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.SendOK(w)
}

func (s *Server) httpAdminAssignProject(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	staffID := www.ParseID(params.ByName("id"))
	body := struct {
		Project string `json:"project"`
	}{}
	www.ReadJSON(w, r, &body, 1024*1024)
	if body.Project != "" {
		s.validateProject(body.Project)
	}
	if err := s.auth.AssignProject(staffID, body.Project); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.SendOK(w)
}

func (s *Server) httpAdminCreateProject(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	body := struct {
		Name string `json:"name"`
	}{}
	www.ReadJSON(w, r, &body, 1024*1024)
	if body.Name == "" {
		www.PanicBadRequestf("Project name cannot be empty")
	}
	existing := model.Project{}
	s.DB.Where("name = ?", body.Name).Find(&existing)
	if existing.ID != 0 {
		www.PanicBadRequestf("A project named '%v' already exists", body.Name)
	}
	project := model.Project{
		Name:      body.Name,
		CreatedAt: dbh.MakeIntTime(time.Now().UTC()),
	}
	www.Check(s.DB.Create(&project).Error)
	www.SendJSON(w, &project)
}

func (s *Server) httpAdminListProjects(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	var projects []model.Project
	www.Check(s.DB.Order("name").Find(&projects).Error)
	www.SendJSON(w, projects)
}

func (s *Server) httpAdminHRLookup(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	if s.hr == nil {
		www.PanicBadRequestf("HR lookup is not configured")
	}
	fileID := www.RequiredQueryValue(r, "fileId")
	emp, err := s.hr.LookupEmployee(r.Context(), fileID)
	www.Check(err)
	www.SendJSON(w, emp)
}

// validateProject panics with a 400 if the named project does not exist
func (s *Server) validateProject(name string) {
	project := model.Project{}
	s.DB.Where("name = ?", name).Find(&project)
	if project.ID == 0 {
		www.PanicBadRequestf("Project '%v' does not exist", name)
	}
}
