package entry

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/gatelog/gatelog/server/auth"
	"github.com/gatelog/gatelog/server/model"
	"github.com/gatelog/gatelog/server/storage"
	"github.com/julienschmidt/httprouter"
)

func (s *EntryServer) HttpListEntries(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	filter := ListFilter{
		Mine:  www.QueryValue(r, "filter") == "my-records",
		Today: www.QueryValue(r, "date") == "today",
	}
	items, err := s.List(cred, filter)
	www.Check(err)
	www.SendJSON(w, items)
}

func (s *EntryServer) HttpCreateEntry(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	req := CreateRequest{}
	www.ReadJSON(w, r, &req, MaxPayloadBytes)
	rec, err := s.Create(cred, &req)
	www.Check(err)
	www.SendJSON(w, rec)
}

// HttpUpdateEntry handles both edits and checkouts. cred is nil when the
// request carries no valid session; that is only acceptable for a pure
// checkout, and Update enforces it.
func (s *EntryServer) HttpUpdateEntry(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	id := www.ParseID(params.ByName("id"))
	if id == 0 {
		www.PanicBadRequestf("Invalid record ID")
	}
	req := UpdateRequest{}
	www.ReadJSON(w, r, &req, MaxPayloadBytes)
	rec, err := s.Update(cred, id, &req)
	www.Check(err)
	www.SendJSON(w, rec)
}

func (s *EntryServer) HttpGetPhoto(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	id := www.ParseID(params.ByName("id"))
	rec := model.EntryRecord{}
	www.Check(s.db.Find(&rec, id).Error)
	if rec.ID == 0 || rec.Photo == "" {
		www.PanicNotFound()
	}
	if !cred.IsAdmin && rec.ProjectName != cred.AssignedProject && rec.CreatedBy != cred.DisplayName {
		www.PanicForbidden()
	}
	photo, err := storage.ReadFile(s.storage, rec.Photo)
	www.Check(err)
	w.Header().Set("Content-Type", http.DetectContentType(photo))
	w.Write(photo)
}

// HttpExportCSV sends every visible record as a CSV download. Admin only.
func (s *EntryServer) HttpExportCSV(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
	cred.PanicIfNotAdmin()
	items, err := s.List(cred, ListFilter{})
	www.Check(err)

	buf := bytes.Buffer{}
	cw := csv.NewWriter(&buf)
	cw.Write([]string{"id", "category", "name", "company", "contactNumber", "email", "vehicleNumber",
		"numberOfPersons", "purpose", "host", "projectName", "entryTime", "exitTime", "duration", "status", "createdBy"})
	for _, item := range items {
		exitTime := ""
		if !item.ExitTime.IsZero() {
			exitTime = item.ExitTime.Get().UTC().Format(time.RFC3339)
		}
		cw.Write([]string{
			fmt.Sprintf("%v", item.ID),
			item.Category,
			item.Name,
			item.Company,
			item.ContactNumber,
			item.Email,
			item.VehicleNumber,
			fmt.Sprintf("%v", item.NumberOfPersons),
			item.Purpose,
			item.Host,
			item.ProjectName,
			item.EntryTime.Get().UTC().Format(time.RFC3339),
			exitTime,
			item.DurationText,
			item.Status,
			item.CreatedBy,
		})
	}
	cw.Flush()
	www.Check(cw.Error())

	filename := "entry-records-" + time.Now().UTC().Format("2006-01-02") + ".csv"
	www.SendFileDownload(w, filename, "text/csv", buf.Bytes())
}
