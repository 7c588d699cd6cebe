package entry

import (
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/gatelog/gatelog/server/auth"
	"github.com/gatelog/gatelog/server/model"
	"github.com/gatelog/gatelog/server/storage"
	"github.com/stretchr/testify/require"
)

var adminCred = &auth.Credentials{IsAdmin: true}

func staffCred(name, project string) *auth.Credentials {
	return &auth.Credentials{
		StaffID:         1,
		FileID:          "t-" + name,
		DisplayName:     name,
		AssignedProject: project,
	}
}

func setup(t *testing.T) *EntryServer {
	t.Helper()
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	db, err := model.OpenDB(log, dbh.MakeSqliteConfig(filepath.Join(dir, "test.sqlite")))
	require.NoError(t, err)
	store, err := storage.NewStorageFS(log, filepath.Join(dir, "photos"))
	require.NoError(t, err)
	s := NewEntryServer(log, db, store)
	t.Cleanup(s.Close)
	return s
}

func visitorRequest(project string) *CreateRequest {
	return &CreateRequest{
		Category:      "visitors",
		Name:          "Ashraf Khan",
		ContactNumber: "0501234567",
		Purpose:       "Site inspection",
		ProjectName:   project,
	}
}

func requireHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	herr, ok := err.(www.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	require.Equal(t, code, herr.Code)
}

func TestCreateScoping(t *testing.T) {
	s := setup(t)

	// An admin files records under whatever project the client names
	rec, err := s.Create(adminCred, visitorRequest("Tower B"))
	require.NoError(t, err)
	require.Equal(t, "Tower B", rec.ProjectName)
	require.Equal(t, model.StatusInside, rec.Status)

	// A staff member's records land on their assigned project, no matter
	// what the client sent
	rec, err = s.Create(staffCred("Mohus", "Tower A"), visitorRequest("Tower B"))
	require.NoError(t, err)
	require.Equal(t, "Tower A", rec.ProjectName)
	require.Equal(t, "Mohus", rec.CreatedBy)

	// No assignment, no create
	_, err = s.Create(staffCred("Umair", ""), visitorRequest("Tower B"))
	requireHTTPError(t, err, http.StatusForbidden)

	// No principal, no create
	_, err = s.Create(nil, visitorRequest("Tower B"))
	requireHTTPError(t, err, http.StatusUnauthorized)
}

func TestCreateValidation(t *testing.T) {
	s := setup(t)

	req := visitorRequest("Tower A")
	req.Name = ""
	_, err := s.Create(adminCred, req)
	requireHTTPError(t, err, http.StatusBadRequest)

	req = visitorRequest("Tower A")
	req.ContactNumber = ""
	_, err = s.Create(adminCred, req)
	requireHTTPError(t, err, http.StatusBadRequest)

	req = visitorRequest("Tower A")
	req.Category = "astronauts"
	_, err = s.Create(adminCred, req)
	requireHTTPError(t, err, http.StatusBadRequest)

	// Length limits: one char over is rejected, at the limit is accepted
	req = visitorRequest("Tower A")
	req.Name = strings.Repeat("n", MaxNameLen+1)
	_, err = s.Create(adminCred, req)
	requireHTTPError(t, err, http.StatusBadRequest)
	req.Name = strings.Repeat("n", MaxNameLen)
	_, err = s.Create(adminCred, req)
	require.NoError(t, err)

	req = visitorRequest("Tower A")
	req.ContactNumber = strings.Repeat("5", MaxContactLen+1)
	_, err = s.Create(adminCred, req)
	requireHTTPError(t, err, http.StatusBadRequest)
	req.ContactNumber = strings.Repeat("5", MaxContactLen)
	_, err = s.Create(adminCred, req)
	require.NoError(t, err)
}

func TestCheckout(t *testing.T) {
	s := setup(t)

	entryTime := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	req := visitorRequest("Tower A")
	req.EntryTime = entryTime.UnixMilli()
	rec, err := s.Create(adminCred, req)
	require.NoError(t, err)

	// Checkout needs no principal
	out, err := s.Checkout(rec.ID, entryTime.Add(8*time.Hour+30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, model.StatusExited, out.Status)
	require.Equal(t, "8h 30m", out.DurationText)

	_, err = s.Checkout(rec.ID+999, time.Time{})
	requireHTTPError(t, err, http.StatusNotFound)

	// Exit before entry is rejected
	rec2, err := s.Create(adminCred, req)
	require.NoError(t, err)
	_, err = s.Checkout(rec2.ID, entryTime.Add(-time.Hour))
	requireHTTPError(t, err, http.StatusBadRequest)
}

func TestUpdateScoping(t *testing.T) {
	s := setup(t)
	rec, err := s.Create(adminCred, visitorRequest("Tower B"))
	require.NoError(t, err)

	newName := "Corrected Name"
	towerA := "Tower A"

	// Staff of another project may not edit the record
	_, err = s.Update(staffCred("Mohus", "Tower A"), rec.ID, &UpdateRequest{Name: &newName})
	requireHTTPError(t, err, http.StatusForbidden)

	// An anonymous edit that touches more than checkout fields is rejected
	_, err = s.Update(nil, rec.ID, &UpdateRequest{Name: &newName})
	requireHTTPError(t, err, http.StatusUnauthorized)

	// Unassigned staff cannot edit anything, including records that have no
	// project of their own
	projectless, err := s.Create(adminCred, visitorRequest(""))
	require.NoError(t, err)
	_, err = s.Update(staffCred("Umair", ""), projectless.ID, &UpdateRequest{Name: &newName})
	requireHTTPError(t, err, http.StatusForbidden)

	// Staff of the record's project may edit it, but cannot move it to
	// another project
	out, err := s.Update(staffCred("Umair", "Tower B"), rec.ID, &UpdateRequest{Name: &newName, ProjectName: &towerA})
	require.NoError(t, err)
	require.Equal(t, "Corrected Name", out.Name)
	require.Equal(t, "Tower B", out.ProjectName)

	// The admin can move it
	out, err = s.Update(adminCred, rec.ID, &UpdateRequest{ProjectName: &towerA})
	require.NoError(t, err)
	require.Equal(t, "Tower A", out.ProjectName)
}

func TestAnonymousCheckoutViaUpdate(t *testing.T) {
	s := setup(t)
	entryTime := time.Date(2025, 6, 2, 7, 15, 0, 0, time.UTC)
	req := visitorRequest("Tower A")
	req.EntryTime = entryTime.UnixMilli()
	rec, err := s.Create(adminCred, req)
	require.NoError(t, err)

	exitTime := entryTime.Add(45 * time.Minute).UnixMilli()
	out, err := s.Update(nil, rec.ID, &UpdateRequest{ExitTime: &exitTime})
	require.NoError(t, err)
	require.Equal(t, model.StatusExited, out.Status)
	require.Equal(t, "0h 45m", out.DurationText)
}

func TestIsCheckoutOnly(t *testing.T) {
	exitTime := time.Now().UnixMilli()
	exited := model.StatusExited
	name := "x"

	require.True(t, (&UpdateRequest{ExitTime: &exitTime}).IsCheckoutOnly())
	require.True(t, (&UpdateRequest{Status: &exited}).IsCheckoutOnly())
	require.True(t, (&UpdateRequest{ExitTime: &exitTime, Status: &exited}).IsCheckoutOnly())
	require.False(t, (&UpdateRequest{ExitTime: &exitTime, Name: &name}).IsCheckoutOnly())
	require.False(t, (&UpdateRequest{Name: &name}).IsCheckoutOnly())
	require.False(t, (&UpdateRequest{}).IsCheckoutOnly())
}

func TestListScoping(t *testing.T) {
	s := setup(t)

	mohus := staffCred("Mohus", "Tower A")
	umair := staffCred("Umair", "Tower B")
	_, err := s.Create(mohus, visitorRequest(""))
	require.NoError(t, err)
	_, err = s.Create(umair, visitorRequest(""))
	require.NoError(t, err)

	// Each staff member sees only their project's records
	items, err := s.List(mohus, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Tower A", items[0].ProjectName)

	items, err = s.List(umair, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Tower B", items[0].ProjectName)

	// The admin sees everything
	items, err = s.List(adminCred, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	// A staff member without an assignment sees no project records, but can
	// still see their own creations
	unassigned := staffCred("Mohus", "")
	items, err = s.List(unassigned, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 0)
	items, err = s.List(unassigned, ListFilter{Mine: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Mohus", items[0].CreatedBy)
}

func TestListTodayAndOvertime(t *testing.T) {
	s := setup(t)

	// Inside for 11 hours: overtime
	req := visitorRequest("Tower A")
	req.EntryTime = time.Now().Add(-11 * time.Hour).UnixMilli()
	_, err := s.Create(adminCred, req)
	require.NoError(t, err)

	// Inside for 1 hour: not overtime
	req = visitorRequest("Tower A")
	req.EntryTime = time.Now().Add(-time.Hour).UnixMilli()
	_, err = s.Create(adminCred, req)
	require.NoError(t, err)

	items, err := s.List(adminCred, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Newest first
	require.False(t, items[0].Overtime)
	require.True(t, items[1].Overtime)

	items, err = s.List(adminCred, ListFilter{Today: true})
	require.NoError(t, err)
	for _, item := range items {
		require.True(t, item.EntryTime.Get().After(time.Now().Add(-24*time.Hour)))
	}
}

func TestRetention(t *testing.T) {
	s := setup(t)

	old := visitorRequest("Tower A")
	old.EntryTime = time.Now().AddDate(0, -2, 0).UnixMilli()
	oldRec, err := s.Create(adminCred, old)
	require.NoError(t, err)

	fresh := visitorRequest("Tower A")
	freshRec, err := s.Create(adminCred, fresh)
	require.NoError(t, err)

	// Listing triggers the cleanup, so the expired record never shows up
	items, err := s.List(adminCred, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, freshRec.ID, items[0].ID)

	count := int64(0)
	require.NoError(t, s.db.Model(&model.EntryRecord{}).Where("id = ?", oldRec.ID).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0h 0m", FormatDuration(0))
	require.Equal(t, "0h 45m", FormatDuration(45*time.Minute))
	require.Equal(t, "8h 30m", FormatDuration(8*time.Hour+30*time.Minute))
	require.Equal(t, "26h 5m", FormatDuration(26*time.Hour+5*time.Minute))
	require.Equal(t, "0h 0m", FormatDuration(-time.Minute))
}
