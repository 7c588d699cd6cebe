package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/gatelog/gatelog/pkg/pwdhash"
	"github.com/gatelog/gatelog/pkg/rando"
	"github.com/gatelog/gatelog/server/model"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

const testAdminPassword = "tower-admin-pw"

func setup(t *testing.T) (*AuthServer, *httprouter.Router) {
	t.Helper()
	FailedLoginDelay = 0
	log := logs.NewTestingLog(t)
	db, err := model.OpenDB(log, dbh.MakeSqliteConfig(filepath.Join(t.TempDir(), "test.sqlite")))
	require.NoError(t, err)
	a := NewAuthServer(db, log, pwdhash.HashPasswordBase64(testAdminPassword))
	router := httprouter.New()
	www.Handle(log, router, "POST", "/api/auth/admin/login", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) { a.LoginAdmin(w, r) })
	www.Handle(log, router, "POST", "/api/auth/staff/login", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) { a.LoginStaff(w, r) })
	www.Handle(log, router, "POST", "/api/auth/logout", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) { a.Logout(w, r) })
	return a, router
}

func postJSON(router *httprouter.Router, path string, body any, token string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	r := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	r.RemoteAddr = "10.1.1.1:50000"
	if token != "" {
		r.Header.Set("X-Session-Token", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestAdminLogin(t *testing.T) {
	a, router := setup(t)

	resp := postJSON(router, "/api/auth/admin/login", adminLoginJSON{Password: "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = postJSON(router, "/api/auth/admin/login", adminLoginJSON{Password: testAdminPassword}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	login := adminLoginResponseJSON{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &login))
	require.True(t, login.Success)
	// 256 bits, lowercase hex
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), login.Token)

	// The cookie carries the same token as the payload
	cookieValue := ""
	for _, c := range resp.Result().Cookies() {
		if c.Name == SessionCookie {
			cookieValue = c.Value
		}
	}
	require.Equal(t, login.Token, cookieValue)

	cred := a.ResolveToken(login.Token)
	require.NotNil(t, cred)
	require.True(t, cred.IsAdmin)

	// Logout revokes the session, and is idempotent
	resp = postJSON(router, "/api/auth/logout", nil, login.Token)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Nil(t, a.ResolveToken(login.Token))
	resp = postJSON(router, "/api/auth/logout", nil, login.Token)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminLoginUnconfigured(t *testing.T) {
	a, _ := setup(t)
	a.adminPasswordHash = ""
	log := logs.NewTestingLog(t)
	router := httprouter.New()
	www.Handle(log, router, "POST", "/api/auth/admin/login", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) { a.LoginAdmin(w, r) })

	// Without a configured hash, even the empty password is a server error,
	// not a 401, so the operator knows to fix the config
	resp := postJSON(router, "/api/auth/admin/login", adminLoginJSON{Password: ""}, "")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	resp = postJSON(router, "/api/auth/admin/login", adminLoginJSON{Password: "anything"}, "")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestVerifyStaffPassword(t *testing.T) {
	staff := model.Staff{
		BaseModel: model.BaseModel{ID: 7},
		Password:  pwdhash.HashPasswordBase64("gatepass-77"),
	}
	require.True(t, verifyStaffPassword(&staff, "gatepass-77"))
	require.False(t, verifyStaffPassword(&staff, "wrong"))

	// A missing row or one without a password always fails, even when the
	// supplied password matches the decoy hash it is burned against
	require.False(t, verifyStaffPassword(&model.Staff{}, "gatepass-77"))
	require.False(t, verifyStaffPassword(&model.Staff{}, "gatelog-decoy"))
	noPassword := model.Staff{BaseModel: model.BaseModel{ID: 8}}
	require.False(t, verifyStaffPassword(&noPassword, "anything"))
}

func TestStaffLogin(t *testing.T) {
	a, router := setup(t)
	staff, err := a.CreateStaff("M100", "Mohus", "gatepass-77")
	require.NoError(t, err)
	require.Equal(t, "m100", staff.FileID)

	// Unknown file ID and wrong password must be indistinguishable
	respUnknown := postJSON(router, "/api/auth/staff/login", staffLoginJSON{FileID: "nobody", Password: "gatepass-77"}, "")
	respWrong := postJSON(router, "/api/auth/staff/login", staffLoginJSON{FileID: "m100", Password: "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, respUnknown.Code)
	require.Equal(t, http.StatusUnauthorized, respWrong.Code)
	require.Equal(t, respUnknown.Body.String(), respWrong.Body.String())

	// File ID matching is case-insensitive
	resp := postJSON(router, "/api/auth/staff/login", staffLoginJSON{FileID: "M100", Password: "gatepass-77"}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	login := staffLoginResponseJSON{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &login))
	require.True(t, login.Success)
	require.Equal(t, "m100", login.Staff.FileID)
	require.Equal(t, "Mohus", login.Staff.Name)
	require.Equal(t, "", login.Staff.AssignedProject)

	cred := a.ResolveToken(login.SessionToken)
	require.NotNil(t, cred)
	require.False(t, cred.IsAdmin)
	require.Equal(t, staff.ID, cred.StaffID)
	require.Equal(t, "", cred.AssignedProject)

	// An assignment shows up on the next resolve, without a new login
	require.NoError(t, a.AssignProject(staff.ID, "Tower A"))
	cred = a.ResolveToken(login.SessionToken)
	require.NotNil(t, cred)
	require.Equal(t, "Tower A", cred.AssignedProject)
}

func TestSessionExpiry(t *testing.T) {
	a, _ := setup(t)
	token := rando.StrongRandomHex(32)
	session := model.AuthSession{
		Key:       pwdhash.HashSessionTokenBase64(token),
		Kind:      model.SessionKindAdmin,
		CreatedAt: dbh.MakeIntTime(time.Now().Add(-25 * time.Hour)),
		ExpiresAt: dbh.MakeIntTime(time.Now().Add(-time.Hour)),
	}
	require.NoError(t, a.db.Create(&session).Error)

	require.Nil(t, a.ResolveToken(token))

	// The expired row is deleted on lookup
	count := int64(0)
	require.NoError(t, a.db.Model(&model.AuthSession{}).Where("key = ?", session.Key).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestLoginLockout(t *testing.T) {
	a, router := setup(t)
	_, err := a.CreateStaff("m200", "Umair", "gatepass-88")
	require.NoError(t, err)

	for i := 0; i < MaxAttempts; i++ {
		resp := postJSON(router, "/api/auth/staff/login", staffLoginJSON{FileID: "m200", Password: "wrong"}, "")
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	}

	// Locked out now, even with the correct password
	resp := postJSON(router, "/api/auth/staff/login", staffLoginJSON{FileID: "m200", Password: "gatepass-88"}, "")
	require.Equal(t, http.StatusTooManyRequests, resp.Code)

	// The lockout state survives an AuthServer restart, because it lives in
	// the database
	a2 := NewAuthServer(a.db, a.log, a.adminPasswordHash)
	limited, err := a2.limiter.IsLimited("acct:m200")
	require.NoError(t, err)
	require.True(t, limited)
}

func TestPasswordChangeRevokesSessions(t *testing.T) {
	a, router := setup(t)
	staff, err := a.CreateStaff("m300", "Fatima", "gatepass-99")
	require.NoError(t, err)

	resp := postJSON(router, "/api/auth/staff/login", staffLoginJSON{FileID: "m300", Password: "gatepass-99"}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	login := staffLoginResponseJSON{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &login))
	require.NotNil(t, a.ResolveToken(login.SessionToken))

	require.NoError(t, a.SetStaffPassword(staff.ID, "different-99"))
	require.Nil(t, a.ResolveToken(login.SessionToken))

	resp = postJSON(router, "/api/auth/staff/login", staffLoginJSON{FileID: "m300", Password: "different-99"}, "")
	require.Equal(t, http.StatusOK, resp.Code)
}
