package auth

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/gatelog/gatelog/pkg/pwdhash"
	"github.com/gatelog/gatelog/pkg/rando"
	"github.com/gatelog/gatelog/server/model"
	"gorm.io/gorm"
)

// SYNC-GATELOG-SESSION-COOKIE
const SessionCookie = "gatelog_session"

// Session lifetimes. An admin session covers a working day; a staff session
// covers one shift. There is no refresh: expiry means logging in again.
const (
	AdminSessionTTL = 24 * time.Hour
	StaffSessionTTL = 8 * time.Hour
)

// FailedLoginDelay is an artificial pause before responding to a failed
// login, independent of rate-limit state. Tests set this to zero.
var FailedLoginDelay = time.Second

// Credentials is the resolved principal of a request.
type Credentials struct {
	IsAdmin         bool
	StaffID         int64
	FileID          string
	DisplayName     string
	AssignedProject string // empty when the staff member has no active project
	SessionKey      string // hashed key of the session that authenticated this request
}

func (c *Credentials) PanicIfNotAdmin() {
	if !c.IsAdmin {
		www.PanicForbidden()
	}
}

type AuthServer struct {
	db      *gorm.DB
	log     logs.Log
	limiter *Limiter

	// pwdhash.HashPasswordBase64 of the admin site password.
	// Empty means admin login is not configured, and returns a 500.
	adminPasswordHash string
}

func NewAuthServer(db *gorm.DB, log logs.Log, adminPasswordHash string) *AuthServer {
	return &AuthServer{
		db:                db,
		log:               log,
		limiter:           NewLimiter(NewDBAttemptStore(db)),
		adminPasswordHash: adminPasswordHash,
	}
}

// requestToken extracts the session token from the cookie, the
// X-Session-Token header, or a Bearer Authorization header. The header
// transports exist for clients that cannot rely on cookies.
func requestToken(r *http.Request) string {
	if cookie, _ := r.Cookie(SessionCookie); cookie != nil {
		return cookie.Value
	}
	if t := r.Header.Get("X-Session-Token"); t != "" {
		return t
	}
	if a := r.Header.Get("Authorization"); strings.HasPrefix(a, "Bearer ") {
		return a[len("Bearer "):]
	}
	return ""
}

// ResolveRequest returns the request's principal, or nil.
// A missing, malformed, revoked, or expired token is a normal
// unauthenticated outcome, never an error.
func (a *AuthServer) ResolveRequest(r *http.Request) *Credentials {
	token := requestToken(r)
	if token == "" {
		return nil
	}
	return a.ResolveToken(token)
}

func (a *AuthServer) ResolveToken(token string) *Credentials {
	key := pwdhash.HashSessionTokenBase64(token)
	session := model.AuthSession{}
	a.db.Where("key = ?", key).Find(&session)
	if session.Key == "" {
		return nil
	}
	if !session.ExpiresAt.Get().After(time.Now()) {
		// Lazy cleanup: delete the expired row on lookup
		a.db.Delete(&model.AuthSession{}, "key = ?", key)
		return nil
	}
	switch session.Kind {
	case model.SessionKindAdmin:
		return &Credentials{IsAdmin: true, SessionKey: key}
	case model.SessionKindStaff:
		staff := model.Staff{}
		a.db.Find(&staff, session.StaffID)
		if staff.ID == 0 {
			return nil
		}
		assignment := model.ProjectAssignment{}
		a.db.Where("staff_id = ?", staff.ID).Find(&assignment)
		return &Credentials{
			StaffID:         staff.ID,
			FileID:          staff.FileID,
			DisplayName:     staff.Name,
			AssignedProject: assignment.ProjectName,
			SessionKey:      key,
		}
	}
	return nil
}

// AuthenticateRequest resolves the principal, or sends a 401 and returns nil.
func (a *AuthServer) AuthenticateRequest(w http.ResponseWriter, r *http.Request) *Credentials {
	cred := a.ResolveRequest(r)
	if cred == nil {
		www.SendError(w, "Unauthorized", http.StatusUnauthorized)
	}
	return cred
}

type adminLoginJSON struct {
	Password string `json:"password"`
}

type adminLoginResponseJSON struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

func (a *AuthServer) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	req := adminLoginJSON{}
	www.ReadJSON(w, r, &req, 8*1024)

	identities := []string{"ip:" + clientIP(r), "acct:admin"}
	a.panicIfLimited(identities)

	if a.adminPasswordHash == "" {
		a.log.Errorf("Admin login attempted, but no admin password is configured")
		www.PanicServerError("Admin password is not configured")
	}
	if !pwdhash.VerifyHashBase64(req.Password, a.adminPasswordHash) {
		a.failLogin(identities)
	}
	a.clearAttempts(identities)

	token := a.createSession(w, model.SessionKindAdmin, 0, AdminSessionTTL)
	a.log.Infof("Admin logged in from %v", clientIP(r))
	www.SendJSON(w, &adminLoginResponseJSON{Success: true, Token: token})
}

type staffLoginJSON struct {
	FileID   string `json:"fileId"`
	Password string `json:"password"`
}

type staffLoginResponseJSON struct {
	Success      bool          `json:"success"`
	Staff        staffInfoJSON `json:"staff"`
	SessionToken string        `json:"sessionToken"`
}

type staffInfoJSON struct {
	FileID          string `json:"fileId"`
	Name            string `json:"name"`
	AssignedProject string `json:"assignedProject"`
}

func (a *AuthServer) LoginStaff(w http.ResponseWriter, r *http.Request) {
	req := staffLoginJSON{}
	www.ReadJSON(w, r, &req, 8*1024)
	fileID := model.NormalizeFileID(req.FileID)

	identities := []string{"ip:" + clientIP(r), "acct:" + fileID}
	a.panicIfLimited(identities)

	staff := model.Staff{}
	a.db.Where("file_id = ?", fileID).Find(&staff)
	// The response must not reveal whether the file ID or the password was
	// wrong, so both paths funnel into the same failure.
	if !verifyStaffPassword(&staff, req.Password) {
		a.failLogin(identities)
	}
	a.clearAttempts(identities)

	assignment := model.ProjectAssignment{}
	a.db.Where("staff_id = ?", staff.ID).Find(&assignment)

	token := a.createSession(w, model.SessionKindStaff, staff.ID, StaffSessionTTL)
	a.log.Infof("Staff %v (%v) logged in from %v", staff.FileID, staff.Name, clientIP(r))
	www.SendJSON(w, &staffLoginResponseJSON{
		Success: true,
		Staff: staffInfoJSON{
			FileID:          staff.FileID,
			Name:            staff.Name,
			AssignedProject: assignment.ProjectName,
		},
		SessionToken: token,
	})
}

// decoyHash absorbs the scrypt cost when the file ID does not exist, so an
// unknown account takes as long to reject as a wrong password.
var decoyHash = pwdhash.HashPasswordBase64("gatelog-decoy")

// verifyStaffPassword checks the password against the staff row. A missing
// row (zero ID) or a row without a password still runs a full scrypt
// derivation, and always fails.
func verifyStaffPassword(staff *model.Staff, password string) bool {
	if staff.ID == 0 || staff.Password == "" {
		pwdhash.VerifyHashBase64(password, decoyHash)
		return false
	}
	return pwdhash.VerifyHashBase64(password, staff.Password)
}

// Logout revokes the presented session. Revoking an absent or already
// revoked token is not an error.
func (a *AuthServer) Logout(w http.ResponseWriter, r *http.Request) {
	if token := requestToken(r); token != "" {
		a.db.Delete(&model.AuthSession{}, "key = ?", pwdhash.HashSessionTokenBase64(token))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	www.SendJSON(w, map[string]bool{"success": true})
}

func (a *AuthServer) Check(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Authenticated bool `json:"authenticated"`
	}
	www.SendJSON(w, &response{Authenticated: a.ResolveRequest(r) != nil})
}

// createSession issues a token (256 bits, lowercase hex), stores its hash,
// and transmits it both as a cookie and as the return value, so that the
// caller can include it in the response payload.
func (a *AuthServer) createSession(w http.ResponseWriter, kind string, staffID int64, ttl time.Duration) string {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	token := rando.StrongRandomHex(32)
	session := model.AuthSession{
		Key:       pwdhash.HashSessionTokenBase64(token),
		Kind:      kind,
		StaffID:   staffID,
		CreatedAt: dbh.MakeIntTime(now),
		ExpiresAt: dbh.MakeIntTime(expiresAt),
	}
	www.Check(a.db.Create(&session).Error)
	a.PurgeExpiredSessions()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

func (a *AuthServer) PurgeExpiredSessions() {
	if err := a.db.Exec("DELETE FROM auth_session WHERE expires_at < ?", time.Now().UnixMilli()).Error; err != nil {
		a.log.Warnf("PurgeExpiredSessions failed: %v", err)
	}
}

// EraseStaffSessions revokes every session of one staff member
// (eg after a password change).
func (a *AuthServer) EraseStaffSessions(staffID int64) error {
	return a.db.Delete(&model.AuthSession{}, "kind = ? AND staff_id = ?", model.SessionKindStaff, staffID).Error
}

func (a *AuthServer) panicIfLimited(identities []string) {
	for _, id := range identities {
		limited, err := a.limiter.IsLimited(id)
		www.Check(err)
		if limited {
			www.Panic(http.StatusTooManyRequests, "Too many login attempts. Try again in a few minutes.")
		}
	}
}

// failLogin records the failure, pauses, and sends a generic 401.
// It does not return.
func (a *AuthServer) failLogin(identities []string) {
	for _, id := range identities {
		if err := a.limiter.RecordAttempt(id, false); err != nil {
			a.log.Warnf("Failed to record login attempt for %v: %v", id, err)
		}
	}
	time.Sleep(FailedLoginDelay)
	www.Panic(http.StatusUnauthorized, "Invalid credentials")
}

func (a *AuthServer) clearAttempts(identities []string) {
	for _, id := range identities {
		if err := a.limiter.RecordAttempt(id, true); err != nil {
			a.log.Warnf("Failed to clear login attempts for %v: %v", id, err)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
