package server

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/gatelog/gatelog/server/auth"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

//go:embed www
var staticWWW embed.FS

type authenticatedHandler func(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials)

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	// protected creates an HTTP handler that is accessible only with authentication
	protected := func(method, route string, handle authenticatedHandler) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			cred := s.auth.AuthenticateRequest(w, r)
			if cred == nil {
				return
			}
			handle(w, r, params, cred)
		})
	}

	// protectedAdmin is protected, and additionally requires the admin role
	protectedAdmin := func(method, route string, handle authenticatedHandler) {
		protected(method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *auth.Credentials) {
			cred.PanicIfNotAdmin()
			handle(w, r, params, cred)
		})
	}

	// optional resolves credentials if a session is presented, but does not
	// require one. The handler receives nil credentials for anonymous requests,
	// and decides for itself which operations those may perform.
	optional := func(method, route string, handle authenticatedHandler) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			handle(w, r, params, s.auth.ResolveRequest(r))
		})
	}

	// unprotected creates an HTTP handler that is accessible without authentication
	unprotected := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// IP-based throttle on the login routes, in front of the per-account
	// limiter inside AuthServer.
	limited := httprate.Limit(20, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	rateLimited := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	unprotected("GET", "/api/ping", s.httpPing)

	rateLimited("POST", "/api/auth/admin/login", s.httpAuthAdminLogin)
	rateLimited("POST", "/api/auth/staff/login", s.httpAuthStaffLogin)
	unprotected("GET", "/api/auth/check", s.httpAuthCheck)
	unprotected("POST", "/api/auth/logout", s.httpAuthLogout)

	protected("GET", "/api/entries", s.entries.HttpListEntries)
	protected("POST", "/api/entries", s.entries.HttpCreateEntry)
	// Checkout from the gate terminal must work without a session, so this
	// route resolves credentials but does not demand them.
	optional("PUT", "/api/entries/:id", s.entries.HttpUpdateEntry)
	protected("GET", "/api/entries/:id/photo", s.entries.HttpGetPhoto)
	protectedAdmin("GET", "/api/entries/export", s.entries.HttpExportCSV)

	protectedAdmin("POST", "/api/staff", s.httpAdminCreateStaff)
	protectedAdmin("GET", "/api/staff", s.httpAdminListStaff)
	protectedAdmin("POST", "/api/staff/:id/password", s.httpAdminSetStaffPassword)
	protectedAdmin("POST", "/api/staff/:id/project", s.httpAdminAssignProject)
	protectedAdmin("POST", "/api/projects", s.httpAdminCreateProject)
	protectedAdmin("GET", "/api/projects", s.httpAdminListProjects)
	protectedAdmin("GET", "/api/hr/lookup", s.httpAdminHRLookup)

	isImmutable := true
	var fsys fs.FS
	fsysRoot := "www"
	fsys = staticWWW
	if s.HotReloadWWW {
		relRoot := "server/www"
		absRoot, err := filepath.Abs(relRoot)
		if err != nil {
			s.Log.Errorf("Failed to resolve static file directory %v: %v", relRoot, err)
			return errors.New("Failed to resolve static file directory for hot reload")
		}
		s.Log.Infof("Serving static files from %v, with hot reload", absRoot)
		fsys = os.DirFS(absRoot)
		fsysRoot = ""
		isImmutable = false
	}

	static, err := staticfiles.NewCachedStaticFileServer(fsys, fsysRoot, []string{"/api/"}, s.Log, isImmutable, nil)
	if err != nil {
		s.Log.Warnf("Error in static files: %v. Run 'npm run build' in 'www' to build static files.", err)
	}
	router.NotFound = static

	s.httpRouter = router
	return nil
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"time": time.Now().Unix(),
	})
}
