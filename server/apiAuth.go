package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpAuthAdminLogin(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.auth.LoginAdmin(w, r)
}

func (s *Server) httpAuthStaffLogin(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.auth.LoginStaff(w, r)
}

func (s *Server) httpAuthLogout(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.auth.Logout(w, r)
}

func (s *Server) httpAuthCheck(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.auth.Check(w, r)
}
