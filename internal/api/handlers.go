package api

import (
	"net/http"

	"credit-scorer/internal/features"
)

func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Credit scoring prediction API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Info())
}

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]int64{"client_ids": s.svc.ClientIDs()})
}

func (s *Server) handleAllData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.AllData())
}

func (s *Server) handleCohortMean(w http.ResponseWriter, r *http.Request) {
	stat, err := s.svc.CohortMean()
	if err != nil {
		s.writeServiceError(w, r, 0, err)
		return
	}
	writeJSON(w, http.StatusOK, stat.Mean)
}

func (s *Server) predict(id int64) (any, error) {
	return s.svc.Score(id)
}

func (s *Server) clientData(id int64) (any, error) {
	return vectorResult(s.svc.ClientData(id))
}

func (s *Server) explain(id int64) (any, error) {
	return vectorResult(s.svc.ExplainTop(id))
}

func (s *Server) explainFull(id int64) (any, error) {
	return vectorResult(s.svc.ExplainFull(id))
}

func (s *Server) compare(id int64) (any, error) {
	return vectorResult(s.svc.CompareCohort(id))
}

func (s *Server) classProfile(id int64) (any, error) {
	return s.svc.ClassProfile(id)
}

func vectorResult(v features.Vector, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}
