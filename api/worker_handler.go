package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/worker"
)

const noResults = "No results found for given criteria"

func (a *API) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := a.eng.Workers().ListWorkers(r.Context(), worker.ListOpts{Name: r.URL.Query().Get("name")})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if len(workers) == 0 {
		writeMessage(w, http.StatusNotFound, noResults)
		return
	}
	out := make(map[string]*worker.Worker, len(workers))
	for _, wk := range workers {
		out[wk.ID.String()] = wk
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getWorker(w http.ResponseWriter, r *http.Request) {
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "workerId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid worker id: %v", err))
		return
	}
	wk, err := a.eng.Workers().GetWorker(r.Context(), workerID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wk)
}

type createWorkerRequest struct {
	Name string `json:"name"`
}

type createWorkerResponse struct {
	Message  string `json:"message"`
	WorkerID string `json:"workerId"`
}

func (a *API) createWorker(w http.ResponseWriter, r *http.Request) {
	var req createWorkerRequest
	if err := decodeBody(r, &req); err != nil {
		a.mapError(w, r, err)
		return
	}
	wk, err := a.eng.RegisterWorker(r.Context(), req.Name)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createWorkerResponse{Message: "OK", WorkerID: wk.ID.String()})
}
