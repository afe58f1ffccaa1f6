package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/DiOS-Analysis/Backend/engine"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// Claim response headers.
const (
	HeaderClaimOutcome  = "X-Claim-Outcome"
	HeaderClaimAttempts = "X-Claim-Attempts"
)

// claimJob hands the worker/device pair from the path a job.
func (a *API) claimJob(w http.ResponseWriter, r *http.Request) {
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "workerId"))
	if err != nil {
		a.metrics.claims.WithLabelValues("bad_request").Inc()
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid worker id: %v", err))
		return
	}
	udid := chi.URLParam(r, "udid")

	claim, err := a.eng.ClaimJob(r.Context(), workerID, udid)
	if err != nil {
		a.metrics.claims.WithLabelValues("error").Inc()
		a.mapError(w, r, err)
		return
	}
	a.metrics.claims.WithLabelValues(claim.Outcome.String()).Inc()

	w.Header().Set(HeaderClaimOutcome, claim.Outcome.String())
	w.Header().Set(HeaderClaimAttempts, strconv.Itoa(claim.Attempts))
	if claim.Outcome == engine.OutcomeNoJobAvailable {
		// 204 carries no body.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, claim.Job)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid job id: %v", err))
		return
	}
	j, err := a.eng.Jobs().GetJob(r.Context(), jobID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// listJobs returns jobs keyed by ID. Every state is included unless the
// query sets it to false, e.g. ?finished=false&failed=false.
func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := job.ListOpts{}
	for _, st := range job.States() {
		if v := q.Get(st.String()); v != "" {
			include, err := strconv.ParseBool(v)
			if err != nil {
				writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid %s filter: %q", st, v))
				return
			}
			if !include {
				continue
			}
		}
		opts.States = append(opts.States, st)
	}
	if len(opts.States) == 0 {
		writeMessage(w, http.StatusNotFound, "No jobs found for given criteria")
		return
	}
	if v := q.Get("type"); v != "" {
		t, err := job.ParseType(v)
		if err != nil {
			a.mapError(w, r, err)
			return
		}
		opts.Type = t
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid offset")
		return
	}

	jobs, err := a.eng.Jobs().ListJobs(r.Context(), opts)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if len(jobs) == 0 {
		writeMessage(w, http.StatusNotFound, "No jobs found for given criteria")
		return
	}
	out := make(map[string]*job.Job, len(jobs))
	for _, j := range jobs {
		out[j.ID.String()] = j
	}
	writeJSON(w, http.StatusOK, out)
}

type createJobRequest struct {
	Type    job.Type  `json:"type"`
	State   job.State `json:"state,omitempty"`
	JobInfo job.Info  `json:"jobInfo"`
}

type createJobResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeBody(r, &req); err != nil {
		a.mapError(w, r, err)
		return
	}
	j := job.New(req.Type, req.JobInfo)
	if req.State != "" {
		j.State = req.State
	}
	if err := a.eng.CreateJob(r.Context(), j); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createJobResponse{Message: "OK", JobID: j.ID.String()})
}

type updateStateRequest struct {
	State job.State `json:"state"`
}

func (a *API) updateJobState(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid job id: %v", err))
		return
	}
	var req updateStateRequest
	if err := decodeBody(r, &req); err != nil {
		a.mapError(w, r, err)
		return
	}
	if err := a.eng.UpdateJobState(r.Context(), jobID, req.State); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "OK")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
