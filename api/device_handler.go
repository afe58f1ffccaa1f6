package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/device"
)

func (a *API) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := a.eng.Devices().ListDevices(r.Context(), device.ListOpts{AccountID: r.URL.Query().Get("accountId")})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if len(devices) == 0 {
		writeMessage(w, http.StatusNotFound, noResults)
		return
	}
	out := make(map[string]*device.Device, len(devices))
	for _, d := range devices {
		out[d.UDID] = d
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getDevice(w http.ResponseWriter, r *http.Request) {
	d, err := a.eng.Devices().GetDevice(r.Context(), chi.URLParam(r, "udid"))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// saveDeviceRequest accepts account references as strings or numbers.
type saveDeviceRequest struct {
	UDID       string         `json:"udid"`
	DeviceInfo map[string]any `json:"deviceInfo"`
	Accounts   []identifier   `json:"accounts"`
}

type saveDeviceResponse struct {
	Message  string `json:"message"`
	DeviceID string `json:"deviceId"`
}

func (a *API) saveDevice(w http.ResponseWriter, r *http.Request) {
	var req saveDeviceRequest
	if err := decodeBody(r, &req); err != nil {
		a.mapError(w, r, err)
		return
	}
	udid := strings.TrimSpace(req.UDID)
	if udid == "" {
		writeMessage(w, http.StatusBadRequest, "udid is required")
		return
	}
	d := &device.Device{
		Entity:     backend.NewEntity(),
		UDID:       udid,
		Info:       req.DeviceInfo,
		AccountIDs: make([]string, 0, len(req.Accounts)),
	}
	for _, acc := range req.Accounts {
		d.AccountIDs = append(d.AccountIDs, string(acc))
	}
	if err := a.eng.Devices().SaveDevice(r.Context(), d); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveDeviceResponse{Message: "OK", DeviceID: d.UDID})
}
