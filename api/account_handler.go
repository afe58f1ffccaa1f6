package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
)

// identifier is an account unique identifier. Agents send it either as a
// JSON string or as a JSON number; both decode to the same text.
type identifier string

// UnmarshalJSON implements json.Unmarshaler.
func (i *identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = identifier(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or a number: %w", err)
	}
	*i = identifier(n.String())
	return nil
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.eng.Accounts().ListAccounts(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if len(accounts) == 0 {
		writeMessage(w, http.StatusNotFound, noResults)
		return
	}
	out := make(map[string]*account.Account, len(accounts))
	for _, acc := range accounts {
		out[acc.UniqueIdentifier] = acc
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := a.eng.Accounts().GetAccount(r.Context(), chi.URLParam(r, "uniqueIdentifier"))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

type saveAccountRequest struct {
	UniqueIdentifier identifier `json:"uniqueIdentifier"`
	AppleID          string     `json:"appleId"`
	StoreCountry     string     `json:"storeCountry"`
}

type saveAccountResponse struct {
	Message   string `json:"message"`
	AccountID string `json:"accountId"`
}

func (a *API) saveAccount(w http.ResponseWriter, r *http.Request) {
	var req saveAccountRequest
	if err := decodeBody(r, &req); err != nil {
		a.mapError(w, r, err)
		return
	}
	uid := strings.TrimSpace(string(req.UniqueIdentifier))
	if uid == "" {
		writeMessage(w, http.StatusBadRequest, "uniqueIdentifier is required")
		return
	}
	acc := &account.Account{
		Entity:           backend.NewEntity(),
		UniqueIdentifier: uid,
		AppleID:          req.AppleID,
		StoreCountry:     req.StoreCountry,
	}
	if err := a.eng.Accounts().SaveAccount(r.Context(), acc); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveAccountResponse{Message: "OK", AccountID: acc.UniqueIdentifier})
}
