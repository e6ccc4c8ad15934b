package api

import (
	"net/http"
)

// StartAuthHandler begins the account-linking handshake and returns
// the URL where the user approves the request token.
func (app *App) StartAuthHandler(w http.ResponseWriter, r *http.Request) {
	approvalURL, err := app.Sessions.StartAuth(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"approval_url": approvalURL})
}

// ConfirmAuthHandler exchanges the approved token for a session. The
// client calls this after the user returns from the approval page.
func (app *App) ConfirmAuthHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.Sessions.ConfirmApproval(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// RefreshRatedHandler refreshes the rated-movies set for the linked
// account and reports its size.
func (app *App) RefreshRatedHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := app.Sessions.RefreshRatedMovies(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"rated_count": len(ids)})
}

// DisconnectHandler unlinks the account and clears persisted state.
func (app *App) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	app.Sessions.Disconnect(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// SessionStatusHandler reports the account-linking state machine's
// current position.
func (app *App) SessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, app.Sessions.Status())
}
