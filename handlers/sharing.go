package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"fknsrs.biz/p/kidsbeats/internal/httputil"
	"fknsrs.biz/p/kidsbeats/internal/sharing"
)

// The sharing endpoints map the operation outcomes onto status codes: a
// Success/Valid variant is a 200, an Invalid variant is a 4xx with the
// reason in the body, and an Error variant is a 502-style failure.

func shareCode(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
}

func ShareCreate(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	switch result := sharing.Share(r.Context(), id).(type) {
	case sharing.ShareSuccess:
		httputil.WriteJSON(rw, http.StatusCreated, result)
	case sharing.ShareError:
		switch result.Reason {
		case sharing.ReasonNotFound:
			httputil.NotFound(rw, r)
		case sharing.ReasonEmptyPlaylist, sharing.ReasonNotConfigured:
			httputil.BadRequest(rw, result.Message)
		default:
			httputil.WriteError(rw, http.StatusInternalServerError, result.Message)
		}
	}
}

func ShareValidate(rw http.ResponseWriter, r *http.Request) {
	switch result := sharing.Validate(r.Context(), shareCode(r)).(type) {
	case sharing.ValidateValid:
		httputil.WriteJSON(rw, http.StatusOK, result.Preview)
	case sharing.ValidateInvalid:
		status := http.StatusGone
		if result.Reason == sharing.ReasonNotFound {
			status = http.StatusNotFound
		}

		httputil.WriteJSON(rw, status, result)
	case sharing.ValidateError:
		httputil.WriteError(rw, http.StatusInternalServerError, result.Message)
	}
}

func ShareImport(rw http.ResponseWriter, r *http.Request) {
	switch result := sharing.Import(r.Context(), shareCode(r)).(type) {
	case sharing.ImportSuccess:
		httputil.WriteJSON(rw, http.StatusCreated, result)
	case sharing.ImportInvalid:
		status := http.StatusGone
		if result.Reason == sharing.ReasonNotFound {
			status = http.StatusNotFound
		}

		httputil.WriteJSON(rw, status, result)
	case sharing.ImportError:
		httputil.WriteError(rw, http.StatusInternalServerError, result.Message)
	}
}

func ShareData(rw http.ResponseWriter, r *http.Request) {
	data, err := sharing.GetSharedData(r.Context(), shareCode(r))
	if err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, data)
}

func SharesList(rw http.ResponseWriter, r *http.Request) {
	shares, err := sharing.OwnShares(r.Context())
	if err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, shares)
}

func ShareRevoke(rw http.ResponseWriter, r *http.Request) {
	if err := sharing.Revoke(r.Context(), shareCode(r)); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}
