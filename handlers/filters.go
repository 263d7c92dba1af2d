package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"fknsrs.biz/p/kidsbeats/internal/httputil"
	"fknsrs.biz/p/kidsbeats/internal/library"
)

func FiltersList(rw http.ResponseWriter, r *http.Request) {
	filters, err := library.ListContentFilters(r.Context())
	if err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, filters)
}

func FilterAdd(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := library.AddContentFilter(r.Context(), vars["kind"], vars["refId"]); err != nil {
		if err == library.ErrInvalidFilterKind {
			httputil.BadRequest(rw, "kind must be channel or artist")
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}

func FilterRemove(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := library.RemoveContentFilter(r.Context(), vars["kind"], vars["refId"]); err != nil {
		if err == library.ErrInvalidFilterKind {
			httputil.BadRequest(rw, "kind must be channel or artist")
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}
