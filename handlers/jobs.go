package handlers

import (
	"net/http"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/httputil"
	"fknsrs.biz/p/kidsbeats/internal/jobqueue"
)

func JobsList(rw http.ResponseWriter, r *http.Request) {
	var jobs []jobqueue.Job
	if err := sorm.FindWhere(r.Context(), ctxdb.GetDB(r.Context()), &jobs, "where finished_at is null order by id desc limit 1500"); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, jobs)
}
