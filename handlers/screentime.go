package handlers

import (
	"net/http"
	"strconv"

	"github.com/monoculum/formam"

	"fknsrs.biz/p/kidsbeats/internal/httputil"
	"fknsrs.biz/p/kidsbeats/internal/screentime"
)

func ScreenTimeLog(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Activity string `formam:"activity"`
		Seconds  string `formam:"seconds"`
	}

	if err := formam.Decode(r.PostForm, &input); err != nil {
		panic(err)
	}

	if input.Activity == "" {
		httputil.BadRequest(rw, "activity is required")
		return
	}

	seconds, err := strconv.Atoi(input.Seconds)
	if err != nil {
		httputil.BadRequest(rw, "seconds must be a number")
		return
	}

	if err := screentime.Log(r.Context(), input.Activity, seconds); err != nil {
		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}

func ScreenTimeToday(rw http.ResponseWriter, r *http.Request) {
	total, err := screentime.TodayTotal(r.Context())
	if err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, map[string]int{"totalSeconds": total})
}
