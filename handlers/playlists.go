package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gost/godata"
	"github.com/monoculum/formam"

	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/ctxjobqueue"
	"fknsrs.biz/p/kidsbeats/internal/httputil"
	"fknsrs.biz/p/kidsbeats/internal/jobqueue"
	"fknsrs.biz/p/kidsbeats/internal/library"
	"fknsrs.biz/p/kidsbeats/internal/queuenames"
	"fknsrs.biz/p/kidsbeats/models"
)

// Handlers translate HTTP in and out; the rules live in the library and
// sharing packages. Infrastructure failures panic and are turned into 500s
// by the recovery middleware.

func playlistID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, false
	}

	return id, true
}

func PlaylistsList(rw http.ResponseWriter, r *http.Request) {
	q, err := godata.ParseUrlQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(rw, "could not parse query: "+err.Error())
		return
	}

	playlists, err := library.ListPlaylists(r.Context(), q)
	if err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, playlists)
}

func PlaylistCreate(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Name        string `formam:"name"`
		Description string `formam:"description"`
		Color       string `formam:"color"`
	}

	if err := formam.Decode(r.PostForm, &input); err != nil {
		panic(err)
	}

	if input.Name == "" {
		httputil.BadRequest(rw, "name is required")
		return
	}

	var description *string
	if input.Description != "" {
		description = &input.Description
	}

	playlist, err := library.CreatePlaylist(r.Context(), input.Name, description, models.PlaylistColor(input.Color))
	if err != nil {
		if err == library.ErrInvalidColor {
			httputil.BadRequest(rw, "unrecognised color")
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusCreated, playlist)
}

func PlaylistGet(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	playlist, err := library.GetPlaylist(r.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, playlist)
}

func PlaylistUpdate(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Name        *string `formam:"name"`
		Description *string `formam:"description"`
		Color       *string `formam:"color"`
		IsFavorite  *bool   `formam:"is_favorite"`
	}

	if err := formam.Decode(r.PostForm, &input); err != nil {
		panic(err)
	}

	playlist, err := library.GetPlaylist(r.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	if input.Name != nil {
		playlist.Name = *input.Name
	}
	if input.Description != nil {
		if *input.Description == "" {
			playlist.Description = nil
		} else {
			playlist.Description = input.Description
		}
	}
	if input.Color != nil {
		playlist.Color = models.PlaylistColor(*input.Color)
	}
	if input.IsFavorite != nil {
		playlist.IsFavorite = *input.IsFavorite
	}

	if err := library.UpdatePlaylist(r.Context(), playlist); err != nil {
		if err == library.ErrInvalidColor {
			httputil.BadRequest(rw, "unrecognised color")
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, playlist)
}

func PlaylistDelete(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	if err := library.DeletePlaylist(r.Context(), id); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}

// PlaylistRecount queues a repair of the denormalized counts rather than
// doing it inline, so a parent poking at a drifted playlist doesn't hold
// the request open behind a busy store.
func PlaylistRecount(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	if _, err := library.GetPlaylist(r.Context(), id); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	job := jobqueue.Job{
		QueueName: queuenames.PlaylistRecount,
		Payload:   strconv.Itoa(id),
	}

	if err := ctxdb.UsingTx(r.Context(), nil, func(ctx context.Context, tx *sql.Tx) error {
		return ctxjobqueue.Add(ctx, tx, &job)
	}); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusAccepted, map[string]interface{}{"jobId": job.ID})
}

func PlaylistAddVideo(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	if err := library.AddVideoToPlaylist(r.Context(), id, mux.Vars(r)["videoId"]); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}

func PlaylistRemoveVideo(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	if err := library.RemoveVideoFromPlaylist(r.Context(), id, mux.Vars(r)["videoId"]); err != nil {
		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}

func PlaylistAddTrack(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	if err := library.AddTrackToPlaylist(r.Context(), id, mux.Vars(r)["trackId"]); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}

func PlaylistRemoveTrack(rw http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(r)
	if !ok {
		httputil.NotFound(rw, r)
		return
	}

	if err := library.RemoveTrackFromPlaylist(r.Context(), id, mux.Vars(r)["trackId"]); err != nil {
		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}
