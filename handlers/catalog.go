package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/monoculum/formam"

	"fknsrs.biz/p/kidsbeats/internal/httputil"
	"fknsrs.biz/p/kidsbeats/internal/library"
	"fknsrs.biz/p/kidsbeats/models"
)

func VideoPut(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Title           string `formam:"title"`
		ChannelID       string `formam:"channel_id"`
		ChannelName     string `formam:"channel_name"`
		ThumbnailURL    string `formam:"thumbnail_url"`
		DurationSeconds string `formam:"duration_seconds"`
	}

	if err := formam.Decode(r.PostForm, &input); err != nil {
		panic(err)
	}

	if input.Title == "" || input.ChannelID == "" {
		httputil.BadRequest(rw, "title and channel_id are required")
		return
	}

	video := models.Video{
		ID:          mux.Vars(r)["id"],
		Title:       input.Title,
		ChannelID:   input.ChannelID,
		ChannelName: input.ChannelName,
	}

	if input.ThumbnailURL != "" {
		video.ThumbnailURL = &input.ThumbnailURL
	}
	if input.DurationSeconds != "" {
		n, err := strconv.Atoi(input.DurationSeconds)
		if err != nil {
			httputil.BadRequest(rw, "duration_seconds must be a number")
			return
		}
		video.DurationSeconds = n
	}

	if err := library.UpsertVideo(r.Context(), &video); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, video)
}

func VideoGet(rw http.ResponseWriter, r *http.Request) {
	video, err := library.GetVideo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, video)
}

func VideoDelete(rw http.ResponseWriter, r *http.Request) {
	if err := library.DeleteVideo(r.Context(), mux.Vars(r)["id"]); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}

func TrackPut(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		Title           string `formam:"title"`
		ArtistID        string `formam:"artist_id"`
		ArtistName      string `formam:"artist_name"`
		AlbumName       string `formam:"album_name"`
		ThumbnailURL    string `formam:"thumbnail_url"`
		DurationSeconds string `formam:"duration_seconds"`
	}

	if err := formam.Decode(r.PostForm, &input); err != nil {
		panic(err)
	}

	if input.Title == "" || input.ArtistID == "" {
		httputil.BadRequest(rw, "title and artist_id are required")
		return
	}

	track := models.Track{
		ID:         mux.Vars(r)["id"],
		Title:      input.Title,
		ArtistID:   input.ArtistID,
		ArtistName: input.ArtistName,
	}

	if input.AlbumName != "" {
		track.AlbumName = &input.AlbumName
	}
	if input.ThumbnailURL != "" {
		track.ThumbnailURL = &input.ThumbnailURL
	}
	if input.DurationSeconds != "" {
		n, err := strconv.Atoi(input.DurationSeconds)
		if err != nil {
			httputil.BadRequest(rw, "duration_seconds must be a number")
			return
		}
		track.DurationSeconds = n
	}

	if err := library.UpsertTrack(r.Context(), &track); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, track)
}

func TrackGet(rw http.ResponseWriter, r *http.Request) {
	track, err := library.GetTrack(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, track)
}

func TrackDelete(rw http.ResponseWriter, r *http.Request) {
	if err := library.DeleteTrack(r.Context(), mux.Vars(r)["id"]); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	rw.WriteHeader(http.StatusNoContent)
}
