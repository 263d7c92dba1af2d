package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"

	"github.com/monoculum/formam"

	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/ctxjobqueue"
	"fknsrs.biz/p/kidsbeats/internal/ctxupdatefetch"
	"fknsrs.biz/p/kidsbeats/internal/httputil"
	"fknsrs.biz/p/kidsbeats/internal/jobqueue"
	"fknsrs.biz/p/kidsbeats/internal/queuenames"
	"fknsrs.biz/p/kidsbeats/internal/updatefetch"
)

func UpdateCheck(rw http.ResponseWriter, r *http.Request) {
	manifest, err := updatefetch.CheckLatest(r.Context())
	if err != nil {
		if err == updatefetch.ErrNoManifestURL {
			httputil.WriteError(rw, http.StatusServiceUnavailable, "updates are not configured")
			return
		}

		httputil.WriteError(rw, http.StatusBadGateway, err.Error())
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, manifest)
}

// UpdateDownloadStart queues the download rather than running it inline, so
// it shows up in the job list and reports progress the same way every other
// long-running task does.
func UpdateDownloadStart(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		panic(err)
	}

	var input struct {
		URL     string `formam:"url"`
		Version string `formam:"version"`
	}

	if err := formam.Decode(r.PostForm, &input); err != nil {
		panic(err)
	}

	if input.URL == "" || input.Version == "" {
		manifest, err := updatefetch.CheckLatest(r.Context())
		if err != nil {
			httputil.WriteError(rw, http.StatusBadGateway, "no url/version given and the manifest couldn't be fetched: "+err.Error())
			return
		}

		input.URL = manifest.URL
		input.Version = manifest.Version
	}

	job := jobqueue.Job{
		QueueName: queuenames.UpdateDownload,
		Payload: jobqueue.FormatPayload("package", url.Values{
			"url":     []string{input.URL},
			"version": []string{input.Version},
		}),
	}

	if err := ctxdb.UsingTx(r.Context(), nil, func(ctx context.Context, tx *sql.Tx) error {
		return ctxjobqueue.Add(ctx, tx, &job)
	}); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusAccepted, map[string]interface{}{
		"jobId":   job.ID,
		"version": input.Version,
	})
}

func UpdateStatus(rw http.ResponseWriter, r *http.Request) {
	f := ctxupdatefetch.GetFetcher(r.Context())

	if d := f.Current(); d != nil {
		httputil.WriteJSON(rw, http.StatusOK, d.Status())
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, updatefetch.Status{
		State:    updatefetch.StateNotStarted,
		StateStr: updatefetch.StateNotStarted.String(),
	})
}

func UpdateCancel(rw http.ResponseWriter, r *http.Request) {
	f := ctxupdatefetch.GetFetcher(r.Context())

	d := f.Current()
	if d == nil || d.Status().State != updatefetch.StateDownloading {
		httputil.BadRequest(rw, "no download in progress")
		return
	}

	d.Cancel()

	rw.WriteHeader(http.StatusNoContent)
}

func UpdateInstall(rw http.ResponseWriter, r *http.Request) {
	f := ctxupdatefetch.GetFetcher(r.Context())

	d := f.Current()
	if d == nil {
		httputil.BadRequest(rw, "nothing has been downloaded")
		return
	}

	status := d.Status()
	if status.State != updatefetch.StateCompleted {
		httputil.BadRequest(rw, "no completed download to install")
		return
	}

	if err := updatefetch.Install(r.Context(), status.Path); err != nil {
		httputil.WriteError(rw, http.StatusInternalServerError, err.Error())
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}
