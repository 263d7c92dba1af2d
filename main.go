package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/gorilla/mux"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni/v2"
	"go.etcd.io/bbolt"

	"fknsrs.biz/p/kidsbeats/handlers"
	"fknsrs.biz/p/kidsbeats/internal/config"
	"fknsrs.biz/p/kidsbeats/internal/configreader"
	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxconfig"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/ctxhttpclient"
	"fknsrs.biz/p/kidsbeats/internal/ctxjobqueue"
	"fknsrs.biz/p/kidsbeats/internal/ctxlogger"
	"fknsrs.biz/p/kidsbeats/internal/ctxupdatefetch"
	"fknsrs.biz/p/kidsbeats/internal/httpcache"
	"fknsrs.biz/p/kidsbeats/internal/jobqueue"
	"fknsrs.biz/p/kidsbeats/internal/library"
	"fknsrs.biz/p/kidsbeats/internal/logrusstackhook"
	"fknsrs.biz/p/kidsbeats/internal/migrate"
	"fknsrs.biz/p/kidsbeats/internal/queuenames"
	"fknsrs.biz/p/kidsbeats/internal/screentime"
	"fknsrs.biz/p/kidsbeats/internal/sqlitelogger"
	"fknsrs.biz/p/kidsbeats/internal/updatefetch"
)

func init() {
	sorm.SetParameterPrefix("?")
}

var cfg = config.Config{
	LogLevel:             logrus.InfoLevel,
	LogDebugLevels:       config.LevelList{logrus.DebugLevel, logrus.TraceLevel},
	LogQueries:           config.LogQueries{Enabled: true, SlowerThan: time.Millisecond * 100},
	LogSORM:              false,
	ApplicationAddr:      ":8080",
	ApplicationDatabase:  "database.db",
	ApplicationCachePath: "cache.db",
	ApplicationDataPath:  "data",
	BackgroundWorkers:    1,
	ShareValidityDays:    7,
	ShareMaxRedeems:      10,
}

func init() {
	for _, configPath := range []string{"config.toml", "config.yaml", "config.yml"} {
		if st, err := os.Stat(configPath); err == nil && st != nil && !st.IsDir() {
			cfg.Config = configPath
		}
	}
}

type simpleQueryLogger struct {
	logger *logrus.Logger
}

func (s *simpleQueryLogger) LogQuery(query string, args []interface{}) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Info("sorm query start")
}

func (s *simpleQueryLogger) LogQueryAfter(query string, args []interface{}, duration time.Duration, err error) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.duration":   duration,
		"db.error":      err,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Info("sorm query finish")
}

func main() {
	ctx := context.Background()

	if err := configreader.Read(os.Args[0], os.Args[1:], os.Environ(), &cfg); err != nil {
		panic(err)
	}

	ctx = ctxconfig.WithConfig(ctx, cfg)
	ctx = ctxclock.WithClock(ctx, ctxclock.NewRealClock())

	logger := logrus.New()

	logger.SetLevel(cfg.LogLevel)
	if len(cfg.LogDebugLevels) > 0 {
		logger.AddHook(logrusstackhook.NewStackHook(nil, cfg.LogDebugLevels, nil))
	}

	logger.WithFields(logrus.Fields{
		"config.config":                 cfg.Config,
		"config.log_level":              cfg.LogLevel,
		"config.log_debug_levels":       cfg.LogDebugLevels,
		"config.log_queries":            cfg.LogQueries,
		"config.log_sorm":               cfg.LogSORM,
		"config.application_addr":       cfg.ApplicationAddr,
		"config.application_cache_path": cfg.ApplicationCachePath,
		"config.application_database":   cfg.ApplicationDatabase,
		"config.application_data_path":  cfg.ApplicationDataPath,
		"config.background_workers":     cfg.BackgroundWorkers,
		"config.child_name":             cfg.ChildName,
		"config.family_id":              cfg.FamilyID,
		"config.share_validity_days":    cfg.ShareValidityDays,
		"config.share_max_redeems":      cfg.ShareMaxRedeems,
		"config.update_manifest_url":    cfg.UpdateManifestURL,
	}).Info("program starting")

	if cfg.LogSORM {
		sorm.SetQueryLogger(&simpleQueryLogger{logger})
	}

	ctx = ctxlogger.WithLogger(ctx, logger)

	dbDriver := "sqlite3"

	if !cfg.LogQueries.IsZero() {
		dbDriver = "sqlite3:logged"

		sql.Register(dbDriver, sqlitelogger.New(
			dbDriver,
			&sqlite3.SQLiteDriver{},
			&sqlitelogger.BasicFilter{
				LogSlowerThan: cfg.LogQueries.SlowerThan,
				IgnorePackageStackFrames: []string{
					// standard library
					"database/sql",
					"net/http",
					"runtime",
					// libraries
					"github.com/gorilla/mux",
					"github.com/shogo82148/go-sql-proxy",
					"github.com/urfave/negroni/v2",
					// middleware
					"fknsrs.biz/p/kidsbeats/internal/ctxclock",
					"fknsrs.biz/p/kidsbeats/internal/ctxdb",
					"fknsrs.biz/p/kidsbeats/internal/ctxjobqueue",
					"fknsrs.biz/p/kidsbeats/internal/ctxlogger",
					"fknsrs.biz/p/kidsbeats/internal/sqlitelogger",
					// main
					"main",
				},
				IgnoreFunctionQueries: []string{
					"fknsrs.biz/p/kidsbeats/internal/jobqueue.(*Worker).Run",
				},
			},
		))
	}

	db, err := sql.Open(dbDriver, cfg.ApplicationDatabase+"?_busy_timeout=5000")
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// the schema has to be current before anything touches the store
	if err := migrate.Run(ctx, db); err != nil {
		panic(err)
	}

	ctx = ctxdb.WithDB(ctx, db)

	cacheDB, err := bbolt.Open(cfg.ApplicationCachePath, 0600, nil)
	if err != nil {
		panic(err)
	}
	defer cacheDB.Close()

	ctx = ctxhttpclient.WithHTTPClient(ctx, &http.Client{
		Transport: httpcache.NewTransport(nil, httpcache.NewBBoltStorage(cacheDB), 0),
	})

	ctx = ctxjobqueue.WithWorker(ctx, jobqueue.NewWorker(nil))
	ctx = ctxupdatefetch.WithFetcher(ctx, updatefetch.NewFetcher())

	if err := registerJobQueueWorkerFunctions(ctx); err != nil {
		panic(err)
	}

	workers := []worker{
		{
			name: "application",
			run: func(ctx context.Context) error {
				return runApplicationWorker(ctx, cfg.ApplicationAddr)
			},
		},
		{
			name: "scheduler",
			run: func(ctx context.Context) error {
				return runSchedulerWorker(ctx)
			},
		},
	}

	for i := 0; i < cfg.BackgroundWorkers; i++ {
		workers = append(workers, worker{
			name: fmt.Sprintf("job_queue.%d", i),
			run: func(ctx context.Context) error {
				return runJobQueueWorker(ctx)
			},
		})
	}

	if err := runAllWorkers(ctx, workers); err != nil {
		panic(err)
	}
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

func runAllWorkers(ctx context.Context, workers []worker) error {
	done := make(chan error, len(workers))
	cancellers := make([]context.CancelCauseFunc, len(workers))

	var rw sync.RWMutex

	for id, w := range workers {
		go func(id int, w worker) {
			for {
				l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
					"worker.id":   id + 1,
					"worker.name": w.name,
				})

				ctx, cancel := context.WithCancelCause(ctxlogger.WithLogger(ctx, l))

				rw.Lock()
				cancellers[id] = cancel
				rw.Unlock()

				if err := w.run(ctx); err != nil {
					l.WithError(err).Error("worker failed")

					rw.RLock()
					for _, fn := range cancellers {
						if fn == nil {
							continue
						}

						fn(fmt.Errorf("worker %d (%s) failed: %w", id+1, w.name, err))
					}
					rw.RUnlock()
				} else {
					l.Info("worker restarted")
				}

				time.Sleep(time.Second)
			}
		}(id, w)
	}

	var errs []error
	for err := range done {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func runApplicationWorker(ctx context.Context, addr string) error {
	l := ctxlogger.GetLogger(ctx)

	l.WithFields(logrus.Fields{
		"args.addr": addr,
	}).Info("running application worker")

	m := mux.NewRouter()

	m.Methods(http.MethodGet).Path("/api/playlists").HandlerFunc(handlers.PlaylistsList)
	m.Methods(http.MethodPost).Path("/api/playlists").HandlerFunc(handlers.PlaylistCreate)
	m.Methods(http.MethodGet).Path("/api/playlists/{id}").HandlerFunc(handlers.PlaylistGet)
	m.Methods(http.MethodPost).Path("/api/playlists/{id}").HandlerFunc(handlers.PlaylistUpdate)
	m.Methods(http.MethodDelete).Path("/api/playlists/{id}").HandlerFunc(handlers.PlaylistDelete)
	m.Methods(http.MethodPut).Path("/api/playlists/{id}/videos/{videoId}").HandlerFunc(handlers.PlaylistAddVideo)
	m.Methods(http.MethodDelete).Path("/api/playlists/{id}/videos/{videoId}").HandlerFunc(handlers.PlaylistRemoveVideo)
	m.Methods(http.MethodPut).Path("/api/playlists/{id}/tracks/{trackId}").HandlerFunc(handlers.PlaylistAddTrack)
	m.Methods(http.MethodDelete).Path("/api/playlists/{id}/tracks/{trackId}").HandlerFunc(handlers.PlaylistRemoveTrack)
	m.Methods(http.MethodPost).Path("/api/playlists/{id}/share").HandlerFunc(handlers.ShareCreate)
	m.Methods(http.MethodPost).Path("/api/playlists/{id}/recount").HandlerFunc(handlers.PlaylistRecount)

	m.Methods(http.MethodPut).Path("/api/videos/{id}").HandlerFunc(handlers.VideoPut)
	m.Methods(http.MethodGet).Path("/api/videos/{id}").HandlerFunc(handlers.VideoGet)
	m.Methods(http.MethodDelete).Path("/api/videos/{id}").HandlerFunc(handlers.VideoDelete)
	m.Methods(http.MethodPut).Path("/api/tracks/{id}").HandlerFunc(handlers.TrackPut)
	m.Methods(http.MethodGet).Path("/api/tracks/{id}").HandlerFunc(handlers.TrackGet)
	m.Methods(http.MethodDelete).Path("/api/tracks/{id}").HandlerFunc(handlers.TrackDelete)

	m.Methods(http.MethodGet).Path("/api/shares").HandlerFunc(handlers.SharesList)
	m.Methods(http.MethodGet).Path("/api/shares/{code}").HandlerFunc(handlers.ShareValidate)
	m.Methods(http.MethodGet).Path("/api/shares/{code}/data").HandlerFunc(handlers.ShareData)
	m.Methods(http.MethodPost).Path("/api/shares/{code}/import").HandlerFunc(handlers.ShareImport)
	m.Methods(http.MethodDelete).Path("/api/shares/{code}").HandlerFunc(handlers.ShareRevoke)

	m.Methods(http.MethodGet).Path("/api/filters").HandlerFunc(handlers.FiltersList)
	m.Methods(http.MethodPut).Path("/api/filters/{kind}/{refId}").HandlerFunc(handlers.FilterAdd)
	m.Methods(http.MethodDelete).Path("/api/filters/{kind}/{refId}").HandlerFunc(handlers.FilterRemove)

	m.Methods(http.MethodPost).Path("/api/screen-time").HandlerFunc(handlers.ScreenTimeLog)
	m.Methods(http.MethodGet).Path("/api/screen-time/today").HandlerFunc(handlers.ScreenTimeToday)

	m.Methods(http.MethodGet).Path("/api/update").HandlerFunc(handlers.UpdateCheck)
	m.Methods(http.MethodPost).Path("/api/update/download").HandlerFunc(handlers.UpdateDownloadStart)
	m.Methods(http.MethodGet).Path("/api/update/status").HandlerFunc(handlers.UpdateStatus)
	m.Methods(http.MethodPost).Path("/api/update/cancel").HandlerFunc(handlers.UpdateCancel)
	m.Methods(http.MethodPost).Path("/api/update/install").HandlerFunc(handlers.UpdateInstall)

	m.Methods(http.MethodGet).Path("/api/jobs").HandlerFunc(handlers.JobsList)
	m.Methods(http.MethodGet).Path("/api/jobs/updates").HandlerFunc(handlers.JobsSSE)

	m.Methods(http.MethodGet).PathPrefix("/data/").Handler(http.StripPrefix("/data/", http.FileServer(http.Dir(ctxconfig.GetConfig(ctx).ApplicationDataPath))))

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseFunc(ctxlogger.Register(l))
	n.UseFunc(ctxclock.Register(ctxclock.GetClock(ctx)))
	n.UseFunc(ctxdb.Register(ctxdb.GetDB(ctx)))
	n.UseFunc(ctxjobqueue.Register(ctxjobqueue.GetWorker(ctx)))
	n.UseFunc(ctxhttpclient.Register(ctxhttpclient.GetHTTPClient(ctx)))
	n.UseFunc(ctxupdatefetch.Register(ctxupdatefetch.GetFetcher(ctx)))
	n.UseFunc(ctxclock.AddLoggerHooks())
	n.UseFunc(ctxlogger.Log())

	n.UseHandler(m)

	s := &http.Server{
		Addr:        addr,
		Handler:     n,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		l.Info("starting server")
		errs <- s.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return s.Shutdown(ctx)
	}
}

// runSchedulerWorker enqueues the periodic housekeeping jobs. The jobs
// themselves are cheap and idempotent, so it errs on the side of queueing
// them too often rather than tracking when they last ran.
func runSchedulerWorker(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	l.Info("running scheduler worker")

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	queues := []string{queuenames.ScreenTimeReport}
	if ctxconfig.GetConfig(ctx).UpdateManifestURL != "" {
		queues = append(queues, queuenames.UpdateCheck)
	}

	for {
		for _, queueName := range queues {
			if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
				return ctxjobqueue.Add(ctx, tx, &jobqueue.Job{
					QueueName: queueName,
					Payload:   "scheduled",
				})
			}); err != nil {
				l.WithError(err).WithField("queue_name", queueName).Error("could not enqueue scheduled job")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func registerJobQueueWorkerFunctions(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	l.Info("registering job queue worker functions")

	w := ctxjobqueue.GetWorker(ctx)
	if w == nil {
		return fmt.Errorf("job queue worker not available in context")
	}

	return w.RegisterAll(map[string]jobqueue.WorkerFunction{
		queuenames.UpdateCheck: func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
			manifest, err := updatefetch.CheckLatest(ctx)
			if err != nil {
				return "", err
			}

			return fmt.Sprintf("latest version is %s", manifest.Version), nil
		},
		queuenames.UpdateDownload: func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
			_, params, err := jobqueue.ParsePayload(j.Payload)
			if err != nil {
				return "", err
			}

			packageURL := params.Get("url")
			version := params.Get("version")
			if packageURL == "" || version == "" {
				return "", fmt.Errorf("update download payload needs url and version")
			}

			f := ctxupdatefetch.GetFetcher(ctx)
			if f == nil {
				return "", fmt.Errorf("update fetcher not available in context")
			}

			d, err := f.Start(ctx, packageURL, version)
			if err != nil {
				return "", err
			}

			// relay the transfer's progress into the job row so the SSE
			// stream can surface it
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for {
				status := d.Status()

				if err := w.UpdateProgress(ctx, j, status.Progress); err != nil {
					ctxlogger.GetLogger(ctx).WithError(err).Warn("failed to update progress")
				}

				switch status.State {
				case updatefetch.StateCompleted:
					return fmt.Sprintf("downloaded %s to %s", version, status.Path), nil
				case updatefetch.StateFailed:
					return "", fmt.Errorf("download failed: %s", status.Error)
				case updatefetch.StateNotStarted:
					return "download cancelled", nil
				}

				select {
				case <-ctx.Done():
					d.Cancel()
					return "", ctx.Err()
				case <-ticker.C:
				}
			}
		},
		queuenames.PlaylistRecount: func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
			id, _, err := jobqueue.ParsePayload(j.Payload)
			if err != nil {
				return "", err
			}

			playlistID, err := strconv.Atoi(id)
			if err != nil {
				return "", fmt.Errorf("recount payload should be a playlist id: %w", err)
			}

			if err := library.RecountPlaylist(ctx, playlistID); err != nil {
				if err == sql.ErrNoRows {
					return "playlist no longer exists", nil
				}

				return "", err
			}

			return "counts repaired", nil
		},
		queuenames.ScreenTimeReport: func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
			total, err := screentime.TodayTotal(ctx)
			if err != nil {
				return "", err
			}

			return fmt.Sprintf("%d seconds of screen time logged today", total), nil
		},
	})
}

func runJobQueueWorker(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	l.Info("running job queue worker")

	w := ctxjobqueue.GetWorker(ctx)
	if w == nil {
		return fmt.Errorf("job queue worker not available in context")
	}

	return w.Run(ctx)
}
