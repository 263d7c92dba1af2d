package ctxupdatefetch

import (
	"context"
	"net/http"

	"fknsrs.biz/p/kidsbeats/internal/updatefetch"
)

// context registration

var fetcherKey int

func WithFetcher(ctx context.Context, f *updatefetch.Fetcher) context.Context {
	return context.WithValue(ctx, &fetcherKey, f)
}

func GetFetcher(ctx context.Context) *updatefetch.Fetcher {
	if v := ctx.Value(&fetcherKey); v != nil {
		return v.(*updatefetch.Fetcher)
	}

	return nil
}

// middleware

func Register(f *updatefetch.Fetcher) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithFetcher(r.Context(), f)))
	}
}
