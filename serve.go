package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/group"

	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/internal/cache"
	"github.com/sorrelsocial/sorrel/internal/config"
	"github.com/sorrelsocial/sorrel/internal/httpx"
	"github.com/sorrelsocial/sorrel/internal/policy"
	"github.com/sorrelsocial/sorrel/internal/throttle"
	"github.com/sorrelsocial/sorrel/models"
	"github.com/sorrelsocial/sorrel/wellknown"
	"github.com/sorrelsocial/sorrel/workers"
)

type ServeCmd struct {
	Addr       string `help:"address to listen"`
	Domain     string `required:"" help:"domain name of the instance"`
	Config     string `help:"path to optional config file"`
	SecureMode bool   `help:"require signatures on federation GETs"`
	Workers    int    `help:"number of delivery workers"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	conf, err := config.Read(s.Config)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		conf.Conf.Addr = s.Addr
	}
	if s.Domain != "" {
		conf.Conf.Domain = s.Domain
	}
	if s.SecureMode {
		conf.Conf.SecureMode = true
	}
	if s.Workers > 0 {
		conf.Conf.Workers = s.Workers
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}

	// remote fetches are signed as the instance admin
	admin, err := models.NewInstances(db).Admin(conf.Conf.Domain)
	if err != nil {
		return fmt.Errorf("no admin account for %s; run create-instance first: %w", conf.Conf.Domain, err)
	}

	fetcher := activitypub.NewRemoteActorFetcher(admin)
	actors := cache.NewActors(conf.Conf.Domain, models.NewActorStore(db), fetcher.Fetch, fetcher.Probe)

	dispatcher := activitypub.NewDispatcher(db, conf.Conf.Workers, time.Duration(conf.Conf.DeliveryGiveUpMins)*time.Minute)

	env := &activitypub.Env{
		DB:         db,
		Domain:     conf.Conf.Domain,
		Actors:     actors,
		Policy:     policy.New(db, conf.Conf.DomainLimit, conf.Conf.AccountLimit),
		Dispatcher: dispatcher,
		SecureMode: conf.Conf.SecureMode,
	}
	envFn := func(r *http.Request) *activitypub.Env { return env }

	limiter := throttle.New(time.Duration(conf.Conf.ThrottleSecs) * time.Second)

	c := chi.NewRouter()
	c.Use(middleware.RequestID)
	c.Use(middleware.RealIP)
	c.Use(middleware.Logger)
	c.Use(middleware.Recoverer)

	c.Route("/", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/inbox", httpx.HandlerFunc(envFn, activitypub.Inbox))
			r.Route("/users/{name}", func(r chi.Router) {
				r.Post("/inbox", httpx.HandlerFunc(envFn, activitypub.Inbox))
				r.Group(func(r chi.Router) {
					r.Use(env.RequireSigned)
					r.Get("/", httpx.HandlerFunc(envFn, activitypub.UsersShow))
					r.Get("/outbox", httpx.HandlerFunc(envFn, activitypub.Outbox))
					r.Get("/followers", httpx.HandlerFunc(envFn, activitypub.Followers))
					r.Get("/following", httpx.HandlerFunc(envFn, activitypub.Following))
				})
			})
		})

		r.Route("/.well-known", func(r chi.Router) {
			r.Get("/webfinger", httpx.HandlerFunc(envFn, wellknown.WebfingerShow))
			r.Get("/host-meta", wellknown.HostMetaIndex)
			r.Get("/nodeinfo", httpx.HandlerFunc(envFn, wellknown.NodeInfoIndex))
		})
		r.Get("/nodeinfo/{version}", httpx.HandlerFunc(envFn, wellknown.NodeInfoShow))

		r.Get("/robots.txt", wellknown.RobotsTxt)
	})

	walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		route = strings.Replace(route, "/*/", "/", -1)
		fmt.Printf("%s %s\n", method, route)
		return nil
	}
	if err := chi.Walk(c, walkFunc); err != nil {
		fmt.Printf("Logging err: %s\n", err.Error())
	}

	svr := &http.Server{
		Addr:         conf.Conf.Addr,
		Handler:      c,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	g := group.New(context.Background())
	g.Add(dispatcher.Run)
	g.Add(func(ctx context.Context) error {
		return actors.Sweep(ctx, time.Hour)
	})
	g.Add(workers.NewActorRefreshProcessor(db, admin, actors))
	g.Add(workers.NewDeliveryProcessor(db))
	g.Add(func(groupCtx context.Context) error {
		go func() {
			<-groupCtx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svr.Shutdown(ctx)
		}()
		err := svr.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	return g.Wait()
}
