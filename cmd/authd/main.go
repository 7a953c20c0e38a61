// authd is a small identity provider for local development and demos. It
// serves the login/refresh/logout/me endpoints the session engine speaks,
// with accounts seeded from a YAML file or built-in defaults.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/arkcms/authengine/internal/idp"
	"github.com/arkcms/authengine/internal/obs"
)

var (
	version = "0.2.0"
	commit  = "dev"
)

type config struct {
	Addr       string        `env:"AUTHD_ADDR,default=:8080"`
	Secret     string        `env:"AUTHD_SECRET,default=dev-secret"`
	AccessTTL  time.Duration `env:"AUTHD_ACCESS_TTL,default=15m"`
	RefreshTTL time.Duration `env:"AUTHD_REFRESH_TTL,default=336h"`
	UsersFile  string        `env:"AUTHD_USERS_FILE"`
}

// defaultUsers keeps the provider usable out of the box. Replace them via
// AUTHD_USERS_FILE for anything beyond a local demo.
var defaultUsers = []idp.SeedUser{
	{Email: "admin@example.com", Password: "admin", Role: "admin"},
	{Email: "editor@example.com", Password: "editor", Role: "editor"},
	{Email: "author@example.com", Password: "author", Role: "author"},
	{Email: "reader@example.com", Password: "reader", Role: "reader"},
}

func main() {
	obs.Init()
	obs.InitHTTP()
	obs.InitBuildInfo(version, commit)

	var cfg config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	users := defaultUsers
	if cfg.UsersFile != "" {
		var err error
		users, err = idp.LoadUsersFile(cfg.UsersFile)
		if err != nil {
			log.Fatalf("users: %v", err)
		}
	}

	store := idp.NewStore()
	for _, u := range users {
		if err := store.Seed(u); err != nil {
			log.Fatalf("seed %s: %v", u.Email, err)
		}
	}

	svc, err := idp.NewService(store, cfg.Secret,
		idp.WithAccessTTL(cfg.AccessTTL),
		idp.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	api := idp.New(svc, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authd %s on %s (%d users)", version, srv.Addr, len(users))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
