// authctl is a command-line client for the session engine: log in, inspect
// the current identity, ask permission questions and log out. Sessions
// persist in a local SQLite file (or Redis) so consecutive invocations
// share one session.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"
	"golang.org/x/term"

	"github.com/arkcms/authengine/internal/authapi"
	"github.com/arkcms/authengine/internal/authz"
	"github.com/arkcms/authengine/internal/credstore"
	"github.com/arkcms/authengine/internal/facade"
	"github.com/arkcms/authengine/internal/obs"
	"github.com/arkcms/authengine/internal/session"
)

var (
	version = "0.2.0"
	commit  = "dev"
)

type config struct {
	APIURL     string        `env:"AUTHCTL_API_URL,default=http://localhost:8080"`
	CredDB     string        `env:"AUTHCTL_CRED_DB,default=.authctl.db"`
	GrantsFile string        `env:"AUTHCTL_GRANTS_FILE"`
	RedisAddr  string        `env:"AUTHCTL_REDIS_ADDR"`
	Timeout    time.Duration `env:"AUTHCTL_TIMEOUT,default=10s"`
}

// errDenied marks a negative permission answer so main can exit nonzero
// after cleanup instead of aborting mid-teardown.
var errDenied = errors.New("permission denied")

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	err := realMain()
	switch {
	case err == nil:
	case errors.Is(err, errDenied):
		os.Exit(1)
	default:
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func realMain() error {
	var cfg config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	auth, closeFn, err := buildAuth(cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout+5*time.Second)
	defer cancel()

	if err := auth.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	return run(ctx, auth, os.Args[1], os.Args[2:])
}

func buildAuth(cfg config) (*facade.Auth, func(), error) {
	client, err := authapi.NewClient(cfg.APIURL, authapi.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, nil, err
	}

	var durable credstore.Partition
	closeFn := func() {}
	if cfg.RedisAddr != "" {
		r, rerr := credstore.NewRedis(credstore.RedisConfig{Addr: cfg.RedisAddr})
		if rerr != nil {
			return nil, nil, rerr
		}
		durable = r
	} else {
		s, serr := credstore.OpenSQLite(cfg.CredDB)
		if serr != nil {
			return nil, nil, serr
		}
		durable = s
		closeFn = func() { _ = s.Close() }
	}

	// A CLI process is short-lived, so the ephemeral partition never
	// outlives one invocation. rememberMe=false sessions end with it.
	store, err := credstore.New(durable, credstore.NewMemory())
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	engine, err := session.New(client, store, session.WithRequestTimeout(cfg.Timeout))
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	table := authz.DefaultTable()
	if cfg.GrantsFile != "" {
		table, err = authz.LoadTableFile(cfg.GrantsFile)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
	}
	evaluator, err := authz.New(table)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	auth, err := facade.New(engine, evaluator)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return auth, func() { auth.Close(); closeFn() }, nil
}

func run(ctx context.Context, auth *facade.Auth, cmd string, args []string) error {
	switch cmd {
	case "login":
		return cmdLogin(ctx, auth, args)
	case "whoami":
		return cmdWhoami(auth)
	case "can":
		return cmdCan(auth, args)
	case "refresh":
		return auth.Refresh(ctx)
	case "logout":
		auth.Logout(ctx)
		fmt.Println("logged out")
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLogin(ctx context.Context, auth *facade.Auth, args []string) error {
	var email string
	remember := true
	for _, arg := range args {
		switch {
		case arg == "--no-remember":
			remember = false
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag %q", arg)
		default:
			email = arg
		}
	}
	if email == "" {
		return fmt.Errorf("usage: authctl login [--no-remember] <email>")
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", email)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if err := auth.Login(ctx, email, string(password), remember); err != nil {
		return err
	}
	ident := auth.CurrentIdentity()
	fmt.Printf("signed in as %s (%s)\n", ident.Email, ident.Role)
	return nil
}

func cmdWhoami(auth *facade.Auth) error {
	ident := auth.CurrentIdentity()
	if ident == nil {
		fmt.Println("not signed in (guest)")
		return nil
	}
	fmt.Printf("id:       %s\n", ident.ID)
	fmt.Printf("email:    %s\n", ident.Email)
	fmt.Printf("username: %s\n", ident.Username)
	fmt.Printf("role:     %s\n", ident.Role)
	fmt.Printf("status:   %s\n", ident.Status)
	return nil
}

// cmdCan answers "may the current identity do <permission>", optionally
// against a resource owned by someone: authctl can posts.edit.own --owner u-42
func cmdCan(auth *facade.Auth, args []string) error {
	var perm authz.Permission
	var res *authz.Resource
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--owner":
			i++
			if i >= len(args) {
				return fmt.Errorf("--owner requires a value")
			}
			res = &authz.Resource{Type: "resource", OwnerID: args[i]}
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag %q", args[i])
		default:
			perm = authz.Permission(args[i])
		}
	}
	if perm == "" {
		return fmt.Errorf("usage: authctl can <permission> [--owner <user-id>]")
	}

	dec := auth.Check(perm, res)
	if dec.Allowed {
		fmt.Println("allowed")
		return nil
	}
	fmt.Printf("denied (%s", dec.Reason)
	if dec.RequiredRole != "" {
		fmt.Printf(", requires %s", dec.RequiredRole)
	}
	fmt.Println(")")
	return errDenied
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: authctl <command> [args]

commands:
  login [--no-remember] <email>          sign in (password prompted)
  whoami                                 show the current identity
  can <permission> [--owner <user-id>]   evaluate a permission
  refresh                                force a token refresh
  logout                                 sign out and clear credentials

environment:
  AUTHCTL_API_URL      identity provider base URL (default http://localhost:8080)
  AUTHCTL_CRED_DB      sqlite credential file (default .authctl.db)
  AUTHCTL_REDIS_ADDR   use redis instead of sqlite for durable credentials
  AUTHCTL_GRANTS_FILE  yaml grant table override
  AUTHCTL_TIMEOUT      request timeout (default 10s)
`)
}
