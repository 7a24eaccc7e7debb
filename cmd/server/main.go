package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-authz-engine/authz"
	"github.com/jrsteele09/go-authz-engine/internal/config"
	"github.com/jrsteele09/go-authz-engine/principal"
	"github.com/jrsteele09/go-authz-engine/server"
	"github.com/jrsteele09/go-authz-engine/subjects"
	subjectrepofake "github.com/jrsteele09/go-authz-engine/subjects/repofake"
	"github.com/jrsteele09/go-authz-engine/token"
	"github.com/jrsteele09/go-authz-engine/token/refresh"
	"github.com/jrsteele09/go-authz-engine/token/refresh/redisrepo"
	refreshrepofake "github.com/jrsteele09/go-authz-engine/token/refresh/repofake"
	"github.com/jrsteele09/go-authz-engine/token/refresh/sqliterepo"
	"github.com/redis/go-redis/v9"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	refreshRepo, err := newRefreshRepo(c)
	if err != nil {
		return fmt.Errorf("newRefreshRepo: %w", err)
	}

	subjectRepo := subjectrepofake.NewFakeSubjectRepo()
	if err := bootstrapSubjects(subjectRepo); err != nil {
		return fmt.Errorf("bootstrapSubjects: %w", err)
	}

	signer, err := newSigner(c)
	if err != nil {
		return fmt.Errorf("newSigner: %w", err)
	}

	tokens := token.New(refreshRepo, subjectRepo, signer,
		token.WithIssuer(c.GetIssuer()),
		token.WithAudience(c.GetAudience()),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
		token.WithStoreTimeout(c.GetStoreTimeout()),
	)

	evaluator, err := newEvaluator()
	if err != nil {
		return fmt.Errorf("newEvaluator: %w", err)
	}

	srv, err := server.New(c, tokens, subjectRepo, evaluator)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// newSigner selects RS256 signing when a PEM key file is configured and
// falls back to the HMAC secret otherwise.
func newSigner(c config.Config) (token.Signer, error) {
	keyFile := c.GetSigningKeyFile()
	if keyFile == "" {
		return token.NewHMACSigner(c.GetSigningSecret()), nil
	}

	pemData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading signing key %s: %w", keyFile, err)
	}
	keyPair, err := token.LoadRSAKeyPairFromPEM(c.GetSigningKeyID(), string(pemData))
	if err != nil {
		return nil, fmt.Errorf("parsing signing key %s: %w", keyFile, err)
	}
	return token.NewKeyPairSigner(keyPair), nil
}

func newRefreshRepo(c config.Config) (refresh.Repo, error) {
	switch c.GetStoreBackend() {
	case config.StoreBackendSQLite:
		return sqliterepo.New(c.GetSQLitePath())
	case config.StoreBackendRedis:
		return redisrepo.New(redis.NewClient(&redis.Options{Addr: c.GetRedisAddr()})), nil
	case config.StoreBackendMemory:
		return refreshrepofake.NewFakeRefreshTokenRepo(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.GetStoreBackend())
	}
}

func newEvaluator() (*authz.Evaluator, error) {
	handlers := authz.NewHandlerRegistry()
	if err := handlers.Register(authz.RequirementTypeRole, authz.RoleHandler{}); err != nil {
		return nil, err
	}
	if err := handlers.Register(authz.RequirementTypeClaim, authz.ClaimHandler{}); err != nil {
		return nil, err
	}

	policies := authz.NewPolicyRegistry(handlers)
	if err := policies.AddPolicy(server.PolicyTokenAdministrators,
		authz.RoleRequirement{Roles: []string{"admin"}}); err != nil {
		return nil, err
	}

	return authz.NewEvaluator(policies, handlers), nil
}

// bootstrapSubjects seeds an admin account so a fresh instance can be
// administered before any other identity source is wired up.
func bootstrapSubjects(repo subjects.Repo) error {
	admin := &subjects.Subject{
		ID:       "bootstrap-admin",
		Username: config.GetEnv("ADMIN_USERNAME", "admin"),
		Claims: []principal.Claim{
			{Type: principal.RoleClaimType, Value: "admin"},
		},
	}
	if err := admin.SetPassword(config.GetEnv("ADMIN_PASSWORD", "admin")); err != nil {
		return err
	}
	return repo.Upsert(admin)
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
