package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/authflow"
	"github.com/jrsteele09/go-auth-client/discovery"
	"github.com/jrsteele09/go-auth-client/idtoken"
	"github.com/jrsteele09/go-auth-client/signinsession"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/tokenstore"
	"github.com/rs/zerolog"
)

// app wires the library's stores and controller into HTTP handlers. The
// stores and the discovery cache are shared across requests; a controller is
// built per request because its redirect side effect targets that request's
// response writer.
type app struct {
	config    *Config
	logger    zerolog.Logger
	discovery *discovery.Cache
	sessions  *signinsession.Store
	tokens    *tokenstore.Store
}

func newApp(config *Config, logger zerolog.Logger) (*app, error) {
	// ID and refresh tokens survive restarts in the data file; the sign-in
	// session is deliberately ephemeral.
	durable, err := storage.NewFileStore(config.DataFile)
	if err != nil {
		return nil, err
	}
	tokens, err := tokenstore.NewStore(durable, config.ClientID)
	if err != nil {
		return nil, err
	}

	return &app{
		config:    config,
		logger:    logger,
		discovery: discovery.NewCache(discovery.DocumentURL(config.Issuer), nil),
		sessions:  signinsession.NewStore(storage.NewMemoryStore(), config.ClientID),
		tokens:    tokens,
	}, nil
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleWhoami)
	mux.HandleFunc("/login", a.handleLogin)
	mux.HandleFunc("/callback", a.handleCallback)
	mux.HandleFunc("/logout", a.handleLogout)
	return a.requestLogging(mux)
}

func (a *app) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		logger := a.logger.With().
			Str("requestId", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		logger.Info().Dur("elapsed", time.Since(started)).Msg("request handled")
	})
}

// controller builds a per-request controller whose redirect writes to this
// request's response.
func (a *app) controller(w http.ResponseWriter, r *http.Request) (*authflow.Controller, error) {
	redirect := func(url string) {
		http.Redirect(w, r, url, http.StatusFound)
	}
	return authflow.NewController(
		authflow.Config{
			ClientID:  a.config.ClientID,
			Scopes:    a.config.Scopes,
			Resources: a.config.Resources,
		},
		a.discovery,
		a.sessions,
		a.tokens,
		redirect,
		authflow.WithLogger(*zerolog.Ctx(r.Context())),
	)
}

func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	controller, err := a.controller(w, r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if err := controller.SignIn(r.Context(), a.config.RedirectURL); err != nil {
		a.serverError(w, r, err)
	}
}

func (a *app) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		http.Error(w, fmt.Sprintf("provider returned error: %s", errCode), http.StatusBadGateway)
		return
	}

	controller, err := a.controller(w, r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	claims, err := controller.CompleteSignIn(r.Context(), r.URL.Query().Get("code"), r.URL.Query().Get("state"))
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("subject", claims.Subject).Msg("signed in")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	controller, err := a.controller(w, r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	wasAuthenticated := a.tokens.IsAuthenticated()
	if err := controller.SignOut(r.Context(), a.config.PostLogoutRedirectURL); err != nil {
		a.serverError(w, r, err)
		return
	}
	if !wasAuthenticated {
		// Sign-out was a no-op; there is no end-session redirect to follow.
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (a *app) handleWhoami(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if !a.tokens.IsAuthenticated() {
		fmt.Fprintln(w, "signed out. visit /login to sign in")
		return
	}

	// Display only: the token was verified at sign-in completion.
	claims, err := idtoken.DecodeUnverified(a.tokens.IDToken())
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	fmt.Fprintf(w, "signed in as %s (issuer %s)\n", claims.Subject, claims.Issuer)
	fmt.Fprintln(w, "visit /logout to sign out")
}

func (a *app) serverError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
