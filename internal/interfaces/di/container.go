// Package di is the composition root: every singleton service (token
// lifecycle, session controller, versioned cache) is constructed exactly
// once here and injected explicitly, so tests can substitute fakes.
package di

import (
	"context"
	"fmt"
	"log/slog"

	"chartdeck.aero/cli/internal/application/services"
	"chartdeck.aero/cli/internal/config"
	"chartdeck.aero/cli/internal/infrastructure/cachestore"
	"chartdeck.aero/cli/internal/infrastructure/httpx"
	"chartdeck.aero/cli/internal/infrastructure/identity"
	"chartdeck.aero/cli/internal/infrastructure/secret"
	"chartdeck.aero/cli/internal/logging"
)

// Options tweaks container construction from CLI flags.
type Options struct {
	// APIEndpoint overrides the configured backend endpoint when non-empty.
	APIEndpoint string

	// IdentityToken feeds the static identity provider for sign-in.
	IdentityToken string
}

// Container holds all application dependencies.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Secrets  *secret.FileStore
	Cache    *cachestore.BadgerStore
	Tokens   *services.TokenLifecycle
	Session  *services.SessionController
	Rollover *services.RolloverCoordinator
	Library  *services.LibrarySync
}

// NewContainer loads configuration and wires the dependency graph.
func NewContainer(opts Options) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if opts.APIEndpoint != "" {
		cfg.APIEndpoint = opts.APIEndpoint
	}

	logging.Init(cfg.LogLevel)
	logger := logging.Logger()

	dataDir, err := cfg.ResolvedDataDir()
	if err != nil {
		return nil, err
	}
	secrets, err := secret.NewFileStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}

	cacheDir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}
	cacheOpts := cachestore.DefaultOptions(cacheDir)
	cacheOpts.Logger = logger
	cache, err := cachestore.Open(cacheOpts)
	if err != nil {
		return nil, fmt.Errorf("open versioned cache: %w", err)
	}

	deviceID, err := cfg.EnsureDeviceID()
	if err != nil {
		cache.Close()
		return nil, err
	}

	retry := httpx.DefaultBackoffPolicy()

	// The token endpoints are themselves unauthenticated (the token being
	// presented is the credential), which breaks the executor/lifecycle
	// dependency cycle: the bare executor serves the auth and version
	// clients, the authenticated one serves everything else.
	bareExecutor := httpx.NewExecutor(cfg.APIEndpoint, cfg.RequestTimeout, nil, retry, logger)
	authClient := httpx.NewAuthClient(bareExecutor)
	versionClient := httpx.NewVersionClient(bareExecutor)

	tokens := services.NewTokenLifecycle(secrets, authClient, logger,
		services.WithRenewalInterval(cfg.RenewalInterval))

	apiExecutor := httpx.NewExecutor(cfg.APIEndpoint, cfg.RequestTimeout, tokens, retry, logger)
	billingClient := httpx.NewBillingClient(apiExecutor)

	session := services.NewSessionController(
		tokens,
		apiExecutor,
		identity.NewStaticProvider(opts.IdentityToken),
		authClient,
		billingClient,
		deviceID,
		logger,
	)
	tokens.SetRenewalObserver(session.HandleRenewalOutcome)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Secrets:  secrets,
		Cache:    cache,
		Tokens:   tokens,
		Session:  session,
		Rollover: services.NewRolloverCoordinator(cache, versionClient, logger),
		Library:  services.NewLibrarySync(apiExecutor, apiExecutor, cache, logger),
	}, nil
}

// Start runs the startup chain: bounded session bootstrap, then the AIRAC
// rollover check when signed in. Both degraded paths are non-fatal.
func (c *Container) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.Config.StartupTimeout)
	defer cancel()

	if err := c.Session.Bootstrap(ctx); err != nil {
		return fmt.Errorf("session bootstrap: %w", err)
	}

	if c.Session.State().SignedIn() {
		if _, err := c.Rollover.Run(ctx); err != nil {
			// Last-known-good cycle keeps serving; retried next start.
			c.Logger.Warn("AIRAC rollover check deferred", "error", err)
		}
	}
	return nil
}

// Shutdown stops background work and releases storage.
func (c *Container) Shutdown() error {
	c.Tokens.StopRenewalTimer()
	return c.Cache.Close()
}
