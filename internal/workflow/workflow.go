package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/Hunga9k50doker/spheron/internal/client"
	"github.com/Hunga9k50doker/spheron/internal/models"
)

// Config tunes the per-account workflow.
type Config struct {
	// RefCode is submitted for accounts without a recorded referrer.
	RefCode string
	// UseProxy gates egress-IP resolution and the start jitter.
	UseProxy bool
	// StepDelay is the courtesy pause between workflow steps.
	StepDelay time.Duration
	// StartDelayMin/Max bound the random jitter before an account starts.
	StartDelayMin time.Duration
	StartDelayMax time.Duration
}

// Deps carries optional hooks, all safe to leave zero outside tests.
type Deps struct {
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() time.Duration
}

// Workflow drives the ordered business sequence for one account:
// authenticate, sync the profile, apply referral and promo codes, spin. It is
// pure orchestration on top of the session client.
type Workflow struct {
	account models.Account
	client  *client.Client
	cfg     Config
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() time.Duration
}

// New constructs a workflow for one account.
func New(account models.Account, c *client.Client, cfg Config, logger *slog.Logger, deps Deps) *Workflow {
	if cfg.StepDelay == 0 {
		cfg.StepDelay = time.Second
	}

	sleep := deps.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}

	jitter := deps.Jitter
	if jitter == nil {
		jitter = func() time.Duration {
			span := cfg.StartDelayMax - cfg.StartDelayMin
			if span <= 0 {
				return cfg.StartDelayMin
			}
			return cfg.StartDelayMin + rand.N(span)
		}
	}

	return &Workflow{
		account: account,
		client:  c,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleep,
		jitter:  jitter,
	}
}

// Run executes the full sequence for the account. The returned error is
// non-nil only for failures that end the account's pass: an unresolvable
// egress IP, an unrefreshable credential, or a cancelled context. Step
// failures downstream of authentication are logged and swallowed; the account
// simply stops advancing until the next pass.
func (w *Workflow) Run(ctx context.Context) error {
	if err := w.client.RestoreToken(ctx); err != nil {
		w.logger.Warn("failed to restore cached token", "error", err)
	}

	if w.cfg.UseProxy {
		ip, err := w.client.ResolveEgressIP(ctx)
		if err != nil {
			w.logger.Error("cannot resolve egress IP, skipping account", "error", err)
			return fmt.Errorf("account %s: %w", w.account.Key, err)
		}
		w.logger = w.logger.With("ip", ip)

		delay := w.jitter()
		w.logger.Info("starting", "delay", delay)
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
	}

	if _, err := w.client.ValidToken(ctx, false); err != nil {
		w.logger.Error("authentication failed", "error", err)
		return err
	}

	profile, err := w.syncProfile(ctx)
	if err != nil {
		return err
	}
	if profile == nil {
		return nil
	}

	if err := w.sleep(ctx, w.cfg.StepDelay); err != nil {
		return err
	}
	if err := w.applyReferralAndPromo(ctx, profile); err != nil {
		return err
	}

	if err := w.sleep(ctx, w.cfg.StepDelay); err != nil {
		return err
	}
	return w.trySpin(ctx, profile)
}

// syncProfile fetches the current profile, retrying once locally when the
// first attempt fails with anything but a 400. A nil profile with nil error
// means the account's remaining steps are skipped this pass.
func (w *Workflow) syncProfile(ctx context.Context) (*models.Profile, error) {
	w.logger.Info("syncing profile")

	var out models.Outcome
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		out, err = w.client.Me(ctx)
		if err != nil {
			return nil, err
		}
		if out.Success || out.Status == http.StatusBadRequest {
			break
		}
	}

	if !out.Success {
		w.logger.Warn("cannot sync profile, skipping remaining steps", "status", out.Status, "error", out.Err)
		return nil, nil
	}

	var profile models.Profile
	if err := out.Decode(&profile); err != nil {
		w.logger.Warn("cannot decode profile, skipping remaining steps", "error", err)
		return nil, nil
	}

	w.logger.Info("profile synced",
		"user", profile.Email,
		"ref_code", profile.ReferralCode,
		"whitelist_points", profile.WhitelistPoints(),
		"xp", profile.XPPoints,
		"points", profile.Points,
	)
	return &profile, nil
}

// applyReferralAndPromo submits the configured referral code when the profile
// has no referrer, and drives the welcome promo code to the applied state.
// Apply failures are logged, non-fatal.
func (w *Workflow) applyReferralAndPromo(ctx context.Context, profile *models.Profile) error {
	w.logger.Info("checking referral and promo state")

	if profile.ReferredBy == "" {
		out, err := w.client.SubmitReferral(ctx, w.cfg.RefCode)
		if err != nil {
			return err
		}
		if !out.Success {
			w.logger.Warn("referral submit failed", "error", out.Err)
		}
	}

	promo := profile.WelcomePromoCode
	if promo == nil {
		w.logger.Info("requesting welcome promo code")
		out, err := w.client.GeneratePromoCode(ctx)
		if err != nil {
			return err
		}
		if !out.Success {
			w.logger.Warn("promo code generation failed", "error", out.Err)
			return nil
		}

		me, err := w.client.Me(ctx)
		if err != nil {
			return err
		}
		if !me.Success {
			w.logger.Warn("cannot re-fetch profile after promo generation", "error", me.Err)
			return nil
		}

		var refreshed models.Profile
		if err := me.Decode(&refreshed); err != nil || refreshed.WelcomePromoCode == nil {
			w.logger.Warn("refreshed profile carries no promo code")
			return nil
		}
		promo = refreshed.WelcomePromoCode
		return w.applyPromo(ctx, promo.PromoCode)
	}

	if promo.IsApplied {
		return nil
	}
	return w.applyPromo(ctx, promo.PromoCode)
}

func (w *Workflow) applyPromo(ctx context.Context, code string) error {
	out, err := w.client.ApplyPromoCode(ctx, code)
	if err != nil {
		return err
	}
	if out.Success {
		w.logger.Info("promo code applied", "code", code)
	} else {
		w.logger.Warn("promo code apply failed", "code", code, "error", out.Err)
	}
	return nil
}

// trySpin performs a paid spin when spins remain (or the wheel state is
// unknown), otherwise logs the last spin time and skips. Failures are logged,
// non-fatal.
func (w *Workflow) trySpin(ctx context.Context, profile *models.Profile) error {
	wheel := profile.WheelOfFortune
	if wheel != nil && wheel.SpinsLeft <= 0 {
		w.logger.Warn("no spins available", "last_spin", wheel.UpdatedAt)
		return nil
	}

	out, err := w.client.Spin(ctx)
	if err != nil {
		return err
	}
	if !out.Success {
		w.logger.Warn("spin failed", "error", out.Err)
		return nil
	}

	var result models.SpinResult
	if err := out.Decode(&result); err == nil && result.Message != "" {
		w.logger.Info(result.Message)
	} else {
		w.logger.Info("spin complete")
	}
	return nil
}
