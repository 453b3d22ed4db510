package models

import "time"

// Profile is the account state returned by GET /auth/me.
type Profile struct {
	Username         string            `json:"username"`
	Email            string            `json:"email"`
	Points           float64           `json:"points"`
	XPPoints         float64           `json:"xpPoints"`
	IsWhitelisted    bool              `json:"isWhitelisted"`
	ReferralCode     string            `json:"referralCode"`
	ReferredBy       string            `json:"referredBy"`
	WelcomePromoCode *WelcomePromoCode `json:"welcomePromoCode"`
	WheelOfFortune   *WheelOfFortune   `json:"wheelOfFortune"`
}

// WelcomePromoCode is the welcome promo object attached to a profile. A nil
// pointer on Profile means the code has not been generated yet.
type WelcomePromoCode struct {
	PromoCode   string  `json:"promoCode"`
	IsApplied   bool    `json:"isApplied"`
	PromoPoints float64 `json:"promoPoints"`
}

// WheelOfFortune reports the spin-wheel state for an account. A nil pointer on
// Profile means the account has never spun.
type WheelOfFortune struct {
	SpinsLeft  int       `json:"spinsLeft"`
	SpinPoints float64   `json:"spinPoints"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// WhitelistPoints sums the points earned from spins and the welcome promo.
func (p *Profile) WhitelistPoints() float64 {
	var total float64
	if p.WheelOfFortune != nil {
		total += p.WheelOfFortune.SpinPoints
	}
	if p.WelcomePromoCode != nil {
		total += p.WelcomePromoCode.PromoPoints
	}
	return total
}

// SpinResult is the response body of POST /user/spin.
type SpinResult struct {
	Message string `json:"message"`
}
