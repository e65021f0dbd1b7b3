package main

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/soulart-temple/backend/internal/catalog"
	"github.com/soulart-temple/backend/internal/models"
)

func TestNewCatalogDefaults(t *testing.T) {
	cat := newCatalog()

	if got := cat.LimitFor(models.TierPremium, models.FeatureGuideChat); got.N != catalog.DefaultGuideDailyLimit {
		t.Fatalf("guide limit = %v, want %d", got, catalog.DefaultGuideDailyLimit)
	}
	if got := cat.GuestLimitFor(models.FeaturePatternDecoder); got.N != catalog.DefaultDecoderLifetimeLimit {
		t.Fatalf("decoder limit = %v, want %d", got, catalog.DefaultDecoderLifetimeLimit)
	}
}

func TestNewCatalogReadsServerLimits(t *testing.T) {
	t.Setenv("GUIDE_DAILY_LIMIT", "10")
	t.Setenv("DECODER_LIFETIME_LIMIT", "5")

	cat := newCatalog()

	if got := cat.LimitFor(models.TierPremium, models.FeatureGuideChat); got.Kind != catalog.DailyLimited || got.N != 10 {
		t.Fatalf("guide limit = %v, want daily_limited(10)", got)
	}
	if got := cat.LimitFor(models.TierFree, models.FeaturePatternDecoder); got.N != 5 {
		t.Fatalf("decoder limit = %v, want 5", got)
	}
	if got := cat.GuestLimitFor(models.FeaturePatternDecoder); got.N != 5 {
		t.Fatalf("guest decoder limit = %v, want 5", got)
	}
	if viper.GetInt("guide_daily_limit") != 10 {
		t.Fatal("expected GUIDE_DAILY_LIMIT to reach viper")
	}
}
