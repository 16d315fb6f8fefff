package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Balance holds every gameplay tuning knob. Defaults reproduce the
// canonical rule set; a YAML file named by TULIP_BALANCE_PATH may
// override any subset of fields.
type Balance struct {
	InitialCoins int `yaml:"initial_coins"`
	BasePrice    int `yaml:"base_price"`
	WinningCoins int `yaml:"winning_coins"`
	CrashDay     int `yaml:"crash_day"`

	ShopCost          int     `yaml:"shop_cost"`
	StoragePerTulip   int     `yaml:"storage_per_tulip"`
	DailyDecay        float64 `yaml:"daily_decay"`
	ProtectedDecay    float64 `yaml:"protected_decay"`
	HoldStockCost     int     `yaml:"hold_stock_cost"`
	FlashSaleDiscount float64 `yaml:"flash_sale_discount"`

	PlantCost  int `yaml:"plant_cost"`
	PlotCount  int `yaml:"plot_count"`
	GrowthTime time.Duration `yaml:"growth_time"`

	SurvivalReputation int `yaml:"survival_reputation"`

	OfferChance      float64 `yaml:"offer_chance"`
	FarmerQtyMax     int     `yaml:"farmer_qty_max"`
	ClientQtyMax     int     `yaml:"client_qty_max"`
	FarmerPriceBase  float64 `yaml:"farmer_price_base"`
	FarmerPriceSpan  float64 `yaml:"farmer_price_span"`
	ClientPriceBase  float64 `yaml:"client_price_base"`
	ClientPriceSpan  float64 `yaml:"client_price_span"`

	EarlyCrashStartDay   int     `yaml:"early_crash_start_day"`
	EarlyCrashBase       float64 `yaml:"early_crash_base"`
	EarlyCrashPerDay     float64 `yaml:"early_crash_per_day"`
	EarlyCrashPanicDay   int     `yaml:"early_crash_panic_day"`
	EarlyCrashPanicBonus float64 `yaml:"early_crash_panic_bonus"`
	EarlyCrashMax        float64 `yaml:"early_crash_max"`

	TickEvery    time.Duration `yaml:"tick_every"`
	NewsDuration time.Duration `yaml:"news_duration"`
}

func defaultBalance() Balance {
	return Balance{
		InitialCoins: 1000,
		BasePrice:    20,
		WinningCoins: 5000,
		CrashDay:     30,

		ShopCost:          30,
		StoragePerTulip:   2,
		DailyDecay:        0.08,
		ProtectedDecay:    0.04,
		HoldStockCost:     50,
		FlashSaleDiscount: 0.20,

		PlantCost:  10,
		PlotCount:  6,
		GrowthTime: 5 * time.Second,

		SurvivalReputation: 60,

		OfferChance:     0.70,
		FarmerQtyMax:    5,
		ClientQtyMax:    3,
		FarmerPriceBase: 0.7,
		FarmerPriceSpan: 0.3,
		ClientPriceBase: 1.1,
		ClientPriceSpan: 0.4,

		EarlyCrashStartDay:   18,
		EarlyCrashBase:       0.02,
		EarlyCrashPerDay:     0.006,
		EarlyCrashPanicDay:   25,
		EarlyCrashPanicBonus: 0.05,
		EarlyCrashMax:        0.30,

		TickEvery:    8 * time.Second,
		NewsDuration: 6 * time.Second,
	}
}

func loadBalanceFromEnv() (Balance, error) {
	// Missing .env is fine; explicit files must parse.
	_ = godotenv.Load()

	bal := defaultBalance()
	path := os.Getenv("TULIP_BALANCE_PATH")
	if path == "" {
		return bal, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return bal, fmt.Errorf("read balance file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &bal); err != nil {
		return bal, fmt.Errorf("parse balance file %s: %w", path, err)
	}
	return bal, bal.validate()
}

func (b Balance) validate() error {
	if b.BasePrice <= 0 {
		return fmt.Errorf("base_price must be positive, got %d", b.BasePrice)
	}
	if b.CrashDay <= b.EarlyCrashStartDay {
		return fmt.Errorf("crash_day %d must follow early_crash_start_day %d", b.CrashDay, b.EarlyCrashStartDay)
	}
	if b.DailyDecay < 0 || b.DailyDecay > 1 || b.ProtectedDecay < 0 || b.ProtectedDecay > 1 {
		return fmt.Errorf("decay rates must be in [0,1]")
	}
	if b.EarlyCrashMax <= 0 || b.EarlyCrashMax > 1 {
		return fmt.Errorf("early_crash_max must be in (0,1], got %v", b.EarlyCrashMax)
	}
	if b.PlotCount <= 0 {
		return fmt.Errorf("plot_count must be positive, got %d", b.PlotCount)
	}
	if b.TickEvery <= 0 || b.GrowthTime <= 0 {
		return fmt.Errorf("tick_every and growth_time must be positive")
	}
	return nil
}
