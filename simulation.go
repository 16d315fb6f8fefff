package main

import (
	"context"
	"log"
	"math"
	"time"
)

// Economy scheduler: checks every second and advances each live game
// whose tick cadence has elapsed. One goroutine owns all day ticks so
// no two ticks of the same game can ever interleave.
func startEconomyScheduler(store *Store) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for now := range ticker.C {
			store.mu.Lock()
			for pid, g := range store.Games {
				if !g.GameOver && now.UTC().Sub(g.LastTickAt) >= store.bal.TickEvery {
					runDayTickLocked(store, pid, g, now.UTC())
					g.LastTickAt = now.UTC()
					broadcastSnapshotLocked(store, pid, g)
				}
				if g.News != "" && now.UTC().After(g.NewsExpiresAt) {
					g.News = ""
				}
			}
			store.mu.Unlock()
		}
	}()
}

// Growth scheduler: short-period pass that ripens planted tulips.
// Independent of the day tick; coordinates only through the store.
func startGrowthScheduler(store *Store) {
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for now := range ticker.C {
			store.mu.Lock()
			for _, g := range store.Games {
				if g.Role != RoleFarmer || g.GameOver {
					continue
				}
				advanceGrowthLocked(store, g, now.UTC())
			}
			store.mu.Unlock()
		}
	}()
}

func advanceGrowthLocked(store *Store, g *Game, now time.Time) {
	for i := range g.Plots {
		plot := &g.Plots[i]
		if plot.State == PlotGrowing && now.Sub(plot.PlantedAt) >= store.bal.GrowthTime {
			plot.State = PlotReady
		}
	}
}

func growthProgress(bal Balance, plot Plot, now time.Time) float64 {
	switch plot.State {
	case PlotReady:
		return 1
	case PlotGrowing:
		frac := float64(now.Sub(plot.PlantedAt)) / float64(bal.GrowthTime)
		if frac > 1 {
			return 1
		}
		if frac < 0 {
			return 0
		}
		return frac
	}
	return 0
}

// runDayTickLocked advances one simulated day. The step order matters:
// costs and decay come before the crash checks, and a tick that ends
// the game applies no further gameplay mutation.
func runDayTickLocked(store *Store, pid string, g *Game, now time.Time) {
	if g.GameOver {
		return
	}
	bal := store.bal
	g.Day++

	if g.Role == RoleMerchant {
		dailyCost := bal.ShopCost + g.Stock*bal.StoragePerTulip
		g.Coins = maxInt(0, g.Coins-dailyCost)

		decay := bal.DailyDecay
		if g.StockProtected {
			decay = bal.ProtectedDecay
		}
		g.Stock = int(math.Floor(float64(g.Stock) * (1 - decay)))
		g.StockProtected = false
		g.FlashSaleActive = false
	}

	switch {
	case g.Day < 15:
		g.Hype = clampInt(g.Hype+5, 0, 100)
	case g.Day >= 25:
		g.Hype = clampInt(g.Hype-10, 0, 100)
	default:
		g.Hype = clampInt(g.Hype-2, 0, 100)
	}

	if news := newsFor(store.rng, g.Day, g.Hype); news != "" {
		g.News = news
		g.NewsExpiresAt = now.Add(bal.NewsDuration)
	}

	if g.Role == RoleMerchant && store.rng.Float64() < bal.OfferChance {
		g.Offers = append(g.Offers, generateOffer(bal, store.rng, g.CurrentPrice))
	}

	if shouldCrashEarly(bal, g.Day, g.Hype, store.rng) {
		resolveCrashLocked(store, pid, g, "early")
		return
	}
	if g.Day >= bal.CrashDay {
		resolveCrashLocked(store, pid, g, "scheduled")
		return
	}

	refreshPricesLocked(store, g)
	checkVictoryLocked(store, pid, g)
}

func refreshPricesLocked(store *Store, g *Game) {
	g.CurrentPrice = calculatePrice(store.bal, g.Day, g.Hype)
	g.PriceHistory = append(g.PriceHistory, g.CurrentPrice)
	g.BidPrice = maxInt(1, int(math.Floor(float64(g.CurrentPrice)*0.9)))
	g.AskPrice = maxInt(1, int(math.Floor(float64(g.CurrentPrice)*1.1)))
}

// resolveCrashLocked ends the game. The day is nudged to the crash day
// so the collapsed price lands in the chart, and survival follows the
// role rule: merchants must also have kept their reputation.
func resolveCrashLocked(store *Store, pid string, g *Game, reason string) {
	if g.GameOver {
		return
	}
	g.GameOver = true
	g.CrashReason = reason

	survived := g.Coins >= 0
	if g.Role == RoleMerchant {
		survived = survived && g.Reputation >= store.bal.SurvivalReputation
	}
	g.IsWin = survived

	if g.Day < store.bal.CrashDay {
		g.Day = store.bal.CrashDay
	}
	refreshPricesLocked(store, g)

	if survived {
		setToastLocked(store, pid, "The market collapsed, but you survived!")
	} else {
		setToastLocked(store, pid, "The market collapsed. Tulips lost all value!")
	}
	saveResultLocked(store, pid, g)
}

// checkVictoryLocked applies win-by-wealth. It runs every tick and
// after any action that credits coins, and takes effect immediately.
func checkVictoryLocked(store *Store, pid string, g *Game) {
	if g.GameOver || g.Coins < store.bal.WinningCoins || g.Day >= store.bal.CrashDay {
		return
	}
	g.GameOver = true
	g.IsWin = true
	setToastLocked(store, pid, "You won! Your fortune is made before the crash.")
	saveResultLocked(store, pid, g)
}

func saveResultLocked(store *Store, pid string, g *Game) {
	if g.ResultSaved {
		return
	}
	g.ResultSaved = true
	if store.repo == nil {
		return
	}
	p := store.Players[pid]
	name := "Unknown Trader"
	if p != nil {
		name = p.Name
	}
	result := GameResult{
		PlayerName: name,
		Role:       string(g.Role),
		FinalCoins: g.Coins,
		FinalDay:   g.Day,
		Won:        g.IsWin,
	}
	if err := store.repo.InsertResult(context.Background(), result); err != nil {
		log.Printf("record game result failed: %v", err)
	}
}
