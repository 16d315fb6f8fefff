package main

import (
	"fmt"
	"math"
	mathrand "math/rand"
	"sync"
	"time"
)

type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleMerchant Role = "merchant"
)

type OfferType string

const (
	OfferFarmer OfferType = "farmer"
	OfferClient OfferType = "client"
)

// Offer is a proposal made to a merchant: a farmer selling tulips to
// the shop, or a client buying from it. Offers expire only by accept
// or reject.
type Offer struct {
	ID       string
	Type     OfferType
	Quantity int
	Price    int
	Name     string
}

type PlotState string

const (
	PlotEmpty   PlotState = "empty"
	PlotGrowing PlotState = "growing"
	PlotReady   PlotState = "ready"
)

// Plot is one square of the farmer's tulip field. Growth is driven by
// the growth scheduler, independent of the day tick.
type Plot struct {
	ID        int
	State     PlotState
	PlantedAt time.Time
}

// Game is the per-player state machine: created at role selection,
// mutated only by the daily tick and the action handlers, discarded on
// restart. All writes happen under the store mutex.
type Game struct {
	Role Role

	Coins        int
	Day          int
	Stock        int
	CurrentPrice int
	PriceHistory []int
	Hype         int
	Reputation   int

	BidPrice int
	AskPrice int
	Offers   []Offer
	Plots    []Plot

	News          string
	NewsExpiresAt time.Time

	FlashSaleActive bool
	StockProtected  bool

	GameOver    bool
	IsWin       bool
	CrashReason string

	StartedAt  time.Time
	LastTickAt time.Time

	ResultSaved bool
}

type Player struct {
	ID       string
	Name     string
	LastSeen time.Time
}

type Store struct {
	mu sync.Mutex

	Players map[string]*Player
	Games   map[string]*Game

	ToastByPlayer map[string]string
	LastActionAt  map[string]time.Time

	bal  Balance
	repo *SQLRepository
	rng  *mathrand.Rand

	// Per-player snapshot subscribers, fed after every tick.
	subscribers map[string]map[chan []byte]struct{}
}

func newStore(bal Balance) *Store {
	return &Store{
		Players:       map[string]*Player{},
		Games:         map[string]*Game{},
		ToastByPlayer: map[string]string{},
		LastActionAt:  map[string]time.Time{},
		bal:           bal,
		rng:           mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		subscribers:   map[string]map[chan []byte]struct{}{},
	}
}

func newGameLocked(store *Store, role Role, now time.Time) *Game {
	bal := store.bal
	plots := make([]Plot, bal.PlotCount)
	for i := range plots {
		plots[i] = Plot{ID: i, State: PlotEmpty}
	}
	return &Game{
		Role:         role,
		Coins:        bal.InitialCoins,
		Day:          1,
		CurrentPrice: bal.BasePrice,
		PriceHistory: []int{bal.BasePrice},
		Hype:         50,
		Reputation:   100,
		BidPrice:     bal.BasePrice,
		AskPrice:     bal.BasePrice + 5,
		Plots:        plots,
		StartedAt:    now,
		LastTickAt:   now,
	}
}

func setToastLocked(store *Store, pid, text string) {
	store.ToastByPlayer[pid] = text
}

func popToastLocked(store *Store, pid string) string {
	msg := store.ToastByPlayer[pid]
	delete(store.ToastByPlayer, pid)
	return msg
}

func peekToastLocked(store *Store, pid string) string {
	return store.ToastByPlayer[pid]
}

// Actions mutate the player's own game but never advance simulated
// time. Time progression belongs to the economy scheduler alone.
func handleActionLocked(store *Store, p *Player, now time.Time, action, id string, amount int) {
	g := store.Games[p.ID]
	if g == nil {
		setToastLocked(store, p.ID, "Choose a role first.")
		return
	}
	if action == "restart" {
		delete(store.Games, p.ID)
		setToastLocked(store, p.ID, "A new season begins.")
		return
	}
	if g.GameOver {
		setToastLocked(store, p.ID, "The market has closed. Restart to trade again.")
		return
	}

	switch action {
	case "plant":
		handlePlantLocked(store, p, g, id)
	case "harvest":
		handleHarvestLocked(store, p, g, now, id)
	case "accept":
		handleAcceptOfferLocked(store, p, g, id)
	case "reject":
		handleRejectOfferLocked(store, p, g, id)
	case "hold":
		handleHoldStockLocked(store, p, g)
	case "flash":
		handleFlashSaleLocked(store, p, g)
	case "sell":
		handleSellAllLocked(store, p, g)
	case "bid":
		handleSetBidLocked(store, p, g, amount)
	case "ask":
		handleSetAskLocked(store, p, g, amount)
	default:
		setToastLocked(store, p.ID, "Unknown action.")
	}
}

func plotByID(g *Game, id string) *Plot {
	for i := range g.Plots {
		if fmt.Sprintf("%d", g.Plots[i].ID) == id {
			return &g.Plots[i]
		}
	}
	return nil
}

func handlePlantLocked(store *Store, p *Player, g *Game, plotID string) {
	if g.Role != RoleFarmer {
		return
	}
	plot := plotByID(g, plotID)
	if plot == nil || plot.State != PlotEmpty {
		return
	}
	if g.Coins < store.bal.PlantCost {
		setToastLocked(store, p.ID, "Not enough florins to plant!")
		return
	}
	g.Coins = maxInt(0, g.Coins-store.bal.PlantCost)
	plot.State = PlotGrowing
	plot.PlantedAt = time.Now().UTC()
	setToastLocked(store, p.ID, "Tulip planted.")
}

func handleHarvestLocked(store *Store, p *Player, g *Game, now time.Time, plotID string) {
	if g.Role != RoleFarmer {
		return
	}
	plot := plotByID(g, plotID)
	if plot == nil || plot.State != PlotReady {
		return
	}
	plot.State = PlotEmpty
	plot.PlantedAt = time.Time{}
	g.Stock++
	setToastLocked(store, p.ID, "Tulip harvested!")
	checkVictoryLocked(store, p.ID, g)
}

func removeOfferLocked(g *Game, offerID string) (Offer, bool) {
	for i, o := range g.Offers {
		if o.ID == offerID {
			g.Offers = append(g.Offers[:i], g.Offers[i+1:]...)
			return o, true
		}
	}
	return Offer{}, false
}

// handleAcceptOfferLocked applies a trade if the merchant can cover it
// and penalizes reputation if not. The offer leaves the board either
// way: a counterparty does not wait around after being answered.
func handleAcceptOfferLocked(store *Store, p *Player, g *Game, offerID string) {
	if g.Role != RoleMerchant {
		return
	}
	offer, ok := removeOfferLocked(g, offerID)
	if !ok {
		setToastLocked(store, p.ID, "That offer is gone.")
		return
	}

	if offer.Type == OfferFarmer {
		totalCost := offer.Price * offer.Quantity
		if g.Coins < totalCost {
			g.Reputation = clampInt(g.Reputation-5, 0, 100)
			setToastLocked(store, p.ID, "Not enough florins!")
			return
		}
		g.Coins -= totalCost
		g.Stock += offer.Quantity
		g.Reputation = clampInt(g.Reputation+2, 0, 100)
		setToastLocked(store, p.ID, fmt.Sprintf("Bought %d tulips from %s!", offer.Quantity, offer.Name))
		return
	}

	if g.Stock < offer.Quantity {
		g.Reputation = clampInt(g.Reputation-5, 0, 100)
		setToastLocked(store, p.ID, "Not enough stock!")
		return
	}
	g.Coins += offer.Price * offer.Quantity
	g.Stock -= offer.Quantity
	g.Reputation = clampInt(g.Reputation+3, 0, 100)
	setToastLocked(store, p.ID, fmt.Sprintf("Sold %d tulips to %s!", offer.Quantity, offer.Name))
	checkVictoryLocked(store, p.ID, g)
}

func handleRejectOfferLocked(store *Store, p *Player, g *Game, offerID string) {
	if g.Role != RoleMerchant {
		return
	}
	if _, ok := removeOfferLocked(g, offerID); !ok {
		return
	}
	g.Reputation = clampInt(g.Reputation-1, 0, 100)
	setToastLocked(store, p.ID, "Offer rejected.")
}

func handleHoldStockLocked(store *Store, p *Player, g *Game) {
	if g.Role != RoleMerchant {
		return
	}
	if g.Coins < store.bal.HoldStockCost {
		setToastLocked(store, p.ID, "Not enough florins!")
		return
	}
	g.Coins -= store.bal.HoldStockCost
	g.StockProtected = true
	setToastLocked(store, p.ID, "Stock protected until tomorrow.")
}

func handleFlashSaleLocked(store *Store, p *Player, g *Game) {
	if g.Role != RoleMerchant {
		return
	}
	if g.Stock == 0 {
		setToastLocked(store, p.ID, "No stock available!")
		return
	}
	if g.FlashSaleActive {
		return
	}
	g.FlashSaleActive = true
	g.AskPrice = int(math.Floor(float64(g.AskPrice) * (1 - store.bal.FlashSaleDiscount)))
	if g.AskPrice < 1 {
		g.AskPrice = 1
	}
	setToastLocked(store, p.ID, "Flash sale activated!")
}

func handleSellAllLocked(store *Store, p *Player, g *Game) {
	if g.Stock == 0 {
		setToastLocked(store, p.ID, "No tulips to sell!")
		return
	}
	sellPrice := g.CurrentPrice
	if g.Role == RoleMerchant {
		sellPrice = g.AskPrice
	}
	g.Coins += g.Stock * sellPrice
	g.Stock = 0
	setToastLocked(store, p.ID, "Sold all stock!")
	checkVictoryLocked(store, p.ID, g)
}

func handleSetBidLocked(store *Store, p *Player, g *Game, price int) {
	if g.Role != RoleMerchant {
		return
	}
	g.BidPrice = maxInt(1, price)
	setToastLocked(store, p.ID, fmt.Sprintf("Bid set to %d.", g.BidPrice))
}

func handleSetAskLocked(store *Store, p *Player, g *Game, price int) {
	if g.Role != RoleMerchant {
		return
	}
	g.AskPrice = maxInt(1, price)
	setToastLocked(store, p.ID, fmt.Sprintf("Ask set to %d.", g.AskPrice))
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
