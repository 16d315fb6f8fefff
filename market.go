package main

import (
	"fmt"
	"math"
	mathrand "math/rand"

	"github.com/google/uuid"
)

// Price formation runs in three regimes over the life of the bubble:
// steady growth, a volatile peak driven by a deterministic sine wobble,
// and a decline toward the crash. Hype scales the whole curve through
// hypeMult in [1.0, 2.0]. At crashDay and beyond the market is worth a
// tenth of the base price no matter what.
func calculatePrice(bal Balance, day, hype int) int {
	if day >= bal.CrashDay {
		return int(math.Floor(float64(bal.BasePrice) * 0.1))
	}
	base := float64(bal.BasePrice)
	hypeMult := 1 + float64(hype)/100

	var price float64
	switch {
	case day < 15:
		price = base * (1 + float64(day)*0.3) * hypeMult
	case day < 25:
		price = (base*5 + math.Sin(float64(day))*20) * hypeMult
	default:
		price = base * 5 * (1 - float64(day-25)*0.15) * hypeMult
	}
	if price < 0 {
		return 0
	}
	return int(math.Floor(price))
}

// crashHypeMultiplier maps hype in [0,100] onto [0.8, 1.4].
func crashHypeMultiplier(hype int) float64 {
	return 0.8 + float64(hype)/100*0.6
}

// earlyCrashProbability returns the chance of a stochastic collapse on
// the given day: zero before the start day, then a base rate climbing
// per day, a panic bonus late in the bubble, scaled by hype and capped.
func earlyCrashProbability(bal Balance, day, hype int) float64 {
	if day < bal.EarlyCrashStartDay {
		return 0
	}
	p := bal.EarlyCrashBase + float64(day-bal.EarlyCrashStartDay)*bal.EarlyCrashPerDay
	if day >= bal.EarlyCrashPanicDay {
		p += bal.EarlyCrashPanicBonus
	}
	p *= crashHypeMultiplier(hype)
	if p > bal.EarlyCrashMax {
		p = bal.EarlyCrashMax
	}
	return p
}

func shouldCrashEarly(bal Balance, day, hype int, rng *mathrand.Rand) bool {
	p := earlyCrashProbability(bal, day, hype)
	if p <= 0 {
		return false
	}
	return rng.Float64() < p
}

var farmerNames = []string{"Hans", "Pieter", "Jan", "Willem", "Dirk"}
var clientNames = []string{"Burgomaster", "Wealthy Merchant", "Noble", "Banker"}

// generateOffer produces a random trade proposal for a merchant.
// Farmers offer to sell below market, clients offer to buy above it.
func generateOffer(bal Balance, rng *mathrand.Rand, currentPrice int) Offer {
	if rng.Float64() < 0.5 {
		return Offer{
			ID:       fmt.Sprintf("farmer-%s", uuid.NewString()),
			Type:     OfferFarmer,
			Quantity: rng.Intn(bal.FarmerQtyMax) + 1,
			Price:    int(math.Floor(float64(currentPrice) * (bal.FarmerPriceBase + rng.Float64()*bal.FarmerPriceSpan))),
			Name:     farmerNames[rng.Intn(len(farmerNames))],
		}
	}
	return Offer{
		ID:       fmt.Sprintf("client-%s", uuid.NewString()),
		Type:     OfferClient,
		Quantity: rng.Intn(bal.ClientQtyMax) + 1,
		Price:    int(math.Floor(float64(currentPrice) * (bal.ClientPriceBase + rng.Float64()*bal.ClientPriceSpan))),
		Name:     clientNames[rng.Intn(len(clientNames))],
	}
}

var panicNews = []string{
	"Collapse rumors are spreading!",
	"Panic among investors!",
	"Signs of market saturation!",
}

var hypeNews = []string{
	"Tulipmania reaches a new peak!",
	"Fortunes are being made from tulips!",
	"Nobles are paying fortunes for rare bulbs!",
}

// newsFor picks a flavor headline for the day, or returns "" when the
// market has nothing to say. News never feeds back into the simulation.
func newsFor(rng *mathrand.Rand, day, hype int) string {
	switch {
	case day >= 25:
		return panicNews[rng.Intn(len(panicNews))]
	case day >= 20:
		return "Analysts question price sustainability."
	case day >= 15:
		return hypeNews[rng.Intn(len(hypeNews))]
	case hype > 70:
		return "Tulip demand keeps growing!"
	}
	return ""
}
