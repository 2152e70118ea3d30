package services

import (
	"github.com/shopspring/decimal"
)

// MarketOdds holds display odds and implied probabilities for both sides of
// a market. Probabilities are percentages; odds are decimal odds. Both are
// rounded to 2 decimal places.
type MarketOdds struct {
	YesOdds        decimal.Decimal `json:"yes_odds"`
	NoOdds         decimal.Decimal `json:"no_odds"`
	YesProbability decimal.Decimal `json:"yes_probability"`
	NoProbability  decimal.Decimal `json:"no_probability"`
}

var (
	evenOdds        = decimal.NewFromInt(2)
	evenProbability = decimal.NewFromInt(50)
	hundred         = decimal.NewFromInt(100)
)

// CalculateOdds computes current odds from a read-only snapshot of the pool
// totals. Pure and deterministic; safe to call concurrently. An empty
// market (no stake on either side) yields even odds by definition rather
// than an error.
func CalculateOdds(yesPool, noPool decimal.Decimal) MarketOdds {
	totalPool := yesPool.Add(noPool)
	if totalPool.IsZero() {
		return MarketOdds{
			YesOdds:        evenOdds,
			NoOdds:         evenOdds,
			YesProbability: evenProbability,
			NoProbability:  evenProbability,
		}
	}

	yesProb := yesPool.Div(totalPool)
	noProb := noPool.Div(totalPool)

	// Decimal odds are the inverse probability; a side nobody staked on has
	// no quotable price and reports 0.
	var yesOdds, noOdds decimal.Decimal
	if yesProb.IsPositive() {
		yesOdds = decimal.NewFromInt(1).Div(yesProb)
	}
	if noProb.IsPositive() {
		noOdds = decimal.NewFromInt(1).Div(noProb)
	}

	return MarketOdds{
		YesOdds:        yesOdds.Round(2),
		NoOdds:         noOdds.Round(2),
		YesProbability: yesProb.Mul(hundred).Round(2),
		NoProbability:  noProb.Mul(hundred).Round(2),
	}
}
