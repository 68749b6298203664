package wallet

import (
	"github.com/shopspring/decimal"
)

// CoinPackage is a purchasable GigCoin bundle. Payment happens outside the
// platform; an admin credits the package once the payment is confirmed.
type CoinPackage struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Coins      int64           `json:"coins"`
	BonusCoins int64           `json:"bonus_coins"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
	PriceCents int64           `json:"price_cents"`
}

// Total is the number of coins credited for the package
func (p CoinPackage) Total() int64 {
	return p.Coins + p.BonusCoins
}

// UnitPriceUSD is the effective price of one coin, rounded to four places
func (p CoinPackage) UnitPriceUSD() decimal.Decimal {
	return p.PriceUSD.Div(decimal.NewFromInt(p.Total())).Round(4)
}

// CoinPackages is the fixed catalog
var CoinPackages = []CoinPackage{
	{
		ID:         "pouch",
		Name:       "Coin Pouch",
		Coins:      500,
		PriceUSD:   decimal.RequireFromString("4.99"),
		PriceCents: 499,
	},
	{
		ID:         "chest",
		Name:       "Treasure Chest",
		Coins:      1500,
		BonusCoins: 100,
		PriceUSD:   decimal.RequireFromString("14.99"),
		PriceCents: 1499,
	},
	{
		ID:         "vault",
		Name:       "Guild Vault",
		Coins:      5000,
		BonusCoins: 750,
		PriceUSD:   decimal.RequireFromString("44.99"),
		PriceCents: 4499,
	},
	{
		ID:         "hoard",
		Name:       "Dragon Hoard",
		Coins:      12000,
		BonusCoins: 3000,
		PriceUSD:   decimal.RequireFromString("99.99"),
		PriceCents: 9999,
	},
}

// FindPackage looks a package up by id
func FindPackage(id string) (CoinPackage, bool) {
	for _, p := range CoinPackages {
		if p.ID == id {
			return p, true
		}
	}
	return CoinPackage{}, false
}
