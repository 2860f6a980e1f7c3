package paystack

import (
	"sort"
	"strings"
)

// supportedCurrencies are the currencies Paystack can settle.
var supportedCurrencies = map[string]struct{}{
	"NGN": {},
	"GHS": {},
	"ZAR": {},
	"USD": {},
	"KES": {},
}

// minimumAuthorizationAmounts are the smallest chargeable amounts per
// currency, in minor units. Used when a subscription's first charge would
// otherwise be zero: Paystack requires a real transaction to obtain a card
// authorization, so we charge the minimum and refund it after confirmation.
var minimumAuthorizationAmounts = map[string]int64{
	"NGN": 5000,
	"GHS": 10,
	"ZAR": 100,
	"KES": 300,
	"USD": 200,
}

const defaultMinimumAuthorizationAmount int64 = 100

// SupportedCurrencies returns the settleable currency codes, sorted.
func SupportedCurrencies() []string {
	codes := make([]string, 0, len(supportedCurrencies))
	for code := range supportedCurrencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// SupportsCurrency reports whether Paystack settles the given currency.
func SupportsCurrency(currency string) bool {
	_, ok := supportedCurrencies[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// MinimumAuthorizationAmount returns the minimum chargeable amount for a
// currency in minor units.
func MinimumAuthorizationAmount(currency string) int64 {
	if amount, ok := minimumAuthorizationAmounts[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return amount
	}
	return defaultMinimumAuthorizationAmount
}
