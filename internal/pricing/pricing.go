package pricing

import "strings"

// Estimator computes suggested taxi fares from free-form route input.
type Estimator struct {
	baseFare int64
}

// NewEstimator returns an estimator with the configured base fare.
func NewEstimator(baseFare int64) *Estimator {
	if baseFare <= 0 {
		baseFare = 100
	}
	return &Estimator{baseFare: baseFare}
}

// surcharges maps route keywords to additions over the base fare. The first
// match per endpoint wins.
var surcharges = []struct {
	keyword string
	amount  int64
}{
	{"аэропорт", 200},
	{"airport", 200},
	{"вокзал", 50},
	{"дача", 150},
	{"пригород", 150},
	{"рынок", 30},
}

// TaxiFare returns the suggested fare for a pickup/destination pair.
func (e *Estimator) TaxiFare(from, to string) int64 {
	fare := e.baseFare
	fare += endpointSurcharge(from)
	fare += endpointSurcharge(to)
	return fare
}

func endpointSurcharge(endpoint string) int64 {
	lowered := strings.ToLower(endpoint)
	for _, s := range surcharges {
		if strings.Contains(lowered, s.keyword) {
			return s.amount
		}
	}
	return 0
}

// DriverCommission returns the commission charged to a driver for taking an
// order. Promo mode waives commissions entirely; a custom price below the
// threshold halves the standard rate.
func DriverCommission(price, standard, threshold int64, promo bool) int64 {
	if promo {
		return 0
	}
	if threshold > 0 && price > 0 && price < threshold {
		return standard / 2
	}
	return standard
}

// CafeCommission returns the percentage commission a cafe owes on an
// accepted order, rounded down.
func CafeCommission(total, percent int64, promo bool) int64 {
	if promo || percent <= 0 || total <= 0 {
		return 0
	}
	return total * percent / 100
}
