package domain

// Interval is the billing period of a plan.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Plan is a purchasable subscription tier. Price is expressed in minor
// currency units (kopecks for RUB).
type Plan struct {
	ID            string
	Name          string
	NameRu        string
	Price         int64
	Currency      string
	Interval      Interval
	Features      []string
	FeaturesRu    []string
	Popular       bool
	StripePriceID string
	YooKassaID    string
}

// IsFree reports whether the plan costs nothing.
func (p Plan) IsFree() bool { return p.Price <= 0 }

// BusinessPlan is a B2B tier sold by monthly try-on volume.
type BusinessPlan struct {
	ID       string
	Name     string
	NameRu   string
	Price    int64
	Currency string
	TryOns   int
	Popular  bool
	Features []string
}
