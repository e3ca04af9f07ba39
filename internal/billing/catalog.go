// Package billing sells subscription plans through external payment
// providers. It is independent of the try-on workflow.
package billing

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tryon/internal/domain"
)

// Plans is the consumer pricing catalog. Prices are in kopecks.
var Plans = []domain.Plan{
	{
		ID:       "free",
		Name:     "Free",
		NameRu:   "Бесплатно",
		Price:    0,
		Currency: "RUB",
		Interval: domain.IntervalMonth,
		Features: []string{
			"5 try-ons per day",
			"Standard poses",
			"Basic wardrobe",
			"Watermarked images",
		},
		FeaturesRu: []string{
			"5 примерок в день",
			"Стандартные позы",
			"Базовая библиотека",
			"Водяной знак на изображениях",
		},
	},
	{
		ID:       "premium",
		Name:     "Premium",
		NameRu:   "Премиум",
		Price:    69900,
		Currency: "RUB",
		Interval: domain.IntervalMonth,
		Popular:  true,
		Features: []string{
			"Unlimited try-ons",
			"All poses & angles",
			"Upload your clothes",
			"No watermarks",
			"Priority processing",
			"HD quality images",
		},
		FeaturesRu: []string{
			"Неограниченные примерки",
			"Все позы и ракурсы",
			"Загрузка своей одежды",
			"Без водяных знаков",
			"Приоритетная обработка",
			"HD качество изображений",
		},
		StripePriceID: "price_premium_monthly",
		YooKassaID:    "premium_monthly",
	},
	{
		ID:       "pro",
		Name:     "Pro",
		NameRu:   "Про",
		Price:    199900,
		Currency: "RUB",
		Interval: domain.IntervalMonth,
		Features: []string{
			"Everything in Premium",
			"API access",
			"White-label option",
			"E-commerce integration",
			"Analytics & insights",
			"Dedicated support",
		},
		FeaturesRu: []string{
			"Всё из Premium",
			"API доступ",
			"Белая метка",
			"Интеграция с магазинами",
			"Аналитика и статистика",
			"Персональная поддержка",
		},
		StripePriceID: "price_pro_monthly",
		YooKassaID:    "pro_monthly",
	},
}

// BusinessPlans are the B2B tiers. They are sold through sales, not checkout.
var BusinessPlans = []domain.BusinessPlan{
	{
		ID: "starter", Name: "Starter", NameRu: "Старт",
		Price: 1990000, Currency: "RUB", TryOns: 1000,
		Features: []string{"До 1000 примерок/мес", "API интеграция", "Техподдержка 5/2", "Базовая аналитика"},
	},
	{
		ID: "business", Name: "Business", NameRu: "Бизнес",
		Price: 3990000, Currency: "RUB", TryOns: 5000, Popular: true,
		Features: []string{"До 5000 примерок/мес", "Приоритетный API", "Техподдержка 24/7", "Расширенная аналитика", "Кастомизация"},
	},
	{
		ID: "enterprise", Name: "Enterprise", NameRu: "Корпоративный",
		Price: 9990000, Currency: "RUB", TryOns: 20000,
		Features: []string{"До 20000 примерок/мес", "Выделенный сервер", "SLA 99.9%", "Персональный менеджер", "Полная кастомизация", "On-premise опция"},
	},
}

// FindPlan looks a consumer plan up by ID.
func FindPlan(id string) (domain.Plan, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range Plans {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Plan{}, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, id)
}

// PlanView is a plan rendered for one locale.
type PlanView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Amount       int64    `json:"amount"`
	Currency     string   `json:"currency"`
	DisplayPrice string   `json:"display_price"`
	Interval     string   `json:"interval"`
	Features     []string `json:"features"`
	Popular      bool     `json:"popular,omitempty"`
	Free         bool     `json:"free,omitempty"`
}

// BusinessPlanView is a B2B plan rendered for one locale.
type BusinessPlanView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Amount       int64    `json:"amount"`
	Currency     string   `json:"currency"`
	DisplayPrice string   `json:"display_price"`
	TryOns       int      `json:"try_ons"`
	Features     []string `json:"features"`
	Popular      bool     `json:"popular,omitempty"`
}

// Pricing is the full catalog rendered for one locale.
type Pricing struct {
	Locale   string             `json:"locale"`
	Plans    []PlanView         `json:"plans"`
	Business []BusinessPlanView `json:"business"`
}

var pricingMatcher = language.NewMatcher([]language.Tag{language.English, language.Russian})

// Localize renders the catalog for locale ("ru" or "en"; anything else
// falls back to English).
func Localize(locale string) Pricing {
	tag, _ := language.MatchStrings(pricingMatcher, locale)
	base, _ := tag.Base()
	ru := base.String() == "ru"
	printer := message.NewPrinter(tag)

	out := Pricing{Locale: "en"}
	if ru {
		out.Locale = "ru"
	}
	for _, p := range Plans {
		view := PlanView{
			ID:           p.ID,
			Name:         p.Name,
			Amount:       p.Price,
			Currency:     p.Currency,
			DisplayPrice: formatPrice(printer, p.Price, p.Currency),
			Interval:     string(p.Interval),
			Features:     p.Features,
			Popular:      p.Popular,
			Free:         p.IsFree(),
		}
		if ru {
			view.Name = p.NameRu
			view.Features = p.FeaturesRu
		}
		out.Plans = append(out.Plans, view)
	}
	for _, p := range BusinessPlans {
		name := p.Name
		if ru {
			name = p.NameRu
		}
		out.Business = append(out.Business, BusinessPlanView{
			ID:           p.ID,
			Name:         name,
			Amount:       p.Price,
			Currency:     p.Currency,
			DisplayPrice: formatPrice(printer, p.Price, p.Currency),
			TryOns:       p.TryOns,
			Features:     p.Features,
			Popular:      p.Popular,
		})
	}
	return out
}

func formatPrice(p *message.Printer, minor int64, iso string) string {
	unit, err := currency.ParseISO(iso)
	if err != nil {
		return fmt.Sprintf("%s %s", formatMinor(minor), iso)
	}
	return p.Sprint(currency.Symbol(unit.Amount(float64(minor) / 100)))
}

// formatMinor renders minor units with two decimals, e.g. 69900 -> "699.00".
func formatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
