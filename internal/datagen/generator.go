//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen generates consistent sample batches for the warehouse:
// a calendar, customers with segment history, products, stores and
// order lines whose timestamps follow a shopping traffic profile.
package datagen

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/datagen/traffic"
	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Config controls the size and shape of a generated dataset.
type Config struct {
	Customers int
	Products  int
	Stores    int

	// Days is the number of trading days, starting at Start.
	Days int

	// Orders is the number of orders on an average weekday.
	Orders int

	// InvalidRatio is the share of order lines deliberately broken.
	InvalidRatio float64

	// ReturnRatio is the share of sale lines later returned.
	ReturnRatio float64

	// ChangeRatio is the share of customers changing segment during the
	// trading period.
	ChangeRatio float64

	Profile  string
	Timezone string
	Seed     uint64
	Start    time.Time
}

// DefaultConfig returns a small dataset covering two weeks.
func DefaultConfig() Config {
	return Config{
		Customers:    200,
		Products:     50,
		Stores:       5,
		Days:         14,
		Orders:       40,
		InvalidRatio: 0.02,
		ReturnRatio:  0.05,
		ChangeRatio:  0.20,
		Profile:      traffic.DefaultProfile,
		Start:        time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Customers < 1 || c.Products < 1 || c.Stores < 1 {
		return fmt.Errorf("customers, products and stores must be at least 1")
	}
	if c.Days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", c.Days)
	}
	if c.Orders < 0 {
		return fmt.Errorf("orders must not be negative, got %d", c.Orders)
	}
	for name, r := range map[string]float64{
		"invalid_ratio": c.InvalidRatio,
		"return_ratio":  c.ReturnRatio,
		"change_ratio":  c.ChangeRatio,
	} {
		if r < 0 || r > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", name, r)
		}
	}
	if c.Start.IsZero() {
		return fmt.Errorf("start date is required")
	}
	return nil
}

// Row is one dimension input row.
type Row[A model.Attributes] struct {
	BusinessKey string
	Attributes  A
	AsOf        time.Time
}

// Defect names how a deliberately invalid fact was broken.
type Defect string

const (
	UnknownCustomer Defect = "unknown_customer"
	OverShipped     Defect = "over_shipped"
	ShippedEarly    Defect = "shipped_before_order"
	NegativeAmount  Defect = "negative_discount"
)

var defects = []Defect{UnknownCustomer, OverShipped, ShippedEarly, NegativeAmount}

// Dataset is a generated batch.
type Dataset struct {
	Dates     []model.Date
	Customers []Row[model.Customer]
	Products  []Row[model.Product]
	Stores    []Row[model.Store]
	Facts     []model.FactInput

	// Defects maps the key of each broken fact to its defect.
	Defects map[model.FactKey]Defect
}

// Batch converts the dataset to a loader batch.
func (d *Dataset) Batch(source string) (*loader.Batch, error) {
	tables := map[string][]dimension.Fields{}
	for _, date := range d.Dates {
		tables[catalog.Dates] = append(tables[catalog.Dates], dimension.FormatDate(date))
	}
	for _, r := range d.Customers {
		tables[catalog.Customers] = append(tables[catalog.Customers],
			dimension.FormatCustomer(r.BusinessKey, r.Attributes, r.AsOf))
	}
	for _, r := range d.Products {
		tables[catalog.Products] = append(tables[catalog.Products],
			dimension.FormatProduct(r.BusinessKey, r.Attributes, r.AsOf))
	}
	for _, r := range d.Stores {
		tables[catalog.Stores] = append(tables[catalog.Stores],
			dimension.FormatStore(r.BusinessKey, r.Attributes, r.AsOf))
	}
	for _, in := range d.Facts {
		tables[catalog.Sales] = append(tables[catalog.Sales], loader.FormatFact(in))
	}

	b := loader.NewBatch(source)
	for name, rows := range tables {
		t, err := loader.NewTable(name, rows)
		if err != nil {
			return nil, err
		}
		b.Add(t)
	}
	return b, nil
}

type pricing struct {
	price decimal.Decimal
	cost  decimal.NullDecimal
}

// Generator builds datasets.
type Generator struct {
	cfg     Config
	faker   *Faker
	profile traffic.Profile

	prices    map[string]pricing
	online    map[string]bool
	customers []Row[model.Customer]
	products  []string
	stores    []string
}

// NewGenerator creates a generator. A zero seed picks a random one.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Profile == "" {
		cfg.Profile = traffic.DefaultProfile
	}
	profile, err := traffic.Get(cfg.Profile, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	cfg.Start = model.Day(cfg.Start)

	faker := NewFaker()
	if cfg.Seed != 0 {
		faker = NewFakerWithSeed(cfg.Seed)
	}
	return &Generator{
		cfg:     cfg,
		faker:   faker,
		profile: profile,
		prices:  make(map[string]pricing),
		online:  make(map[string]bool),
	}, nil
}

// Generate builds a dataset.
func (g *Generator) Generate() *Dataset {
	ds := &Dataset{Defects: make(map[model.FactKey]Defect)}

	ds.Dates = g.dates()
	ds.Products = g.genProducts()
	ds.Stores = g.genStores()
	ds.Customers = g.genCustomers()
	ds.Facts = g.genFacts(ds)

	logging.Info().
		Int("dates", len(ds.Dates)).
		Int("customer_rows", len(ds.Customers)).
		Int("products", len(ds.Products)).
		Int("stores", len(ds.Stores)).
		Int("facts", len(ds.Facts)).
		Int("defects", len(ds.Defects)).
		Str("profile", g.profile.Name()).
		Msg("Generated dataset")
	return ds
}

// trailingDays covers shipping, delivery and returns after the last
// trading day.
const trailingDays = 30

func (g *Generator) lastDay() time.Time {
	return g.cfg.Start.AddDate(0, 0, g.cfg.Days+trailingDays-1)
}

var holidays = map[string]string{
	"01-01": "New Year's Day",
	"02-14": "Valentine's Day",
	"07-04": "Independence Day",
	"10-31": "Halloween",
	"12-24": "Christmas Eve",
	"12-25": "Christmas Day",
	"12-26": "Boxing Day",
	"12-31": "New Year's Eve",
}

func (g *Generator) dates() []model.Date {
	var out []model.Date
	for d := g.cfg.Start; !d.After(g.lastDay()); d = d.AddDate(0, 0, 1) {
		date := model.NewDate(d)
		if name, ok := holidays[d.Format("01-02")]; ok {
			date.IsHoliday = true
			date.HolidayName = name
		}
		out = append(out, date)
	}
	return out
}

var categories = map[string][]string{
	"Kitchen":     {"Cookware", "Appliances", "Tableware"},
	"Electronics": {"Audio", "Computers", "Phones"},
	"Apparel":     {"Menswear", "Womenswear", "Footwear"},
	"Garden":      {"Tools", "Furniture", "Plants"},
	"Toys":        {"Games", "Puzzles", "Outdoor"},
}

var categoryNames = []string{"Apparel", "Electronics", "Garden", "Kitchen", "Toys"}

func (g *Generator) genProducts() []Row[model.Product] {
	rows := make([]Row[model.Product], 0, g.cfg.Products)
	for i := 1; i <= g.cfg.Products; i++ {
		id := fmt.Sprintf("P%05d", i)
		category := Choose(g.faker, categoryNames)
		p := model.Product{
			Name:        g.faker.ProductName(),
			Category:    category,
			Subcategory: Choose(g.faker, categories[category]),
			Brand:       g.faker.Company(),
			Supplier:    g.faker.Company(),
			Color:       g.faker.Color(),
		}
		if category == "Apparel" {
			p.Size = Choose(g.faker, []string{"XS", "S", "M", "L", "XL"})
		}

		price := g.faker.Price(2, 500)
		pr := pricing{price: price}
		// Some suppliers never report cost.
		if !g.faker.Chance(0.1) {
			markup := decimal.NewFromFloat(g.faker.Float64(0.35, 0.8))
			pr.cost = decimal.NewNullDecimal(price.Mul(markup).Round(2))
		}
		g.prices[id] = pr
		g.products = append(g.products, id)
		rows = append(rows, Row[model.Product]{BusinessKey: id, Attributes: p})
	}
	return rows
}

var regions = []string{"Northeast", "Southeast", "Midwest", "Southwest", "West"}

func (g *Generator) genStores() []Row[model.Store] {
	rows := make([]Row[model.Store], 0, g.cfg.Stores)
	for i := 1; i <= g.cfg.Stores; i++ {
		id := fmt.Sprintf("S%03d", i)
		storeType := ChooseWeighted(g.faker, []string{"Retail", "Outlet", "Online"}, []int{6, 2, 2})
		s := model.Store{
			Name:      g.faker.City() + " " + storeType,
			StoreType: storeType,
			City:      g.faker.City(),
			State:     g.faker.State(),
			Country:   "United States",
			Region:    Choose(g.faker, regions),
			OpenDate: g.faker.DateRange(g.cfg.Start.AddDate(-15, 0, 0), g.cfg.Start.AddDate(-1, 0, 0)).
				Format(model.DateLayout),
		}
		if storeType == "Online" {
			g.online[id] = true
		} else {
			s.SquareFeet = g.faker.Int(8, 120) * 500
		}
		g.stores = append(g.stores, id)
		rows = append(rows, Row[model.Store]{BusinessKey: id, Attributes: s})
	}
	return rows
}

var segments = []string{"Standard", "Premium", "VIP", "Business"}

func (g *Generator) genCustomers() []Row[model.Customer] {
	rows := make([]Row[model.Customer], 0, g.cfg.Customers)
	var changes []Row[model.Customer]

	for i := 1; i <= g.cfg.Customers; i++ {
		id := fmt.Sprintf("C%06d", i)
		registered := model.Day(g.faker.DateRange(g.cfg.Start.AddDate(-3, 0, 0), g.cfg.Start))
		c := model.Customer{
			FirstName:        g.faker.FirstName(),
			LastName:         g.faker.LastName(),
			Email:            g.faker.Email(),
			Phone:            g.faker.Phone(),
			City:             g.faker.City(),
			State:            g.faker.State(),
			Country:          "United States",
			Segment:          ChooseWeighted(g.faker, segments, []int{60, 25, 5, 10}),
			RegistrationDate: registered.Format(model.DateLayout),
		}
		row := Row[model.Customer]{BusinessKey: id, Attributes: c, AsOf: registered}
		rows = append(rows, row)
		g.customers = append(g.customers, row)

		if g.cfg.Days > 1 && g.faker.Chance(g.cfg.ChangeRatio) {
			changed := c
			for changed.Segment == c.Segment {
				changed.Segment = Choose(g.faker, segments)
			}
			if g.faker.Chance(0.3) {
				changed.City = g.faker.City()
				changed.State = g.faker.State()
			}
			asOf := g.cfg.Start.AddDate(0, 0, g.faker.Int(1, g.cfg.Days-1))
			changes = append(changes, Row[model.Customer]{BusinessKey: id, Attributes: changed, AsOf: asOf})
		}
	}

	// Changes follow every initial row, so each key's history arrives in
	// date order.
	return append(rows, changes...)
}

func (g *Generator) genFacts(ds *Dataset) []model.FactInput {
	var facts []model.FactInput
	orderSeq := 0

	for day := 0; day < g.cfg.Days; day++ {
		date := g.cfg.Start.AddDate(0, 0, day)
		volume := traffic.DailyVolume(g.profile, date)
		orders := int(math.Round(float64(g.cfg.Orders) * volume))
		weights := traffic.HourlyWeights(g.profile, date)

		for o := 0; o < orders; o++ {
			orderSeq++
			facts = append(facts, g.order(ds, fmt.Sprintf("SO%08d", orderSeq), date, weights)...)
		}
	}
	return facts
}

var (
	hours          = makeHours()
	paymentMethods = []string{"Card", "Cash", "PayPal", "Gift Card"}
	taxRate        = decimal.RequireFromString("0.08")
	shippingFee    = decimal.RequireFromString("4.99")
)

func makeHours() []int {
	h := make([]int, 24)
	for i := range h {
		h[i] = i
	}
	return h
}

func (g *Generator) order(ds *Dataset, orderID string, date time.Time, weights []int) []model.FactInput {
	customer := Choose(g.faker, g.customers)
	store := Choose(g.faker, g.stores)
	online := g.online[store]

	hour := ChooseWeighted(g.faker, hours, weights)
	ordered := date.Add(time.Duration(hour)*time.Hour +
		time.Duration(g.faker.Int(0, 3599))*time.Second).UTC()
	paid := ordered.Add(time.Duration(g.faker.Int(0, 600)) * time.Second)

	payment := Choose(g.faker, paymentMethods)
	if online && payment == "Cash" {
		payment = "Card"
	}
	promotion := ""
	if g.faker.Chance(0.15) {
		promotion = Choose(g.faker, []string{"SPRING10", "WELCOME5", "LOYALTY15"})
	}

	var shipped, delivered *time.Time
	if online {
		s := ordered.AddDate(0, 0, g.faker.Int(1, 3))
		d := s.AddDate(0, 0, g.faker.Int(1, 4))
		shipped, delivered = &s, &d
	} else {
		s := paid
		shipped, delivered = &s, &s
	}

	var lines []model.FactInput
	n := g.faker.Int(1, 4)
	for line := 1; line <= n; line++ {
		product := Choose(g.faker, g.products)
		pr := g.prices[product]
		qty := int64(g.faker.Int(1, 5))
		gross := pr.price.Mul(decimal.NewFromInt(qty))

		discount := decimal.Zero
		if promotion != "" {
			discount = gross.Mul(decimal.NewFromFloat(g.faker.Float64(0.05, 0.15))).Round(2)
		}
		shipping := decimal.Zero
		if online {
			shipping = shippingFee
		}

		in := model.FactInput{
			OrderID:           orderID,
			LineNumber:        line,
			TransactionType:   model.Sale,
			PaymentMethod:     payment,
			PromotionCode:     promotion,
			CustomerRef:       customer.BusinessKey,
			ProductRef:        product,
			StoreRef:          store,
			QuantityOrdered:   qty,
			QuantityShipped:   ptr(qty),
			UnitPrice:         pr.price,
			UnitCost:          pr.cost,
			DiscountAmount:    discount,
			TaxAmount:         gross.Sub(discount).Mul(taxRate).Round(2),
			ShippingAmount:    shipping,
			OrderTimestamp:    ordered,
			PaymentTimestamp:  ptr(paid),
			ShipTimestamp:     shipped,
			DeliveryTimestamp: delivered,
			DataQualityScore:  math.Round(g.faker.Float64(0.85, 1.0)*100) / 100,
		}
		if online {
			in.ShipDateRef = model.Day(*shipped).Format(model.DateLayout)
		}

		if g.faker.Chance(g.cfg.InvalidRatio) {
			defect := Choose(g.faker, defects)
			breakFact(&in, defect)
			ds.Defects[in.Key()] = defect
			lines = append(lines, in)
			continue
		}
		lines = append(lines, in)

		if g.faker.Chance(g.cfg.ReturnRatio) {
			if ret, ok := g.returnOf(in); ok {
				lines = append(lines, ret)
			}
		}
	}
	return lines
}

// returnOf builds the Return line of a delivered sale line. It shares the
// sale's order id and line number.
func (g *Generator) returnOf(sale model.FactInput) (model.FactInput, bool) {
	at := sale.DeliveryTimestamp.AddDate(0, 0, g.faker.Int(1, 14))
	if model.Day(at).After(g.lastDay()) {
		return model.FactInput{}, false
	}
	returned := int64(g.faker.Int(1, int(sale.QuantityOrdered)))

	ret := sale
	ret.TransactionType = model.Return
	ret.PromotionCode = ""
	ret.QuantityReturned = ptr(returned)
	ret.DiscountAmount = decimal.Zero
	ret.ShippingAmount = decimal.Zero
	ret.TaxAmount = decimal.Zero
	ret.OrderTimestamp = at
	ret.PaymentTimestamp = ptr(at)
	ret.ShipTimestamp = nil
	ret.DeliveryTimestamp = nil
	ret.ShipDateRef = ""
	return ret, true
}

func breakFact(in *model.FactInput, d Defect) {
	switch d {
	case UnknownCustomer:
		in.CustomerRef = "C-UNKNOWN"
	case OverShipped:
		in.QuantityShipped = ptr(in.QuantityOrdered + 1)
	case ShippedEarly:
		early := in.OrderTimestamp.Add(-time.Hour)
		in.ShipTimestamp = &early
		in.PaymentTimestamp = nil
	case NegativeAmount:
		in.DiscountAmount = decimal.NewFromInt(-1)
	}
}

func ptr[T any](v T) *T {
	return &v
}
