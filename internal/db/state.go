//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/fact"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// HasRows reports whether any dimension or fact row is stored.
func HasRows(ctx context.Context, db DB) (bool, error) {
	var found bool
	err := db.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM dim_date)
            OR EXISTS (SELECT 1 FROM dim_customer)
            OR EXISTS (SELECT 1 FROM dim_product)
            OR EXISTS (SELECT 1 FROM dim_store)
            OR EXISTS (SELECT 1 FROM fact_sales)`).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check for stored rows: %w", err)
	}
	return found, nil
}

// LoadState restores the registries from the warehouse so surrogate key
// sequences and duplicate detection continue where the previous run left
// off. The registries must be empty.
func LoadState(ctx context.Context, db DB, dims *dimension.Set, facts *fact.Registry) error {
	start := time.Now()

	customers, err := loadVersions(ctx, db, `
        SELECT customer_key, customer_id, first_name, last_name, email, phone, city,
               state, country, segment, registration_date,
               effective_start, effective_end, is_current
        FROM dim_customer`, scanCustomer)
	if err != nil {
		return fmt.Errorf("failed to load customers: %w", err)
	}
	if err := dims.Customers.Restore(customers); err != nil {
		return err
	}

	products, err := loadVersions(ctx, db, `
        SELECT product_key, product_id, name, category, subcategory, brand, supplier,
               color, size, effective_start, effective_end, is_current
        FROM dim_product`, scanProduct)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	if err := dims.Products.Restore(products); err != nil {
		return err
	}

	stores, err := loadVersions(ctx, db, `
        SELECT store_key, store_id, name, store_type, city, state, country, region,
               open_date, COALESCE(square_feet, 0), effective_start, effective_end, is_current
        FROM dim_store`, scanStore)
	if err != nil {
		return fmt.Errorf("failed to load stores: %w", err)
	}
	if err := dims.Stores.Restore(stores); err != nil {
		return err
	}

	dates, err := loadVersions(ctx, db, `
        SELECT date_key, full_date, is_holiday, holiday_name,
               effective_start, effective_end, is_current
        FROM dim_date`, scanDate)
	if err != nil {
		return fmt.Errorf("failed to load dates: %w", err)
	}
	if err := dims.Dates.Restore(dates); err != nil {
		return err
	}

	sales, err := loadFacts(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to load facts: %w", err)
	}
	if err := facts.Restore(sales); err != nil {
		return err
	}

	logging.Info().
		Int("customers", len(customers)).
		Int("products", len(products)).
		Int("stores", len(stores)).
		Int("dates", len(dates)).
		Int("facts", len(sales)).
		Dur("duration", time.Since(start)).
		Msg("Loaded warehouse state")
	return nil
}

func loadVersions[A model.Attributes](ctx context.Context, db DB, sql string,
	scan func(pgx.Rows) (model.Version[A], error)) ([]model.Version[A], error) {
	rows, err := db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Version[A]
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanCustomer(rows pgx.Rows) (model.Version[model.Customer], error) {
	var (
		v                                  model.Version[model.Customer]
		email, phone, city, state, country *string
		registered                         *time.Time
	)
	err := rows.Scan(&v.SurrogateKey, &v.BusinessKey, &v.Attributes.FirstName,
		&v.Attributes.LastName, &email, &phone, &city, &state, &country,
		&v.Attributes.Segment, &registered, &v.EffectiveStart, &v.EffectiveEnd, &v.IsCurrent)
	if err != nil {
		return v, err
	}
	v.Attributes.Email = deref(email)
	v.Attributes.Phone = deref(phone)
	v.Attributes.City = deref(city)
	v.Attributes.State = deref(state)
	v.Attributes.Country = deref(country)
	v.Attributes.RegistrationDate = formatDate(registered)
	normalize(&v.EffectiveStart, v.EffectiveEnd)
	return v, nil
}

func scanProduct(rows pgx.Rows) (model.Version[model.Product], error) {
	var (
		v                                         model.Version[model.Product]
		subcategory, brand, supplier, color, size *string
	)
	err := rows.Scan(&v.SurrogateKey, &v.BusinessKey, &v.Attributes.Name, &v.Attributes.Category,
		&subcategory, &brand, &supplier, &color, &size,
		&v.EffectiveStart, &v.EffectiveEnd, &v.IsCurrent)
	if err != nil {
		return v, err
	}
	v.Attributes.Subcategory = deref(subcategory)
	v.Attributes.Brand = deref(brand)
	v.Attributes.Supplier = deref(supplier)
	v.Attributes.Color = deref(color)
	v.Attributes.Size = deref(size)
	normalize(&v.EffectiveStart, v.EffectiveEnd)
	return v, nil
}

func scanStore(rows pgx.Rows) (model.Version[model.Store], error) {
	var (
		v                      model.Version[model.Store]
		state, country, region *string
		opened                 *time.Time
	)
	err := rows.Scan(&v.SurrogateKey, &v.BusinessKey, &v.Attributes.Name, &v.Attributes.StoreType,
		&v.Attributes.City, &state, &country, &region, &opened, &v.Attributes.SquareFeet,
		&v.EffectiveStart, &v.EffectiveEnd, &v.IsCurrent)
	if err != nil {
		return v, err
	}
	v.Attributes.State = deref(state)
	v.Attributes.Country = deref(country)
	v.Attributes.Region = deref(region)
	v.Attributes.OpenDate = formatDate(opened)
	normalize(&v.EffectiveStart, v.EffectiveEnd)
	return v, nil
}

// scanDate rebuilds the calendar breakdown from the date itself.
func scanDate(rows pgx.Rows) (model.Version[model.Date], error) {
	var (
		v           model.Version[model.Date]
		day         time.Time
		holiday     bool
		holidayName *string
	)
	err := rows.Scan(&v.SurrogateKey, &day, &holiday, &holidayName,
		&v.EffectiveStart, &v.EffectiveEnd, &v.IsCurrent)
	if err != nil {
		return v, err
	}
	v.Attributes = model.NewDate(day)
	v.Attributes.IsHoliday = holiday
	v.Attributes.HolidayName = deref(holidayName)
	v.BusinessKey = v.Attributes.Date
	normalize(&v.EffectiveStart, v.EffectiveEnd)
	return v, nil
}

func loadFacts(ctx context.Context, db DB) ([]model.SalesFact, error) {
	rows, err := db.Query(ctx, `
        SELECT sales_key, customer_key, product_key, store_key, order_date_key,
               COALESCE(ship_date_key, 0), order_id, line_number, transaction_type,
               payment_method, promotion_code, quantity_ordered, quantity_shipped,
               quantity_returned, unit_price::text, unit_cost::text,
               discount_amount::text, tax_amount::text, shipping_amount::text,
               gross_sales::text, net_sales::text, total_cost::text, gross_profit::text,
               discount_percentage::text, profit_margin_percentage::text, total_amount::text,
               order_timestamp, payment_timestamp, ship_timestamp, delivery_timestamp,
               data_quality_score, is_processed, load_id, loaded_at
        FROM fact_sales`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SalesFact
	for rows.Next() {
		var (
			f                                           model.SalesFact
			tt                                          string
			paymentMethod, promotionCode                *string
			unitPrice, discount, tax, shipping          string
			gross, net, total                           string
			unitCost, cost, profit, discountPct, margin *string
		)
		in := &f.Input
		err := rows.Scan(&f.SurrogateKey, &f.Keys.CustomerKey, &f.Keys.ProductKey, &f.Keys.StoreKey,
			&f.Keys.OrderDateKey, &f.Keys.ShipDateKey, &in.OrderID, &in.LineNumber, &tt,
			&paymentMethod, &promotionCode, &in.QuantityOrdered, &in.QuantityShipped,
			&in.QuantityReturned, &unitPrice, &unitCost, &discount, &tax, &shipping,
			&gross, &net, &cost, &profit, &discountPct, &margin, &total,
			&in.OrderTimestamp, &in.PaymentTimestamp, &in.ShipTimestamp, &in.DeliveryTimestamp,
			&in.DataQualityScore, &in.IsProcessed, &f.LoadID, &f.LoadedAt)
		if err != nil {
			return nil, err
		}

		if in.TransactionType, err = model.ParseTransactionType(tt); err != nil {
			return nil, fmt.Errorf("fact %d: %w", f.SurrogateKey, err)
		}
		in.OrderTimestamp = in.OrderTimestamp.UTC()
		in.PaymentMethod = deref(paymentMethod)
		in.PromotionCode = deref(promotionCode)

		var p decimalParser
		in.UnitPrice = p.parse(unitPrice)
		in.UnitCost = p.parseNull(unitCost)
		in.DiscountAmount = p.parse(discount)
		in.TaxAmount = p.parse(tax)
		in.ShippingAmount = p.parse(shipping)
		f.Measures.GrossSales = p.parse(gross)
		f.Measures.NetSales = p.parse(net)
		f.Measures.TotalCost = p.parseNull(cost)
		f.Measures.GrossProfit = p.parseNull(profit)
		f.Measures.DiscountPercentage = p.parseNull(discountPct)
		f.Measures.ProfitMarginPercentage = p.parseNull(margin)
		f.Measures.TotalAmount = p.parse(total)
		if p.err != nil {
			return nil, fmt.Errorf("fact %d: %w", f.SurrogateKey, p.err)
		}

		out = append(out, f)
	}
	return out, rows.Err()
}

// decimalParser keeps the first parse error.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func (p *decimalParser) parseNull(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.parse(*s))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(model.DateLayout)
}

// normalize puts DATE values into the UTC midnight form the registries use.
func normalize(start *time.Time, end *time.Time) {
	*start = model.Day(*start)
	if end != nil {
		*end = model.Day(*end)
	}
}
