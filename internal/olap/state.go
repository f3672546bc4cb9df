//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package olap

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/fact"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// LoadState restores empty registries from the DuckDB tables.
func (s *Store) LoadState(ctx context.Context, dims *dimension.Set, facts *fact.Registry) error {
	start := time.Now()

	var customers []customerRow
	if err := s.db.SelectContext(ctx, &customers, `SELECT * FROM dim_customer`); err != nil {
		return fmt.Errorf("failed to load customers: %w", err)
	}
	if err := dims.Customers.Restore(mapRows(customers, customerRow.version)); err != nil {
		return err
	}

	var products []productRow
	if err := s.db.SelectContext(ctx, &products, `SELECT * FROM dim_product`); err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	if err := dims.Products.Restore(mapRows(products, productRow.version)); err != nil {
		return err
	}

	var stores []storeRow
	if err := s.db.SelectContext(ctx, &stores, `SELECT * FROM dim_store`); err != nil {
		return fmt.Errorf("failed to load stores: %w", err)
	}
	if err := dims.Stores.Restore(mapRows(stores, storeRow.version)); err != nil {
		return err
	}

	var dates []dateRow
	if err := s.db.SelectContext(ctx, &dates, `SELECT * FROM dim_date`); err != nil {
		return fmt.Errorf("failed to load dates: %w", err)
	}
	if err := dims.Dates.Restore(mapRows(dates, dateRow.version)); err != nil {
		return err
	}

	var rows []factRow
	if err := s.db.SelectContext(ctx, &rows, selectFactsSQL); err != nil {
		return fmt.Errorf("failed to load facts: %w", err)
	}
	sales := make([]model.SalesFact, 0, len(rows))
	for _, r := range rows {
		f, err := r.fact()
		if err != nil {
			return fmt.Errorf("fact %d: %w", r.SalesKey, err)
		}
		sales = append(sales, f)
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
		Msg("Loaded DuckDB warehouse state")
	return nil
}

func mapRows[R any, A model.Attributes](rows []R, f func(R) model.Version[A]) []model.Version[A] {
	out := make([]model.Version[A], len(rows))
	for i, r := range rows {
		out[i] = f(r)
	}
	return out
}

func restoreColumns[A model.Attributes](key int64, bk string, attrs A, c versionColumns) model.Version[A] {
	v := model.Version[A]{
		SurrogateKey:   key,
		BusinessKey:    bk,
		Attributes:     attrs,
		EffectiveStart: model.Day(c.EffectiveStart),
		IsCurrent:      c.IsCurrent,
	}
	if c.EffectiveEnd != nil {
		end := model.Day(*c.EffectiveEnd)
		v.EffectiveEnd = &end
	}
	return v
}

func (r customerRow) version() model.Version[model.Customer] {
	return restoreColumns(r.CustomerKey, r.CustomerID, model.Customer{
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		Email:            deref(r.Email),
		Phone:            deref(r.Phone),
		City:             deref(r.City),
		State:            deref(r.State),
		Country:          deref(r.Country),
		Segment:          r.Segment,
		RegistrationDate: formatDate(r.RegistrationDate),
	}, r.versionColumns)
}

func (r productRow) version() model.Version[model.Product] {
	return restoreColumns(r.ProductKey, r.ProductID, model.Product{
		Name:        r.Name,
		Category:    r.Category,
		Subcategory: deref(r.Subcategory),
		Brand:       deref(r.Brand),
		Supplier:    deref(r.Supplier),
		Color:       deref(r.Color),
		Size:        deref(r.Size),
	}, r.versionColumns)
}

func (r storeRow) version() model.Version[model.Store] {
	return restoreColumns(r.StoreKey, r.StoreID, model.Store{
		Name:       r.Name,
		StoreType:  r.StoreType,
		City:       r.City,
		State:      deref(r.State),
		Country:    deref(r.Country),
		Region:     deref(r.Region),
		OpenDate:   formatDate(r.OpenDate),
		SquareFeet: r.SquareFeet,
	}, r.versionColumns)
}

func (r dateRow) version() model.Version[model.Date] {
	d := model.NewDate(r.FullDate)
	d.IsHoliday = r.IsHoliday
	d.HolidayName = deref(r.HolidayName)
	return restoreColumns(r.DateKey, d.Date, d, r.versionColumns)
}

// selectFactsSQL casts decimals to text so they scan into factRow.
const selectFactsSQL = `
SELECT sales_key, customer_key, product_key, store_key, order_date_key, ship_date_key,
    order_id, line_number, transaction_type, payment_method, promotion_code,
    quantity_ordered, quantity_shipped, quantity_returned,
    CAST(unit_price AS VARCHAR) AS unit_price,
    CAST(unit_cost AS VARCHAR) AS unit_cost,
    CAST(discount_amount AS VARCHAR) AS discount_amount,
    CAST(tax_amount AS VARCHAR) AS tax_amount,
    CAST(shipping_amount AS VARCHAR) AS shipping_amount,
    CAST(gross_sales AS VARCHAR) AS gross_sales,
    CAST(net_sales AS VARCHAR) AS net_sales,
    CAST(total_cost AS VARCHAR) AS total_cost,
    CAST(gross_profit AS VARCHAR) AS gross_profit,
    CAST(discount_percentage AS VARCHAR) AS discount_percentage,
    CAST(profit_margin_percentage AS VARCHAR) AS profit_margin_percentage,
    CAST(total_amount AS VARCHAR) AS total_amount,
    order_timestamp, payment_timestamp, ship_timestamp, delivery_timestamp,
    data_quality_score, is_processed, load_id, loaded_at
FROM fact_sales
`

func (r factRow) fact() (model.SalesFact, error) {
	tt, err := model.ParseTransactionType(r.TransactionType)
	if err != nil {
		return model.SalesFact{}, err
	}

	var p decimalParser
	f := model.SalesFact{
		SurrogateKey: r.SalesKey,
		Keys: model.DimensionKeys{
			CustomerKey:  r.CustomerKey,
			ProductKey:   r.ProductKey,
			StoreKey:     r.StoreKey,
			OrderDateKey: r.OrderDateKey,
		},
		Input: model.FactInput{
			OrderID:           r.OrderID,
			LineNumber:        r.LineNumber,
			TransactionType:   tt,
			PaymentMethod:     deref(r.PaymentMethod),
			PromotionCode:     deref(r.PromotionCode),
			QuantityOrdered:   r.QuantityOrdered,
			QuantityShipped:   r.QuantityShipped,
			QuantityReturned:  r.QuantityReturned,
			UnitPrice:         p.parse(r.UnitPrice),
			UnitCost:          p.parseNull(r.UnitCost),
			DiscountAmount:    p.parse(r.DiscountAmount),
			TaxAmount:         p.parse(r.TaxAmount),
			ShippingAmount:    p.parse(r.ShippingAmount),
			OrderTimestamp:    r.OrderTimestamp.UTC(),
			PaymentTimestamp:  r.PaymentTimestamp,
			ShipTimestamp:     r.ShipTimestamp,
			DeliveryTimestamp: r.DeliveryTimestamp,
			DataQualityScore:  r.DataQualityScore,
			IsProcessed:       r.IsProcessed,
		},
		LoadID:   r.LoadID,
		LoadedAt: r.LoadedAt.UTC(),
	}
	if r.ShipDateKey != nil {
		f.Keys.ShipDateKey = *r.ShipDateKey
	}
	f.Measures.GrossSales = p.parse(r.GrossSales)
	f.Measures.NetSales = p.parse(r.NetSales)
	f.Measures.TotalCost = p.parseNull(r.TotalCost)
	f.Measures.GrossProfit = p.parseNull(r.GrossProfit)
	f.Measures.DiscountPercentage = p.parseNull(r.DiscountPercentage)
	f.Measures.ProfitMarginPercentage = p.parseNull(r.ProfitMarginPercentage)
	f.Measures.TotalAmount = p.parse(r.TotalAmount)
	return f, p.err
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
	return t.UTC().Format(model.DateLayout)
}
