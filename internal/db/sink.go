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
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/measures"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Sink writes accepted rows to PostgreSQL. Dimension rows are upserted by
// surrogate key so closing a customer version rewrites its row; an upsert
// never changes the business key a surrogate key belongs to. Surrogate
// keys come from per-table sequences shared by every loader.
type Sink struct {
	db DB
}

var (
	_ loader.Sink     = (*Sink)(nil)
	_ model.KeySource = (*Sink)(nil)
)

// NewSink creates a Sink on db.
func NewSink(db DB) *Sink {
	return &Sink{db: db}
}

// NextKey draws the next surrogate key of table from its sequence.
func (s *Sink) NextKey(ctx context.Context, table string) (int64, error) {
	def, err := catalog.ByTable(table)
	if err != nil {
		return 0, err
	}
	var sk int64
	if err := s.db.QueryRow(ctx, `SELECT nextval($1::regclass)`, def.KeySequence()).Scan(&sk); err != nil {
		return 0, fmt.Errorf("failed to draw key from %s: %w", def.KeySequence(), err)
	}
	return sk, nil
}

// WriteCustomer upserts customer versions in one transaction.
func (s *Sink) WriteCustomer(ctx context.Context, vs ...model.Version[model.Customer]) error {
	return writeVersions(ctx, s.db, vs, writeCustomer)
}

// WriteProduct upserts product rows in one transaction.
func (s *Sink) WriteProduct(ctx context.Context, vs ...model.Version[model.Product]) error {
	return writeVersions(ctx, s.db, vs, writeProduct)
}

// WriteStore upserts store rows in one transaction.
func (s *Sink) WriteStore(ctx context.Context, vs ...model.Version[model.Store]) error {
	return writeVersions(ctx, s.db, vs, writeStore)
}

// WriteDate upserts date rows in one transaction.
func (s *Sink) WriteDate(ctx context.Context, vs ...model.Version[model.Date]) error {
	return writeVersions(ctx, s.db, vs, writeDate)
}

func writeVersions[A model.Attributes](ctx context.Context, db DB, vs []model.Version[A],
	write func(context.Context, DB, model.Version[A]) error) error {
	switch len(vs) {
	case 0:
		return nil
	case 1:
		return write(ctx, db, vs[0])
	}
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		for _, v := range vs {
			if err := write(ctx, tx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// upserted fails when an upsert left the row alone because its surrogate
// key is stored for another business key.
func upserted(tag pgconn.CommandTag, table string, sk int64, businessKey string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s row %d does not belong to %q: %w", table, sk, businessKey, model.ErrSurrogateKeyConflict)
	}
	return nil
}

func writeCustomer(ctx context.Context, db DB, v model.Version[model.Customer]) error {
	c := v.Attributes
	tag, err := db.Exec(ctx, `
        INSERT INTO dim_customer (customer_key, customer_id, first_name, last_name,
            email, phone, city, state, country, segment, registration_date,
            effective_start, effective_end, is_current)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (customer_key) DO UPDATE SET
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            email = EXCLUDED.email,
            phone = EXCLUDED.phone,
            city = EXCLUDED.city,
            state = EXCLUDED.state,
            country = EXCLUDED.country,
            segment = EXCLUDED.segment,
            registration_date = EXCLUDED.registration_date,
            effective_end = EXCLUDED.effective_end,
            is_current = EXCLUDED.is_current
        WHERE dim_customer.customer_id = EXCLUDED.customer_id
    `, v.SurrogateKey, v.BusinessKey, c.FirstName, c.LastName,
		nullString(c.Email), nullString(c.Phone), nullString(c.City), nullString(c.State),
		nullString(c.Country), c.Segment, nullDate(c.RegistrationDate),
		v.EffectiveStart, v.EffectiveEnd, v.IsCurrent)
	if err != nil {
		return fmt.Errorf("failed to write customer %d: %w", v.SurrogateKey, err)
	}
	return upserted(tag, "dim_customer", v.SurrogateKey, v.BusinessKey)
}

func writeProduct(ctx context.Context, db DB, v model.Version[model.Product]) error {
	p := v.Attributes
	tag, err := db.Exec(ctx, `
        INSERT INTO dim_product (product_key, product_id, name, category, subcategory,
            brand, supplier, color, size, effective_start, effective_end, is_current)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (product_key) DO UPDATE SET
            name = EXCLUDED.name,
            category = EXCLUDED.category,
            subcategory = EXCLUDED.subcategory,
            brand = EXCLUDED.brand,
            supplier = EXCLUDED.supplier,
            color = EXCLUDED.color,
            size = EXCLUDED.size
        WHERE dim_product.product_id = EXCLUDED.product_id
    `, v.SurrogateKey, v.BusinessKey, p.Name, p.Category, nullString(p.Subcategory),
		nullString(p.Brand), nullString(p.Supplier), nullString(p.Color), nullString(p.Size),
		v.EffectiveStart, v.EffectiveEnd, v.IsCurrent)
	if err != nil {
		return fmt.Errorf("failed to write product %d: %w", v.SurrogateKey, err)
	}
	return upserted(tag, "dim_product", v.SurrogateKey, v.BusinessKey)
}

func writeStore(ctx context.Context, db DB, v model.Version[model.Store]) error {
	st := v.Attributes
	tag, err := db.Exec(ctx, `
        INSERT INTO dim_store (store_key, store_id, name, store_type, city, state,
            country, region, open_date, square_feet, effective_start, effective_end, is_current)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (store_key) DO UPDATE SET
            name = EXCLUDED.name,
            store_type = EXCLUDED.store_type,
            city = EXCLUDED.city,
            state = EXCLUDED.state,
            country = EXCLUDED.country,
            region = EXCLUDED.region,
            open_date = EXCLUDED.open_date,
            square_feet = EXCLUDED.square_feet
        WHERE dim_store.store_id = EXCLUDED.store_id
    `, v.SurrogateKey, v.BusinessKey, st.Name, st.StoreType, st.City, nullString(st.State),
		nullString(st.Country), nullString(st.Region), nullDate(st.OpenDate), st.SquareFeet,
		v.EffectiveStart, v.EffectiveEnd, v.IsCurrent)
	if err != nil {
		return fmt.Errorf("failed to write store %d: %w", v.SurrogateKey, err)
	}
	return upserted(tag, "dim_store", v.SurrogateKey, v.BusinessKey)
}

func writeDate(ctx context.Context, db DB, v model.Version[model.Date]) error {
	d := v.Attributes
	day, err := model.ParseDay(d.Date)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
        INSERT INTO dim_date (date_key, full_date, year, quarter, month, month_name,
            week_of_year, day_of_month, day_of_week, day_name, is_weekend, is_holiday,
            holiday_name, fiscal_year, fiscal_quarter, effective_start, effective_end, is_current)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        ON CONFLICT (date_key) DO UPDATE SET
            is_holiday = EXCLUDED.is_holiday,
            holiday_name = EXCLUDED.holiday_name
        WHERE dim_date.full_date = EXCLUDED.full_date
    `, v.SurrogateKey, day, d.Year, d.Quarter, d.Month, d.MonthName,
		d.WeekOfYear, d.DayOfMonth, d.DayOfWeek, d.DayName, d.IsWeekend, d.IsHoliday,
		nullString(d.HolidayName), d.FiscalYear, d.FiscalQuarter,
		v.EffectiveStart, v.EffectiveEnd, v.IsCurrent)
	if err != nil {
		return fmt.Errorf("failed to write date %d: %w", v.SurrogateKey, err)
	}
	return upserted(tag, "dim_date", v.SurrogateKey, v.BusinessKey)
}

// WriteFact inserts a fact row.
func (s *Sink) WriteFact(ctx context.Context, f model.SalesFact) error {
	in := f.Input
	m := f.Measures
	_, err := s.db.Exec(ctx, `
        INSERT INTO fact_sales (sales_key, customer_key, product_key, store_key,
            order_date_key, ship_date_key, order_id, line_number, transaction_type,
            payment_method, promotion_code, quantity_ordered, quantity_shipped,
            quantity_returned, unit_price, unit_cost, discount_amount, tax_amount,
            shipping_amount, gross_sales, net_sales, total_cost, gross_profit,
            discount_percentage, profit_margin_percentage, total_amount,
            order_timestamp, payment_timestamp, ship_timestamp, delivery_timestamp,
            data_quality_score, is_processed, load_id, loaded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
            $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31,
            $32, $33, $34)
    `, f.SurrogateKey, f.Keys.CustomerKey, f.Keys.ProductKey, f.Keys.StoreKey,
		f.Keys.OrderDateKey, nullKey(f.Keys.ShipDateKey), in.OrderID, in.LineNumber,
		string(in.TransactionType), nullString(in.PaymentMethod), nullString(in.PromotionCode),
		in.QuantityOrdered, in.QuantityShipped, in.QuantityReturned,
		numeric(in.UnitPrice), nullNumeric(in.UnitCost), numeric(in.DiscountAmount),
		numeric(in.TaxAmount), numeric(in.ShippingAmount),
		measures.Format(m.GrossSales), measures.Format(m.NetSales), measures.FormatNull(m.TotalCost),
		measures.FormatNull(m.GrossProfit), measures.FormatNull(m.DiscountPercentage),
		measures.FormatNull(m.ProfitMarginPercentage), measures.Format(m.TotalAmount),
		in.OrderTimestamp, in.PaymentTimestamp, in.ShipTimestamp, in.DeliveryTimestamp,
		in.DataQualityScore, in.IsProcessed, f.LoadID, f.LoadedAt)
	if err != nil {
		return fmt.Errorf("failed to write fact %s: %w", in.Key(), err)
	}
	return nil
}

// RecordBatch stores the batch report and updates the last batch metadata.
func (s *Sink) RecordBatch(ctx context.Context, r *loader.Report) error {
	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err := s.db.Exec(ctx, `
        INSERT INTO salesdw_batches (batch_id, source, started_at, finished_at,
            accepted, rejected, quarantined, retry, report)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, r.BatchID, r.Source, r.StartedAt, r.FinishedAt,
		r.Count("", loader.Accepted), r.Count("", loader.Rejected),
		r.Count("", loader.Quarantined), r.Count("", loader.Retry), buf.String())
	if err != nil {
		return fmt.Errorf("failed to record batch %s: %w", r.BatchID, err)
	}

	logging.Debug().Str("batch_id", r.BatchID).Msg("Recorded batch")
	return SaveMetadata(ctx, s.db, map[string]string{
		MetaLastBatchID: r.BatchID,
		MetaLastBatchAt: r.FinishedAt.Format(time.RFC3339),
	})
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullDate converts an optional DateLayout string. Attributes are
// validated before they reach the sink.
func nullDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := model.ParseDay(s)
	if err != nil {
		return nil
	}
	return &t
}

func nullKey(k int64) *int64 {
	if k == 0 {
		return nil
	}
	return &k
}

// numeric passes decimals as text so no precision is lost.
func numeric(d decimal.Decimal) string {
	return d.String()
}

func nullNumeric(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
