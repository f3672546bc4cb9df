//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package olap mirrors accepted rows into a local DuckDB star schema so
// the sample queries can run without a PostgreSQL server.
package olap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

func init() {
	sqlx.BindDriver("duckdb", sqlx.QUESTION)
}

// Store is a DuckDB-backed loader.Sink. A DuckDB file is opened read-write
// by one process at a time, so the Store hands out surrogate keys itself,
// continuing from the largest key stored in each table.
type Store struct {
	db *sqlx.DB

	keyMu sync.Mutex
	next  map[string]int64
}

var (
	_ loader.Sink     = (*Store)(nil)
	_ model.KeySource = (*Store)(nil)
)

// New opens the DuckDB database at path and creates the schema. An empty
// path opens an in-memory database.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if dsn == ":memory:" {
		dsn = ""
	}

	conn, err := sqlx.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	s := &Store{db: conn, next: make(map[string]int64)}
	if err := s.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("Opened DuckDB warehouse")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range []string{dateSchema, customerSchema, productSchema, storeSchema, factSchema, batchSchema} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database for direct queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// NextKey returns the next unused surrogate key of table.
func (s *Store) NextKey(ctx context.Context, table string) (int64, error) {
	def, err := catalog.ByTable(table)
	if err != nil {
		return 0, err
	}

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	sk, seeded := s.next[table]
	if !seeded {
		if err := s.db.GetContext(ctx, &sk,
			"SELECT COALESCE(MAX("+def.SurrogateKey+"), 0) + 1 FROM "+table); err != nil {
			return 0, fmt.Errorf("failed to read largest key of %s: %w", table, err)
		}
	}
	s.next[table] = sk + 1
	return sk, nil
}

// upsert describes the INSERT OR REPLACE of one dimension table.
type upsert struct {
	table          string
	keyColumn      string
	businessColumn string
	sql            string
}

// stagedRow is a dimension row ready for an upsert.
type stagedRow struct {
	surrogateKey int64
	businessKey  string
	arg          any
}

// writeRows upserts rows in one transaction. A row whose surrogate key is
// stored for another business key fails the whole write.
func (s *Store) writeRows(ctx context.Context, u upsert, rows []stagedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s write: %w", u.table, err)
	}
	defer tx.Rollback()

	lookup := "SELECT CAST(" + u.businessColumn + " AS VARCHAR) FROM " + u.table +
		" WHERE " + u.keyColumn + " = ?"
	for _, r := range rows {
		var stored string
		err := tx.GetContext(ctx, &stored, lookup, r.surrogateKey)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to check %s row %d: %w", u.table, r.surrogateKey, err)
		case stored != r.businessKey:
			return fmt.Errorf("%s row %d belongs to %q, not %q: %w",
				u.table, r.surrogateKey, stored, r.businessKey, model.ErrSurrogateKeyConflict)
		}
		if _, err := tx.NamedExecContext(ctx, u.sql, r.arg); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", u.table, r.surrogateKey, err)
		}
	}
	return tx.Commit()
}

// dimension columns shared by every dimension row.
type versionColumns struct {
	EffectiveStart time.Time  `db:"effective_start"`
	EffectiveEnd   *time.Time `db:"effective_end"`
	IsCurrent      bool       `db:"is_current"`
}

func columnsOf[A model.Attributes](v model.Version[A]) versionColumns {
	return versionColumns{EffectiveStart: v.EffectiveStart, EffectiveEnd: v.EffectiveEnd, IsCurrent: v.IsCurrent}
}

type customerRow struct {
	CustomerKey      int64      `db:"customer_key"`
	CustomerID       string     `db:"customer_id"`
	FirstName        string     `db:"first_name"`
	LastName         string     `db:"last_name"`
	Email            *string    `db:"email"`
	Phone            *string    `db:"phone"`
	City             *string    `db:"city"`
	State            *string    `db:"state"`
	Country          *string    `db:"country"`
	Segment          string     `db:"segment"`
	RegistrationDate *time.Time `db:"registration_date"`
	versionColumns
}

var customerUpsert = upsert{
	table:          "dim_customer",
	keyColumn:      "customer_key",
	businessColumn: "customer_id",
	sql: `
        INSERT OR REPLACE INTO dim_customer (customer_key, customer_id, first_name, last_name,
            email, phone, city, state, country, segment, registration_date,
            effective_start, effective_end, is_current)
        VALUES (:customer_key, :customer_id, :first_name, :last_name, :email, :phone, :city,
            :state, :country, :segment, :registration_date,
            :effective_start, :effective_end, :is_current)
    `,
}

// WriteCustomer upserts customer versions in one transaction.
func (s *Store) WriteCustomer(ctx context.Context, vs ...model.Version[model.Customer]) error {
	rows := make([]stagedRow, 0, len(vs))
	for _, v := range vs {
		c := v.Attributes
		rows = append(rows, stagedRow{
			surrogateKey: v.SurrogateKey,
			businessKey:  v.BusinessKey,
			arg: customerRow{
				CustomerKey:      v.SurrogateKey,
				CustomerID:       v.BusinessKey,
				FirstName:        c.FirstName,
				LastName:         c.LastName,
				Email:            optional(c.Email),
				Phone:            optional(c.Phone),
				City:             optional(c.City),
				State:            optional(c.State),
				Country:          optional(c.Country),
				Segment:          c.Segment,
				RegistrationDate: optionalDate(c.RegistrationDate),
				versionColumns:   columnsOf(v),
			},
		})
	}
	return s.writeRows(ctx, customerUpsert, rows)
}

type productRow struct {
	ProductKey  int64   `db:"product_key"`
	ProductID   string  `db:"product_id"`
	Name        string  `db:"name"`
	Category    string  `db:"category"`
	Subcategory *string `db:"subcategory"`
	Brand       *string `db:"brand"`
	Supplier    *string `db:"supplier"`
	Color       *string `db:"color"`
	Size        *string `db:"size"`
	versionColumns
}

var productUpsert = upsert{
	table:          "dim_product",
	keyColumn:      "product_key",
	businessColumn: "product_id",
	sql: `
        INSERT OR REPLACE INTO dim_product (product_key, product_id, name, category,
            subcategory, brand, supplier, color, size, effective_start, effective_end, is_current)
        VALUES (:product_key, :product_id, :name, :category, :subcategory, :brand,
            :supplier, :color, :size, :effective_start, :effective_end, :is_current)
    `,
}

// WriteProduct upserts product rows in one transaction.
func (s *Store) WriteProduct(ctx context.Context, vs ...model.Version[model.Product]) error {
	rows := make([]stagedRow, 0, len(vs))
	for _, v := range vs {
		p := v.Attributes
		rows = append(rows, stagedRow{
			surrogateKey: v.SurrogateKey,
			businessKey:  v.BusinessKey,
			arg: productRow{
				ProductKey:     v.SurrogateKey,
				ProductID:      v.BusinessKey,
				Name:           p.Name,
				Category:       p.Category,
				Subcategory:    optional(p.Subcategory),
				Brand:          optional(p.Brand),
				Supplier:       optional(p.Supplier),
				Color:          optional(p.Color),
				Size:           optional(p.Size),
				versionColumns: columnsOf(v),
			},
		})
	}
	return s.writeRows(ctx, productUpsert, rows)
}

type storeRow struct {
	StoreKey   int64      `db:"store_key"`
	StoreID    string     `db:"store_id"`
	Name       string     `db:"name"`
	StoreType  string     `db:"store_type"`
	City       string     `db:"city"`
	State      *string    `db:"state"`
	Country    *string    `db:"country"`
	Region     *string    `db:"region"`
	OpenDate   *time.Time `db:"open_date"`
	SquareFeet int        `db:"square_feet"`
	versionColumns
}

var storeUpsert = upsert{
	table:          "dim_store",
	keyColumn:      "store_key",
	businessColumn: "store_id",
	sql: `
        INSERT OR REPLACE INTO dim_store (store_key, store_id, name, store_type, city,
            state, country, region, open_date, square_feet,
            effective_start, effective_end, is_current)
        VALUES (:store_key, :store_id, :name, :store_type, :city, :state, :country,
            :region, :open_date, :square_feet, :effective_start, :effective_end, :is_current)
    `,
}

// WriteStore upserts store rows in one transaction.
func (s *Store) WriteStore(ctx context.Context, vs ...model.Version[model.Store]) error {
	rows := make([]stagedRow, 0, len(vs))
	for _, v := range vs {
		st := v.Attributes
		rows = append(rows, stagedRow{
			surrogateKey: v.SurrogateKey,
			businessKey:  v.BusinessKey,
			arg: storeRow{
				StoreKey:       v.SurrogateKey,
				StoreID:        v.BusinessKey,
				Name:           st.Name,
				StoreType:      st.StoreType,
				City:           st.City,
				State:          optional(st.State),
				Country:        optional(st.Country),
				Region:         optional(st.Region),
				OpenDate:       optionalDate(st.OpenDate),
				SquareFeet:     st.SquareFeet,
				versionColumns: columnsOf(v),
			},
		})
	}
	return s.writeRows(ctx, storeUpsert, rows)
}

type dateRow struct {
	DateKey       int64     `db:"date_key"`
	FullDate      time.Time `db:"full_date"`
	Year          int       `db:"year"`
	Quarter       int       `db:"quarter"`
	Month         int       `db:"month"`
	MonthName     string    `db:"month_name"`
	WeekOfYear    int       `db:"week_of_year"`
	DayOfMonth    int       `db:"day_of_month"`
	DayOfWeek     int       `db:"day_of_week"`
	DayName       string    `db:"day_name"`
	IsWeekend     bool      `db:"is_weekend"`
	IsHoliday     bool      `db:"is_holiday"`
	HolidayName   *string   `db:"holiday_name"`
	FiscalYear    int       `db:"fiscal_year"`
	FiscalQuarter int       `db:"fiscal_quarter"`
	versionColumns
}

var dateUpsert = upsert{
	table:          "dim_date",
	keyColumn:      "date_key",
	businessColumn: "full_date",
	sql: `
        INSERT OR REPLACE INTO dim_date (date_key, full_date, year, quarter, month,
            month_name, week_of_year, day_of_month, day_of_week, day_name, is_weekend,
            is_holiday, holiday_name, fiscal_year, fiscal_quarter,
            effective_start, effective_end, is_current)
        VALUES (:date_key, :full_date, :year, :quarter, :month, :month_name,
            :week_of_year, :day_of_month, :day_of_week, :day_name, :is_weekend,
            :is_holiday, :holiday_name, :fiscal_year, :fiscal_quarter,
            :effective_start, :effective_end, :is_current)
    `,
}

// WriteDate upserts date rows in one transaction.
func (s *Store) WriteDate(ctx context.Context, vs ...model.Version[model.Date]) error {
	rows := make([]stagedRow, 0, len(vs))
	for _, v := range vs {
		d := v.Attributes
		day, err := model.ParseDay(d.Date)
		if err != nil {
			return err
		}
		rows = append(rows, stagedRow{
			surrogateKey: v.SurrogateKey,
			businessKey:  v.BusinessKey,
			arg: dateRow{
				DateKey:        v.SurrogateKey,
				FullDate:       day,
				Year:           d.Year,
				Quarter:        d.Quarter,
				Month:          d.Month,
				MonthName:      d.MonthName,
				WeekOfYear:     d.WeekOfYear,
				DayOfMonth:     d.DayOfMonth,
				DayOfWeek:      d.DayOfWeek,
				DayName:        d.DayName,
				IsWeekend:      d.IsWeekend,
				IsHoliday:      d.IsHoliday,
				HolidayName:    optional(d.HolidayName),
				FiscalYear:     d.FiscalYear,
				FiscalQuarter:  d.FiscalQuarter,
				versionColumns: columnsOf(v),
			},
		})
	}
	return s.writeRows(ctx, dateUpsert, rows)
}

// WriteFact inserts a fact row.
func (s *Store) WriteFact(ctx context.Context, f model.SalesFact) error {
	if _, err := s.db.NamedExecContext(ctx, insertFactSQL, newFactRow(f)); err != nil {
		return fmt.Errorf("failed to write fact %s: %w", f.Input.Key(), err)
	}
	return nil
}

// RecordBatch stores the batch outcome counts.
func (s *Store) RecordBatch(ctx context.Context, r *loader.Report) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO salesdw_batches (batch_id, source, started_at, finished_at,
            accepted, rejected, quarantined, retry)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, r.BatchID, r.Source, r.StartedAt, r.FinishedAt,
		r.Count("", loader.Accepted), r.Count("", loader.Rejected),
		r.Count("", loader.Quarantined), r.Count("", loader.Retry))
	if err != nil {
		return fmt.Errorf("failed to record batch %s: %w", r.BatchID, err)
	}
	return nil
}

// TableCounts returns the row count of every star schema table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, table := range []string{"dim_date", "dim_customer", "dim_product", "dim_store", "fact_sales"} {
		var n int64
		if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// HasRows reports whether any dimension or fact row is stored.
func (s *Store) HasRows(ctx context.Context) (bool, error) {
	counts, err := s.TableCounts(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range counts {
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// RunQuery runs a sample query from the db package against DuckDB.
func (s *Store) RunQuery(ctx context.Context, name string) (*db.Result, error) {
	q, err := db.GetQuery(name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx, q.SQL)
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", name, err)
	}
	defer rows.Close()

	res := &db.Result{}
	if res.Columns, err = rows.Columns(); err != nil {
		return nil, err
	}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, db.FormatValues(values))
	}
	return res, rows.Err()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := model.ParseDay(s)
	if err != nil {
		return nil
	}
	return &t
}
