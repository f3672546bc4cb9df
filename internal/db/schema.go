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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// SchemaVersion is recorded in the metadata table by CreateSchema.
const SchemaVersion = "2"

const createSchemaSQL = `
-- Date Dimension
CREATE TABLE IF NOT EXISTS dim_date (
    date_key        BIGINT PRIMARY KEY,
    full_date       DATE NOT NULL UNIQUE,
    year            INTEGER NOT NULL,
    quarter         INTEGER NOT NULL,
    month           INTEGER NOT NULL,
    month_name      VARCHAR(9) NOT NULL,
    week_of_year    INTEGER NOT NULL,
    day_of_month    INTEGER NOT NULL,
    day_of_week     INTEGER NOT NULL,
    day_name        VARCHAR(9) NOT NULL,
    is_weekend      BOOLEAN NOT NULL,
    is_holiday      BOOLEAN NOT NULL,
    holiday_name    VARCHAR(100),
    fiscal_year     INTEGER NOT NULL,
    fiscal_quarter  INTEGER NOT NULL,
    effective_start DATE NOT NULL,
    effective_end   DATE,
    is_current      BOOLEAN NOT NULL
);

-- Customer Dimension (SCD Type 2)
CREATE TABLE IF NOT EXISTS dim_customer (
    customer_key      BIGINT PRIMARY KEY,
    customer_id       VARCHAR(64) NOT NULL,
    first_name        VARCHAR(100) NOT NULL,
    last_name         VARCHAR(100) NOT NULL,
    email             VARCHAR(255),
    phone             VARCHAR(50),
    city              VARCHAR(100),
    state             VARCHAR(100),
    country           VARCHAR(100),
    segment           VARCHAR(50) NOT NULL,
    registration_date DATE,
    effective_start   DATE NOT NULL,
    effective_end     DATE,
    is_current        BOOLEAN NOT NULL,
    CHECK (effective_end IS NULL OR effective_end > effective_start),
    CHECK (is_current = (effective_end IS NULL))
);

-- Product Dimension
CREATE TABLE IF NOT EXISTS dim_product (
    product_key     BIGINT PRIMARY KEY,
    product_id      VARCHAR(64) NOT NULL UNIQUE,
    name            VARCHAR(200) NOT NULL,
    category        VARCHAR(100) NOT NULL,
    subcategory     VARCHAR(100),
    brand           VARCHAR(100),
    supplier        VARCHAR(100),
    color           VARCHAR(50),
    size            VARCHAR(50),
    effective_start DATE NOT NULL,
    effective_end   DATE,
    is_current      BOOLEAN NOT NULL
);

-- Store Dimension
CREATE TABLE IF NOT EXISTS dim_store (
    store_key       BIGINT PRIMARY KEY,
    store_id        VARCHAR(64) NOT NULL UNIQUE,
    name            VARCHAR(200) NOT NULL,
    store_type      VARCHAR(50) NOT NULL,
    city            VARCHAR(100) NOT NULL,
    state           VARCHAR(100),
    country         VARCHAR(100),
    region          VARCHAR(100),
    open_date       DATE,
    square_feet     INTEGER,
    effective_start DATE NOT NULL,
    effective_end   DATE,
    is_current      BOOLEAN NOT NULL
);

-- Sales Fact
CREATE TABLE IF NOT EXISTS fact_sales (
    sales_key                BIGINT PRIMARY KEY,
    customer_key             BIGINT NOT NULL REFERENCES dim_customer(customer_key),
    product_key              BIGINT NOT NULL REFERENCES dim_product(product_key),
    store_key                BIGINT NOT NULL REFERENCES dim_store(store_key),
    order_date_key           BIGINT NOT NULL REFERENCES dim_date(date_key),
    ship_date_key            BIGINT REFERENCES dim_date(date_key),
    order_id                 VARCHAR(64) NOT NULL,
    line_number              INTEGER NOT NULL CHECK (line_number > 0),
    transaction_type         VARCHAR(10) NOT NULL
                             CHECK (transaction_type IN ('Sale', 'Return', 'Exchange')),
    payment_method           VARCHAR(50),
    promotion_code           VARCHAR(50),
    quantity_ordered         BIGINT NOT NULL CHECK (quantity_ordered >= 0),
    quantity_shipped         BIGINT,
    quantity_returned        BIGINT,
    unit_price               NUMERIC NOT NULL,
    unit_cost                NUMERIC,
    discount_amount          NUMERIC NOT NULL,
    tax_amount               NUMERIC NOT NULL,
    shipping_amount          NUMERIC NOT NULL,
    gross_sales              NUMERIC(18,2) NOT NULL,
    net_sales                NUMERIC(18,2) NOT NULL,
    total_cost               NUMERIC(18,2),
    gross_profit             NUMERIC(18,2),
    discount_percentage      NUMERIC(18,2),
    profit_margin_percentage NUMERIC(18,2),
    total_amount             NUMERIC(18,2) NOT NULL,
    order_timestamp          TIMESTAMPTZ NOT NULL,
    payment_timestamp        TIMESTAMPTZ,
    ship_timestamp           TIMESTAMPTZ,
    delivery_timestamp       TIMESTAMPTZ,
    data_quality_score       DOUBLE PRECISION NOT NULL,
    is_processed             BOOLEAN NOT NULL,
    load_id                  VARCHAR(64) NOT NULL,
    loaded_at                TIMESTAMPTZ NOT NULL
);

-- Batch history
CREATE TABLE IF NOT EXISTS salesdw_batches (
    batch_id    UUID PRIMARY KEY,
    source      TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    accepted    INTEGER NOT NULL,
    rejected    INTEGER NOT NULL,
    quarantined INTEGER NOT NULL,
    retry       INTEGER NOT NULL,
    report      JSONB NOT NULL
);

-- Surrogate key sequences shared by every loader
CREATE SEQUENCE IF NOT EXISTS dim_date_key_seq OWNED BY dim_date.date_key;
CREATE SEQUENCE IF NOT EXISTS dim_customer_key_seq OWNED BY dim_customer.customer_key;
CREATE SEQUENCE IF NOT EXISTS dim_product_key_seq OWNED BY dim_product.product_key;
CREATE SEQUENCE IF NOT EXISTS dim_store_key_seq OWNED BY dim_store.store_key;
CREATE SEQUENCE IF NOT EXISTS fact_sales_key_seq OWNED BY fact_sales.sales_key;

-- One current version per customer, one version per start date
CREATE UNIQUE INDEX IF NOT EXISTS uq_dim_customer_current
    ON dim_customer(customer_id) WHERE is_current;
CREATE UNIQUE INDEX IF NOT EXISTS uq_dim_customer_version
    ON dim_customer(customer_id, effective_start);

-- One fact per order line and transaction type
CREATE UNIQUE INDEX IF NOT EXISTS uq_fact_sales_line
    ON fact_sales(order_id, line_number, transaction_type);

-- Indexes for analytical queries
CREATE INDEX IF NOT EXISTS idx_fact_sales_customer ON fact_sales(customer_key);
CREATE INDEX IF NOT EXISTS idx_fact_sales_product ON fact_sales(product_key);
CREATE INDEX IF NOT EXISTS idx_fact_sales_store ON fact_sales(store_key);
CREATE INDEX IF NOT EXISTS idx_fact_sales_order_date ON fact_sales(order_date_key);
CREATE INDEX IF NOT EXISTS idx_dim_product_category ON dim_product(category);
CREATE INDEX IF NOT EXISTS idx_dim_date_year ON dim_date(year, month);
`

const dropSchemaSQL = `
DROP TABLE IF EXISTS fact_sales CASCADE;
DROP TABLE IF EXISTS salesdw_batches CASCADE;
DROP TABLE IF EXISTS dim_customer CASCADE;
DROP TABLE IF EXISTS dim_product CASCADE;
DROP TABLE IF EXISTS dim_store CASCADE;
DROP TABLE IF EXISTS dim_date CASCADE;
`

// CreateSchema creates the star schema and records its version.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	logging.Info().Msg("Creating sales warehouse schema")
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return SaveInitMetadata(ctx, pool)
}

// DropSchema drops the star schema and the metadata table.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	logging.Info().Msg("Dropping sales warehouse schema")
	if _, err := pool.Exec(ctx, dropSchemaSQL); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	return DropMetadata(ctx, pool)
}
