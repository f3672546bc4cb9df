//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package olap

// DuckDB rendition of the star schema. Tables carry only their primary
// key so INSERT OR REPLACE has a single conflict target; uniqueness of
// business keys is enforced by the registries, and writeRows refuses to
// replace a row stored for another business key.

const dateSchema = `
CREATE TABLE IF NOT EXISTS dim_date (
    date_key        BIGINT PRIMARY KEY,
    full_date       DATE NOT NULL,
    year            INTEGER NOT NULL,
    quarter         INTEGER NOT NULL,
    month           INTEGER NOT NULL,
    month_name      VARCHAR NOT NULL,
    week_of_year    INTEGER NOT NULL,
    day_of_month    INTEGER NOT NULL,
    day_of_week     INTEGER NOT NULL,
    day_name        VARCHAR NOT NULL,
    is_weekend      BOOLEAN NOT NULL,
    is_holiday      BOOLEAN NOT NULL,
    holiday_name    VARCHAR,
    fiscal_year     INTEGER NOT NULL,
    fiscal_quarter  INTEGER NOT NULL,
    effective_start DATE NOT NULL,
    effective_end   DATE,
    is_current      BOOLEAN NOT NULL
);
`

const customerSchema = `
CREATE TABLE IF NOT EXISTS dim_customer (
    customer_key      BIGINT PRIMARY KEY,
    customer_id       VARCHAR NOT NULL,
    first_name        VARCHAR NOT NULL,
    last_name         VARCHAR NOT NULL,
    email             VARCHAR,
    phone             VARCHAR,
    city              VARCHAR,
    state             VARCHAR,
    country           VARCHAR,
    segment           VARCHAR NOT NULL,
    registration_date DATE,
    effective_start   DATE NOT NULL,
    effective_end     DATE,
    is_current        BOOLEAN NOT NULL
);
`

const productSchema = `
CREATE TABLE IF NOT EXISTS dim_product (
    product_key     BIGINT PRIMARY KEY,
    product_id      VARCHAR NOT NULL,
    name            VARCHAR NOT NULL,
    category        VARCHAR NOT NULL,
    subcategory     VARCHAR,
    brand           VARCHAR,
    supplier        VARCHAR,
    color           VARCHAR,
    size            VARCHAR,
    effective_start DATE NOT NULL,
    effective_end   DATE,
    is_current      BOOLEAN NOT NULL
);
`

const storeSchema = `
CREATE TABLE IF NOT EXISTS dim_store (
    store_key       BIGINT PRIMARY KEY,
    store_id        VARCHAR NOT NULL,
    name            VARCHAR NOT NULL,
    store_type      VARCHAR NOT NULL,
    city            VARCHAR NOT NULL,
    state           VARCHAR,
    country         VARCHAR,
    region          VARCHAR,
    open_date       DATE,
    square_feet     INTEGER,
    effective_start DATE NOT NULL,
    effective_end   DATE,
    is_current      BOOLEAN NOT NULL
);
`

const factSchema = `
CREATE TABLE IF NOT EXISTS fact_sales (
    sales_key                BIGINT PRIMARY KEY,
    customer_key             BIGINT NOT NULL,
    product_key              BIGINT NOT NULL,
    store_key                BIGINT NOT NULL,
    order_date_key           BIGINT NOT NULL,
    ship_date_key            BIGINT,
    order_id                 VARCHAR NOT NULL,
    line_number              INTEGER NOT NULL,
    transaction_type         VARCHAR NOT NULL,
    payment_method           VARCHAR,
    promotion_code           VARCHAR,
    quantity_ordered         BIGINT NOT NULL,
    quantity_shipped         BIGINT,
    quantity_returned        BIGINT,
    unit_price               DECIMAL(18,4) NOT NULL,
    unit_cost                DECIMAL(18,4),
    discount_amount          DECIMAL(18,4) NOT NULL,
    tax_amount               DECIMAL(18,4) NOT NULL,
    shipping_amount          DECIMAL(18,4) NOT NULL,
    gross_sales              DECIMAL(18,2) NOT NULL,
    net_sales                DECIMAL(18,2) NOT NULL,
    total_cost               DECIMAL(18,2),
    gross_profit             DECIMAL(18,2),
    discount_percentage      DECIMAL(18,2),
    profit_margin_percentage DECIMAL(18,2),
    total_amount             DECIMAL(18,2) NOT NULL,
    order_timestamp          TIMESTAMP NOT NULL,
    payment_timestamp        TIMESTAMP,
    ship_timestamp           TIMESTAMP,
    delivery_timestamp       TIMESTAMP,
    data_quality_score       DOUBLE NOT NULL,
    is_processed             BOOLEAN NOT NULL,
    load_id                  VARCHAR NOT NULL,
    loaded_at                TIMESTAMP NOT NULL
);
`

const batchSchema = `
CREATE TABLE IF NOT EXISTS salesdw_batches (
    batch_id    VARCHAR PRIMARY KEY,
    source      VARCHAR,
    started_at  TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    accepted    INTEGER NOT NULL,
    rejected    INTEGER NOT NULL,
    quarantined INTEGER NOT NULL,
    retry       INTEGER NOT NULL
);
`
