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
	"database/sql/driver"
	"fmt"
	"sort"
)

// Query is a sample analytical query over the star schema. The SQL is
// portable between PostgreSQL and DuckDB and takes no parameters.
type Query struct {
	Name        string
	Description string
	SQL         string

	// Weight is the relative frequency of the query in a query workload.
	Weight int
}

// Result holds the rows of a query as text.
type Result struct {
	Columns []string
	Rows    [][]string
}

var queries = map[string]Query{
	"monthly_sales_by_store": {
		Name:        "monthly_sales_by_store",
		Description: "Net sales, profit and order lines per store and month",
		Weight:      30,
		SQL: `
        SELECT s.store_id, s.name AS store_name, d.year, d.month,
               SUM(f.net_sales) AS net_sales,
               SUM(f.gross_profit) AS gross_profit,
               COUNT(*) AS order_lines
        FROM fact_sales f
        JOIN dim_store s ON f.store_key = s.store_key
        JOIN dim_date d ON f.order_date_key = d.date_key
        WHERE f.transaction_type = 'Sale'
        GROUP BY s.store_id, s.name, d.year, d.month
        ORDER BY d.year, d.month, s.store_id`,
	},
	"sales_by_customer_segment": {
		Name:        "sales_by_customer_segment",
		Description: "Net sales by the customer segment in effect when the order was placed",
		Weight:      25,
		SQL: `
        SELECT c.segment,
               COUNT(DISTINCT c.customer_id) AS customers,
               SUM(f.net_sales) AS net_sales,
               AVG(f.net_sales) AS avg_line_value
        FROM fact_sales f
        JOIN dim_customer c ON f.customer_key = c.customer_key
        GROUP BY c.segment
        ORDER BY net_sales DESC`,
	},
	"top_products_by_margin": {
		Name:        "top_products_by_margin",
		Description: "Products with the highest average profit margin",
		Weight:      20,
		SQL: `
        SELECT p.product_id, p.name, p.category,
               AVG(f.profit_margin_percentage) AS avg_margin_pct,
               SUM(f.gross_profit) AS gross_profit
        FROM fact_sales f
        JOIN dim_product p ON f.product_key = p.product_key
        WHERE f.profit_margin_percentage IS NOT NULL
        GROUP BY p.product_id, p.name, p.category
        ORDER BY avg_margin_pct DESC, p.product_id
        LIMIT 10`,
	},
	"returns_ratio": {
		Name:        "returns_ratio",
		Description: "Returned units as a share of ordered units per product category",
		Weight:      15,
		SQL: `
        SELECT p.category,
               SUM(f.quantity_ordered) AS ordered,
               SUM(COALESCE(f.quantity_returned, 0)) AS returned,
               ROUND(100.0 * SUM(COALESCE(f.quantity_returned, 0))
                     / NULLIF(SUM(f.quantity_ordered), 0), 2) AS returns_pct
        FROM fact_sales f
        JOIN dim_product p ON f.product_key = p.product_key
        GROUP BY p.category
        ORDER BY returns_pct DESC NULLS LAST`,
	},
	"segment_migrations": {
		Name:        "segment_migrations",
		Description: "Customer segment changes recorded by the customer history",
		Weight:      10,
		SQL: `
        SELECT prev.segment AS from_segment, cur.segment AS to_segment,
               COUNT(*) AS customers
        FROM dim_customer cur
        JOIN dim_customer prev
          ON prev.customer_id = cur.customer_id
         AND prev.effective_end = cur.effective_start
        WHERE prev.segment <> cur.segment
        GROUP BY prev.segment, cur.segment
        ORDER BY customers DESC`,
	},
}

// Queries returns the sample queries ordered by name.
func Queries() []Query {
	out := make([]Query, 0, len(queries))
	for _, q := range queries {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetQuery returns a sample query by name.
func GetQuery(name string) (Query, error) {
	q, ok := queries[name]
	if !ok {
		return Query{}, fmt.Errorf("unknown query: %s", name)
	}
	return q, nil
}

// RunQuery runs the named sample query.
func RunQuery(ctx context.Context, db DB, name string) (*Result, error) {
	q, err := GetQuery(name)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, q.SQL)
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", name, err)
	}
	defer rows.Close()

	res := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, FormatValues(values))
	}
	return res, rows.Err()
}

// FormatValues renders row values as text; NULL is empty.
func FormatValues(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case nil:
		case []byte:
			out[i] = string(t)
		case driver.Valuer:
			if dv, err := t.Value(); err == nil && dv != nil {
				out[i] = fmt.Sprint(dv)
			}
		case fmt.Stringer:
			out[i] = t.String()
		default:
			out[i] = fmt.Sprint(t)
		}
	}
	return out
}
