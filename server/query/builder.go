package query

import (
	"fmt"
	"strings"

	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

const (
	minPageSize     = 10
	maxPageSize     = 2000
	defaultPageSize = 50
)

// Filter is one predicate over a single column. Operators taking a
// single value use Value; in/not_in/between use Values.
type Filter struct {
	Column   string   `json:"column"`
	Operator string   `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// Sort orders the result page.
type Sort struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// Request is one paginated query against a registered dataset.
type Request struct {
	LogicalID string   `json:"logical_id"`
	Filters   []Filter `json:"filters,omitempty"`
	Search    string   `json:"search,omitempty"`
	Sort      *Sort    `json:"sort,omitempty"`
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
	Columns   []string `json:"columns,omitempty"`
}

// Built holds the two generated statements. CountSQL and SelectSQL are
// constructed from the same WHERE clause so totals always agree with
// the returned page.
type Built struct {
	SelectSQL string
	CountSQL  string
	Page      int
	PageSize  int
	Warnings  []string
}

// QuoteIdent escapes an identifier by doubling embedded double quotes.
// This is the only identifier-escaping rule; it is applied to every
// column and relation name that reaches the engine.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral escapes a string literal by doubling embedded single quotes.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// Build generates the paired data and count statements for a request.
// textColumns drives free-text search; pass nil when the request has no
// search term. Unknown operators and unknown projected columns are
// dropped with a warning, never an error.
func Build(req *Request, entry *registry.Entry, textColumns []string) *Built {
	b := &Built{
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if b.Page < 1 {
		b.Page = 1
	}
	if b.PageSize == 0 {
		b.PageSize = defaultPageSize
	}
	if b.PageSize < minPageSize {
		b.PageSize = minPageSize
	}
	if b.PageSize > maxPageSize {
		b.PageSize = maxPageSize
	}

	known := make(map[string]bool, len(entry.Source.Columns))
	for _, c := range entry.Source.Columns {
		known[c] = true
	}

	var conditions []string
	for _, f := range req.Filters {
		cond, ok := buildCondition(f)
		if !ok {
			b.Warnings = append(b.Warnings, fmt.Sprintf("unknown filter operator %q on column %q dropped", f.Operator, f.Column))
			continue
		}
		conditions = append(conditions, cond)
	}

	if term := strings.TrimSpace(req.Search); term != "" {
		if cond := buildSearch(term, textColumns); cond != "" {
			conditions = append(conditions, cond)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	projection := "*"
	if len(req.Columns) > 0 {
		kept := make([]string, 0, len(req.Columns))
		for _, c := range req.Columns {
			if !known[c] {
				b.Warnings = append(b.Warnings, fmt.Sprintf("unknown projected column %q dropped", c))
				continue
			}
			kept = append(kept, QuoteIdent(c))
		}
		if len(kept) > 0 {
			projection = strings.Join(kept, ", ")
		}
	}

	order := ""
	if req.Sort != nil && req.Sort.Column != "" {
		dir := "ASC"
		if strings.EqualFold(req.Sort.Direction, "desc") {
			dir = "DESC"
		}
		order = fmt.Sprintf(" ORDER BY %s %s", QuoteIdent(req.Sort.Column), dir)
	}

	relation := entry.Relation()
	offset := (b.Page - 1) * b.PageSize

	b.SelectSQL = fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT %d OFFSET %d",
		projection, relation, where, order, b.PageSize, offset)
	b.CountSQL = fmt.Sprintf("SELECT COUNT(*) FROM %s%s", relation, where)

	return b
}

// buildCondition emits the SQL predicate for one filter. The second
// return is false for operators the builder does not know.
func buildCondition(f Filter) (string, bool) {
	col := QuoteIdent(f.Column)

	switch f.Operator {
	case "eq":
		return fmt.Sprintf("%s = %s", col, QuoteLiteral(f.Value)), true
	case "neq":
		return fmt.Sprintf("%s <> %s", col, QuoteLiteral(f.Value)), true
	case "contains":
		return fmt.Sprintf("LOWER(%s) LIKE %s", col, QuoteLiteral("%"+strings.ToLower(f.Value)+"%")), true
	case "not_contains":
		return fmt.Sprintf("LOWER(%s) NOT LIKE %s", col, QuoteLiteral("%"+strings.ToLower(f.Value)+"%")), true
	case "starts_with":
		return fmt.Sprintf("LOWER(%s) LIKE %s", col, QuoteLiteral(strings.ToLower(f.Value)+"%")), true
	case "ends_with":
		return fmt.Sprintf("LOWER(%s) LIKE %s", col, QuoteLiteral("%"+strings.ToLower(f.Value))), true
	case "in", "not_in":
		values := f.Values
		if len(values) == 0 && f.Value != "" {
			values = []string{f.Value}
		}
		if len(values) == 0 {
			// An empty IN list matches nothing; NOT IN matches everything.
			if f.Operator == "in" {
				return "1 = 0", true
			}
			return "1 = 1", true
		}
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = QuoteLiteral(v)
		}
		op := "IN"
		if f.Operator == "not_in" {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(quoted, ", ")), true
	case "gt", "gte", "lt", "lte":
		ops := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}
		return fmt.Sprintf("TRY_CAST(%s AS DOUBLE) %s TRY_CAST(%s AS DOUBLE)",
			col, ops[f.Operator], QuoteLiteral(f.Value)), true
	case "between":
		if len(f.Values) < 2 {
			return "", false
		}
		return fmt.Sprintf("TRY_CAST(%s AS DOUBLE) BETWEEN TRY_CAST(%s AS DOUBLE) AND TRY_CAST(%s AS DOUBLE)",
			col, QuoteLiteral(f.Values[0]), QuoteLiteral(f.Values[1])), true
	case "is_null":
		// The canonical format stores everything as text with nulls
		// normalized to empty string, so both spellings count.
		return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col), true
	case "is_not_null":
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", col, col), true
	case "regex":
		return fmt.Sprintf("regexp_matches(%s, %s)", col, QuoteLiteral(f.Value)), true
	default:
		return "", false
	}
}

// buildSearch OR-combines a case-insensitive substring match over the
// text-typed columns. No text columns makes search a no-op.
func buildSearch(term string, textColumns []string) string {
	if len(textColumns) == 0 {
		return ""
	}
	pattern := QuoteLiteral("%" + strings.ToLower(term) + "%")
	parts := make([]string, len(textColumns))
	for i, c := range textColumns {
		parts[i] = fmt.Sprintf("LOWER(%s) LIKE %s", QuoteIdent(c), pattern)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
