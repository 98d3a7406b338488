package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 8

// ErrorDump flattens an error chain into log fields, including Postgres
// diagnostics from either driver.
type ErrorDump struct {
	TopMessage   string   `json:"top_message"`
	Code         Code     `json:"code,omitempty"`
	Chain        []string `json:"chain,omitempty"`
	PGCode       string   `json:"pg_code,omitempty"`
	PGConstraint string   `json:"pg_constraint,omitempty"`
	PGTable      string   `json:"pg_table,omitempty"`
	PGColumn     string   `json:"pg_column,omitempty"`
	PGDetail     string   `json:"pg_detail,omitempty"`
	PGMessage    string   `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil && len(d.Chain) < maxChainDepth; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", e))
	}
	d.fillPostgres(err)
	return d
}

func (d *ErrorDump) fillPostgres(err error) {
	if pgErr := (*pgconn.PgError)(nil); stdErrors.As(err, &pgErr) {
		d.PGCode, d.PGConstraint, d.PGTable = pgErr.Code, pgErr.ConstraintName, pgErr.TableName
		d.PGColumn, d.PGDetail, d.PGMessage = pgErr.ColumnName, pgErr.Detail, pgErr.Message
		return
	}
	if pqErr := (*pq.Error)(nil); stdErrors.As(err, &pqErr) {
		d.PGCode, d.PGConstraint, d.PGTable = string(pqErr.Code), pqErr.Constraint, pqErr.Table
		d.PGColumn, d.PGDetail, d.PGMessage = pqErr.Column, pqErr.Detail, pqErr.Message
	}
}
