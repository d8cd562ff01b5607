package metadata

import (
	"strconv"
	"strings"
	"time"

	"sdcatalog/internal/selfdescription/models"
)

// predicate is one filter condition. It renders a parameterized SQL fragment
// and evaluates itself against a record for the memory store.
type predicate interface {
	sql(q *queryArgs) string
	matches(r *models.Record) bool
}

// queryArgs collects positional parameters.
type queryArgs struct {
	args []any
}

func (q *queryArgs) add(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// timeRange attaches both bounds once a start is given. A nil end is sent as
// NULL, which compares as unknown and matches nothing.
type timeRange struct {
	column string
	start  time.Time
	end    *time.Time
	value  func(*models.Record) time.Time
}

func (p timeRange) sql(q *queryArgs) string {
	var end any
	if p.end != nil {
		end = *p.end
	}
	return p.column + " >= " + q.add(p.start) + " AND " + p.column + " <= " + q.add(end)
}

func (p timeRange) matches(r *models.Record) bool {
	if p.end == nil {
		return false
	}
	v := p.value(r)
	return !v.Before(p.start) && !v.After(*p.end)
}

type textEquals struct {
	column string
	want   string
	value  func(*models.Record) string
}

func (p textEquals) sql(q *queryArgs) string {
	return p.column + " = " + q.add(p.want)
}

func (p textEquals) matches(r *models.Record) bool {
	return p.value(r) == p.want
}

type validatorMember struct {
	did string
}

func (p validatorMember) sql(q *queryArgs) string {
	return q.add(p.did) + " = ANY(validators)"
}

func (p validatorMember) matches(r *models.Record) bool {
	return r.HasValidator(p.did)
}

func uploadTimeRange(start time.Time, end *time.Time) predicate {
	return timeRange{column: "upload_time", start: start, end: end,
		value: func(r *models.Record) time.Time { return r.UploadTime }}
}

func statusTimeRange(start time.Time, end *time.Time) predicate {
	return timeRange{column: "status_time", start: start, end: end,
		value: func(r *models.Record) time.Time { return r.StatusTime }}
}

func issuerEquals(issuer string) predicate {
	return textEquals{column: "issuer", want: issuer,
		value: func(r *models.Record) string { return r.Issuer }}
}

func statusEquals(status models.Status) predicate {
	return textEquals{column: "status", want: string(status),
		value: func(r *models.Record) string { return string(r.Status) }}
}

func subjectEquals(subjectID string) predicate {
	return textEquals{column: "subject_id", want: subjectID,
		value: func(r *models.Record) string { return r.SubjectID }}
}

func hashEquals(hash string) predicate {
	return textEquals{column: "sd_hash", want: hash,
		value: func(r *models.Record) string { return r.Hash }}
}

// predicatesFor turns the set fields of f into predicates, in a fixed order.
func predicatesFor(f models.Filter) []predicate {
	var ps []predicate
	if f.UploadTimeStart != nil {
		ps = append(ps, uploadTimeRange(*f.UploadTimeStart, f.UploadTimeEnd))
	}
	if f.StatusTimeStart != nil {
		ps = append(ps, statusTimeRange(*f.StatusTimeStart, f.StatusTimeEnd))
	}
	if f.Issuer != nil {
		ps = append(ps, issuerEquals(*f.Issuer))
	}
	if f.Validator != nil {
		ps = append(ps, validatorMember{did: *f.Validator})
	}
	if f.Status != nil {
		ps = append(ps, statusEquals(*f.Status))
	}
	if f.SubjectID != nil {
		ps = append(ps, subjectEquals(*f.SubjectID))
	}
	if f.Hash != nil {
		ps = append(ps, hashEquals(*f.Hash))
	}
	return ps
}

func matchesAll(ps []predicate, r *models.Record) bool {
	for _, p := range ps {
		if !p.matches(r) {
			return false
		}
	}
	return true
}

func whereClause(ps []predicate, q *queryArgs) string {
	if len(ps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, "("+p.sql(q)+")")
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

const (
	recordColumns = `sd_hash, subject_id, issuer, upload_time, status, status_time, expiration_time, validators`
	orderClause   = ` ORDER BY status_time DESC, sd_hash ASC`
)

// countQuery counts distinct hashes matching f.
func countQuery(f models.Filter) (string, []any) {
	q := &queryArgs{}
	sql := `SELECT COUNT(DISTINCT sd_hash) FROM sd_metadata` + whereClause(predicatesFor(f), q)
	return sql, q.args
}

// listQuery selects one page of records matching f. A zero limit means no
// LIMIT clause at all.
func listQuery(f models.Filter) (string, []any) {
	q := &queryArgs{}
	sql := `SELECT ` + recordColumns + ` FROM sd_metadata` + whereClause(predicatesFor(f), q) + orderClause
	sql += " OFFSET " + q.add(f.Offset)
	if f.Limit != 0 {
		sql += " LIMIT " + q.add(f.Limit)
	}
	return sql, q.args
}
