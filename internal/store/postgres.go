package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/query"
	"github.com/junction-api/junction/internal/resource"
)

// Common persistence error types
var (
	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")
)

// ConvertDBError converts database-specific errors to store errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pqErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s", ErrNotNullViolation, pqErr.Column)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrCheckViolation, pqErr.Detail)
		}
	}

	return err
}

type txContextKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore is a Postgres-backed Service. Each resource type maps to a
// table named after the type in snake_case; attributes map to snake_case
// columns, to-one relationships to <name>_id foreign key columns, and to-many
// relationships to <table>_<name> join tables with (parent_id, related_id,
// position) columns.
type PostgresStore struct {
	db              *sql.DB
	graph           *resource.Graph
	defaultPageSize int
}

// NewPostgresStore creates a store over an open connection pool.
func NewPostgresStore(db *sql.DB, graph *resource.Graph, defaultPageSize int) *PostgresStore {
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	return &PostgresStore{db: db, graph: graph, defaultPageSize: defaultPageSize}
}

// WithTransaction runs fn with a transaction carried in the context. Every
// service call inside fn executes on that transaction; fn returning an error
// rolls the whole batch back.
func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) querier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) lookup(resourceType string) (*resource.Context, error) {
	rc, ok := s.graph.Lookup(resourceType)
	if !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: resourceType}
	}
	return rc, nil
}

// List fetches a filtered, sorted, paginated page of a collection along with
// its total count and any included related records.
func (s *PostgresStore) List(ctx context.Context, resourceType string, spec *query.Specification) (*Result, error) {
	rc, err := s.lookup(resourceType)
	if err != nil {
		return nil, err
	}
	q := s.querier(ctx)

	b := newSQLBuilder()
	where := ""
	if spec != nil && spec.Filter != nil {
		clause, err := b.whereClause(rc, spec.Filter)
		if err != nil {
			return nil, err
		}
		where = " WHERE " + clause
	}

	table := tableName(rc.PublicName)
	columns := s.selectColumns(rc)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
	if err := q.QueryRowContext(ctx, countQuery, b.args...).Scan(&total); err != nil {
		return nil, ConvertDBError(err)
	}

	orderBy := s.orderClause(rc, spec)
	limit, offset := s.pageBounds(spec)

	listQuery := fmt.Sprintf(
		"SELECT %s FROM %s%s%s LIMIT %d OFFSET %d",
		strings.Join(columns, ", "), table, where, orderBy, limit, offset,
	)
	rows, err := q.QueryContext(ctx, listQuery, b.args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	primary, err := s.scanRecords(rows, rc)
	if err != nil {
		return nil, err
	}

	if err := s.loadToMany(ctx, rc, primary); err != nil {
		return nil, err
	}

	included, err := s.collectIncluded(ctx, rc, primary, spec)
	if err != nil {
		return nil, err
	}

	return &Result{Primary: primary, Included: included, Total: total}, nil
}

// Get fetches one record by ID along with its included related records.
func (s *PostgresStore) Get(ctx context.Context, resourceType, id string, spec *query.Specification) (*Result, error) {
	rc, err := s.lookup(resourceType)
	if err != nil {
		return nil, err
	}

	record, err := s.fetchOne(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	primary := []*Record{record}

	included, err := s.collectIncluded(ctx, rc, primary, spec)
	if err != nil {
		return nil, err
	}

	return &Result{Primary: primary, Included: included, Total: 1}, nil
}

func (s *PostgresStore) fetchOne(ctx context.Context, rc *resource.Context, id string) (*Record, error) {
	q := s.querier(ctx)
	columns := s.selectColumns(rc)

	sel := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = $1",
		strings.Join(columns, ", "), tableName(rc.PublicName),
	)
	rows, err := q.QueryContext(ctx, sel, id)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	records, err := s.scanRecords(rows, rc)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: rc.PublicName, ID: id}
	}

	if err := s.loadToMany(ctx, rc, records); err != nil {
		return nil, err
	}
	return records[0], nil
}

// Create inserts a record, generating a UUID primary key when the caller did
// not supply one, and writes its to-many linkage.
func (s *PostgresStore) Create(ctx context.Context, record *Record) (*Record, error) {
	rc, err := s.lookup(record.Type)
	if err != nil {
		return nil, err
	}
	q := s.querier(ctx)

	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}

	fields := []string{"id"}
	placeholders := []string{"$1"}
	values := []interface{}{id}
	counter := 2

	for _, attr := range rc.Attributes() {
		value, ok := record.Attributes[attr.PublicName]
		if !ok {
			continue
		}
		fields = append(fields, columnName(attr.PublicName))
		placeholders = append(placeholders, fmt.Sprintf("$%d", counter))
		values = append(values, value)
		counter++
	}
	for _, rel := range rc.Relationships() {
		if rel.Kind != resource.ToOne {
			continue
		}
		related, ok := record.ToOne[rel.PublicName]
		if !ok {
			continue
		}
		fields = append(fields, foreignKeyColumn(rel.PublicName))
		placeholders = append(placeholders, fmt.Sprintf("$%d", counter))
		if related == nil {
			values = append(values, nil)
		} else {
			values = append(values, related.ID)
		}
		counter++
	}

	returnColumns := s.selectColumns(rc)
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		tableName(rc.PublicName),
		strings.Join(fields, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(returnColumns, ", "),
	)

	row := q.QueryRowContext(ctx, insert, values...)
	created, err := s.scanRecord(row, rc, returnColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", ConvertDBError(err))
	}

	for _, rel := range rc.Relationships() {
		if rel.Kind != resource.ToMany {
			continue
		}
		related, ok := record.ToMany[rel.PublicName]
		if !ok {
			continue
		}
		if err := s.replaceToMany(ctx, rc, created.ID, rel.PublicName, related); err != nil {
			return nil, err
		}
		created.ToMany[rel.PublicName] = cloneIdentifiers(related)
	}

	return created, nil
}

// Update applies the record's present attribute and relationship keys to the
// stored row; absent keys are left untouched.
func (s *PostgresStore) Update(ctx context.Context, record *Record) (*Record, error) {
	rc, err := s.lookup(record.Type)
	if err != nil {
		return nil, err
	}
	q := s.querier(ctx)

	var assignments []string
	var values []interface{}
	counter := 1

	for _, attr := range rc.Attributes() {
		value, ok := record.Attributes[attr.PublicName]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", columnName(attr.PublicName), counter))
		values = append(values, value)
		counter++
	}
	for _, rel := range rc.Relationships() {
		if rel.Kind != resource.ToOne {
			continue
		}
		related, ok := record.ToOne[rel.PublicName]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", foreignKeyColumn(rel.PublicName), counter))
		if related == nil {
			values = append(values, nil)
		} else {
			values = append(values, related.ID)
		}
		counter++
	}

	if len(assignments) > 0 {
		values = append(values, record.ID)
		update := fmt.Sprintf(
			"UPDATE %s SET %s WHERE id = $%d",
			tableName(rc.PublicName), strings.Join(assignments, ", "), counter,
		)
		result, err := q.ExecContext(ctx, update, values...)
		if err != nil {
			return nil, fmt.Errorf("failed to update record: %w", ConvertDBError(err))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, &jsonapierr.ResourceNotFoundError{ResourceType: record.Type, ID: record.ID}
		}
	}

	for _, rel := range rc.Relationships() {
		if rel.Kind != resource.ToMany {
			continue
		}
		related, ok := record.ToMany[rel.PublicName]
		if !ok {
			continue
		}
		if err := s.replaceToMany(ctx, rc, record.ID, rel.PublicName, related); err != nil {
			return nil, err
		}
	}

	return s.fetchOne(ctx, rc, record.ID)
}

// Delete removes a record and its to-many linkage rows.
func (s *PostgresStore) Delete(ctx context.Context, resourceType, id string) error {
	rc, err := s.lookup(resourceType)
	if err != nil {
		return err
	}
	q := s.querier(ctx)

	for _, rel := range rc.Relationships() {
		if rel.Kind != resource.ToMany {
			continue
		}
		del := fmt.Sprintf("DELETE FROM %s WHERE parent_id = $1", joinTableName(rc.PublicName, rel.PublicName))
		if _, err := q.ExecContext(ctx, del, id); err != nil {
			return ConvertDBError(err)
		}
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE id = $1", tableName(rc.PublicName))
	result, err := q.ExecContext(ctx, del, id)
	if err != nil {
		return ConvertDBError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &jsonapierr.ResourceNotFoundError{ResourceType: resourceType, ID: id}
	}
	return nil
}

// SetRelationship replaces a relationship's linkage wholesale.
func (s *PostgresStore) SetRelationship(ctx context.Context, target *Identifier, relationship string, value RelationshipValue) error {
	rc, err := s.lookup(target.Type)
	if err != nil {
		return err
	}
	rel, ok := rc.Relationship(relationship)
	if !ok {
		return &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: relationship}
	}
	q := s.querier(ctx)

	if rel.Kind == resource.ToOne {
		var fk interface{}
		if value.ToOne != nil {
			fk = value.ToOne.ID
		}
		update := fmt.Sprintf(
			"UPDATE %s SET %s = $1 WHERE id = $2",
			tableName(rc.PublicName), foreignKeyColumn(relationship),
		)
		result, err := q.ExecContext(ctx, update, fk, target.ID)
		if err != nil {
			return ConvertDBError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &jsonapierr.ResourceNotFoundError{ResourceType: target.Type, ID: target.ID}
		}
		return nil
	}

	if err := s.requireExists(ctx, rc, target.ID); err != nil {
		return err
	}
	return s.replaceToMany(ctx, rc, target.ID, relationship, value.ToMany)
}

// AddToRelationship appends identifiers to a to-many relationship, skipping
// ones already present.
func (s *PostgresStore) AddToRelationship(ctx context.Context, target *Identifier, relationship string, related []*Identifier) error {
	rc, err := s.lookup(target.Type)
	if err != nil {
		return err
	}
	if _, ok := rc.Relationship(relationship); !ok {
		return &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: relationship}
	}
	if err := s.requireExists(ctx, rc, target.ID); err != nil {
		return err
	}
	q := s.querier(ctx)
	join := joinTableName(rc.PublicName, relationship)

	for _, identifier := range related {
		insert := fmt.Sprintf(
			"INSERT INTO %s (parent_id, related_id, position) "+
				"SELECT $1, $2, COALESCE(MAX(position), -1) + 1 FROM %s WHERE parent_id = $1 "+
				"ON CONFLICT (parent_id, related_id) DO NOTHING",
			join, join,
		)
		if _, err := q.ExecContext(ctx, insert, target.ID, identifier.ID); err != nil {
			return ConvertDBError(err)
		}
	}
	return nil
}

// RemoveFromRelationship removes identifiers from a to-many relationship;
// absent members are ignored.
func (s *PostgresStore) RemoveFromRelationship(ctx context.Context, target *Identifier, relationship string, related []*Identifier) error {
	rc, err := s.lookup(target.Type)
	if err != nil {
		return err
	}
	if _, ok := rc.Relationship(relationship); !ok {
		return &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: relationship}
	}
	if err := s.requireExists(ctx, rc, target.ID); err != nil {
		return err
	}
	q := s.querier(ctx)

	ids := make([]string, len(related))
	for i, identifier := range related {
		ids[i] = identifier.ID
	}
	del := fmt.Sprintf(
		"DELETE FROM %s WHERE parent_id = $1 AND related_id = ANY($2)",
		joinTableName(rc.PublicName, relationship),
	)
	if _, err := q.ExecContext(ctx, del, target.ID, pq.Array(ids)); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

func (s *PostgresStore) requireExists(ctx context.Context, rc *resource.Context, id string) error {
	q := s.querier(ctx)
	var one int
	sel := fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1", tableName(rc.PublicName))
	err := q.QueryRowContext(ctx, sel, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &jsonapierr.ResourceNotFoundError{ResourceType: rc.PublicName, ID: id}
	}
	return ConvertDBError(err)
}

func (s *PostgresStore) replaceToMany(ctx context.Context, rc *resource.Context, id, relationship string, related []*Identifier) error {
	q := s.querier(ctx)
	join := joinTableName(rc.PublicName, relationship)

	if _, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE parent_id = $1", join), id); err != nil {
		return ConvertDBError(err)
	}
	for position, identifier := range related {
		insert := fmt.Sprintf("INSERT INTO %s (parent_id, related_id, position) VALUES ($1, $2, $3)", join)
		if _, err := q.ExecContext(ctx, insert, id, identifier.ID, position); err != nil {
			return ConvertDBError(err)
		}
	}
	return nil
}

// loadToMany fills in to-many linkage for a batch of records with one query
// per relationship.
func (s *PostgresStore) loadToMany(ctx context.Context, rc *resource.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	q := s.querier(ctx)

	byID := make(map[string]*Record, len(records))
	ids := make([]string, 0, len(records))
	for _, record := range records {
		byID[record.ID] = record
		ids = append(ids, record.ID)
	}

	for _, rel := range rc.Relationships() {
		if rel.Kind != resource.ToMany {
			continue
		}
		sel := fmt.Sprintf(
			"SELECT parent_id, related_id FROM %s WHERE parent_id = ANY($1) ORDER BY parent_id, position",
			joinTableName(rc.PublicName, rel.PublicName),
		)
		rows, err := q.QueryContext(ctx, sel, pq.Array(ids))
		if err != nil {
			return ConvertDBError(err)
		}
		for rows.Next() {
			var parentID, relatedID string
			if err := rows.Scan(&parentID, &relatedID); err != nil {
				rows.Close()
				return err
			}
			parent := byID[parentID]
			parent.ToMany[rel.PublicName] = append(parent.ToMany[rel.PublicName],
				&Identifier{Type: rel.RightTypeName, ID: relatedID})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// collectIncluded walks the include chains breadth by segment, batching one
// query per (chain segment, parent set). Duplicate records and records already
// in the primary set are dropped.
func (s *PostgresStore) collectIncluded(ctx context.Context, rc *resource.Context, primary []*Record, spec *query.Specification) ([]*Record, error) {
	if spec == nil || spec.Include == nil || len(spec.Include.Chains) == 0 {
		return nil, nil
	}

	seen := make(map[Identifier]bool)
	for _, record := range primary {
		seen[Identifier{Type: record.Type, ID: record.ID}] = true
	}

	var included []*Record
	for _, chain := range spec.Include.Chains {
		current := primary
		for _, rel := range chain {
			rightRC, _ := s.graph.Lookup(rel.RightTypeName)

			next, err := s.fetchRelated(ctx, current, rightRC, rel)
			if err != nil {
				return nil, err
			}
			for _, record := range next {
				key := Identifier{Type: record.Type, ID: record.ID}
				if seen[key] {
					continue
				}
				seen[key] = true
				included = append(included, record)
			}
			current = next
		}
	}
	return included, nil
}

func (s *PostgresStore) fetchRelated(ctx context.Context, parents []*Record, rightRC *resource.Context, rel *resource.Relationship) ([]*Record, error) {
	idSet := make(map[string]bool)
	var ids []string
	for _, parent := range parents {
		if rel.Kind == resource.ToOne {
			if identifier := parent.ToOne[rel.PublicName]; identifier != nil && !idSet[identifier.ID] {
				idSet[identifier.ID] = true
				ids = append(ids, identifier.ID)
			}
			continue
		}
		for _, identifier := range parent.ToMany[rel.PublicName] {
			if !idSet[identifier.ID] {
				idSet[identifier.ID] = true
				ids = append(ids, identifier.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	q := s.querier(ctx)
	columns := s.selectColumns(rightRC)
	sel := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = ANY($1)",
		strings.Join(columns, ", "), tableName(rightRC.PublicName),
	)
	rows, err := q.QueryContext(ctx, sel, pq.Array(ids))
	if err != nil {
		return nil, ConvertDBError(err)
	}
	records, err := s.scanRecords(rows, rightRC)
	if err != nil {
		return nil, err
	}
	if err := s.loadToMany(ctx, rightRC, records); err != nil {
		return nil, err
	}
	return records, nil
}

// selectColumns returns the column list for a resource in a deterministic
// order: id first, then attributes and to-one foreign keys sorted by name.
func (s *PostgresStore) selectColumns(rc *resource.Context) []string {
	columns := []string{"id"}
	var rest []string
	for _, attr := range rc.Attributes() {
		rest = append(rest, columnName(attr.PublicName))
	}
	for _, rel := range rc.Relationships() {
		if rel.Kind == resource.ToOne {
			rest = append(rest, foreignKeyColumn(rel.PublicName))
		}
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

func (s *PostgresStore) scanRecords(rows *sql.Rows, rc *resource.Context) ([]*Record, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []*Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		records = append(records, s.buildRecord(rc, columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresStore) scanRecord(row *sql.Row, rc *resource.Context, columns []string) (*Record, error) {
	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := row.Scan(valuePtrs...); err != nil {
		return nil, err
	}
	return s.buildRecord(rc, columns, values), nil
}

func (s *PostgresStore) buildRecord(rc *resource.Context, columns []string, values []interface{}) *Record {
	record := &Record{
		Type:       rc.PublicName,
		Attributes: make(map[string]interface{}),
		ToOne:      make(map[string]*Identifier),
		ToMany:     make(map[string][]*Identifier),
	}

	byColumn := make(map[string]interface{}, len(columns))
	for i, column := range columns {
		byColumn[column] = normalizeScanned(values[i])
	}

	if id, ok := byColumn["id"].(string); ok {
		record.ID = id
	}
	for _, attr := range rc.Attributes() {
		if value, ok := byColumn[columnName(attr.PublicName)]; ok {
			record.Attributes[attr.PublicName] = value
		}
	}
	for _, rel := range rc.Relationships() {
		if rel.Kind != resource.ToOne {
			continue
		}
		value, ok := byColumn[foreignKeyColumn(rel.PublicName)]
		if !ok {
			continue
		}
		if value == nil {
			record.ToOne[rel.PublicName] = nil
			continue
		}
		if id, ok := value.(string); ok {
			record.ToOne[rel.PublicName] = &Identifier{Type: rel.RightTypeName, ID: id}
		}
	}
	return record
}

// normalizeScanned converts driver byte slices to strings; other scanned
// values pass through unchanged.
func normalizeScanned(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

func (s *PostgresStore) orderClause(rc *resource.Context, spec *query.Specification) string {
	if spec == nil || spec.Sort == nil || len(spec.Sort.Elements) == 0 {
		return " ORDER BY id"
	}
	var parts []string
	for _, element := range spec.Sort.Elements {
		expr := pathColumn(rc, element.Path, s.graph)
		if !element.Ascending {
			expr += " DESC"
		}
		parts = append(parts, expr)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (s *PostgresStore) pageBounds(spec *query.Specification) (limit, offset int) {
	size := s.defaultPageSize
	number := 1
	if spec != nil && spec.Pagination != nil {
		if spec.Pagination.Primary.Size > 0 {
			size = spec.Pagination.Primary.Size
		}
		if spec.Pagination.Primary.Number > 0 {
			number = spec.Pagination.Primary.Number
		}
	}
	return size, (number - 1) * size
}

func cloneIdentifiers(ids []*Identifier) []*Identifier {
	out := make([]*Identifier, len(ids))
	for i, id := range ids {
		copied := *id
		out[i] = &copied
	}
	return out
}
