package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// OperatorRepository handles persistence for operators.
type OperatorRepository interface {
	Upsert(ctx context.Context, op *domain.Operator) error
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	GetByUsername(ctx context.Context, username string) (*domain.Operator, error)
	List(ctx context.Context) ([]domain.Operator, error)
}

type operatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository instantiates the postgres repository.
func NewOperatorRepository(pool *pgxpool.Pool) OperatorRepository {
	return &operatorRepository{pool: pool}
}

// Upsert inserts the operator or updates the row with the same username.
func (r *operatorRepository) Upsert(ctx context.Context, op *domain.Operator) error {
	const query = `
        INSERT INTO operators (id, username, display_name, password_hash, role, module_id, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (username) DO UPDATE
        SET display_name=EXCLUDED.display_name, password_hash=EXCLUDED.password_hash, role=EXCLUDED.role,
            module_id=EXCLUDED.module_id, active_flag=EXCLUDED.active_flag, updated_at=NOW()
        RETURNING id, created_at, updated_at`

	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx, query,
		op.ID,
		op.Username,
		op.DisplayName,
		op.PasswordHash,
		op.Role,
		op.ModuleID,
		op.Active,
	).Scan(&op.ID, &op.CreatedAt, &op.UpdatedAt)
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	const query = `
        SELECT id, username, display_name, password_hash, role, module_id, active_flag, created_at, updated_at
        FROM operators WHERE id=$1`
	return r.scanOne(ctx, query, id)
}

func (r *operatorRepository) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	const query = `
        SELECT id, username, display_name, password_hash, role, module_id, active_flag, created_at, updated_at
        FROM operators WHERE username=$1`
	return r.scanOne(ctx, query, strings.ToLower(username))
}

func (r *operatorRepository) List(ctx context.Context) ([]domain.Operator, error) {
	const query = `
        SELECT id, username, display_name, password_hash, role, module_id, active_flag, created_at, updated_at
        FROM operators ORDER BY username`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *op)
	}
	return result, rows.Err()
}

func (r *operatorRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Operator, error) {
	op, err := scanOperator(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return op, err
}

func scanOperator(row pgx.Row) (*domain.Operator, error) {
	var op domain.Operator
	if err := row.Scan(
		&op.ID,
		&op.Username,
		&op.DisplayName,
		&op.PasswordHash,
		&op.Role,
		&op.ModuleID,
		&op.Active,
		&op.CreatedAt,
		&op.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &op, nil
}

type memoryOperatorRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Operator
	clock func() time.Time
}

// NewMemoryOperatorRepository returns a process-local repository, used when
// no database is configured.
func NewMemoryOperatorRepository() OperatorRepository {
	return &memoryOperatorRepository{byID: make(map[string]*domain.Operator), clock: time.Now}
}

func (r *memoryOperatorRepository) Upsert(_ context.Context, op *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock().UTC()
	for _, existing := range r.byID {
		if existing.Username == op.Username {
			op.ID = existing.ID
			op.CreatedAt = existing.CreatedAt
			op.UpdatedAt = now
			stored := *op
			r.byID[op.ID] = &stored
			return nil
		}
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	op.CreatedAt, op.UpdatedAt = now, now
	stored := *op
	r.byID[op.ID] = &stored
	return nil
}

func (r *memoryOperatorRepository) GetByID(_ context.Context, id string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *op
	return &out, nil
}

func (r *memoryOperatorRepository) GetByUsername(_ context.Context, username string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username = strings.ToLower(username)
	for _, op := range r.byID {
		if op.Username == username {
			out := *op
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryOperatorRepository) List(_ context.Context) ([]domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Operator, 0, len(r.byID))
	for _, op := range r.byID {
		result = append(result, *op)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
