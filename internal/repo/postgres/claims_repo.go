package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/claimdesk/internal/domain/claim"
	"github.com/geocoder89/claimdesk/internal/observability"
	"github.com/geocoder89/claimdesk/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOwnerNotFound = errors.New("claim owner does not exist")

const claimColumns = `seq, id, description, diagnosis_code, procedure_code, charge_amount,
		provider_name, status, user_id, created_at, updated_at`

type ClaimsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewClaimsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ClaimsRepo {
	return &ClaimsRepo{pool: pool, prom: prom}
}

func (repo *ClaimsRepo) Create(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	err := repo.prom.ObserveDB("claims.create", func() error {
		return repo.pool.QueryRow(ctx, `
		INSERT INTO claims (id, description, diagnosis_code, procedure_code, charge_amount,
			provider_name, status, user_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING seq
	`, c.ID, c.Description, c.DiagnosisCode, c.ProcedureCode, c.ChargeAmount,
			c.ProviderName, string(c.Status), c.OwnerUserID, c.CreatedAt, c.UpdatedAt,
		).Scan(&c.Seq)
	})

	if err != nil {
		if isForeignKeyViolation(err) {
			return claim.Claim{}, ErrOwnerNotFound
		}
		return claim.Claim{}, fmt.Errorf("insert claim: %w", err)
	}

	return c, nil
}

// GetByID treats an id that is not a UUID as unknown; the column would
// reject it with a cast error.
func (repo *ClaimsRepo) GetByID(ctx context.Context, id string) (claim.Claim, error) {
	if !utils.IsUUID(id) {
		return claim.Claim{}, claim.ErrNotFound
	}

	var c claim.Claim

	err := repo.prom.ObserveDB("claims.get_by_id", func() error {
		return scanClaim(repo.pool.QueryRow(ctx,
			`SELECT `+claimColumns+` FROM claims WHERE id = $1`, id,
		), &c)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return claim.Claim{}, claim.ErrNotFound
		}
		return claim.Claim{}, fmt.Errorf("get claim: %w", err)
	}

	return c, nil
}

// List returns claims in insertion order. An owner scope uses the
// (user_id, seq) index.
func (repo *ClaimsRepo) List(ctx context.Context, scope claim.Scope) (claims []claim.Claim, err error) {
	op := "claims.list_all"
	query := `SELECT ` + claimColumns + ` FROM claims ORDER BY seq ASC`
	args := []any{}

	if !scope.IsAll() {
		if !utils.IsUUID(scope.OwnerUserID) {
			return []claim.Claim{}, nil
		}

		op = "claims.list_by_owner"
		query = `SELECT ` + claimColumns + ` FROM claims WHERE user_id = $1 ORDER BY seq ASC`
		args = append(args, scope.OwnerUserID)
	}

	var rows pgx.Rows

	err = repo.prom.ObserveDB(op, func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx, query, args...)
		return qerr
	})

	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	defer rows.Close()

	claims = make([]claim.Claim, 0)

	for rows.Next() {
		var c claim.Claim

		if e := scanClaim(rows, &c); e != nil {
			return nil, e
		}
		claims = append(claims, c)
	}

	if e := rows.Err(); e != nil {
		return nil, e
	}

	return claims, nil
}

// SetStatus overwrites a claim's status in one statement. The row is locked
// while the previous status is read, so the returned previous value is the
// one actually replaced. A nil allowedFrom accepts any previous status.
func (repo *ClaimsRepo) SetStatus(ctx context.Context, id string, to claim.Status, allowedFrom []claim.Status) (updated claim.Claim, previous claim.Status, err error) {
	if !utils.IsUUID(id) {
		return claim.Claim{}, "", claim.ErrNotFound
	}

	var from []string
	if allowedFrom != nil {
		from = make([]string, 0, len(allowedFrom))
		for _, s := range allowedFrom {
			from = append(from, string(s))
		}
	}

	var prev string

	err = repo.prom.ObserveDB("claims.set_status", func() error {
		row := repo.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, status FROM claims WHERE id = $1 FOR UPDATE
		)
		UPDATE claims c
		SET status = $2, updated_at = NOW()
		FROM prev
		WHERE c.id = prev.id
		  AND ($3::text[] IS NULL OR prev.status = ANY($3::text[]))
		RETURNING prev.status, c.seq, c.id, c.description, c.diagnosis_code, c.procedure_code,
			c.charge_amount, c.provider_name, c.status, c.user_id, c.created_at, c.updated_at
	`, id, string(to), from)

		var status string
		e := row.Scan(&prev, &updated.Seq, &updated.ID, &updated.Description, &updated.DiagnosisCode,
			&updated.ProcedureCode, &updated.ChargeAmount, &updated.ProviderName, &status,
			&updated.OwnerUserID, &updated.CreatedAt, &updated.UpdatedAt)
		updated.Status = claim.Status(status)
		return e
	})

	if err == nil {
		return updated, claim.Status(prev), nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return claim.Claim{}, "", fmt.Errorf("set claim status: %w", err)
	}

	// nothing updated: either the claim is missing or the guard refused
	var exists bool

	err = repo.prom.ObserveDB("claims.set_status.check_exists", func() error {
		return repo.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, id).Scan(&exists)
	})

	if err != nil {
		return claim.Claim{}, "", fmt.Errorf("check claim exists: %w", err)
	}

	if !exists {
		return claim.Claim{}, "", claim.ErrNotFound
	}

	return claim.Claim{}, "", claim.ErrInvalidTransition
}

func scanClaim(row pgx.Row, c *claim.Claim) error {
	var status string

	err := row.Scan(
		&c.Seq,
		&c.ID,
		&c.Description,
		&c.DiagnosisCode,
		&c.ProcedureCode,
		&c.ChargeAmount,
		&c.ProviderName,
		&status,
		&c.OwnerUserID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if err != nil {
		return err
	}

	c.Status, err = claim.ParseStatus(status)
	if err != nil {
		return fmt.Errorf("stored status %q: %w", status, err)
	}

	return nil
}
