package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accordsai/negotiation/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS negotiation_private_values (
  negotiation_id TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('Buyer','Seller')),
  amount NUMERIC NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (negotiation_id, role)
)`

// Postgres stores values in negotiation_private_values. Each operation is
// a single statement, so writers on one key serialize on the row.
type Postgres struct{ DB *pgxpool.Pool }

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{DB: db} }

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schema)
	return err
}

func (s *Postgres) Add(ctx context.Context, id string, role domain.Role, value domain.Amount) error {
	canon, err := normalize(id, role, value)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO negotiation_private_values(negotiation_id,role,amount)
VALUES($1,$2,$3::numeric)
ON CONFLICT (negotiation_id,role) DO UPDATE SET amount=EXCLUDED.amount, updated_at=now()
`, id, string(role), string(canon))
	return err
}

func (s *Postgres) Update(ctx context.Context, id string, role domain.Role, value domain.Amount) error {
	canon, err := normalize(id, role, value)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
UPDATE negotiation_private_values SET amount=$3::numeric, updated_at=now()
WHERE negotiation_id=$1 AND role=$2
`, id, string(role), string(canon))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id, role)
	}
	return nil
}

func (s *Postgres) Query(ctx context.Context, id string, role domain.Role) (domain.Amount, error) {
	if err := checkKey(id, role); err != nil {
		return "", err
	}
	var raw string
	err := s.DB.QueryRow(ctx, `
SELECT amount::text FROM negotiation_private_values
WHERE negotiation_id=$1 AND role=$2
`, id, string(role)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFound(id, role)
		}
		return "", err
	}
	// numeric keeps the scale it was written with; hand back the canonical form.
	return domain.ParseAmount(raw)
}

func (s *Postgres) Close() error {
	s.DB.Close()
	return nil
}
