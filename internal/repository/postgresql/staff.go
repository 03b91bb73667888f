package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type StaffRepo struct {
	db db.DB
}

func NewStaffRepo(db db.DB) *StaffRepo {
	return &StaffRepo{db: db}
}

func (r *StaffRepo) Create(ctx context.Context, s *repository.Staff, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
        INSERT INTO staff (id, username, email, password, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, s.ID, s.Username, s.Email, string(hashedPassword), s.CreatedAt)
	return err
}

func (r *StaffRepo) GetByID(ctx context.Context, id string) (*repository.Staff, error) {
	var s repository.Staff
	err := r.db.Get(ctx, &s, "SELECT id, username, email, created_at FROM staff WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns staff in creation order; the round-robin picker relies on a
// stable ordering to break ties by first encountered.
func (r *StaffRepo) List(ctx context.Context) ([]*repository.Staff, error) {
	var staff []*repository.Staff
	err := r.db.Select(ctx, &staff, "SELECT id, username, email, created_at FROM staff ORDER BY created_at ASC")
	return staff, err
}

func (r *StaffRepo) ValidateCredentials(ctx context.Context, username, password string) (bool, error) {
	var hashedPassword string
	err := r.db.ExecQueryRow(ctx,
		"SELECT password FROM staff WHERE username = $1", username).Scan(&hashedPassword)
	if err != nil {
		return false, errors.New("staff not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}
