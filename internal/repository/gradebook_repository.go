package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
)

// GradebookRepository persists normalized gradebooks together with the snapshot they came from.
type GradebookRepository struct {
	db *sqlx.DB
}

// NewGradebookRepository constructs a GradebookRepository.
func NewGradebookRepository(db *sqlx.DB) *GradebookRepository {
	return &GradebookRepository{db: db}
}

type gradebookRow struct {
	ID          string    `db:"id"`
	StudentID   string    `db:"student_id"`
	PeriodIndex int       `db:"period_index"`
	PeriodName  string    `db:"period_name"`
	Snapshot    string    `db:"snapshot"`
	Grades      string    `db:"grades"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r gradebookRow) toModel() (*models.Gradebook, error) {
	book := &models.Gradebook{
		ID:        r.ID,
		StudentID: r.StudentID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Grades), &book.Grades); err != nil {
		return nil, fmt.Errorf("decode gradebook %s: %w", r.ID, err)
	}
	return book, nil
}

// Create inserts a gradebook, generating its ID and timestamps when unset.
func (r *GradebookRepository) Create(ctx context.Context, book *models.Gradebook, snapshot []byte) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt

	grades, err := json.Marshal(book.Grades)
	if err != nil {
		return fmt.Errorf("encode gradebook: %w", err)
	}
	if len(snapshot) == 0 {
		snapshot = []byte("{}")
	}

	row := gradebookRow{
		ID:          book.ID,
		StudentID:   book.StudentID,
		PeriodIndex: book.Grades.Period.Index,
		PeriodName:  book.Grades.Period.Name,
		Snapshot:    string(snapshot),
		Grades:      string(grades),
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
	const query = `INSERT INTO gradebooks (id, student_id, period_index, period_name, snapshot, grades, created_at, updated_at)
VALUES (:id, :student_id, :period_index, :period_name, :snapshot, :grades, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create gradebook: %w", err)
	}
	return nil
}

// FindByID loads a gradebook. A missing row surfaces as a wrapped sql.ErrNoRows.
func (r *GradebookRepository) FindByID(ctx context.Context, id string) (*models.Gradebook, error) {
	query := r.db.Rebind(`SELECT id, student_id, period_index, period_name, snapshot, grades, created_at, updated_at
FROM gradebooks WHERE id = ?`)
	var row gradebookRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("find gradebook: %w", err)
	}
	return row.toModel()
}

// UpdateGrades overwrites the stored grades document and bumps updated_at.
func (r *GradebookRepository) UpdateGrades(ctx context.Context, book *models.Gradebook) error {
	grades, err := json.Marshal(book.Grades)
	if err != nil {
		return fmt.Errorf("encode gradebook: %w", err)
	}
	book.UpdatedAt = time.Now().UTC()

	query := r.db.Rebind(`UPDATE gradebooks SET grades = ?, period_index = ?, period_name = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, string(grades), book.Grades.Period.Index, book.Grades.Period.Name, book.UpdatedAt, book.ID)
	if err != nil {
		return fmt.Errorf("update gradebook: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update gradebook rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update gradebook %s: no rows affected", book.ID)
	}
	return nil
}

// ListByStudent returns a page of gradebook summaries, newest first, with the total count.
func (r *GradebookRepository) ListByStudent(ctx context.Context, filter models.GradebookFilter) ([]models.GradebookSummary, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM gradebooks WHERE student_id = ?`)
	if err := r.db.GetContext(ctx, &total, countQuery, filter.StudentID); err != nil {
		return nil, 0, fmt.Errorf("count gradebooks: %w", err)
	}

	query := r.db.Rebind(fmt.Sprintf(`SELECT id, student_id, period_index, period_name, created_at, updated_at
FROM gradebooks WHERE student_id = ? ORDER BY updated_at DESC LIMIT %d OFFSET %d`, size, offset))
	summaries := make([]models.GradebookSummary, 0)
	if err := r.db.SelectContext(ctx, &summaries, query, filter.StudentID); err != nil {
		return nil, 0, fmt.Errorf("list gradebooks: %w", err)
	}
	return summaries, total, nil
}

// Ping reports whether the database is reachable.
func (r *GradebookRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
