package workspaces

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// PostgresService implements the Service interface with raw SQL. The
// statements stay inside the sqlite-compatible subset so tests run on an
// in-memory database.
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

const workspaceColumns = `id, name, slug, plan, status, settings, created_at, updated_at`

// Create creates a workspace and its owner membership in one transaction
func (s *PostgresService) Create(ctx context.Context, req *CreateWorkspaceRequest, ownerID int64) (*Workspace, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apierr.Invalid("workspace name is required")
	}
	if ownerID == 0 {
		return nil, apierr.Invalid("owner is required")
	}

	ws := &Workspace{
		Name:     strings.TrimSpace(req.Name),
		Slug:     req.Slug,
		Plan:     req.Plan,
		Status:   StatusActive,
		Settings: req.Settings,
	}
	if ws.Slug == "" {
		ws.Slug = Slugify(ws.Name)
	}
	if ws.Slug == "" {
		return nil, apierr.Invalid("workspace slug is required")
	}
	if ws.Plan == "" {
		ws.Plan = PlanFree
	}
	if !ws.Plan.Valid() {
		return nil, apierr.Invalid("unknown plan %q", ws.Plan)
	}

	settingsJSON, err := json.Marshal(ws.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE slug = $1`, ws.Slug).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if exists > 0 {
		return nil, apierr.Conflict("workspace slug %q is taken", ws.Slug)
	}

	now := s.now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, slug, plan, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`, ws.Name, ws.Slug, ws.Plan, ws.Status, string(settingsJSON), now).Scan(&ws.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at, created_at)
		VALUES ($1, $2, 'owner', $3, $3)
	`, ws.ID, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ws, nil
}

// Get retrieves a workspace by ID
func (s *PostgresService) Get(ctx context.Context, id int64) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE id = $1 AND status != $2
	`, id, StatusDeleted)
	return scanWorkspace(row)
}

// GetBySlug retrieves a workspace by slug
func (s *PostgresService) GetBySlug(ctx context.Context, slug string) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE slug = $1 AND status != $2
	`, slug, StatusDeleted)
	return scanWorkspace(row)
}

// ListForUser lists the workspaces a user is a member of
func (s *PostgresService) ListForUser(ctx context.Context, userID int64) ([]*Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.slug, w.plan, w.status, w.settings, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members m ON w.id = m.workspace_id
		WHERE m.user_id = $1 AND w.status != $2
		ORDER BY w.created_at DESC
	`, userID, StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var list []*Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ws)
	}
	return list, rows.Err()
}

// Update applies a partial update to a workspace
func (s *PostgresService) Update(ctx context.Context, id int64, updates *UpdateWorkspaceRequest) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Name != nil {
		if strings.TrimSpace(*updates.Name) == "" {
			return apierr.Invalid("workspace name cannot be empty")
		}
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, strings.TrimSpace(*updates.Name))
		argPos++
	}
	if updates.Settings != nil {
		settingsJSON, err := json.Marshal(updates.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("settings = $%d", argPos))
		args = append(args, string(settingsJSON))
		argPos++
	}
	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, s.now().UTC())
	argPos++

	args = append(args, id, StatusDeleted)
	query := fmt.Sprintf("UPDATE workspaces SET %s WHERE id = $%d AND status != $%d",
		strings.Join(setClauses, ", "), argPos, argPos+1)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	return requireRow(result, "workspace %d", id)
}

// SetPlan changes the subscription plan. Billing calls this after a
// successful plan change or a provider webhook.
func (s *PostgresService) SetPlan(ctx context.Context, id int64, plan Plan) error {
	if !plan.Valid() {
		return apierr.Invalid("unknown plan %q", plan)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET plan = $1, updated_at = $2 WHERE id = $3 AND status != $4
	`, plan, s.now().UTC(), id, StatusDeleted)
	if err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	return requireRow(result, "workspace %d", id)
}

// Delete soft deletes a workspace
func (s *PostgresService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET status = $1, updated_at = $2 WHERE id = $3 AND status != $1
	`, StatusDeleted, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return requireRow(result, "workspace %d", id)
}

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkspace(row rowScanner) (*Workspace, error) {
	ws := &Workspace{}
	var settingsJSON string
	err := row.Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Plan, &ws.Status, &settingsJSON,
		&ws.CreatedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("workspace not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	if settingsJSON != "" && settingsJSON != "null" {
		if err := json.Unmarshal([]byte(settingsJSON), &ws.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return ws, nil
}

// requireRow turns a zero-row mutation into a not-found error
func requireRow(result sql.Result, format string, args ...interface{}) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apierr.NotFound(format+" not found", args...)
	}
	return nil
}

// Slugify derives a URL-safe slug from a workspace name
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}

// generateToken generates a random invitation token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
