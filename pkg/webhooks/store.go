package webhooks

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// Store persists webhook destinations, scoped by workspace
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new destination store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const destinationColumns = `id, workspace_id, url, description, events, secret, format, active, created_at, updated_at`

// CreateDestination registers a destination and generates its signing
// secret. The secret is present on the returned struct exactly once.
func (s *Store) CreateDestination(ctx context.Context, d *Destination) error {
	if err := validateDestination(d.URL, d.Events); err != nil {
		return err
	}
	if d.Format == "" {
		d.Format = FormatJSON
	}
	if !d.Format.Valid() {
		return apierr.Invalid("unknown payload format %q", d.Format)
	}
	if d.WorkspaceID == 0 {
		return apierr.Invalid("workspace is required")
	}

	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	d.Secret = secret
	d.Active = true

	eventsJSON, err := json.Marshal(d.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	now := s.now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_destinations (workspace_id, url, description, events, secret, format, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`, d.WorkspaceID, d.URL, d.Description, string(eventsJSON), d.Secret, d.Format, d.Active, now).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	return nil
}

// GetDestination retrieves a destination in the workspace
func (s *Store) GetDestination(ctx context.Context, workspaceID, id int64) (*Destination, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+destinationColumns+`
		FROM webhook_destinations
		WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID)
	return scanDestination(row)
}

// ListDestinations lists a workspace's destinations
func (s *Store) ListDestinations(ctx context.Context, workspaceID int64) ([]*Destination, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+destinationColumns+`
		FROM webhook_destinations
		WHERE workspace_id = $1
		ORDER BY created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list destinations: %w", err)
	}
	defer rows.Close()

	var list []*Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// ListMatching returns the active destinations in the workspace that
// subscribe to the event type. Subscription matching happens in Go; the
// events column is a JSON array.
func (s *Store) ListMatching(ctx context.Context, workspaceID int64, t EventType) ([]*Destination, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+destinationColumns+`
		FROM webhook_destinations
		WHERE workspace_id = $1 AND active = true
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list destinations: %w", err)
	}
	defer rows.Close()

	var matching []*Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		if d.Matches(t) {
			matching = append(matching, d)
		}
	}
	return matching, rows.Err()
}

// UpdateDestination applies a partial update. RotateSecret issues a new
// signing secret; the returned destination carries it exactly once.
func (s *Store) UpdateDestination(ctx context.Context, workspaceID, id int64, req *UpdateDestinationRequest) (*Destination, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1
	var newSecret string

	if req.URL != nil {
		if err := validateURL(*req.URL); err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("url = $%d", argPos))
		args = append(args, *req.URL)
		argPos++
	}
	if req.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *req.Description)
		argPos++
	}
	if req.Events != nil {
		if len(req.Events) == 0 {
			return nil, apierr.Invalid("at least one event type is required")
		}
		eventsJSON, err := json.Marshal(req.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal events: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("events = $%d", argPos))
		args = append(args, string(eventsJSON))
		argPos++
	}
	if req.Format != nil {
		if !req.Format.Valid() {
			return nil, apierr.Invalid("unknown payload format %q", *req.Format)
		}
		setClauses = append(setClauses, fmt.Sprintf("format = $%d", argPos))
		args = append(args, *req.Format)
		argPos++
	}
	if req.Active != nil {
		setClauses = append(setClauses, fmt.Sprintf("active = $%d", argPos))
		args = append(args, *req.Active)
		argPos++
	}
	if req.RotateSecret {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		newSecret = secret
		setClauses = append(setClauses, fmt.Sprintf("secret = $%d", argPos))
		args = append(args, newSecret)
		argPos++
	}
	if len(setClauses) == 0 {
		return nil, apierr.Invalid("no fields to update")
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, s.now().UTC())
	argPos++

	args = append(args, id, workspaceID)
	query := fmt.Sprintf("UPDATE webhook_destinations SET %s WHERE id = $%d AND workspace_id = $%d",
		strings.Join(setClauses, ", "), argPos, argPos+1)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update destination: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, apierr.NotFound("webhook not found")
	}

	d, err := s.GetDestination(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if newSecret == "" {
		d.Secret = "" // secrets only travel on create/rotate
	}
	return d, nil
}

// DeleteDestination removes a destination. Concurrent deletes observe
// exactly one success; the loser gets not found.
func (s *Store) DeleteDestination(ctx context.Context, workspaceID, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_destinations WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to delete destination: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apierr.NotFound("webhook not found")
	}
	return nil
}

// getDestinationByID loads a destination regardless of workspace. The
// retry worker uses it; API paths always scope by workspace.
func (s *Store) getDestinationByID(ctx context.Context, id int64) (*Destination, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+destinationColumns+`
		FROM webhook_destinations
		WHERE id = $1
	`, id)
	return scanDestination(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDestination(row rowScanner) (*Destination, error) {
	d := &Destination{}
	var eventsJSON string
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.URL, &d.Description, &eventsJSON,
		&d.Secret, &d.Format, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("webhook not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan destination: %w", err)
	}
	if err := json.Unmarshal([]byte(eventsJSON), &d.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	return d, nil
}

func validateDestination(rawURL string, events []EventType) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}
	if len(events) == 0 {
		return apierr.Invalid("at least one event type is required")
	}
	return nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apierr.Invalid("destination URL must be http(s)")
	}
	return nil
}

// generateSecret builds a whsec_-prefixed signing secret
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
