package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/database"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

// Postgres stores sessions in the signing_sessions table
type Postgres struct {
	queries *database.Queries
}

// NewPostgres returns a store backed by the signing_sessions table
func NewPostgres(queries *database.Queries) *Postgres {
	return &Postgres{queries: queries}
}

// Get loads the session row or returns signing.ErrSessionNotFound
func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*signing.SigningSession, error) {
	row, err := p.queries.GetSigningSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, signing.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get signing session: %w", err)
	}
	return sessionFromRow(row)
}

// Save inserts the session or updates the existing row
func (p *Postgres) Save(ctx context.Context, sess *signing.SigningSession) error {
	dataFiles, err := json.Marshal(sess.DataFiles)
	if err != nil {
		return fmt.Errorf("failed to encode data files: %w", err)
	}
	signatures, err := json.Marshal(sess.Signatures)
	if err != nil {
		return fmt.Errorf("failed to encode signatures: %w", err)
	}

	err = p.queries.UpsertSigningSession(ctx, database.UpsertSigningSessionParams{
		ID:                 sess.ID,
		Sesscode:           sess.Sesscode,
		State:              string(sess.State),
		Format:             string(sess.Format),
		UploadDir:          sess.UploadDir,
		ContainerFilename:  sess.ContainerFilename,
		PendingSignatureID: sess.PendingSignatureID,
		DataFiles:          dataFiles,
		Signatures:         signatures,
		CreatedAt:          sess.CreatedAt,
		UpdatedAt:          sess.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save signing session: %w", err)
	}
	return nil
}

// Delete removes the session row. Unknown IDs are ignored.
func (p *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	if err := p.queries.DeleteSigningSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete signing session: %w", err)
	}
	return nil
}

// ListUpdatedBefore returns the sessions last updated before cutoff, oldest first
func (p *Postgres) ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*signing.SigningSession, error) {
	rows, err := p.queries.ListSigningSessionsUpdatedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list signing sessions: %w", err)
	}

	sessions := make([]*signing.SigningSession, 0, len(rows))
	for _, row := range rows {
		sess, err := sessionFromRow(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func sessionFromRow(row database.SigningSession) (*signing.SigningSession, error) {
	sess := &signing.SigningSession{
		ID:                 row.ID,
		Sesscode:           row.Sesscode,
		UploadDir:          row.UploadDir,
		ContainerFilename:  row.ContainerFilename,
		Format:             container.Format(row.Format),
		State:              signing.State(row.State),
		PendingSignatureID: row.PendingSignatureID,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if err := json.Unmarshal(row.DataFiles, &sess.DataFiles); err != nil {
		return nil, fmt.Errorf("failed to decode data files of session %s: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Signatures, &sess.Signatures); err != nil {
		return nil, fmt.Errorf("failed to decode signatures of session %s: %w", row.ID, err)
	}
	return sess, nil
}
