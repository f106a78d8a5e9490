package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

func newSession(updatedAt time.Time) *signing.SigningSession {
	return &signing.SigningSession{
		ID:                uuid.New(),
		Sesscode:          100001,
		UploadDir:         "/tmp/uploads/100001",
		ContainerFilename: "contract.bdoc",
		Format:            container.FormatBDOC,
		State:             signing.StateDataFilesRegistered,
		DataFiles: []container.DataFile{
			{ID: "D0", Name: "contract.pdf", MimeType: "application/pdf", Size: 1024},
		},
		Signatures: []signing.Signature{},
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
}

func TestMemoryGetSaveDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sess := newSession(time.Now())

	_, err := store.Get(ctx, sess.ID)
	require.ErrorIs(t, err, signing.ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, sess))
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	// the stored record is a copy
	got.DataFiles[0].Name = "changed.pdf"
	got.State = signing.StateSessionClosed
	again, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "contract.pdf", again.DataFiles[0].Name)
	assert.Equal(t, signing.StateDataFilesRegistered, again.State)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	require.ErrorIs(t, err, signing.ErrSessionNotFound)

	// deleting an unknown session is not an error
	require.NoError(t, store.Delete(ctx, uuid.New()))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryListUpdatedBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()

	oldest := newSession(now.Add(-3 * time.Hour))
	old := newSession(now.Add(-2 * time.Hour))
	recent := newSession(now.Add(-time.Minute))
	for _, sess := range []*signing.SigningSession{recent, old, oldest} {
		require.NoError(t, store.Save(ctx, sess))
	}

	expired, err := store.ListUpdatedBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, oldest.ID, expired[0].ID)
	assert.Equal(t, old.ID, expired[1].ID)

	none, err := store.ListUpdatedBefore(ctx, now.Add(-4*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
