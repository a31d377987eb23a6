package inmemdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/user"
	inmemdb "github.com/eminingcampus/campus/storage/database/inmem"
	"github.com/eminingcampus/campus/tests/testutil"
)

func TestDB_RunInTx(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	users := inmemdb.NewUserRepository(db)
	ama := testutil.CreateUser(t, users, "Ama", "ama_m", "ama@test.gh", "", []string{user.RoleStudent}, true)

	errBoom := errors.New("boom")
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		ama.Name = "Ama Mensah"
		if _, err := users.UpdateUser(ctx, ama); err != nil {
			return err
		}
		// nested units of work join the ongoing one
		return db.RunInTx(ctx, func(ctx context.Context) error {
			testutil.CreateUser(t, users, "Kofi", "kofi", "kofi@test.gh", "", nil, true)
			return errBoom
		})
	})
	assert.Equal(t, errBoom, err)

	got, err := users.GetUser(ctx, user.GetFilter{ID: ama.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ama", got.Name)
	_, err = users.GetUser(ctx, user.GetFilter{Email: "kofi@test.gh"})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	err = db.RunInTx(ctx, func(ctx context.Context) error {
		testutil.CreateUser(t, users, "Kofi", "kofi", "kofi@test.gh", "", nil, true)
		return nil
	})
	require.NoError(t, err)
	_, err = users.GetUser(ctx, user.GetFilter{Email: "kofi@test.gh"})
	assert.NoError(t, err)
}

func TestLearningRepository_CreateCertificate(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewLearningRepository(inmemdb.Open())
	now := time.Now().UTC()

	cert, created, err := repo.CreateCertificate(ctx, learning.Certificate{CertificateID: "CERT-202410-AAAA0001", StudentID: "s1", CourseID: 1, IssuedAt: now})
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := repo.CreateCertificate(ctx, learning.Certificate{CertificateID: "CERT-202410-BBBB0002", StudentID: "s1", CourseID: 1, IssuedAt: now})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cert.CertificateID, again.CertificateID)

	_, created, err = repo.CreateCertificate(ctx, learning.Certificate{CertificateID: cert.CertificateID, StudentID: "s2", CourseID: 1, IssuedAt: now})
	assert.Equal(t, learning.ErrCertificateIDTaken, err)
	assert.False(t, created)
}
