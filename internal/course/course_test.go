package course

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestService_CreateAndList(t *testing.T) {
	svc := NewService(NewMemStore(), zap.NewNop())
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{TeacherID: "t1", Name: " Physics ", Code: "phy101"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Physics", c.Name)
	assert.Equal(t, "PHY101", c.Code)

	_, err = svc.Create(ctx, CreateRequest{TeacherID: "t2", Name: "Chemistry", Code: "CHE"})
	require.NoError(t, err)

	mine, err := svc.ListByTeacher(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c.ID, mine[0].ID)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := svc.ListByTeacher(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestService_CreateValidates(t *testing.T) {
	svc := NewService(NewMemStore(), nil)
	_, err := svc.Create(context.Background(), CreateRequest{TeacherID: "t1", Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_Enroll(t *testing.T) {
	svc := NewService(NewMemStore(), zap.NewNop())
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateRequest{TeacherID: "t1", Name: "Physics", Code: "PHY"})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, c.ID, "s1")
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, c.ID, "s1")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	_, err = svc.Enroll(ctx, "missing", "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := svc.IsEnrolled(ctx, c.ID, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.IsEnrolled(ctx, c.ID, "s2")
	require.NoError(t, err)
	assert.False(t, ok)

	students, err := svc.ListStudents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "s1", students[0].StudentID)

	mine, err := svc.ListByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c.ID, mine[0].ID)

	none, err := svc.ListByStudent(ctx, "s2")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
