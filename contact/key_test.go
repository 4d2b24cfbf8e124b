package contact

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Contact
		want Key
	}{
		{"unset type", Contact{UserID: "u1", FormattedNumber: "+1555"}, NoPhoneKey{UserID: "u1"}},
		{"empty number", Contact{UserID: "u1", Type: TypeUser}, NoPhoneKey{UserID: "u1"}},
		{"blank number", Contact{UserID: "u1", Type: TypeUser, FormattedNumber: "  "}, NoPhoneKey{UserID: "u1"}},
		{"phone", Contact{UserID: "u1", Type: TypePhoneBook, FormattedNumber: "+1555"}, PhoneKey{UserID: "u1", Number: "+1555"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestLockKeys_IDFirst(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"id:u1"}, NoPhoneKey{UserID: "u1"}.LockKeys())
	assert.Equal(t, []string{"id:zz", "phone:+1"}, PhoneKey{UserID: "zz", Number: "+1"}.LockKeys())
}

func TestTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unset", TypeUnset.String())
	assert.Equal(t, "phone_book_user", TypePhoneBookUser.String())
	assert.Equal(t, "unknown", Type(42).String())
	assert.False(t, TypeUnset.IsSet())
	assert.True(t, TypeUser.IsSet())
}

func TestFilterMatch(t *testing.T) {
	t.Parallel()

	c := Contact{UserID: "u1", Type: TypeUser}
	assert.True(t, Filter{}.Match(c))
	assert.True(t, Filter{Type: TypeUser}.Match(c))
	assert.False(t, Filter{Type: TypePhoneBook}.Match(c))
	assert.False(t, Filter{ExcludeUserID: "u1"}.Match(c))
}

func TestChange(t *testing.T) {
	t.Parallel()

	assert.True(t, Change{Op: OpInserted}.Created())
	assert.True(t, Change{MatchedBy: MatchByPhone, UserID: "b", PreviousUserID: "a"}.Reassigned())
	assert.False(t, Change{MatchedBy: MatchByPhone, UserID: "a", PreviousUserID: "a"}.Reassigned())
	assert.False(t, Change{MatchedBy: MatchByID, UserID: "b", PreviousUserID: "a"}.Reassigned())
}

func TestStorageErrorHelpers(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")

	assert.Nil(t, Transient("op", nil))
	assert.Nil(t, Constraint("op", nil))
	assert.Nil(t, AsStorageError("op", nil))

	tr := Transient("insert", base)
	assert.True(t, IsTransient(tr))
	assert.False(t, IsConstraint(tr))
	assert.ErrorIs(t, tr, base)
	assert.Equal(t, "contact: transient insert: boom", tr.Error())

	co := fmt.Errorf("wrapped: %w", Constraint("update_by_phone", base))
	assert.True(t, IsConstraint(co))
	assert.Same(t, co, AsStorageError("upsert", co))

	assert.True(t, IsTransient(AsStorageError("find", base)))
	assert.ErrorIs(t, AsStorageError("find", context.Canceled), context.Canceled)
	assert.False(t, IsTransient(AsStorageError("find", context.Canceled)))
	assert.True(t, IsTransient(AsStorageError("find", context.DeadlineExceeded)))

	noOp := &StorageError{Kind: KindConstraint, Err: base}
	assert.Equal(t, "contact: constraint storage error: boom", noOp.Error())
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Fields: map[string]string{"user_id": "required", "image_url": "url"}}
	assert.Equal(t, "contact: invalid contact: image_url=url, user_id=required", err.Error())
	require.ErrorIs(t, err, ErrInvalidContact)
}
