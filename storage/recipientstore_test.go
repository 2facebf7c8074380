package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailguard/core"
)

func TestRecipientStore_AddAssignsIDAndCreatedAt(t *testing.T) {
	s := NewRecipientStore()

	r := s.Add(core.Recipient{Name: "Ranger Station", Phone: "+14155550100", Active: true})
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ranger Station", got.Name)
}

func TestRecipientStore_UpdateMergesPartialFields(t *testing.T) {
	s := NewRecipientStore()
	r := s.Add(core.Recipient{
		Name:     "Village Head",
		Phone:    "+14155550101",
		Channels: []core.Channel{core.ChannelSMS},
		Active:   true,
	})

	newEmail := "head@village.example"
	inactive := false
	updated, err := s.Update(r.ID, core.RecipientUpdate{Email: &newEmail, Active: &inactive})
	require.NoError(t, err)

	assert.Equal(t, "Village Head", updated.Name)
	assert.Equal(t, "+14155550101", updated.Phone)
	assert.Equal(t, "head@village.example", updated.Email)
	assert.False(t, updated.Active)
	assert.Equal(t, r.CreatedAt, updated.CreatedAt)
}

func TestRecipientStore_UpdateUnknownID(t *testing.T) {
	s := NewRecipientStore()
	_, err := s.Update("missing", core.RecipientUpdate{})
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

func TestRecipientStore_Delete(t *testing.T) {
	s := NewRecipientStore()
	r := s.Add(core.Recipient{Name: "Temp"})

	require.NoError(t, s.Delete(r.ID))
	_, err := s.Get(r.ID)
	assert.ErrorIs(t, err, ErrRecipientNotFound)
	assert.ErrorIs(t, s.Delete(r.ID), ErrRecipientNotFound)
}

func TestRecipientStore_DerivedViews(t *testing.T) {
	s := NewRecipientStore()
	s.Add(core.Recipient{Name: "a", Active: true, AutoAlert: true})
	s.Add(core.Recipient{Name: "b", Active: true, AutoAlert: false})
	s.Add(core.Recipient{Name: "c", Active: false, AutoAlert: true})

	assert.Len(t, s.List(), 3)
	assert.Len(t, s.ListActive(), 2)

	auto := s.ListAutoAlert()
	require.Len(t, auto, 1)
	assert.Equal(t, "a", auto[0].Name)
}
