package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerIsExactlyOneOf(t *testing.T) {
	client := ClientOwner(42)
	id, ok := client.ClientID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	_, ok = client.Token()
	assert.False(t, ok)
	assert.True(t, client.Valid())

	anon := SessionOwner("tok-123")
	token, ok := anon.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok-123", token)
	_, ok = anon.ClientID()
	assert.False(t, ok)
	assert.True(t, anon.Valid())
}

func TestOwnerZeroValuesAreInvalid(t *testing.T) {
	assert.False(t, Owner{}.Valid())
	assert.False(t, ClientOwner(0).Valid())
	assert.False(t, SessionOwner("").Valid())
}

func TestOwnerString(t *testing.T) {
	assert.Equal(t, "client:7", ClientOwner(7).String())
	assert.Equal(t, "session:abc", SessionOwner("abc").String())
	assert.Equal(t, "unowned", Owner{}.String())
}

func TestTotalSumsIntegerMinorUnits(t *testing.T) {
	lines := []Line{
		{ProductID: 1, PriceCents: 500, Quantity: 2},
		{ProductID: 2, PriceCents: 1000, Quantity: 1},
	}
	assert.Equal(t, int64(2000), Total(lines))
	assert.Equal(t, int64(0), Total(nil))
}
