package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONOrNil(t *testing.T) {
	assert.Nil(t, jsonOrNil(nil))
	assert.Equal(t, `{"a":1}`, jsonOrNil([]byte(`{"a":1}`)))
	assert.Equal(t, `"OutSum=1.00&InvId=7"`, jsonOrNil([]byte("OutSum=1.00&InvId=7")))
}
