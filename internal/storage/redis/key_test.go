package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCartStore_Key(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "storefront", want: "storefront:cart:u1"},
		{prefix: "storefront:", want: "storefront:cart:u1"},
		{prefix: "", want: "cart:u1"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, NewCartStore(nil, tt.prefix, 0).Key("u1"))
		})
	}
}
