package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
)

type request struct {
	TemplateID string   `json:"template_id" validate:"required"`
	StoreIDs   []string `json:"store_ids" validate:"required,min=1"`
	Website    string   `json:"website" validate:"omitempty,url"`
}

func TestToAppError(t *testing.T) {
	v := New()

	tests := []struct {
		req  request
		want string
	}{
		{request{StoreIDs: []string{"a"}}, "template_id is required"},
		{request{TemplateID: "t", StoreIDs: []string{}}, "store_ids must contain at least 1 item(s)"},
		{request{TemplateID: "t", StoreIDs: []string{"a"}, Website: "not a url"}, "website must be a valid URL"},
	}
	for _, tt := range tests {
		err := ToAppError(v.Struct(tt.req))
		assert.True(t, appErrors.IsValidation(err))
		assert.EqualError(t, err, tt.want)
	}

	assert.NoError(t, v.Struct(request{TemplateID: "t", StoreIDs: []string{"a"}}))

	plain := errors.New("boom")
	assert.Equal(t, plain, ToAppError(plain))
}
