package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWords_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		isNil   bool
		wantErr bool
	}{
		{name: "string", input: `"company Acme"`, want: "company Acme"},
		{name: "list", input: `["company", "Acme", "Corp"]`, want: "company Acme Corp"},
		{name: "list with scalars", input: `["top", 10, true]`, want: "top 10 true"},
		{name: "empty list", input: `[]`, want: ""},
		{name: "null", input: `null`, isNil: true},
		{name: "object", input: `{"a":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w Words
			err := json.Unmarshal([]byte(tt.input), &w)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.isNil {
				assert.Nil(t, w)
				return
			}
			assert.NotNil(t, w)
			assert.Equal(t, tt.want, w.Join())
		})
	}
}

func TestAnalyseRequest_MissingField(t *testing.T) {
	var req AnalyseRequest
	require.NoError(t, json.Unmarshal([]byte(`{}`), &req))
	assert.Nil(t, req.InputData)
}
