package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFromText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind ResultKind
		wantText string
	}{
		{name: "object", input: `{"company":"Acme"}`, wantKind: ResultStructured, wantText: `{"company":"Acme"}`},
		{name: "array with whitespace", input: "  [1, 2]\n", wantKind: ResultStructured, wantText: "[1, 2]"},
		{name: "plain text", input: "Acme is doing well", wantKind: ResultRaw, wantText: "Acme is doing well"},
		{name: "broken json", input: `{"company":`, wantKind: ResultRaw, wantText: `{"company":`},
		{name: "json scalar stays raw", input: `"quoted"`, wantKind: ResultRaw, wantText: `"quoted"`},
		{name: "empty", input: "", wantKind: ResultRaw, wantText: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ResultFromText(tt.input)
			assert.Equal(t, tt.wantKind, res.Kind())
			assert.Equal(t, tt.wantText, res.Text())
			assert.False(t, res.IsZero())
		})
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	payload := struct {
		Structured Result  `json:"structured"`
		Raw        Result  `json:"raw"`
		Zero       Result  `json:"zero"`
		Missing    *Result `json:"missing"`
	}{
		Structured: Structured(json.RawMessage(`{"score":7}`)),
		Raw:        Raw("crew failed"),
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"structured":{"score":7},"raw":"crew failed","zero":null,"missing":null}`, string(data))
}

func TestResult_Value(t *testing.T) {
	v, err := Structured(json.RawMessage(`{"a":[1,"b"]}`)).Value()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{float64(1), "b"}}, v)

	v, err = Raw("plain").Value()
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestStructured_CopiesInput(t *testing.T) {
	src := json.RawMessage(`{"a":1}`)
	res := Structured(src)
	src[2] = 'b'

	assert.Equal(t, `{"a":1}`, res.Text())
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult(ResultStructured, `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, ResultStructured, res.Kind())

	res, err = ParseResult(ResultRaw, `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, ResultRaw, res.Kind())

	res, err = ParseResult("", `[true]`)
	require.NoError(t, err)
	assert.Equal(t, ResultStructured, res.Kind())

	_, err = ParseResult(ResultStructured, "not json")
	assert.Error(t, err)

	_, err = ParseResult("binary", "x")
	assert.Error(t, err)
}
