package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Step
	}{
		{"content", Step{Endpoint: "content"}},
		{"user.0createuserid", Step{Endpoint: "user", Refs: []Ref{{0, "createuserid"}}}},
		{"category.0parentid.12supers", Step{Endpoint: "category", Refs: []Ref{{0, "parentid"}, {12, "supers"}}}},
		{`content-{"type":"content.page"}`, Step{Endpoint: "content", Body: []byte(`{"type":"content.page"}`)}},
		{`comment.1id-{"limit":5,"name":"a-b"}`, Step{
			Endpoint: "comment",
			Refs:     []Ref{{1, "id"}},
			Body:     []byte(`{"limit":5,"name":"a-b"}`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"Content",
		"content.",
		"content.id",
		"content.0",
		"content.0ParentId",
		"content0id",
		"content-",
		"content- ",
		".0id",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.True(t, apperr.IsBadRequest(err), "got %v", err)
		})
	}
}
