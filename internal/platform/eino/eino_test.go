package eino

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestExtractProduct(t *testing.T) {
	fm := &fakeModel{reply: "```json\n{\"name\":\"Widget 4000\",\"price\":19.99,\"currency\":\"usd\",\"availability\":\"InStock\"}\n```"}
	svc := NewServiceWithModel(Config{Provider: "gemini", MaxPageChars: 10}, fm)

	p, err := svc.ExtractProduct(context.Background(), PageRequest{
		Query: "widget 4000",
		URL:   "https://shop.example/p/1",
		Text:  strings.Repeat("x", 50),
	})
	require.NoError(t, err)
	assert.Equal(t, &Product{Name: "Widget 4000", Price: 19.99, Currency: "USD", Availability: "InStock"}, p)

	require.Len(t, fm.seen, 2)
	assert.Contains(t, fm.seen[1].Content, "widget 4000")
	assert.NotContains(t, fm.seen[1].Content, strings.Repeat("x", 11), "page text is capped")
}

func TestExtractProductErrors(t *testing.T) {
	svc := NewServiceWithModel(Config{}, &fakeModel{err: errors.New("quota")})
	_, err := svc.ExtractProduct(context.Background(), PageRequest{Query: "q"})
	assert.ErrorContains(t, err, "quota")

	svc = NewServiceWithModel(Config{}, &fakeModel{reply: "I could not find it"})
	_, err = svc.ExtractProduct(context.Background(), PageRequest{Query: "q"})
	assert.ErrorContains(t, err, "invalid JSON")

	_, err = NewService(Config{Provider: "ollama"})
	assert.Error(t, err)
}
