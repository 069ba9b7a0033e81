package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_PlaysBackInOrder(t *testing.T) {
	m := NewMockModel(
		Response{Text: "first"},
		Response{ToolCalls: []ToolCall{{ID: "tc1", Name: "open_box"}}},
	)

	res, err := m.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "first", res.Text)

	res, err = m.Generate(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "open_box", res.ToolCalls[0].Name)

	_, err = m.Generate(context.Background(), Request{})
	require.Error(t, err, "exhausted script must not loop")

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "hi", reqs[0].Messages[0].Text)
}

func TestMockModel_FailWith(t *testing.T) {
	wantErr := errors.New("rate limited")
	m := NewMockModel(Response{Text: "never"}).FailWith(wantErr)

	_, err := m.Generate(context.Background(), Request{})
	require.ErrorIs(t, err, wantErr)
}
