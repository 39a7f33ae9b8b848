package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoalFlagsRequest(t *testing.T) {
	f := goalFlags{sites: []string{"amazon"}, budget: 40, max: 3, steps: 12}
	req := f.request("usb-c hub")

	assert.Equal(t, "usb-c hub", req.Text)
	assert.Equal(t, []string{"amazon"}, req.Sites)
	assert.Equal(t, 12, req.MaxSteps)
	require.NotNil(t, req.Constraints.MaxPrice)
	assert.InDelta(t, 40.0, *req.Constraints.MaxPrice, 1e-9)
	assert.Equal(t, 3, req.Constraints.MaxResults)

	assert.Nil(t, (&goalFlags{}).request("x").Constraints.MaxPrice)
}

func TestPlanCommandPrintsOutline(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"plan", "widget on flipkart"})
	require.NoError(t, rootCmd.Execute())

	var body struct {
		Goal struct {
			Query string   `json:"query"`
			Sites []string `json:"sites"`
		} `json:"goal"`
		Plan map[string][]json.RawMessage `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "widget", body.Goal.Query)
	assert.Equal(t, []string{"flipkart"}, body.Goal.Sites)
	assert.NotEmpty(t, body.Plan["flipkart"])
}

func TestWriteJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	var stdout bytes.Buffer
	require.NoError(t, writeJSON(&stdout, path, map[string]int{"steps": 5}))
	assert.Zero(t, stdout.Len())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"steps":5}`, string(b))
}
