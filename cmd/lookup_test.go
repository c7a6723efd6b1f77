//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxid-cli/internal/config"
	"github.com/sells-group/taxid-cli/internal/lookup"
	"github.com/sells-group/taxid-cli/internal/model"
)

func TestWriteResults(t *testing.T) {
	name := "臺北市政府"
	results := []model.LookupResult{
		{TaxID: "69113501", Name: &name, Source: "地方政府機關", Origin: model.OriginStore},
		model.NotFound("99999999", "查無資料"),
	}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, results))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "臺北市政府", got[0]["name"])
	assert.Nil(t, got[1]["name"])
	assert.Contains(t, buf.String(), "臺北市政府")
}

func TestNewLookupService_NoStore(t *testing.T) {
	useConfig(t, sqliteConfig(t))

	svc := newLookupService(nil, nil)
	_, err := svc.Lookup(context.Background(), lookup.Query{TaxID: "03730043"})

	var ce *config.ConfigError
	require.ErrorAs(t, err, &ce)
}
