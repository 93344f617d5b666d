package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "whole units", input: "125", want: 12500},
		{name: "two decimals", input: "125.50", want: 12550},
		{name: "one decimal", input: "125.5", want: 12550},
		{name: "zero", input: "0", want: 0},
		{name: "empty means zero", input: "", want: 0},
		{name: "negative", input: "-3.25", want: -325},
		{name: "bare fraction", input: ".75", want: 75},
		{name: "too many decimals", input: "1.505", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAmountCents(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadDisputesCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glosas.csv")
	content := `account_id,dispute_id,item_id,item_description,category,short_description,justification,disputed_amount,original_status
FAC-001,G-1,IT-9,HOSPEDAJE,TARIFAS,Mayor valor,MAYOR VALOR COBRADO EN SERVICIO DE ALOJAMIENTO,1255.50,GLOSADO
FAC-001,G-2,IT-10,MEDICAMENTO,MEDICAMENTOS,No autorizado,MEDICAMENTO NO AUTORIZADO,300,GLOSADO
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	items, err := readDisputesCSV(path)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "FAC-001", items[0].AccountID)
	assert.Equal(t, "G-1", items[0].DisputeID)
	assert.Equal(t, "TARIFAS", items[0].Category)
	assert.Equal(t, int64(125550), items[0].DisputedCents)
	assert.Equal(t, "MAYOR VALOR COBRADO EN SERVICIO DE ALOJAMIENTO", items[0].Justification)
	assert.Equal(t, int64(30000), items[1].DisputedCents)
}

func TestReadDisputesCSV_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("account_id,category\nFAC-001,TARIFAS\n"), 0o600))

	_, err := readDisputesCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispute_id")
}
