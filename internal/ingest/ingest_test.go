package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const dashboardCSV = `organisation_name,farm_id,country,year,crop,area_ha,yield_tonnes,fertilizer_n_kg,diesel_litres,electricity_kwh,water_m3,workers_total,workers_female,accidents_count,certification
Acme,F1,UK,2024,Wheat,10,50,1000,200,400,150,20,5,2,yes
Acme,F2,UK,2024,Barley,0,40,800,150,300,120,0,0,0,no
,,,,,,,,,,,,,,
`

func TestNormaliseHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"farm_id", "farm_id"},
		{"  Farm ID ", "farm_id"},
		{"Area-HA", "area_ha"},
		{"field_area_ha", "area_ha"},
		{"fertiliser_kgN", "fertilizer_n_kg"},
		{"fertiliser_kgP2O5", "fertilizer_p_kg"},
		{"fertiliser_kgK2O", "fertilizer_k_kg"},
		{"water_volume_m3", "water_m3"},
		{"sfi_soil_standard_yes_no", "sfi_soil_standard"},
		{"Cover Crop Planted (yes/no)", "cover_crop_planted"},
		{"\ufeffOrganisation", "organisation_name"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormaliseHeader(tt.in))
		})
	}
}

func TestNewTable(t *testing.T) {
	tbl := NewTable("mem", []string{"Farm ID", "area_ha", "farm_id", ""}, [][]string{
		{"F1", " 10 ", "dup", "x"},
		{"F2"},
		{" ", ""},
	})

	assert.Equal(t, []string{"farm_id", "area_ha"}, tbl.Header)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, model.ActivityRecord{"farm_id": "F1", "area_ha": "10"}, tbl.Records[0])
	assert.Equal(t, model.ActivityRecord{"farm_id": "F2", "area_ha": ""}, tbl.Records[1])
	assert.True(t, tbl.Records[1].Has("area_ha"))
}

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), "upload.csv", strings.NewReader(dashboardCSV), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, "upload.csv", tbl.Source)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, "F2", tbl.Records[1]["farm_id"])
	assert.NoError(t, tbl.Check(DashboardSchema))
	assert.Equal(t, []string{"certification"}, tbl.OptionalPresent())
}

func TestReadCSV_Semicolon(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), "x", strings.NewReader("farm_id;area_ha\nF1;3\n"), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, "3", tbl.Records[0]["area_ha"])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(context.Background(), "empty.csv", strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, "x", strings.NewReader(dashboardCSV), CSVOptions{})
	assert.Error(t, err)
}

func TestSchemaCheck(t *testing.T) {
	err := FieldSchema.Check([]string{"farm_id", "year", "diesel_litres"})
	require.Error(t, err)
	assert.True(t, model.IsSchemaError(err))

	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"farm_name", "area_ha", "fertilizer_n_kg"}, se.Missing)

	assert.NoError(t, FieldSchema.Check(FieldSchema.Required))
	assert.Equal(t, FieldSchema, SchemaFor("field"))
	assert.Equal(t, DashboardSchema, SchemaFor("dashboard"))
	assert.Equal(t, DashboardSchema, SchemaFor(""))
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Fields": {
			{"farm_id", "farm_name", "year", "field_area_ha", "fertiliser_kgN", "diesel_litres", "sfi_hedgerows_yes_no"},
			{"F1", "Hill", "2024", "12.5", "300", "80", "Yes"},
		},
	})

	tbl, err := ReadXLSX(path, XLSXOptions{SheetName: "Fields"})
	require.NoError(t, err)
	require.NoError(t, tbl.Check(FieldSchema))
	require.Len(t, tbl.Records, 1)
	assert.Equal(t, "12.5", tbl.Records[0]["area_ha"])
	assert.Equal(t, "Yes", tbl.Records[0]["sfi_hedgerows"])
}

func TestReadXLSX_SkipRowsAndErrors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Exported 2024-01-01"},
			{"farm_id", "area_ha"},
			{"F1", "4"},
		},
	})

	tbl, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"farm_id", "area_ha"}, tbl.Header)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
	_, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "farms.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(dashboardCSV), 0o644))

	tbl, err := ReadFile(context.Background(), csvPath)
	require.NoError(t, err)
	assert.Len(t, tbl.Records, 2)

	_, err = ReadFile(context.Background(), filepath.Join(dir, "farms.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	_, err = ReadFile(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
