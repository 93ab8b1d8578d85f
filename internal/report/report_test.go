package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/sfi"
)

func scoredFarm(id, country string, esg float64, metrics model.Metrics) model.ScoredRecord {
	return model.ScoredRecord{
		AggregateRecord: model.AggregateRecord{
			Key:        model.GroupKey{Columns: []string{model.ColFarmID}, Values: []string{id}},
			Attributes: map[string]string{model.ColCountry: country},
			Metrics:    metrics,
			Rows:       1,
		},
		EScore:   esg,
		SScore:   esg,
		GScore:   50,
		ESGScore: esg,
	}
}

func sampleBatch() []model.ScoredRecord {
	return []model.ScoredRecord{
		scoredFarm("A", "UK", 70, model.Metrics{
			model.KPIEmissionsPerHa: 100, model.KPIEmissionsPerTonne: 20,
			model.KPIFemaleShare: 0.5, model.KPIAccidentRate: 2,
		}),
		scoredFarm("B", "FR", 40, model.Metrics{
			model.KPIEmissionsPerHa: 300, model.KPIEmissionsPerTonne: 40,
			model.KPIFemaleShare: 0.2, model.KPIAccidentRate: 10,
		}),
		scoredFarm("C", "UK", 85, model.Metrics{
			model.KPIEmissionsPerHa: 50,
		}),
		scoredFarm("D", "", 55, model.Metrics{
			model.KPIEmissionsPerHa: 200,
		}),
	}
}

func TestBand(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "green"},
		{80, "green"},
		{79.9, "amber"},
		{60, "amber"},
		{40, "orange"},
		{39.9, "red"},
		{0, "red"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Band(tt.score), "score %v", tt.score)
	}
}

func TestDefinitions(t *testing.T) {
	assert.Equal(t, []string{
		"csv_esg_summary", "emissions_performance", "scope3_supply_chain",
		"sfi_plan", "sustainability_summary",
	}, Keys())

	d, err := Lookup("scope3_supply_chain")
	require.NoError(t, err)
	assert.Equal(t, "Supermarkets / buyers", d.Stakeholder)
	assert.True(t, d.Supports(FormatCSV))
	assert.False(t, d.Supports(FormatPDF))

	_, err = Lookup("annual_report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown report")
}

func TestBuildEmissionsReport(t *testing.T) {
	records := []model.KpiRecord{
		{
			Source: model.ActivityRecord{model.ColFieldID: "F1"},
			Metrics: model.Metrics{
				model.ColArea:            10,
				model.KPIScope1Emissions: 2700,
				model.KPIScope3Emissions: 5500,
			},
		},
		{
			Source: model.ActivityRecord{model.ColFieldName: "North"},
			Metrics: model.Metrics{
				model.ColArea:            10,
				model.KPIScope1Emissions: 300,
				model.KPIScope3Emissions: 500,
			},
		},
		{
			Source:  model.ActivityRecord{model.ColFieldID: "F1"},
			Metrics: model.Metrics{model.KPIScope2Emissions: 1000},
		},
	}

	rep := BuildEmissionsReport(FarmProfile{FarmName: "Hill Farm", ReportYear: 2024, BaseYear: 2020}, records)

	assert.Equal(t, "Hill Farm", rep.FarmName)
	assert.Equal(t, 2, rep.Fields)
	assert.InDelta(t, 20, rep.TotalAreaHa, 1e-9)
	assert.InDelta(t, 3.0, rep.Scope1Total, 1e-9)
	assert.InDelta(t, 1.0, rep.Scope2Total, 1e-9)
	assert.InDelta(t, 6.0, rep.Scope3Total, 1e-9)
	assert.InDelta(t, 10.0, rep.Total, 1e-9)
	assert.InDelta(t, 150, rep.Scope1Intensity, 1e-9)
	assert.InDelta(t, 500, rep.Intensity, 1e-9)
	assert.Equal(t, "Emissions are mainly driven by diesel use, electricity use and fertiliser use.", rep.TopDrivers)
}

func TestBuildEmissionsReport_NoArea(t *testing.T) {
	rep := BuildEmissionsReport(FarmProfile{}, []model.KpiRecord{
		{Metrics: model.Metrics{model.KPIScope1Emissions: 1000}},
	})
	assert.InDelta(t, 1.0, rep.Total, 1e-9)
	assert.Zero(t, rep.Intensity)
	assert.Zero(t, rep.Scope1Intensity)
	assert.Equal(t, "Emissions are mainly driven by diesel use.", rep.TopDrivers)
}

func TestDriversSentence(t *testing.T) {
	assert.Equal(t, "No major emissions sources identified in the current dataset.", driversSentence(0, 0, 0))
	assert.Equal(t, "Emissions are mainly driven by diesel use and fertiliser use.", driversSentence(1, 0, 1))
}

func TestInsights(t *testing.T) {
	lines := Insights(sampleBatch())
	require.Len(t, lines, 6)
	assert.Equal(t, "Average ESG score across 4 farms is 62.5/100.", lines[0])
	assert.Equal(t, "Farm C in UK is the current ESG leader with a score of 85.0.", lines[1])
	assert.Equal(t, "Farm B in FR has the lowest ESG score (40.0), indicating a priority candidate for support.", lines[2])
	assert.Contains(t, lines[3], "farms: B, D, A.")
	assert.Equal(t, "Best gender inclusion: Farm A with 50% female workers.", lines[4])
	assert.Equal(t, "Safety concern: Farm B records 10.0 accidents per 100 workers.", lines[5])
}

func TestInsights_Empty(t *testing.T) {
	lines := Insights(nil)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "No insights available")
}

func TestInsights_NoSocialData(t *testing.T) {
	batch := []model.ScoredRecord{scoredFarm("A", "", 50, model.Metrics{})}
	lines := Insights(batch)
	require.Len(t, lines, 3)
	assert.Equal(t, "Farm A is the current ESG leader with a score of 50.0.", lines[1])
}

func TestPeers(t *testing.T) {
	p := Peers(sampleBatch())
	require.NotNil(t, p.EmissionsPerTonne)
	assert.InDelta(t, 30, *p.EmissionsPerTonne, 1e-9)
	require.NotNil(t, p.FemaleShare)
	assert.InDelta(t, 0.35, *p.FemaleShare, 1e-9)
	require.NotNil(t, p.AccidentRate)
	assert.InDelta(t, 6, *p.AccidentRate, 1e-9)
	assert.Nil(t, p.WaterPerTonne)
}

func TestBenchmark(t *testing.T) {
	batch := sampleBatch()
	lines := Benchmark(batch[0], Peers(batch))

	assert.Equal(t, "ESG narrative for A", lines[0])
	assert.Contains(t, lines, "Emissions per tonne: 20.0 kg CO2e/t (peer average 30.0).")
	assert.Contains(t, lines, "Female workforce: 50% (peer average 35%).")
	assert.Contains(t, lines, "Certification: None.")
	assert.Equal(t, "Scores: Environment 70, Social 70, Governance 50, overall ESG 70/100 (amber).", lines[len(lines)-1])
}

func TestWriteCSV(t *testing.T) {
	batch := sampleBatch()[:2]
	batch[0].Tier = "premium"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, batch))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	assert.Equal(t, model.ColFarmID, header[0])
	assert.Equal(t, model.ColCountry, header[1])
	assert.Equal(t, "band", header[len(header)-1])

	assert.Equal(t, "A", rows[1][0])
	assert.Equal(t, "UK", rows[1][1])
	assert.Equal(t, "premium", rows[1][len(header)-2])
	assert.Equal(t, "amber", rows[1][len(header)-1])
	assert.Equal(t, "orange", rows[2][len(header)-1])
}

func TestTable_MissingMetricBlank(t *testing.T) {
	header, rows := Table(sampleBatch())
	col := -1
	for i, h := range header {
		if h == model.KPIEmissionsPerTonne {
			col = i
		}
	}
	require.NotEqual(t, -1, col)
	require.Len(t, rows, 4)
	assert.Equal(t, "20", rows[0][col])
	assert.Equal(t, "", rows[2][col])
}

func TestWriteSFIPlanCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSFIPlanCSV(&buf, []sfi.Readiness{
		{Key: "F1/2024", SoilPct: 50, NutrientPct: 100, HedgerowPct: 0, ReadinessPct: 50, SoilActionPct: 25},
	}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"F1/2024", "50", "100", "0", "50", "25", "SFI"}, rows[1])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleBatch()[:1]))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.InDelta(t, 70, out[0]["ESG_score"], 1e-9)
}

func TestWriteExcel(t *testing.T) {
	batch := sampleBatch()
	var buf bytes.Buffer
	err := WriteExcel(&buf, Workbook{
		Scored:    batch,
		Insights:  Insights(batch),
		Emissions: []EmissionsReport{{FarmProfile: FarmProfile{FarmName: "Hill Farm", ReportYear: 2024}, Total: 1.5}},
		Readiness: []sfi.Readiness{{Key: "F1/2024", ReadinessPct: 40}},
	})
	require.NoError(t, err)

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 4)

	scores := f.Sheet["Scores"]
	require.NotNil(t, scores)
	require.Len(t, scores.Rows, 5)
	assert.Equal(t, model.ColFarmID, scores.Rows[0].Cells[0].String())
	assert.Equal(t, "A", scores.Rows[1].Cells[0].String())

	insights := f.Sheet["Insights"]
	require.NotNil(t, insights)
	assert.Len(t, insights.Rows, 6)

	emissions := f.Sheet["Emissions"]
	require.NotNil(t, emissions)
	assert.Equal(t, "Hill Farm", emissions.Rows[1].Cells[0].String())

	assert.NotNil(t, f.Sheet["SFI Plan"])
}

func TestWriteExcel_ScoresOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, Workbook{Scored: sampleBatch()}))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 1)
}
