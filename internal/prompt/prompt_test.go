package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizloom/internal/dataset"
)

func salesFrame() *dataset.Frame {
	header := []string{"Région", "Chiffre d'affaires (€)", "units sold", "date"}
	rows := [][]string{
		{"Nord", "1200.5", "10", "2024-01-01"},
		{"Sud", "980", "8", "2024-01-02"},
		{"Nord", "1500", "12", "2024-01-03"},
	}
	return dataset.FromRecords("sales.csv", header, rows, dataset.DefaultOptions())
}

func TestPromptsContainColumnNamesVerbatim(t *testing.T) {
	df := salesFrame()
	for _, lang := range Languages() {
		b, err := New(lang, DetailBasic)
		require.NoError(t, err)

		rec, err := b.Recommendations(df)
		require.NoError(t, err)
		an, err := b.Anomalies(df)
		require.NoError(t, err)
		viz, err := b.Visualization(df, "histogram of units sold")
		require.NoError(t, err)

		for _, col := range df.Columns() {
			assert.Contains(t, rec, col, "%s recommendations", lang)
			assert.Contains(t, an, col, "%s anomalies", lang)
			assert.Contains(t, viz, col, "%s visualization", lang)
		}
		assert.Contains(t, rec, strings.Join(df.Columns(), ", "))
		assert.Contains(t, viz, "histogram of units sold")
		assert.Contains(t, viz, "```go")
		assert.Contains(t, viz, "st.Plot(fig)")
		assert.Contains(t, viz, "time.AfterFunc")
	}
}

func TestPromptsAreDeterministic(t *testing.T) {
	b, err := New("en", DetailExtended)
	require.NoError(t, err)
	a1, err := b.Recommendations(salesFrame())
	require.NoError(t, err)
	a2, err := b.Recommendations(salesFrame())
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestRecommendationsEnglishShape(t *testing.T) {
	var b Builder
	out, err := b.Recommendations(salesFrame())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "You are a data analysis expert."))
	assert.Contains(t, out, "- Descriptive statistics:\n")
	assert.Contains(t, out, "Highlight any unexpected relationship between variables.")
	assert.Contains(t, out, "bullet points")
	assert.NotContains(t, out, "Additional profile")
	assert.NotContains(t, out, "<no value>")
}

func TestExtendedDetailAppendsProfile(t *testing.T) {
	b, err := New("en", DetailExtended)
	require.NoError(t, err)
	out, err := b.Anomalies(salesFrame())
	require.NoError(t, err)
	assert.Contains(t, out, "Additional profile:")
	assert.Contains(t, out, "Strongest correlations (Pearson):")
}

func TestFrenchTemplates(t *testing.T) {
	b, err := New("FR", "")
	require.NoError(t, err)
	out, err := b.Anomalies(salesFrame())
	require.NoError(t, err)
	assert.Contains(t, out, "spécialiste en détection d'anomalies")
	assert.Contains(t, out, "- Colonnes : ")
}

func TestVisualizationIncludesDTypes(t *testing.T) {
	var b Builder
	out, err := b.Visualization(salesFrame(), "bar chart")
	require.NoError(t, err)
	assert.Contains(t, out, "Columns and types:\n")
	assert.Contains(t, out, "int64")
	assert.Contains(t, out, "datetime64")
	assert.Contains(t, out, "Dataset description:\n")

	_, err = b.Visualization(salesFrame(), "   ")
	assert.Error(t, err)
}

func TestOverviewOnly(t *testing.T) {
	var b Builder
	out, err := b.Overview(salesFrame())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "**Dataset overview (sales.csv, 3 rows):**"))
	assert.NotContains(t, out, "bullet points")
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New("de", "")
	assert.ErrorContains(t, err, "unsupported prompt language")
	_, err = New("en", "verbose")
	assert.ErrorContains(t, err, "unsupported summary detail")
}
