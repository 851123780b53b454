package placeholder

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestApply_EndToEnd(t *testing.T) {
	html := `<body><p>{{TOP_ClientName}}</p><table><tbody>{{TABLE_ROWS_sales}}</tbody></table></body>`
	decisions := []Decision{{
		OriginalTag:      "{{TOP_ClientName}}",
		MapType:          MapStandardizeTop,
		MapToSchemaField: strPtr("ClientName"),
	}}

	got, err := Apply(html, decisions, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, html, got)
}

func TestApply_Transforms(t *testing.T) {
	const html = `<style>.x{color:red}</style><body>[{{Tag}}] {{Other}} [{{Tag}}]</body>`

	tests := []struct {
		name     string
		decision Decision
		want     string
	}{
		{
			name:     "ignore",
			decision: Decision{OriginalTag: "{{Tag}}", MapType: MapIgnore},
			want:     `<style>.x{color:red}</style><body>[] {{Other}} []</body>`,
		},
		{
			name:     "static text escaped",
			decision: Decision{OriginalTag: "{{Tag}}", MapType: MapStaticText, StaticTextValue: strPtr("A & <b>")},
			want:     `<style>.x{color:red}</style><body>[A &amp; &lt;b&gt;] {{Other}} [A &amp; &lt;b&gt;]</body>`,
		},
		{
			name:     "empty static text",
			decision: Decision{OriginalTag: "{{Tag}}", MapType: MapStaticText, StaticTextValue: strPtr("")},
			want:     `<style>.x{color:red}</style><body>[] {{Other}} []</body>`,
		},
		{
			name:     "standardize top",
			decision: Decision{OriginalTag: "{{Tag}}", MapType: MapStandardizeTop, MapToSchemaField: strPtr("Client")},
			want:     `<style>.x{color:red}</style><body>[{{TOP_Client}}] {{Other}} [{{TOP_Client}}]</body>`,
		},
		{
			name:     "standardize header with fallback",
			decision: Decision{OriginalTag: "{{Tag}}", MapType: MapStandardizeHeader, MapToSchemaField: strPtr("Date"), FallbackValue: strPtr("n/a")},
			want:     `<style>.x{color:red}</style><body>[{{HEADER_Date}}] {{Other}} [{{HEADER_Date}}]</body>`,
		},
		{
			name:     "look",
			decision: Decision{OriginalTag: "{{Tag}}", MapType: MapToLook, MapToLookPlaceholder: strPtr("Chart")},
			want:     `<style>.x{color:red}</style><body>[{{LOOK_IMAGE_Chart}}] {{Other}} [{{LOOK_IMAGE_Chart}}]</body>`,
		},
		{
			name:     "filter",
			decision: Decision{OriginalTag: "{{Tag}}", MapType: MapToFilter, MapToFilterKey: strPtr("region")},
			want:     `<style>.x{color:red}</style><body>[{{FILTER_VALUE_region}}] {{Other}} [{{FILTER_VALUE_region}}]</body>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(html, []Decision{tt.decision}, ApplyOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_RawStaticText(t *testing.T) {
	decisions := []Decision{{OriginalTag: "{{Logo}}", MapType: MapStaticText, StaticTextValue: strPtr("<img src='a.png'>")}}

	got, err := Apply("<body>{{Logo}}</body>", decisions, ApplyOptions{RawStaticText: true})
	require.NoError(t, err)
	assert.Equal(t, "<body><img src='a.png'></body>", got)
}

func TestApply_IgnoreLeavesOtherCounts(t *testing.T) {
	html := "<body>{{A}}{{B}}{{A}}{{C}}{{B}}{{TABLE_ROWS_t}}</body>"
	report := Discover(html, nil, nil, nil)

	got, err := Apply(html, []Decision{{OriginalTag: "{{A}}", MapType: MapIgnore}}, ApplyOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, strings.Count(got, "{{A}}"))
	for _, token := range report.Placeholders {
		if token.OriginalTag == "{{A}}" {
			continue
		}
		assert.Equal(t, token.Occurrences, strings.Count(got, token.OriginalTag), token.OriginalTag)
	}
}

func TestApply_InvalidMapTypeIsAtomic(t *testing.T) {
	html := "<body>{{A}} {{B}}</body>"
	decisions := []Decision{
		{OriginalTag: "{{A}}", MapType: MapIgnore},
		{OriginalTag: "{{B}}", MapType: "schema_field"},
	}

	got, err := Apply(html, decisions, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDecision))

	var decisionErr *DecisionError
	require.True(t, errors.As(err, &decisionErr))
	assert.Equal(t, 1, decisionErr.Index)
	assert.Equal(t, html, got)
}

func TestApply_PayloadValidation(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
	}{
		{"missing tag", Decision{MapType: MapIgnore}},
		{"top without field", Decision{OriginalTag: "{{A}}", MapType: MapStandardizeTop}},
		{"static text without value", Decision{OriginalTag: "{{A}}", MapType: MapStaticText}},
		{"look without placeholder", Decision{OriginalTag: "{{A}}", MapType: MapToLook}},
		{"filter without key", Decision{OriginalTag: "{{A}}", MapType: MapToFilter}},
		{"two payloads", Decision{OriginalTag: "{{A}}", MapType: MapToLook, MapToLookPlaceholder: strPtr("x"), MapToFilterKey: strPtr("y")}},
		{"fallback on ignore", Decision{OriginalTag: "{{A}}", MapType: MapIgnore, FallbackValue: strPtr("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply("<body>{{A}}</body>", []Decision{tt.decision}, ApplyOptions{})
			assert.ErrorIs(t, err, ErrInvalidDecision)
			assert.Equal(t, "<body>{{A}}</body>", got)
		})
	}
}

func TestApply_StaleDecisionIsNoop(t *testing.T) {
	html := "<body>{{A}}</body>"
	got, err := Apply(html, []Decision{{OriginalTag: "{{Gone}}", MapType: MapIgnore}}, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, html, got)
}

func TestApply_UnmappedTagUntouched(t *testing.T) {
	html := "<body>{{RANDOM_UNKNOWN_TAG}} {{A}}</body>"
	got, err := Apply(html, []Decision{{OriginalTag: "{{A}}", MapType: MapIgnore}}, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "<body>{{RANDOM_UNKNOWN_TAG}} </body>", got)
}

func TestApply_TableRowsNeverAltered(t *testing.T) {
	html := "<body><tbody>{{TABLE_ROWS_sales}}</tbody></body>"
	decisions := []Decision{
		{OriginalTag: "{{TABLE_ROWS_sales}}", MapType: MapIgnore},
		{OriginalTag: "{{TABLE_ROWS_sales}}", MapType: MapStaticText, StaticTextValue: strPtr("x")},
	}

	got, err := Apply(html, decisions, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, html, got)
}

func TestApply_LastWriteWins(t *testing.T) {
	decisions := []Decision{
		{OriginalTag: "{{A}}", MapType: MapStaticText, StaticTextValue: strPtr("first")},
		{OriginalTag: "{{A}}", MapType: MapStaticText, StaticTextValue: strPtr("second")},
	}

	got, err := Apply("<body>{{A}}</body>", decisions, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "<body>second</body>", got)
}

func TestApply_ReplacementsAreNotRescanned(t *testing.T) {
	decisions := []Decision{
		{OriginalTag: "{{A}}", MapType: MapStandardizeTop, MapToSchemaField: strPtr("B")},
		{OriginalTag: "{{TOP_B}}", MapType: MapIgnore},
	}

	got, err := Apply("<body>{{A}}|{{TOP_B}}</body>", decisions, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "<body>{{TOP_B}}|</body>", got)
}

func TestFallbacks(t *testing.T) {
	decisions := []Decision{
		{OriginalTag: "{{A}}", MapType: MapStandardizeTop, MapToSchemaField: strPtr("Client"), FallbackValue: strPtr("Unknown client")},
		{OriginalTag: "{{B}}", MapType: MapStandardizeHeader, MapToSchemaField: strPtr("Date"), FallbackValue: strPtr("-")},
		{OriginalTag: "{{C}}", MapType: MapStandardizeHeader, MapToSchemaField: strPtr("Region")},
		{OriginalTag: "{{D}}", MapType: MapIgnore},
	}

	assert.Equal(t, map[string]string{
		"{{TOP_Client}}":  "Unknown client",
		"{{HEADER_Date}}": "-",
	}, Fallbacks(decisions))
}
