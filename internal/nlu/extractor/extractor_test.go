package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	return NewSnapshot("v1",
		[]NameEntry{
			{Name: "可乐", ID: "p-cola"},
			{Name: "纸巾", ID: "p-tissue"},
			{Name: "矿泉水", ID: "p-water"},
		},
		[]NameEntry{
			{Name: "张三", ID: "c-zhangsan", Level: "vip"},
			{Name: "李婶", ID: "c-lishen"},
		},
	)
}

func TestExtractAll_RetailQuoteTemplate(t *testing.T) {
	e := New(testSnapshot())

	result := e.ExtractAll("张三两瓶可乐三包纸巾多少钱")

	require.Len(t, result.Products, 2)

	byName := map[string]float64{}
	units := map[string]string{}
	for _, p := range result.Products {
		byName[p.Name] = p.Quantity
		units[p.Name] = p.Unit
		assert.InDelta(t, 0.9, p.Confidence, 1e-9)
	}
	assert.Equal(t, 2.0, byName["可乐"])
	assert.Equal(t, "瓶", units["可乐"])
	assert.Equal(t, 3.0, byName["纸巾"])
	assert.Equal(t, "包", units["纸巾"])

	require.NotNil(t, result.Partner)
	assert.Equal(t, "张三", result.Partner.Name)
	assert.Equal(t, "c-zhangsan", result.Partner.PartnerID)
	assert.InDelta(t, 0.95, result.Partner.Confidence, 1e-9)
}

func TestExtractAll_DefaultsWhenNoQuantity(t *testing.T) {
	e := New(testSnapshot())

	result := e.ExtractAll("可乐多少钱")

	require.Len(t, result.Products, 1)
	assert.Equal(t, 1.0, result.Products[0].Quantity)
	assert.Equal(t, "个", result.Products[0].Unit)
	assert.Nil(t, result.Partner)
}

func TestExtractAll_RegexFallbackProducts(t *testing.T) {
	e := New(NewSnapshot("empty", nil, nil))

	result := e.ExtractAll("来五瓶雪碧")

	require.Len(t, result.Products, 1)
	assert.Equal(t, "雪碧", result.Products[0].Name)
	assert.Equal(t, 5.0, result.Products[0].Quantity)
	assert.Equal(t, "瓶", result.Products[0].Unit)
	assert.InDelta(t, 0.7, result.Products[0].Confidence, 1e-9)
}

func TestExtractAll_FallbackRejectsPronouns(t *testing.T) {
	e := New(NewSnapshot("empty", nil, nil))

	result := e.ExtractAll("给我们三个这个")
	assert.Empty(t, result.Products)
}

func TestExtractAll_PartnerKinshipTemplate(t *testing.T) {
	e := New(NewSnapshot("empty", nil, nil))

	result := e.ExtractAll("王婶要两瓶酱油")

	require.NotNil(t, result.Partner)
	assert.Equal(t, "王婶", result.Partner.Name)
	assert.InDelta(t, 0.75, result.Partner.Confidence, 1e-9)
}

func TestExtractAll_Prices(t *testing.T) {
	e := New(testSnapshot())

	tests := []struct {
		name     string
		text     string
		expected []float64
	}{
		{"yuan", "按8块算", []float64{8}},
		{"yuan with qian", "就10块钱", []float64{10}},
		{"yuan point jiao", "3块5", []float64{3, 3.5}}, // first pass reads 3块, second 3.5
		{"jiao only", "加5毛", []float64{0.5}},
		{"none", "多少钱", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.ExtractAll(tt.text)
			var values []float64
			for _, p := range result.Prices {
				values = append(values, p.Value)
			}
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestExtractAll_ProductDedupKeepsHighestConfidence(t *testing.T) {
	e := New(testSnapshot())

	result := e.ExtractAll("可乐可乐两瓶可乐")

	require.Len(t, result.Products, 1)
	assert.Equal(t, "可乐", result.Products[0].Name)
	assert.InDelta(t, 0.9, result.Products[0].Confidence, 1e-9)
}

func TestRefreshSwapsSnapshot(t *testing.T) {
	e := New(NewSnapshot("v1", nil, nil))
	assert.Empty(t, e.ExtractAll("两瓶可乐").Products[0].ProductID)

	e.Refresh(testSnapshot())

	result := e.ExtractAll("两瓶可乐")
	require.Len(t, result.Products, 1)
	assert.Equal(t, "p-cola", result.Products[0].ProductID)
	assert.Equal(t, "v1", e.Snapshot().Version)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		text     string
		expected float64
		ok       bool
	}{
		{"3", 3, true},
		{"12", 12, true},
		{"2.5", 2.5, true},
		{"两", 2, true},
		{"三", 3, true},
		{"十", 10, true},
		{"十五", 15, true},
		{"二十", 20, true},
		{"三百二十五", 325, true},
		{"一千零五", 1005, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		v, ok := ParseQuantity(tt.text)
		assert.Equal(t, tt.ok, ok, "text: %s", tt.text)
		if tt.ok {
			assert.Equal(t, tt.expected, v, "text: %s", tt.text)
		}
	}
}
