package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestNormalizeBody_PassthroughForOtherHosts(t *testing.T) {
	body := []byte(`{"model":"m","tools":[{"function":{"parameters":{"type":"OBJECT"}}}]}`)
	out := NormalizeBody("https://api.openai.com/v1", body)
	assert.Equal(t, body, out)
}

func TestNormalizeBody_LowercasesTypes(t *testing.T) {
	body := []byte(`{"model":"m","tools":[{"function":{"parameters":{"type":"OBJECT","properties":{"city":{"type":"STRING"}}}}}]}`)
	out := NormalizeBody("https://dashscope.aliyuncs.com/compatible-mode/v1", body)

	assert.Equal(t, "object", gjson.GetBytes(out, "tools.0.function.parameters.type").String())
	assert.Equal(t, "string", gjson.GetBytes(out, "tools.0.function.parameters.properties.city.type").String())
}

func TestNormalizeBody_ItemCountsBecomeIntegers(t *testing.T) {
	body := []byte(`{"tools":[{"function":{"parameters":{"type":"array","minItems":"1","maxItems":"5"}}}]}`)
	out := NormalizeBody("https://dashscope-intl.aliyuncs.com/v1", body)

	minItems := gjson.GetBytes(out, "tools.0.function.parameters.minItems")
	assert.Equal(t, gjson.Number, minItems.Type)
	assert.Equal(t, int64(1), minItems.Int())
	assert.Equal(t, int64(5), gjson.GetBytes(out, "tools.0.function.parameters.maxItems").Int())
}

func TestNormalizeBody_NoTools(t *testing.T) {
	body := []byte(`{"model":"m","messages":[]}`)
	out := NormalizeBody("https://dashscope.aliyuncs.com/v1", body)
	assert.Equal(t, body, out)
}

func TestNormalizeBody_NestedSchemas(t *testing.T) {
	body := []byte(`{"tools":[{"function":{"parameters":{"type":"object","properties":{"items":{"type":"ARRAY","items":{"type":"Integer"}}}}}}]}`)
	out := NormalizeBody("https://dashscope.aliyuncs.com/v1", body)

	assert.Equal(t, "array", gjson.GetBytes(out, "tools.0.function.parameters.properties.items.type").String())
	assert.Equal(t, "integer", gjson.GetBytes(out, "tools.0.function.parameters.properties.items.items.type").String())
}
