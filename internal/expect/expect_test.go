package expect

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var doc interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestResolve(t *testing.T) {
	doc := decode(t, `{"cert":{"certificates":["a"],"status":null},"key":{"algo":["x"]},"lang":"en-US"}`)

	v, ok := Resolve(doc, "lang")
	assert.True(t, ok)
	assert.Equal(t, "en-US", v)

	v, ok = Resolve(doc, "cert>certificates")
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"a"}, v)

	v, ok = Resolve(doc, "cert>status")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = Resolve(doc, "cert>validFrom")
	assert.False(t, ok)

	// 中间节点不是对象
	_, ok = Resolve(doc, "lang>sub")
	assert.False(t, ok)

	_, ok = Resolve(doc, "missing>sub")
	assert.False(t, ok)

	_, ok = Resolve(decode(t, `["a","b"]`), "cert>certificates")
	assert.False(t, ok)

	_, ok = Resolve(decode(t, `["a","b"]`), "a")
	assert.False(t, ok)
}

func TestHasAndString(t *testing.T) {
	doc := decode(t, `{"SAD":"abc","n":null,"e":""}`)
	assert.True(t, Has(doc, "SAD"))
	assert.False(t, Has(doc, "n"))
	assert.True(t, Has(doc, "e"))
	assert.Equal(t, "abc", String(doc, "SAD"))
	assert.Equal(t, "", String(doc, "missing"))
}

func TestEvaluate_EmptyTargetsPass(t *testing.T) {
	doc := decode(t, `{}`)
	for _, kind := range []Kind{KindPresent, KindAbsent, KindMatches, KindNotEquals, KindLengthLess, KindLengthEqual, KindLengthGreater} {
		failed, err := Evaluate(doc, Condition{Kind: kind})
		require.NoError(t, err, kind.String())
		assert.False(t, failed, kind.String())
	}
}

func TestEvaluate_Present(t *testing.T) {
	doc := decode(t, `{"access_token":"t","zero":0,"no":false,"empty":"","nil":null}`)

	failed, _ := Evaluate(doc, Present("access_token", "zero", "no", "empty"))
	assert.False(t, failed)

	failed, _ = Evaluate(doc, Present("access_token", "refresh_token"))
	assert.True(t, failed)

	failed, _ = Evaluate(doc, Present("nil"))
	assert.True(t, failed)
}

func TestEvaluate_Absent(t *testing.T) {
	doc := decode(t, `{"error":"invalid_request","nil":null}`)

	failed, _ := Evaluate(doc, Absent("SAD", "nil", "cert>certificates"))
	assert.False(t, failed)

	failed, _ = Evaluate(doc, Absent("SAD", "error"))
	assert.True(t, failed)
}

func TestEvaluate_Matches(t *testing.T) {
	doc := decode(t, `{
		"error": "invalid_pin",
		"error_description": "The PIN is invalid",
		"key": {"algo": ["1.2.840.113549.1.1.1", "1.2.840.113549.1.1.5"], "len": 2048},
		"empty": ""
	}`)

	tests := []struct {
		name   string
		cond   Condition
		failed bool
	}{
		{"exact", Matches(Match("error", "invalid_pin"), Match("error_description", "The PIN is invalid")), false},
		{"prefix anchored", Equals("error_description", "The PIN"), false},
		{"not anchored in the middle", Equals("error_description", "PIN"), true},
		{"regex", Equals("error", "^invalid_(pin|otp)$"), false},
		{"different value", Equals("error", "invalid_otp"), true},
		{"missing", Equals("lang", "en-US"), true},
		{"falsy node", Equals("empty", ".*"), true},
		{"number node", Equals("key>len", "2048"), false},
		{"list equal", Equals("key>algo", []string{"1.2.840.113549.1.1.1", "1.2.840.113549.1.1.5"}), false},
		{"list reordered", Equals("key>algo", []string{"1.2.840.113549.1.1.5", "1.2.840.113549.1.1.1"}), true},
		{"list shorter", Equals("key>algo", []string{"1.2.840.113549.1.1.1"}), true},
		{"list longer", Equals("key>algo", []string{"1.2.840.113549.1.1.1", "1.2.840.113549.1.1.5", "1.2.840.113549.1.1.11"}), true},
		{"list against scalar", Equals("error", []string{"invalid_pin"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed, err := Evaluate(doc, tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.failed, failed)
		})
	}
}

func TestEvaluate_MatchesInvalidPattern(t *testing.T) {
	_, err := Evaluate(decode(t, `{"error":"x"}`), Equals("error", "(unclosed"))
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestEvaluate_NotEquals(t *testing.T) {
	doc := decode(t, `{"error":"access_denied","count":3,"cert":{"status":"valid"}}`)

	failed, _ := Evaluate(doc, NotEquals(Match("error", "access_denied")))
	assert.True(t, failed)

	failed, _ = Evaluate(doc, NotEquals(Match("count", 3)))
	assert.True(t, failed)

	failed, _ = Evaluate(doc, NotEquals(Match("error", "invalid_request")))
	assert.False(t, failed)

	// 不支持路径
	failed, _ = Evaluate(doc, NotEquals(Match("cert>status", "valid")))
	assert.False(t, failed)
}

func TestEvaluate_Length(t *testing.T) {
	doc := decode(t, `{"credentialIDs":["a","b"],"notalist":"x","cert":{"certificates":["c1","c2","c3"]}}`)

	tests := []struct {
		name   string
		cond   Condition
		failed bool
	}{
		{"less pass", LengthLess("credentialIDs", 3), false},
		{"less fail", LengthLess("credentialIDs", 2), true},
		{"equal pass", LengthEqual("credentialIDs", 2), false},
		{"equal fail", LengthEqual("credentialIDs", 1), true},
		{"greater pass", LengthGreater("cert>certificates", 1), false},
		{"greater fail", LengthGreater("cert>certificates", 3), true},
		{"not a list", LengthEqual("notalist", 1), true},
		{"missing", LengthLess("missing", 100), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed, err := Evaluate(doc, tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.failed, failed)
		})
	}

	failed, err := Evaluate(decode(t, `{"credentialIDs":"notalist"}`), LengthEqual("credentialIDs", 1))
	require.NoError(t, err)
	assert.True(t, failed)
}

func TestEvaluate_UnknownKind(t *testing.T) {
	_, err := Evaluate(decode(t, `{}`), Condition{Name: "contains", Paths: []string{"x"}})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindPresent, ParseKind("in"))
	assert.Equal(t, KindAbsent, ParseKind("not in"))
	assert.Equal(t, KindMatches, ParseKind("eq"))
	assert.Equal(t, KindNotEquals, ParseKind("not eq"))
	assert.Equal(t, KindLengthLess, ParseKind("<"))
	assert.Equal(t, KindLengthEqual, ParseKind("="))
	assert.Equal(t, KindLengthGreater, ParseKind(">"))
	assert.Equal(t, KindLengthGreater, ParseKind("lengthGreater"))
	assert.Equal(t, KindUnknown, ParseKind("contains"))
}

func TestFromMap(t *testing.T) {
	c, err := FromMap(map[string]interface{}{
		"condition": "eq",
		"arg":       map[string]interface{}{"lang": "it-IT", "error": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, KindMatches, c.Kind)
	assert.Equal(t, []Entry{{Path: "error", Value: "x"}, {Path: "lang", Value: "it-IT"}}, c.Entries)

	c, err = FromMap(map[string]interface{}{
		"condition": "not in",
		"arg":       []interface{}{"error"},
	})
	require.NoError(t, err)
	assert.Equal(t, Absent("error").Paths, c.Paths)

	c, err = FromMap(map[string]interface{}{"condition": "contains", "arg": []interface{}{"x"}})
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, c.Kind)

	_, err = FromMap(map[string]interface{}{"condition": "in", "arg": map[string]interface{}{"x": 1}})
	assert.EqualError(t, err, `条件 "in" 需要路径列表`)

	_, err = FromMap(map[string]interface{}{"arg": []interface{}{"x"}})
	assert.EqualError(t, err, "条件缺少 condition 字段")
}

func TestCondition_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal([]Condition{
		Absent("error"),
		LengthLess("credentialIDs", 2),
		{Name: "contains", Paths: []string{"x"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"condition":"absent","arg":["error"]},
		{"condition":"lengthLess","arg":{"credentialIDs":2}},
		{"condition":"contains","arg":["x"]}
	]`, string(raw))
}

func TestValidator_ShortCircuit(t *testing.T) {
	v := NewValidator(nil)
	doc := decode(t, `{"error":"invalid_request"}`)

	verdict := v.Validate(doc, []Condition{
		Present("error"),
		Absent("error"),
		{Kind: KindUnknown, Name: "never evaluated"},
	})
	assert.False(t, verdict.Passed)
	require.Len(t, verdict.Failed, 1)
	assert.Equal(t, KindAbsent, verdict.Failed[0].Kind)
	assert.Empty(t, verdict.Skipped)
}

func TestValidator_SkipsUnknownKind(t *testing.T) {
	v := NewValidator(nil)
	doc := decode(t, `{"access_token":"t"}`)

	verdict := v.Validate(doc, []Condition{
		{Name: "contains", Paths: []string{"access_token"}},
		Present("access_token"),
		Absent("error"),
	})
	assert.True(t, verdict.Passed)
	assert.Empty(t, verdict.Failed)
	require.Len(t, verdict.Skipped, 1)
	assert.ErrorIs(t, verdict.Skipped[0].Err, ErrUnknownKind)

	verdict = v.Validate(doc, []Condition{
		{Name: "contains", Paths: []string{"access_token"}},
		Present("refresh_token"),
	})
	assert.False(t, verdict.Passed)
}
