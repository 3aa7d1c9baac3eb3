package lifecycle

import (
	"context"
	"slices"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/severity"
)

// 签名算法 OID
const (
	AlgoRSA           = "1.2.840.113549.1.1.1"
	AlgoSHA1WithRSA   = "1.2.840.113549.1.1.5"
	AlgoSHA224WithRSA = "1.2.840.113549.1.1.14"
	AlgoSHA256WithRSA = "1.2.840.113549.1.1.11"
	AlgoSHA384WithRSA = "1.2.840.113549.1.1.12"
	AlgoSHA512WithRSA = "1.2.840.113549.1.1.13"
	AlgoRSASSAPSS     = "1.2.840.113549.1.1.10"
)

// 摘要算法 OID
const (
	HashSHA1   = "1.3.14.3.2.26"
	HashSHA224 = "2.16.840.1.101.3.4.2.4"
	HashSHA256 = "2.16.840.1.101.3.4.2.1"
	HashSHA384 = "2.16.840.1.101.3.4.2.2"
	HashSHA512 = "2.16.840.1.101.3.4.2.3"
)

// 预先计算好的摘要（base64）
const (
	digestSHA1   = "A8/XQ2YfB5dfovEiDFGUy6/0hFE="
	digestSHA224 = "9ck7bwb3xW1+pyDBIeOx+2cw5c9fGNd2vw8tiA=="
	digestSHA256 = "7eqv8/F3StKIhnN3DG1kCX45G8Ni19b7NJgt3w79GMs="
	digestSHA384 = "6NFCC0/0HD8SGG2JSpnhxKpoHaecRwB+na3s2eywSC7h4iRRDnSEB4wCifNDlrnD"
	digestSHA512 = "TyhdDAzHcobYcxeYt6riY54oJw1BZvQNdpy73KUjBxTYSEg9Nk4vOf5suQg8FSKbOaM2FevG1XYF98Q/aQZznQ=="

	// RSASSA-PSS: SHA-256, MGF1 SHA-256, salt 32
	pssParams = "MDmgDzANBglghkgBZQMEAgEFAKEcMBoGCSqGSIb3DQEBCDANBglghkgBZQMEAgEFAKIDAgEgowMCAQE="
)

type signVariant struct {
	name     string
	signAlgo string
	hashAlgo string
	params   string
	digest   string
	count    int
}

// signCatalogue 按执行顺序排列的算法及其签名请求
var signCatalogue = []struct {
	algo     string
	variants []signVariant
}{
	{AlgoSHA1WithRSA, []signVariant{
		{name: "sha1 with signAlgo", signAlgo: AlgoSHA1WithRSA, digest: digestSHA1, count: 4},
		{name: "sha1 with generic signAlgo and hashAlgo", signAlgo: AlgoRSA, hashAlgo: HashSHA1, digest: digestSHA1, count: 4},
	}},
	{AlgoSHA224WithRSA, []signVariant{
		{name: "sha224 with signAlgo", signAlgo: AlgoSHA224WithRSA, digest: digestSHA224, count: 1},
	}},
	{AlgoSHA256WithRSA, []signVariant{
		{name: "sha256 with signAlgo", signAlgo: AlgoSHA256WithRSA, digest: digestSHA256, count: 1},
	}},
	{AlgoSHA384WithRSA, []signVariant{
		{name: "sha384 with signAlgo", signAlgo: AlgoSHA384WithRSA, digest: digestSHA384, count: 3},
	}},
	{AlgoSHA512WithRSA, []signVariant{
		{name: "sha512 with signAlgo", signAlgo: AlgoSHA512WithRSA, digest: digestSHA512, count: 1},
	}},
	{AlgoRSASSAPSS, []signVariant{
		{name: "RSASSA-PSS with signAlgo", signAlgo: AlgoRSASSAPSS, params: pssParams, digest: digestSHA256, count: 3},
	}},
}

// buildSignCases 为密钥支持的每个算法生成签名请求。
// 摘要长度错误的用例整个签名阶段只执行一次，使用第一个支持的算法。
func buildSignCases(headers map[string]string, id, sad string, keyAlgos []string) []model.TestCase {
	var cases []model.TestCase
	invalidDigestDone := false

	for _, entry := range signCatalogue {
		if !slices.Contains(keyAlgos, entry.algo) {
			continue
		}
		for _, v := range entry.variants {
			cases = append(cases, model.TestCase{
				Name:     v.name,
				Headers:  headers,
				Body:     v.body(id, sad),
				Severity: severity.Critical,
				Expected: []expect.Condition{
					expect.Present("signatures"),
					expect.Absent("error"),
					expect.LengthEqual("signatures", v.count),
				},
			})
		}

		if !invalidDigestDone {
			cases = append(cases, model.TestCase{
				Name:    "Invalid digest length",
				Headers: headers,
				Body: map[string]interface{}{
					"SAD":          sad,
					"hash":         []string{"000"},
					"credentialID": id,
					"signAlgo":     entry.algo,
				},
				Expected: []expect.Condition{
					expect.Present("error"),
					expect.Equals("error_description", "Invalid digest value length"),
					expect.Absent("signatures"),
				},
			})
			invalidDigestDone = true
		}
	}
	return cases
}

func (v signVariant) body(id, sad string) map[string]interface{} {
	hashes := make([]string, v.count)
	for i := range hashes {
		hashes[i] = v.digest
	}
	b := map[string]interface{}{
		"SAD":          sad,
		"hash":         hashes,
		"credentialID": id,
		"signAlgo":     v.signAlgo,
	}
	if v.hashAlgo != "" {
		b["hashAlgo"] = v.hashAlgo
	}
	if v.params != "" {
		b["signAlgoParams"] = v.params
	}
	return b
}

func (o *Orchestrator) signHashTest(ctx context.Context, id, sad string, keyAlgos []string) error {
	if sad == "" {
		return ErrSADUnavailable
	}
	headers, err := o.session.bearer()
	if err != nil {
		return err
	}

	cases := buildSignCases(headers, id, sad, keyAlgos)
	if len(cases) == 0 {
		o.notify.Notice("Unsupported signature algorithms")
		return nil
	}
	o.runner.Run(ctx, model.TestSuite{Operation: "signatures/signHash", Cases: cases})
	return nil
}
