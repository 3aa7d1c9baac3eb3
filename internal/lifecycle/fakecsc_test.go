package lifecycle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

const (
	fakeUser = "tester"
	fakePass = "secret"
	fakePIN  = "12345678"
	basePath = "/csc/v0/"
)

type fakeCredential struct {
	authMode string
	status   string
	algo     []string
	otp      bool
}

// fakeCSC 实现测试所需的远程签名接口子集
type fakeCSC struct {
	ids         []string
	credentials map[string]fakeCredential

	access  map[string]bool
	refresh map[string]string // refresh token -> access token
	sads    map[string]bool
	counter int

	// failLogin 登录总是返回错误
	failLogin bool
	// infoError credentials/info 返回的错误描述
	infoError string

	operations []string
	revoked    []string
	bodies     map[string][]map[string]interface{}
}

func newFakeCSC() *fakeCSC {
	return &fakeCSC{
		credentials: map[string]fakeCredential{},
		access:      map[string]bool{},
		refresh:     map[string]string{},
		sads:        map[string]bool{},
		bodies:      map[string][]map[string]interface{}{},
	}
}

func (f *fakeCSC) addCredential(id string, c fakeCredential) {
	f.ids = append(f.ids, id)
	f.credentials[id] = c
}

func (f *fakeCSC) start(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeCSC) next(prefix string) string {
	f.counter++
	return prefix + "-" + strconv.Itoa(f.counter)
}

func (f *fakeCSC) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/logo.png" {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		return
	}

	op := strings.TrimPrefix(r.URL.Path, basePath)
	f.operations = append(f.operations, op)

	body := map[string]interface{}{}
	raw, _ := io.ReadAll(r.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	f.bodies[op] = append(f.bodies[op], body)

	var res interface{}
	switch op {
	case "info":
		lang := "en-US"
		if l, ok := body["lang"].(string); ok {
			lang = l
		}
		res = map[string]interface{}{"lang": lang, "name": "fake", "logo": "http://" + r.Host + "/logo.png"}
	case "auth/login":
		res = f.login(r, body)
	case "auth/revoke":
		if !f.authorized(r) {
			res = invalidToken()
			break
		}
		f.revoke(body["token"].(string))
		return
	case "credentials/list":
		if !f.authorized(r) {
			res = invalidToken()
			break
		}
		res = f.list(body)
	case "credentials/info":
		if !f.authorized(r) {
			res = invalidToken()
			break
		}
		res = f.info(body)
	case "credentials/sendOTP":
		res = map[string]interface{}{}
	case "credentials/authorize":
		res = f.authorize(body)
	case "credentials/extendTransaction":
		if sad, _ := body["SAD"].(string); f.sads[sad] {
			next := f.next("sad")
			f.sads[next] = true
			res = map[string]interface{}{"SAD": next}
		} else {
			res = errorDoc("invalid_request", "Invalid parameter SAD")
		}
	case "signatures/signHash":
		res = f.signHash(body)
	case "signatures/timestamp":
		if !f.authorized(r) {
			res = invalidToken()
			break
		}
		res = map[string]interface{}{"timestamp": "MIIFake"}
	default:
		res = errorDoc("access_denied", "The user or Remote Service denied the request.")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func errorDoc(code, description string) map[string]interface{} {
	return map[string]interface{}{"error": code, "error_description": description}
}

func invalidToken() map[string]interface{} {
	return errorDoc("invalid_token", "Session is invalid")
}

func (f *fakeCSC) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return f.access[token]
}

func (f *fakeCSC) login(r *http.Request, body map[string]interface{}) interface{} {
	user, pass, ok := r.BasicAuth()
	if f.failLogin || !ok || user != fakeUser || pass != fakePass {
		return errorDoc("authentication_error", "An error occurred while authenticating")
	}
	if rt, ok := body["refresh_token"].(string); ok {
		if _, valid := f.refresh[rt]; !valid {
			return errorDoc("invalid_request", "Invalid refresh token")
		}
	}
	at := f.next("at")
	f.access[at] = true
	res := map[string]interface{}{"access_token": at, "expires_in": 3600}
	if remember, _ := body["rememberMe"].(bool); remember {
		rt := f.next("rt")
		f.refresh[rt] = at
		res["refresh_token"] = rt
	}
	return res
}

func (f *fakeCSC) revoke(token string) {
	f.revoked = append(f.revoked, token)
	if at, ok := f.refresh[token]; ok {
		delete(f.refresh, token)
		delete(f.access, at)
	}
	delete(f.access, token)
	delete(f.sads, token)
}

func (f *fakeCSC) list(body map[string]interface{}) interface{} {
	size := len(f.ids)
	if n, ok := body["maxResults"].(float64); ok {
		size = int(n)
	}
	start := 0
	if tok, ok := body["pageToken"].(string); ok {
		start, _ = strconv.Atoi(tok)
	}
	end := start + size
	if end > len(f.ids) {
		end = len(f.ids)
	}
	res := map[string]interface{}{"credentialIDs": f.ids[start:end]}
	if end < len(f.ids) {
		res["nextPageToken"] = strconv.Itoa(end)
	}
	return res
}

func (f *fakeCSC) info(body map[string]interface{}) interface{} {
	if f.infoError != "" {
		return errorDoc("invalid_request", f.infoError)
	}
	id, _ := body["credentialID"].(string)
	c, ok := f.credentials[id]
	if !ok {
		return errorDoc("invalid_request", "Invalid parameter credentialID")
	}

	cert := map[string]interface{}{"status": c.status}
	switch body["certificates"] {
	case "none":
	case "chain":
		cert["certificates"] = []string{"MIIleaf", "MIIca"}
	default:
		cert["certificates"] = []string{"MIIleaf"}
	}
	if ci, _ := body["certInfo"].(bool); ci {
		cert["validFrom"] = "20260101000000Z"
		cert["validTo"] = "20290101000000Z"
		cert["subjectDN"] = "CN=Tester"
		cert["serialNumber"] = "1234"
		cert["issuerDN"] = "CN=Fake CA"
	}
	res := map[string]interface{}{
		"authMode": c.authMode,
		"cert":     cert,
		"key":      map[string]interface{}{"status": "enabled", "algo": c.algo, "len": 2048},
	}
	if ai, _ := body["authInfo"].(bool); ai && c.authMode == AuthModeExplicit {
		res["PIN"] = map[string]interface{}{"presence": "true", "format": "N"}
		res["OTP"] = map[string]interface{}{"presence": strconv.FormatBool(c.otp), "type": "online"}
	}
	return res
}

func (f *fakeCSC) authorize(body map[string]interface{}) interface{} {
	id, _ := body["credentialID"].(string)
	c := f.credentials[id]
	if _, isNumber := body["PIN"].(float64); isNumber {
		return errorDoc("invalid_request", "Invalid parameter PIN")
	}
	if _, isNumber := body["OTP"].(float64); isNumber {
		return errorDoc("invalid_request", "Invalid parameter OTP")
	}
	if c.status != "valid" {
		return errorDoc("invalid_request", "Invalid certificate status")
	}
	if c.authMode == AuthModeExplicit && body["PIN"] != fakePIN {
		return errorDoc("invalid_pin", "The PIN is invalid")
	}
	if c.otp && body["OTP"] != "123456" {
		return errorDoc("invalid_otp", "The OTP is invalid")
	}
	sad := f.next("sad")
	f.sads[sad] = true
	return map[string]interface{}{"SAD": sad}
}

func (f *fakeCSC) signHash(body map[string]interface{}) interface{} {
	if sad, _ := body["SAD"].(string); !f.sads[sad] {
		return errorDoc("invalid_request", "Invalid parameter SAD")
	}
	hashes, _ := body["hash"].([]interface{})
	signatures := make([]string, 0, len(hashes))
	for i, h := range hashes {
		if s, _ := h.(string); len(s) < 20 {
			return errorDoc("invalid_request", "Invalid digest value length")
		}
		signatures = append(signatures, fmt.Sprintf("sig-%d", i))
	}
	return map[string]interface{}{"signatures": signatures}
}

func (f *fakeCSC) count(op string) int {
	n := 0
	for _, o := range f.operations {
		if o == op {
			n++
		}
	}
	return n
}
