package app

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func authed(server *HTTPServer, token, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func areaPath(area string, rest string) string {
	return "/api/areas/" + url.PathEscape(area) + rest
}

func TestAreasRequireSession(t *testing.T) {
	server := newTestServer(newTestService(t))

	req := httptest.NewRequest(http.MethodGet, "/api/areas", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = authed(server, "garbage", http.MethodGet, "/api/areas", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
}

func TestReviewerFlow(t *testing.T) {
	env := newTestService(t)
	server := newTestServer(env)
	token := env.login(t, "kim", "review-pass").Token

	rr := authed(server, token, http.MethodGet, "/api/areas", "")
	areas, _ := decodeResponse(t, rr)["areas"].([]any)
	if rr.Code != http.StatusOK || len(areas) != 2 {
		t.Fatalf("areas: %d %s", rr.Code, rr.Body.String())
	}

	rr = authed(server, token, http.MethodGet, areaPath("시제", "/prefixes"), "")
	items, _ := decodeResponse(t, rr)["items"].([]any)
	if rr.Code != http.StatusOK || len(items) != 1 {
		t.Fatalf("prefixes: %d %s", rr.Code, rr.Body.String())
	}
	if label := items[0].(map[string]any)["label"]; label != "GRM-A // 시제" {
		t.Fatalf("label = %v", label)
	}

	rr = authed(server, token, http.MethodGet, areaPath("시제", "/prefixes/GRM-A/suffixes"), "")
	payload := decodeResponse(t, rr)
	if rr.Code != http.StatusOK || payload["max"] != float64(2) {
		t.Fatalf("suffixes: %d %s", rr.Code, rr.Body.String())
	}

	rr = authed(server, token, http.MethodGet, areaPath("시제", "/questions/GRM-A/002"), "")
	payload = decodeResponse(t, rr)
	if rr.Code != http.StatusOK || payload["id"] != "GRM-A-002" || payload["role"] != "reviewer" {
		t.Fatalf("view: %d %s", rr.Code, rr.Body.String())
	}

	rr = authed(server, token, http.MethodPut, areaPath("시제", "/questions/GRM-A/002"), `{"fields":{"검토사항":"확인","해설 검토사항":"보강"}}`)
	payload = decodeResponse(t, rr)
	if rr.Code != http.StatusOK || payload["cellsWritten"] != float64(3) || payload["stamp"] != "검토: 2024-05-02 09:30 / kim" {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	if row := env.tense.Row(3); row[11] != "확인" || row[12] != "보강" {
		t.Fatalf("sheet row after save = %v", row)
	}

	rr = authed(server, token, http.MethodGet, areaPath("시제", "/questions/GRM-A/002/history"), "")
	if rr.Code != http.StatusOK || decodeResponse(t, rr)["enabled"] != true {
		t.Fatalf("history: %d %s", rr.Code, rr.Body.String())
	}
}

func TestEditorSaveOverHTTP(t *testing.T) {
	env := newTestService(t)
	server := newTestServer(env)
	token := env.login(t, "lee", "edit-pass").Token

	rr := authed(server, token, http.MethodPut, areaPath("시제", "/questions/GRM-A/1"), `{"fields":{"stage":"3","type":"B2"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	row := env.tense.Row(2)
	if row[1] != "3" || row[3] != "B2" || row[13] != "수정: 2024-05-02 09:30 / lee" {
		t.Fatalf("sheet row after save = %v", row)
	}

	rr = authed(server, token, http.MethodPut, areaPath("시제", "/questions/GRM-A/1"), `{"fields":{"stage":"9"}}`)
	payload := decodeResponse(t, rr)
	if rr.Code != http.StatusUnprocessableEntity || payload["code"] != "FIELD_REJECTED" {
		t.Fatalf("out of range stage: %d %s", rr.Code, rr.Body.String())
	}
}

func TestAreaErrorsOverHTTP(t *testing.T) {
	env := newTestService(t)
	server := newTestServer(env)
	token := env.login(t, "kim", "review-pass").Token

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown area", http.MethodGet, areaPath("없는영역", "/prefixes"), "", http.StatusNotFound, "AREA_NOT_FOUND"},
		{"empty index", http.MethodGet, areaPath("시제", "/prefixes/GRM-Q/suffixes"), "", http.StatusNotFound, "EMPTY_INDEX"},
		{"missing question", http.MethodGet, areaPath("시제", "/questions/GRM-A/050"), "", http.StatusNotFound, "QUESTION_NOT_FOUND"},
		{"unknown route", http.MethodGet, areaPath("시제", "/nothing"), "", http.StatusNotFound, "NOT_FOUND"},
		{"bad body", http.MethodPut, areaPath("시제", "/questions/GRM-A/001"), "{", http.StatusBadRequest, "INVALID_BODY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := authed(server, token, tc.method, tc.path, tc.body)
			if rr.Code != tc.status || decodeResponse(t, rr)["code"] != tc.code {
				t.Fatalf("got %d %s, want %d %s", rr.Code, rr.Body.String(), tc.status, tc.code)
			}
		})
	}
}

func TestUnknownRoleOverHTTP(t *testing.T) {
	env := newTestService(t)
	server := newTestServer(env)
	token := env.login(t, "oh", "admin-pass").Token

	rr := authed(server, token, http.MethodGet, "/api/areas", "")
	if rr.Code != http.StatusForbidden || decodeResponse(t, rr)["code"] != "ROLE_UNKNOWN" {
		t.Fatalf("expected 403 ROLE_UNKNOWN, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestStoreFailuresOverHTTP(t *testing.T) {
	env := newTestService(t)
	server := newTestServer(env)
	token := env.login(t, "kim", "review-pass").Token

	env.tense.FailWritesAfter(1, errors.New("rate limited"))
	rr := authed(server, token, http.MethodPut, areaPath("시제", "/questions/GRM-A/001"), `{"fields":{"검토사항":"a"}}`)
	payload := decodeResponse(t, rr)
	details, _ := payload["details"].(map[string]any)
	if rr.Code != http.StatusBadGateway || payload["code"] != "WRITE_FAILED" || details["cellsWritten"] != float64(1) {
		t.Fatalf("partial write: %d %s", rr.Code, rr.Body.String())
	}

	env.tense.FailLoads(errors.New("unreachable"))
	rr = authed(server, token, http.MethodGet, areaPath("시제", "/prefixes"), "")
	if rr.Code != http.StatusBadGateway || decodeResponse(t, rr)["code"] != "STORE_UNAVAILABLE" {
		t.Fatalf("load failure: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSaveAcceptsNumericFieldValues(t *testing.T) {
	env := newTestService(t)
	server := newTestServer(env)
	token := env.login(t, "lee", "edit-pass").Token

	rr := authed(server, token, http.MethodPut, areaPath("시제", "/questions/GRM-A/001"), `{"fields":{"stage":3}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	if row := env.tense.Row(2); row[1] != "3" {
		t.Fatalf("stage cell = %q", row[1])
	}

	rr = authed(server, token, http.MethodPut, areaPath("시제", "/questions/GRM-A/001"), `{"fields":{"stage":true}}`)
	if rr.Code != http.StatusBadRequest || decodeResponse(t, rr)["code"] != "INVALID_BODY" {
		t.Fatalf("boolean field: %d %s", rr.Code, rr.Body.String())
	}
}

func TestEscapedSlashStaysInSegment(t *testing.T) {
	env := newTestService(t)
	server := newTestServer(env)
	token := env.login(t, "kim", "review-pass").Token

	rr := authed(server, token, http.MethodGet, areaPath("시제", "/prefixes/"+url.PathEscape("GRM/A")+"/suffixes"), "")
	if rr.Code != http.StatusNotFound || decodeResponse(t, rr)["code"] != "EMPTY_INDEX" {
		t.Fatalf("expected the suffix route with EMPTY_INDEX, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestSplitPath(t *testing.T) {
	got := splitPath("/api/areas/%EC%8B%9C%EC%A0%9C/prefixes/GRM%2FA/suffixes/")
	want := []string{"api", "areas", "시제", "prefixes", "GRM/A", "suffixes"}
	if len(got) != len(want) {
		t.Fatalf("splitPath() = %q", got)
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Fatalf("splitPath()[%d] = %q, want %q", idx, got[idx], want[idx])
		}
	}
	if splitPath("/") != nil {
		t.Fatal("splitPath(/) should be nil")
	}
}
