package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
)

func TestAIHandler_GetResult(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ai/get-result?prompt="+url.QueryEscape("create an express server"), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body struct {
		Data string `json:"data"`
	}
	decodeBody(t, w, &body)
	if body.Data != env.ai.reply {
		t.Errorf("data = %q, expected %q", body.Data, env.ai.reply)
	}
	if !json.Valid([]byte(body.Data)) {
		t.Errorf("data %q should carry the model's JSON text verbatim", body.Data)
	}
	if prompts := env.ai.Prompts(); len(prompts) != 1 || prompts[0] != "create an express server" {
		t.Errorf("prompts = %v, expected exactly one call", prompts)
	}
}

func TestAIHandler_MissingPrompt(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.do(t, http.MethodGet, "/ai/get-result", "", nil), http.StatusBadRequest, 400)
	if n := len(env.ai.Prompts()); n != 0 {
		t.Errorf("completer called %d times, expected none", n)
	}
}
