package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"messaging-platform/internal/message"
)

func textPayload(body string) message.Payload {
	return message.Payload{Type: message.TypeText, Text: &message.Text{Body: body}}
}

func TestCloudAPI_SendSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.test.1"}},
		})
	}))
	defer srv.Close()

	api, err := NewCloudAPI(Config{BaseURL: srv.URL, APIVersion: "v19.0", AccessToken: "tok"}, srv.Client(), nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	res, err := api.SendMessage(context.Background(), "+5511999990000", textPayload("hello"), "acc-1", "job-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Success || res.ProviderMessageID != "wamid.test.1" {
		t.Fatalf("expected success with provider id, got %+v", res)
	}
	if gotPath != "/v19.0/acc-1/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["messaging_product"] != "whatsapp" || gotBody["to"] != "+5511999990000" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
}

func TestCloudAPI_ProviderErrorCarriesTransience(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message":       "Rate limit hit",
				"code":          131048,
				"is_transient":  true,
				"fbtrace_id":    "trace-1",
				"error_subcode": 2534068,
			},
		})
	}))
	defer srv.Close()

	api, _ := NewCloudAPI(Config{BaseURL: srv.URL, AccessToken: "tok"}, srv.Client(), nil)

	res, err := api.SendMessage(context.Background(), "+1", textPayload("x"), "acc-1", "job-1")
	if err != nil {
		t.Fatalf("provider rejection must not be a transport error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure result")
	}
	if res.Error == nil || res.Error.Code != 131048 {
		t.Fatalf("expected provider error details, got %+v", res.Error)
	}
	if !res.Error.IsTransient() {
		t.Fatalf("expected transient marker to carry through")
	}
}

func TestCloudAPI_PermanentErrorMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "account disabled", "code": 10, "is_transient": false},
		})
	}))
	defer srv.Close()

	api, _ := NewCloudAPI(Config{BaseURL: srv.URL, AccessToken: "tok"}, srv.Client(), nil)

	res, err := api.SendMessage(context.Background(), "+1", textPayload("x"), "acc-1", "job-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Error == nil || res.Error.IsTransient() {
		t.Fatalf("expected permanent failure marker, got %+v", res.Error)
	}
}

func TestCloudAPI_MissingMessageIDIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{}})
	}))
	defer srv.Close()

	api, _ := NewCloudAPI(Config{BaseURL: srv.URL, AccessToken: "tok"}, srv.Client(), nil)

	res, err := api.SendMessage(context.Background(), "+1", textPayload("x"), "acc-1", "job-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Success {
		t.Fatalf("success without a provider message id must be a failure")
	}
}

func TestCloudAPI_RejectsInvalidPayload(t *testing.T) {
	api, _ := NewCloudAPI(Config{AccessToken: "tok"}, nil, nil)
	if _, err := api.SendMessage(context.Background(), "+1", message.Payload{Type: message.TypeText}, "acc-1", ""); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}

func TestNewCloudAPI_RequiresToken(t *testing.T) {
	if _, err := NewCloudAPI(Config{}, nil, nil); err == nil {
		t.Fatalf("expected error for missing access token")
	}
}
