package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newModelServer returns a test server that replies to every generateContent
// call with the given candidate text.
func newModelServer(t *testing.T, candidateText string, capture *generateContentRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}

		resp := fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, mustQuote(candidateText))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, resp)
	}))
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientOptions{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: baseURL,
	})
}

func TestAnalyzePrescription(t *testing.T) {
	var captured generateContentRequest
	srv := newModelServer(t, `{"medicationName":"Metformin","dosage":"500mg","frequency":"twice daily","additionalNotes":""}`, &captured)
	defer srv.Close()

	c := newTestClient(srv.URL)

	a, err := c.AnalyzePrescription(context.Background(), Image{MIMEType: "image/png", Data: []byte{0x89, 0x50}})
	assert.NoError(t, err)
	assert.Equal(t, "Metformin", a.MedicationName)
	assert.Equal(t, "500mg", a.Dosage)
	assert.Equal(t, "twice daily", a.Frequency)
	// empty fields come back as the sentinel, never empty
	assert.Equal(t, Unknown, a.AdditionalNotes)

	// request carried both the instruction and the inline image
	if assert.Len(t, captured.Contents, 1) && assert.Len(t, captured.Contents[0].Parts, 2) {
		assert.Contains(t, captured.Contents[0].Parts[0].Text, "prescription image")
		assert.Equal(t, "image/png", captured.Contents[0].Parts[1].InlineData.MIMEType)
		assert.NotEmpty(t, captured.Contents[0].Parts[1].InlineData.Data)
	}
}

func TestAnalyzePrescriptionFencedOutput(t *testing.T) {
	srv := newModelServer(t, "```json\n{\"medicationName\":\"Amoxicillin\",\"dosage\":\"250mg\",\"frequency\":\"thrice daily\",\"additionalNotes\":\"after food\"}\n```", nil)
	defer srv.Close()

	a, err := newTestClient(srv.URL).AnalyzePrescription(context.Background(), Image{MIMEType: "image/jpeg", Data: []byte{0xff}})
	assert.NoError(t, err)
	assert.Equal(t, "Amoxicillin", a.MedicationName)
	assert.Equal(t, "after food", a.AdditionalNotes)
}

func TestAnalyzePrescriptionNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzePrescription(context.Background(), Image{MIMEType: "image/png", Data: []byte{1}})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestAnalyzePrescriptionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzePrescription(context.Background(), Image{MIMEType: "image/png", Data: []byte{1}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestGenerateTasks(t *testing.T) {
	var captured generateContentRequest
	srv := newModelServer(t, `{"tasks":[
		{"type":"Medication","text_en":"Take Metformin 500mg","text_kn":"ಮೆಟ್‌ಫಾರ್ಮಿನ್ 500mg ತೆಗೆದುಕೊಳ್ಳಿ","dueDate":"2026-09-01","status":"Pending"},
		{"type":"Medication","text_en":"Take Metformin 500mg","text_kn":"ಮೆಟ್‌ಫಾರ್ಮಿನ್ 500mg ತೆಗೆದುಕೊಳ್ಳಿ","dueDate":"2026-09-02","status":""}
	]}`, &captured)
	defer srv.Close()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	a := Analysis{MedicationName: "Metformin", Dosage: "500mg", Frequency: "twice daily", AdditionalNotes: Unknown}

	tasks, err := newTestClient(srv.URL).GenerateTasks(context.Background(), a, now, 7)
	assert.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, "2026-09-01", tasks[0].DueDate)
	// blank status defaults to Pending
	assert.Equal(t, "Pending", tasks[1].Status)

	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Metformin")
	assert.Contains(t, prompt, "twice daily")
	assert.Contains(t, prompt, "next 7 days")
	assert.Contains(t, prompt, "2026-08-31")
}

func TestGenerateTasksEmptyList(t *testing.T) {
	srv := newModelServer(t, `{"tasks":[]}`, nil)
	defer srv.Close()

	tasks, err := newTestClient(srv.URL).GenerateTasks(context.Background(), Analysis{}, time.Now(), 7)
	assert.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStripJSONFences(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                      "{\"a\":1}",
		"```json\n{\"a\":1}\n```":        "{\"a\":1}",
		"```\n{\"a\":1}\n```":            "{\"a\":1}",
		"  ```json\n{\"a\":1}\n```\n\n ": "{\"a\":1}",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripJSONFences(in))
	}
}
