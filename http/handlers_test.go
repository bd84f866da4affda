package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"pavecheck/frame"
	"pavecheck/ml"
)

func newTestHandler() (*Handler, *http.ServeMux) {
	h := NewHandler(zap.NewNop().Sugar(), NewSessionStore(16, time.Hour))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

func testArtifact(t *testing.T) []byte {
	t.Helper()
	coef := make([]float64, 10)
	coef[0] = 5
	p := &ml.Pipeline{Steps: []ml.Step{
		{
			Name: ml.StepPrep,
			ColumnTransformer: &ml.ColumnTransformer{Transformers: []ml.TransformerSpec{
				{
					Name:    ml.TransformerNum,
					Columns: []string{frame.ColGrossWeight, frame.ColSaturation, frame.ColCBR},
					Scaler: &ml.StandardScaler{
						Mean:  []float64{100000, 50, 5},
						Scale: []float64{50000, 25, 3},
					},
				},
				{
					Name:    ml.TransformerCat,
					Columns: []string{frame.ColAircraftName, frame.ColSoilType, frame.ColFAACategory},
					Encoder: &ml.OneHotEncoder{Categories: [][]string{
						{"A320", "B737-800", "B777-300ER"},
						{"CH", "CL"},
						{"A", "B"},
					}},
				},
			}},
		},
		{Name: ml.StepModel, Estimator: &ml.EstimatorSpec{
			Type:               ml.EstimatorLogisticRegression,
			LogisticRegression: &ml.LogisticRegression{Coef: coef},
		}},
	}}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	return data
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func uploadModel(t *testing.T, mux *http.ServeMux, artifact []byte) []*http.Cookie {
	t.Helper()
	body, ctype := multipartBody(t, "model", "pipeline.json", artifact)
	req := httptest.NewRequest(http.MethodPost, "/upload/model", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Model loaded.") {
		t.Fatalf("expected load confirmation, got: %s", w.Body.String())
	}
	return w.Result().Cookies()
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestHealthHandler(t *testing.T) {
	_, mux := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	expected := `{"status":"ok"}`
	if strings.TrimSpace(rr.Body.String()) != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestIndexWithoutPipeline(t *testing.T) {
	_, mux := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Upload your pipeline artifact to begin.") {
		t.Fatal("expected upload prompt before a pipeline is loaded")
	}
}

func TestModelUploadFailureShownVerbatim(t *testing.T) {
	_, mux := newTestHandler()

	body, ctype := multipartBody(t, "model", "broken.json", []byte("not a pipeline"))
	req := httptest.NewRequest(http.MethodPost, "/upload/model", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Failed to load model:") {
		t.Fatalf("expected inline load error, got: %s", w.Body.String())
	}
}

func TestFormPredictFlow(t *testing.T) {
	_, mux := newTestHandler()
	cookies := uploadModel(t, mux, testArtifact(t))

	form := url.Values{
		frame.ColGrossWeight:  {"250000"},
		frame.ColSaturation:   {"85%"},
		frame.ColCBR:          {"6"},
		frame.ColSoilType:     {"CH"},
		frame.ColFAACategory:  {"A"},
		frame.ColAircraftName: {"A320", "B737-800", "B777-300ER"},
	}
	req := withCookies(httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode())), cookies)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"A320", "B737-800", "B777-300ER"} {
		if !strings.Contains(body, "<td>"+name+"</td>") {
			t.Fatalf("expected a result row for %s", name)
		}
	}
	// heavy aircraft on this artifact is always overloaded; header plus 3 rows
	if got := strings.Count(body, "Overloaded"); got < 4 {
		t.Fatalf("expected Overloaded label per row, found %d occurrences", got)
	}
	// "85%" must have been coerced to the float 85 in the debug table
	if !strings.Contains(body, "<td>85</td>") {
		t.Fatal("expected coerced saturation value in debug table")
	}
}

func TestFormPredictRequiresAircraft(t *testing.T) {
	_, mux := newTestHandler()
	cookies := uploadModel(t, mux, testArtifact(t))

	form := url.Values{
		frame.ColGrossWeight: {"250000"},
		frame.ColSaturation:  {"85"},
		frame.ColCBR:         {"6"},
	}
	req := withCookies(httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode())), cookies)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "Please select at least one aircraft.") {
		t.Fatalf("expected aircraft warning, got: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "<td>Overloaded</td>") || strings.Contains(w.Body.String(), "<td>Safe</td>") {
		t.Fatal("no inference should run without a selection")
	}
}

func TestDatasetUploadCSV(t *testing.T) {
	_, mux := newTestHandler()
	cookies := uploadModel(t, mux, testArtifact(t))

	csvData := []byte("Aircraft Name,Subgrade soil type\nB737-800,CH\nA320,CL\n")
	body, ctype := multipartBody(t, "dataset", "fleet.csv", csvData)
	req := withCookies(httptest.NewRequest(http.MethodPost, "/upload/dataset", body), cookies)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	out := w.Body.String()
	if !strings.Contains(out, "Dropdown choices loaded") {
		t.Fatalf("expected dataset confirmation, got: %s", out)
	}
	// the form should now offer a multi-select with the harvested aircraft
	if !strings.Contains(out, `<option value="A320"`) {
		t.Fatal("expected aircraft options in the rendered form")
	}
}

func TestDatasetUploadFailureIsWarning(t *testing.T) {
	_, mux := newTestHandler()
	cookies := uploadModel(t, mux, testArtifact(t))

	body, ctype := multipartBody(t, "dataset", "bad.xlsx", []byte(`"unterminated`))
	req := withCookies(httptest.NewRequest(http.MethodPost, "/upload/dataset", body), cookies)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("warning should not fail the request, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Could not read spreadsheet:") {
		t.Fatalf("expected spreadsheet warning, got: %s", w.Body.String())
	}
}

func TestSchemaEndpoint(t *testing.T) {
	_, mux := newTestHandler()

	// no pipeline: 404
	req := httptest.NewRequest(http.MethodGet, "/api/schema", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without pipeline, got %d", w.Code)
	}

	cookies := uploadModel(t, mux, testArtifact(t))
	req = withCookies(httptest.NewRequest(http.MethodGet, "/api/schema", nil), cookies)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var schema map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &schema); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(schema["numeric"]) != 3 || len(schema["categorical"]) != 3 {
		t.Fatalf("unexpected schema: %v", schema)
	}
	if schema["numeric"][0] != frame.ColGrossWeight {
		t.Fatalf("schema order lost: %v", schema["numeric"])
	}
}

func TestAPIPredict(t *testing.T) {
	_, mux := newTestHandler()
	cookies := uploadModel(t, mux, testArtifact(t))

	// standardized weight 0.2 -> z=1 -> p=0.7310585 -> rounds to 0.731
	payload := map[string]any{
		"fields": map[string]any{
			frame.ColGrossWeight: "110000",
			frame.ColSaturation:  "80",
			frame.ColCBR:         "6",
			frame.ColSoilType:    "CH",
			frame.ColFAACategory: "A",
		},
		"aircraft": []string{"B737-800"},
	}
	body, _ := json.Marshal(payload)
	req := withCookies(httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewReader(body)), cookies)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []ResultRow `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	got := resp.Results[0]
	if got.Aircraft != "B737-800" {
		t.Fatalf("unexpected aircraft: %q", got.Aircraft)
	}
	if got.Prediction != ml.LabelOverloaded {
		t.Fatalf("unexpected prediction: %q", got.Prediction)
	}
	if got.POverloaded == nil || *got.POverloaded != 0.731 {
		t.Fatalf("expected probability 0.731, got %v", got.POverloaded)
	}
}

func TestAPIPredictNoAircraft(t *testing.T) {
	_, mux := newTestHandler()
	cookies := uploadModel(t, mux, testArtifact(t))

	body, _ := json.Marshal(map[string]any{"fields": map[string]any{}, "aircraft": []string{}})
	req := withCookies(httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewReader(body)), cookies)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestDefaultPipelineFallback(t *testing.T) {
	h, mux := newTestHandler()

	p, err := ml.Load(bytes.NewReader(testArtifact(t)))
	if err != nil {
		t.Fatalf("load artifact: %v", err)
	}
	h.SetDefaultPipeline(p)

	req := httptest.NewRequest(http.MethodGet, "/api/schema", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected default pipeline to serve schema, got %d", w.Code)
	}
}
